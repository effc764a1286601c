package chain

// Mainnet contract addresses used by the scripts and event types
const (
	TopShotAddress       = "0x0b2a3299cc857e29"
	TopShotMarketAddress = "0xc1e4f4f4c4257510"
)

// CollectionScript returns every moment held by an account with the play,
// set and edition metadata needed to build a moment record.
const CollectionScript = `
import TopShot from 0x0b2a3299cc857e29
import TopShotLocking from 0x0b2a3299cc857e29

access(all) struct MomentData {
    access(all) let id: UInt64
    access(all) let playID: UInt32
    access(all) let setID: UInt32
    access(all) let serialNumber: UInt32
    access(all) let setName: String
    access(all) let series: UInt32
    access(all) let numMomentsInEdition: UInt32?
    access(all) let play: {String: String}
    access(all) let isLocked: Bool

    init(id: UInt64, playID: UInt32, setID: UInt32, serialNumber: UInt32, setName: String,
         series: UInt32, numMomentsInEdition: UInt32?, play: {String: String}, isLocked: Bool) {
        self.id = id
        self.playID = playID
        self.setID = setID
        self.serialNumber = serialNumber
        self.setName = setName
        self.series = series
        self.numMomentsInEdition = numMomentsInEdition
        self.play = play
        self.isLocked = isLocked
    }
}

access(all) fun main(account: Address): [MomentData] {
    let acct = getAccount(account)
    let moments: [MomentData] = []
    let ref = acct.capabilities.borrow<&{TopShot.MomentCollectionPublic}>(/public/MomentCollection)
    if ref == nil {
        return moments
    }

    for id in ref!.getIDs() {
        let nft = ref!.borrowMoment(id: id)!
        let data = nft.data
        moments.append(MomentData(
            id: id,
            playID: data.playID,
            setID: data.setID,
            serialNumber: data.serialNumber,
            setName: TopShot.getSetName(setID: data.setID) ?? "",
            series: TopShot.getSetSeries(setID: data.setID) ?? 0,
            numMomentsInEdition: TopShot.getNumMomentsInEdition(setID: data.setID, playID: data.playID),
            play: TopShot.getPlayMetaData(playID: data.playID) ?? {},
            isLocked: TopShotLocking.isLocked(nftRef: nft)
        ))
    }
    return moments
}
`
