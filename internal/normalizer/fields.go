package normalizer

// fields lists where each Moment field may live. The first group of paths
// matches the collection script output; the rest cover the marketplace
// metadata shape and flat exports.
var fields = struct {
	id, serial, circulation, playID, setID                            lookup
	player, team, playType, playDate, jersey, position, description   lookup
	tier, setName, series, season                                     lookup
	locked, image, video, owner                                       lookup
	purchasePrice, currentValue, floor, ceiling, lastSale, totalSales lookup
	yearsExperience, tags                                             lookup
}{
	id:          paths("$.id", "$.flowId", "$.momentId", "$.momentID"),
	serial:      paths("$.serialNumber", "$.flowSerialNumber", "$.serial"),
	circulation: paths("$.numMomentsInEdition", "$.setPlay.circulations.circulationCount", "$.circulationCount", "$.totalCirculation"),
	playID:      paths("$.playID", "$.play.flowID", "$.playId"),
	setID:       paths("$.setID", "$.set.flowId", "$.setId"),

	player:   paths("$.play.FullName", "$.play.stats.playerName", "$.playerName"),
	team:     paths("$.play.TeamAtMoment", "$.play.stats.teamAtMoment", "$.teamName"),
	playType: paths("$.play.PlayType", "$.play.PlayCategory", "$.play.stats.playCategory", "$.playType"),
	playDate: paths("$.play.DateOfMoment", "$.play.stats.dateOfMoment", "$.playDate"),
	jersey:   paths("$.play.JerseyNumber", "$.play.stats.jerseyNumber", "$.jerseyNumber"),
	position: paths("$.play.PlayerPosition", "$.play.stats.playerPosition", "$.position"),

	tier:    paths("$.tier", "$.setPlay.tier", "$.play.Tier"),
	setName: paths("$.setName", "$.set.flowName", "$.set.name"),
	series:  paths("$.series", "$.set.flowSeriesNumber", "$.seriesNumber"),
	season:  paths("$.play.NbaSeason", "$.play.stats.nbaSeason", "$.season"),

	locked: paths("$.isLocked", "$.locked"),
	image:  paths("$.imageUrl", "$.assets.image"),
	video:  paths("$.videoUrl", "$.assets.video"),
	owner:  paths("$.owner", "$.ownerAddress"),

	purchasePrice: paths("$.purchasePrice", "$.acquisition.price"),
	currentValue:  paths("$.currentValue", "$.price", "$.marketplace.lowAsk"),
	floor:         paths("$.floorPrice", "$.marketplace.lowAsk"),
	ceiling:       paths("$.ceilingPrice", "$.marketplace.highAsk"),
	lastSale:      paths("$.lastSalePrice", "$.marketplace.lastPurchasePrice"),

	yearsExperience: paths("$.play.TotalYearsExperience", "$.play.stats.totalYearsExperience"),
	tags:            paths("$.play.Tags", "$.tags[*].title", "$.play.tags[*].title", "$.attributes"),

	description: paths("$.play.Tagline", "$.play.description", "$.description"),
	totalSales:  paths("$.totalSales", "$.marketplace.totalSales"),
}
