// Package extractor turns raw chain transactions into wallet-relative
// normalized transactions.
package extractor

import (
	"strings"

	"github.com/moment-tracker/internal/chain"
	"github.com/moment-tracker/internal/types"
)

// Event names, the last segment of a fully qualified event type such as
// A.c1e4f4f4c4257510.TopShotMarketV3.MomentPurchased.
const (
	EventMomentPurchased    = "MomentPurchased"
	EventMomentSold         = "MomentSold"
	EventMomentMinted       = "MomentMinted"
	EventMomentListed       = "MomentListed"
	EventMomentWithdrawn    = "MomentWithdrawn"
	EventMomentPriceChanged = "MomentPriceChanged"
	EventDeposit            = "Deposit"
	EventWithdraw           = "Withdraw"
)

// tradeEvents are relevant to any wallet
var tradeEvents = map[string]bool{
	EventMomentPurchased: true,
	EventMomentSold:      true,
	EventMomentMinted:    true,
}

// transferEvents are relevant only when the wallet is a party
var transferEvents = map[string]bool{
	EventDeposit:            true,
	EventWithdraw:           true,
	EventMomentListed:       true,
	EventMomentWithdrawn:    true,
	EventMomentPriceChanged: true,
}

// DefaultEventTypes are queried by event-window lookups when no types are given
var DefaultEventTypes = []string{
	"A." + strings.TrimPrefix(chain.TopShotAddress, "0x") + ".TopShot." + EventDeposit,
	"A." + strings.TrimPrefix(chain.TopShotAddress, "0x") + ".TopShot." + EventWithdraw,
	"A." + strings.TrimPrefix(chain.TopShotAddress, "0x") + ".TopShot." + EventMomentMinted,
	"A." + strings.TrimPrefix(chain.TopShotMarketAddress, "0x") + ".TopShotMarketV3." + EventMomentPurchased,
	"A." + strings.TrimPrefix(chain.TopShotMarketAddress, "0x") + ".TopShotMarketV3." + EventMomentListed,
	"A." + strings.TrimPrefix(chain.TopShotMarketAddress, "0x") + ".TopShotMarketV3." + EventMomentWithdrawn,
	"A." + strings.TrimPrefix(chain.TopShotMarketAddress, "0x") + ".Market." + EventMomentPurchased,
}

// classification is ordered by priority, highest first
var classification = []struct {
	token  string
	txType types.TransactionType
}{
	{"Purchased", types.TxPurchase},
	{"Sold", types.TxSale},
	{"Minted", types.TxMint},
	{"Listed", types.TxList},
	{"Deposit", types.TxDeposit},
	{"Withdraw", types.TxWithdraw},
}

// EventName returns the last segment of a qualified event type
func EventName(eventType string) string {
	if i := strings.LastIndex(eventType, "."); i >= 0 {
		return eventType[i+1:]
	}
	return eventType
}

// ContractName returns the contract segment of a qualified event type
func ContractName(eventType string) string {
	parts := strings.Split(eventType, ".")
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-2]
}

// IsRelevant reports whether an event matters for wallet: trade events always
// do, transfer-like events only when the wallet is one of the parties.
func IsRelevant(event chain.RawEvent, wallet string) bool {
	name := EventName(event.Type)
	if tradeEvents[name] {
		return true
	}
	if !transferEvents[name] {
		return false
	}
	for _, key := range []string{"to", "from", "owner", "seller", "buyer"} {
		if v := stringField(event.Payload, key); v != nil && chain.SameAddress(*v, wallet) {
			return true
		}
	}
	return false
}

// Classify picks a transaction type from its event types by priority:
// purchased, sold, minted, listed, deposit, withdraw, otherwise transfer.
func Classify(eventTypes []string) types.TransactionType {
	for _, c := range classification {
		for _, et := range eventTypes {
			if strings.Contains(EventName(et), c.token) {
				return c.txType
			}
		}
	}
	return types.TxTransfer
}
