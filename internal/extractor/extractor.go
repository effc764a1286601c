package extractor

import (
	"context"
	"sort"

	"github.com/moment-tracker/internal/chain"
	apperrors "github.com/moment-tracker/internal/errors"
	"github.com/moment-tracker/internal/logging"
	"github.com/moment-tracker/internal/metrics"
	"github.com/moment-tracker/internal/types"
)

// metadataKeys are copied verbatim into Transaction.Metadata when present
var metadataKeys = []string{"playID", "setID", "serialNumber", "editionID", "subeditionID"}

// NormalizeTransactions converts raw transactions into wallet-relative
// transactions. Transactions without relevant events are dropped; events
// with unreadable payloads are skipped and logged.
func NormalizeTransactions(ctx context.Context, raws []chain.RawTransaction, wallet string) []*types.Transaction {
	out := make([]*types.Transaction, 0, len(raws))
	for _, raw := range raws {
		if tx, ok := NormalizeTransaction(ctx, raw, wallet); ok {
			out = append(out, tx)
		}
	}
	return out
}

// NormalizeTransaction converts one raw transaction. ok is false when none of
// its events concern the wallet.
func NormalizeTransaction(ctx context.Context, raw chain.RawTransaction, wallet string) (*types.Transaction, bool) {
	relevant := make([]chain.RawEvent, 0, len(raw.Events))
	for _, ev := range raw.Events {
		if ev.Payload == nil {
			reason := ev.PayloadError
			if reason == "" {
				reason = "missing payload"
			}
			err := apperrors.NewMalformedEventPayloadError(ev.Type, reason)
			metrics.MalformedEvents.Inc()
			logging.FromContext(ctx).WithFields(map[string]interface{}{
				"transactionId": raw.ID,
				"eventIndex":    ev.EventIndex,
			}).WithError(err).Warn("Skipping event with malformed payload")
			continue
		}
		if IsRelevant(ev, wallet) {
			relevant = append(relevant, ev)
		}
	}
	if len(relevant) == 0 {
		return nil, false
	}

	eventTypes := make([]string, 0, len(relevant))
	for _, ev := range relevant {
		eventTypes = append(eventTypes, ev.Type)
	}

	tx := &types.Transaction{
		Hash:        chain.CanonicalTxID(raw.ID),
		Type:        Classify(eventTypes),
		BlockHeight: raw.BlockHeight,
		Timestamp:   raw.Timestamp,
		EventTypes:  eventTypes,
	}
	if tx.Timestamp.IsZero() {
		tx.Timestamp = relevant[0].BlockTimestamp
	}
	if tx.BlockHeight == 0 {
		tx.BlockHeight = relevant[0].BlockHeight
	}

	extractFields(tx, relevant)
	refineForWallet(tx, wallet)
	return tx, true
}

// extractFields fills optional fields, reading the event that decided the
// classification first and the remaining events after it.
func extractFields(tx *types.Transaction, events []chain.RawEvent) {
	ordered := orderByClassification(events, tx.Type)
	meta := map[string]string{}

	for _, ev := range ordered {
		p := ev.Payload
		name := EventName(ev.Type)

		if tx.MomentID == nil {
			tx.MomentID = stringField(p, "id", "momentID", "momentId", "nftID")
		}
		if tx.Price == nil {
			tx.Price = priceField(p, "price", "salePrice")
		}
		if tx.Buyer == nil {
			tx.Buyer = stringField(p, "buyer")
		}
		if tx.Seller == nil {
			tx.Seller = stringField(p, "seller")
		}

		switch name {
		case EventDeposit:
			if tx.To == nil {
				tx.To = stringField(p, "to", "owner")
			}
		case EventWithdraw:
			if tx.From == nil {
				tx.From = stringField(p, "from", "owner")
			}
		}

		if tx.Marketplace == nil && (tradeEvents[name] || name == EventMomentListed) && name != EventMomentMinted {
			if contract := ContractName(ev.Type); contract != "" {
				tx.Marketplace = &contract
			}
		}

		for _, key := range metadataKeys {
			if _, seen := meta[key]; seen {
				continue
			}
			if v := stringField(p, key); v != nil {
				meta[key] = *v
			}
		}
	}

	// Marketplace events name the seller; the buyer is whoever received the deposit.
	if tx.Type == types.TxPurchase || tx.Type == types.TxSale {
		if tx.Buyer == nil && tx.To != nil {
			tx.Buyer = tx.To
		}
		if tx.Seller == nil && tx.From != nil {
			tx.Seller = tx.From
		}
	}

	if len(meta) > 0 {
		tx.Metadata = meta
	}
}

// refineForWallet turns a marketplace purchase into a sale when the wallet
// was the seller rather than the buyer.
func refineForWallet(tx *types.Transaction, wallet string) {
	if tx.Type != types.TxPurchase || tx.Seller == nil {
		return
	}
	isSeller := chain.SameAddress(*tx.Seller, wallet)
	isBuyer := tx.Buyer != nil && chain.SameAddress(*tx.Buyer, wallet)
	if isSeller && !isBuyer {
		tx.Type = types.TxSale
	}
}

func orderByClassification(events []chain.RawEvent, txType types.TransactionType) []chain.RawEvent {
	rank := func(ev chain.RawEvent) int {
		if Classify([]string{ev.Type}) == txType {
			return 0
		}
		return 1
	}
	ordered := make([]chain.RawEvent, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		return rank(ordered[i]) < rank(ordered[j])
	})
	return ordered
}

// GroupEvents assembles events fetched by type into per-transaction raw
// transactions ordered by block height, then transaction id.
func GroupEvents(events []chain.RawEvent) []chain.RawTransaction {
	byID := make(map[string]*chain.RawTransaction)
	for _, ev := range events {
		key := chain.CanonicalTxID(ev.TransactionID)
		tx, ok := byID[key]
		if !ok {
			tx = &chain.RawTransaction{
				ID:          ev.TransactionID,
				BlockHeight: ev.BlockHeight,
				Timestamp:   ev.BlockTimestamp,
			}
			byID[key] = tx
		}
		tx.Events = append(tx.Events, ev)
	}

	out := make([]chain.RawTransaction, 0, len(byID))
	for _, tx := range byID {
		sort.SliceStable(tx.Events, func(i, j int) bool {
			return tx.Events[i].EventIndex < tx.Events[j].EventIndex
		})
		out = append(out, *tx)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockHeight != out[j].BlockHeight {
			return out[i].BlockHeight < out[j].BlockHeight
		}
		return chain.CanonicalTxID(out[i].ID) < chain.CanonicalTxID(out[j].ID)
	})
	return out
}
