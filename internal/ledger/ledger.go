// Package ledger derives purchase and sale records for a wallet from its
// normalized transactions.
package ledger

import (
	"sort"
	"time"

	"github.com/moment-tracker/internal/chain"
	"github.com/moment-tracker/internal/types"
)

// Ledger holds the purchase and sale records of one wallet, each sorted by
// date ascending and unique per (moment id, transaction hash).
type Ledger struct {
	Wallet    string                 `json:"wallet"`
	Purchases []types.PurchaseRecord `json:"purchases"`
	Sales     []types.SaleRecord     `json:"sales"`
}

type recordKey struct {
	momentID string
	txHash   string
}

// Build derives the ledger for wallet. A purchase record needs the wallet as
// buyer plus a moment id and a price; a sale record needs the wallet as
// seller plus the same. Re-ingesting the same transactions adds nothing.
func Build(wallet string, txs []*types.Transaction) *Ledger {
	l := &Ledger{
		Wallet:    wallet,
		Purchases: []types.PurchaseRecord{},
		Sales:     []types.SaleRecord{},
	}
	seenPurchases := make(map[recordKey]bool)
	seenSales := make(map[recordKey]bool)

	for _, tx := range txs {
		if tx == nil || tx.MomentID == nil || tx.Price == nil {
			continue
		}
		key := recordKey{momentID: *tx.MomentID, txHash: chain.CanonicalTxID(tx.Hash)}

		switch tx.Type {
		case types.TxPurchase:
			if tx.Buyer == nil || !chain.SameAddress(*tx.Buyer, wallet) || seenPurchases[key] {
				continue
			}
			seenPurchases[key] = true
			l.Purchases = append(l.Purchases, types.PurchaseRecord{
				MomentID:        key.momentID,
				TransactionHash: key.txHash,
				Price:           *tx.Price,
				Date:            tx.Timestamp,
				Seller:          deref(tx.Seller),
				Marketplace:     deref(tx.Marketplace),
			})
		case types.TxSale:
			if tx.Seller == nil || !chain.SameAddress(*tx.Seller, wallet) || seenSales[key] {
				continue
			}
			seenSales[key] = true
			l.Sales = append(l.Sales, types.SaleRecord{
				MomentID:        key.momentID,
				TransactionHash: key.txHash,
				Price:           *tx.Price,
				Date:            tx.Timestamp,
				Buyer:           deref(tx.Buyer),
				Marketplace:     deref(tx.Marketplace),
			})
		}
	}

	l.sort()
	return l
}

// Merge returns a new ledger holding the records of both, still unique per
// (moment id, transaction hash).
func (l *Ledger) Merge(other *Ledger) *Ledger {
	merged := &Ledger{
		Wallet:    l.Wallet,
		Purchases: []types.PurchaseRecord{},
		Sales:     []types.SaleRecord{},
	}
	seenPurchases := make(map[recordKey]bool)
	seenSales := make(map[recordKey]bool)

	for _, src := range []*Ledger{l, other} {
		if src == nil {
			continue
		}
		for _, p := range src.Purchases {
			key := recordKey{p.MomentID, chain.CanonicalTxID(p.TransactionHash)}
			if !seenPurchases[key] {
				seenPurchases[key] = true
				merged.Purchases = append(merged.Purchases, p)
			}
		}
		for _, s := range src.Sales {
			key := recordKey{s.MomentID, chain.CanonicalTxID(s.TransactionHash)}
			if !seenSales[key] {
				seenSales[key] = true
				merged.Sales = append(merged.Sales, s)
			}
		}
	}

	merged.sort()
	return merged
}

// PurchasesFor returns the purchases of one moment in date order
func (l *Ledger) PurchasesFor(momentID string) []types.PurchaseRecord {
	var out []types.PurchaseRecord
	for _, p := range l.Purchases {
		if p.MomentID == momentID {
			out = append(out, p)
		}
	}
	return out
}

// SalesFor returns the sales of one moment in date order
func (l *Ledger) SalesFor(momentID string) []types.SaleRecord {
	var out []types.SaleRecord
	for _, s := range l.Sales {
		if s.MomentID == momentID {
			out = append(out, s)
		}
	}
	return out
}

// LatestPrices returns, per moment, the price of its most recent purchase or
// sale. Ties on date fall back to the record ordering.
func (l *Ledger) LatestPrices() map[string]float64 {
	type latest struct {
		date  time.Time
		hash  string
		price float64
	}
	seen := make(map[string]latest)
	observe := func(momentID, hash string, date time.Time, price float64) {
		cur, ok := seen[momentID]
		if !ok || lessRecord(cur.date, cur.hash, momentID, date, hash, momentID) {
			seen[momentID] = latest{date: date, hash: hash, price: price}
		}
	}
	for _, p := range l.Purchases {
		observe(p.MomentID, p.TransactionHash, p.Date, p.Price)
	}
	for _, s := range l.Sales {
		observe(s.MomentID, s.TransactionHash, s.Date, s.Price)
	}

	out := make(map[string]float64, len(seen))
	for id, rec := range seen {
		out[id] = rec.price
	}
	return out
}

func (l *Ledger) sort() {
	sort.SliceStable(l.Purchases, func(i, j int) bool {
		return lessRecord(l.Purchases[i].Date, l.Purchases[i].TransactionHash, l.Purchases[i].MomentID,
			l.Purchases[j].Date, l.Purchases[j].TransactionHash, l.Purchases[j].MomentID)
	})
	sort.SliceStable(l.Sales, func(i, j int) bool {
		return lessRecord(l.Sales[i].Date, l.Sales[i].TransactionHash, l.Sales[i].MomentID,
			l.Sales[j].Date, l.Sales[j].TransactionHash, l.Sales[j].MomentID)
	})
}

func lessRecord(di time.Time, hi, mi string, dj time.Time, hj, mj string) bool {
	if !di.Equal(dj) {
		return di.Before(dj)
	}
	if hi != hj {
		return hi < hj
	}
	return mi < mj
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
