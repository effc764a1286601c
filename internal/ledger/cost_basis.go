package ledger

import (
	"fmt"
	"time"

	"github.com/moment-tracker/internal/types"
)

// CostBasisPolicy selects which purchase price a held moment is measured against
type CostBasisPolicy string

const (
	// PolicyFirstPurchase uses the earliest purchase of the moment
	PolicyFirstPurchase CostBasisPolicy = "first_purchase"
	// PolicyFIFOOpenLot uses the earliest purchase not yet matched by a later sale
	PolicyFIFOOpenLot CostBasisPolicy = "fifo_open_lot"
	// PolicyWeightedAverage uses the mean of all purchase prices
	PolicyWeightedAverage CostBasisPolicy = "weighted_average"
)

// ParseCostBasisPolicy validates a policy name
func ParseCostBasisPolicy(s string) (CostBasisPolicy, error) {
	switch p := CostBasisPolicy(s); p {
	case PolicyFirstPurchase, PolicyFIFOOpenLot, PolicyWeightedAverage:
		return p, nil
	case "":
		return PolicyFirstPurchase, nil
	default:
		return "", fmt.Errorf("unknown cost basis policy %q", s)
	}
}

// CostBasis is the acquisition price and date attributed to a moment
type CostBasis struct {
	Price           float64   `json:"price"`
	Date            time.Time `json:"date"`
	TransactionHash string    `json:"transactionHash,omitempty"`
	Marketplace     string    `json:"marketplace,omitempty"`
}

// CostBasis returns the cost basis of a currently held moment. ok is false
// when the ledger has no purchase of it.
func (l *Ledger) CostBasis(momentID string, policy CostBasisPolicy) (CostBasis, bool) {
	purchases := l.PurchasesFor(momentID)
	if len(purchases) == 0 {
		return CostBasis{}, false
	}
	return basisOf(purchases, l.SalesFor(momentID), policy), true
}

// basisOf applies policy to date-ordered purchases and sales of one moment
func basisOf(purchases []types.PurchaseRecord, sales []types.SaleRecord, policy CostBasisPolicy) CostBasis {
	switch policy {
	case PolicyWeightedAverage:
		var total float64
		for _, p := range purchases {
			total += p.Price
		}
		last := purchases[len(purchases)-1]
		return CostBasis{
			Price:       total / float64(len(purchases)),
			Date:        purchases[0].Date,
			Marketplace: last.Marketplace,
		}
	case PolicyFIFOOpenLot:
		open := openLots(purchases, sales)
		if len(open) > 0 {
			return fromPurchase(open[0])
		}
		// Every lot was sold; the moment came back some other way.
		return fromPurchase(purchases[len(purchases)-1])
	default:
		return fromPurchase(purchases[0])
	}
}

// openLots matches each sale against the earliest unmatched purchase made
// before it and returns the purchases left over.
func openLots(purchases []types.PurchaseRecord, sales []types.SaleRecord) []types.PurchaseRecord {
	used := make([]bool, len(purchases))
	for _, s := range sales {
		for i, p := range purchases {
			if !used[i] && !p.Date.After(s.Date) {
				used[i] = true
				break
			}
		}
	}
	var open []types.PurchaseRecord
	for i, p := range purchases {
		if !used[i] {
			open = append(open, p)
		}
	}
	return open
}

func fromPurchase(p types.PurchaseRecord) CostBasis {
	return CostBasis{
		Price:           p.Price,
		Date:            p.Date,
		TransactionHash: p.TransactionHash,
		Marketplace:     p.Marketplace,
	}
}

// RealizedGain is the outcome of one sale against its cost basis
type RealizedGain struct {
	MomentID        string    `json:"momentId"`
	TransactionHash string    `json:"transactionHash"`
	SaleDate        time.Time `json:"saleDate"`
	SalePrice       float64   `json:"salePrice"`
	CostBasis       float64   `json:"costBasis"`
	Gain            float64   `json:"gain"`
	CostBasisKnown  bool      `json:"costBasisKnown"`
}

// RealizedGains evaluates every sale against the purchases made up to its
// date under policy. Sales without a prior purchase report CostBasisKnown false
// and a zero gain.
func (l *Ledger) RealizedGains(policy CostBasisPolicy) []RealizedGain {
	gains := make([]RealizedGain, 0, len(l.Sales))
	for _, s := range l.Sales {
		g := RealizedGain{
			MomentID:        s.MomentID,
			TransactionHash: s.TransactionHash,
			SaleDate:        s.Date,
			SalePrice:       s.Price,
		}

		var prior []types.PurchaseRecord
		for _, p := range l.PurchasesFor(s.MomentID) {
			if !p.Date.After(s.Date) {
				prior = append(prior, p)
			}
		}
		if len(prior) > 0 {
			var earlierSales []types.SaleRecord
			for _, other := range l.SalesFor(s.MomentID) {
				if other.Date.Before(s.Date) {
					earlierSales = append(earlierSales, other)
				}
			}
			basis := basisOf(prior, earlierSales, policy)
			g.CostBasis = basis.Price
			g.Gain = s.Price - basis.Price
			g.CostBasisKnown = true
		}
		gains = append(gains, g)
	}
	return gains
}
