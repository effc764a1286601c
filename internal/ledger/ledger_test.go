package ledger

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moment-tracker/internal/chain"
	"github.com/moment-tracker/internal/extractor"
	"github.com/moment-tracker/internal/types"
)

const (
	wallet = "0x0b2a3299cc857e29"
	other  = "0x1111111111111111"
)

var day0 = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func at(days int) time.Time { return day0.AddDate(0, 0, days) }

func purchase(hash, moment string, price float64, days int) *types.Transaction {
	return &types.Transaction{
		Hash:        hash,
		Type:        types.TxPurchase,
		Timestamp:   at(days),
		MomentID:    strPtr(moment),
		Price:       floatPtr(price),
		Buyer:       strPtr(wallet),
		Seller:      strPtr(other),
		Marketplace: strPtr("TopShotMarketV3"),
	}
}

func sale(hash, moment string, price float64, days int) *types.Transaction {
	return &types.Transaction{
		Hash:      hash,
		Type:      types.TxSale,
		Timestamp: at(days),
		MomentID:  strPtr(moment),
		Price:     floatPtr(price),
		Seller:    strPtr(wallet),
		Buyer:     strPtr(other),
	}
}

func TestBuild_FromPurchaseEvent(t *testing.T) {
	raw := chain.RawTransaction{
		ID:        "0xfeed",
		Timestamp: at(3),
		Events: []chain.RawEvent{{
			Type:    "A.c1e4f4f4c4257510.TopShotMarketV3.MomentPurchased",
			Payload: map[string]interface{}{"id": "77", "price": "50.0", "buyer": wallet},
		}},
	}
	txs := extractor.NormalizeTransactions(context.Background(), []chain.RawTransaction{raw}, wallet)
	require.Len(t, txs, 1)
	assert.Equal(t, types.TxPurchase, txs[0].Type)

	l := Build(wallet, txs)
	require.Len(t, l.Purchases, 1)
	assert.Equal(t, "77", l.Purchases[0].MomentID)
	assert.Equal(t, 50.0, l.Purchases[0].Price)
	assert.Equal(t, at(3), l.Purchases[0].Date)
	assert.Empty(t, l.Sales)
}

func TestBuild_Filters(t *testing.T) {
	notMine := purchase("0x10", "1", 10, 1)
	notMine.Buyer = strPtr(other)

	noPrice := purchase("0x11", "2", 10, 1)
	noPrice.Price = nil

	noMoment := purchase("0x12", "3", 10, 1)
	noMoment.MomentID = nil

	transfer := purchase("0x13", "4", 10, 1)
	transfer.Type = types.TxDeposit

	l := Build(wallet, []*types.Transaction{notMine, noPrice, noMoment, transfer, nil})
	assert.Empty(t, l.Purchases)
	assert.Empty(t, l.Sales)
}

func TestBuild_DedupesAndSorts(t *testing.T) {
	txs := []*types.Transaction{
		purchase("0x03", "c", 30, 30),
		purchase("0x01", "a", 10, 10),
		purchase("0x01", "a", 10, 10),
		purchase("0X01", "a", 10, 10),
		purchase("0x02", "b", 20, 10),
		sale("0x04", "a", 25, 40),
		sale("0x04", "a", 25, 40),
	}

	l := Build(wallet, txs)
	require.Len(t, l.Purchases, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{l.Purchases[0].MomentID, l.Purchases[1].MomentID, l.Purchases[2].MomentID})
	require.Len(t, l.Sales, 1)
	assert.Equal(t, 25.0, l.Sales[0].Price)
}

func TestMerge(t *testing.T) {
	first := Build(wallet, []*types.Transaction{purchase("0x01", "a", 10, 1)})
	second := Build(wallet, []*types.Transaction{purchase("0x01", "a", 10, 1), purchase("0x02", "b", 20, 2)})

	merged := first.Merge(second)
	require.Len(t, merged.Purchases, 2)
	assert.Len(t, first.Purchases, 1)
}

func TestLatestPrices(t *testing.T) {
	// sold at 150 on day 10, re-bought at 120 on day 20
	l := Build(wallet, []*types.Transaction{
		purchase("0x01", "m", 100, 0),
		sale("0x02", "m", 150, 10),
		purchase("0x03", "m", 120, 20),
		purchase("0x04", "n", 40, 5),
		sale("0x05", "n", 55, 6),
	})

	assert.Equal(t, map[string]float64{"m": 120, "n": 55}, l.LatestPrices())
	assert.Empty(t, Build(wallet, nil).LatestPrices())
}

func TestCostBasisPolicies(t *testing.T) {
	// bought at 100, sold at 150, re-bought at 120, re-bought at 140
	l := Build(wallet, []*types.Transaction{
		purchase("0x01", "m", 100, 0),
		sale("0x02", "m", 150, 10),
		purchase("0x03", "m", 120, 20),
		purchase("0x04", "m", 140, 30),
	})

	basis, ok := l.CostBasis("m", PolicyFirstPurchase)
	require.True(t, ok)
	assert.Equal(t, 100.0, basis.Price)
	assert.Equal(t, at(0), basis.Date)

	basis, ok = l.CostBasis("m", PolicyFIFOOpenLot)
	require.True(t, ok)
	assert.Equal(t, 120.0, basis.Price)
	assert.Equal(t, at(20), basis.Date)

	basis, ok = l.CostBasis("m", PolicyWeightedAverage)
	require.True(t, ok)
	assert.InDelta(t, 120.0, basis.Price, 1e-9)

	_, ok = l.CostBasis("unknown", PolicyFirstPurchase)
	assert.False(t, ok)
}

func TestCostBasis_FIFOAllLotsSold(t *testing.T) {
	l := Build(wallet, []*types.Transaction{
		purchase("0x01", "m", 100, 0),
		sale("0x02", "m", 150, 10),
	})
	basis, ok := l.CostBasis("m", PolicyFIFOOpenLot)
	require.True(t, ok)
	assert.Equal(t, 100.0, basis.Price)
}

func TestRealizedGains(t *testing.T) {
	l := Build(wallet, []*types.Transaction{
		purchase("0x01", "m", 100, 0),
		sale("0x02", "m", 150, 10),
		purchase("0x03", "m", 120, 20),
		sale("0x04", "m", 110, 30),
		sale("0x05", "orphan", 40, 5),
	})

	gains := l.RealizedGains(PolicyFIFOOpenLot)
	require.Len(t, gains, 3)

	byHash := map[string]RealizedGain{}
	for _, g := range gains {
		byHash[g.TransactionHash] = g
	}

	first := byHash[chain.CanonicalTxID("0x02")]
	assert.True(t, first.CostBasisKnown)
	assert.Equal(t, 50.0, first.Gain)

	second := byHash[chain.CanonicalTxID("0x04")]
	assert.True(t, second.CostBasisKnown)
	assert.Equal(t, 120.0, second.CostBasis)
	assert.Equal(t, -10.0, second.Gain)

	orphan := byHash[chain.CanonicalTxID("0x05")]
	assert.False(t, orphan.CostBasisKnown)
	assert.Zero(t, orphan.Gain)
}

func TestParseCostBasisPolicy(t *testing.T) {
	p, err := ParseCostBasisPolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyFirstPurchase, p)

	p, err = ParseCostBasisPolicy("weighted_average")
	require.NoError(t, err)
	assert.Equal(t, PolicyWeightedAverage, p)

	_, err = ParseCostBasisPolicy("lifo")
	assert.Error(t, err)
}

func TestBuildProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	genTxs := gen.SliceOf(gopter.CombineGens(
		gen.IntRange(0, 20),
		gen.IntRange(0, 5),
		gen.Float64Range(1, 1000),
		gen.IntRange(0, 365),
		gen.Bool(),
	).Map(func(vals []interface{}) *types.Transaction {
		hash := fmt.Sprintf("0x%02x", vals[0].(int))
		moment := fmt.Sprintf("%d", vals[1].(int))
		if vals[4].(bool) {
			return sale(hash, moment, vals[2].(float64), vals[3].(int))
		}
		return purchase(hash, moment, vals[2].(float64), vals[3].(int))
	}))

	properties.Property("re-ingesting adds no records", prop.ForAll(
		func(txs []*types.Transaction) bool {
			once := Build(wallet, txs)
			twice := Build(wallet, append(append([]*types.Transaction{}, txs...), txs...))
			return len(once.Purchases) == len(twice.Purchases) && len(once.Sales) == len(twice.Sales)
		},
		genTxs,
	))

	properties.Property("records are unique and date ordered", prop.ForAll(
		func(txs []*types.Transaction) bool {
			l := Build(wallet, txs)
			seen := map[recordKey]bool{}
			for _, p := range l.Purchases {
				key := recordKey{p.MomentID, p.TransactionHash}
				if seen[key] {
					return false
				}
				seen[key] = true
			}
			return sort.SliceIsSorted(l.Purchases, func(i, j int) bool {
				return l.Purchases[i].Date.Before(l.Purchases[j].Date)
			})
		},
		genTxs,
	))

	properties.TestingRun(t)
}
