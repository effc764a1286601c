package analytics

import (
	"math"
	"sort"

	"github.com/samber/lo"

	"github.com/moment-tracker/internal/ledger"
	"github.com/moment-tracker/internal/types"
)

func (e *Engine) computePerformance(moments []types.Moment, l *ledger.Ledger) types.PerformanceMetrics {
	perf := types.PerformanceMetrics{
		BestPerformers:  []types.PerformerEntry{},
		WorstPerformers: []types.PerformerEntry{},
	}

	costed := lo.Filter(moments, func(m types.Moment, _ int) bool { return m.PurchasePrice > 0 })
	if len(costed) > 0 {
		returns := returnsOf(costed)
		perf.AverageROI = mean(returns)
		perf.MedianROI = median(returns)
		perf.AverageAnnualizedROI = mean(lo.Map(costed, func(m types.Moment, _ int) float64 { return m.AnnualizedROI }))
		perf.Winners = lo.CountBy(costed, func(m types.Moment) bool { return m.GainLoss > 0 })
		perf.Losers = lo.CountBy(costed, func(m types.Moment) bool { return m.GainLoss < 0 })
		perf.WinRate = float64(perf.Winners) / float64(len(costed)) * 100

		best := rankBy(costed, func(m types.Moment) float64 { return m.GainLossPercentage })
		perf.BestPerformers = performers(best, e.params.PerformersTopN)
		worst := rankBy(costed, func(m types.Moment) float64 { return -m.GainLossPercentage })
		perf.WorstPerformers = performers(worst, e.params.PerformersTopN)
	}

	held := lo.Filter(moments, func(m types.Moment, _ int) bool { return m.PurchaseDate != nil })
	perf.AverageHoldingDays = mean(lo.Map(held, func(m types.Moment, _ int) float64 { return float64(m.HoldingDays) }))

	if l != nil {
		gains := l.RealizedGains(e.policy)
		perf.RealizedSales = len(gains)
		perf.RealizedGain = lo.SumBy(gains, func(g ledger.RealizedGain) float64 {
			if !g.CostBasisKnown {
				return 0
			}
			return g.Gain
		})
	}
	return perf
}

// rankBy orders moments by score descending, ties by id
func rankBy(moments []types.Moment, score func(types.Moment) float64) []types.Moment {
	ranked := make([]types.Moment, len(moments))
	copy(ranked, moments)
	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := score(ranked[i]), score(ranked[j])
		if si != sj {
			return si > sj
		}
		return ranked[i].ID < ranked[j].ID
	})
	return ranked
}

func performers(ranked []types.Moment, n int) []types.PerformerEntry {
	return lo.Map(lo.Slice(ranked, 0, n), func(m types.Moment, _ int) types.PerformerEntry {
		return types.PerformerEntry{
			MomentID:           m.ID,
			PlayerName:         m.PlayerName,
			CurrentValue:       m.CurrentValue,
			GainLoss:           m.GainLoss,
			GainLossPercentage: m.GainLossPercentage,
		}
	})
}

func (e *Engine) computeOpportunities(moments []types.Moment) types.MarketOpportunities {
	p := e.params
	priced := lo.Filter(moments, func(m types.Moment, _ int) bool { return m.TrueValue > 0 })

	pick := func(keep func(types.Moment) bool, score func(types.Moment) float64, n int) []types.OpportunityEntry {
		matched := rankBy(lo.Filter(priced, func(m types.Moment, _ int) bool { return keep(m) }), score)
		if n >= 0 {
			matched = lo.Slice(matched, 0, n)
		}
		return lo.Map(matched, func(m types.Moment, _ int) types.OpportunityEntry {
			return opportunity(m)
		})
	}
	all := -1

	return types.MarketOpportunities{
		Undervalued: pick(
			func(m types.Moment) bool { return m.OpportunityScore > p.UndervaluedScore },
			func(m types.Moment) float64 { return m.OpportunityScore }, all),
		Overvalued: pick(
			func(m types.Moment) bool { return m.OpportunityScore < p.OvervaluedScore },
			func(m types.Moment) float64 { return -m.OpportunityScore }, all),
		GoodDeals: pick(
			func(m types.Moment) bool { return m.CurrentValue < m.TrueValue*p.GoodDealRatio },
			spread, all),
		SellingOpportunities: pick(
			func(m types.Moment) bool { return m.CurrentValue > m.TrueValue*p.SellingRatio },
			spread, all),
		Arbitrage: pick(
			func(m types.Moment) bool { return spread(m) > 0 },
			spread, p.ArbitrageTopN),
	}
}

// spread is the distance between current and true value relative to true value
func spread(m types.Moment) float64 {
	if m.TrueValue <= 0 {
		return 0
	}
	return math.Abs(m.CurrentValue-m.TrueValue) / m.TrueValue
}

func opportunity(m types.Moment) types.OpportunityEntry {
	return types.OpportunityEntry{
		MomentID:         m.ID,
		PlayerName:       m.PlayerName,
		CurrentValue:     m.CurrentValue,
		TrueValue:        m.TrueValue,
		OpportunityScore: m.OpportunityScore,
		Spread:           spread(m),
	}
}
