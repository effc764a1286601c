// Package analytics computes portfolio overview, breakdowns, performance,
// risk and opportunity metrics from normalized moments. It is a pure
// transform: the same moments and ledger always give the same result.
package analytics

import (
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/moment-tracker/internal/ledger"
	"github.com/moment-tracker/internal/metrics"
	"github.com/moment-tracker/internal/types"
)

// Engine computes portfolio analytics
type Engine struct {
	params Params
	policy ledger.CostBasisPolicy
}

// NewEngine creates an engine. policy decides the cost basis of realized sales.
func NewEngine(params Params, policy ledger.CostBasisPolicy) *Engine {
	if policy == "" {
		policy = ledger.PolicyFirstPurchase
	}
	return &Engine{params: params, policy: policy}
}

// Params returns the engine parameters
func (e *Engine) Params() Params {
	return e.params
}

// Compute derives the full analytics of moments. l may be nil when no
// ledger is known.
func (e *Engine) Compute(moments []types.Moment, l *ledger.Ledger) types.PortfolioAnalytics {
	start := time.Now()
	defer func() { metrics.AnalyticsDuration.Observe(time.Since(start).Seconds()) }()

	// sums are taken in id order so input order cannot change the result
	sorted := make([]types.Moment, len(moments))
	copy(sorted, moments)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	overview := computeOverview(sorted)
	return types.PortfolioAnalytics{
		Overview:      overview,
		Breakdowns:    computeBreakdowns(sorted, overview.TotalValue),
		Performance:   e.computePerformance(sorted, l),
		Risk:          e.computeRisk(sorted, overview.TotalValue),
		Opportunities: e.computeOpportunities(sorted),
	}
}

func computeOverview(moments []types.Moment) types.PortfolioOverview {
	o := types.PortfolioOverview{TotalMoments: len(moments)}
	if len(moments) == 0 {
		return o
	}

	o.TotalValue = lo.SumBy(moments, func(m types.Moment) float64 { return m.CurrentValue })
	o.TotalAcquisitionCost = lo.SumBy(moments, func(m types.Moment) float64 { return m.PurchasePrice })
	o.TotalProfit = o.TotalValue - o.TotalAcquisitionCost
	if o.TotalAcquisitionCost > 0 {
		o.ProfitPercentage = o.TotalProfit / o.TotalAcquisitionCost * 100
	}
	o.AverageValue = o.TotalValue / float64(len(moments))

	top := lo.MaxBy(moments, func(a, b types.Moment) bool {
		return a.CurrentValue > b.CurrentValue
	})
	o.TopHoldingID = top.ID
	o.TopHoldingValue = top.CurrentValue

	o.UniquePlayers = distinct(moments, func(m types.Moment) string { return m.PlayerName })
	o.UniqueTeams = distinct(moments, func(m types.Moment) string { return m.TeamName })
	o.UniqueSets = distinct(moments, func(m types.Moment) string { return m.SetName })
	return o
}
