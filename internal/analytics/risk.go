package analytics

import (
	"math"
	"sort"

	"github.com/samber/lo"

	"github.com/moment-tracker/internal/types"
)

// returnsOf lists the percent return of every moment with a known cost
func returnsOf(moments []types.Moment) []float64 {
	return lo.FilterMap(moments, func(m types.Moment, _ int) (float64, bool) {
		return m.GainLossPercentage, m.PurchasePrice > 0
	})
}

func (e *Engine) computeRisk(moments []types.Moment, totalValue float64) types.RiskMetrics {
	var r types.RiskMetrics
	r.RiskLevel = types.RiskLow
	if len(moments) == 0 {
		return r
	}
	p := e.params

	if totalValue > 0 {
		hhi := lo.SumBy(moments, func(m types.Moment) float64 {
			w := m.CurrentValue / totalValue
			return w * w
		})
		r.ConcentrationRisk = clamp(hhi*100, 0, 100)
	}
	r.VolatilityRisk = clamp(mean(lo.Map(moments, func(m types.Moment, _ int) float64 { return m.Volatility })), 0, 100)
	r.LiquidityRisk = clamp(100-mean(lo.Map(moments, func(m types.Moment, _ int) float64 { return m.Liquidity })), 0, 100)

	r.PlayerDiversity = clamp(float64(distinct(moments, func(m types.Moment) string { return m.PlayerName }))/float64(len(moments))*100, 0, 100)
	r.TeamDiversity = clamp(float64(distinct(moments, func(m types.Moment) string { return m.TeamName }))/float64(p.LeagueSize)*100, 0, 100)
	r.SetDiversity = clamp(float64(distinct(moments, func(m types.Moment) string { return m.SetName }))/float64(p.ActiveSetCount)*100, 0, 100)
	r.Diversification = clamp((r.PlayerDiversity+r.TeamDiversity+r.SetDiversity)/3, 0, 100)

	returns := returnsOf(moments)
	if len(returns) > 0 {
		avg := mean(returns)
		sd := sampleStdDev(returns, avg)
		worst := lo.Min(returns)

		if r.VolatilityRisk > 0 {
			r.RiskAdjustedReturn = avg / r.VolatilityRisk * p.RiskAdjustedScale
		}
		r.ValueAtRisk95 = math.Abs(percentile(returns, p.VaRPercentile)) / 100
		if sd > 0 {
			r.SharpeRatio = (avg - p.RiskFreeRate) / sd
		}
		r.SortinoRatio = e.sortino(returns, avg)
		if worst < 0 {
			r.CalmarRatio = avg / math.Abs(worst)
		}
	}

	r.OverallRiskScore = clamp(
		r.ConcentrationRisk*p.ConcentrationWeight+
			r.VolatilityRisk*p.VolatilityWeight+
			r.LiquidityRisk*p.LiquidityWeight+
			(100-r.Diversification)*p.DiversificationWeight,
		0, 100)
	switch {
	case r.OverallRiskScore >= p.HighRiskFrom:
		r.RiskLevel = types.RiskHigh
	case r.OverallRiskScore >= p.LowRiskBelow:
		r.RiskLevel = types.RiskMedium
	}
	return r
}

// sortino divides excess return by the RMS of the losing returns. With no
// losses it is SortinoCeiling for a positive mean and 0 otherwise.
func (e *Engine) sortino(returns []float64, avg float64) float64 {
	losses := lo.Filter(returns, func(v float64, _ int) bool { return v < 0 })
	if len(losses) == 0 {
		if avg > 0 {
			return e.params.SortinoCeiling
		}
		return 0
	}
	downside := math.Sqrt(lo.SumBy(losses, func(v float64) float64 { return v * v }) / float64(len(losses)))
	if downside == 0 {
		return 0
	}
	return (avg - e.params.RiskFreeRate) / downside
}

func distinct(moments []types.Moment, key func(types.Moment) string) int {
	keys := lo.FilterMap(moments, func(m types.Moment, _ int) (string, bool) {
		k := key(m)
		return k, k != ""
	})
	return len(lo.Uniq(keys))
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return lo.Sum(values) / float64(len(values))
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := sortedCopy(values)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// sampleStdDev uses the n-1 denominator and is 0 below two values
func sampleStdDev(values []float64, avg float64) float64 {
	if len(values) < 2 {
		return 0
	}
	sumSq := lo.SumBy(values, func(v float64) float64 {
		d := v - avg
		return d * d
	})
	return math.Sqrt(sumSq / float64(len(values)-1))
}

// percentile uses the nearest-rank method
func percentile(values []float64, pct float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := sortedCopy(values)
	rank := int(math.Ceil(pct / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

func sortedCopy(values []float64) []float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return sorted
}

func clamp(v, low, high float64) float64 {
	if math.IsNaN(v) {
		return low
	}
	return math.Max(low, math.Min(high, v))
}
