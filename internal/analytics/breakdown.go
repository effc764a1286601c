package analytics

import (
	"github.com/samber/lo"

	"github.com/moment-tracker/internal/types"
)

// UnknownKey groups moments whose key is empty
const UnknownKey = "Unknown"

// GroupBy groups moments by key and aggregates each group. Percentages are
// relative to totalValue. No moments produce no groups.
func GroupBy(moments []types.Moment, totalValue float64, key func(types.Moment) string) types.Breakdown {
	groups := lo.GroupBy(moments, func(m types.Moment) string {
		if k := key(m); k != "" {
			return k
		}
		return UnknownKey
	})

	out := make(types.Breakdown, len(groups))
	for k, members := range groups {
		value := lo.SumBy(members, func(m types.Moment) float64 { return m.CurrentValue })
		cost := lo.SumBy(members, func(m types.Moment) float64 { return m.PurchasePrice })

		g := types.BreakdownGroup{
			Count:           len(members),
			Value:           value,
			AverageValue:    value / float64(len(members)),
			AcquisitionCost: cost,
			Profit:          value - cost,
		}
		if totalValue > 0 {
			g.Percentage = value / totalValue * 100
		}
		if cost > 0 {
			g.ProfitPercentage = g.Profit / cost * 100
		}
		out[k] = g
	}
	return out
}

func acquisitionMonth(m types.Moment) string {
	if m.PurchaseDate == nil {
		return ""
	}
	return m.PurchaseDate.UTC().Format("2006-01")
}

func computeBreakdowns(moments []types.Moment, totalValue float64) types.PortfolioBreakdowns {
	by := func(key func(types.Moment) string) types.Breakdown {
		return GroupBy(moments, totalValue, key)
	}
	return types.PortfolioBreakdowns{
		ByRarity:           by(func(m types.Moment) string { return m.Rarity }),
		ByTeam:             by(func(m types.Moment) string { return m.TeamName }),
		ByPlayer:           by(func(m types.Moment) string { return m.PlayerName }),
		BySet:              by(func(m types.Moment) string { return m.SetName }),
		BySeries:           by(func(m types.Moment) string { return m.Series }),
		BySeason:           by(func(m types.Moment) string { return m.Season }),
		ByPlayType:         by(func(m types.Moment) string { return m.PlayType }),
		ByTier:             by(func(m types.Moment) string { return m.Tier }),
		BySpecialAttribute: by(func(m types.Moment) string { return m.Attributes.Primary() }),
		ByAcquisitionMonth: by(acquisitionMonth),
	}
}
