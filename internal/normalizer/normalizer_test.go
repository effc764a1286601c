package normalizer

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moment-tracker/internal/types"
)

var now = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func collectionPayload() map[string]interface{} {
	return map[string]interface{}{
		"_type":               "A.0b2a3299cc857e29.MomentData",
		"id":                  "1234",
		"playID":              "55",
		"setID":               "7",
		"serialNumber":        "23",
		"setName":             "Base Set",
		"series":              "2",
		"numMomentsInEdition": "4000",
		"isLocked":            "true",
		"play": map[string]interface{}{
			"FullName":             "LeBron James",
			"TeamAtMoment":         "Los Angeles Lakers",
			"PlayType":             "Dunk",
			"DateOfMoment":         "2020-11-05 02:00:00 +0000 UTC",
			"JerseyNumber":         "23",
			"PlayerPosition":       "F",
			"TotalYearsExperience": "17",
		},
	}
}

func TestNormalize_CollectionPayload(t *testing.T) {
	bought := now.AddDate(0, 0, -365)
	m := Normalize(collectionPayload(), Inputs{
		Owner:         "0xabc",
		PurchasePrice: 100,
		PurchaseDate:  &bought,
		Marketplace:   "TopShotMarketV3",
		Now:           now,
		Snapshot: &types.MarketSnapshot{
			CurrentPrice:  150,
			FloorPrice:    140,
			CeilingPrice:  160,
			LastSalePrice: 145,
			TotalSales:    9,
			Liquidity:     40,
			Volatility:    13,
			Source:        types.SnapshotLive,
		},
	})

	assert.Equal(t, "1234", m.ID)
	assert.Equal(t, 23, m.SerialNumber)
	assert.Equal(t, 4000, m.TotalCirculation)
	assert.Equal(t, "7:55", m.EditionKey)
	assert.Equal(t, "LeBron James", m.PlayerName)
	assert.Equal(t, "Los Angeles Lakers", m.TeamName)
	assert.Equal(t, "Dunk", m.PlayType)
	assert.Equal(t, "2020-11-05", m.PlayDate)
	assert.Equal(t, "2020-21", m.Season)
	assert.Equal(t, "Series 2", m.Series)
	assert.Equal(t, "Base Set", m.SetName)
	assert.Equal(t, "Fandom", m.Rarity)
	assert.Equal(t, "Fandom", m.Tier)
	assert.Equal(t, 23, m.JerseyNumber)
	assert.True(t, m.IsLocked)
	assert.Equal(t, "0xabc", m.Owner)
	assert.Equal(t, AcquiredByPurchase, m.AcquisitionMethod)
	assert.Contains(t, m.ImageURL, "1234")

	assert.Equal(t, 150.0, m.CurrentValue)
	assert.Equal(t, 365, m.HoldingDays)
	assert.Equal(t, 50.0, m.GainLoss)
	assert.Equal(t, 50.0, m.GainLossPercentage)
	assert.InDelta(t, 50.0, m.AnnualizedROI, 1e-9)
	assert.InDelta(t, 145.0, m.TrueValue, 1e-9)
	assert.InDelta(t, 50-5.0/145*100*2.5-1, m.OpportunityScore, 1e-9)
	assert.Equal(t, types.SnapshotLive, m.MarketSource)

	assert.True(t, m.Attributes.Has(types.AttrJerseyMatch))
	assert.True(t, m.Attributes.Has(types.AttrLocked))
	assert.False(t, m.Attributes.Has(types.AttrRookie))
	assert.Equal(t, "jersey_match", m.Attributes.Primary())
}

func TestNormalize_MetadataPayload(t *testing.T) {
	raw := map[string]interface{}{
		"flowId":           "99",
		"flowSerialNumber": float64(1),
		"tier":             "MOMENT_TIER_LEGENDARY",
		"setPlay": map[string]interface{}{
			"circulations": map[string]interface{}{"circulationCount": float64(59)},
		},
		"set": map[string]interface{}{"flowName": "Holo MMXX", "flowSeriesNumber": float64(1)},
		"play": map[string]interface{}{
			"stats": map[string]interface{}{
				"playerName":           "Ja Morant",
				"teamAtMoment":         "Memphis Grizzlies",
				"playCategory":         "Handles",
				"dateOfMoment":         "2020-02-10T00:00:00Z",
				"nbaSeason":            "2019-20",
				"totalYearsExperience": "0",
			},
			"tags": []interface{}{
				map[string]interface{}{"title": "Rookie Year"},
				map[string]interface{}{"title": "Playoffs"},
			},
		},
		"marketplace": map[string]interface{}{"lowAsk": "900.0", "highAsk": "1200", "lastPurchasePrice": "1000"},
	}

	m := Normalize(raw, Inputs{Now: now})
	assert.Equal(t, "99", m.ID)
	assert.Equal(t, 1, m.SerialNumber)
	assert.Equal(t, 59, m.TotalCirculation)
	assert.Equal(t, "Legendary", m.Tier)
	assert.Equal(t, "Legendary", m.Rarity)
	assert.Equal(t, "Ja Morant", m.PlayerName)
	assert.Equal(t, "Handles", m.PlayType)
	assert.Equal(t, "2019-20", m.Season)
	assert.Equal(t, "Series 1", m.Series)
	assert.Equal(t, 900.0, m.CurrentValue)
	assert.Equal(t, 900.0, m.FloorPrice)
	assert.Equal(t, 1200.0, m.CeilingPrice)
	assert.Equal(t, 1000.0, m.LastSalePrice)
	assert.Equal(t, AcquiredUnknown, m.AcquisitionMethod)
	assert.Equal(t, types.SnapshotEstimate, m.MarketSource)

	for _, attr := range []types.Attribute{types.AttrFirstSerial, types.AttrLowSerial, types.AttrRookie, types.AttrRookieYear, types.AttrPlayoffs} {
		assert.True(t, m.Attributes.Has(attr), attr.String())
	}
	assert.Equal(t, "first_serial", m.Attributes.Primary())
}

func TestNormalize_EmptyPayloadDefaults(t *testing.T) {
	m := Normalize(nil, Inputs{Now: now})

	assert.Empty(t, m.ID)
	assert.Zero(t, m.SerialNumber)
	assert.Zero(t, m.TotalCirculation)
	assert.Empty(t, m.PlayerName)
	assert.Empty(t, m.ImageURL)
	assert.Equal(t, "Common", m.Rarity)
	assert.Zero(t, m.CurrentValue)
	assert.Zero(t, m.GainLossPercentage)
	assert.Zero(t, m.AnnualizedROI)
	assert.Zero(t, m.Attributes.Len())
	assert.Equal(t, types.NoAttribute, m.Attributes.Primary())
}

func TestNormalize_ZeroPurchasePrice(t *testing.T) {
	m := Normalize(collectionPayload(), Inputs{
		Now:      now,
		Snapshot: &types.MarketSnapshot{CurrentPrice: 75, Source: types.SnapshotLive},
	})

	assert.Zero(t, m.PurchasePrice)
	assert.Equal(t, 75.0, m.GainLoss)
	assert.Zero(t, m.GainLossPercentage)
	assert.Zero(t, m.AnnualizedROI)
	assert.False(t, math.IsNaN(m.GainLossPercentage))
}

func TestNormalize_SerialClamp(t *testing.T) {
	raw := collectionPayload()
	raw["serialNumber"] = "5000"
	m := Normalize(raw, Inputs{Now: now})
	assert.Equal(t, 4000, m.SerialNumber)
	assert.True(t, m.Attributes.Has(types.AttrLastSerial))

	raw["serialNumber"] = "0"
	m = Normalize(raw, Inputs{Now: now})
	assert.Equal(t, 1, m.SerialNumber)

	delete(raw, "numMomentsInEdition")
	raw["serialNumber"] = "5000"
	m = Normalize(raw, Inputs{Now: now})
	assert.Equal(t, 5000, m.SerialNumber)
}

func TestAnnualizedROI(t *testing.T) {
	n := New(DefaultOptions())

	assert.Zero(t, n.AnnualizedROI(100, 0, 10))
	assert.InDelta(t, 100.0, n.AnnualizedROI(200, 100, 365), 1e-9)
	assert.Equal(t, -100.0, n.AnnualizedROI(0, 100, 30))
	// a doubling in one day overflows any sane rate and is capped
	assert.Equal(t, 10000.0, n.AnnualizedROI(200, 100, 0))
}

func TestTrueValueAndOpportunityScore(t *testing.T) {
	assert.Equal(t, 42.0, TrueValue(42, 0, 0, 0))
	assert.InDelta(t, 100.0, TrueValue(150, 90, 110, 110), 1e-9)

	n := New(DefaultOptions())
	assert.Equal(t, 50.0, n.OpportunityScore(100, 100, 50))
	assert.Equal(t, 100.0, n.OpportunityScore(10, 100, 50))
	assert.Equal(t, 0.0, n.OpportunityScore(1000, 100, 50))
	assert.InDelta(t, 55.0, n.OpportunityScore(100, 100, 100), 1e-9)
}

func TestTagAttribute(t *testing.T) {
	tests := map[string]types.Attribute{
		"Rookie Year":      types.AttrRookieYear,
		"Rookie Premiere":  types.AttrRookie,
		"Championship":     types.AttrChampionship,
		"MVP Year":         types.AttrMVPYear,
		"Playoffs":         types.AttrPlayoffs,
		"challenge-reward": types.AttrChallengeReward,
		"Autographed":      types.AttrAutographed,
	}
	for tag, want := range tests {
		got, ok := tagAttribute(tag)
		require.True(t, ok, tag)
		assert.Equal(t, want, got, tag)
	}
	_, ok := tagAttribute("Top Shot Debut")
	assert.False(t, ok)
}

func TestNormalizeProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("serial stays within circulation", prop.ForAll(
		func(serial, circulation int) bool {
			raw := map[string]interface{}{
				"id":                  "1",
				"serialNumber":        float64(serial),
				"numMomentsInEdition": float64(circulation),
			}
			m := Normalize(raw, Inputs{Now: now})
			if m.TotalCirculation == 0 {
				return true
			}
			return m.SerialNumber >= 1 && m.SerialNumber <= m.TotalCirculation
		},
		gen.IntRange(-100, 100000),
		gen.IntRange(0, 60000),
	))

	properties.Property("performance fields are finite", prop.ForAll(
		func(purchase, current float64, days int) bool {
			bought := now.AddDate(0, 0, -days)
			m := Normalize(map[string]interface{}{"id": "1"}, Inputs{
				Now:           now,
				PurchasePrice: purchase,
				PurchaseDate:  &bought,
				Snapshot:      &types.MarketSnapshot{CurrentPrice: current},
			})
			for _, v := range []float64{m.GainLoss, m.GainLossPercentage, m.AnnualizedROI, m.OpportunityScore, m.TrueValue} {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return false
				}
			}
			return m.OpportunityScore >= 0 && m.OpportunityScore <= 100
		},
		gen.Float64Range(0, 10000),
		gen.Float64Range(0, 10000),
		gen.IntRange(0, 3000),
	))

	properties.TestingRun(t)
}
