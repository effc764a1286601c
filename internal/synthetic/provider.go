// Package synthetic generates illustrative portfolios for the sample data
// fallback. It is the only place randomness enters the system; the output is
// seeded by wallet so repeated requests see the same sample.
package synthetic

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/moment-tracker/internal/ledger"
	"github.com/moment-tracker/internal/normalizer"
	"github.com/moment-tracker/internal/types"
)

// Provider supplies sample portfolios
type Provider interface {
	Portfolio(wallet string, now time.Time) Portfolio
}

// Portfolio is a generated set of moments with the ledger that explains
// their cost basis
type Portfolio struct {
	Moments []types.Moment
	Ledger  *ledger.Ledger
}

type player struct {
	name     string
	team     string
	jersey   int
	position string
}

var roster = []player{
	{"LeBron James", "Los Angeles Lakers", 23, "F"},
	{"Stephen Curry", "Golden State Warriors", 30, "G"},
	{"Giannis Antetokounmpo", "Milwaukee Bucks", 34, "F"},
	{"Luka Doncic", "Dallas Mavericks", 77, "G"},
	{"Nikola Jokic", "Denver Nuggets", 15, "C"},
	{"Ja Morant", "Memphis Grizzlies", 12, "G"},
	{"Jayson Tatum", "Boston Celtics", 0, "F"},
	{"Zion Williamson", "New Orleans Pelicans", 1, "F"},
	{"Devin Booker", "Phoenix Suns", 1, "G"},
	{"Anthony Edwards", "Minnesota Timberwolves", 1, "G"},
	{"Victor Wembanyama", "San Antonio Spurs", 1, "C"},
	{"Joel Embiid", "Philadelphia 76ers", 21, "C"},
}

var (
	playTypes = []string{"Dunk", "3 Pointer", "Layup", "Assist", "Block", "Handles", "Jump Shot"}
	sets      = []struct {
		name   string
		series int
		tier   string
		circ   []int
	}{
		{"Base Set", 1, "Common", []int{12000, 15000, 35000}},
		{"Metallic Gold LE", 2, "Rare", []int{149, 299, 499}},
		{"Rookie Debut", 3, "Common", []int{5000, 8000}},
		{"Holo MMXX", 2, "Legendary", []int{49, 59, 99}},
		{"Cool Cats", 1, "Rare", []int{799, 999}},
		{"Fandom", 4, "Fandom", []int{1500, 3000}},
	}
	tagPool = []string{"Rookie Year", "Playoffs", "Championship", "MVP Year", "Challenge Reward"}
)

const marketplaceName = "TopShotMarketV3"

// Generator is the seeded sample provider
type Generator struct {
	count      int
	normalizer *normalizer.Normalizer
}

// NewGenerator creates a generator producing count moments per wallet
func NewGenerator(count int, n *normalizer.Normalizer) *Generator {
	if count <= 0 {
		count = 24
	}
	if n == nil {
		n = normalizer.New(normalizer.DefaultOptions())
	}
	return &Generator{count: count, normalizer: n}
}

func seedOf(wallet string) (uint64, uint64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(wallet))
	sum := h.Sum64()
	return sum, sum ^ 0x9e3779b97f4a7c15
}

// Portfolio builds the sample portfolio of wallet. The same wallet and now
// always produce the same portfolio.
func (g *Generator) Portfolio(wallet string, now time.Time) Portfolio {
	rng := rand.New(rand.NewPCG(seedOf(wallet)))
	txs := make([]*types.Transaction, 0, g.count)
	moments := make([]types.Moment, 0, g.count)

	for i := 0; i < g.count; i++ {
		p := roster[rng.IntN(len(roster))]
		set := sets[rng.IntN(len(sets))]
		circ := set.circ[rng.IntN(len(set.circ))]
		serial := 1 + rng.IntN(circ)
		if rng.IntN(12) == 0 && p.jersey > 0 && p.jersey <= circ {
			serial = p.jersey
		}
		id := strconv.Itoa(1_000_000 + rng.IntN(40_000_000))
		playDate := now.AddDate(-rng.IntN(5), -rng.IntN(12), -rng.IntN(28))

		base := basePrice(set.tier, rng)
		purchase := round2(base * (0.6 + rng.Float64()*0.8))
		lastSale := round2(base * (0.7 + rng.Float64()*0.6))
		floor := round2(lastSale * (0.85 + rng.Float64()*0.15))
		ceiling := round2(floor * (1.1 + rng.Float64()*0.9))
		bought := now.AddDate(0, 0, -(7 + rng.IntN(900)))

		tags := make([]interface{}, 0, 2)
		for _, tag := range tagPool {
			if rng.IntN(8) == 0 {
				tags = append(tags, map[string]interface{}{"title": tag})
			}
		}

		raw := map[string]interface{}{
			"id":                  id,
			"playID":              strconv.Itoa(100 + rng.IntN(5000)),
			"setID":               strconv.Itoa(1 + rng.IntN(80)),
			"serialNumber":        strconv.Itoa(serial),
			"numMomentsInEdition": strconv.Itoa(circ),
			"setName":             set.name,
			"series":              strconv.Itoa(set.series),
			"tier":                set.tier,
			"isLocked":            rng.IntN(5) == 0,
			"tags":                tags,
			"play": map[string]interface{}{
				"FullName":             p.name,
				"TeamAtMoment":         p.team,
				"PlayType":             playTypes[rng.IntN(len(playTypes))],
				"DateOfMoment":         playDate.Format(time.RFC3339),
				"JerseyNumber":         strconv.Itoa(p.jersey),
				"PlayerPosition":       p.position,
				"TotalYearsExperience": strconv.Itoa(rng.IntN(15)),
			},
		}

		sales30d := rng.IntN(45)
		snap := &types.MarketSnapshot{
			MomentID:      id,
			CurrentPrice:  floor,
			FloorPrice:    floor,
			CeilingPrice:  ceiling,
			AveragePrice:  (floor + ceiling) / 2,
			LastSalePrice: lastSale,
			TotalSales:    sales30d + rng.IntN(500),
			Sales30d:      sales30d,
			Source:        types.SnapshotEstimate,
		}
		snap.Liquidity = math.Min(float64(sales30d)/30*100, 100)
		snap.Volatility = math.Min((ceiling-floor)/snap.AveragePrice*100, 100)

		moments = append(moments, g.normalizer.Normalize(raw, normalizer.Inputs{
			Owner:             wallet,
			PurchasePrice:     purchase,
			PurchaseDate:      &bought,
			Marketplace:       marketplaceName,
			AcquisitionMethod: normalizer.AcquiredByPurchase,
			Snapshot:          snap,
			Now:               now,
		}))

		mp := marketplaceName
		txs = append(txs, &types.Transaction{
			Hash:        fmt.Sprintf("0x%064x", rng.Uint64()),
			Type:        types.TxPurchase,
			Timestamp:   bought,
			MomentID:    &id,
			Price:       &purchase,
			Buyer:       &wallet,
			Marketplace: &mp,
		})
	}

	return Portfolio{Moments: moments, Ledger: ledger.Build(wallet, txs)}
}

func basePrice(tier string, rng *rand.Rand) float64 {
	switch tier {
	case "Legendary":
		return 800 + rng.Float64()*4000
	case "Rare":
		return 60 + rng.Float64()*400
	case "Fandom":
		return 10 + rng.Float64()*40
	default:
		return 2 + rng.Float64()*30
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
