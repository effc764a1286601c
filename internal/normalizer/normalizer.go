// Package normalizer maps heterogeneous chain and metadata payloads onto the
// canonical Moment record. Every field has a default; nothing is dropped for
// missing input.
package normalizer

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/moment-tracker/internal/types"
)

// Acquisition methods
const (
	AcquiredByPurchase = "purchase"
	AcquiredByMint     = "mint"
	AcquiredByTransfer = "transfer"
	AcquiredUnknown    = "unknown"
)

// Options holds the normalizer tuning constants
type Options struct {
	// LowSerialMax is the highest serial tagged low_serial
	LowSerialMax int
	// AnnualizedROICap bounds annualized ROI (percent) so short holdings
	// cannot produce overflow
	AnnualizedROICap float64
	// OpportunityBase is the score of a fairly priced moment with average liquidity
	OpportunityBase float64
	// DiscountWeight scales the discount to true value (percent) into the score
	DiscountWeight float64
	// LiquidityWeight scales liquidity above or below 50 into the score
	LiquidityWeight  float64
	ImageURLTemplate string
	VideoURLTemplate string
}

// DefaultOptions returns the default tuning
func DefaultOptions() Options {
	return Options{
		LowSerialMax:     10,
		AnnualizedROICap: 10000,
		OpportunityBase:  50,
		DiscountWeight:   2.5,
		LiquidityWeight:  0.1,
		ImageURLTemplate: "https://assets.nbatopshot.com/media/%s/image?width=500",
		VideoURLTemplate: "https://assets.nbatopshot.com/media/%s/video",
	}
}

// Inputs carries what the payload itself cannot know
type Inputs struct {
	Owner             string
	PurchasePrice     float64
	PurchaseDate      *time.Time
	Marketplace       string
	AcquisitionMethod string
	Snapshot          *types.MarketSnapshot
	Now               time.Time
}

// Normalizer builds Moment records
type Normalizer struct {
	opts Options
}

// New creates a normalizer
func New(opts Options) *Normalizer {
	return &Normalizer{opts: opts}
}

var defaultNormalizer = New(DefaultOptions())

// Normalize builds a Moment with the default options
func Normalize(raw map[string]interface{}, in Inputs) types.Moment {
	return defaultNormalizer.Normalize(raw, in)
}

// Normalize builds a Moment from raw and in
func (n *Normalizer) Normalize(raw map[string]interface{}, in Inputs) types.Moment {
	if raw == nil {
		raw = map[string]interface{}{}
	}
	if in.Now.IsZero() {
		in.Now = time.Now()
	}

	m := types.Moment{
		ID:               fields.id.str(raw),
		SerialNumber:     fields.serial.integer(raw),
		TotalCirculation: fields.circulation.integer(raw),
		PlayID:           fields.playID.str(raw),
		SetID:            fields.setID.str(raw),

		PlayerName:   fields.player.str(raw),
		TeamName:     fields.team.str(raw),
		PlayType:     fields.playType.str(raw),
		PlayDate:     normalizeDate(fields.playDate.str(raw)),
		JerseyNumber: fields.jersey.integer(raw),
		Position:     fields.position.str(raw),
		Description:  fields.description.str(raw),

		Tier:    normalizeTier(fields.tier.str(raw)),
		SetName: fields.setName.str(raw),
		Series:  normalizeSeries(fields.series.str(raw)),
		Season:  fields.season.str(raw),

		Owner:             in.Owner,
		Marketplace:       in.Marketplace,
		AcquisitionMethod: in.AcquisitionMethod,
		IsLocked:          fields.locked.flag(raw),
		ImageURL:          fields.image.str(raw),
		VideoURL:          fields.video.str(raw),
	}

	if m.TotalCirculation < 0 {
		m.TotalCirculation = 0
	}
	m.SerialNumber = clampSerial(m.SerialNumber, m.TotalCirculation)
	if m.SetID != "" && m.PlayID != "" {
		m.EditionKey = m.SetID + ":" + m.PlayID
	}
	if m.Season == "" {
		m.Season = seasonOf(m.PlayDate)
	}
	m.Rarity = rarityOf(m.Tier, m.TotalCirculation)
	if m.Tier == "" {
		m.Tier = m.Rarity
	}
	if m.Owner == "" {
		m.Owner = fields.owner.str(raw)
	}
	if m.ID != "" {
		if m.ImageURL == "" && n.opts.ImageURLTemplate != "" {
			m.ImageURL = fmt.Sprintf(n.opts.ImageURLTemplate, m.ID)
		}
		if m.VideoURL == "" && n.opts.VideoURLTemplate != "" {
			m.VideoURL = fmt.Sprintf(n.opts.VideoURLTemplate, m.ID)
		}
	}

	n.applyFinancials(&m, raw, in)
	m.Attributes = n.attributesOf(m, raw)
	return m
}

func (n *Normalizer) applyFinancials(m *types.Moment, raw map[string]interface{}, in Inputs) {
	m.PurchasePrice = nonNegative(in.PurchasePrice)
	if m.PurchasePrice == 0 {
		m.PurchasePrice = nonNegative(fields.purchasePrice.float(raw))
	}
	m.PurchaseDate = in.PurchaseDate

	if snap := in.Snapshot; snap != nil {
		m.CurrentValue = nonNegative(snap.CurrentPrice)
		m.FloorPrice = nonNegative(snap.FloorPrice)
		m.CeilingPrice = nonNegative(snap.CeilingPrice)
		m.LastSalePrice = nonNegative(snap.LastSalePrice)
		m.TotalSales = snap.TotalSales
		m.Liquidity = clamp(snap.Liquidity, 0, 100)
		m.Volatility = clamp(snap.Volatility, 0, 100)
		m.MarketSource = snap.Source
	} else {
		m.CurrentValue = nonNegative(fields.currentValue.float(raw))
		m.FloorPrice = nonNegative(fields.floor.float(raw))
		m.CeilingPrice = nonNegative(fields.ceiling.float(raw))
		m.LastSalePrice = nonNegative(fields.lastSale.float(raw))
		m.TotalSales = fields.totalSales.integer(raw)
		m.MarketSource = types.SnapshotEstimate
	}
	if m.CeilingPrice < m.FloorPrice {
		m.CeilingPrice = m.FloorPrice
	}

	if m.AcquisitionMethod == "" {
		if m.PurchasePrice > 0 {
			m.AcquisitionMethod = AcquiredByPurchase
		} else {
			m.AcquisitionMethod = AcquiredUnknown
		}
	}

	if m.PurchaseDate != nil {
		days := int(in.Now.Sub(*m.PurchaseDate).Hours() / 24)
		if days > 0 {
			m.HoldingDays = days
		}
	}

	m.GainLoss = m.CurrentValue - m.PurchasePrice
	m.GainLossPercentage = GainLossPercentage(m.CurrentValue, m.PurchasePrice)
	m.AnnualizedROI = n.AnnualizedROI(m.CurrentValue, m.PurchasePrice, m.HoldingDays)
	m.TrueValue = TrueValue(m.CurrentValue, m.FloorPrice, m.CeilingPrice, m.LastSalePrice)
	m.OpportunityScore = n.OpportunityScore(m.CurrentValue, m.TrueValue, m.Liquidity)
}

// GainLossPercentage is the gain relative to cost, 0 when cost is unknown
func GainLossPercentage(current, purchase float64) float64 {
	if purchase <= 0 {
		return 0
	}
	return finite((current - purchase) / purchase * 100)
}

// AnnualizedROI compounds the holding return to a yearly rate. Holdings
// shorter than a day count as one day.
func (n *Normalizer) AnnualizedROI(current, purchase float64, holdingDays int) float64 {
	if purchase <= 0 {
		return 0
	}
	days := math.Max(1, float64(holdingDays))
	roi := (math.Pow(current/purchase, 365/days) - 1) * 100
	if math.IsNaN(roi) {
		return 0
	}
	return clamp(roi, -100, n.opts.AnnualizedROICap)
}

// TrueValue estimates fair value as the mean of the last sale, the floor and
// the floor to ceiling midpoint, skipping unknown prices. It falls back to
// the current value.
func TrueValue(current, floor, ceiling, lastSale float64) float64 {
	var sum float64
	var count int
	for _, v := range []float64{lastSale, floor, (floor + ceiling) / 2} {
		if v > 0 {
			sum += v
			count++
		}
	}
	if count == 0 {
		return current
	}
	return sum / float64(count)
}

// OpportunityScore rates a moment 0..100: higher when it trades below its
// true value and when it is liquid.
func (n *Normalizer) OpportunityScore(current, trueValue, liquidity float64) float64 {
	var discount float64
	if trueValue > 0 {
		discount = (trueValue - current) / trueValue * 100
	}
	score := n.opts.OpportunityBase + discount*n.opts.DiscountWeight + (liquidity-50)*n.opts.LiquidityWeight
	return clamp(score, 0, 100)
}

func (n *Normalizer) attributesOf(m types.Moment, raw map[string]interface{}) types.AttributeSet {
	var set types.AttributeSet
	if m.SerialNumber == 1 {
		set = set.With(types.AttrFirstSerial)
	}
	if m.TotalCirculation > 1 && m.SerialNumber == m.TotalCirculation {
		set = set.With(types.AttrLastSerial)
	}
	if m.JerseyNumber > 0 && m.SerialNumber == m.JerseyNumber {
		set = set.With(types.AttrJerseyMatch)
	}
	if m.SerialNumber > 0 && m.SerialNumber <= n.opts.LowSerialMax {
		set = set.With(types.AttrLowSerial)
	}
	if m.IsLocked {
		set = set.With(types.AttrLocked)
	}
	if fields.yearsExperience.str(raw) == "0" {
		set = set.With(types.AttrRookie)
	}
	for _, tag := range fields.tags.list(raw) {
		if attr, ok := tagAttribute(tag); ok {
			set = set.With(attr)
		}
	}
	return set
}

// tagAttribute maps a free-form tag title onto an attribute
func tagAttribute(tag string) (types.Attribute, bool) {
	key := strings.NewReplacer(" ", "", "_", "", "-", "").Replace(strings.ToLower(tag))
	switch {
	case strings.Contains(key, "rookieyear"):
		return types.AttrRookieYear, true
	case strings.Contains(key, "rookie"):
		return types.AttrRookie, true
	case strings.Contains(key, "championship"):
		return types.AttrChampionship, true
	case strings.Contains(key, "mvp"):
		return types.AttrMVPYear, true
	case strings.Contains(key, "playoff"):
		return types.AttrPlayoffs, true
	case strings.Contains(key, "challenge"):
		return types.AttrChallengeReward, true
	case strings.Contains(key, "autograph"):
		return types.AttrAutographed, true
	}
	return 0, false
}

// clampSerial keeps a serial within [1, circulation] when circulation is known
func clampSerial(serial, circulation int) int {
	if circulation <= 0 {
		if serial < 0 {
			return 0
		}
		return serial
	}
	if serial < 1 {
		return 1
	}
	if serial > circulation {
		return circulation
	}
	return serial
}

// rarityOf prefers the published tier and otherwise grades by circulation
func rarityOf(tier string, circulation int) string {
	if tier != "" {
		return tier
	}
	switch {
	case circulation <= 0:
		return "Common"
	case circulation <= 99:
		return "Legendary"
	case circulation <= 999:
		return "Rare"
	case circulation <= 4999:
		return "Fandom"
	default:
		return "Common"
	}
}

func normalizeTier(tier string) string {
	tier = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(tier)), "MOMENT_TIER_")
	if tier == "" || tier == "NONE" {
		return ""
	}
	return strings.ToUpper(tier[:1]) + strings.ToLower(tier[1:])
}

func normalizeSeries(series string) string {
	if series == "" || strings.HasPrefix(strings.ToLower(series), "series") {
		return series
	}
	return "Series " + series
}

// normalizeDate reduces timestamps to YYYY-MM-DD and leaves other text alone
func normalizeDate(s string) string {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05 -0700 MST", "2006-01-02", "01/02/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return s
}

// seasonOf derives the NBA season ("2020-21") from a play date. Seasons
// start in October.
func seasonOf(playDate string) string {
	t, err := time.Parse("2006-01-02", playDate)
	if err != nil {
		return ""
	}
	start := t.Year()
	if t.Month() < time.October {
		start--
	}
	return fmt.Sprintf("%d-%02d", start, (start+1)%100)
}

func nonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
