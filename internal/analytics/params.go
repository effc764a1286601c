package analytics

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Params holds every threshold and scaling constant of the analytics engine.
// Returns and the risk-free rate are in percent.
type Params struct {
	RiskFreeRate      float64 `yaml:"riskFreeRate"`      // percent per holding period
	LeagueSize        int     `yaml:"leagueSize"`        // team diversity denominator
	ActiveSetCount    int     `yaml:"activeSetCount"`    // set diversity denominator
	SortinoCeiling    float64 `yaml:"sortinoCeiling"`    // Sortino when nothing lost and mean > 0
	RiskAdjustedScale float64 `yaml:"riskAdjustedScale"` // meanReturn / volatilityRisk multiplier
	VaRPercentile     float64 `yaml:"varPercentile"`     // lower tail for value at risk

	UndervaluedScore float64 `yaml:"undervaluedScore"`
	OvervaluedScore  float64 `yaml:"overvaluedScore"`
	GoodDealRatio    float64 `yaml:"goodDealRatio"`
	SellingRatio     float64 `yaml:"sellingRatio"`
	ArbitrageTopN    int     `yaml:"arbitrageTopN"`
	PerformersTopN   int     `yaml:"performersTopN"`

	ConcentrationWeight   float64 `yaml:"concentrationWeight"`
	VolatilityWeight      float64 `yaml:"volatilityWeight"`
	LiquidityWeight       float64 `yaml:"liquidityWeight"`
	DiversificationWeight float64 `yaml:"diversificationWeight"`
	LowRiskBelow          float64 `yaml:"lowRiskBelow"`
	HighRiskFrom          float64 `yaml:"highRiskFrom"`
}

// DefaultParams returns the documented defaults
func DefaultParams() Params {
	return Params{
		RiskFreeRate:      2,
		LeagueSize:        30,
		ActiveSetCount:    50,
		SortinoCeiling:    10,
		RiskAdjustedScale: 10,
		VaRPercentile:     5,

		UndervaluedScore: 70,
		OvervaluedScore:  30,
		GoodDealRatio:    0.9,
		SellingRatio:     1.1,
		ArbitrageTopN:    5,
		PerformersTopN:   5,

		ConcentrationWeight:   0.3,
		VolatilityWeight:      0.3,
		LiquidityWeight:       0.2,
		DiversificationWeight: 0.2,
		LowRiskBelow:          35,
		HighRiskFrom:          65,
	}
}

// LoadParams reads YAML overrides from path on top of the defaults. An empty
// path returns the defaults.
func LoadParams(path string) (Params, error) {
	params := DefaultParams()
	if path == "" {
		return params, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return params, fmt.Errorf("failed to read analytics params %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &params); err != nil {
		return params, fmt.Errorf("failed to parse analytics params %s: %w", path, err)
	}
	if err := params.Validate(); err != nil {
		return params, fmt.Errorf("invalid analytics params %s: %w", path, err)
	}
	return params, nil
}

// Validate rejects values that would make the metrics meaningless
func (p Params) Validate() error {
	if p.LeagueSize <= 0 || p.ActiveSetCount <= 0 {
		return fmt.Errorf("leagueSize and activeSetCount must be positive")
	}
	if p.VaRPercentile <= 0 || p.VaRPercentile >= 100 {
		return fmt.Errorf("varPercentile must be in (0, 100), got %v", p.VaRPercentile)
	}
	if p.GoodDealRatio <= 0 || p.SellingRatio <= 0 {
		return fmt.Errorf("goodDealRatio and sellingRatio must be positive")
	}
	if p.ArbitrageTopN < 0 || p.PerformersTopN < 0 {
		return fmt.Errorf("top-N sizes cannot be negative")
	}
	if p.LowRiskBelow > p.HighRiskFrom {
		return fmt.Errorf("lowRiskBelow (%v) exceeds highRiskFrom (%v)", p.LowRiskBelow, p.HighRiskFrom)
	}
	return nil
}
