package types

import "time"

// PortfolioAnalytics is the full derived view of a set of moments. It holds no
// timestamps so identical inputs marshal to identical bytes.
type PortfolioAnalytics struct {
	Overview      PortfolioOverview   `json:"overview"`
	Breakdowns    PortfolioBreakdowns `json:"breakdowns"`
	Performance   PerformanceMetrics  `json:"performance"`
	Risk          RiskMetrics         `json:"risk"`
	Opportunities MarketOpportunities `json:"opportunities"`
}

// PortfolioOverview holds headline totals
type PortfolioOverview struct {
	TotalMoments         int     `json:"totalMoments"`
	TotalValue           float64 `json:"totalValue"`
	TotalAcquisitionCost float64 `json:"totalAcquisitionCost"`
	TotalProfit          float64 `json:"totalProfit"`
	ProfitPercentage     float64 `json:"profitPercentage"`
	AverageValue         float64 `json:"averageValue"`
	TopHoldingID         string  `json:"topHoldingId,omitempty"`
	TopHoldingValue      float64 `json:"topHoldingValue"`
	UniquePlayers        int     `json:"uniquePlayers"`
	UniqueTeams          int     `json:"uniqueTeams"`
	UniqueSets           int     `json:"uniqueSets"`
}

// BreakdownGroup aggregates the moments sharing one key of a dimension
type BreakdownGroup struct {
	Count            int     `json:"count"`
	Value            float64 `json:"value"`
	Percentage       float64 `json:"percentage"`
	AverageValue     float64 `json:"averageValue"`
	AcquisitionCost  float64 `json:"acquisitionCost"`
	Profit           float64 `json:"profit"`
	ProfitPercentage float64 `json:"profitPercentage"`
}

// Breakdown maps a dimension key to its group
type Breakdown map[string]BreakdownGroup

// PortfolioBreakdowns holds one breakdown per dimension
type PortfolioBreakdowns struct {
	ByRarity           Breakdown `json:"byRarity"`
	ByTeam             Breakdown `json:"byTeam"`
	ByPlayer           Breakdown `json:"byPlayer"`
	BySet              Breakdown `json:"bySet"`
	BySeries           Breakdown `json:"bySeries"`
	BySeason           Breakdown `json:"bySeason"`
	ByPlayType         Breakdown `json:"byPlayType"`
	ByTier             Breakdown `json:"byTier"`
	BySpecialAttribute Breakdown `json:"bySpecialAttribute"`
	ByAcquisitionMonth Breakdown `json:"byAcquisitionMonth"`
}

// PerformerEntry is one moment in a ranked performance list
type PerformerEntry struct {
	MomentID           string  `json:"momentId"`
	PlayerName         string  `json:"playerName"`
	CurrentValue       float64 `json:"currentValue"`
	GainLoss           float64 `json:"gainLoss"`
	GainLossPercentage float64 `json:"gainLossPercentage"`
}

// PerformanceMetrics summarizes returns across holdings and realized sales
type PerformanceMetrics struct {
	AverageROI           float64          `json:"averageRoi"`
	MedianROI            float64          `json:"medianRoi"`
	AverageAnnualizedROI float64          `json:"averageAnnualizedRoi"`
	WinRate              float64          `json:"winRate"`
	Winners              int              `json:"winners"`
	Losers               int              `json:"losers"`
	AverageHoldingDays   float64          `json:"averageHoldingDays"`
	RealizedGain         float64          `json:"realizedGain"`
	RealizedSales        int              `json:"realizedSales"`
	BestPerformers       []PerformerEntry `json:"bestPerformers"`
	WorstPerformers      []PerformerEntry `json:"worstPerformers"`
}

// RiskLevel buckets the overall risk score
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// RiskMetrics holds portfolio risk measures. Percent-scaled measures lie in [0, 100].
type RiskMetrics struct {
	ConcentrationRisk  float64   `json:"concentrationRisk"`
	VolatilityRisk     float64   `json:"volatilityRisk"`
	LiquidityRisk      float64   `json:"liquidityRisk"`
	Diversification    float64   `json:"diversification"`
	PlayerDiversity    float64   `json:"playerDiversity"`
	TeamDiversity      float64   `json:"teamDiversity"`
	SetDiversity       float64   `json:"setDiversity"`
	RiskAdjustedReturn float64   `json:"riskAdjustedReturn"`
	ValueAtRisk95      float64   `json:"valueAtRisk95"`
	SharpeRatio        float64   `json:"sharpeRatio"`
	SortinoRatio       float64   `json:"sortinoRatio"`
	CalmarRatio        float64   `json:"calmarRatio"`
	OverallRiskScore   float64   `json:"overallRiskScore"`
	RiskLevel          RiskLevel `json:"riskLevel"`
}

// OpportunityEntry is one moment flagged as an opportunity
type OpportunityEntry struct {
	MomentID         string  `json:"momentId"`
	PlayerName       string  `json:"playerName"`
	CurrentValue     float64 `json:"currentValue"`
	TrueValue        float64 `json:"trueValue"`
	OpportunityScore float64 `json:"opportunityScore"`
	Spread           float64 `json:"spread"` // |current - true| / true
}

// MarketOpportunities lists moments that look mispriced
type MarketOpportunities struct {
	Undervalued          []OpportunityEntry `json:"undervalued"`
	Overvalued           []OpportunityEntry `json:"overvalued"`
	GoodDeals            []OpportunityEntry `json:"goodDeals"`
	SellingOpportunities []OpportunityEntry `json:"sellingOpportunities"`
	Arbitrage            []OpportunityEntry `json:"arbitrage"`
}

// PortfolioReport is the envelope served to consumers. DataSource tells
// whether the content is live, a cached live result, or illustrative sample
// data.
type PortfolioReport struct {
	RequestID   string             `json:"requestId"`
	Wallet      string             `json:"wallet"`
	DataSource  DataSource         `json:"dataSource"`
	GeneratedAt time.Time          `json:"generatedAt"`
	Moments     []Moment           `json:"moments"`
	Analytics   PortfolioAnalytics `json:"analytics"`
}
