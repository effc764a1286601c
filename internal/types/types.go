// Package types provides common type definitions for the moment portfolio engine.
package types

import "time"

// TransactionType represents what a chain transaction did to a moment
type TransactionType string

const (
	// TxPurchase represents a marketplace purchase
	TxPurchase TransactionType = "purchase"
	// TxSale represents a marketplace sale
	TxSale TransactionType = "sale"
	// TxMint represents a newly minted moment
	TxMint TransactionType = "mint"
	// TxTransfer represents any other movement between accounts
	TxTransfer TransactionType = "transfer"
	// TxList represents a marketplace listing
	TxList TransactionType = "list"
	// TxWithdraw represents a withdrawal from a collection or listing
	TxWithdraw TransactionType = "withdraw"
	// TxDeposit represents a deposit into a collection
	TxDeposit TransactionType = "deposit"
)

// DataSource labels where a response came from
type DataSource string

const (
	// SourceLive represents data fetched from the chain and market just now
	SourceLive DataSource = "live"
	// SourceCached represents a previously computed live response
	SourceCached DataSource = "cached"
	// SourceSample represents illustrative synthetic data
	SourceSample DataSource = "sample"
)

// SnapshotSource labels how a market snapshot was obtained
type SnapshotSource string

const (
	// SnapshotLive represents a quote from the live market source
	SnapshotLive SnapshotSource = "live"
	// SnapshotEstimate represents a deterministic estimate from the last known sale
	SnapshotEstimate SnapshotSource = "estimate"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// Transaction is a normalized, wallet-relative view of one chain transaction.
// Optional fields are nil when the payload did not carry them.
type Transaction struct {
	Hash        string            `json:"hash"`
	Type        TransactionType   `json:"type"`
	BlockHeight uint64            `json:"blockHeight"`
	Timestamp   time.Time         `json:"timestamp"`
	MomentID    *string           `json:"momentId,omitempty"`
	Price       *float64          `json:"price,omitempty"`
	Buyer       *string           `json:"buyer,omitempty"`
	Seller      *string           `json:"seller,omitempty"`
	From        *string           `json:"from,omitempty"`
	To          *string           `json:"to,omitempty"`
	Marketplace *string           `json:"marketplace,omitempty"`
	EventTypes  []string          `json:"eventTypes"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// PurchaseRecord is one acquisition of a moment by the wallet
type PurchaseRecord struct {
	MomentID        string    `json:"momentId"`
	TransactionHash string    `json:"transactionHash"`
	Price           float64   `json:"price"`
	Date            time.Time `json:"date"`
	Seller          string    `json:"seller,omitempty"`
	Marketplace     string    `json:"marketplace,omitempty"`
}

// SaleRecord is one disposal of a moment by the wallet
type SaleRecord struct {
	MomentID        string    `json:"momentId"`
	TransactionHash string    `json:"transactionHash"`
	Price           float64   `json:"price"`
	Date            time.Time `json:"date"`
	Buyer           string    `json:"buyer,omitempty"`
	Marketplace     string    `json:"marketplace,omitempty"`
}

// MarketSnapshot is the resolved market view of a single moment. Every numeric
// field is finite and non-negative.
type MarketSnapshot struct {
	MomentID      string         `json:"momentId"`
	CurrentPrice  float64        `json:"currentPrice"`
	FloorPrice    float64        `json:"floorPrice"`
	CeilingPrice  float64        `json:"ceilingPrice"`
	AveragePrice  float64        `json:"averagePrice"`
	LastSalePrice float64        `json:"lastSalePrice"`
	TotalSales    int            `json:"totalSales"`
	Sales30d      int            `json:"sales30d"`
	Liquidity     float64        `json:"liquidity"`  // 0-100
	Volatility    float64        `json:"volatility"` // 0-100
	Source        SnapshotSource `json:"source"`
}

// Moment is the canonical record of one held collectible
type Moment struct {
	// Identity
	ID               string `json:"id"`
	SerialNumber     int    `json:"serialNumber"`
	TotalCirculation int    `json:"totalCirculation"`
	PlayID           string `json:"playId"`
	SetID            string `json:"setId"`
	EditionKey       string `json:"editionKey"`

	// Subject
	PlayerName   string `json:"playerName"`
	TeamName     string `json:"teamName"`
	PlayType     string `json:"playType"`
	PlayDate     string `json:"playDate"`
	JerseyNumber int    `json:"jerseyNumber"`
	Position     string `json:"position"`
	Description  string `json:"description"`

	// Classification
	Rarity  string `json:"rarity"`
	Tier    string `json:"tier"`
	SetName string `json:"setName"`
	Series  string `json:"series"`
	Season  string `json:"season"`

	// Financials
	PurchasePrice float64    `json:"purchasePrice"`
	PurchaseDate  *time.Time `json:"purchaseDate,omitempty"`
	CurrentValue  float64    `json:"currentValue"`
	FloorPrice    float64    `json:"floorPrice"`
	CeilingPrice  float64    `json:"ceilingPrice"`
	LastSalePrice float64    `json:"lastSalePrice"`
	TotalSales    int        `json:"totalSales"`

	// Performance
	GainLoss           float64 `json:"gainLoss"`
	GainLossPercentage float64 `json:"gainLossPercentage"`
	AnnualizedROI      float64 `json:"annualizedRoi"`
	HoldingDays        int     `json:"holdingDays"`

	// Per-asset analytics
	Volatility       float64 `json:"volatility"`
	Liquidity        float64 `json:"liquidity"`
	OpportunityScore float64 `json:"opportunityScore"`
	TrueValue        float64 `json:"trueValue"`

	Attributes AttributeSet `json:"attributes"`

	// Provenance
	Owner             string         `json:"owner"`
	Marketplace       string         `json:"marketplace,omitempty"`
	AcquisitionMethod string         `json:"acquisitionMethod"`
	IsLocked          bool           `json:"isLocked"`
	ImageURL          string         `json:"imageUrl,omitempty"`
	VideoURL          string         `json:"videoUrl,omitempty"`
	MarketSource      SnapshotSource `json:"marketSource"`
}
