package market

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"

	"github.com/moment-tracker/internal/circuitbreaker"
	apperrors "github.com/moment-tracker/internal/errors"
	"github.com/moment-tracker/internal/logging"
	"github.com/moment-tracker/internal/metrics"
	"github.com/moment-tracker/internal/types"
)

// Fallback reasons reported on the fallbacks metric
const (
	reasonNoSource     = "no_source"
	reasonCircuitOpen  = "circuit_open"
	reasonUnavailable  = "unavailable"
	reasonUpstream     = "upstream_error"
	reasonNoPriceFound = "no_price"
	reasonCancelled    = "cancelled"
)

// Config configures a Resolver
type Config struct {
	// FallbackAdjustment bounds the estimate to lastSale * (1 ± FallbackAdjustment)
	FallbackAdjustment float64
	MaxConcurrency     int
	LastSaleTTL        time.Duration
	Breaker            *circuitbreaker.Config
}

// DefaultConfig returns the resolver defaults
func DefaultConfig() Config {
	return Config{
		FallbackAdjustment: 0.10,
		MaxConcurrency:     16,
		LastSaleTTL:        24 * time.Hour,
		Breaker:            circuitbreaker.DefaultConfig("market"),
	}
}

// Resolver turns live quotes into market snapshots. It never returns a nil
// snapshot: when no quote can be had it estimates from the last known sale.
type Resolver struct {
	source    Source
	breaker   *circuitbreaker.CircuitBreaker
	lastSales *cache.Cache
	cfg       Config
}

// NewResolver creates a resolver. source may be nil, in which case every
// snapshot is an estimate.
func NewResolver(source Source, cfg Config) *Resolver {
	def := DefaultConfig()
	if cfg.FallbackAdjustment < 0 || cfg.FallbackAdjustment >= 1 {
		cfg.FallbackAdjustment = def.FallbackAdjustment
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = def.MaxConcurrency
	}
	if cfg.LastSaleTTL <= 0 {
		cfg.LastSaleTTL = def.LastSaleTTL
	}
	if cfg.Breaker == nil {
		cfg.Breaker = def.Breaker
	}
	return &Resolver{
		source:    source,
		breaker:   circuitbreaker.NewCircuitBreaker(cfg.Breaker),
		lastSales: cache.New(cfg.LastSaleTTL, cfg.LastSaleTTL*2),
		cfg:       cfg,
	}
}

// RememberSale records a known sale price so later lookups without a hint can
// still be estimated.
func (r *Resolver) RememberSale(momentID string, price float64) {
	if price > 0 && !math.IsInf(price, 0) {
		r.lastSales.Set(momentID, price, cache.DefaultExpiration)
	}
}

// GetSnapshot resolves one moment using the remembered last sale as the hint
func (r *Resolver) GetSnapshot(ctx context.Context, momentID string) *types.MarketSnapshot {
	return r.Resolve(ctx, momentID, 0)
}

// Resolve resolves one moment. lastKnownSale seeds the estimate when the live
// source has nothing; zero means use the remembered value, if any.
func (r *Resolver) Resolve(ctx context.Context, momentID string, lastKnownSale float64) *types.MarketSnapshot {
	if lastKnownSale <= 0 {
		if v, ok := r.lastSales.Get(momentID); ok {
			lastKnownSale = v.(float64)
		}
	}

	if r.source == nil {
		return r.fallback(ctx, momentID, lastKnownSale, reasonNoSource, nil)
	}
	if circuitbreaker.CallerDone(ctx) {
		return r.fallback(ctx, momentID, lastKnownSale, reasonCancelled, ctx.Err())
	}

	var quote *Quote
	err := r.breaker.Execute(ctx, func() error {
		q, err := r.source.Quote(ctx, momentID)
		if err != nil && apperrors.IsCode(err, "MARKET_DATA_UNAVAILABLE") {
			// an unlisted moment is an answer, not an upstream failure
			return nil
		}
		quote = q
		return err
	})
	switch {
	case err != nil && circuitbreaker.CallerDone(ctx):
		return r.fallback(ctx, momentID, lastKnownSale, reasonCancelled, err)
	case errors.Is(err, circuitbreaker.ErrCircuitOpen), errors.Is(err, circuitbreaker.ErrTooManyRequests):
		return r.fallback(ctx, momentID, lastKnownSale, reasonCircuitOpen, err)
	case err != nil:
		return r.fallback(ctx, momentID, lastKnownSale, reasonUpstream, err)
	case quote == nil:
		return r.fallback(ctx, momentID, lastKnownSale, reasonUnavailable, nil)
	}

	if quote.LastSalePrice > 0 {
		r.RememberSale(momentID, quote.LastSalePrice)
	} else {
		quote.LastSalePrice = lastKnownSale
	}
	snap, ok := FromQuote(quote)
	if !ok {
		return r.fallback(ctx, momentID, lastKnownSale, reasonNoPriceFound, nil)
	}
	snap.MomentID = momentID
	metrics.MarketSnapshots.WithLabelValues(string(types.SnapshotLive)).Inc()
	return snap
}

// GetSnapshots resolves every id with bounded concurrency. It fails only when
// ctx is done, and then returns no partial result.
func (r *Resolver) GetSnapshots(ctx context.Context, ids []string) (map[string]*types.MarketSnapshot, error) {
	results := make([]*types.MarketSnapshot, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.MaxConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = r.GetSnapshot(gctx, id)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make(map[string]*types.MarketSnapshot, len(ids))
	for i, id := range ids {
		out[id] = results[i]
	}
	return out, nil
}

func (r *Resolver) fallback(ctx context.Context, momentID string, lastSale float64, reason string, cause error) *types.MarketSnapshot {
	metrics.MarketFallbacks.WithLabelValues(reason).Inc()
	metrics.MarketSnapshots.WithLabelValues(string(types.SnapshotEstimate)).Inc()

	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"momentId": momentID,
		"reason":   reason,
	})
	if cause != nil {
		logger = logger.WithError(apperrors.NewMarketDataUnavailableError(momentID, cause))
	}
	logger.Debug("Using estimated market snapshot")

	return Estimate(momentID, lastSale, r.cfg.FallbackAdjustment)
}

// FromQuote derives a live snapshot from a quote. ok is false when the quote
// carries no usable price.
func FromQuote(q *Quote) (*types.MarketSnapshot, bool) {
	floor, ceiling, listingSum := 0.0, 0.0, 0.0
	for i, p := range q.ListingPrices {
		if i == 0 || p < floor {
			floor = p
		}
		if p > ceiling {
			ceiling = p
		}
		listingSum += p
	}

	saleSum := 0.0
	saleMin, saleMax := 0.0, 0.0
	for i, s := range q.RecentSales {
		if i == 0 || s.Price < saleMin {
			saleMin = s.Price
		}
		if s.Price > saleMax {
			saleMax = s.Price
		}
		saleSum += s.Price
	}

	var average float64
	switch {
	case len(q.RecentSales) > 0:
		average = saleSum / float64(len(q.RecentSales))
	case len(q.ListingPrices) > 0:
		average = listingSum / float64(len(q.ListingPrices))
	default:
		average = q.LastSalePrice
	}

	if len(q.ListingPrices) == 0 {
		floor, ceiling = saleMin, saleMax
	}

	current := floor
	if len(q.ListingPrices) == 0 {
		current = q.LastSalePrice
	}
	if current <= 0 {
		return nil, false
	}
	if floor <= 0 {
		floor = current
	}
	if ceiling < floor {
		ceiling = floor
	}

	return &types.MarketSnapshot{
		MomentID:      q.MomentID,
		CurrentPrice:  current,
		FloorPrice:    floor,
		CeilingPrice:  ceiling,
		AveragePrice:  average,
		LastSalePrice: q.LastSalePrice,
		TotalSales:    q.TotalSales,
		Sales30d:      q.Sales30d,
		Liquidity:     Liquidity(q.Sales30d),
		Volatility:    Volatility(floor, ceiling, average),
		Source:        types.SnapshotLive,
	}, true
}

// Estimate builds a snapshot from the last known sale price alone. The price
// is moved by up to ±adjustment, derived from a hash of the id so the same
// moment always gets the same estimate. A zero last sale yields all zeros.
func Estimate(momentID string, lastSale, adjustment float64) *types.MarketSnapshot {
	snap := &types.MarketSnapshot{MomentID: momentID, Source: types.SnapshotEstimate}
	if lastSale <= 0 || math.IsNaN(lastSale) || math.IsInf(lastSale, 0) {
		return snap
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(momentID))
	unit := float64(h.Sum32())/float64(math.MaxUint32)*2 - 1 // [-1, 1]

	snap.CurrentPrice = lastSale * (1 + adjustment*unit)
	snap.FloorPrice = lastSale * (1 - adjustment)
	snap.CeilingPrice = lastSale * (1 + adjustment)
	snap.AveragePrice = lastSale
	snap.LastSalePrice = lastSale
	snap.Volatility = Volatility(snap.FloorPrice, snap.CeilingPrice, snap.AveragePrice)
	return snap
}

// Liquidity maps 30-day sales to 0..100, reaching 100 at one sale a day
func Liquidity(sales30d int) float64 {
	if sales30d <= 0 {
		return 0
	}
	return math.Min(float64(sales30d)/30*100, 100)
}

// Volatility is the floor to ceiling spread relative to the average price,
// capped at 100
func Volatility(floor, ceiling, average float64) float64 {
	if average <= 0 || ceiling <= floor {
		return 0
	}
	return math.Min((ceiling-floor)/average*100, 100)
}
