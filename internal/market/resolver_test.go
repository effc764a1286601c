package market

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moment-tracker/internal/circuitbreaker"
	apperrors "github.com/moment-tracker/internal/errors"
	"github.com/moment-tracker/internal/retry"
	"github.com/moment-tracker/internal/types"
)

type stubSource struct {
	calls  atomic.Int32
	quotes map[string]*Quote
	err    error
}

func (s *stubSource) Quote(_ context.Context, momentID string) (*Quote, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	q, ok := s.quotes[momentID]
	if !ok {
		return nil, apperrors.NewMarketDataUnavailableError(momentID, errors.New("unlisted"))
	}
	return q, nil
}

func TestEstimate_BoundedAroundLastSale(t *testing.T) {
	snap := Estimate("4242", 80, 0.10)

	require.NotNil(t, snap)
	assert.Equal(t, types.SnapshotEstimate, snap.Source)
	assert.GreaterOrEqual(t, snap.CurrentPrice, 72.0)
	assert.LessOrEqual(t, snap.CurrentPrice, 88.0)
	assert.Equal(t, 72.0, snap.FloorPrice)
	assert.InDelta(t, 88.0, snap.CeilingPrice, 1e-9)
	assert.Equal(t, 80.0, snap.LastSalePrice)
	assert.InDelta(t, 20.0, snap.Volatility, 1e-9)
	assert.False(t, math.IsNaN(snap.Volatility))

	assert.Equal(t, snap, Estimate("4242", 80, 0.10), "estimate must be deterministic")
}

func TestEstimate_ZeroLastSale(t *testing.T) {
	for _, v := range []float64{0, -5, math.NaN(), math.Inf(1)} {
		snap := Estimate("1", v, 0.10)
		require.NotNil(t, snap)
		assert.Zero(t, snap.CurrentPrice)
		assert.Zero(t, snap.Volatility)
		assert.Zero(t, snap.Liquidity)
	}
}

func TestLiquidityAndVolatility(t *testing.T) {
	assert.Equal(t, 0.0, Liquidity(0))
	assert.InDelta(t, 50.0, Liquidity(15), 1e-9)
	assert.Equal(t, 100.0, Liquidity(90))

	assert.Equal(t, 0.0, Volatility(10, 20, 0))
	assert.InDelta(t, 50.0, Volatility(10, 20, 20), 1e-9)
	assert.Equal(t, 100.0, Volatility(1, 500, 10))
	assert.Equal(t, 0.0, Volatility(20, 10, 15))
}

func TestFromQuote(t *testing.T) {
	snap, ok := FromQuote(&Quote{
		MomentID:      "9",
		ListingPrices: []float64{30, 12, 18},
		RecentSales:   []Sale{{Price: 10}, {Price: 20}},
		LastSalePrice: 20,
		TotalSales:    40,
		Sales30d:      6,
	})
	require.True(t, ok)
	assert.Equal(t, 12.0, snap.CurrentPrice)
	assert.Equal(t, 12.0, snap.FloorPrice)
	assert.Equal(t, 30.0, snap.CeilingPrice)
	assert.Equal(t, 15.0, snap.AveragePrice)
	assert.InDelta(t, 20.0, snap.Liquidity, 1e-9)
	assert.InDelta(t, 100.0, snap.Volatility, 1e-9)
	assert.Equal(t, types.SnapshotLive, snap.Source)

	snap, ok = FromQuote(&Quote{MomentID: "9", LastSalePrice: 25})
	require.True(t, ok)
	assert.Equal(t, 25.0, snap.CurrentPrice)
	assert.Equal(t, 25.0, snap.FloorPrice)
	assert.Equal(t, 25.0, snap.CeilingPrice)

	_, ok = FromQuote(&Quote{MomentID: "9"})
	assert.False(t, ok)
}

func TestResolver_LiveQuote(t *testing.T) {
	src := &stubSource{quotes: map[string]*Quote{
		"1": {MomentID: "1", ListingPrices: []float64{40}, LastSalePrice: 35, Sales30d: 3},
	}}
	r := NewResolver(src, DefaultConfig())

	snap := r.GetSnapshot(context.Background(), "1")
	assert.Equal(t, types.SnapshotLive, snap.Source)
	assert.Equal(t, 40.0, snap.CurrentPrice)
	assert.Equal(t, "1", snap.MomentID)

	v, ok := r.lastSales.Get("1")
	require.True(t, ok)
	assert.Equal(t, 35.0, v)
}

func TestResolver_NoLiveSnapshotFallsBackToLastSale(t *testing.T) {
	r := NewResolver(&stubSource{quotes: map[string]*Quote{}}, DefaultConfig())

	snap := r.Resolve(context.Background(), "77", 80)
	require.NotNil(t, snap)
	assert.Equal(t, types.SnapshotEstimate, snap.Source)
	assert.GreaterOrEqual(t, snap.CurrentPrice, 72.0)
	assert.LessOrEqual(t, snap.CurrentPrice, 88.0)
}

func TestResolver_RememberedSaleSeedsEstimate(t *testing.T) {
	r := NewResolver(nil, DefaultConfig())
	r.RememberSale("5", 100)

	snap := r.GetSnapshot(context.Background(), "5")
	assert.Equal(t, types.SnapshotEstimate, snap.Source)
	assert.Equal(t, 100.0, snap.LastSalePrice)

	unknown := r.GetSnapshot(context.Background(), "6")
	require.NotNil(t, unknown)
	assert.Zero(t, unknown.CurrentPrice)
}

func TestResolver_BreakerOpensOnUpstreamErrors(t *testing.T) {
	src := &stubSource{err: errors.New("connection refused")}
	cfg := DefaultConfig()
	cfg.Breaker = &circuitbreaker.Config{Name: "market-test", MaxFailures: 2, Timeout: time.Hour, HalfOpenMaxCalls: 1}
	r := NewResolver(src, cfg)

	for i := 0; i < 5; i++ {
		snap := r.Resolve(context.Background(), "1", 50)
		assert.Equal(t, types.SnapshotEstimate, snap.Source)
	}
	assert.Equal(t, int32(2), src.calls.Load())
	assert.Equal(t, circuitbreaker.StateOpen, r.breaker.GetState())
}

func TestResolver_UnlistedDoesNotTripBreaker(t *testing.T) {
	src := &stubSource{quotes: map[string]*Quote{}}
	cfg := DefaultConfig()
	cfg.Breaker = &circuitbreaker.Config{Name: "market-test", MaxFailures: 1, Timeout: time.Hour}
	r := NewResolver(src, cfg)

	for i := 0; i < 3; i++ {
		r.Resolve(context.Background(), "1", 10)
	}
	assert.Equal(t, int32(3), src.calls.Load())
	assert.Equal(t, circuitbreaker.StateClosed, r.breaker.GetState())
}

// cancellingSource honours ctx and, when cancel is set, cancels the caller
// while the quote is in flight
type cancellingSource struct {
	calls  atomic.Int32
	quote  *Quote
	cancel context.CancelFunc
}

func (s *cancellingSource) Quote(ctx context.Context, _ string) (*Quote, error) {
	s.calls.Add(1)
	if s.cancel != nil {
		s.cancel()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.quote, nil
}

func TestResolver_CallerCancellationDoesNotTripBreaker(t *testing.T) {
	src := &cancellingSource{quote: &Quote{MomentID: "1", ListingPrices: []float64{25}}}
	cfg := DefaultConfig()
	cfg.Breaker = &circuitbreaker.Config{Name: "market-test", MaxFailures: 2, Timeout: time.Hour, HalfOpenMaxCalls: 1}
	r := NewResolver(src, cfg)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 5; i++ {
		snap := r.Resolve(cancelled, "1", 0)
		require.NotNil(t, snap)
		assert.Equal(t, types.SnapshotEstimate, snap.Source)
	}
	assert.Zero(t, src.calls.Load(), "a cancelled caller must not reach the source")

	for i := 0; i < 5; i++ {
		inFlight, cancelInFlight := context.WithCancel(context.Background())
		src.cancel = cancelInFlight
		snap := r.Resolve(inFlight, "1", 0)
		assert.Equal(t, types.SnapshotEstimate, snap.Source)
	}
	assert.Equal(t, int32(5), src.calls.Load())
	assert.Equal(t, circuitbreaker.StateClosed, r.breaker.GetState())

	src.cancel = nil
	snap := r.GetSnapshot(context.Background(), "1")
	assert.Equal(t, types.SnapshotLive, snap.Source)
	assert.Equal(t, 25.0, snap.CurrentPrice)
}

func TestResolver_GetSnapshots(t *testing.T) {
	quotes := map[string]*Quote{}
	ids := make([]string, 0, 40)
	for i := 0; i < 40; i++ {
		id := fmt.Sprint(i)
		ids = append(ids, id)
		if i%2 == 0 {
			quotes[id] = &Quote{MomentID: id, ListingPrices: []float64{float64(i + 1)}}
		}
	}
	cfg := DefaultConfig()
	cfg.MaxConcurrency = 4
	r := NewResolver(&stubSource{quotes: quotes}, cfg)

	snaps, err := r.GetSnapshots(context.Background(), ids)
	require.NoError(t, err)
	require.Len(t, snaps, 40)
	for _, id := range ids {
		require.NotNil(t, snaps[id], id)
	}
	assert.Equal(t, types.SnapshotLive, snaps["0"].Source)
	assert.Equal(t, types.SnapshotEstimate, snaps["1"].Source)
}

func TestResolver_GetSnapshotsCancelled(t *testing.T) {
	r := NewResolver(&stubSource{quotes: map[string]*Quote{}}, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	snaps, err := r.GetSnapshots(ctx, []string{"1", "2", "3"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, snaps)
}

func TestHTTPSource_Quote(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/moments/100/market":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{
				"momentId": "100",
				"listings": [{"price": "45.00000000"}, {"price": 60}, {"price": "0"}],
				"sales": [
					{"price": "40.0", "timestamp": "2024-05-20T00:00:00Z"},
					{"price": "38.5", "timestamp": "2024-05-25T00:00:00Z"},
					{"price": "30.0", "timestamp": "2024-01-01T00:00:00Z"}
				],
				"totalSales": 12
			}`)
		case "/moments/500/market":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	src := NewHTTPSource(server.URL+"/", 2*time.Second, nil).WithRetry(fastRetry())
	src.now = func() time.Time { return now }

	q, err := src.Quote(context.Background(), "100")
	require.NoError(t, err)
	assert.Equal(t, []float64{45, 60}, q.ListingPrices)
	assert.Len(t, q.RecentSales, 3)
	assert.Equal(t, 38.5, q.LastSalePrice)
	assert.Equal(t, 2, q.Sales30d)
	assert.Equal(t, 12, q.TotalSales)

	_, err = src.Quote(context.Background(), "404")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "MARKET_DATA_UNAVAILABLE"))

	_, err = src.Quote(context.Background(), "500")
	require.Error(t, err)
	assert.False(t, apperrors.IsCode(err, "MARKET_DATA_UNAVAILABLE"))
}

func TestHTTPSource_ThroughResolver(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	r := NewResolver(NewHTTPSource(server.URL, time.Second, nil).WithRetry(fastRetry()), DefaultConfig())
	snap := r.Resolve(context.Background(), "7", 80)
	assert.Equal(t, types.SnapshotEstimate, snap.Source)
	assert.InDelta(t, 80, snap.CurrentPrice, 8)
}

func fastRetry() *retry.RetryConfig {
	return &retry.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func TestHTTPSource_RetriesTransientFailures(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch hits.Add(1) {
		case 1:
			w.WriteHeader(http.StatusServiceUnavailable)
		case 2:
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"momentId": "77", "listings": [{"price": "45.0"}], "totalSales": 3}`)
		}
	}))
	defer server.Close()

	r := NewResolver(NewHTTPSource(server.URL, time.Second, nil).WithRetry(fastRetry()), DefaultConfig())
	snap := r.GetSnapshot(context.Background(), "77")

	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, types.SnapshotLive, snap.Source)
	assert.Equal(t, 45.0, snap.CurrentPrice)
	assert.Equal(t, circuitbreaker.StateClosed, r.breaker.GetState())
}

func TestHTTPSource_RetryBounds(t *testing.T) {
	var notFoundHits, failingHits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/moments/404/market" {
			notFoundHits.Add(1)
			http.NotFound(w, r)
			return
		}
		failingHits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	src := NewHTTPSource(server.URL, time.Second, nil).WithRetry(fastRetry())

	_, err := src.Quote(context.Background(), "404")
	assert.True(t, apperrors.IsCode(err, "MARKET_DATA_UNAVAILABLE"))
	assert.Equal(t, int32(1), notFoundHits.Load(), "an unlisted moment is not retried")

	_, err = src.Quote(context.Background(), "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, int32(3), failingHits.Load())
}

func TestHTTPSource_AttemptBoundedByTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	src := NewHTTPSource(server.URL, 50*time.Millisecond, nil).
		WithRetry(&retry.RetryConfig{MaxAttempts: 1, InitialDelay: time.Millisecond, Multiplier: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	_, err := src.Quote(ctx, "1")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second, "the source timeout must bound an attempt even under a longer ctx deadline")
}
