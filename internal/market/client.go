// Package market resolves current pricing for moments from a live quote
// source, degrading to a deterministic estimate when no quote is available.
package market

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	apperrors "github.com/moment-tracker/internal/errors"
	"github.com/moment-tracker/internal/logging"
	"github.com/moment-tracker/internal/retry"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Source provides live market quotes keyed by moment id
type Source interface {
	Quote(ctx context.Context, momentID string) (*Quote, error)
}

// Sale is one completed marketplace sale
type Sale struct {
	Price float64
	Date  time.Time
}

// Quote is the live market view of one moment
type Quote struct {
	MomentID      string
	ListingPrices []float64
	RecentSales   []Sale
	LastSalePrice float64
	TotalSales    int
	Sales30d      int
}

type quoteResponse struct {
	MomentID string `json:"momentId"`
	Listings []struct {
		Price decimal.Decimal `json:"price"`
	} `json:"listings"`
	Sales []struct {
		Price     decimal.Decimal `json:"price"`
		Timestamp time.Time       `json:"timestamp"`
	} `json:"sales"`
	LastSalePrice decimal.Decimal `json:"lastSalePrice"`
	TotalSales    int             `json:"totalSales"`
	Sales30d      *int            `json:"sales30d"`
}

// HTTPSource reads quotes from GET {baseURL}/moments/{id}/market
type HTTPSource struct {
	client  *fasthttp.Client
	baseURL string
	timeout time.Duration
	retry   *retry.RetryConfig
	logger  *zap.Logger
	now     func() time.Time
}

// NewHTTPSource creates a live quote source
func NewHTTPSource(baseURL string, timeout time.Duration, logger *logging.Logger) *HTTPSource {
	if logger == nil {
		logger = logging.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPSource{
		client:  &fasthttp.Client{},
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		retry:   retry.DefaultRetryConfig(),
		logger:  logger.Zap().Named("MarketSource"),
		now:     time.Now,
	}
}

// WithRetry replaces the retry policy of the source
func (s *HTTPSource) WithRetry(cfg *retry.RetryConfig) *HTTPSource {
	if cfg != nil {
		s.retry = cfg
	}
	return s
}

// quoteStatusError is a failed quote exchange; status is 0 for transport errors
type quoteStatusError struct {
	status int
	err    error
}

func (e *quoteStatusError) Error() string {
	if e.status == 0 {
		return fmt.Sprintf("transport error: %v", e.err)
	}
	return fmt.Sprintf("status %d", e.status)
}

func (e *quoteStatusError) Unwrap() error { return e.err }

func isRetryableQuote(err error) bool {
	var se *quoteStatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.status == 0 || se.status == fasthttp.StatusTooManyRequests || se.status >= 500
}

// Quote fetches the live quote of one moment. A moment the market does not
// know yields a MarketDataUnavailable error. Transport errors, 429 and 5xx are
// retried with exponential backoff.
func (s *HTTPSource) Quote(ctx context.Context, momentID string) (*Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	requestURL := fmt.Sprintf("%s/moments/%s/market", s.baseURL, url.PathEscape(momentID))

	var rawBody []byte
	cfg := *s.retry
	cfg.ShouldRetry = isRetryableQuote
	result := retry.WithExponentialBackoff(ctx, &cfg, func(ctx context.Context, _ int) error {
		body, err := s.exchange(ctx, requestURL, momentID)
		if err != nil {
			return err
		}
		rawBody = body
		return nil
	})
	if !result.Success {
		if apperrors.IsCode(result.LastError, "MARKET_DATA_UNAVAILABLE") {
			return nil, result.LastError
		}
		return nil, fmt.Errorf("market quote %s failed after %d attempts: %w", momentID, result.Attempts, result.LastError)
	}

	var body quoteResponse
	if err := json.Unmarshal(rawBody, &body); err != nil {
		return nil, fmt.Errorf("failed to decode market quote %s: %w", momentID, err)
	}
	return s.toQuote(momentID, body), nil
}

// exchange performs one GET. The attempt is bounded by the earlier of the
// ctx deadline and now+timeout. fasthttp does not observe cancellation, so a
// ctx cancelled without a deadline only takes effect between attempts.
func (s *HTTPSource) exchange(ctx context.Context, requestURL, momentID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.logger.Debug("Requesting market quote", zap.String("url", requestURL))

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI(requestURL)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")

	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.client.DoDeadline(req, resp, deadline); err != nil {
		s.logger.Warn("Market quote request failed", zap.String("url", requestURL), zap.Error(err))
		return nil, &quoteStatusError{err: err}
	}

	switch status := resp.StatusCode(); {
	case status == fasthttp.StatusNotFound:
		return nil, apperrors.NewMarketDataUnavailableError(momentID, fmt.Errorf("no market for moment"))
	case status != fasthttp.StatusOK:
		s.logger.Warn("Market quote returned non-OK status",
			zap.String("url", requestURL),
			zap.Int("statusCode", status),
			zap.ByteString("responseBody", resp.Body()))
		return nil, &quoteStatusError{status: status}
	}

	// resp is released on return
	return append([]byte(nil), resp.Body()...), nil
}

func (s *HTTPSource) toQuote(momentID string, body quoteResponse) *Quote {
	q := &Quote{
		MomentID:      momentID,
		ListingPrices: make([]float64, 0, len(body.Listings)),
		RecentSales:   make([]Sale, 0, len(body.Sales)),
		LastSalePrice: body.LastSalePrice.InexactFloat64(),
		TotalSales:    body.TotalSales,
	}
	for _, l := range body.Listings {
		if l.Price.IsPositive() {
			q.ListingPrices = append(q.ListingPrices, l.Price.InexactFloat64())
		}
	}

	cutoff := s.now().AddDate(0, 0, -30)
	var latest Sale
	recent := 0
	for _, sale := range body.Sales {
		if !sale.Price.IsPositive() {
			continue
		}
		price := sale.Price.InexactFloat64()
		q.RecentSales = append(q.RecentSales, Sale{Price: price, Date: sale.Timestamp})
		if sale.Timestamp.After(cutoff) {
			recent++
		}
		if latest.Date.IsZero() || sale.Timestamp.After(latest.Date) {
			latest = Sale{Price: price, Date: sale.Timestamp}
		}
	}
	if q.LastSalePrice <= 0 {
		q.LastSalePrice = latest.Price
	}
	if body.Sales30d != nil {
		q.Sales30d = *body.Sales30d
	} else {
		q.Sales30d = recent
	}
	if q.TotalSales < len(q.RecentSales) {
		q.TotalSales = len(q.RecentSales)
	}
	return q
}
