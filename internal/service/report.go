package service

import (
	"context"

	"github.com/google/uuid"

	apperrors "github.com/moment-tracker/internal/errors"
	"github.com/moment-tracker/internal/logging"
	"github.com/moment-tracker/internal/metrics"
	"github.com/moment-tracker/internal/storage"
	"github.com/moment-tracker/internal/types"
)

// GetPortfolioReport returns the moments and analytics of wallet. A cached
// live report is served while it lives; otherwise the report is computed
// live. When the chain cannot be read the report falls back to sample data
// if enabled. DataSource labels which path produced the report.
func (s *PortfolioService) GetPortfolioReport(ctx context.Context, wallet string) (*types.PortfolioReport, error) {
	normalized, err := normalizeWallet(wallet)
	if err != nil {
		return nil, err
	}
	requestID := logging.RequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	logger := logging.FromContext(ctx).WithField("wallet", normalized)

	if cached, ok := s.cachedReport(ctx, normalized); ok {
		cached.RequestID = requestID
		cached.DataSource = types.SourceCached
		metrics.ReportRequests.WithLabelValues(string(types.SourceCached)).Inc()
		return cached, nil
	}

	h, err := s.collect(ctx, normalized)
	if err == nil {
		report := &types.PortfolioReport{
			RequestID:   requestID,
			Wallet:      normalized,
			DataSource:  types.SourceLive,
			GeneratedAt: s.cfg.Now().UTC(),
			Moments:     h.moments,
			Analytics:   s.CalculateComprehensivePortfolioAnalytics(h.moments, h.ledger),
		}
		s.storeReport(ctx, report)
		metrics.ReportRequests.WithLabelValues(string(types.SourceLive)).Inc()
		return report, nil
	}

	// caller cancellation and non-chain failures are never masked
	if ctx.Err() != nil || !apperrors.IsChainQueryError(err) {
		return nil, err
	}
	if !s.cfg.SampleFallback || s.deps.Sample == nil {
		return nil, err
	}

	logger.WithError(err).Warn("Live data unavailable, serving sample portfolio")
	now := s.cfg.Now().UTC()
	sample := s.deps.Sample.Portfolio(normalized, now)
	metrics.ReportRequests.WithLabelValues(string(types.SourceSample)).Inc()
	return &types.PortfolioReport{
		RequestID:   requestID,
		Wallet:      normalized,
		DataSource:  types.SourceSample,
		GeneratedAt: now,
		Moments:     sample.Moments,
		Analytics:   s.CalculateComprehensivePortfolioAnalytics(sample.Moments, sample.Ledger),
	}, nil
}

func (s *PortfolioService) cachedReport(ctx context.Context, wallet string) (*types.PortfolioReport, bool) {
	if s.deps.Cache == nil {
		return nil, false
	}
	var report types.PortfolioReport
	found, err := s.deps.Cache.Get(ctx, s.deps.Cache.GenerateCacheKey(storage.CacheKeyReport, wallet), &report)
	if err != nil {
		logging.FromContext(ctx).WithError(err).Warn("Failed to read cached report")
		return nil, false
	}
	if !found || report.DataSource != types.SourceLive {
		return nil, false
	}
	return &report, true
}

// storeReport caches live reports only; last write wins
func (s *PortfolioService) storeReport(ctx context.Context, report *types.PortfolioReport) {
	if s.deps.Cache == nil || report.DataSource != types.SourceLive {
		return
	}
	key := s.deps.Cache.GenerateCacheKey(storage.CacheKeyReport, report.Wallet)
	if err := s.deps.Cache.Set(ctx, key, report); err != nil {
		logging.FromContext(ctx).WithError(err).Warn("Failed to cache report")
	}
}
