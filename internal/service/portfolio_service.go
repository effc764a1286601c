// Package service wires the chain client, extractor, ledger, market resolver,
// normalizer and analytics engine into the consumer operations.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/moment-tracker/internal/analytics"
	"github.com/moment-tracker/internal/chain"
	apperrors "github.com/moment-tracker/internal/errors"
	"github.com/moment-tracker/internal/extractor"
	"github.com/moment-tracker/internal/ledger"
	"github.com/moment-tracker/internal/logging"
	"github.com/moment-tracker/internal/normalizer"
	"github.com/moment-tracker/internal/storage"
	"github.com/moment-tracker/internal/synthetic"
	"github.com/moment-tracker/internal/types"
)

// Dependency interfaces, satisfied by the concrete chain, market and storage types

// ChainReader reads scripts, account history and events from the chain
type ChainReader interface {
	ExecuteScript(ctx context.Context, script string, args []chain.Argument) (interface{}, error)
	GetAccountTransactions(ctx context.Context, address string) ([]chain.RawTransaction, error)
	GetEventsByType(ctx context.Context, eventType string, startHeight, endHeight uint64) ([]chain.RawEvent, error)
	GetLatestBlockHeight(ctx context.Context) (uint64, error)
}

// SnapshotResolver resolves market snapshots. Snapshots are never nil.
type SnapshotResolver interface {
	RememberSale(momentID string, price float64)
	GetSnapshots(ctx context.Context, ids []string) (map[string]*types.MarketSnapshot, error)
}

// LedgerStore persists ledgers across requests
type LedgerStore interface {
	Save(ctx context.Context, l *ledger.Ledger) error
	Load(ctx context.Context, wallet string) (*ledger.Ledger, error)
}

// TransactionArchive keeps normalized transactions for later analysis
type TransactionArchive interface {
	BatchInsert(ctx context.Context, wallet string, txs []*types.Transaction) error
}

// ResponseCache stores computed responses with a TTL
type ResponseCache interface {
	GenerateCacheKey(keyType storage.CacheKeyType, params ...string) string
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
}

// Dependencies groups the collaborators of PortfolioService. Chain, Resolver
// and Engine are required; the rest are optional.
type Dependencies struct {
	Chain      ChainReader
	Resolver   SnapshotResolver
	Normalizer *normalizer.Normalizer
	Engine     *analytics.Engine
	Sample     synthetic.Provider
	Ledgers    LedgerStore
	Archive    TransactionArchive
	Cache      ResponseCache
}

// Config tunes PortfolioService
type Config struct {
	EventWindow     uint64   // sealed blocks scanned per event query
	EventTypes      []string // queried when the caller names none
	SampleFallback  bool
	CostBasisPolicy ledger.CostBasisPolicy
	Now             func() time.Time
}

// PortfolioService serves moments, transactions, events and analytics for a wallet
type PortfolioService struct {
	deps Dependencies
	cfg  Config
}

// NewPortfolioService creates a new portfolio service
func NewPortfolioService(deps Dependencies, cfg Config) *PortfolioService {
	if deps.Normalizer == nil {
		deps.Normalizer = normalizer.New(normalizer.DefaultOptions())
	}
	if deps.Engine == nil {
		deps.Engine = analytics.NewEngine(analytics.DefaultParams(), cfg.CostBasisPolicy)
	}
	if cfg.CostBasisPolicy == "" {
		cfg.CostBasisPolicy = ledger.PolicyFirstPurchase
	}
	if cfg.EventWindow == 0 {
		cfg.EventWindow = 250
	}
	if len(cfg.EventTypes) == 0 {
		cfg.EventTypes = extractor.DefaultEventTypes
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &PortfolioService{deps: deps, cfg: cfg}
}

// holdings is the live state of one wallet gathered from chain and market
type holdings struct {
	wallet  string
	moments []types.Moment
	ledger  *ledger.Ledger
}

// GetComprehensiveMoments returns the normalized moments held by wallet. A
// wallet without a collection yields an empty slice.
func (s *PortfolioService) GetComprehensiveMoments(ctx context.Context, wallet string) ([]types.Moment, error) {
	h, err := s.collect(ctx, wallet)
	if err != nil {
		return nil, err
	}
	return h.moments, nil
}

// CalculateComprehensivePortfolioAnalytics computes analytics for moments. l
// may be nil, in which case realized gains are zero.
func (s *PortfolioService) CalculateComprehensivePortfolioAnalytics(moments []types.Moment, l *ledger.Ledger) types.PortfolioAnalytics {
	return s.deps.Engine.Compute(moments, l)
}

// GetMarketDataForMoments resolves a snapshot for every distinct id. The
// result is all-or-nothing: cancellation returns an error and no map.
func (s *PortfolioService) GetMarketDataForMoments(ctx context.Context, ids []string) (map[string]*types.MarketSnapshot, error) {
	ids = lo.Uniq(lo.Compact(ids))
	if len(ids) == 0 {
		return map[string]*types.MarketSnapshot{}, nil
	}
	return s.deps.Resolver.GetSnapshots(ctx, ids)
}

// GetAccountTransactionHistory returns the wallet-relative transactions of
// wallet. Only retry-exhausted chain failures are returned.
func (s *PortfolioService) GetAccountTransactionHistory(ctx context.Context, wallet string) ([]*types.Transaction, error) {
	normalized, err := normalizeWallet(wallet)
	if err != nil {
		return nil, err
	}
	return s.transactions(ctx, normalized)
}

// GetTopShotEvents returns wallet-relevant transactions assembled from the
// most recent EventWindow sealed blocks of each event type. No types means
// the configured defaults.
func (s *PortfolioService) GetTopShotEvents(ctx context.Context, wallet string, eventTypes []string) ([]*types.Transaction, error) {
	normalized, err := normalizeWallet(wallet)
	if err != nil {
		return nil, err
	}
	eventTypes = lo.Uniq(lo.Compact(eventTypes))
	if len(eventTypes) == 0 {
		eventTypes = s.cfg.EventTypes
	}

	latest, err := s.deps.Chain.GetLatestBlockHeight(ctx)
	if err != nil {
		return nil, err
	}
	start := uint64(0)
	if latest >= s.cfg.EventWindow {
		start = latest - s.cfg.EventWindow + 1
	}

	perType := make([][]chain.RawEvent, len(eventTypes))
	g, gctx := errgroup.WithContext(ctx)
	for i, eventType := range eventTypes {
		g.Go(func() error {
			events, err := s.deps.Chain.GetEventsByType(gctx, eventType, start, latest)
			if err != nil {
				return err
			}
			perType[i] = lo.Filter(events, func(ev chain.RawEvent, _ int) bool {
				return ev.Payload == nil || extractor.IsRelevant(ev, normalized)
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	raws := extractor.GroupEvents(lo.Flatten(perType))
	return extractor.NormalizeTransactions(ctx, raws, normalized), nil
}

func (s *PortfolioService) transactions(ctx context.Context, wallet string) ([]*types.Transaction, error) {
	raws, err := s.deps.Chain.GetAccountTransactions(ctx, wallet)
	if err != nil {
		return nil, err
	}
	txs := extractor.NormalizeTransactions(ctx, raws, wallet)

	if s.deps.Archive != nil && len(txs) > 0 {
		if err := s.deps.Archive.BatchInsert(ctx, wallet, txs); err != nil {
			logging.FromContext(ctx).WithError(err).Warn("Failed to archive transactions")
		}
	}
	return txs, nil
}

// collect gathers the collection and the transaction history concurrently,
// then resolves market data and normalizes every held moment
func (s *PortfolioService) collect(ctx context.Context, wallet string) (*holdings, error) {
	normalized, err := normalizeWallet(wallet)
	if err != nil {
		return nil, err
	}
	logger := logging.FromContext(ctx).WithField("wallet", normalized)

	var (
		collection []map[string]interface{}
		txs        []*types.Transaction
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		collection, err = s.fetchCollection(gctx, normalized)
		if errors.Is(err, apperrors.ErrNoCollectionFound) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		var err error
		txs, err = s.transactions(gctx, normalized)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	l := s.buildLedger(ctx, normalized, txs)
	h := &holdings{wallet: normalized, moments: []types.Moment{}, ledger: l}
	if len(collection) == 0 {
		logger.Info("Wallet holds no moments")
		return h, nil
	}

	now := s.cfg.Now()
	ids := make([]string, len(collection))
	for i, raw := range collection {
		ids[i] = s.deps.Normalizer.Normalize(raw, normalizer.Inputs{Now: now}).ID
	}
	snapshots, err := s.GetMarketDataForMoments(ctx, ids)
	if err != nil {
		return nil, err
	}

	acquisitions := acquisitionsOf(txs)
	for i, raw := range collection {
		in := normalizer.Inputs{
			Owner:             normalized,
			AcquisitionMethod: acquisitions[ids[i]],
			Snapshot:          snapshots[ids[i]],
			Now:               now,
		}
		if basis, ok := l.CostBasis(ids[i], s.cfg.CostBasisPolicy); ok {
			date := basis.Date
			in.PurchasePrice = basis.Price
			in.PurchaseDate = &date
			in.Marketplace = basis.Marketplace
			in.AcquisitionMethod = normalizer.AcquiredByPurchase
		}
		h.moments = append(h.moments, s.deps.Normalizer.Normalize(raw, in))
	}

	logger.WithField("moments", len(h.moments)).Debug("Collected moments")
	return h, nil
}

// fetchCollection runs the collection script. ErrNoCollectionFound is
// returned when the account holds nothing or has no collection.
func (s *PortfolioService) fetchCollection(ctx context.Context, wallet string) ([]map[string]interface{}, error) {
	result, err := s.deps.Chain.ExecuteScript(ctx, chain.CollectionScript, []chain.Argument{chain.AddressArg(wallet)})
	if err != nil {
		return nil, err
	}
	items, _ := result.([]interface{})
	collection := lo.FilterMap(items, func(item interface{}, _ int) (map[string]interface{}, bool) {
		raw, ok := item.(map[string]interface{})
		return raw, ok
	})
	if len(collection) == 0 {
		return nil, apperrors.ErrNoCollectionFound
	}
	return collection, nil
}

// buildLedger merges the stored ledger with the one derived from txs and
// feeds the latest recorded price of each moment to the resolver
func (s *PortfolioService) buildLedger(ctx context.Context, wallet string, txs []*types.Transaction) *ledger.Ledger {
	l := ledger.Build(wallet, txs)
	logger := logging.FromContext(ctx)

	if s.deps.Ledgers != nil {
		stored, err := s.deps.Ledgers.Load(ctx, wallet)
		if err != nil {
			logger.WithError(err).Warn("Failed to load stored ledger")
		} else {
			l = stored.Merge(l)
		}
		if err := s.deps.Ledgers.Save(ctx, l); err != nil {
			logger.WithError(err).Warn("Failed to save ledger")
		}
	}

	for momentID, price := range l.LatestPrices() {
		s.deps.Resolver.RememberSale(momentID, price)
	}
	return l
}

// acquisitionsOf infers how each moment reached the wallet when no purchase
// explains it. The latest qualifying transaction wins.
func acquisitionsOf(txs []*types.Transaction) map[string]string {
	out := make(map[string]string)
	for _, tx := range txs {
		if tx.MomentID == nil {
			continue
		}
		switch tx.Type {
		case types.TxMint:
			out[*tx.MomentID] = normalizer.AcquiredByMint
		case types.TxDeposit, types.TxTransfer:
			out[*tx.MomentID] = normalizer.AcquiredByTransfer
		case types.TxPurchase:
			out[*tx.MomentID] = normalizer.AcquiredByPurchase
		}
	}
	return out
}

func normalizeWallet(wallet string) (string, error) {
	normalized, err := chain.NormalizeAddress(wallet)
	if err != nil {
		return "", apperrors.NewInvalidAddressError(wallet)
	}
	return normalized, nil
}
