package storage

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/moment-tracker/internal/chain"
	apperrors "github.com/moment-tracker/internal/errors"
	"github.com/moment-tracker/internal/ledger"
	"github.com/moment-tracker/internal/types"
)

// LedgerRepository persists purchase and sale records in Postgres
type LedgerRepository struct {
	db *PostgresDB
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *PostgresDB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Save stores every record of l. Records already stored are left untouched,
// so saving the same ledger twice is a no-op.
func (r *LedgerRepository) Save(ctx context.Context, l *ledger.Ledger) error {
	if l == nil || len(l.Purchases)+len(l.Sales) == 0 {
		return nil
	}
	wallet, err := chain.NormalizeAddress(l.Wallet)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, p := range l.Purchases {
		batch.Queue(`
			INSERT INTO purchase_records (wallet, moment_id, transaction_hash, price, purchased_at, seller, marketplace)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (wallet, moment_id, transaction_hash) DO NOTHING`,
			wallet, p.MomentID, p.TransactionHash, p.Price, p.Date, p.Seller, p.Marketplace)
	}
	for _, s := range l.Sales {
		batch.Queue(`
			INSERT INTO sale_records (wallet, moment_id, transaction_hash, price, sold_at, buyer, marketplace)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (wallet, moment_id, transaction_hash) DO NOTHING`,
			wallet, s.MomentID, s.TransactionHash, s.Price, s.Date, s.Buyer, s.Marketplace)
	}

	results := r.db.Pool().SendBatch(ctx, batch)
	defer func() {
		_ = results.Close()
	}()

	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return apperrors.NewDatabaseError("save ledger", err)
		}
	}
	return nil
}

// Load returns the stored ledger of wallet. A wallet with no records yields
// an empty ledger.
func (r *LedgerRepository) Load(ctx context.Context, wallet string) (*ledger.Ledger, error) {
	normalized, err := chain.NormalizeAddress(wallet)
	if err != nil {
		return nil, err
	}
	l := &ledger.Ledger{
		Wallet:    normalized,
		Purchases: []types.PurchaseRecord{},
		Sales:     []types.SaleRecord{},
	}

	rows, err := r.db.Pool().Query(ctx, `
		SELECT moment_id, transaction_hash, price::float8, purchased_at, seller, marketplace
		FROM purchase_records
		WHERE wallet = $1
		ORDER BY purchased_at, transaction_hash, moment_id`, normalized)
	if err != nil {
		return nil, apperrors.NewDatabaseError("load purchases", err)
	}
	l.Purchases, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.PurchaseRecord, error) {
		var p types.PurchaseRecord
		err := row.Scan(&p.MomentID, &p.TransactionHash, &p.Price, &p.Date, &p.Seller, &p.Marketplace)
		return p, err
	})
	if err != nil {
		return nil, apperrors.NewDatabaseError("load purchases", err)
	}

	rows, err = r.db.Pool().Query(ctx, `
		SELECT moment_id, transaction_hash, price::float8, sold_at, buyer, marketplace
		FROM sale_records
		WHERE wallet = $1
		ORDER BY sold_at, transaction_hash, moment_id`, normalized)
	if err != nil {
		return nil, apperrors.NewDatabaseError("load sales", err)
	}
	l.Sales, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.SaleRecord, error) {
		var s types.SaleRecord
		err := row.Scan(&s.MomentID, &s.TransactionHash, &s.Price, &s.Date, &s.Buyer, &s.Marketplace)
		return s, err
	})
	if err != nil {
		return nil, apperrors.NewDatabaseError("load sales", err)
	}

	return l, nil
}
