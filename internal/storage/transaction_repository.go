package storage

import (
	"context"
	"fmt"

	"github.com/moment-tracker/internal/chain"
	"github.com/moment-tracker/internal/types"
)

// TransactionRepository archives normalized transactions in ClickHouse
type TransactionRepository struct {
	db *ClickHouseDB
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *ClickHouseDB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// BatchInsert archives the transactions of wallet in one batch
func (r *TransactionRepository) BatchInsert(ctx context.Context, wallet string, txs []*types.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	normalized, err := chain.NormalizeAddress(wallet)
	if err != nil {
		return err
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO moment_transactions (
			wallet, hash, moment_id, type, block_height, timestamp, price,
			buyer, seller, from_address, to_address, marketplace, event_types, metadata
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, tx := range txs {
		if tx == nil {
			continue
		}
		metadata := tx.Metadata
		if metadata == nil {
			metadata = map[string]string{}
		}
		eventTypes := tx.EventTypes
		if eventTypes == nil {
			eventTypes = []string{}
		}
		err := batch.Append(
			normalized,
			chain.CanonicalTxID(tx.Hash),
			deref(tx.MomentID),
			string(tx.Type),
			tx.BlockHeight,
			tx.Timestamp,
			tx.Price,
			deref(tx.Buyer),
			deref(tx.Seller),
			deref(tx.From),
			deref(tx.To),
			deref(tx.Marketplace),
			eventTypes,
			metadata,
		)
		if err != nil {
			_ = batch.Abort()
			return fmt.Errorf("failed to append transaction %s: %w", tx.Hash, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

// Recent returns up to limit archived transactions of wallet, newest first
func (r *TransactionRepository) Recent(ctx context.Context, wallet string, limit int) ([]*types.Transaction, error) {
	normalized, err := chain.NormalizeAddress(wallet)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Conn().Query(ctx, `
		SELECT hash, moment_id, type, block_height, timestamp, price,
			buyer, seller, from_address, to_address, marketplace, event_types, metadata
		FROM moment_transactions FINAL
		WHERE wallet = ?
		ORDER BY timestamp DESC, hash
		LIMIT ?`, normalized, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []*types.Transaction
	for rows.Next() {
		var (
			tx                                     types.Transaction
			txType                                 string
			momentID, buyer, seller, from, to, mkt string
		)
		if err := rows.Scan(&tx.Hash, &momentID, &txType, &tx.BlockHeight, &tx.Timestamp, &tx.Price,
			&buyer, &seller, &from, &to, &mkt, &tx.EventTypes, &tx.Metadata); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.Type = types.TransactionType(txType)
		tx.MomentID = optional(momentID)
		tx.Buyer = optional(buyer)
		tx.Seller = optional(seller)
		tx.From = optional(from)
		tx.To = optional(to)
		tx.Marketplace = optional(mkt)
		out = append(out, &tx)
	}
	return out, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
