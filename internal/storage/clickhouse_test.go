package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moment-tracker/internal/types"
)

func TestSplitSQLStatements(t *testing.T) {
	content := `-- header
CREATE TABLE a (
    x String
) ENGINE = Memory;

-- second
CREATE TABLE b (y UInt8) ENGINE = Memory;
SELECT 1`

	got := splitSQLStatements(content)
	require.Len(t, got, 3)
	assert.Equal(t, "CREATE TABLE a (\n    x String\n) ENGINE = Memory", got[0])
	assert.Equal(t, "CREATE TABLE b (y UInt8) ENGINE = Memory", got[1])
	assert.Equal(t, "SELECT 1", got[2])
}

func TestTransactionRepository_RoundTrip(t *testing.T) {
	db := openTestClickHouse(t)
	ctx := testContext(t)
	repo := NewTransactionRepository(db)

	wallet := "0x00000000000000ef"
	require.NoError(t, db.Conn().Exec(ctx, "ALTER TABLE moment_transactions DELETE WHERE wallet = ?", wallet))

	id := "42"
	price := 12.5
	buyer := wallet
	txs := []*types.Transaction{
		{
			Hash:        "0xaa",
			Type:        types.TxPurchase,
			BlockHeight: 10,
			Timestamp:   time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
			MomentID:    &id,
			Price:       &price,
			Buyer:       &buyer,
			EventTypes:  []string{"A.c1e4f4f4c4257510.TopShotMarketV3.MomentPurchased"},
		},
	}

	require.NoError(t, repo.BatchInsert(ctx, wallet, txs))

	got, err := repo.Recent(ctx, wallet, 10)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, types.TxPurchase, got[0].Type)
	require.NotNil(t, got[0].Price)
	assert.Equal(t, 12.5, *got[0].Price)
	assert.Nil(t, got[0].Seller)
}
