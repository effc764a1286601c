package synthetic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moment-tracker/internal/types"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestGenerator_DeterministicPerWallet(t *testing.T) {
	g := NewGenerator(10, nil)

	first := g.Portfolio("0x0b2a3299cc857e29", now)
	second := g.Portfolio("0x0b2a3299cc857e29", now)
	other := g.Portfolio("0x1111111111111111", now)

	assert.Equal(t, first, second)
	assert.NotEqual(t, first.Moments, other.Moments)
}

func TestGenerator_ProducesConsistentMoments(t *testing.T) {
	var provider Provider = NewGenerator(0, nil)
	p := provider.Portfolio("0xabc", now)

	require.Len(t, p.Moments, 24)
	require.NotNil(t, p.Ledger)
	assert.NotEmpty(t, p.Ledger.Purchases)

	for _, m := range p.Moments {
		assert.NotEmpty(t, m.ID)
		assert.NotEmpty(t, m.PlayerName)
		assert.Equal(t, "0xabc", m.Owner)
		assert.Equal(t, types.SnapshotEstimate, m.MarketSource)
		assert.GreaterOrEqual(t, m.SerialNumber, 1)
		assert.LessOrEqual(t, m.SerialNumber, m.TotalCirculation)
		assert.Greater(t, m.PurchasePrice, 0.0)
		assert.Greater(t, m.CurrentValue, 0.0)
		assert.GreaterOrEqual(t, m.Volatility, 0.0)
		assert.LessOrEqual(t, m.Volatility, 100.0)
		assert.GreaterOrEqual(t, m.OpportunityScore, 0.0)
		assert.LessOrEqual(t, m.OpportunityScore, 100.0)

		basis, ok := p.Ledger.CostBasis(m.ID, "")
		require.True(t, ok, m.ID)
		assert.Equal(t, m.PurchasePrice, basis.Price)
	}
}
