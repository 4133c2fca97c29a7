package strategy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skipper/internal/money"
)

func TestLoadFilePrices(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.yaml")
	require.NoError(t, os.WriteFile(path, []byte("aapl: [170.10, 171.20, 172.05]\nMSFT: [400.00]\n"), 0o644))

	p, err := LoadFilePrices(path)
	require.NoError(t, err)
	ctx := context.Background()

	// Symbols are case-insensitive; the latest close is the quote.
	last, err := p.LastPriceCents(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, money.Cents(17205), last)

	hist, err := p.History(ctx, "aapl", 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{171.20, 172.05}, hist)

	// Asking for more than exists returns what's there.
	hist, err = p.History(ctx, "MSFT", 30)
	require.NoError(t, err)
	assert.Equal(t, []float64{400.00}, hist)

	_, err = p.LastPriceCents(ctx, "GHOST")
	assert.Error(t, err)
	_, err = p.History(ctx, "GHOST", 5)
	assert.Error(t, err)
}

func TestHistoryReturnsCopy(t *testing.T) {
	p := NewStaticPrices(map[string][]float64{"AAPL": {100, 101, 102}})
	ctx := context.Background()

	hist, err := p.History(ctx, "AAPL", 0)
	require.NoError(t, err)
	hist[0] = -1

	fresh, err := p.History(ctx, "AAPL", 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 101, 102}, fresh)
}
