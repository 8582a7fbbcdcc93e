package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/aristath/optionseller/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVProvider_FetchChain(t *testing.T) {
	p := NewCSVProvider("testdata")

	chain, err := p.FetchChain(context.Background(), "AAPL")
	require.NoError(t, err)

	u := chain.Snapshot
	assert.Equal(t, "AAPL", u.Symbol)
	assert.Equal(t, 150.0, u.Price)
	assert.Equal(t, 0.25, u.Volatility)
	assert.Equal(t, 0.005, u.DividendYield)
	assert.True(t, u.Timestamp.Equal(time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)))
	require.NotNil(t, u.NextEarnings)
	assert.Equal(t, "2026-05-28", u.NextEarnings.Format(dateLayout))
	assert.Len(t, u.PriceHistory, 60)
	assert.Len(t, u.IVHistory, 60)

	require.Len(t, chain.Contracts, 36)
	first := chain.Contracts[0]
	assert.Equal(t, domain.Call, first.Type)
	assert.Equal(t, 130.0, first.Strike)
	assert.True(t, first.Expiration.Equal(time.Date(2026, 4, 1, 20, 0, 0, 0, time.UTC)))
	for _, c := range chain.Contracts {
		assert.True(t, c.Type.Valid())
		assert.GreaterOrEqual(t, c.Ask, c.Bid)
		assert.Greater(t, c.ImpliedVolatility, 0.0)
	}
}

func TestCSVProvider_WithoutHistory(t *testing.T) {
	chain, err := NewCSVProvider("testdata").FetchChain(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.Empty(t, chain.Snapshot.PriceHistory)
	assert.NotEmpty(t, chain.Contracts)
}

func TestCSVProvider_Unavailable(t *testing.T) {
	_, err := NewCSVProvider("testdata").FetchChain(context.Background(), "TSLA")
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = NewCSVProvider(t.TempDir()).FetchChain(context.Background(), "AAPL")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCSVProvider_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewCSVProvider("testdata").FetchChain(ctx, "AAPL")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCSVProvider_Symbols(t *testing.T) {
	symbols, err := NewCSVProvider("testdata").Symbols()
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, symbols)
}

func TestParseExpiration(t *testing.T) {
	d, err := parseExpiration("2026-04-17")
	require.NoError(t, err)
	assert.Equal(t, 20, d.Hour())

	ts, err := parseExpiration("2026-04-17T16:00:00-04:00")
	require.NoError(t, err)
	assert.True(t, ts.Equal(time.Date(2026, 4, 17, 20, 0, 0, 0, time.UTC)))

	_, err = parseExpiration("17/04/2026")
	assert.Error(t, err)
}
