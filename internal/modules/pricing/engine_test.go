package pricing

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/aristath/optionseller/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceParams_ReferenceCall(t *testing.T) {
	e := NewEngine(Config{})
	res, err := e.PriceParams(Params{
		Type:       domain.Call,
		Spot:       150,
		Strike:     155,
		Years:      30.0 / 365.0,
		Volatility: 0.25,
		Rate:       0.05,
	})
	require.NoError(t, err)

	// closed form gives 2.5119
	assert.InDelta(t, 2.51, res.Price, 0.01)
	assert.InDelta(t, 0.358, res.Greeks.Delta, 0.02)
	assert.Greater(t, res.Greeks.Gamma, 0.0)
	assert.Greater(t, res.Greeks.Vega, 0.0)
	assert.Less(t, res.Greeks.Theta, 0.0)
	assert.Greater(t, res.Greeks.Rho, 0.0)
	assert.False(t, res.VolatilityDegenerate)
	assert.Nil(t, res.Warning)
}

func TestPriceParams_PutCallParity(t *testing.T) {
	e := NewEngine(Config{})
	cases := []Params{
		{Spot: 150, Strike: 155, Years: 30.0 / 365.0, Volatility: 0.25, Rate: 0.05},
		{Spot: 42, Strike: 40, Years: 0.5, Volatility: 0.2, Rate: 0.1, DividendYield: 0.03},
		{Spot: 100, Strike: 60, Years: 2, Volatility: 0.8, Rate: 0.0, DividendYield: 0.01},
		{Spot: 100, Strike: 140, Years: 0.02, Volatility: 0.15, Rate: -0.005},
		{Spot: 3500, Strike: 3400, Years: 1, Volatility: 0.35, Rate: 0.04, DividendYield: 0.02},
	}
	for _, p := range cases {
		p.Type = domain.Call
		call, err := e.PriceParams(p)
		require.NoError(t, err)
		p.Type = domain.Put
		put, err := e.PriceParams(p)
		require.NoError(t, err)

		want := p.Spot*math.Exp(-p.DividendYield*p.Years) - p.Strike*math.Exp(-p.Rate*p.Years)
		assert.InDelta(t, want, call.Price-put.Price, 1e-8, "params %+v", p)
	}
}

func TestPriceParams_GreekBounds(t *testing.T) {
	e := NewEngine(Config{})
	for _, spot := range []float64{50, 90, 100, 110, 200} {
		for _, years := range []float64{1.0 / 365, 0.1, 1, 3} {
			for _, vol := range []float64{0.05, 0.3, 1.5} {
				p := Params{Spot: spot, Strike: 100, Years: years, Volatility: vol, Rate: 0.03, DividendYield: 0.01}

				p.Type = domain.Call
				call, err := e.PriceParams(p)
				require.NoError(t, err)
				assert.GreaterOrEqual(t, call.Greeks.Delta, 0.0)
				assert.LessOrEqual(t, call.Greeks.Delta, 1.0)
				assert.GreaterOrEqual(t, call.Greeks.Gamma, 0.0)
				assert.GreaterOrEqual(t, call.Greeks.Vega, 0.0)
				assert.GreaterOrEqual(t, call.Price, 0.0)

				p.Type = domain.Put
				put, err := e.PriceParams(p)
				require.NoError(t, err)
				assert.GreaterOrEqual(t, put.Greeks.Delta, -1.0)
				assert.LessOrEqual(t, put.Greeks.Delta, 0.0)
				assert.GreaterOrEqual(t, put.Greeks.Gamma, 0.0)
				assert.GreaterOrEqual(t, put.Greeks.Vega, 0.0)
				assert.InDelta(t, call.Greeks.Gamma, put.Greeks.Gamma, 1e-12)
			}
		}
	}
}

func TestPriceParams_ExpirationIsIntrinsic(t *testing.T) {
	e := NewEngine(Config{})
	tests := []struct {
		name      string
		typ       domain.OptionType
		spot      float64
		wantPrice float64
		wantDelta float64
	}{
		{"itm call", domain.Call, 150, 10, 1},
		{"otm call", domain.Call, 130, 0, 0},
		{"itm put", domain.Put, 130, 10, -1},
		{"otm put", domain.Put, 150, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.PriceParams(Params{Type: tt.typ, Spot: tt.spot, Strike: 140, Years: 0, Volatility: 0.3})
			require.NoError(t, err)
			assert.Equal(t, tt.wantPrice, res.Price)
			assert.Equal(t, tt.wantDelta, res.Greeks.Delta)
			assert.Zero(t, res.Greeks.Vega)
			assert.Zero(t, res.Greeks.Theta)
			assert.Zero(t, res.Greeks.Gamma)
		})
	}
}

func TestPriceParams_VolatilityFloor(t *testing.T) {
	e := NewEngine(Config{VolatilityFloor: 0.02})
	p := Params{Type: domain.Put, Spot: 100, Strike: 95, Years: 0.25, Volatility: 0.001, Rate: 0.02}

	low, err := e.PriceParams(p)
	require.NoError(t, err)
	assert.True(t, low.VolatilityDegenerate)
	assert.Equal(t, 0.02, low.Volatility)
	require.NotNil(t, low.Warning)
	assert.Equal(t, 0.001, low.Warning.Given)

	p.Volatility = 0.02
	atFloor, err := e.PriceParams(p)
	require.NoError(t, err)
	assert.False(t, atFloor.VolatilityDegenerate)
	assert.InDelta(t, atFloor.Price, low.Price, 1e-12)

	assert.Equal(t, DefaultVolatilityFloor, (&Engine{}).Floor())
}

func TestPriceParams_InvalidInput(t *testing.T) {
	e := NewEngine(Config{})
	base := Params{Type: domain.Call, Spot: 100, Strike: 100, Years: 0.5, Volatility: 0.2}
	tests := []struct {
		name   string
		mutate func(*Params)
		field  string
	}{
		{"zero spot", func(p *Params) { p.Spot = 0 }, "spot"},
		{"negative strike", func(p *Params) { p.Strike = -5 }, "strike"},
		{"negative time", func(p *Params) { p.Years = -0.01 }, "time_to_expiration"},
		{"nan volatility", func(p *Params) { p.Volatility = math.NaN() }, "volatility"},
		{"unknown type", func(p *Params) { p.Type = "straddle" }, "type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			tt.mutate(&p)
			_, err := e.PriceParams(p)
			var inv *domain.InvalidInputError
			require.True(t, errors.As(err, &inv))
			assert.Equal(t, tt.field, inv.Field)
		})
	}
}

func TestPrice_UsesSnapshotClock(t *testing.T) {
	e := NewEngine(Config{})
	now := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	u := domain.UnderlyingSnapshot{Symbol: "AAPL", Price: 150, Timestamp: now}
	c := domain.OptionContract{Symbol: "AAPL", Type: domain.Call, Strike: 155, Expiration: now.AddDate(0, 0, 30)}

	res, err := e.Price(u, c, 0.05, 0.25)
	require.NoError(t, err)
	assert.InDelta(t, 2.51, res.Price, 0.01)

	expired := c
	expired.Expiration = now.AddDate(0, 0, -2)
	_, err = e.Price(u, expired, 0.05, 0.25)
	var inv *domain.InvalidInputError
	assert.True(t, errors.As(err, &inv))
}

func TestImpliedVolatility_RoundTrip(t *testing.T) {
	e := NewEngine(Config{})
	for _, vol := range []float64{0.08, 0.25, 0.6, 1.4} {
		for _, typ := range []domain.OptionType{domain.Call, domain.Put} {
			p := Params{Type: typ, Spot: 100, Strike: 105, Years: 0.25, Volatility: vol, Rate: 0.03, DividendYield: 0.01}
			res, err := e.PriceParams(p)
			require.NoError(t, err)

			got, err := ImpliedVolatility(res.Price, p)
			require.NoError(t, err)
			assert.InDelta(t, vol, got, 1e-5, "%s vol %v", typ, vol)
		}
	}
}

func TestImpliedVolatility_Unattainable(t *testing.T) {
	p := Params{Type: domain.Call, Spot: 100, Strike: 80, Years: 0.25, Rate: 0.0}
	_, err := ImpliedVolatility(5, p) // below intrinsic value of 20
	assert.Error(t, err)

	_, err = ImpliedVolatility(-1, p)
	var inv *domain.InvalidInputError
	assert.True(t, errors.As(err, &inv))

	p.Years = 0
	_, err = ImpliedVolatility(20, p)
	assert.Error(t, err)
}
