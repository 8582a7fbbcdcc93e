package evaluation

import (
	"testing"

	"github.com/aristath/optionseller/internal/domain"
	"github.com/stretchr/testify/assert"
)

func candidate(oi, volume int64, bid, ask, iv float64) domain.StrategyCandidate {
	return domain.StrategyCandidate{
		Legs: []domain.Leg{{
			Contract: domain.OptionContract{
				Type:              domain.Put,
				Bid:               bid,
				Ask:               ask,
				OpenInterest:      oi,
				Volume:            volume,
				ImpliedVolatility: iv,
			},
			Volatility: iv,
		}},
	}
}

func TestLiquidityScore(t *testing.T) {
	tests := []struct {
		name     string
		c        domain.StrategyCandidate
		expected float64
	}{
		{"top tiers", candidate(6000, 1500, 1.99, 2.01, 0.3), 100},
		{"middle tiers", candidate(1200, 250, 1.95, 2.05, 0.3), 20 + 20 + 15},
		{"illiquid", candidate(10, 1, 1.0, 3.0, 0.3), 0},
		{"unquoted", candidate(6000, 1500, 0, 0, 0.3), 80},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, LiquidityScore(tt.c), 1e-9)
		})
	}
}

func TestIVRank(t *testing.T) {
	c := candidate(1000, 1000, 1, 1.1, 0.30)

	assert.Equal(t, 0.5, IVRank(c, []float64{0.1, 0.2}), "short history is neutral")

	history := []float64{0.10, 0.12, 0.15, 0.18, 0.20, 0.22, 0.25, 0.28, 0.35, 0.40}
	assert.InDelta(t, 0.8, IVRank(c, history), 1e-9)
}

func TestNormalize(t *testing.T) {
	raw := []domain.Factors{
		{AnnualizedReturn: 0.10, Probability: 0.7, Liquidity: 50, IVRank: 0.5},
		{AnnualizedReturn: 0.30, Probability: 0.9, Liquidity: 50, IVRank: 0.5},
		{AnnualizedReturn: 0.20, Probability: 0.8, Liquidity: 50, IVRank: 0.5},
	}

	got := Normalize(raw)

	assert.InDelta(t, 0.0, got[0].AnnualizedReturn, 1e-9)
	assert.InDelta(t, 1.0, got[1].AnnualizedReturn, 1e-9)
	assert.InDelta(t, 0.5, got[2].AnnualizedReturn, 1e-9)
	assert.InDelta(t, 0.5, got[2].Probability, 1e-9)
	for _, f := range got {
		assert.Equal(t, 1.0, f.Liquidity, "constant factor maps to 1")
		assert.Equal(t, 1.0, f.IVRank)
	}
	assert.Empty(t, Normalize(nil))
}

func TestCompositeScore(t *testing.T) {
	f := domain.Factors{AnnualizedReturn: 1, Probability: 0.5, Liquidity: 0, IVRank: 1}
	w := domain.Weights{Return: 0.4, Probability: 0.3, Liquidity: 0.2, IVRank: 0.1}

	assert.InDelta(t, 0.4+0.15+0.1, CompositeScore(f, w), 1e-12)
	assert.InDelta(t, 2*(0.4+0.15+0.1), CompositeScore(f, domain.Weights{Return: 0.8, Probability: 0.6, Liquidity: 0.4, IVRank: 0.2}), 1e-12)
	assert.Zero(t, CompositeScore(f, domain.Weights{}))
}
