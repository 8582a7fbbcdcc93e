package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormal(t *testing.T) {
	assert.InDelta(t, 0.5, NormCDF(0), 1e-12)
	assert.InDelta(t, 0.975, NormCDF(1.959964), 1e-6)
	assert.InDelta(t, 0.398942, NormPDF(0), 1e-6)
	assert.InDelta(t, 1.644854, NormQuantile(0.95), 1e-6)
	assert.InDelta(t, NormCDF(-1.3), 1-NormCDF(1.3), 1e-12)
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, Clamp01(-0.1))
	assert.Equal(t, 1.0, Clamp01(1.0000001))
	assert.Equal(t, 0.42, Clamp01(0.42))
}

func TestPercentileRank(t *testing.T) {
	tests := []struct {
		name    string
		value   float64
		history []float64
		want    float64
	}{
		{"empty history", 0.3, nil, 0.5},
		{"middle", 0.3, []float64{0.4, 0.1, 0.3, 0.2}, 0.5},
		{"above all", 0.9, []float64{0.1, 0.2}, 1.0},
		{"below all", 0.05, []float64{0.1, 0.2}, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, PercentileRank(tt.value, tt.history), 1e-12)
		})
	}
}

func TestMinMax(t *testing.T) {
	assert.Equal(t, []float64{0, 0.5, 1}, MinMax([]float64{1, 2, 3}))
	assert.Equal(t, []float64{1, 1}, MinMax([]float64{5, 5}))
	assert.Empty(t, MinMax(nil))
}

func TestHistoricalVolatility(t *testing.T) {
	// Constant growth has zero dispersion of log returns.
	prices := []float64{100, 101, 102.01, 103.0301}
	assert.InDelta(t, 0, HistoricalVolatility(prices), 1e-9)

	choppy := []float64{100, 102, 99, 103, 98, 104}
	assert.Greater(t, HistoricalVolatility(choppy), 0.1)

	assert.Equal(t, 0.0, HistoricalVolatility([]float64{100}))
}

func TestSMA(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5}
	assert.InDelta(t, 4.0, SMA(closes, 3), 1e-12)
	assert.InDelta(t, 3.0, SMA(closes, 20), 1e-12)
	assert.Equal(t, 0.0, SMA(nil, 20))
}

func TestTrend(t *testing.T) {
	falling := make([]float64, 60)
	rising := make([]float64, 60)
	for i := range falling {
		falling[i] = 100 - float64(i)
		rising[i] = 50 + float64(i)
	}

	down := Trend(falling)
	assert.InDelta(t, 41.0, down.Price, 1e-12)
	assert.InDelta(t, 50.5, down.SMA20, 1e-9)
	assert.InDelta(t, 65.5, down.SMA50, 1e-9)
	assert.True(t, down.StrongDowntrend())

	assert.False(t, Trend(rising).StrongDowntrend())
	assert.False(t, Trend(nil).StrongDowntrend())
}

func TestParametricVaRAndES(t *testing.T) {
	assert.InDelta(t, 164.485, ParametricVaR(0, 100, 0.95), 1e-3)
	assert.InDelta(t, 206.271, ParametricES(0, 100, 0.95), 1e-3)
	assert.Greater(t, ParametricES(0, 100, 0.99), ParametricVaR(0, 100, 0.99))
	assert.Equal(t, 0.0, ParametricVaR(0, 0, 0.95))
	assert.InDelta(t, 5.0, IndependentSigma([]float64{3, 4}), 1e-12)
	assert.False(t, math.IsNaN(ParametricVaR(0, 100, 1)))
}
