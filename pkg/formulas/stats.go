package formulas

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// TradingDaysPerYear is used when annualizing daily statistics.
const TradingDaysPerYear = 252

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample standard deviation
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// LogReturns converts a price series into log returns ln(P[i]/P[i-1]).
// Non-positive prices are skipped.
func LogReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] <= 0 || prices[i] <= 0 {
			continue
		}
		out = append(out, math.Log(prices[i]/prices[i-1]))
	}
	return out
}

// HistoricalVolatility returns the annualized standard deviation of daily log returns.
func HistoricalVolatility(prices []float64) float64 {
	returns := LogReturns(prices)
	if len(returns) < 2 {
		return 0
	}
	return StdDev(returns) * math.Sqrt(TradingDaysPerYear)
}

// PercentileRank returns the share of history strictly below value, in [0,1].
//
// An empty history yields 0.5 so that a missing history neither rewards nor
// penalizes the caller.
func PercentileRank(value float64, history []float64) float64 {
	if len(history) == 0 {
		return 0.5
	}
	sorted := append([]float64(nil), history...)
	sort.Float64s(sorted)
	below := sort.SearchFloat64s(sorted, value)
	return float64(below) / float64(len(sorted))
}

// MinMax normalizes values to [0,1] over their own range.
// When the range is degenerate every value maps to 1.
func MinMax(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	span := hi - lo
	for i, v := range values {
		if span <= 1e-12 {
			out[i] = 1
			continue
		}
		out[i] = (v - lo) / span
	}
	return out
}
