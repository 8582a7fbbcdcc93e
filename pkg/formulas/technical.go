package formulas

import (
	"github.com/markcheno/go-talib"
)

// SMA returns the latest simple moving average of closes over length periods.
// It falls back to the mean of all closes when the series is shorter than length.
func SMA(closes []float64, length int) float64 {
	if len(closes) == 0 || length <= 0 {
		return 0
	}
	if len(closes) < length {
		return Mean(closes)
	}
	values := talib.Sma(closes, length)
	return values[len(values)-1]
}

// TrendState summarizes a price series against its 20 and 50 period averages.
type TrendState struct {
	Price      float64
	SMA20      float64
	SMA50      float64
	Volatility float64 // annualized historical volatility
}

// Trend computes the trend state of a close series. The last close is the current price.
func Trend(closes []float64) TrendState {
	if len(closes) == 0 {
		return TrendState{}
	}
	return TrendState{
		Price:      closes[len(closes)-1],
		SMA20:      SMA(closes, 20),
		SMA50:      SMA(closes, 50),
		Volatility: HistoricalVolatility(closes),
	}
}

// StrongDowntrend reports a price well below a falling 20-period average.
func (t TrendState) StrongDowntrend() bool {
	if t.SMA20 <= 0 || t.SMA50 <= 0 {
		return false
	}
	return t.Price < t.SMA20*0.9 && t.SMA20 < t.SMA50*0.95
}
