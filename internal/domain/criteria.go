package domain

import (
	"fmt"
	"math"
	"sort"
)

// FloatRange is an inclusive [Min, Max] interval.
type FloatRange struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// Contains reports whether v lies within the range.
func (r FloatRange) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// IntRange is an inclusive [Min, Max] interval of whole numbers.
type IntRange struct {
	Min int `yaml:"min" json:"min"`
	Max int `yaml:"max" json:"max"`
}

// Contains reports whether v lies within the range.
func (r IntRange) Contains(v int) bool {
	return v >= r.Min && v <= r.Max
}

// Weights are the composite-score weights of the normalized factors.
type Weights struct {
	Return      float64 `yaml:"return" json:"return"`
	Probability float64 `yaml:"probability" json:"probability"`
	Liquidity   float64 `yaml:"liquidity" json:"liquidity"`
	IVRank      float64 `yaml:"iv_rank" json:"iv_rank"`
}

// Sum returns the total weight.
func (w Weights) Sum() float64 {
	return w.Return + w.Probability + w.Liquidity + w.IVRank
}

// StrategyRules override the shared thresholds for one strategy.
// Nil pointers inherit the shared value.
type StrategyRules struct {
	DeltaRange          FloatRange `yaml:"delta_range" json:"delta_range"`
	MinAnnualizedReturn *float64   `yaml:"min_annualized_return,omitempty" json:"min_annualized_return,omitempty"`
	MinProbability      *float64   `yaml:"min_probability,omitempty" json:"min_probability,omitempty"`
}

// Thresholds are the effective per-strategy thresholds after overrides.
type Thresholds struct {
	DeltaRange          FloatRange
	MinAnnualizedReturn float64
	MinProbability      float64
}

// ScreeningCriteria configures one screening run. Returns, probabilities and
// spreads are fractions (0.12 is 12%). Zero-valued caps are disabled.
type ScreeningCriteria struct {
	MinOpenInterest     int64                          `yaml:"min_open_interest" json:"min_open_interest"`
	MinVolume           int64                          `yaml:"min_volume" json:"min_volume"`
	MaxBidAskSpread     float64                        `yaml:"max_bid_ask_spread" json:"max_bid_ask_spread"`
	MaxBidAskSpreadAbs  float64                        `yaml:"max_bid_ask_spread_abs" json:"max_bid_ask_spread_abs"`
	DTERange            IntRange                       `yaml:"dte_range" json:"dte_range"`
	PriceRange          FloatRange                     `yaml:"price_range" json:"price_range"`
	Strategies          map[StrategyType]StrategyRules `yaml:"strategies" json:"strategies"`
	MinAnnualizedReturn float64                        `yaml:"min_annualized_return" json:"min_annualized_return"`
	MinProbability      float64                        `yaml:"min_probability" json:"min_probability"`
	MaxLoss             float64                        `yaml:"max_loss" json:"max_loss"`
	IVRankRange         FloatRange                     `yaml:"iv_rank_range" json:"iv_rank_range"`
	Weights             Weights                        `yaml:"weights" json:"weights"`

	ExcludeVolatilityDegenerate bool       `yaml:"exclude_volatility_degenerate" json:"exclude_volatility_degenerate"`
	AvoidEarnings               bool       `yaml:"avoid_earnings" json:"avoid_earnings"`
	EarningsWindowDays          int        `yaml:"earnings_window_days" json:"earnings_window_days"`
	TrendFilter                 bool       `yaml:"trend_filter" json:"trend_filter"`
	VolatilityBand              FloatRange `yaml:"volatility_band" json:"volatility_band"`
	MaxPerSymbol                int        `yaml:"max_per_symbol" json:"max_per_symbol"`
}

func ptr(v float64) *float64 { return &v }

// DefaultCriteria returns the baseline screen.
func DefaultCriteria() ScreeningCriteria {
	return ScreeningCriteria{
		MinOpenInterest: 100,
		MinVolume:       50,
		MaxBidAskSpread: 0.15,
		DTERange:        IntRange{Min: 7, Max: 60},
		PriceRange:      FloatRange{Min: 10, Max: 500},
		Strategies: map[StrategyType]StrategyRules{
			CoveredCall:    {DeltaRange: FloatRange{Min: 0.20, Max: 0.40}, MinAnnualizedReturn: ptr(0.12)},
			CashSecuredPut: {DeltaRange: FloatRange{Min: 0.15, Max: 0.35}, MinAnnualizedReturn: ptr(0.10)},
			ShortStrangle:  {DeltaRange: FloatRange{Min: 0.10, Max: 0.30}, MinAnnualizedReturn: ptr(0.15), MinProbability: ptr(0.60)},
		},
		MinAnnualizedReturn: 0.10,
		MinProbability:      0.50,
		IVRankRange:         FloatRange{Min: 0, Max: 1},
		Weights: Weights{
			Return:      0.40,
			Probability: 0.30,
			Liquidity:   0.20,
			IVRank:      0.10,
		},
		ExcludeVolatilityDegenerate: true,
		AvoidEarnings:               true,
		EarningsWindowDays:          7,
		TrendFilter:                 true,
		VolatilityBand:              FloatRange{Min: 0.10, Max: 1.00},
	}
}

// For returns the effective thresholds for a strategy.
func (c ScreeningCriteria) For(s StrategyType) Thresholds {
	t := Thresholds{
		DeltaRange:          FloatRange{Min: 0, Max: 1},
		MinAnnualizedReturn: c.MinAnnualizedReturn,
		MinProbability:      c.MinProbability,
	}
	rules, ok := c.Strategies[s]
	if !ok {
		return t
	}
	t.DeltaRange = rules.DeltaRange
	if rules.MinAnnualizedReturn != nil {
		t.MinAnnualizedReturn = *rules.MinAnnualizedReturn
	}
	if rules.MinProbability != nil {
		t.MinProbability = *rules.MinProbability
	}
	return t
}

// Validate rejects structurally invalid criteria before any computation starts.
func (c ScreeningCriteria) Validate() error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	nonNegative := map[string]float64{
		"weights.return":         c.Weights.Return,
		"weights.probability":    c.Weights.Probability,
		"weights.liquidity":      c.Weights.Liquidity,
		"weights.iv_rank":        c.Weights.IVRank,
		"max_bid_ask_spread":     c.MaxBidAskSpread,
		"max_bid_ask_spread_abs": c.MaxBidAskSpreadAbs,
		"max_loss":               c.MaxLoss,
		"min_probability":        c.MinProbability,
	}
	names := make([]string, 0, len(nonNegative))
	for name := range nonNegative {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v := nonNegative[name]
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			add("%s must be a finite non-negative number, got %v", name, v)
		}
	}
	if math.IsNaN(c.MinAnnualizedReturn) || math.IsInf(c.MinAnnualizedReturn, 0) {
		add("min_annualized_return must be finite")
	}
	if c.MinProbability > 1 {
		add("min_probability must be at most 1, got %v", c.MinProbability)
	}
	if c.MinOpenInterest < 0 {
		add("min_open_interest must be non-negative, got %d", c.MinOpenInterest)
	}
	if c.MinVolume < 0 {
		add("min_volume must be non-negative, got %d", c.MinVolume)
	}
	if c.DTERange.Min < 0 || c.DTERange.Min > c.DTERange.Max {
		add("dte_range is inverted or negative: [%d, %d]", c.DTERange.Min, c.DTERange.Max)
	}
	checkRange := func(name string, r FloatRange) {
		if math.IsNaN(r.Min) || math.IsNaN(r.Max) || r.Min > r.Max {
			add("%s is inverted: [%v, %v]", name, r.Min, r.Max)
		}
	}
	checkRange("price_range", c.PriceRange)
	checkRange("iv_rank_range", c.IVRankRange)
	checkRange("volatility_band", c.VolatilityBand)
	for _, s := range AllStrategies() {
		rules, ok := c.Strategies[s]
		if !ok {
			continue
		}
		checkRange(fmt.Sprintf("strategies.%s.delta_range", s), rules.DeltaRange)
		if rules.DeltaRange.Min < 0 || rules.DeltaRange.Max > 1 {
			add("strategies.%s.delta_range must lie within [0, 1]", s)
		}
		if p := rules.MinProbability; p != nil && (*p < 0 || *p > 1) {
			add("strategies.%s.min_probability must lie within [0, 1]", s)
		}
	}
	if c.EarningsWindowDays < 0 {
		add("earnings_window_days must be non-negative, got %d", c.EarningsWindowDays)
	}
	if c.MaxPerSymbol < 0 {
		add("max_per_symbol must be non-negative, got %d", c.MaxPerSymbol)
	}

	if len(problems) > 0 {
		return &ConfigError{Problems: problems}
	}
	return nil
}
