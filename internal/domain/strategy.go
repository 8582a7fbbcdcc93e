package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// StrategyType tags the option-selling strategy a candidate implements
type StrategyType string

const (
	CoveredCall    StrategyType = "covered_call"
	CashSecuredPut StrategyType = "cash_secured_put"
	ShortStrangle  StrategyType = "short_strangle"
)

// AllStrategies lists every supported strategy in evaluation order.
func AllStrategies() []StrategyType {
	return []StrategyType{CoveredCall, CashSecuredPut, ShortStrangle}
}

// ParseStrategy parses a strategy name, accepting a few common aliases.
func ParseStrategy(s string) (StrategyType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "covered_call", "cc", "call":
		return CoveredCall, nil
	case "cash_secured_put", "csp", "put":
		return CashSecuredPut, nil
	case "short_strangle", "strangle":
		return ShortStrangle, nil
	}
	return "", fmt.Errorf("unknown strategy %q", s)
}

// Leg is one short option of a strategy.
type Leg struct {
	Contract   OptionContract `json:"contract"`
	Premium    float64        `json:"premium"`    // per share, credit received
	Volatility float64        `json:"volatility"` // volatility used for pricing
	TheoPrice  float64        `json:"theo_price"` // model price per share
	Greeks     Greeks         `json:"greeks"`     // short position, per share
	LongDelta  float64        `json:"long_delta"` // delta of the long option, for delta filters
	Degenerate bool           `json:"degenerate"` // priced on the volatility floor
}

// ProbabilityMetrics describe the terminal price distribution relative to a candidate.
type ProbabilityMetrics struct {
	ProfitProbability float64 `json:"profit_probability"`
	ITMProbability    float64 `json:"itm_probability"` // any short leg finishing in the money
	ExpectedMove      float64 `json:"expected_move"`
	RangeLow          float64 `json:"range_low"`
	RangeHigh         float64 `json:"range_high"`
}

// StrategyCandidate is a priced instance of a strategy for one underlying and expiration.
type StrategyCandidate struct {
	Symbol               string             `json:"symbol"`
	Strategy             StrategyType       `json:"strategy"`
	Legs                 []Leg              `json:"legs"`
	UnderlyingPrice      float64            `json:"underlying_price"`
	Expiration           time.Time          `json:"expiration"`
	DTE                  int                `json:"dte"`
	NetCredit            float64            `json:"net_credit"` // per contract, dollars
	MaxProfit            float64            `json:"max_profit"` // per contract, dollars
	MaxLoss              float64            `json:"max_loss"`   // per contract, dollars
	Breakevens           []float64          `json:"breakevens"`
	Margin               float64            `json:"margin"` // per contract, dollars
	AnnualizedReturn     float64            `json:"annualized_return"`
	Probability          ProbabilityMetrics `json:"probability"`
	Greeks               Greeks             `json:"greeks"` // net short position, per share
	VolatilityDegenerate bool               `json:"volatility_degenerate"`
}

// CallLeg returns the call leg, if any.
func (c StrategyCandidate) CallLeg() (Leg, bool) {
	for _, l := range c.Legs {
		if l.Contract.Type == Call {
			return l, true
		}
	}
	return Leg{}, false
}

// PutLeg returns the put leg, if any.
func (c StrategyCandidate) PutLeg() (Leg, bool) {
	for _, l := range c.Legs {
		if l.Contract.Type == Put {
			return l, true
		}
	}
	return Leg{}, false
}

// OpenInterest is the weakest open interest across legs.
func (c StrategyCandidate) OpenInterest() int64 {
	return c.minLeg(func(l Leg) int64 { return l.Contract.OpenInterest })
}

// Volume is the weakest volume across legs.
func (c StrategyCandidate) Volume() int64 {
	return c.minLeg(func(l Leg) int64 { return l.Contract.Volume })
}

func (c StrategyCandidate) minLeg(f func(Leg) int64) int64 {
	if len(c.Legs) == 0 {
		return 0
	}
	m := f(c.Legs[0])
	for _, l := range c.Legs[1:] {
		if v := f(l); v < m {
			m = v
		}
	}
	return m
}

// WidestSpreadPct is the largest relative bid-ask spread across legs.
func (c StrategyCandidate) WidestSpreadPct() float64 {
	w := 0.0
	for _, l := range c.Legs {
		if s := l.Contract.SpreadPct(); s > w {
			w = s
		}
	}
	return w
}

// WidestSpread is the largest absolute bid-ask spread across legs.
func (c StrategyCandidate) WidestSpread() float64 {
	w := 0.0
	for _, l := range c.Legs {
		if s := l.Contract.Spread(); s > w {
			w = s
		}
	}
	return w
}

// AverageIV is the mean pricing volatility of the legs.
func (c StrategyCandidate) AverageIV() float64 {
	if len(c.Legs) == 0 {
		return 0
	}
	sum := 0.0
	for _, l := range c.Legs {
		sum += l.Volatility
	}
	return sum / float64(len(c.Legs))
}

// RiskReward is max loss over max profit. It is +Inf without positive profit.
func (c StrategyCandidate) RiskReward() float64 {
	if c.MaxProfit <= 0 {
		return math.Inf(1)
	}
	return c.MaxLoss / c.MaxProfit
}

// Key identifies the candidate: symbol, strategy, expiration and strikes.
func (c StrategyCandidate) Key() string {
	var b strings.Builder
	b.WriteString(c.Symbol)
	b.WriteByte('|')
	b.WriteString(string(c.Strategy))
	b.WriteByte('|')
	b.WriteString(c.Expiration.Format("2006-01-02"))
	if put, ok := c.PutLeg(); ok {
		fmt.Fprintf(&b, "|P%.2f", put.Contract.Strike)
	}
	if call, ok := c.CallLeg(); ok {
		fmt.Fprintf(&b, "|C%.2f", call.Contract.Strike)
	}
	return b.String()
}
