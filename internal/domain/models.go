// Package domain provides the core domain models shared by the analytics
// pipeline and the services around it.
package domain

import (
	"math"
	"time"
)

// ContractMultiplier is the number of shares controlled by one option contract.
const ContractMultiplier = 100.0

// DaysPerYear converts calendar days to year fractions.
const DaysPerYear = 365.0

// OptionType represents the right conveyed by an option contract
type OptionType string

const (
	Call OptionType = "call"
	Put  OptionType = "put"
)

// Valid reports whether the option type is a known right.
func (t OptionType) Valid() bool {
	return t == Call || t == Put
}

// UnderlyingSnapshot is the market state of one underlying at a point in time.
// Snapshots are values: a refresh replaces the whole snapshot.
type UnderlyingSnapshot struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Volatility    float64   `json:"volatility"` // annualized
	RiskFreeRate  float64   `json:"risk_free_rate"`
	DividendYield float64   `json:"dividend_yield"`
	Timestamp     time.Time `json:"timestamp"`

	// Optional context used by the screening filters.
	IVHistory    []float64  `json:"iv_history,omitempty"`
	PriceHistory []float64  `json:"price_history,omitempty"` // daily closes, oldest first
	NextEarnings *time.Time `json:"next_earnings,omitempty"`
}

// OptionContract is a single listed option quote.
type OptionContract struct {
	Symbol            string     `json:"symbol"`
	Strike            float64    `json:"strike"`
	Expiration        time.Time  `json:"expiration"`
	Type              OptionType `json:"type"`
	Bid               float64    `json:"bid"`
	Ask               float64    `json:"ask"`
	ImpliedVolatility float64    `json:"implied_volatility"` // 0 means missing
	OpenInterest      int64      `json:"open_interest"`
	Volume            int64      `json:"volume"`
}

// HasQuote reports whether the contract carries a usable two-sided quote.
func (c OptionContract) HasQuote() bool {
	return c.Ask > 0 && c.Ask >= c.Bid && c.Bid >= 0
}

// Mid returns the quote midpoint, or 0 without a quote.
func (c OptionContract) Mid() float64 {
	if !c.HasQuote() {
		return 0
	}
	return (c.Bid + c.Ask) / 2
}

// Spread returns the absolute bid-ask spread.
func (c OptionContract) Spread() float64 {
	if !c.HasQuote() {
		return 0
	}
	return c.Ask - c.Bid
}

// SpreadPct returns the spread as a fraction of the mid price.
// A contract without a quote has an infinite relative spread.
func (c OptionContract) SpreadPct() float64 {
	mid := c.Mid()
	if mid <= 0 {
		return math.Inf(1)
	}
	return c.Spread() / mid
}

// Greeks are the sensitivities of an option price. Theta is per calendar day,
// vega per volatility point and rho per rate percentage point.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
	Rho   float64 `json:"rho"`
}

// Scale multiplies every greek by f.
func (g Greeks) Scale(f float64) Greeks {
	return Greeks{
		Delta: g.Delta * f,
		Gamma: g.Gamma * f,
		Theta: g.Theta * f,
		Vega:  g.Vega * f,
		Rho:   g.Rho * f,
	}
}

// Add returns the sum of two greek sets.
func (g Greeks) Add(o Greeks) Greeks {
	return Greeks{
		Delta: g.Delta + o.Delta,
		Gamma: g.Gamma + o.Gamma,
		Theta: g.Theta + o.Theta,
		Vega:  g.Vega + o.Vega,
		Rho:   g.Rho + o.Rho,
	}
}

// DaysToExpiration counts calendar days between the valuation date and expiration.
// The result is negative for expired contracts.
func DaysToExpiration(asOf, expiration time.Time) int {
	a := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)
	e := time.Date(expiration.Year(), expiration.Month(), expiration.Day(), 0, 0, 0, 0, time.UTC)
	return int(math.Round(e.Sub(a).Hours() / 24))
}

// YearsFromDays converts calendar days to a year fraction.
func YearsFromDays(days int) float64 {
	return float64(days) / DaysPerYear
}
