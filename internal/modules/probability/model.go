// Package probability estimates where the underlying finishes at expiration
// under the same log-normal, risk-neutral assumption used for pricing.
package probability

import (
	"math"

	"github.com/aristath/optionseller/internal/domain"
	"github.com/aristath/optionseller/pkg/formulas"
)

// Model computes profit and in-the-money probabilities. It is stateless
// apart from the volatility floor.
type Model struct {
	floor float64
}

// NewModel creates a probability model that never uses a volatility below floor.
func NewModel(floor float64) *Model {
	return &Model{floor: floor}
}

// ProbAbove returns P(S_T > x) for a log-normal terminal price with drift r-q.
// At T=0 it is the indicator of spot > x.
func (m *Model) ProbAbove(spot, x, years, sigma, rate, div float64) float64 {
	if x <= 0 {
		return 1
	}
	if years <= 0 {
		if spot > x {
			return 1
		}
		return 0
	}
	sigma = math.Max(sigma, m.floor)
	volT := sigma * math.Sqrt(years)
	d2 := (math.Log(spot/x) + (rate-div-0.5*sigma*sigma)*years) / volT
	return formulas.Clamp01(formulas.NormCDF(d2))
}

// ExpectedMove is the one standard deviation price move S*sigma*sqrt(T).
func ExpectedMove(spot, sigma, years float64) float64 {
	if years <= 0 || sigma <= 0 {
		return 0
	}
	return spot * sigma * math.Sqrt(years)
}

// ProfitAt returns the per-share profit of the candidate if the underlying
// settles at price. Covered calls include the stock leg bought at the
// candidate's underlying price.
func ProfitAt(c domain.StrategyCandidate, price float64) float64 {
	pnl := c.NetCredit / domain.ContractMultiplier
	for _, l := range c.Legs {
		if l.Contract.Type == domain.Call {
			pnl -= math.Max(price-l.Contract.Strike, 0)
		} else {
			pnl -= math.Max(l.Contract.Strike-price, 0)
		}
	}
	if c.Strategy == domain.CoveredCall {
		pnl += price - c.UnderlyingPrice
	}
	return pnl
}

// ProfitProbability returns the probability metrics of a candidate against
// the current underlying state with years to expiration.
func (m *Model) ProfitProbability(c domain.StrategyCandidate, u domain.UnderlyingSnapshot, years float64) domain.ProbabilityMetrics {
	sigma := c.AverageIV()
	if sigma <= 0 {
		sigma = u.Volatility
	}
	sigma = math.Max(sigma, m.floor)
	S, r, q := u.Price, u.RiskFreeRate, u.DividendYield

	move := ExpectedMove(S, sigma, years)
	out := domain.ProbabilityMetrics{
		ExpectedMove: move,
		RangeLow:     math.Max(S-move, 0),
		RangeHigh:    S + move,
	}

	if years <= 0 {
		if ProfitAt(c, S) > 0 {
			out.ProfitProbability = 1
		}
		out.ITMProbability = m.itm(c, S, 0, sigma, r, q)
		return out
	}

	switch {
	case c.Strategy == domain.ShortStrangle && len(c.Breakevens) == 2:
		lower, upper := c.Breakevens[0], c.Breakevens[1]
		out.ProfitProbability = m.ProbAbove(S, lower, years, sigma, r, q) - m.ProbAbove(S, upper, years, sigma, r, q)
	case len(c.Breakevens) > 0:
		out.ProfitProbability = m.ProbAbove(S, c.Breakevens[0], years, sigma, r, q)
	}
	out.ProfitProbability = formulas.Clamp01(out.ProfitProbability)
	out.ITMProbability = m.itm(c, S, years, sigma, r, q)
	return out
}

// itm is the probability that any short leg finishes in the money.
func (m *Model) itm(c domain.StrategyCandidate, spot, years, sigma, r, q float64) float64 {
	p := 0.0
	if call, ok := c.CallLeg(); ok {
		p += m.ProbAbove(spot, call.Contract.Strike, years, sigma, r, q)
	}
	if put, ok := c.PutLeg(); ok {
		below := 1 - m.ProbAbove(spot, put.Contract.Strike, years, sigma, r, q)
		if years <= 0 && spot == put.Contract.Strike {
			below = 0
		}
		p += below
	}
	return formulas.Clamp01(p)
}
