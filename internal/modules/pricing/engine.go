// Package pricing values European options with the Black-Scholes-Merton model
// under a continuous dividend yield and computes their analytic greeks.
//
// Every function here is pure: results depend only on the arguments, so the
// engine can be shared freely between worker goroutines.
package pricing

import (
	"math"

	"github.com/aristath/optionseller/internal/domain"
	"github.com/aristath/optionseller/pkg/formulas"
)

// DefaultVolatilityFloor is the smallest volatility fed into the closed form.
const DefaultVolatilityFloor = 0.01

// Config holds pricing-model parameters
type Config struct {
	VolatilityFloor float64 `yaml:"volatility_floor"`
}

// Params are the raw inputs of one valuation. Years is time to expiration.
type Params struct {
	Type          domain.OptionType
	Spot          float64
	Strike        float64
	Years         float64
	Volatility    float64
	Rate          float64
	DividendYield float64
}

// Result is the value and long-position greeks of one option.
type Result struct {
	Price                float64       `json:"price"`
	Greeks               domain.Greeks `json:"greeks"`
	Volatility           float64       `json:"volatility"` // volatility actually used
	VolatilityDegenerate bool          `json:"volatility_degenerate"`
	Intrinsic            float64       `json:"intrinsic"`

	// Warning is set together with VolatilityDegenerate.
	Warning *domain.VolatilityDegenerateWarning `json:"-"`
}

// Engine prices options. The zero value uses DefaultVolatilityFloor.
type Engine struct {
	floor float64
}

// NewEngine creates a pricing engine
func NewEngine(cfg Config) *Engine {
	return &Engine{floor: cfg.VolatilityFloor}
}

// Floor returns the volatility floor in effect.
func (e *Engine) Floor() float64 {
	if e == nil || e.floor <= 0 {
		return DefaultVolatilityFloor
	}
	return e.floor
}

// Price values a contract against an underlying snapshot at the snapshot's
// timestamp. Time to expiration is measured in calendar days.
func (e *Engine) Price(u domain.UnderlyingSnapshot, c domain.OptionContract, rate, sigma float64) (Result, error) {
	days := domain.DaysToExpiration(u.Timestamp, c.Expiration)
	return e.PriceParams(Params{
		Type:          c.Type,
		Spot:          u.Price,
		Strike:        c.Strike,
		Years:         domain.YearsFromDays(days),
		Volatility:    sigma,
		Rate:          rate,
		DividendYield: u.DividendYield,
	})
}

// PriceParams values an option from raw inputs.
func (e *Engine) PriceParams(p Params) (Result, error) {
	if err := validate(p); err != nil {
		return Result{}, err
	}

	res := Result{
		Volatility: p.Volatility,
		Intrinsic:  intrinsic(p.Type, p.Spot, p.Strike),
	}
	if floor := e.Floor(); p.Volatility < floor {
		res.Volatility = floor
		res.VolatilityDegenerate = true
		res.Warning = &domain.VolatilityDegenerateWarning{Given: p.Volatility, Floor: floor}
	}

	if p.Years == 0 {
		res.Price = res.Intrinsic
		res.Greeks = expiryGreeks(p.Type, p.Spot, p.Strike)
		return res, nil
	}

	res.Price, res.Greeks = closedForm(p, res.Volatility)
	return res, nil
}

func validate(p Params) error {
	switch {
	case !p.Type.Valid():
		return &domain.InvalidInputError{Field: "type", Reason: "option type must be call or put"}
	case math.IsNaN(p.Spot) || math.IsInf(p.Spot, 0) || p.Spot <= 0:
		return &domain.InvalidInputError{Field: "spot", Value: p.Spot, Reason: "must be a positive finite number"}
	case math.IsNaN(p.Strike) || math.IsInf(p.Strike, 0) || p.Strike <= 0:
		return &domain.InvalidInputError{Field: "strike", Value: p.Strike, Reason: "must be a positive finite number"}
	case math.IsNaN(p.Years) || math.IsInf(p.Years, 0) || p.Years < 0:
		return &domain.InvalidInputError{Field: "time_to_expiration", Value: p.Years, Reason: "must be non-negative"}
	case math.IsNaN(p.Volatility) || math.IsInf(p.Volatility, 0):
		return &domain.InvalidInputError{Field: "volatility", Value: p.Volatility, Reason: "must be finite"}
	case math.IsNaN(p.Rate) || math.IsInf(p.Rate, 0):
		return &domain.InvalidInputError{Field: "rate", Value: p.Rate, Reason: "must be finite"}
	case math.IsNaN(p.DividendYield) || math.IsInf(p.DividendYield, 0):
		return &domain.InvalidInputError{Field: "dividend_yield", Value: p.DividendYield, Reason: "must be finite"}
	}
	return nil
}

func intrinsic(t domain.OptionType, spot, strike float64) float64 {
	if t == domain.Call {
		return math.Max(spot-strike, 0)
	}
	return math.Max(strike-spot, 0)
}

// expiryGreeks are the limits at expiration: delta is a step, everything else vanishes.
func expiryGreeks(t domain.OptionType, spot, strike float64) domain.Greeks {
	var g domain.Greeks
	switch {
	case t == domain.Call && spot > strike:
		g.Delta = 1
	case t == domain.Put && spot < strike:
		g.Delta = -1
	}
	return g
}

// D1D2 returns the standardized moneyness terms of the closed form.
func D1D2(spot, strike, years, sigma, rate, div float64) (float64, float64) {
	volT := sigma * math.Sqrt(years)
	d1 := (math.Log(spot/strike) + (rate-div+0.5*sigma*sigma)*years) / volT
	return d1, d1 - volT
}

func closedForm(p Params, sigma float64) (float64, domain.Greeks) {
	S, K, T, r, q := p.Spot, p.Strike, p.Years, p.Rate, p.DividendYield
	sqrtT := math.Sqrt(T)
	d1, d2 := D1D2(S, K, T, sigma, r, q)
	dq := math.Exp(-q * T)
	dr := math.Exp(-r * T)
	pdf := formulas.NormPDF(d1)

	g := domain.Greeks{
		Gamma: dq * pdf / (S * sigma * sqrtT),
		Vega:  S * dq * pdf * sqrtT / 100,
	}
	decay := -S * dq * pdf * sigma / (2 * sqrtT)

	var price float64
	if p.Type == domain.Call {
		nd1, nd2 := formulas.NormCDF(d1), formulas.NormCDF(d2)
		price = S*dq*nd1 - K*dr*nd2
		g.Delta = dq * nd1
		g.Theta = (decay - r*K*dr*nd2 + q*S*dq*nd1) / domain.DaysPerYear
		g.Rho = K * T * dr * nd2 / 100
	} else {
		nmd1, nmd2 := formulas.NormCDF(-d1), formulas.NormCDF(-d2)
		price = K*dr*nmd2 - S*dq*nmd1
		g.Delta = -dq * nmd1
		g.Theta = (decay + r*K*dr*nmd2 - q*S*dq*nmd1) / domain.DaysPerYear
		g.Rho = -K * T * dr * nmd2 / 100
	}
	// Rounding can push deep out-of-the-money values a hair below zero.
	return math.Max(price, 0), g
}
