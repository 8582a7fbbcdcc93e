package pricing

import (
	"fmt"
	"math"

	"github.com/aristath/optionseller/internal/domain"
)

const (
	ivLow       = 1e-4
	ivHigh      = 5.0
	ivTolerance = 1e-8
	ivMaxIter   = 100
)

// ImpliedVolatility solves for the volatility that reproduces a market price.
// Newton steps on vega are taken while they stay inside the bracket
// [1e-4, 5]; otherwise the bracket is bisected.
func ImpliedVolatility(price float64, p Params) (float64, error) {
	p.Volatility = ivLow
	if err := validate(p); err != nil {
		return 0, err
	}
	if math.IsNaN(price) || price <= 0 {
		return 0, &domain.InvalidInputError{Field: "price", Value: price, Reason: "must be positive"}
	}
	if p.Years == 0 {
		return 0, fmt.Errorf("implied volatility undefined at expiration")
	}

	value := func(sigma float64) (float64, float64) {
		pr, g := closedForm(p, sigma)
		return pr, g.Vega * 100
	}

	lo, hi := ivLow, ivHigh
	fLo, _ := value(lo)
	fHi, _ := value(hi)
	if price < fLo-ivTolerance || price > fHi+ivTolerance {
		return 0, fmt.Errorf("price %.4f outside attainable range [%.4f, %.4f]", price, fLo, fHi)
	}

	sigma := 0.3
	for i := 0; i < ivMaxIter; i++ {
		pr, vega := value(sigma)
		diff := pr - price
		if math.Abs(diff) < ivTolerance {
			return sigma, nil
		}
		if diff > 0 {
			hi = sigma
		} else {
			lo = sigma
		}

		next := (lo + hi) / 2
		if vega > 1e-10 {
			if n := sigma - diff/vega; n > lo && n < hi {
				next = n
			}
		}
		if math.Abs(next-sigma) < 1e-12 {
			return next, nil
		}
		sigma = next
	}
	return sigma, nil
}
