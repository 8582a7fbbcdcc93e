package risk

import (
	"math"
	"sort"

	"github.com/aristath/optionseller/internal/domain"
	"github.com/aristath/optionseller/pkg/formulas"
	"gonum.org/v1/gonum/stat"
)

const (
	MethodDeltaNormal   = "delta_normal"
	MethodMaxLossNormal = "max_loss_normal"
)

// VaRMethod models the portfolio loss over the horizon as a normal
// distribution and returns its mean and standard deviation in dollars.
type VaRMethod interface {
	Name() string
	LossDistribution(positions []domain.Position, horizonDays int) (mean, sigma float64)
}

// MethodByName resolves a configured VaR method.
func MethodByName(name string) (VaRMethod, bool) {
	switch name {
	case "", MethodDeltaNormal:
		return DeltaNormal{}, true
	case MethodMaxLossNormal:
		return MaxLossNormal{}, true
	}
	return nil, false
}

// DeltaNormal treats each underlying's dollar delta as a normal exposure to
// its own volatility. Distinct underlyings are assumed independent, so their
// sigmas add in quadrature.
type DeltaNormal struct{}

func (DeltaNormal) Name() string { return MethodDeltaNormal }

func (DeltaNormal) LossDistribution(positions []domain.Position, horizonDays int) (float64, float64) {
	type exposure struct {
		dollars   float64
		volWeight float64
		volSum    float64
	}
	bySymbol := make(map[string]*exposure)
	for _, p := range positions {
		e, ok := bySymbol[p.Symbol]
		if !ok {
			e = &exposure{}
			bySymbol[p.Symbol] = e
		}
		e.dollars += p.EquivalentShares() * p.UnderlyingPrice
		w := float64(p.Contracts)
		e.volSum += p.Volatility * w
		e.volWeight += w
	}

	symbols := make([]string, 0, len(bySymbol))
	for s := range bySymbol {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	scale := math.Sqrt(float64(horizonDays) / formulas.TradingDaysPerYear)
	sigmas := make([]float64, 0, len(symbols))
	for _, s := range symbols {
		e := bySymbol[s]
		vol := 0.0
		if e.volWeight > 0 {
			vol = e.volSum / e.volWeight
		}
		sigmas = append(sigmas, math.Abs(e.dollars)*vol*scale)
	}
	return 0, formulas.IndependentSigma(sigmas)
}

// MaxLossNormal fits a normal distribution to the positions' max losses.
// A single position gets a sigma of 20% of its loss.
type MaxLossNormal struct{}

func (MaxLossNormal) Name() string { return MethodMaxLossNormal }

func (MaxLossNormal) LossDistribution(positions []domain.Position, _ int) (float64, float64) {
	if len(positions) == 0 {
		return 0, 0
	}
	losses := make([]float64, len(positions))
	for i, p := range positions {
		losses[i] = p.MaxLoss
	}
	if len(losses) == 1 {
		return losses[0], losses[0] * 0.2
	}
	return stat.PopMeanStdDev(losses, nil)
}
