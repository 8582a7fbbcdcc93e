package strategies

import (
	"math"

	"github.com/aristath/optionseller/internal/domain"
)

// MarginModel computes the per-contract margin of an uncovered strangle.
// Brokers differ here, so the formula is pluggable.
type MarginModel interface {
	Name() string
	StrangleMargin(spot float64, call, put domain.Leg) float64
}

// GreaterOfSides is the exchange-style naked option requirement: each side
// needs its premium plus a percentage of the underlying less the
// out-of-the-money amount, with a minimum percentage. A strangle posts the
// larger side plus the other side's premium.
type GreaterOfSides struct {
	BasePct    float64 // share of the underlying, typically 0.20
	MinimumPct float64 // floor as a share of the underlying (calls) or strike (puts), typically 0.10
}

// DefaultMarginModel returns the 20% / 10% naked requirement.
func DefaultMarginModel() MarginModel {
	return GreaterOfSides{BasePct: 0.20, MinimumPct: 0.10}
}

func (m GreaterOfSides) Name() string { return "greater_of_sides" }

func (m GreaterOfSides) StrangleMargin(spot float64, call, put domain.Leg) float64 {
	callOTM := math.Max(call.Contract.Strike-spot, 0)
	callReq := call.Premium + math.Max(m.BasePct*spot-callOTM, m.MinimumPct*spot)

	putOTM := math.Max(spot-put.Contract.Strike, 0)
	putReq := put.Premium + math.Max(m.BasePct*spot-putOTM, m.MinimumPct*put.Contract.Strike)

	if callReq >= putReq {
		return (callReq + put.Premium) * domain.ContractMultiplier
	}
	return (putReq + call.Premium) * domain.ContractMultiplier
}

// FlatPercent charges a flat share of the larger of the put strike and the
// underlying price.
type FlatPercent struct {
	Pct float64
}

func (m FlatPercent) Name() string { return "flat_percent" }

func (m FlatPercent) StrangleMargin(spot float64, _ domain.Leg, put domain.Leg) float64 {
	return math.Max(put.Contract.Strike, spot) * m.Pct * domain.ContractMultiplier
}

// MarginModelByName resolves a configured margin model name.
func MarginModelByName(name string) (MarginModel, bool) {
	switch name {
	case "", "greater_of_sides":
		return DefaultMarginModel(), true
	case "flat_percent":
		return FlatPercent{Pct: 0.20}, true
	}
	return nil, false
}
