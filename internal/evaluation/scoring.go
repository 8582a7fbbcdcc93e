package evaluation

import (
	"math"

	"github.com/aristath/optionseller/internal/domain"
	"github.com/aristath/optionseller/pkg/formulas"
)

// =============================================================================
// LIQUIDITY SCORE
// =============================================================================
// Tiered points on volume (40), open interest (40) and spread (20).
// A contract that clears every top tier scores 100.

type tier struct {
	threshold float64
	points    float64
}

var (
	volumeTiers = []tier{{1000, 40}, {500, 30}, {200, 20}, {100, 10}, {50, 5}}
	oiTiers     = []tier{{5000, 40}, {2000, 30}, {1000, 20}, {500, 10}, {100, 5}}
	spreadTiers = []tier{{0.02, 20}, {0.05, 15}, {0.10, 10}, {0.15, 5}}
)

// MinIVHistory is the number of IV observations needed for a meaningful rank.
const MinIVHistory = 10

// LiquidityScore rates a candidate's weakest leg on a 0-100 scale.
func LiquidityScore(c domain.StrategyCandidate) float64 {
	score := 0.0
	score += atLeast(float64(c.Volume()), volumeTiers)
	score += atLeast(float64(c.OpenInterest()), oiTiers)

	spread := c.WidestSpreadPct()
	for _, t := range spreadTiers {
		if spread <= t.threshold {
			score += t.points
			break
		}
	}
	return score
}

func atLeast(v float64, tiers []tier) float64 {
	for _, t := range tiers {
		if v >= t.threshold {
			return t.points
		}
	}
	return 0
}

// IVRank places the candidate's average implied volatility within the
// underlying's IV history. Short histories rank neutral at 0.5.
func IVRank(c domain.StrategyCandidate, history []float64) float64 {
	if len(history) < MinIVHistory {
		return 0.5
	}
	return formulas.PercentileRank(c.AverageIV(), history)
}

// =============================================================================
// COMPOSITE SCORE
// =============================================================================

// Normalize min-max scales each factor across the whole set.
// A factor that is constant across the set maps to 1.0 for every entry.
func Normalize(raw []domain.Factors) []domain.Factors {
	n := len(raw)
	ret := make([]float64, n)
	prob := make([]float64, n)
	liq := make([]float64, n)
	rank := make([]float64, n)
	for i, f := range raw {
		ret[i] = f.AnnualizedReturn
		prob[i] = f.Probability
		liq[i] = f.Liquidity
		rank[i] = f.IVRank
	}
	ret, prob, liq, rank = formulas.MinMax(ret), formulas.MinMax(prob), formulas.MinMax(liq), formulas.MinMax(rank)

	out := make([]domain.Factors, n)
	for i := range raw {
		out[i] = domain.Factors{
			AnnualizedReturn: ret[i],
			Probability:      prob[i],
			Liquidity:        liq[i],
			IVRank:           rank[i],
		}
	}
	return out
}

// CompositeScore is the weighted sum of normalized factors.
// Weights are used as given; they are not rescaled to sum to one.
func CompositeScore(f domain.Factors, w domain.Weights) float64 {
	score := w.Return*f.AnnualizedReturn +
		w.Probability*f.Probability +
		w.Liquidity*f.Liquidity +
		w.IVRank*f.IVRank
	if math.IsNaN(score) {
		return 0
	}
	return score
}
