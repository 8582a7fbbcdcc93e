// Package strategies turns an option chain into priced strategy candidates.
package strategies

import (
	"fmt"
	"math"
	"sort"

	"github.com/aristath/optionseller/internal/domain"
	"github.com/aristath/optionseller/internal/modules/pricing"
	"github.com/aristath/optionseller/internal/modules/probability"
	"github.com/rs/zerolog"
)

// minStressMove is the smallest adverse move used to bound strangle losses.
const minStressMove = 0.15

// Evaluator maps strategy types to priced legs and payoff figures.
// It holds no mutable state and is safe for concurrent use.
type Evaluator struct {
	engine *pricing.Engine
	model  *probability.Model
	margin MarginModel
	log    zerolog.Logger
}

// NewEvaluator creates a strategy evaluator
func NewEvaluator(engine *pricing.Engine, model *probability.Model, margin MarginModel, log zerolog.Logger) *Evaluator {
	if margin == nil {
		margin = DefaultMarginModel()
	}
	return &Evaluator{
		engine: engine,
		model:  model,
		margin: margin,
		log:    log.With().Str("component", "strategy_evaluator").Logger(),
	}
}

// MarginModel returns the strangle margin model in use.
func (e *Evaluator) MarginModel() MarginModel {
	return e.margin
}

// BuildCandidates prices every eligible instance of strategy in chain.
//
// DTE is checked before pricing and delta right after, so contracts that
// cannot qualify are never paired. Contracts that fail validation are
// returned as rejections; they never abort the call. An empty chain yields
// no candidates and no rejections.
func (e *Evaluator) BuildCandidates(
	symbol string,
	chain []domain.OptionContract,
	u domain.UnderlyingSnapshot,
	strategy domain.StrategyType,
	criteria domain.ScreeningCriteria,
) ([]domain.StrategyCandidate, []domain.Rejection) {
	if len(chain) == 0 {
		return []domain.StrategyCandidate{}, nil
	}

	thresholds := criteria.For(strategy)
	wantCalls := strategy == domain.CoveredCall || strategy == domain.ShortStrangle
	wantPuts := strategy == domain.CashSecuredPut || strategy == domain.ShortStrangle

	sorted := append([]domain.OptionContract(nil), chain...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Expiration.Equal(sorted[j].Expiration) {
			return sorted[i].Expiration.Before(sorted[j].Expiration)
		}
		if sorted[i].Type != sorted[j].Type {
			return sorted[i].Type < sorted[j].Type
		}
		return sorted[i].Strike < sorted[j].Strike
	})

	var rejections []domain.Rejection
	reject := func(c domain.OptionContract, reason domain.RejectReason, detail string) {
		rejections = append(rejections, domain.Rejection{
			Symbol:   symbol,
			Strategy: strategy,
			Key:      contractKey(symbol, c),
			Reason:   reason,
			Detail:   detail,
		})
	}

	type bucket struct {
		calls []domain.Leg
		puts  []domain.Leg
	}
	buckets := make(map[string]*bucket)
	var order []string
	for _, c := range sorted {
		isCall := c.Type == domain.Call && wantCalls && c.Strike > u.Price
		isPut := c.Type == domain.Put && wantPuts && c.Strike < u.Price
		if !isCall && !isPut {
			continue
		}

		dte := domain.DaysToExpiration(u.Timestamp, c.Expiration)
		if dte >= 0 && !criteria.DTERange.Contains(dte) {
			reject(c, domain.ReasonDTE, fmt.Sprintf("dte %d outside [%d, %d]", dte, criteria.DTERange.Min, criteria.DTERange.Max))
			continue
		}

		leg, err := e.priceLeg(u, c)
		if err != nil {
			reject(c, domain.ReasonInvalidInput, err.Error())
			continue
		}
		if leg.Premium <= 0 {
			reject(c, domain.ReasonNoCredit, "no premium to collect")
			continue
		}
		if d := math.Abs(leg.LongDelta); !thresholds.DeltaRange.Contains(d) {
			reject(c, domain.ReasonDelta, fmt.Sprintf("|delta| %.3f outside [%.2f, %.2f]", d, thresholds.DeltaRange.Min, thresholds.DeltaRange.Max))
			continue
		}

		expKey := c.Expiration.Format("2006-01-02")
		b, ok := buckets[expKey]
		if !ok {
			b = &bucket{}
			buckets[expKey] = b
			order = append(order, expKey)
		}
		if isCall {
			b.calls = append(b.calls, leg)
		} else {
			b.puts = append(b.puts, leg)
		}
	}

	candidates := make([]domain.StrategyCandidate, 0)
	seen := make(map[string]struct{})
	add := func(c domain.StrategyCandidate) {
		key := c.Key()
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		candidates = append(candidates, c)
	}

	for _, expKey := range order {
		b := buckets[expKey]
		switch strategy {
		case domain.CoveredCall:
			for _, call := range b.calls {
				add(e.coveredCall(symbol, u, call))
			}
		case domain.CashSecuredPut:
			for _, put := range b.puts {
				add(e.cashSecuredPut(symbol, u, put))
			}
		case domain.ShortStrangle:
			for _, call := range b.calls {
				for _, put := range b.puts {
					add(e.strangle(symbol, u, call, put))
				}
			}
		}
	}

	e.log.Debug().
		Str("symbol", symbol).
		Str("strategy", string(strategy)).
		Int("contracts", len(chain)).
		Int("candidates", len(candidates)).
		Int("rejections", len(rejections)).
		Msg("Built strategy candidates")

	return candidates, rejections
}

// priceLeg prices one short leg. The premium is the quote midpoint when the
// contract is quoted and the model price otherwise. Missing implied
// volatility is solved from the midpoint, then falls back to the
// underlying's volatility.
func (e *Evaluator) priceLeg(u domain.UnderlyingSnapshot, c domain.OptionContract) (domain.Leg, error) {
	days := domain.DaysToExpiration(u.Timestamp, c.Expiration)
	years := domain.YearsFromDays(days)

	sigma := c.ImpliedVolatility
	if sigma <= 0 {
		sigma = u.Volatility
		if mid := c.Mid(); mid > 0 && years > 0 && u.Price > 0 && c.Strike > 0 {
			iv, err := pricing.ImpliedVolatility(mid, pricing.Params{
				Type:          c.Type,
				Spot:          u.Price,
				Strike:        c.Strike,
				Years:         years,
				Rate:          u.RiskFreeRate,
				DividendYield: u.DividendYield,
			})
			if err == nil {
				sigma = iv
			}
		}
	}

	res, err := e.engine.Price(u, c, u.RiskFreeRate, sigma)
	if err != nil {
		return domain.Leg{}, err
	}

	premium := res.Price
	if mid := c.Mid(); mid > 0 {
		premium = mid
	}

	return domain.Leg{
		Contract:   c,
		Premium:    premium,
		Volatility: res.Volatility,
		TheoPrice:  res.Price,
		Greeks:     res.Greeks.Scale(-1),
		LongDelta:  res.Greeks.Delta,
		Degenerate: res.VolatilityDegenerate,
	}, nil
}

func (e *Evaluator) coveredCall(symbol string, u domain.UnderlyingSnapshot, call domain.Leg) domain.StrategyCandidate {
	credit := call.Premium * domain.ContractMultiplier
	reserved := u.Price*domain.ContractMultiplier - credit

	c := e.base(symbol, domain.CoveredCall, u, call)
	c.NetCredit = credit
	c.MaxProfit = (call.Contract.Strike - u.Price + call.Premium) * domain.ContractMultiplier
	c.MaxLoss = math.Max(reserved, 0)
	c.Margin = math.Max(reserved, 0)
	c.Breakevens = []float64{u.Price - call.Premium}
	c.Greeks.Delta += 1 // long stock
	return e.finish(c, u)
}

func (e *Evaluator) cashSecuredPut(symbol string, u domain.UnderlyingSnapshot, put domain.Leg) domain.StrategyCandidate {
	credit := put.Premium * domain.ContractMultiplier
	reserved := put.Contract.Strike*domain.ContractMultiplier - credit

	c := e.base(symbol, domain.CashSecuredPut, u, put)
	c.NetCredit = credit
	c.MaxProfit = credit
	c.MaxLoss = math.Max(reserved, 0)
	c.Margin = math.Max(reserved, 0)
	c.Breakevens = []float64{put.Contract.Strike - put.Premium}
	return e.finish(c, u)
}

func (e *Evaluator) strangle(symbol string, u domain.UnderlyingSnapshot, call, put domain.Leg) domain.StrategyCandidate {
	premium := call.Premium + put.Premium

	c := e.base(symbol, domain.ShortStrangle, u, call, put)
	c.NetCredit = premium * domain.ContractMultiplier
	c.MaxProfit = c.NetCredit
	c.Breakevens = []float64{put.Contract.Strike - premium, call.Contract.Strike + premium}
	required := e.margin.StrangleMargin(u.Price, call, put)
	stress := StrangleStressLoss(u.Price, c.AverageIV(), domain.YearsFromDays(c.DTE), call, put)
	c.MaxLoss = StrangleMaxLoss(u.Price, stress, required, c.NetCredit)
	c.Margin = math.Max(required, c.MaxLoss)
	return e.finish(c, u)
}

// StrangleMaxLoss is the reported per-contract max loss of a strangle. The
// risk is undefined, so the loss never drops below the margin not covered by
// the credit, nor below a minStressMove move of the underlying.
func StrangleMaxLoss(spot, stress, margin, credit float64) float64 {
	floor := math.Max(margin-credit, minStressMove*spot*domain.ContractMultiplier)
	return math.Max(stress, floor)
}

// StrangleStressLoss is the per-contract loss of a strangle after an adverse
// move of max(3 sigma sqrt(T), 15%) toward the worse side.
func StrangleStressLoss(spot, sigma, years float64, call, put domain.Leg) float64 {
	move := math.Max(3*sigma*math.Sqrt(math.Max(years, 0)), minStressMove)
	premium := call.Premium + put.Premium
	up := spot*(1+move) - call.Contract.Strike - premium
	down := put.Contract.Strike - spot*(1-move) - premium
	return math.Max(math.Max(up, down), 0) * domain.ContractMultiplier
}

func (e *Evaluator) base(symbol string, s domain.StrategyType, u domain.UnderlyingSnapshot, legs ...domain.Leg) domain.StrategyCandidate {
	c := domain.StrategyCandidate{
		Symbol:          symbol,
		Strategy:        s,
		Legs:            legs,
		UnderlyingPrice: u.Price,
		Expiration:      legs[0].Contract.Expiration,
		DTE:             domain.DaysToExpiration(u.Timestamp, legs[0].Contract.Expiration),
	}
	for _, l := range legs {
		c.Greeks = c.Greeks.Add(l.Greeks)
		c.VolatilityDegenerate = c.VolatilityDegenerate || l.Degenerate
	}
	return c
}

func (e *Evaluator) finish(c domain.StrategyCandidate, u domain.UnderlyingSnapshot) domain.StrategyCandidate {
	c.Probability = e.model.ProfitProbability(c, u, domain.YearsFromDays(c.DTE))
	c.AnnualizedReturn = AnnualizedReturn(c.NetCredit, c.Margin, c.DTE)
	return c
}

// AnnualizedReturn is credit over capital at risk, scaled to a year.
func AnnualizedReturn(credit, margin float64, dte int) float64 {
	if margin <= 0 {
		return 0
	}
	days := math.Max(float64(dte), 1)
	return credit / margin * domain.DaysPerYear / days
}

func contractKey(symbol string, c domain.OptionContract) string {
	return fmt.Sprintf("%s|%s|%s|%.2f", symbol, c.Expiration.Format("2006-01-02"), c.Type, c.Strike)
}
