// Package rolls suggests how to roll an open short option position.
package rolls

import (
	"fmt"
	"math"

	"github.com/aristath/optionseller/internal/domain"
	"github.com/aristath/optionseller/internal/modules/pricing"
	"github.com/aristath/optionseller/internal/modules/probability"
	"github.com/rs/zerolog"
)

// Kind names a roll.
type Kind string

const (
	RollOut        Kind = "roll_out"
	RollDownAndOut Kind = "roll_down_and_out"
	RollUpAndOut   Kind = "roll_up_and_out"
)

// Config controls when a roll is advised and what it rolls to.
type Config struct {
	TestedDelta float64 `yaml:"tested_delta" json:"tested_delta"`
	MinDTE      int     `yaml:"min_dte" json:"min_dte"`
	RollDays    int     `yaml:"roll_days" json:"roll_days"`
	StrikeStep  float64 `yaml:"strike_step" json:"strike_step"` // fraction of the current strike
}

// DefaultConfig rolls out 30 days and 5% away once a leg is tested or within a week of expiry.
func DefaultConfig() Config {
	return Config{
		TestedDelta: 0.50,
		MinDTE:      7,
		RollDays:    30,
		StrikeStep:  0.05,
	}
}

// Suggestion is one repriced roll of a single short leg. Money fields are
// per contract in dollars.
type Suggestion struct {
	Kind           Kind              `json:"kind"`
	Leg            domain.OptionType `json:"leg"`
	FromStrike     float64           `json:"from_strike"`
	ToStrike       float64           `json:"to_strike"`
	ToExpiration   string            `json:"to_expiration"`
	CloseCost      float64           `json:"close_cost"`
	OpenCredit     float64           `json:"open_credit"`
	NetCredit      float64           `json:"net_credit"`
	NewDelta       float64           `json:"new_delta"`
	NewProbability float64           `json:"new_probability"`
}

// Advice is the roll assessment of one position.
type Advice struct {
	PositionID  string       `json:"position_id"`
	Symbol      string       `json:"symbol"`
	DTE         int          `json:"dte"`
	Delta       float64      `json:"delta"`
	ShouldRoll  bool         `json:"should_roll"`
	Reasons     []string     `json:"reasons"`
	Suggestions []Suggestion `json:"suggestions"`
}

// Advisor prices roll alternatives with the same model used for screening.
type Advisor struct {
	engine *pricing.Engine
	model  *probability.Model
	cfg    Config
	log    zerolog.Logger
}

// NewAdvisor creates a new roll advisor
func NewAdvisor(engine *pricing.Engine, model *probability.Model, cfg Config, log zerolog.Logger) *Advisor {
	return &Advisor{
		engine: engine,
		model:  model,
		cfg:    cfg,
		log:    log.With().Str("component", "roll_advisor").Logger(),
	}
}

// Advise prices the roll alternatives for every short leg of the position.
// Suggestions are returned whether or not a roll is advised.
func (a *Advisor) Advise(p domain.Position, u domain.UnderlyingSnapshot) (Advice, error) {
	if p.Symbol != u.Symbol {
		return Advice{}, fmt.Errorf("snapshot for %s does not match position on %s", u.Symbol, p.Symbol)
	}

	dte := domain.DaysToExpiration(u.Timestamp, p.Expiration)
	advice := Advice{
		PositionID:  p.ID,
		Symbol:      p.Symbol,
		DTE:         dte,
		Delta:       p.OptionDelta(),
		Reasons:     []string{},
		Suggestions: []Suggestion{},
	}
	if math.Abs(advice.Delta) > a.cfg.TestedDelta {
		advice.ShouldRoll = true
		advice.Reasons = append(advice.Reasons, fmt.Sprintf("delta %.2f beyond %.2f", advice.Delta, a.cfg.TestedDelta))
	}
	if dte <= a.cfg.MinDTE {
		advice.ShouldRoll = true
		advice.Reasons = append(advice.Reasons, fmt.Sprintf("%d days to expiration", dte))
	}

	sigma := u.Volatility
	if sigma <= 0 {
		sigma = p.Volatility
	}

	legs := []struct {
		typ    domain.OptionType
		strike float64
		kind   Kind
		dir    float64
	}{
		{domain.Put, p.PutStrike, RollDownAndOut, -1},
		{domain.Call, p.CallStrike, RollUpAndOut, 1},
	}
	for _, leg := range legs {
		if leg.strike <= 0 {
			continue
		}
		current := domain.OptionContract{Symbol: p.Symbol, Strike: leg.strike, Expiration: p.Expiration, Type: leg.typ}
		closing, err := a.engine.Price(u, current, u.RiskFreeRate, sigma)
		if err != nil {
			return Advice{}, fmt.Errorf("failed to price %s %.2f: %w", leg.typ, leg.strike, err)
		}

		target := p.Expiration.AddDate(0, 0, a.cfg.RollDays)
		for _, r := range []struct {
			kind   Kind
			strike float64
		}{
			{RollOut, leg.strike},
			{leg.kind, stepStrike(leg.strike, leg.dir*a.cfg.StrikeStep)},
		} {
			next := domain.OptionContract{Symbol: p.Symbol, Strike: r.strike, Expiration: target, Type: leg.typ}
			opening, err := a.engine.Price(u, next, u.RiskFreeRate, sigma)
			if err != nil {
				return Advice{}, fmt.Errorf("failed to price roll to %.2f: %w", r.strike, err)
			}
			advice.Suggestions = append(advice.Suggestions, a.suggestion(r.kind, leg.typ, leg.strike, next, closing, opening, u))
		}
	}

	a.log.Debug().
		Str("symbol", p.Symbol).
		Str("position", p.ID).
		Bool("should_roll", advice.ShouldRoll).
		Int("suggestions", len(advice.Suggestions)).
		Msg("Roll advice computed")

	return advice, nil
}

func (a *Advisor) suggestion(kind Kind, typ domain.OptionType, from float64, next domain.OptionContract, closing, opening pricing.Result, u domain.UnderlyingSnapshot) Suggestion {
	years := domain.YearsFromDays(domain.DaysToExpiration(u.Timestamp, next.Expiration))
	premium := opening.Price

	// The rolled leg profits while the price stays on the far side of its breakeven.
	var prob float64
	if typ == domain.Put {
		prob = a.model.ProbAbove(u.Price, next.Strike-premium, years, opening.Volatility, u.RiskFreeRate, u.DividendYield)
	} else {
		prob = 1 - a.model.ProbAbove(u.Price, next.Strike+premium, years, opening.Volatility, u.RiskFreeRate, u.DividendYield)
	}

	return Suggestion{
		Kind:           kind,
		Leg:            typ,
		FromStrike:     from,
		ToStrike:       next.Strike,
		ToExpiration:   next.Expiration.Format("2006-01-02"),
		CloseCost:      closing.Price * domain.ContractMultiplier,
		OpenCredit:     opening.Price * domain.ContractMultiplier,
		NetCredit:      (opening.Price - closing.Price) * domain.ContractMultiplier,
		NewDelta:       -opening.Greeks.Delta,
		NewProbability: prob,
	}
}

// stepStrike moves a strike by a fraction and rounds to a listed whole-dollar
// strike, always moving at least one dollar.
func stepStrike(strike, fraction float64) float64 {
	next := math.Round(strike * (1 + fraction))
	switch {
	case fraction < 0 && next >= strike:
		next = math.Floor(strike) - 1
	case fraction > 0 && next <= strike:
		next = math.Ceil(strike) + 1
	}
	return math.Max(next, 1)
}
