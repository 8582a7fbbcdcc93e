package testing

import (
	"math"
	"time"

	"github.com/aristath/optionseller/internal/domain"
	"github.com/aristath/optionseller/internal/modules/pricing"
)

// FixtureAsOf is the valuation time used by the fixtures.
var FixtureAsOf = time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

// ChainSpec describes a synthetic option chain priced off the closed form.
type ChainSpec struct {
	Symbol       string
	Spot         float64
	Volatility   float64
	Rate         float64
	DaysOut      []int
	Strikes      []float64
	HalfSpread   float64
	OpenInterest int64
	Volume       int64
}

// DefaultChainSpec is a liquid 30-day chain on a $150 stock.
func DefaultChainSpec(symbol string) ChainSpec {
	return ChainSpec{
		Symbol:       symbol,
		Spot:         150,
		Volatility:   0.25,
		Rate:         0.05,
		DaysOut:      []int{30},
		Strikes:      []float64{130, 135, 140, 145, 150, 155, 160, 165, 170},
		HalfSpread:   0.05,
		OpenInterest: 1500,
		Volume:       600,
	}
}

// NewSnapshot returns the underlying snapshot matching a chain spec.
func NewSnapshot(spec ChainSpec) domain.UnderlyingSnapshot {
	return domain.UnderlyingSnapshot{
		Symbol:       spec.Symbol,
		Price:        spec.Spot,
		Volatility:   spec.Volatility,
		RiskFreeRate: spec.Rate,
		Timestamp:    FixtureAsOf,
	}
}

// NewChain builds calls and puts at every strike and expiration with quotes
// centred on the model price.
func NewChain(spec ChainSpec) []domain.OptionContract {
	engine := pricing.NewEngine(pricing.Config{})
	var chain []domain.OptionContract
	for _, days := range spec.DaysOut {
		exp := time.Date(FixtureAsOf.Year(), FixtureAsOf.Month(), FixtureAsOf.Day(), 20, 0, 0, 0, time.UTC).AddDate(0, 0, days)
		for _, k := range spec.Strikes {
			for _, typ := range []domain.OptionType{domain.Call, domain.Put} {
				res, err := engine.PriceParams(pricing.Params{
					Type:       typ,
					Spot:       spec.Spot,
					Strike:     k,
					Years:      domain.YearsFromDays(days),
					Volatility: spec.Volatility,
					Rate:       spec.Rate,
				})
				if err != nil {
					continue
				}
				mid := math.Round(res.Price*100) / 100
				chain = append(chain, domain.OptionContract{
					Symbol:            spec.Symbol,
					Strike:            k,
					Expiration:        exp,
					Type:              typ,
					Bid:               math.Max(mid-spec.HalfSpread, 0),
					Ask:               mid + spec.HalfSpread,
					ImpliedVolatility: spec.Volatility,
					OpenInterest:      spec.OpenInterest,
					Volume:            spec.Volume,
				})
			}
		}
	}
	return chain
}

// NewPosition returns an open cash-secured put position.
func NewPosition(id, symbol string, contracts int) domain.Position {
	return domain.Position{
		ID:              id,
		Symbol:          symbol,
		Strategy:        domain.CashSecuredPut,
		Contracts:       contracts,
		EntryCredit:     200 * float64(contracts),
		Margin:          14300 * float64(contracts),
		MaxLoss:         14300 * float64(contracts),
		PutStrike:       145,
		Expiration:      FixtureAsOf.AddDate(0, 0, 30),
		Delta:           0.29,
		UnderlyingPrice: 150,
		Volatility:      0.25,
		OpenedAt:        FixtureAsOf,
	}
}
