package screening

import (
	"errors"
	"testing"

	"github.com/aristath/optionseller/internal/domain"
	"github.com/aristath/optionseller/internal/modules/pricing"
	"github.com/aristath/optionseller/internal/modules/probability"
	"github.com/aristath/optionseller/internal/modules/strategies"
	testutil "github.com/aristath/optionseller/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeCandidate(symbol string, strike float64, oi int64) domain.StrategyCandidate {
	exp := testutil.FixtureAsOf.AddDate(0, 0, 30)
	return domain.StrategyCandidate{
		Symbol:          symbol,
		Strategy:        domain.CashSecuredPut,
		UnderlyingPrice: 150,
		Expiration:      exp,
		DTE:             30,
		Legs: []domain.Leg{{
			Contract: domain.OptionContract{
				Symbol:       symbol,
				Strike:       strike,
				Expiration:   exp,
				Type:         domain.Put,
				Bid:          1.95,
				Ask:          2.05,
				OpenInterest: oi,
				Volume:       600,
			},
			Premium:    2,
			Volatility: 0.25,
			LongDelta:  -0.3,
		}},
		NetCredit:        200,
		MaxProfit:        200,
		MaxLoss:          strike*100 - 200,
		Margin:           strike*100 - 200,
		AnnualizedReturn: 0.2,
		Probability:      domain.ProbabilityMetrics{ProfitProbability: 0.75},
	}
}

func permissive() domain.ScreeningCriteria {
	return domain.ScreeningCriteria{
		DTERange:    domain.IntRange{Min: 0, Max: 365},
		IVRankRange: domain.FloatRange{Min: 0, Max: 1},
		Weights:     domain.DefaultCriteria().Weights,
	}
}

func fixtureCandidates(t *testing.T, symbols ...string) ([]domain.StrategyCandidate, map[string]domain.UnderlyingSnapshot) {
	t.Helper()
	engine := pricing.NewEngine(pricing.Config{})
	e := strategies.NewEvaluator(engine, probability.NewModel(engine.Floor()), nil, zerolog.Nop())

	var all []domain.StrategyCandidate
	snapshots := make(map[string]domain.UnderlyingSnapshot)
	for i, sym := range symbols {
		spec := testutil.DefaultChainSpec(sym)
		spec.Spot += float64(i) * 2
		spec.OpenInterest += int64(i) * 100
		u := testutil.NewSnapshot(spec)
		snapshots[sym] = u
		for _, s := range domain.AllStrategies() {
			c, _ := e.BuildCandidates(sym, testutil.NewChain(spec), u, s, domain.DefaultCriteria())
			all = append(all, c...)
		}
	}
	require.NotEmpty(t, all)
	return all, snapshots
}

func keys(opps []domain.ScoredOpportunity) []string {
	out := make([]string, len(opps))
	for i, o := range opps {
		out[i] = o.Candidate.Key()
	}
	return out
}

func TestScreen_Deterministic(t *testing.T) {
	s := NewScreener(zerolog.Nop())
	candidates, snapshots := fixtureCandidates(t, "AAPL", "MSFT", "AMD")

	first, err := s.ScreenWithSnapshots(candidates, snapshots, domain.DefaultCriteria(), 0)
	require.NoError(t, err)
	require.NotEmpty(t, first.Opportunities)

	reversed := make([]domain.StrategyCandidate, len(candidates))
	for i, c := range candidates {
		reversed[len(candidates)-1-i] = c
	}
	second, err := s.ScreenWithSnapshots(reversed, snapshots, domain.DefaultCriteria(), 0)
	require.NoError(t, err)

	assert.Equal(t, keys(first.Opportunities), keys(second.Opportunities))
	for i, o := range first.Opportunities {
		assert.Equal(t, i+1, o.Rank)
		assert.Equal(t, o.Score, second.Opportunities[i].Score)
		if i > 0 {
			assert.GreaterOrEqual(t, first.Opportunities[i-1].Score, o.Score)
		}
		assert.GreaterOrEqual(t, o.Normalized.AnnualizedReturn, 0.0)
		assert.LessOrEqual(t, o.Normalized.AnnualizedReturn, 1.0)
	}

	assert.Equal(t, len(candidates), first.Stats.Candidates)
	assert.Equal(t, first.Stats.Survivors, len(first.Opportunities))
	assert.Equal(t, len(candidates), first.Stats.Survivors+len(first.Rejections))
}

func TestScreen_NoContractMeetsOpenInterest(t *testing.T) {
	s := NewScreener(zerolog.Nop())
	candidates, _ := fixtureCandidates(t, "AAPL")

	criteria := domain.DefaultCriteria()
	criteria.MinOpenInterest = 10000

	result, err := s.Screen(candidates, criteria, 10)
	require.NoError(t, err)
	assert.NotNil(t, result.Opportunities)
	assert.Empty(t, result.Opportunities)
	require.Len(t, result.Rejections, len(candidates))
	for _, r := range result.Rejections {
		assert.Equal(t, domain.ReasonOpenInterest, r.Reason)
	}
	assert.Equal(t, len(candidates), result.Stats.ByReason[domain.ReasonOpenInterest])
}

func TestScreen_EmptyInput(t *testing.T) {
	result, err := NewScreener(zerolog.Nop()).Screen(nil, domain.DefaultCriteria(), 5)
	require.NoError(t, err)
	assert.Empty(t, result.Opportunities)
	assert.Empty(t, result.Rejections)
}

func TestScreen_InvalidCriteria(t *testing.T) {
	criteria := domain.DefaultCriteria()
	criteria.Weights.Liquidity = -0.2
	criteria.DTERange = domain.IntRange{Min: 60, Max: 7}

	_, err := NewScreener(zerolog.Nop()).Screen([]domain.StrategyCandidate{makeCandidate("AAPL", 145, 1000)}, criteria, 5)
	require.Error(t, err)

	var cfgErr *domain.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Len(t, cfgErr.Problems, 2)
}

func TestScreen_TieBreaks(t *testing.T) {
	candidates := []domain.StrategyCandidate{
		makeCandidate("MSFT", 145, 6000),
		makeCandidate("AAPL", 140, 5000),
		makeCandidate("AAPL", 145, 6000),
		makeCandidate("AAPL", 135, 6000),
	}

	result, err := NewScreener(zerolog.Nop()).Screen(candidates, permissive(), 0)
	require.NoError(t, err)

	assert.Equal(t, []string{
		candidates[3].Key(),
		candidates[2].Key(),
		candidates[0].Key(),
		candidates[1].Key(),
	}, keys(result.Opportunities))
	for _, o := range result.Opportunities {
		assert.InDelta(t, domain.DefaultCriteria().Weights.Sum(), o.Score, 1e-12, "identical factors all normalize to 1")
	}
}

func TestScreen_Truncation(t *testing.T) {
	candidates := []domain.StrategyCandidate{
		makeCandidate("AAPL", 145, 1000),
		makeCandidate("AAPL", 140, 1000),
		makeCandidate("MSFT", 145, 1000),
	}
	candidates[1].AnnualizedReturn = 0.4

	tests := []struct {
		name         string
		maxResults   int
		maxPerSymbol int
		expected     []string
		capped       int
	}{
		{"unlimited", 0, 0, []string{candidates[1].Key(), candidates[0].Key(), candidates[2].Key()}, 0},
		{"top one", 1, 0, []string{candidates[1].Key()}, 0},
		{"per symbol", 0, 1, []string{candidates[1].Key(), candidates[2].Key()}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			criteria := permissive()
			criteria.MaxPerSymbol = tt.maxPerSymbol

			result, err := NewScreener(zerolog.Nop()).Screen(candidates, criteria, tt.maxResults)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, keys(result.Opportunities))
			assert.Equal(t, tt.capped, result.Stats.ByReason[domain.ReasonSymbolCap])
		})
	}
}

func TestScreen_FilterReasons(t *testing.T) {
	base := makeCandidate("AAPL", 145, 1000)

	tests := []struct {
		name     string
		mutate   func(c *domain.StrategyCandidate, cr *domain.ScreeningCriteria)
		expected domain.RejectReason
	}{
		{"underlying price", func(c *domain.StrategyCandidate, cr *domain.ScreeningCriteria) {
			cr.PriceRange = domain.FloatRange{Min: 200, Max: 500}
		}, domain.ReasonUnderlyingPrice},
		{"volume", func(c *domain.StrategyCandidate, cr *domain.ScreeningCriteria) { cr.MinVolume = 1000 }, domain.ReasonVolume},
		{"relative spread", func(c *domain.StrategyCandidate, cr *domain.ScreeningCriteria) { cr.MaxBidAskSpread = 0.02 }, domain.ReasonSpread},
		{"absolute spread", func(c *domain.StrategyCandidate, cr *domain.ScreeningCriteria) { cr.MaxBidAskSpreadAbs = 0.05 }, domain.ReasonSpreadAbs},
		{"dte", func(c *domain.StrategyCandidate, cr *domain.ScreeningCriteria) {
			cr.DTERange = domain.IntRange{Min: 45, Max: 60}
		}, domain.ReasonDTE},
		{"delta", func(c *domain.StrategyCandidate, cr *domain.ScreeningCriteria) {
			c.Legs[0].LongDelta = -0.6
			cr.Strategies = domain.DefaultCriteria().Strategies
		}, domain.ReasonDelta},
		{"degenerate", func(c *domain.StrategyCandidate, cr *domain.ScreeningCriteria) {
			c.VolatilityDegenerate = true
			cr.ExcludeVolatilityDegenerate = true
		}, domain.ReasonVolatilityDegenerate},
		{"annualized return", func(c *domain.StrategyCandidate, cr *domain.ScreeningCriteria) { cr.MinAnnualizedReturn = 0.5 }, domain.ReasonAnnualizedReturn},
		{"max loss", func(c *domain.StrategyCandidate, cr *domain.ScreeningCriteria) { cr.MaxLoss = 5000 }, domain.ReasonMaxLoss},
		{"probability", func(c *domain.StrategyCandidate, cr *domain.ScreeningCriteria) { cr.MinProbability = 0.9 }, domain.ReasonProbability},
		{"iv rank", func(c *domain.StrategyCandidate, cr *domain.ScreeningCriteria) {
			cr.IVRankRange = domain.FloatRange{Min: 0.6, Max: 1}
		}, domain.ReasonIVRank},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			c.Legs = append([]domain.Leg(nil), base.Legs...)
			criteria := permissive()
			tt.mutate(&c, &criteria)

			result, err := NewScreener(zerolog.Nop()).Screen([]domain.StrategyCandidate{c}, criteria, 0)
			require.NoError(t, err)
			assert.Empty(t, result.Opportunities)
			require.Len(t, result.Rejections, 1)
			assert.Equal(t, tt.expected, result.Rejections[0].Reason)
			assert.Equal(t, c.Key(), result.Rejections[0].Key)
			assert.NotEmpty(t, result.Rejections[0].Detail)
		})
	}
}

func TestScreen_UnderlyingContextFilters(t *testing.T) {
	c := makeCandidate("AAPL", 145, 1000)
	snapshot := func(mutate func(u *domain.UnderlyingSnapshot)) map[string]domain.UnderlyingSnapshot {
		u := testutil.NewSnapshot(testutil.DefaultChainSpec("AAPL"))
		mutate(&u)
		return map[string]domain.UnderlyingSnapshot{"AAPL": u}
	}

	falling := make([]float64, 60)
	choppy := make([]float64, 60)
	for i := range falling {
		falling[i] = 100 - float64(i)
		choppy[i] = 100
		if i%2 == 1 {
			choppy[i] = 110
		}
	}

	tests := []struct {
		name     string
		mutate   func(u *domain.UnderlyingSnapshot)
		criteria func(cr *domain.ScreeningCriteria)
		expected domain.RejectReason
	}{
		{"earnings inside holding period", func(u *domain.UnderlyingSnapshot) {
			e := testutil.FixtureAsOf.AddDate(0, 0, 10)
			u.NextEarnings = &e
		}, nil, domain.ReasonEarnings},
		{"earnings just after expiration", func(u *domain.UnderlyingSnapshot) {
			e := testutil.FixtureAsOf.AddDate(0, 0, 35)
			u.NextEarnings = &e
		}, nil, domain.ReasonEarnings},
		{"earnings far away", func(u *domain.UnderlyingSnapshot) {
			e := testutil.FixtureAsOf.AddDate(0, 0, 60)
			u.NextEarnings = &e
		}, nil, ""},
		{"earnings ignored", func(u *domain.UnderlyingSnapshot) {
			e := testutil.FixtureAsOf.AddDate(0, 0, 10)
			u.NextEarnings = &e
		}, func(cr *domain.ScreeningCriteria) { cr.AvoidEarnings = false }, ""},
		{"strong downtrend", func(u *domain.UnderlyingSnapshot) { u.PriceHistory = falling }, nil, domain.ReasonTrend},
		{"volatility band", func(u *domain.UnderlyingSnapshot) { u.PriceHistory = choppy }, nil, domain.ReasonVolatilityBand},
		{"trend filter off", func(u *domain.UnderlyingSnapshot) { u.PriceHistory = falling }, func(cr *domain.ScreeningCriteria) { cr.TrendFilter = false }, ""},
		{"low iv rank", func(u *domain.UnderlyingSnapshot) {
			u.IVHistory = []float64{0.3, 0.32, 0.35, 0.4, 0.45, 0.5, 0.55, 0.6, 0.65, 0.7}
		}, func(cr *domain.ScreeningCriteria) { cr.IVRankRange = domain.FloatRange{Min: 0.3, Max: 1} }, domain.ReasonIVRank},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			criteria := permissive()
			criteria.AvoidEarnings = true
			criteria.EarningsWindowDays = 7
			criteria.TrendFilter = true
			criteria.VolatilityBand = domain.FloatRange{Min: 0.1, Max: 1.0}
			if tt.criteria != nil {
				tt.criteria(&criteria)
			}

			result, err := NewScreener(zerolog.Nop()).ScreenWithSnapshots([]domain.StrategyCandidate{c}, snapshot(tt.mutate), criteria, 0)
			require.NoError(t, err)

			if tt.expected == "" {
				assert.Len(t, result.Opportunities, 1)
				assert.Empty(t, result.Rejections)
				return
			}
			assert.Empty(t, result.Opportunities)
			require.Len(t, result.Rejections, 1)
			assert.Equal(t, tt.expected, result.Rejections[0].Reason)
		})
	}
}

func TestNearEarnings(t *testing.T) {
	asOf := testutil.FixtureAsOf
	exp := asOf.AddDate(0, 0, 30)

	assert.True(t, nearEarnings(asOf, exp, asOf.AddDate(0, 0, 1), 7))
	assert.True(t, nearEarnings(asOf, exp, exp.AddDate(0, 0, 7), 7))
	assert.False(t, nearEarnings(asOf, exp, exp.AddDate(0, 0, 8), 7))
	assert.False(t, nearEarnings(asOf, exp, asOf.AddDate(0, 0, -2), 0))
}
