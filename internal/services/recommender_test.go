package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aristath/optionseller/internal/database"
	"github.com/aristath/optionseller/internal/domain"
	"github.com/aristath/optionseller/internal/evaluation/workers"
	"github.com/aristath/optionseller/internal/marketdata"
	"github.com/aristath/optionseller/internal/modules/pricing"
	"github.com/aristath/optionseller/internal/modules/probability"
	"github.com/aristath/optionseller/internal/modules/risk"
	"github.com/aristath/optionseller/internal/modules/screening"
	"github.com/aristath/optionseller/internal/modules/strategies"
	testutil "github.com/aristath/optionseller/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	calls     int
	requested []string
}

func (f *fakeFetcher) FetchAll(_ context.Context, symbols []string) marketdata.FetchResult {
	f.calls++
	f.requested = symbols
	result := marketdata.FetchResult{Chains: map[string]marketdata.Chain{}}
	for i, sym := range symbols {
		if sym == "BAD" {
			err := errors.New("provider down")
			result.Failures = append(result.Failures, marketdata.Failure{Symbol: sym, Err: err, Error: err.Error()})
			continue
		}
		spec := testutil.DefaultChainSpec(sym)
		spec.Spot += float64(i)
		result.Chains[sym] = marketdata.Chain{
			Snapshot:  testutil.NewSnapshot(spec),
			Contracts: testutil.NewChain(spec),
			FetchedAt: testutil.FixtureAsOf,
		}
	}
	return result
}

type countingObserver struct {
	runs     int
	failures int
	stats    screening.Stats
}

func (o *countingObserver) ObserveScreen(stats screening.Stats, fetchFailures int) {
	o.runs++
	o.failures += fetchFailures
	o.stats = stats
}

func permissive() domain.ScreeningCriteria {
	return domain.ScreeningCriteria{
		DTERange:    domain.IntRange{Min: 0, Max: 365},
		IVRankRange: domain.FloatRange{Min: 0, Max: 1},
		Weights:     domain.DefaultCriteria().Weights,
	}
}

func newRecommender(fetcher ChainFetcher, store ReportStore) *RecommenderService {
	engine := pricing.NewEngine(pricing.Config{})
	evaluator := strategies.NewEvaluator(engine, probability.NewModel(engine.Floor()), nil, zerolog.Nop())
	svc := NewRecommenderService(
		fetcher,
		evaluator,
		screening.NewScreener(zerolog.Nop()),
		risk.NewManager(risk.DefaultConfig(), zerolog.Nop()),
		workers.NewWorkerPool(4),
		store,
		RecommenderConfig{
			Watchlist:  []string{"MSFT", "AAPL"},
			Criteria:   permissive(),
			MaxResults: 10,
			Capital:    100000,
		},
		zerolog.Nop(),
	)
	svc.now = func() time.Time { return testutil.FixtureAsOf }
	return svc
}

func TestRecommender_Run(t *testing.T) {
	fetcher := &fakeFetcher{}
	observer := &countingObserver{}
	svc := newRecommender(fetcher, nil)
	svc.SetObserver(observer)

	report, err := svc.Run(context.Background(), ScreenRequest{Symbols: []string{"msft", "BAD", "aapl", "AAPL"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"AAPL", "BAD", "MSFT"}, fetcher.requested, "symbols are normalized and deduplicated")
	assert.NotEmpty(t, report.ID)
	assert.Equal(t, testutil.FixtureAsOf, report.GeneratedAt)
	assert.Equal(t, domain.AllStrategies(), report.Strategies)
	assert.Equal(t, 100000.0, report.Capital)

	require.Len(t, report.Failures, 1)
	assert.Equal(t, "BAD", report.Failures[0].Symbol)

	require.Len(t, report.Recommendations, 10)
	for i, rec := range report.Recommendations {
		assert.Equal(t, i+1, rec.Opportunity.Rank)
		assert.Equal(t, rec.Opportunity.Candidate.Symbol, rec.Risk.Symbol)
		assert.Equal(t, rec.Opportunity.Candidate.Key(), rec.Risk.Key)
		assert.NotEqual(t, "BAD", rec.Opportunity.Candidate.Symbol)
		if i > 0 {
			assert.GreaterOrEqual(t, report.Recommendations[i-1].Opportunity.Score, rec.Opportunity.Score)
		}
	}
	assert.Greater(t, report.Stats.Candidates, 10)
	assert.Equal(t, 10, report.Stats.Returned)

	assert.Equal(t, 1, observer.runs)
	assert.Equal(t, 1, observer.failures)
	assert.Equal(t, report.Stats.Candidates, observer.stats.Candidates)

	latest, err := svc.Latest()
	require.NoError(t, err)
	assert.Equal(t, report.ID, latest.ID)
}

func TestRecommender_Deterministic(t *testing.T) {
	svc := newRecommender(&fakeFetcher{}, nil)

	keys := func() []string {
		report, err := svc.Run(context.Background(), ScreenRequest{MaxResults: -1})
		require.NoError(t, err)
		out := make([]string, len(report.Recommendations))
		for i, r := range report.Recommendations {
			out[i] = r.Opportunity.Candidate.Key()
		}
		return out
	}

	first := keys()
	require.NotEmpty(t, first)
	for i := 0; i < 3; i++ {
		assert.Equal(t, first, keys())
	}
}

func TestRecommender_RequestOverrides(t *testing.T) {
	fetcher := &fakeFetcher{}
	svc := newRecommender(fetcher, nil)

	report, err := svc.Run(context.Background(), ScreenRequest{
		Strategies: []domain.StrategyType{domain.CashSecuredPut},
		MaxResults: 3,
		Capital:    50000,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"AAPL", "MSFT"}, fetcher.requested, "watchlist is used without symbols")
	assert.Len(t, report.Recommendations, 3)
	assert.Equal(t, 50000.0, report.Capital)
	for _, rec := range report.Recommendations {
		assert.Equal(t, domain.CashSecuredPut, rec.Opportunity.Candidate.Strategy)
	}
}

func TestRecommender_StrategyAliasesAreDeduplicated(t *testing.T) {
	tests := []struct {
		name       string
		strategies []domain.StrategyType
		want       []domain.StrategyType
	}{
		{"alias and canonical", []domain.StrategyType{"csp", "put", domain.CashSecuredPut}, []domain.StrategyType{domain.CashSecuredPut}},
		{"order is kept", []domain.StrategyType{"strangle", "cc", "short_strangle"}, []domain.StrategyType{domain.ShortStrangle, domain.CoveredCall}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newRecommender(&fakeFetcher{}, nil)
			report, err := svc.Run(context.Background(), ScreenRequest{Strategies: tt.strategies, MaxResults: -1})
			require.NoError(t, err)

			assert.Equal(t, tt.want, report.Strategies)
			require.NotEmpty(t, report.Recommendations)
			keys := map[string]bool{}
			for _, rec := range report.Recommendations {
				key := rec.Opportunity.Candidate.Key()
				assert.False(t, keys[key], "duplicate %s", key)
				keys[key] = true
				assert.Contains(t, tt.want, rec.Opportunity.Candidate.Strategy)
			}
		})
	}
}

func TestRecommender_ConfigErrors(t *testing.T) {
	bad := permissive()
	bad.Weights.Return = -1

	tests := []struct {
		name string
		svc  func(f *fakeFetcher) *RecommenderService
		req  ScreenRequest
	}{
		{"invalid criteria", func(f *fakeFetcher) *RecommenderService { return newRecommender(f, nil) }, ScreenRequest{Criteria: &bad}},
		{"unknown preset", func(f *fakeFetcher) *RecommenderService { return newRecommender(f, nil) }, ScreenRequest{Preset: "yolo"}},
		{"unknown strategy", func(f *fakeFetcher) *RecommenderService { return newRecommender(f, nil) }, ScreenRequest{
			Strategies: []domain.StrategyType{"straddle"},
		}},
		{"no symbols", func(f *fakeFetcher) *RecommenderService {
			svc := newRecommender(f, nil)
			svc.cfg.Watchlist = nil
			return svc
		}, ScreenRequest{Symbols: []string{" "}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := &fakeFetcher{}
			_, err := tt.svc(fetcher).Run(context.Background(), tt.req)

			var cfgErr *domain.ConfigError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
			assert.Zero(t, fetcher.calls, "configuration is checked before fetching")
		})
	}
}

func TestRecommender_CanceledContext(t *testing.T) {
	svc := newRecommender(&fakeFetcher{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Run(ctx, ScreenRequest{})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = svc.Latest()
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRecommender_PersistsReports(t *testing.T) {
	db := testutil.NewTestDB(t, database.NameReports)
	store := NewReportRepository(db.Conn(), 2, zerolog.Nop())

	_, err := store.Latest()
	assert.ErrorIs(t, err, domain.ErrNotFound)

	first := newRecommender(&fakeFetcher{}, store)
	var last Report
	for i := 0; i < 3; i++ {
		last, err = first.Run(context.Background(), ScreenRequest{MaxResults: 5})
		require.NoError(t, err)
	}

	history, err := store.History(0)
	require.NoError(t, err)
	assert.Len(t, history, 2, "older reports are pruned")
	assert.Equal(t, last.ID, history[0].ID)
	assert.Equal(t, 5, history[0].Returned)

	restarted := newRecommender(&fakeFetcher{}, store)
	loaded, err := restarted.Latest()
	require.NoError(t, err)
	assert.Equal(t, last.ID, loaded.ID)
	require.Len(t, loaded.Recommendations, 5)
	assert.Equal(t,
		last.Recommendations[0].Opportunity.Candidate.Key(),
		loaded.Recommendations[0].Opportunity.Candidate.Key())
	assert.Equal(t, last.Recommendations[0].Risk.Recommendation, loaded.Recommendations[0].Risk.Recommendation)
}
