// Package services provides the services that run the analytics pipeline
// end to end over live market data.
package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aristath/optionseller/internal/domain"
	"github.com/aristath/optionseller/internal/evaluation/workers"
	"github.com/aristath/optionseller/internal/marketdata"
	"github.com/aristath/optionseller/internal/modules/risk"
	"github.com/aristath/optionseller/internal/modules/screening"
	"github.com/aristath/optionseller/internal/modules/strategies"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ChainFetcher loads chains for many symbols, reporting the ones that failed
type ChainFetcher interface {
	FetchAll(ctx context.Context, symbols []string) marketdata.FetchResult
}

// ReportStore persists screening reports
type ReportStore interface {
	Save(report Report) error
	Latest() (Report, error)
}

// RunObserver is notified after every completed run
type RunObserver interface {
	ObserveScreen(stats screening.Stats, fetchFailures int)
}

// ScreenRequest selects what one run screens. Empty fields fall back to
// the service defaults. Criteria wins over Preset when both are set.
type ScreenRequest struct {
	Symbols    []string                  `json:"symbols"`
	Strategies []domain.StrategyType     `json:"strategies"`
	Preset     string                    `json:"preset"`
	Criteria   *domain.ScreeningCriteria `json:"criteria"`
	MaxResults int                       `json:"max_results"`
	Capital    float64                   `json:"capital"`
}

// Recommendation is a ranked opportunity with its sizing and risk report
type Recommendation struct {
	Opportunity domain.ScoredOpportunity `json:"opportunity"`
	Risk        risk.TradeRisk           `json:"risk"`
}

// Report is the outcome of one end-to-end run
type Report struct {
	ID              string                   `json:"id"`
	GeneratedAt     time.Time                `json:"generated_at"`
	Symbols         []string                 `json:"symbols"`
	Strategies      []domain.StrategyType    `json:"strategies"`
	Preset          string                   `json:"preset,omitempty"`
	Capital         float64                  `json:"capital"`
	Criteria        domain.ScreeningCriteria `json:"criteria"`
	Recommendations []Recommendation         `json:"recommendations"`
	Rejections      []domain.Rejection       `json:"rejections"`
	Failures        []marketdata.Failure     `json:"failures"`
	FromCache       int                      `json:"from_cache"`
	Stats           screening.Stats          `json:"stats"`
}

// RecommenderConfig holds the defaults a request can override
type RecommenderConfig struct {
	Watchlist  []string
	Strategies []domain.StrategyType
	Criteria   domain.ScreeningCriteria
	MaxResults int
	Capital    float64
}

// RecommenderService fetches chains, builds candidates on the worker pool,
// screens them and attaches a risk report to every survivor.
type RecommenderService struct {
	fetcher     ChainFetcher
	evaluator   *strategies.Evaluator
	screener    *screening.Screener
	riskManager *risk.Manager
	pool        *workers.WorkerPool
	store       ReportStore
	observer    RunObserver
	cfg         RecommenderConfig
	now         func() time.Time

	mu     sync.RWMutex
	latest *Report

	log zerolog.Logger
}

// NewRecommenderService creates a new recommender service. store may be nil.
func NewRecommenderService(
	fetcher ChainFetcher,
	evaluator *strategies.Evaluator,
	screener *screening.Screener,
	riskManager *risk.Manager,
	pool *workers.WorkerPool,
	store ReportStore,
	cfg RecommenderConfig,
	log zerolog.Logger,
) *RecommenderService {
	if len(cfg.Strategies) == 0 {
		cfg.Strategies = domain.AllStrategies()
	}
	return &RecommenderService{
		fetcher:     fetcher,
		evaluator:   evaluator,
		screener:    screener,
		riskManager: riskManager,
		pool:        pool,
		store:       store,
		cfg:         cfg,
		now:         time.Now,
		log:         log.With().Str("service", "recommender").Logger(),
	}
}

// SetObserver registers a run observer
func (s *RecommenderService) SetObserver(o RunObserver) {
	s.observer = o
}

// Watchlist returns the default symbols
func (s *RecommenderService) Watchlist() []string {
	return append([]string(nil), s.cfg.Watchlist...)
}

type buildJob struct {
	symbol   string
	strategy domain.StrategyType
	chain    marketdata.Chain
}

type buildResult struct {
	candidates []domain.StrategyCandidate
	rejections []domain.Rejection
}

// Run executes one screening run. Invalid criteria or an empty symbol list
// fail before any fetch. Symbols whose data could not be fetched are listed
// in the report's failures; the rest are screened.
func (s *RecommenderService) Run(ctx context.Context, req ScreenRequest) (Report, error) {
	symbols := normalizeSymbols(req.Symbols)
	if len(symbols) == 0 {
		symbols = normalizeSymbols(s.cfg.Watchlist)
	}
	if len(symbols) == 0 {
		return Report{}, &domain.ConfigError{Problems: []string{"no symbols to screen"}}
	}

	strategyList, err := normalizeStrategies(req.Strategies)
	if err != nil {
		return Report{}, err
	}
	if len(strategyList) == 0 {
		strategyList = s.cfg.Strategies
	}

	criteria := s.cfg.Criteria
	switch {
	case req.Criteria != nil:
		criteria = *req.Criteria
	case req.Preset != "":
		preset, err := domain.Preset(req.Preset)
		if err != nil {
			return Report{}, &domain.ConfigError{Problems: []string{err.Error()}}
		}
		criteria = preset
	}
	if err := criteria.Validate(); err != nil {
		return Report{}, err
	}

	maxResults := req.MaxResults
	if maxResults == 0 {
		maxResults = s.cfg.MaxResults
	}
	capital := req.Capital
	if capital <= 0 {
		capital = s.cfg.Capital
	}

	start := s.now()
	fetched := s.fetcher.FetchAll(ctx, symbols)

	var jobs []buildJob
	snapshots := make(map[string]domain.UnderlyingSnapshot, len(fetched.Chains))
	for _, symbol := range symbols {
		chain, ok := fetched.Chains[symbol]
		if !ok {
			continue
		}
		snapshots[symbol] = chain.Snapshot
		for _, st := range strategyList {
			jobs = append(jobs, buildJob{symbol: symbol, strategy: st, chain: chain})
		}
	}

	built, err := workers.Map(ctx, s.pool, jobs, func(j buildJob) buildResult {
		c, r := s.evaluator.BuildCandidates(j.symbol, j.chain.Contracts, j.chain.Snapshot, j.strategy, criteria)
		return buildResult{candidates: c, rejections: r}
	}, nil)
	if err != nil {
		return Report{}, fmt.Errorf("candidate evaluation interrupted: %w", err)
	}

	var candidates []domain.StrategyCandidate
	rejections := []domain.Rejection{}
	for _, b := range built {
		candidates = append(candidates, b.candidates...)
		rejections = append(rejections, b.rejections...)
	}

	screened, err := s.screener.ScreenWithSnapshots(candidates, snapshots, criteria, maxResults)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		ID:              uuid.NewString(),
		GeneratedAt:     s.now().UTC(),
		Symbols:         symbols,
		Strategies:      strategyList,
		Preset:          req.Preset,
		Capital:         capital,
		Criteria:        criteria,
		Recommendations: make([]Recommendation, 0, len(screened.Opportunities)),
		Rejections:      append(rejections, screened.Rejections...),
		Failures:        fetched.Failures,
		FromCache:       fetched.FromCache,
		Stats:           screened.Stats,
	}
	if report.Failures == nil {
		report.Failures = []marketdata.Failure{}
	}
	for _, opp := range screened.Opportunities {
		report.Recommendations = append(report.Recommendations, Recommendation{
			Opportunity: opp,
			Risk:        s.riskManager.AnalyzeTradeRisk(opp, capital),
		})
	}

	s.mu.Lock()
	s.latest = &report
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.Save(report); err != nil {
			s.log.Warn().Err(err).Str("report", report.ID).Msg("Failed to persist screening report")
		}
	}
	if s.observer != nil {
		s.observer.ObserveScreen(report.Stats, len(report.Failures))
	}

	s.log.Info().
		Str("report", report.ID).
		Int("symbols", len(symbols)).
		Int("failed", len(report.Failures)).
		Int("candidates", report.Stats.Candidates).
		Int("returned", len(report.Recommendations)).
		Dur("elapsed", s.now().Sub(start)).
		Msg("Screening run completed")

	return report, nil
}

// Latest returns the most recent report, loading it from the store after a
// restart. It returns domain.ErrNotFound before the first run.
func (s *RecommenderService) Latest() (Report, error) {
	s.mu.RLock()
	latest := s.latest
	s.mu.RUnlock()
	if latest != nil {
		return *latest, nil
	}
	if s.store == nil {
		return Report{}, fmt.Errorf("screening report: %w", domain.ErrNotFound)
	}

	report, err := s.store.Latest()
	if err != nil {
		return Report{}, err
	}
	s.mu.Lock()
	if s.latest == nil {
		s.latest = &report
	}
	s.mu.Unlock()
	return report, nil
}

// normalizeStrategies resolves aliases and drops repeats, keeping the
// request order.
func normalizeStrategies(in []domain.StrategyType) ([]domain.StrategyType, error) {
	seen := make(map[domain.StrategyType]struct{}, len(in))
	out := make([]domain.StrategyType, 0, len(in))
	for _, raw := range in {
		st, err := domain.ParseStrategy(string(raw))
		if err != nil {
			return nil, &domain.ConfigError{Problems: []string{err.Error()}}
		}
		if _, dup := seen[st]; dup {
			continue
		}
		seen[st] = struct{}{}
		out = append(out, st)
	}
	return out, nil
}

func normalizeSymbols(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
