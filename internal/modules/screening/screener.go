// Package screening filters, scores and ranks strategy candidates.
package screening

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aristath/optionseller/internal/domain"
	"github.com/aristath/optionseller/internal/evaluation"
	"github.com/rs/zerolog"
)

// Stats summarizes one screening run.
type Stats struct {
	Candidates int                         `json:"candidates"`
	Survivors  int                         `json:"survivors"`
	Returned   int                         `json:"returned"`
	ByReason   map[domain.RejectReason]int `json:"rejections_by_reason"`
	Duration   time.Duration               `json:"duration_ns"`
}

// Result is the outcome of a screening run.
type Result struct {
	Opportunities []domain.ScoredOpportunity `json:"opportunities"`
	Rejections    []domain.Rejection         `json:"rejections"`
	Stats         Stats                      `json:"stats"`
}

// Screener runs the filter, normalize, score, rank and truncate stages.
// It holds no per-run state and may be shared across goroutines.
type Screener struct {
	log zerolog.Logger
	now func() time.Time
}

// NewScreener creates a new screener
func NewScreener(log zerolog.Logger) *Screener {
	return &Screener{
		log: log.With().Str("component", "screener").Logger(),
		now: time.Now,
	}
}

// Screen ranks candidates against criteria without underlying context.
// Filters that need price or IV history are skipped.
func (s *Screener) Screen(candidates []domain.StrategyCandidate, criteria domain.ScreeningCriteria, maxResults int) (Result, error) {
	return s.ScreenWithSnapshots(candidates, nil, criteria, maxResults)
}

// ScreenWithSnapshots ranks candidates using the snapshots, keyed by symbol,
// for the earnings, trend and IV rank inputs.
//
// Invalid criteria fail the run before any work is done. Every dropped
// candidate is returned with a reason. No survivors is an empty result, not
// an error. maxResults <= 0 returns every survivor.
func (s *Screener) ScreenWithSnapshots(
	candidates []domain.StrategyCandidate,
	snapshots map[string]domain.UnderlyingSnapshot,
	criteria domain.ScreeningCriteria,
	maxResults int,
) (Result, error) {
	if err := criteria.Validate(); err != nil {
		return Result{}, err
	}
	start := s.now()

	result := Result{
		Opportunities: []domain.ScoredOpportunity{},
		Rejections:    []domain.Rejection{},
		Stats: Stats{
			Candidates: len(candidates),
			ByReason:   make(map[domain.RejectReason]int),
		},
	}
	reject := func(c domain.StrategyCandidate, reason domain.RejectReason, detail string) {
		result.Rejections = append(result.Rejections, domain.Rejection{
			Symbol:   c.Symbol,
			Strategy: c.Strategy,
			Key:      c.Key(),
			Reason:   reason,
			Detail:   detail,
		})
		result.Stats.ByReason[reason]++
	}

	// Filter
	var survivors []domain.ScoredOpportunity
	for _, c := range candidates {
		var snap *domain.UnderlyingSnapshot
		if u, ok := snapshots[c.Symbol]; ok {
			snap = &u
		}
		raw := domain.Factors{
			AnnualizedReturn: c.AnnualizedReturn,
			Probability:      c.Probability.ProfitProbability,
			Liquidity:        evaluation.LiquidityScore(c),
			IVRank:           0.5,
		}
		if snap != nil {
			raw.IVRank = evaluation.IVRank(c, snap.IVHistory)
		}

		if reason, detail, ok := check(c, raw, snap, criteria); !ok {
			reject(c, reason, detail)
			continue
		}
		survivors = append(survivors, domain.ScoredOpportunity{Candidate: c, Raw: raw})
	}
	result.Stats.Survivors = len(survivors)

	// Normalize and score
	raw := make([]domain.Factors, len(survivors))
	for i, o := range survivors {
		raw[i] = o.Raw
	}
	for i, f := range evaluation.Normalize(raw) {
		survivors[i].Normalized = f
		survivors[i].Score = evaluation.CompositeScore(f, criteria.Weights)
	}

	// Rank
	sort.SliceStable(survivors, func(i, j int) bool {
		return less(survivors[i], survivors[j])
	})

	// Truncate
	perSymbol := make(map[string]int)
	for _, o := range survivors {
		if maxResults > 0 && len(result.Opportunities) >= maxResults {
			break
		}
		if criteria.MaxPerSymbol > 0 && perSymbol[o.Candidate.Symbol] >= criteria.MaxPerSymbol {
			reject(o.Candidate, domain.ReasonSymbolCap, fmt.Sprintf("more than %d opportunities for %s", criteria.MaxPerSymbol, o.Candidate.Symbol))
			continue
		}
		perSymbol[o.Candidate.Symbol]++
		o.Rank = len(result.Opportunities) + 1
		result.Opportunities = append(result.Opportunities, o)
	}

	result.Stats.Returned = len(result.Opportunities)
	result.Stats.Duration = s.now().Sub(start)

	s.log.Debug().
		Int("candidates", result.Stats.Candidates).
		Int("survivors", result.Stats.Survivors).
		Int("returned", result.Stats.Returned).
		Dur("duration", result.Stats.Duration).
		Msg("Screening completed")

	return result, nil
}

// less orders by score, then open interest, then symbol, then the
// candidate key so that no two distinct candidates compare equal.
func less(a, b domain.ScoredOpportunity) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if oa, ob := a.Candidate.OpenInterest(), b.Candidate.OpenInterest(); oa != ob {
		return oa > ob
	}
	if a.Candidate.Symbol != b.Candidate.Symbol {
		return a.Candidate.Symbol < b.Candidate.Symbol
	}
	return strings.Compare(a.Candidate.Key(), b.Candidate.Key()) < 0
}
