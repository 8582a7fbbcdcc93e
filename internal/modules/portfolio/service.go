package portfolio

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/aristath/optionseller/internal/domain"
	"github.com/aristath/optionseller/internal/marketdata"
	"github.com/aristath/optionseller/internal/modules/risk"
	"github.com/aristath/optionseller/internal/modules/rolls"
	"github.com/rs/zerolog"
)

// PositionRepositoryInterface defines the contract for position storage
type PositionRepositoryInterface interface {
	Create(p domain.Position) (domain.Position, error)
	GetAll() ([]domain.Position, error)
	GetByStatus(status domain.PositionStatus) ([]domain.Position, error)
	GetWheelPositions() ([]domain.Position, error)
	GetByID(id string) (domain.Position, error)
	Close(id string, closePremium float64, closedAt time.Time) (domain.Position, error)
	UpdateWheelState(id string, state domain.WheelState) (domain.Position, error)
	Delete(id string) error
}

// ChainSource returns current market data for one underlying
type ChainSource interface {
	Fetch(ctx context.Context, symbol string) (marketdata.Chain, error)
}

// PortfolioService orchestrates position storage with the risk manager and
// the roll advisor.
//
// Dependencies:
//   - PositionRepositoryInterface: position persistence
//   - risk.Manager: portfolio VaR, diversification and alerts
//   - rolls.Advisor: roll pricing for open positions
//   - ChainSource: live snapshot for roll pricing
type PortfolioService struct {
	positionRepo PositionRepositoryInterface
	riskManager  *risk.Manager
	advisor      *rolls.Advisor
	chains       ChainSource
	capital      float64
	now          func() time.Time
	log          zerolog.Logger
}

// NewPortfolioService creates a new portfolio service. capital is the
// account size used when a request does not name one.
func NewPortfolioService(
	positionRepo PositionRepositoryInterface,
	riskManager *risk.Manager,
	advisor *rolls.Advisor,
	chains ChainSource,
	capital float64,
	log zerolog.Logger,
) *PortfolioService {
	return &PortfolioService{
		positionRepo: positionRepo,
		riskManager:  riskManager,
		advisor:      advisor,
		chains:       chains,
		capital:      capital,
		now:          time.Now,
		log:          log.With().Str("service", "portfolio").Logger(),
	}
}

// Capital returns the default account size
func (s *PortfolioService) Capital() float64 {
	return s.capital
}

// Open validates and stores a new position. Positions always start open.
func (s *PortfolioService) Open(p domain.Position) (domain.Position, error) {
	if err := p.Validate(); err != nil {
		return domain.Position{}, err
	}
	if p.OpenedAt.IsZero() {
		p.OpenedAt = s.now().UTC()
	}
	if p.MaxLoss == 0 {
		p.MaxLoss = p.Margin
	}
	p.Status = domain.PositionOpen
	p.ClosePremium = 0
	p.ClosedAt = nil
	return s.positionRepo.Create(p)
}

// OpenFromCandidate stores a position of n contracts on a screened candidate
func (s *PortfolioService) OpenFromCandidate(c domain.StrategyCandidate, contracts int) (domain.Position, error) {
	return s.Open(domain.NewPositionFromCandidate(c, contracts, s.now().UTC()))
}

// List returns all open positions
func (s *PortfolioService) List() ([]domain.Position, error) {
	return s.positionRepo.GetAll()
}

// ListByStatus returns positions in one lifecycle state; the empty status
// lists every position.
func (s *PortfolioService) ListByStatus(status domain.PositionStatus) ([]domain.Position, error) {
	return s.positionRepo.GetByStatus(status)
}

// Get returns one position
func (s *PortfolioService) Get(id string) (domain.Position, error) {
	return s.positionRepo.GetByID(id)
}

// Close marks a position closed. closePremium is the total debit paid to buy
// the position back; zero means it expired worthless.
func (s *PortfolioService) Close(id string, closePremium float64) (domain.Position, error) {
	if math.IsNaN(closePremium) || math.IsInf(closePremium, 0) || closePremium < 0 {
		return domain.Position{}, &domain.ValidationError{Problems: []string{"close_premium must be a non-negative number"}}
	}
	p, err := s.positionRepo.Close(id, closePremium, s.now().UTC())
	if err != nil {
		return domain.Position{}, err
	}
	s.log.Debug().
		Str("id", p.ID).
		Str("symbol", p.Symbol).
		Float64("realized_pnl", p.RealizedPnL()).
		Msg("Position closed")
	return p, nil
}

// Delete removes a position from the book without recording a close
func (s *PortfolioService) Delete(id string) error {
	return s.positionRepo.Delete(id)
}

// SetWheelState moves a position through the wheel cycle
func (s *PortfolioService) SetWheelState(id string, state string) (domain.Position, error) {
	st, err := domain.ParseWheelState(state)
	if err != nil {
		return domain.Position{}, &domain.ValidationError{Problems: []string{err.Error()}}
	}
	return s.positionRepo.UpdateWheelState(id, st)
}

// WheelPositions returns every position taking part in a wheel
func (s *PortfolioService) WheelPositions() ([]domain.Position, error) {
	return s.positionRepo.GetWheelPositions()
}

// Summary counts open and closed positions, realized P&L and the premium
// held in open positions.
func (s *PortfolioService) Summary() (domain.PortfolioSummary, error) {
	positions, err := s.positionRepo.GetByStatus("")
	if err != nil {
		return domain.PortfolioSummary{}, fmt.Errorf("failed to load positions: %w", err)
	}
	return domain.Summarize(positions), nil
}

// Greeks sums the greeks of the open positions, in total and per symbol
func (s *PortfolioService) Greeks() (domain.PortfolioGreeks, error) {
	positions, err := s.positionRepo.GetAll()
	if err != nil {
		return domain.PortfolioGreeks{}, fmt.Errorf("failed to load positions: %w", err)
	}
	return domain.AggregateGreeks(positions), nil
}

// RiskProfile recomputes portfolio risk over the open positions.
// A non-positive capital uses the service default.
func (s *PortfolioService) RiskProfile(capital float64) (domain.PortfolioRiskProfile, error) {
	if capital <= 0 {
		capital = s.capital
	}
	positions, err := s.positionRepo.GetAll()
	if err != nil {
		return domain.PortfolioRiskProfile{}, fmt.Errorf("failed to load positions: %w", err)
	}

	profile := s.riskManager.PortfolioRisk(positions, capital)
	s.log.Debug().
		Int("positions", profile.Positions).
		Float64("var", profile.VaR).
		Int("alerts", len(profile.Alerts)).
		Msg("Portfolio risk computed")
	return profile, nil
}

// Rolls prices roll alternatives for one position against the current
// snapshot of its underlying.
func (s *PortfolioService) Rolls(ctx context.Context, id string) (rolls.Advice, error) {
	p, err := s.positionRepo.GetByID(id)
	if err != nil {
		return rolls.Advice{}, err
	}
	if !p.IsOpen() {
		return rolls.Advice{}, fmt.Errorf("position %s: %w", id, domain.ErrPositionClosed)
	}
	if s.chains == nil {
		return rolls.Advice{}, fmt.Errorf("no market data source configured: %w", marketdata.ErrUnavailable)
	}

	chain, err := s.chains.Fetch(ctx, p.Symbol)
	if err != nil {
		return rolls.Advice{}, fmt.Errorf("failed to fetch %s: %w", p.Symbol, err)
	}
	return s.advisor.Advise(p, chain.Snapshot)
}
