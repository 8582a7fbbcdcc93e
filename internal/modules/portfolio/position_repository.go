// Package portfolio stores option-selling positions through their lifecycle
// and runs the risk, greeks and roll analytics over them.
package portfolio

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/optionseller/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const positionColumns = `id, symbol, strategy, contracts, entry_credit, margin, max_loss,
	call_strike, put_strike, expiration, delta, gamma, theta, vega, underlying_price,
	volatility, opened_at, status, close_premium, closed_at, wheel_state`

// PositionRepository handles position database operations
type PositionRepository struct {
	db  *sql.DB // portfolio.db - positions
	log zerolog.Logger
}

// NewPositionRepository creates a new position repository
func NewPositionRepository(db *sql.DB, log zerolog.Logger) *PositionRepository {
	return &PositionRepository{
		db:  db,
		log: log.With().Str("repo", "position").Logger(),
	}
}

// Create inserts a position. A missing ID is generated.
func (r *PositionRepository) Create(p domain.Position) (domain.Position, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Symbol = strings.ToUpper(strings.TrimSpace(p.Symbol))
	if p.Status == "" {
		p.Status = domain.PositionOpen
	}

	query := `INSERT INTO positions (` + positionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.Exec(query,
		p.ID,
		p.Symbol,
		string(p.Strategy),
		p.Contracts,
		p.EntryCredit,
		p.Margin,
		p.MaxLoss,
		nullFloat64(p.CallStrike),
		nullFloat64(p.PutStrike),
		p.Expiration.UTC().Unix(),
		p.Delta,
		p.Gamma,
		p.Theta,
		p.Vega,
		p.UnderlyingPrice,
		p.Volatility,
		p.OpenedAt.UTC().Unix(),
		string(p.Status),
		nullFloat64(p.ClosePremium),
		nullUnix(p.ClosedAt),
		string(p.WheelState),
	)
	if err != nil {
		return domain.Position{}, fmt.Errorf("failed to insert position: %w", err)
	}

	r.log.Info().
		Str("id", p.ID).
		Str("symbol", p.Symbol).
		Str("strategy", string(p.Strategy)).
		Int("contracts", p.Contracts).
		Msg("Position created")

	// Round-trip timestamps to the stored second precision.
	p.Expiration = time.Unix(p.Expiration.Unix(), 0).UTC()
	p.OpenedAt = time.Unix(p.OpenedAt.Unix(), 0).UTC()
	if p.ClosedAt != nil {
		closed := time.Unix(p.ClosedAt.Unix(), 0).UTC()
		p.ClosedAt = &closed
	}
	return p, nil
}

// GetAll returns the open positions ordered by expiration then symbol
func (r *PositionRepository) GetAll() ([]domain.Position, error) {
	return r.GetByStatus(domain.PositionOpen)
}

// GetByStatus returns the positions in one lifecycle state. The empty status
// returns every position.
func (r *PositionRepository) GetByStatus(status domain.PositionStatus) ([]domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions`
	var args []interface{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY expiration, symbol, id`
	return r.query(query, args...)
}

// GetWheelPositions returns positions with a wheel state, open or closed,
// ordered by symbol then newest first.
func (r *PositionRepository) GetWheelPositions() ([]domain.Position, error) {
	return r.query(`SELECT ` + positionColumns + ` FROM positions
		WHERE wheel_state != '' ORDER BY symbol, opened_at DESC, id`)
}

func (r *PositionRepository) query(query string, args ...interface{}) ([]domain.Position, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	positions := []domain.Position{}
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}
	return positions, nil
}

// GetByID returns one position, or domain.ErrNotFound
func (r *PositionRepository) GetByID(id string) (domain.Position, error) {
	row := r.db.QueryRow(`SELECT `+positionColumns+` FROM positions WHERE id = ?`, id)
	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Position{}, fmt.Errorf("position %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Position{}, fmt.Errorf("failed to get position %s: %w", id, err)
	}
	return p, nil
}

// Close marks an open position closed with the debit paid to buy it back.
// It returns domain.ErrNotFound for an unknown ID and
// domain.ErrPositionClosed when the position was already closed.
func (r *PositionRepository) Close(id string, closePremium float64, closedAt time.Time) (domain.Position, error) {
	result, err := r.db.Exec(`UPDATE positions
		SET status = ?, close_premium = ?, closed_at = ?
		WHERE id = ? AND status = ?`,
		string(domain.PositionClosed), closePremium, closedAt.UTC().Unix(), id, string(domain.PositionOpen))
	if err != nil {
		return domain.Position{}, fmt.Errorf("failed to close position: %w", err)
	}
	if err := r.requireChange(result, id); err != nil {
		return domain.Position{}, err
	}

	r.log.Info().
		Str("id", id).
		Float64("close_premium", closePremium).
		Msg("Position closed")
	return r.GetByID(id)
}

// UpdateWheelState moves a position to another wheel state
func (r *PositionRepository) UpdateWheelState(id string, state domain.WheelState) (domain.Position, error) {
	result, err := r.db.Exec(`UPDATE positions SET wheel_state = ? WHERE id = ?`, string(state), id)
	if err != nil {
		return domain.Position{}, fmt.Errorf("failed to update wheel state: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return domain.Position{}, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return domain.Position{}, fmt.Errorf("position %s: %w", id, domain.ErrNotFound)
	}

	r.log.Debug().Str("id", id).Str("wheel_state", string(state)).Msg("Wheel state updated")
	return r.GetByID(id)
}

// requireChange maps an update that touched no open row to the right error.
func (r *PositionRepository) requireChange(result sql.Result, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}
	if _, err := r.GetByID(id); err != nil {
		return err
	}
	return fmt.Errorf("position %s: %w", id, domain.ErrPositionClosed)
}

// Delete removes a position of any status, or returns domain.ErrNotFound
func (r *PositionRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM positions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete position: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("position %s: %w", id, domain.ErrNotFound)
	}

	r.log.Info().Str("id", id).Msg("Position deleted")
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(row rowScanner) (domain.Position, error) {
	var (
		p          domain.Position
		strategy   string
		callStrike sql.NullFloat64
		putStrike  sql.NullFloat64
		expiration int64
		openedAt   int64
		status     string
		closePrem  sql.NullFloat64
		closedAt   sql.NullInt64
		wheelState string
	)
	err := row.Scan(
		&p.ID,
		&p.Symbol,
		&strategy,
		&p.Contracts,
		&p.EntryCredit,
		&p.Margin,
		&p.MaxLoss,
		&callStrike,
		&putStrike,
		&expiration,
		&p.Delta,
		&p.Gamma,
		&p.Theta,
		&p.Vega,
		&p.UnderlyingPrice,
		&p.Volatility,
		&openedAt,
		&status,
		&closePrem,
		&closedAt,
		&wheelState,
	)
	if err != nil {
		return domain.Position{}, err
	}

	p.Strategy = domain.StrategyType(strategy)
	if callStrike.Valid {
		p.CallStrike = callStrike.Float64
	}
	if putStrike.Valid {
		p.PutStrike = putStrike.Float64
	}
	p.Expiration = time.Unix(expiration, 0).UTC()
	p.OpenedAt = time.Unix(openedAt, 0).UTC()
	p.Status = domain.PositionStatus(status)
	p.WheelState = domain.WheelState(wheelState)
	if closePrem.Valid {
		p.ClosePremium = closePrem.Float64
	}
	if closedAt.Valid {
		t := time.Unix(closedAt.Int64, 0).UTC()
		p.ClosedAt = &t
	}
	return p, nil
}

func nullFloat64(val float64) sql.NullFloat64 {
	if val == 0 {
		return sql.NullFloat64{Valid: false}
	}
	return sql.NullFloat64{Float64: val, Valid: true}
}

func nullUnix(t *time.Time) sql.NullInt64 {
	if t == nil || t.IsZero() {
		return sql.NullInt64{Valid: false}
	}
	return sql.NullInt64{Int64: t.UTC().Unix(), Valid: true}
}
