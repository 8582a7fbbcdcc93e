package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/optionseller/internal/domain"
	"github.com/rs/zerolog"
)

// ReportRepository persists screening reports in reports.db
type ReportRepository struct {
	db   *sql.DB
	keep int
	log  zerolog.Logger
}

// NewReportRepository creates a new report repository. Only the newest keep
// reports are retained; keep <= 0 retains everything.
func NewReportRepository(db *sql.DB, keep int, log zerolog.Logger) *ReportRepository {
	return &ReportRepository{
		db:   db,
		keep: keep,
		log:  log.With().Str("repo", "report").Logger(),
	}
}

// Save stores a report and prunes the oldest beyond the retention count
func (r *ReportRepository) Save(report Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`INSERT INTO screening_reports
		(id, generated_at, symbols, candidates, returned, failures, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		report.ID,
		report.GeneratedAt.UTC().Unix(),
		len(report.Symbols),
		report.Stats.Candidates,
		len(report.Recommendations),
		len(report.Failures),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}

	if r.keep > 0 {
		_, err = tx.Exec(`DELETE FROM screening_reports WHERE id NOT IN (
			SELECT id FROM screening_reports ORDER BY generated_at DESC, rowid DESC LIMIT ?)`, r.keep)
		if err != nil {
			return fmt.Errorf("failed to prune reports: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.log.Debug().Str("id", report.ID).Int("bytes", len(payload)).Msg("Report saved")
	return nil
}

// Latest returns the newest report, or domain.ErrNotFound
func (r *ReportRepository) Latest() (Report, error) {
	var payload string
	err := r.db.QueryRow(`SELECT payload FROM screening_reports
		ORDER BY generated_at DESC, rowid DESC LIMIT 1`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Report{}, fmt.Errorf("screening report: %w", domain.ErrNotFound)
	}
	if err != nil {
		return Report{}, fmt.Errorf("failed to load latest report: %w", err)
	}

	var report Report
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		return Report{}, fmt.Errorf("failed to decode report: %w", err)
	}
	return report, nil
}

// ReportSummary is one row of the report history
type ReportSummary struct {
	ID          string    `json:"id"`
	GeneratedAt time.Time `json:"generated_at"`
	Symbols     int       `json:"symbols"`
	Candidates  int       `json:"candidates"`
	Returned    int       `json:"returned"`
	Failures    int       `json:"failures"`
}

// History lists stored reports, newest first
func (r *ReportRepository) History(limit int) ([]ReportSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(`SELECT id, generated_at, symbols, candidates, returned, failures
		FROM screening_reports ORDER BY generated_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	out := []ReportSummary{}
	for rows.Next() {
		var s ReportSummary
		var generated int64
		if err := rows.Scan(&s.ID, &generated, &s.Symbols, &s.Candidates, &s.Returned, &s.Failures); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		s.GeneratedAt = time.Unix(generated, 0).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}
