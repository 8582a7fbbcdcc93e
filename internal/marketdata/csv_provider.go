package marketdata

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aristath/optionseller/internal/domain"
	"github.com/gocarina/gocsv"
)

const dateLayout = "2006-01-02"

type underlyingRow struct {
	Symbol        string  `csv:"symbol"`
	Price         float64 `csv:"price"`
	Volatility    float64 `csv:"volatility"`
	RiskFreeRate  float64 `csv:"risk_free_rate"`
	DividendYield float64 `csv:"dividend_yield"`
	Timestamp     string  `csv:"timestamp"`
	NextEarnings  string  `csv:"next_earnings"`
}

type contractRow struct {
	Expiration        string  `csv:"expiration"`
	Type              string  `csv:"type"`
	Strike            float64 `csv:"strike"`
	Bid               float64 `csv:"bid"`
	Ask               float64 `csv:"ask"`
	ImpliedVolatility float64 `csv:"implied_volatility"`
	OpenInterest      int64   `csv:"open_interest"`
	Volume            int64   `csv:"volume"`
}

type historyRow struct {
	Date  string  `csv:"date"`
	Close float64 `csv:"close"`
	IV    float64 `csv:"iv"`
}

// CSVProvider reads snapshots and chains exported to a directory:
//
//	underlyings.csv          one row per symbol
//	chains/<SYMBOL>.csv      the option chain
//	history/<SYMBOL>.csv     optional daily closes and IV
type CSVProvider struct {
	dir string
	now func() time.Time
}

// NewCSVProvider creates a provider rooted at dir.
func NewCSVProvider(dir string) *CSVProvider {
	return &CSVProvider{dir: dir, now: time.Now}
}

func (p *CSVProvider) Name() string { return "csv" }

// FetchChain returns ErrUnavailable when the symbol has no data on disk.
func (p *CSVProvider) FetchChain(ctx context.Context, symbol string) (Chain, error) {
	if err := ctx.Err(); err != nil {
		return Chain{}, err
	}

	snapshot, err := p.snapshot(symbol)
	if err != nil {
		return Chain{}, err
	}

	var rows []contractRow
	if err := readCSV(filepath.Join(p.dir, "chains", symbol+".csv"), &rows); err != nil {
		return Chain{}, err
	}
	contracts := make([]domain.OptionContract, 0, len(rows))
	for i, r := range rows {
		exp, err := parseExpiration(r.Expiration)
		if err != nil {
			return Chain{}, fmt.Errorf("chain %s row %d: %w", symbol, i+1, err)
		}
		contracts = append(contracts, domain.OptionContract{
			Symbol:            symbol,
			Strike:            r.Strike,
			Expiration:        exp,
			Type:              domain.OptionType(strings.ToLower(strings.TrimSpace(r.Type))),
			Bid:               r.Bid,
			Ask:               r.Ask,
			ImpliedVolatility: r.ImpliedVolatility,
			OpenInterest:      r.OpenInterest,
			Volume:            r.Volume,
		})
	}

	var history []historyRow
	err = readCSV(filepath.Join(p.dir, "history", symbol+".csv"), &history)
	switch {
	case errors.Is(err, ErrUnavailable):
	case err != nil:
		return Chain{}, err
	default:
		for _, h := range history {
			if h.Close > 0 {
				snapshot.PriceHistory = append(snapshot.PriceHistory, h.Close)
			}
			if h.IV > 0 {
				snapshot.IVHistory = append(snapshot.IVHistory, h.IV)
			}
		}
	}

	return Chain{Snapshot: snapshot, Contracts: contracts, FetchedAt: p.now()}, nil
}

// Symbols lists the symbols present in underlyings.csv.
func (p *CSVProvider) Symbols() ([]string, error) {
	var rows []underlyingRow
	if err := readCSV(filepath.Join(p.dir, "underlyings.csv"), &rows); err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(rows))
	for _, r := range rows {
		symbols = append(symbols, r.Symbol)
	}
	return symbols, nil
}

func (p *CSVProvider) snapshot(symbol string) (domain.UnderlyingSnapshot, error) {
	var rows []underlyingRow
	if err := readCSV(filepath.Join(p.dir, "underlyings.csv"), &rows); err != nil {
		return domain.UnderlyingSnapshot{}, err
	}
	for _, r := range rows {
		if !strings.EqualFold(r.Symbol, symbol) {
			continue
		}
		u := domain.UnderlyingSnapshot{
			Symbol:        symbol,
			Price:         r.Price,
			Volatility:    r.Volatility,
			RiskFreeRate:  r.RiskFreeRate,
			DividendYield: r.DividendYield,
			Timestamp:     p.now(),
		}
		if r.Timestamp != "" {
			ts, err := time.Parse(time.RFC3339, r.Timestamp)
			if err != nil {
				return domain.UnderlyingSnapshot{}, fmt.Errorf("underlying %s: bad timestamp: %w", symbol, err)
			}
			u.Timestamp = ts
		}
		if r.NextEarnings != "" {
			e, err := time.Parse(dateLayout, r.NextEarnings)
			if err != nil {
				return domain.UnderlyingSnapshot{}, fmt.Errorf("underlying %s: bad earnings date: %w", symbol, err)
			}
			u.NextEarnings = &e
		}
		return u, nil
	}
	return domain.UnderlyingSnapshot{}, ErrUnavailable
}

// parseExpiration accepts a date or an RFC 3339 timestamp. Bare dates
// expire at the 16:00 New York close, taken as 20:00 UTC.
func parseExpiration(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad expiration %q", s)
	}
	return d.Add(20 * time.Hour), nil
}

func readCSV(path string, out interface{}) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return ErrUnavailable
	}
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if err := gocsv.UnmarshalFile(f, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}
