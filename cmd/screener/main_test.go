package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestPriceCommand(t *testing.T) {
	out, err := execute(t, "price", "--type", "put", "--spot", "100", "--strike", "95",
		"--days", "30", "--vol", "0.25", "--rate", "0.05", "--format", "json")
	require.NoError(t, err)

	var result struct {
		Price          float64 `json:"price"`
		ITMProbability float64 `json:"itm_probability"`
		Greeks         struct {
			Delta float64 `json:"delta"`
		} `json:"greeks"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result), out)
	assert.Greater(t, result.Price, 0.0)
	assert.Less(t, result.Greeks.Delta, 0.0)
	assert.Greater(t, result.ITMProbability, 0.0)
	assert.Less(t, result.ITMProbability, 0.5)
}

func TestPriceCommand_ImpliedVolatility(t *testing.T) {
	out, err := execute(t, "price", "--type", "call", "--spot", "100", "--strike", "100",
		"--days", "30", "--market-price", "3.0", "--format", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "Implied vol")
	assert.Contains(t, out, "Delta")
}

func TestPriceCommand_InvalidType(t *testing.T) {
	_, err := execute(t, "price", "--type", "straddle", "--spot", "100", "--strike", "100", "--format", "table")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "straddle")
}

func TestPresetsCommand(t *testing.T) {
	out, err := execute(t, "presets", "--format", "table")
	require.NoError(t, err)
	for _, name := range []string{"conservative_income", "aggressive_income", "high_probability", "earnings_plays"} {
		assert.Contains(t, out, name)
	}
}

func TestUnknownFormat(t *testing.T) {
	_, err := execute(t, "presets", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xml")
}

func TestScreenCommand(t *testing.T) {
	t.Setenv("OPTIONSELLER_DATA_DIR", t.TempDir())
	t.Setenv("WATCHLIST", "")

	chains := filepath.Join("..", "..", "internal", "marketdata", "testdata")
	out, err := execute(t, "screen", "AAPL", "--chains", chains, "--format", "json")
	require.NoError(t, err)

	var report struct {
		Symbols []string `json:"symbols"`
		Stats   struct {
			Candidates int `json:"candidates"`
		} `json:"stats"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report), out)
	assert.Equal(t, []string{"AAPL"}, report.Symbols)
	assert.Greater(t, report.Stats.Candidates, 0)
}

func TestRiskCommand_EmptyPortfolio(t *testing.T) {
	t.Setenv("OPTIONSELLER_DATA_DIR", t.TempDir())

	out, err := execute(t, "risk", "--capital", "50000", "--format", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "Positions")
	assert.Contains(t, out, "$50000.00")
}

func TestSizeCommand(t *testing.T) {
	t.Setenv("OPTIONSELLER_DATA_DIR", t.TempDir())

	out, err := execute(t, "size", "--max-loss", "2500", "--capital", "100000", "--fraction", "0.1", "--format", "json")
	require.NoError(t, err)

	var result struct {
		Contracts int `json:"contracts"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result), out)
	assert.Equal(t, 4, result.Contracts)
}

func TestSizeCommand_ZeroMaxLoss(t *testing.T) {
	t.Setenv("OPTIONSELLER_DATA_DIR", t.TempDir())

	_, err := execute(t, "size", "--max-loss", "0", "--format", "table")
	require.Error(t, err)
}
