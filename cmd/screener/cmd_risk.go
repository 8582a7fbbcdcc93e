package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aristath/optionseller/internal/config"
	"github.com/aristath/optionseller/internal/database"
	"github.com/aristath/optionseller/internal/modules/portfolio"
	"github.com/aristath/optionseller/internal/modules/risk"
)

// riskCmd reports risk over the stored positions
var riskCmd = &cobra.Command{
	Use:   "risk",
	Short: "Report portfolio risk over open positions",
	Long: `Load the open positions from the portfolio database and print margin
use, value at risk, expected shortfall, diversification and any limit
alerts.

Examples:
  optionseller risk
  optionseller risk --capital 250000 --format json`,
	RunE: runRisk,
}

var (
	riskCapital float64
	riskDataDir string
)

func init() {
	rootCmd.AddCommand(riskCmd)

	riskCmd.Flags().Float64Var(&riskCapital, "capital", 0, "Account capital (default ACCOUNT_CAPITAL)")
	riskCmd.Flags().StringVar(&riskDataDir, "data-dir", "", "Directory holding portfolio.db (default OPTIONSELLER_DATA_DIR)")
}

func runRisk(cmd *cobra.Command, args []string) error {
	if err := checkFormat(outputFormat); err != nil {
		return err
	}
	log := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if riskDataDir != "" {
		cfg.DataDir = riskDataDir
	}
	capital := cfg.Capital
	if riskCapital > 0 {
		capital = riskCapital
	}

	db, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, database.NamePortfolio+".db"),
		Profile: database.ProfileStandard,
		Name:    database.NamePortfolio,
	})
	if err != nil {
		return fmt.Errorf("failed to open portfolio database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("failed to migrate portfolio database: %w", err)
	}

	positions, err := portfolio.NewPositionRepository(db.Conn(), log).GetAll()
	if err != nil {
		return fmt.Errorf("failed to load positions: %w", err)
	}
	profile := risk.NewManager(cfg.Risk, log).PortfolioRisk(positions, capital)

	out := cmd.OutOrStdout()
	if strings.EqualFold(outputFormat, "json") {
		return writeJSON(out, profile)
	}

	summary := newTable(out, "Metric", "Value")
	summary.Append([]string{"Positions", fmt.Sprintf("%d", profile.Positions)})
	summary.Append([]string{"Underlyings", fmt.Sprintf("%d", profile.Underlyings)})
	summary.Append([]string{"Capital", money(profile.Capital)})
	summary.Append([]string{"Total margin", money(profile.TotalMargin)})
	summary.Append([]string{"Margin utilization", pct(profile.MarginUtilization)})
	summary.Append([]string{"Total max loss", money(profile.TotalMaxLoss)})
	summary.Append([]string{"Total credit", money(profile.TotalCredit)})
	summary.Append([]string{fmt.Sprintf("VaR %s/%dd (%s)", pct(profile.Confidence), profile.HorizonDays, profile.Method), money(profile.VaR)})
	summary.Append([]string{"Expected shortfall", money(profile.ExpectedShortfall)})
	summary.Append([]string{"Diversification", num(profile.Diversification, 3)})
	summary.Append([]string{"Net dollar delta", money(profile.NetDollarDelta)})
	summary.Render()

	if len(profile.Alerts) > 0 {
		fmt.Fprintln(out)
		alerts := newTable(out, "Alert", "Symbol", "Value", "Limit", "Message")
		for _, a := range profile.Alerts {
			alerts.Append([]string{string(a.Kind), a.Symbol, num(a.Value, 3), num(a.Limit, 3), a.Message})
		}
		alerts.Render()
	}
	return nil
}
