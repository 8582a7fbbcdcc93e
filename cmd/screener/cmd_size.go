package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aristath/optionseller/internal/config"
	"github.com/aristath/optionseller/internal/domain"
	"github.com/aristath/optionseller/internal/modules/risk"
)

// sizeCmd sizes a trade from its per-contract max loss and margin
var sizeCmd = &cobra.Command{
	Use:   "size",
	Short: "Size a trade against the account's risk limits",
	Long: `Compute how many contracts of a trade fit the risk budget
(capital x max risk fraction / max loss per contract), then cap that by the
margin budget and the contract limit.

Examples:
  optionseller size --max-loss 2500 --capital 100000 --fraction 0.1
  optionseller size --max-loss 9500 --margin 9500 --symbol AAPL`,
	RunE: runSize,
}

var (
	sizeSymbol   string
	sizeMaxLoss  float64
	sizeMargin   float64
	sizeCapital  float64
	sizeFraction float64
)

func init() {
	rootCmd.AddCommand(sizeCmd)

	sizeCmd.Flags().StringVar(&sizeSymbol, "symbol", "", "Underlying symbol (for messages)")
	sizeCmd.Flags().Float64Var(&sizeMaxLoss, "max-loss", 0, "Max loss per contract in dollars")
	sizeCmd.Flags().Float64Var(&sizeMargin, "margin", 0, "Margin per contract in dollars (0 skips the margin cap)")
	sizeCmd.Flags().Float64Var(&sizeCapital, "capital", 0, "Account capital (default ACCOUNT_CAPITAL)")
	sizeCmd.Flags().Float64Var(&sizeFraction, "fraction", 0, "Max risk fraction per trade (default MAX_RISK_FRACTION)")

	_ = sizeCmd.MarkFlagRequired("max-loss")
}

func runSize(cmd *cobra.Command, args []string) error {
	if err := checkFormat(outputFormat); err != nil {
		return err
	}
	log := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	capital := cfg.Capital
	if sizeCapital > 0 {
		capital = sizeCapital
	}
	riskCfg := cfg.Risk
	if sizeFraction > 0 {
		riskCfg.MaxRiskFraction = sizeFraction
	}

	opp := domain.ScoredOpportunity{Candidate: domain.StrategyCandidate{
		Symbol:  sizeSymbol,
		MaxLoss: sizeMaxLoss,
		Margin:  sizeMargin,
	}}

	contracts, err := risk.SizePosition(opp, capital, riskCfg.MaxRiskFraction)
	if err != nil {
		return err
	}
	plan, err := risk.NewManager(riskCfg, log).PlanSize(opp, capital)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if strings.EqualFold(outputFormat, "json") {
		return writeJSON(out, struct {
			Contracts int           `json:"contracts"`
			Plan      risk.SizePlan `json:"plan"`
		}{contracts, plan})
	}

	table := newTable(out, "Field", "Value")
	table.Append([]string{"Risk budget", money(capital * riskCfg.MaxRiskFraction)})
	table.Append([]string{"Risk-based contracts", fmt.Sprintf("%d", contracts)})
	table.Append([]string{"Margin-based contracts", fmt.Sprintf("%d", plan.MarginBased)})
	table.Append([]string{"Planned contracts", fmt.Sprintf("%d", plan.Contracts)})
	table.Append([]string{"Capital at risk", money(plan.RiskAmount)})
	table.Append([]string{"Margin required", money(plan.MarginRequired)})
	table.Append([]string{"Risk fraction", pct(plan.RiskFraction)})
	table.Render()

	for _, w := range plan.Warnings {
		fmt.Fprintf(out, "\nwarning: %s", w)
	}
	if len(plan.Warnings) > 0 {
		fmt.Fprintln(out)
	}
	return nil
}
