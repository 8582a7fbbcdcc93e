package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aristath/optionseller/internal/config"
	"github.com/aristath/optionseller/internal/domain"
	"github.com/aristath/optionseller/internal/evaluation/workers"
	"github.com/aristath/optionseller/internal/marketdata"
	"github.com/aristath/optionseller/internal/modules/pricing"
	"github.com/aristath/optionseller/internal/modules/probability"
	"github.com/aristath/optionseller/internal/modules/risk"
	"github.com/aristath/optionseller/internal/modules/screening"
	"github.com/aristath/optionseller/internal/modules/strategies"
	"github.com/aristath/optionseller/internal/services"
)

// screenCmd runs one screening pass over local chain files
var screenCmd = &cobra.Command{
	Use:   "screen [SYMBOL...]",
	Short: "Screen the watchlist for short option trades",
	Long: `Fetch option chains, build every candidate, screen them and print the
ranked survivors with their position size and risk classification.

Without symbols the configured watchlist is used, falling back to every
symbol that has chain data.

Examples:
  optionseller screen AAPL MSFT
  optionseller screen --strategy csp --preset high_probability
  optionseller screen --chains ./data/chains --max-results 5 --format json`,
	RunE: runScreen,
}

var (
	screenChainDir   string
	screenStrategies []string
	screenPreset     string
	screenMaxResults int
	screenCapital    float64
	screenTimeout    time.Duration
	screenRejections bool
)

func init() {
	rootCmd.AddCommand(screenCmd)

	screenCmd.Flags().StringVar(&screenChainDir, "chains", "", "Chain data directory (default CHAIN_DIR)")
	screenCmd.Flags().StringSliceVar(&screenStrategies, "strategy", nil, "Strategies to build: cc, csp, strangle (repeatable)")
	screenCmd.Flags().StringVar(&screenPreset, "preset", "", "Built-in criteria preset")
	screenCmd.Flags().IntVar(&screenMaxResults, "max-results", 0, "Maximum opportunities to print (default MAX_RESULTS)")
	screenCmd.Flags().Float64Var(&screenCapital, "capital", 0, "Account capital for sizing (default ACCOUNT_CAPITAL)")
	screenCmd.Flags().DurationVar(&screenTimeout, "timeout", 2*time.Minute, "Timeout for the whole run")
	screenCmd.Flags().BoolVar(&screenRejections, "rejections", false, "Also print rejected candidates")
}

func runScreen(cmd *cobra.Command, args []string) error {
	if err := checkFormat(outputFormat); err != nil {
		return err
	}
	log := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if screenChainDir != "" {
		cfg.ChainDir = screenChainDir
	}

	var strategyList []domain.StrategyType
	for _, s := range screenStrategies {
		parsed, err := domain.ParseStrategy(s)
		if err != nil {
			return err
		}
		strategyList = append(strategyList, parsed)
	}

	provider := marketdata.NewCSVProvider(cfg.ChainDir)
	watchlist := cfg.Watchlist
	if len(watchlist) == 0 {
		if watchlist, err = provider.Symbols(); err != nil {
			return fmt.Errorf("failed to list symbols in %s: %w", cfg.ChainDir, err)
		}
	}

	engine := pricing.NewEngine(pricing.Config{VolatilityFloor: cfg.VolatilityFloor})
	model := probability.NewModel(engine.Floor())
	recommender := services.NewRecommenderService(
		marketdata.NewFetcher(provider, marketdata.NewMemoryCache(cfg.CacheTTL), cfg.Fetcher, log),
		strategies.NewEvaluator(engine, model, strategies.DefaultMarginModel(), log),
		screening.NewScreener(log),
		risk.NewManager(cfg.Risk, log),
		workers.NewWorkerPool(cfg.Workers),
		nil,
		services.RecommenderConfig{
			Watchlist:  watchlist,
			Criteria:   cfg.Criteria,
			MaxResults: cfg.MaxResults,
			Capital:    cfg.Capital,
		},
		log,
	)

	ctx, cancel := context.WithTimeout(context.Background(), screenTimeout)
	defer cancel()

	report, err := recommender.Run(ctx, services.ScreenRequest{
		Symbols:    args,
		Strategies: strategyList,
		Preset:     screenPreset,
		MaxResults: screenMaxResults,
		Capital:    screenCapital,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if strings.EqualFold(outputFormat, "json") {
		return writeJSON(out, report)
	}

	fmt.Fprintf(out, "Screened %d symbols: %d candidates, %d survivors, capital %s\n\n",
		len(report.Symbols), report.Stats.Candidates, report.Stats.Survivors, money(report.Capital))

	table := newTable(out, "#", "Symbol", "Strategy", "Strikes", "DTE", "Credit", "Max Loss", "Ann. Return", "P(profit)", "Score", "Qty", "Risk", "Action")
	for _, rec := range report.Recommendations {
		c := rec.Opportunity.Candidate
		table.Append([]string{
			fmt.Sprintf("%d", rec.Opportunity.Rank),
			c.Symbol,
			string(c.Strategy),
			strikes(c),
			fmt.Sprintf("%d", c.DTE),
			money(c.NetCredit),
			money(c.MaxLoss),
			pct(c.AnnualizedReturn),
			pct(c.Probability.ProfitProbability),
			num(rec.Opportunity.Score, 3),
			fmt.Sprintf("%d", rec.Risk.Sizing.Contracts),
			string(rec.Risk.Level),
			string(rec.Risk.Recommendation),
		})
	}
	table.Render()

	if screenRejections && len(report.Rejections) > 0 {
		fmt.Fprintln(out)
		rejected := newTable(out, "Symbol", "Strategy", "Key", "Reason", "Detail")
		for _, r := range report.Rejections {
			rejected.Append([]string{r.Symbol, string(r.Strategy), r.Key, string(r.Reason), r.Detail})
		}
		rejected.Render()
	}

	for _, f := range report.Failures {
		fmt.Fprintf(out, "\nfailed to fetch %s: %s", f.Symbol, f.Error)
	}
	if len(report.Failures) > 0 {
		fmt.Fprintln(out)
	}
	return nil
}

func strikes(c domain.StrategyCandidate) string {
	parts := make([]string, 0, len(c.Legs))
	for _, leg := range c.Legs {
		parts = append(parts, fmt.Sprintf("%g%s", leg.Contract.Strike, strings.ToUpper(string(leg.Contract.Type[:1]))))
	}
	return strings.Join(parts, "/")
}
