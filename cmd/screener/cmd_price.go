package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aristath/optionseller/internal/domain"
	"github.com/aristath/optionseller/internal/modules/pricing"
	"github.com/aristath/optionseller/internal/modules/probability"
)

// priceCmd values a single European option
var priceCmd = &cobra.Command{
	Use:   "price",
	Short: "Price one option and its greeks",
	Long: `Value a European option with Black-Scholes-Merton under a continuous
dividend yield. With --market-price the implied volatility is solved first
and used for the valuation.

Examples:
  optionseller price --type put --spot 100 --strike 95 --days 30 --vol 0.25
  optionseller price --type call --spot 100 --strike 105 --days 45 --market-price 1.80`,
	RunE: runPrice,
}

var (
	priceType        string
	priceSpot        float64
	priceStrike      float64
	priceDays        float64
	priceVol         float64
	priceRate        float64
	priceDividend    float64
	priceMarketPrice float64
)

func init() {
	rootCmd.AddCommand(priceCmd)

	priceCmd.Flags().StringVar(&priceType, "type", "call", "Option type: call or put")
	priceCmd.Flags().Float64Var(&priceSpot, "spot", 0, "Underlying price")
	priceCmd.Flags().Float64Var(&priceStrike, "strike", 0, "Strike price")
	priceCmd.Flags().Float64Var(&priceDays, "days", 30, "Calendar days to expiration")
	priceCmd.Flags().Float64Var(&priceVol, "vol", 0.25, "Annualized volatility (0.25 = 25%)")
	priceCmd.Flags().Float64Var(&priceRate, "rate", 0.05, "Risk-free rate")
	priceCmd.Flags().Float64Var(&priceDividend, "div", 0, "Continuous dividend yield")
	priceCmd.Flags().Float64Var(&priceMarketPrice, "market-price", 0, "Solve implied volatility from this option price")

	_ = priceCmd.MarkFlagRequired("spot")
	_ = priceCmd.MarkFlagRequired("strike")
}

func runPrice(cmd *cobra.Command, args []string) error {
	if err := checkFormat(outputFormat); err != nil {
		return err
	}

	optType := domain.OptionType(strings.ToLower(priceType))
	if !optType.Valid() {
		return fmt.Errorf("unknown option type %q (want call or put)", priceType)
	}

	params := pricing.Params{
		Type:          optType,
		Spot:          priceSpot,
		Strike:        priceStrike,
		Years:         priceDays / domain.DaysPerYear,
		Volatility:    priceVol,
		Rate:          priceRate,
		DividendYield: priceDividend,
	}

	var iv float64
	if priceMarketPrice > 0 {
		solved, err := pricing.ImpliedVolatility(priceMarketPrice, params)
		if err != nil {
			return fmt.Errorf("failed to solve implied volatility: %w", err)
		}
		iv = solved
		params.Volatility = solved
	}

	engine := pricing.NewEngine(pricing.Config{})
	result, err := engine.PriceParams(params)
	if err != nil {
		return err
	}
	itm := probability.NewModel(engine.Floor()).ProbAbove(params.Spot, params.Strike, params.Years, result.Volatility, params.Rate, params.DividendYield)
	if optType == domain.Put {
		itm = 1 - itm
	}

	out := cmd.OutOrStdout()
	if strings.EqualFold(outputFormat, "json") {
		return writeJSON(out, struct {
			pricing.Result
			ImpliedVolatility float64 `json:"implied_volatility,omitempty"`
			ITMProbability    float64 `json:"itm_probability"`
		}{result, iv, itm})
	}

	table := newTable(out, "Field", "Value")
	table.Append([]string{"Price", num(result.Price, 4)})
	table.Append([]string{"Intrinsic", num(result.Intrinsic, 4)})
	table.Append([]string{"Volatility", pct(result.Volatility)})
	if iv > 0 {
		table.Append([]string{"Implied vol", pct(iv)})
	}
	table.Append([]string{"Delta", num(result.Greeks.Delta, 4)})
	table.Append([]string{"Gamma", num(result.Greeks.Gamma, 4)})
	table.Append([]string{"Theta/day", num(result.Greeks.Theta, 4)})
	table.Append([]string{"Vega/1%", num(result.Greeks.Vega, 4)})
	table.Append([]string{"Rho/1%", num(result.Greeks.Rho, 4)})
	table.Append([]string{"P(ITM)", pct(itm)})
	table.Render()

	if result.Warning != nil {
		fmt.Fprintf(out, "\nwarning: %s\n", result.Warning.Error())
	}
	return nil
}
