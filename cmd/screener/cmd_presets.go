package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/aristath/optionseller/internal/domain"
)

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List the built-in screening presets",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkFormat(outputFormat); err != nil {
			return err
		}

		presets := make(map[string]domain.ScreeningCriteria)
		for _, name := range domain.PresetNames() {
			c, err := domain.Preset(name)
			if err != nil {
				return err
			}
			presets[name] = c
		}

		out := cmd.OutOrStdout()
		if strings.EqualFold(outputFormat, "json") {
			return writeJSON(out, presets)
		}

		table := newTable(out, "Preset", "Min OI", "Min Volume", "Max Spread", "DTE", "Min Return", "Min P(profit)", "Avoid Earnings")
		for _, name := range domain.PresetNames() {
			c := presets[name]
			table.Append([]string{
				name,
				num(float64(c.MinOpenInterest), 0),
				num(float64(c.MinVolume), 0),
				pct(c.MaxBidAskSpread),
				num(float64(c.DTERange.Min), 0) + "-" + num(float64(c.DTERange.Max), 0),
				pct(c.MinAnnualizedReturn),
				pct(c.MinProbability),
				boolText(c.AvoidEarnings),
			})
		}
		table.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(presetsCmd)
}

func boolText(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
