// Package risk sizes positions and aggregates portfolio risk.
package risk

import (
	"fmt"
	"math"

	"github.com/aristath/optionseller/internal/domain"
)

// Thresholds drive the trade recommendation. Loss fractions are the share of
// capital at risk after sizing.
type Thresholds struct {
	AvoidLossFraction     float64 `yaml:"avoid_loss_fraction" json:"avoid_loss_fraction"`
	CautionLossFraction   float64 `yaml:"caution_loss_fraction" json:"caution_loss_fraction"`
	CautionRiskReward     float64 `yaml:"caution_risk_reward" json:"caution_risk_reward"`
	StrongBuyLossFraction float64 `yaml:"strong_buy_loss_fraction" json:"strong_buy_loss_fraction"`
	StrongBuyRiskReward   float64 `yaml:"strong_buy_risk_reward" json:"strong_buy_risk_reward"`
	BuyLossFraction       float64 `yaml:"buy_loss_fraction" json:"buy_loss_fraction"`
	BuyRiskReward         float64 `yaml:"buy_risk_reward" json:"buy_risk_reward"`
	MinProbability        float64 `yaml:"min_probability" json:"min_probability"`
	MinAnnualizedReturn   float64 `yaml:"min_annualized_return" json:"min_annualized_return"`
}

// Config holds sizing limits, VaR parameters and alert limits.
type Config struct {
	MaxRiskFraction      float64 `yaml:"max_risk_fraction" json:"max_risk_fraction"`
	MarginBudgetFraction float64 `yaml:"margin_budget_fraction" json:"margin_budget_fraction"`
	MaxContracts         int     `yaml:"max_contracts" json:"max_contracts"`

	VaRMethod     string  `yaml:"var_method" json:"var_method"`
	VaRConfidence float64 `yaml:"var_confidence" json:"var_confidence"`
	HorizonDays   int     `yaml:"horizon_days" json:"horizon_days"`

	VaRAlertFraction     float64 `yaml:"var_alert_fraction" json:"var_alert_fraction"`
	PerTradeLossFraction float64 `yaml:"per_trade_loss_fraction" json:"per_trade_loss_fraction"`
	MaxMarginUtilization float64 `yaml:"max_margin_utilization" json:"max_margin_utilization"`
	MaxConcentration     float64 `yaml:"max_concentration" json:"max_concentration"`
	NearExpiryDays       int     `yaml:"near_expiry_days" json:"near_expiry_days"`
	MaxAbsDelta          float64 `yaml:"max_abs_delta" json:"max_abs_delta"`

	Thresholds Thresholds `yaml:"thresholds" json:"thresholds"`
}

// DefaultConfig returns the default risk limits.
func DefaultConfig() Config {
	return Config{
		MaxRiskFraction:      0.02,
		MarginBudgetFraction: 0.50,
		MaxContracts:         10,
		VaRMethod:            MethodDeltaNormal,
		VaRConfidence:        0.95,
		HorizonDays:          1,
		VaRAlertFraction:     0.10,
		PerTradeLossFraction: 0.02,
		MaxMarginUtilization: 0.50,
		MaxConcentration:     0.25,
		NearExpiryDays:       3,
		MaxAbsDelta:          0.50,
		Thresholds: Thresholds{
			AvoidLossFraction:     0.05,
			CautionLossFraction:   0.03,
			CautionRiskReward:     4,
			StrongBuyLossFraction: 0.01,
			StrongBuyRiskReward:   2,
			BuyLossFraction:       0.03,
			BuyRiskReward:         3,
			MinProbability:        0.50,
		},
	}
}

// Validate checks the configuration for values that would make sizing or VaR undefined.
func (c Config) Validate() error {
	var problems []string
	fraction := func(name string, v float64, allowZero bool) {
		if math.IsNaN(v) || v < 0 || v > 1 || (!allowZero && v == 0) {
			problems = append(problems, fmt.Sprintf("%s must be within (0, 1], got %v", name, v))
		}
	}
	fraction("max_risk_fraction", c.MaxRiskFraction, false)
	fraction("margin_budget_fraction", c.MarginBudgetFraction, false)
	fraction("var_alert_fraction", c.VaRAlertFraction, true)
	fraction("per_trade_loss_fraction", c.PerTradeLossFraction, true)
	fraction("max_margin_utilization", c.MaxMarginUtilization, true)
	fraction("max_concentration", c.MaxConcentration, true)
	if c.VaRConfidence <= 0.5 || c.VaRConfidence >= 1 {
		problems = append(problems, fmt.Sprintf("var_confidence must be within (0.5, 1), got %v", c.VaRConfidence))
	}
	if c.HorizonDays < 1 {
		problems = append(problems, fmt.Sprintf("horizon_days must be at least 1, got %d", c.HorizonDays))
	}
	if c.MaxContracts < 0 {
		problems = append(problems, fmt.Sprintf("max_contracts must be non-negative, got %d", c.MaxContracts))
	}
	if _, ok := MethodByName(c.VaRMethod); !ok {
		problems = append(problems, fmt.Sprintf("unknown var_method %q", c.VaRMethod))
	}
	if len(problems) > 0 {
		return &domain.ConfigError{Problems: problems}
	}
	return nil
}
