package risk

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/aristath/optionseller/internal/domain"
)

// Recommendation classifies a trade after sizing.
type Recommendation string

const (
	StrongBuy Recommendation = "strong_buy"
	Buy       Recommendation = "buy"
	Hold      Recommendation = "hold"
	Caution   Recommendation = "caution"
	Avoid     Recommendation = "avoid"
)

// Level buckets the share of capital at risk.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelVeryHigh Level = "very_high"
)

// TradeRisk is the risk report for one opportunity.
type TradeRisk struct {
	Symbol             string              `json:"symbol"`
	Strategy           domain.StrategyType `json:"strategy"`
	Key                string              `json:"key"`
	Sizing             SizePlan            `json:"sizing"`
	MaxLossPerContract float64             `json:"max_loss_per_contract"`
	MaxLoss            float64             `json:"max_loss"`
	MaxProfit          float64             `json:"max_profit"`
	ReturnOnMargin     float64             `json:"return_on_margin"`
	AnnualizedReturn   float64             `json:"annualized_return"`
	RiskReward         float64             `json:"risk_reward_ratio"`
	ProfitProbability  float64             `json:"profit_probability"`
	CapitalAtRisk      float64             `json:"capital_at_risk"`
	Level              Level               `json:"risk_level"`
	Recommendation     Recommendation      `json:"recommendation"`
	Reason             string              `json:"reason"`
}

// AnalyzeTradeRisk sizes the opportunity and classifies it.
// An opportunity that cannot be sized is reported as avoid, never as an error.
func (m *Manager) AnalyzeTradeRisk(opp domain.ScoredOpportunity, capital float64) TradeRisk {
	c := opp.Candidate
	tr := TradeRisk{
		Symbol:             c.Symbol,
		Strategy:           c.Strategy,
		Key:                c.Key(),
		MaxLossPerContract: c.MaxLoss,
		AnnualizedReturn:   c.AnnualizedReturn,
		RiskReward:         c.RiskReward(),
		ProfitProbability:  c.Probability.ProfitProbability,
	}
	if c.Margin > 0 {
		tr.ReturnOnMargin = c.NetCredit / c.Margin
	}

	plan, err := m.PlanSize(opp, capital)
	if err != nil {
		tr.Level = LevelVeryHigh
		tr.Recommendation = Avoid
		tr.Reason = err.Error()
		return tr
	}
	tr.Sizing = plan
	if plan.Contracts == 0 {
		tr.Level = LevelVeryHigh
		tr.Recommendation = Avoid
		tr.Reason = "no position size fits the risk and margin limits"
		return tr
	}

	tr.MaxLoss = c.MaxLoss * float64(plan.Contracts)
	tr.MaxProfit = c.MaxProfit * float64(plan.Contracts)
	if capital > 0 {
		tr.CapitalAtRisk = tr.MaxLoss / capital
	}
	tr.Level = m.level(tr.CapitalAtRisk)
	tr.Recommendation, tr.Reason = m.recommend(tr)
	return tr
}

func (m *Manager) level(atRisk float64) Level {
	t := m.cfg.Thresholds
	switch {
	case atRisk <= t.StrongBuyLossFraction:
		return LevelLow
	case atRisk <= t.BuyLossFraction:
		return LevelMedium
	case atRisk <= t.AvoidLossFraction:
		return LevelHigh
	default:
		return LevelVeryHigh
	}
}

func (m *Manager) recommend(tr TradeRisk) (Recommendation, string) {
	t := m.cfg.Thresholds
	switch {
	case tr.CapitalAtRisk > t.AvoidLossFraction:
		return Avoid, fmt.Sprintf("%.1f%% of capital at risk", tr.CapitalAtRisk*100)
	case tr.CapitalAtRisk > t.CautionLossFraction:
		return Caution, fmt.Sprintf("%.1f%% of capital at risk", tr.CapitalAtRisk*100)
	case tr.RiskReward > t.CautionRiskReward:
		return Caution, fmt.Sprintf("risk/reward %.1f above %.1f", tr.RiskReward, t.CautionRiskReward)
	case tr.ProfitProbability < t.MinProbability:
		return Caution, fmt.Sprintf("profit probability %.0f%% below %.0f%%", tr.ProfitProbability*100, t.MinProbability*100)
	case t.MinAnnualizedReturn > 0 && tr.AnnualizedReturn < t.MinAnnualizedReturn:
		return Caution, fmt.Sprintf("annualized return %.1f%% below %.1f%%", tr.AnnualizedReturn*100, t.MinAnnualizedReturn*100)
	case tr.Level == LevelLow && tr.RiskReward <= t.StrongBuyRiskReward:
		return StrongBuy, "low risk with a good risk/reward"
	case tr.Level != LevelHigh && tr.RiskReward <= t.BuyRiskReward:
		return Buy, "controlled risk with good return potential"
	}
	return Hold, "risk and reward are balanced"
}

// MarshalJSON encodes an unbounded risk/reward as null.
func (tr TradeRisk) MarshalJSON() ([]byte, error) {
	type alias TradeRisk
	out := struct {
		alias
		RiskReward *float64 `json:"risk_reward_ratio"`
	}{alias: alias(tr)}
	if !math.IsInf(tr.RiskReward, 0) && !math.IsNaN(tr.RiskReward) {
		rr := tr.RiskReward
		out.RiskReward = &rr
	}
	return json.Marshal(out)
}
