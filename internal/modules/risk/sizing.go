package risk

import (
	"fmt"
	"math"

	"github.com/aristath/optionseller/internal/domain"
)

// SizePlan explains a recommended contract count.
type SizePlan struct {
	Contracts      int      `json:"contracts"`
	RiskBased      int      `json:"risk_based"`
	MarginBased    int      `json:"margin_based"`
	RiskAmount     float64  `json:"risk_amount"`
	RiskFraction   float64  `json:"risk_fraction"`
	MarginRequired float64  `json:"margin_required"`
	Warnings       []string `json:"warnings,omitempty"`
}

// SizePosition returns floor(capital * fraction / max loss per contract).
// The total max loss of the returned count never exceeds capital * fraction.
func SizePosition(opp domain.ScoredOpportunity, availableCapital, maxRiskFraction float64) (int, error) {
	return contractsFor(opp.Candidate.Symbol, opp.Candidate.MaxLoss, availableCapital*maxRiskFraction)
}

func contractsFor(symbol string, perContract, budget float64) (int, error) {
	if math.IsNaN(perContract) || math.IsInf(perContract, 0) || perContract <= 0 {
		return 0, &domain.SizingError{Symbol: symbol, MaxLoss: perContract}
	}
	if math.IsNaN(budget) || budget <= 0 {
		return 0, nil
	}
	n := int(math.Floor(budget / perContract))
	for n > 0 && float64(n)*perContract > budget {
		n--
	}
	return n, nil
}

// PlanSize caps the risk-based size by the margin budget and MaxContracts.
func (m *Manager) PlanSize(opp domain.ScoredOpportunity, capital float64) (SizePlan, error) {
	c := opp.Candidate
	riskBased, err := SizePosition(opp, capital, m.cfg.MaxRiskFraction)
	if err != nil {
		return SizePlan{}, err
	}

	marginBased := riskBased
	if c.Margin > 0 {
		marginBased, _ = contractsFor(c.Symbol, c.Margin, capital*m.cfg.MarginBudgetFraction)
	}

	n := riskBased
	if marginBased < n {
		n = marginBased
	}
	if m.cfg.MaxContracts > 0 && n > m.cfg.MaxContracts {
		n = m.cfg.MaxContracts
	}

	plan := SizePlan{
		Contracts:      n,
		RiskBased:      riskBased,
		MarginBased:    marginBased,
		RiskAmount:     c.MaxLoss * float64(n),
		MarginRequired: c.Margin * float64(n),
	}
	if capital > 0 {
		plan.RiskFraction = plan.RiskAmount / capital
	}
	if riskBased == 0 {
		plan.Warnings = append(plan.Warnings, fmt.Sprintf("one contract risks %.0f, more than %.1f%% of capital", c.MaxLoss, m.cfg.MaxRiskFraction*100))
	} else if marginBased == 0 {
		plan.Warnings = append(plan.Warnings, fmt.Sprintf("one contract needs %.0f margin, more than %.0f%% of capital", c.Margin, m.cfg.MarginBudgetFraction*100))
	}
	return plan, nil
}
