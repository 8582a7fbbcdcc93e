package risk

import (
	"fmt"
	"math"
	"sort"

	"github.com/aristath/optionseller/internal/domain"
	"github.com/aristath/optionseller/pkg/formulas"
)

// PortfolioRisk aggregates VaR, expected shortfall, margin use,
// diversification and alerts over the given positions. It is recomputed on
// every call and never fails; limit breaches come back as alerts. Closed
// positions are ignored.
func (m *Manager) PortfolioRisk(positions []domain.Position, capital float64) domain.PortfolioRiskProfile {
	positions = domain.OpenPositions(positions)
	profile := domain.PortfolioRiskProfile{
		Positions:   len(positions),
		Capital:     capital,
		Confidence:  m.cfg.VaRConfidence,
		HorizonDays: m.cfg.HorizonDays,
		Method:      m.method.Name(),
		Alerts:      []domain.RiskAlert{},
	}

	marginBySymbol := make(map[string]float64)
	contractsBySymbol := make(map[string]float64)
	for _, p := range positions {
		profile.TotalMargin += p.Margin
		profile.TotalMaxLoss += p.MaxLoss
		profile.TotalCredit += p.EntryCredit
		profile.NetDollarDelta += p.EquivalentShares() * p.UnderlyingPrice
		marginBySymbol[p.Symbol] += p.Margin
		contractsBySymbol[p.Symbol] += float64(p.Contracts)
	}
	profile.Underlyings = len(marginBySymbol)
	if capital > 0 {
		profile.MarginUtilization = profile.TotalMargin / capital
	}

	mean, sigma := m.method.LossDistribution(positions, m.cfg.HorizonDays)
	profile.VaR = formulas.ParametricVaR(mean, sigma, m.cfg.VaRConfidence)
	profile.ExpectedShortfall = formulas.ParametricES(mean, sigma, m.cfg.VaRConfidence)

	shares := marginBySymbol
	if profile.TotalMargin <= 0 {
		shares = contractsBySymbol
	}
	profile.Diversification = Diversification(shares)

	profile.Alerts = m.alerts(positions, profile, shares)

	m.log.Debug().
		Int("positions", profile.Positions).
		Float64("var", profile.VaR).
		Float64("diversification", profile.Diversification).
		Int("alerts", len(profile.Alerts)).
		Msg("Portfolio risk computed")

	return profile
}

// Diversification is the effective number of underlyings, 1/sum(w²), where
// w is each underlying's share of the total exposure.
func Diversification(exposure map[string]float64) float64 {
	total := 0.0
	for _, v := range exposure {
		total += math.Abs(v)
	}
	if total <= 0 {
		return 0
	}
	hhi := 0.0
	for _, v := range exposure {
		w := math.Abs(v) / total
		hhi += w * w
	}
	return 1 / hhi
}

func (m *Manager) alerts(positions []domain.Position, profile domain.PortfolioRiskProfile, exposure map[string]float64) []domain.RiskAlert {
	alerts := []domain.RiskAlert{}
	capital := profile.Capital

	if limit := m.cfg.VaRAlertFraction * capital; capital > 0 && m.cfg.VaRAlertFraction > 0 && profile.VaR > limit {
		alerts = append(alerts, domain.RiskAlert{
			Kind:    domain.AlertVaR,
			Value:   profile.VaR,
			Limit:   limit,
			Message: fmt.Sprintf("VaR %.0f exceeds %.0f%% of capital", profile.VaR, m.cfg.VaRAlertFraction*100),
		})
	}
	if capital > 0 && m.cfg.MaxMarginUtilization > 0 && profile.MarginUtilization > m.cfg.MaxMarginUtilization {
		alerts = append(alerts, domain.RiskAlert{
			Kind:    domain.AlertMargin,
			Value:   profile.MarginUtilization,
			Limit:   m.cfg.MaxMarginUtilization,
			Message: fmt.Sprintf("margin utilization %.0f%% above %.0f%%", profile.MarginUtilization*100, m.cfg.MaxMarginUtilization*100),
		})
	}

	if m.cfg.MaxConcentration > 0 {
		total := 0.0
		symbols := make([]string, 0, len(exposure))
		for s, v := range exposure {
			total += math.Abs(v)
			symbols = append(symbols, s)
		}
		sort.Strings(symbols)
		for _, s := range symbols {
			if total <= 0 {
				break
			}
			if share := math.Abs(exposure[s]) / total; share > m.cfg.MaxConcentration {
				alerts = append(alerts, domain.RiskAlert{
					Kind:    domain.AlertConcentration,
					Symbol:  s,
					Value:   share,
					Limit:   m.cfg.MaxConcentration,
					Message: fmt.Sprintf("%s holds %.0f%% of exposure", s, share*100),
				})
			}
		}
	}

	now := m.now()
	for _, p := range positions {
		if limit := m.cfg.PerTradeLossFraction * capital; capital > 0 && m.cfg.PerTradeLossFraction > 0 && p.MaxLoss > limit {
			alerts = append(alerts, domain.RiskAlert{
				Kind:    domain.AlertPerTradeLoss,
				Symbol:  p.Symbol,
				Value:   p.MaxLoss,
				Limit:   limit,
				Message: fmt.Sprintf("%s max loss %.0f exceeds the per-trade cap", p.Symbol, p.MaxLoss),
			})
		}
		if dte := domain.DaysToExpiration(now, p.Expiration); dte <= m.cfg.NearExpiryDays {
			alerts = append(alerts, domain.RiskAlert{
				Kind:    domain.AlertExpiry,
				Symbol:  p.Symbol,
				Value:   float64(dte),
				Limit:   float64(m.cfg.NearExpiryDays),
				Message: fmt.Sprintf("%s expires in %d days", p.Symbol, dte),
			})
		}
		if d := p.OptionDelta(); m.cfg.MaxAbsDelta > 0 && math.Abs(d) > m.cfg.MaxAbsDelta {
			alerts = append(alerts, domain.RiskAlert{
				Kind:    domain.AlertDelta,
				Symbol:  p.Symbol,
				Value:   d,
				Limit:   m.cfg.MaxAbsDelta,
				Message: fmt.Sprintf("%s option delta %.2f is being tested", p.Symbol, d),
			})
		}
	}
	return alerts
}
