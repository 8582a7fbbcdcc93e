package screening

import (
	"fmt"
	"math"
	"time"

	"github.com/aristath/optionseller/internal/domain"
	"github.com/aristath/optionseller/pkg/formulas"
)

// check applies the filters in order and returns the first failure.
func check(c domain.StrategyCandidate, f domain.Factors, u *domain.UnderlyingSnapshot, cr domain.ScreeningCriteria) (domain.RejectReason, string, bool) {
	t := cr.For(c.Strategy)

	if cr.PriceRange.Max > 0 && !cr.PriceRange.Contains(c.UnderlyingPrice) {
		return domain.ReasonUnderlyingPrice, fmt.Sprintf("underlying %.2f outside [%.2f, %.2f]", c.UnderlyingPrice, cr.PriceRange.Min, cr.PriceRange.Max), false
	}
	if oi := c.OpenInterest(); oi < cr.MinOpenInterest {
		return domain.ReasonOpenInterest, fmt.Sprintf("open interest %d below %d", oi, cr.MinOpenInterest), false
	}
	if v := c.Volume(); v < cr.MinVolume {
		return domain.ReasonVolume, fmt.Sprintf("volume %d below %d", v, cr.MinVolume), false
	}
	if cr.MaxBidAskSpread > 0 {
		if sp := c.WidestSpreadPct(); sp > cr.MaxBidAskSpread {
			return domain.ReasonSpread, fmt.Sprintf("spread %.1f%% above %.1f%%", sp*100, cr.MaxBidAskSpread*100), false
		}
	}
	if cr.MaxBidAskSpreadAbs > 0 {
		if sp := c.WidestSpread(); sp > cr.MaxBidAskSpreadAbs {
			return domain.ReasonSpreadAbs, fmt.Sprintf("spread %.2f above %.2f", sp, cr.MaxBidAskSpreadAbs), false
		}
	}
	if !cr.DTERange.Contains(c.DTE) {
		return domain.ReasonDTE, fmt.Sprintf("dte %d outside [%d, %d]", c.DTE, cr.DTERange.Min, cr.DTERange.Max), false
	}
	for _, l := range c.Legs {
		if d := math.Abs(l.LongDelta); !t.DeltaRange.Contains(d) {
			return domain.ReasonDelta, fmt.Sprintf("%s %.2f |delta| %.3f outside [%.2f, %.2f]", l.Contract.Type, l.Contract.Strike, d, t.DeltaRange.Min, t.DeltaRange.Max), false
		}
	}
	if cr.ExcludeVolatilityDegenerate && c.VolatilityDegenerate {
		return domain.ReasonVolatilityDegenerate, "priced on the volatility floor", false
	}
	if c.AnnualizedReturn < t.MinAnnualizedReturn {
		return domain.ReasonAnnualizedReturn, fmt.Sprintf("annualized return %.1f%% below %.1f%%", c.AnnualizedReturn*100, t.MinAnnualizedReturn*100), false
	}
	if cr.MaxLoss > 0 && c.MaxLoss > cr.MaxLoss {
		return domain.ReasonMaxLoss, fmt.Sprintf("max loss %.2f above %.2f", c.MaxLoss, cr.MaxLoss), false
	}
	if p := c.Probability.ProfitProbability; p < t.MinProbability {
		return domain.ReasonProbability, fmt.Sprintf("profit probability %.1f%% below %.1f%%", p*100, t.MinProbability*100), false
	}
	if !cr.IVRankRange.Contains(f.IVRank) {
		return domain.ReasonIVRank, fmt.Sprintf("iv rank %.2f outside [%.2f, %.2f]", f.IVRank, cr.IVRankRange.Min, cr.IVRankRange.Max), false
	}
	if u == nil {
		return "", "", true
	}
	if cr.AvoidEarnings && u.NextEarnings != nil && nearEarnings(u.Timestamp, c.Expiration, *u.NextEarnings, cr.EarningsWindowDays) {
		return domain.ReasonEarnings, fmt.Sprintf("earnings on %s", u.NextEarnings.Format("2006-01-02")), false
	}
	if cr.TrendFilter && len(u.PriceHistory) > 0 {
		if trend := formulas.Trend(u.PriceHistory); trend.StrongDowntrend() {
			return domain.ReasonTrend, fmt.Sprintf("price %.2f below SMA20 %.2f in a falling market", trend.Price, trend.SMA20), false
		}
		if hv := formulas.HistoricalVolatility(u.PriceHistory); hv > 0 && !cr.VolatilityBand.Contains(hv) {
			return domain.ReasonVolatilityBand, fmt.Sprintf("historical volatility %.2f outside [%.2f, %.2f]", hv, cr.VolatilityBand.Min, cr.VolatilityBand.Max), false
		}
	}
	return "", "", true
}

// nearEarnings reports whether an earnings date lands inside the holding
// period or within windowDays of expiration.
func nearEarnings(asOf, expiration, earnings time.Time, windowDays int) bool {
	if d := domain.DaysToExpiration(earnings, expiration); d >= -windowDays && d <= windowDays {
		return true
	}
	return !earnings.Before(asOf) && !earnings.After(expiration)
}
