package formulas

import "math"

// ParametricVaR returns the one-sided normal Value at Risk for a loss
// distribution with standard deviation sigma, expressed as a positive loss.
func ParametricVaR(mean, sigma, confidence float64) float64 {
	if sigma <= 0 || confidence <= 0 || confidence >= 1 {
		return math.Max(0, mean)
	}
	return math.Max(0, mean+NormQuantile(confidence)*sigma)
}

// ParametricES returns the expected shortfall (CVaR) of the same normal
// loss distribution: mean + sigma * pdf(z) / (1 - confidence).
func ParametricES(mean, sigma, confidence float64) float64 {
	if sigma <= 0 || confidence <= 0 || confidence >= 1 {
		return math.Max(0, mean)
	}
	z := NormQuantile(confidence)
	return math.Max(0, mean+sigma*NormPDF(z)/(1-confidence))
}

// IndependentSigma combines standard deviations of independent exposures.
func IndependentSigma(sigmas []float64) float64 {
	sum := 0.0
	for _, s := range sigmas {
		sum += s * s
	}
	return math.Sqrt(sum)
}
