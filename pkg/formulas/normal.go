// Package formulas provides the numerical building blocks shared by the
// pricing, probability and risk modules.
package formulas

import (
	"gonum.org/v1/gonum/stat/distuv"
)

// NormCDF is the standard normal cumulative distribution function.
func NormCDF(x float64) float64 {
	return distuv.UnitNormal.CDF(x)
}

// NormPDF is the standard normal density.
func NormPDF(x float64) float64 {
	return distuv.UnitNormal.Prob(x)
}

// NormQuantile returns z such that NormCDF(z) == p, for p in (0,1).
func NormQuantile(p float64) float64 {
	return distuv.UnitNormal.Quantile(p)
}

// Clamp01 bounds a probability to [0,1].
func Clamp01(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}
