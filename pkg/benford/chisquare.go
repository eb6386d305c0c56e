package benford

import (
	"gonum.org/v1/gonum/stat/distuv"
)

// CriticalValue95 is the 0.95 quantile of chi-squared with eight degrees of
// freedom.
const CriticalValue95 = 15.507313055865453

// chiSquaredStatistic computes sum((o-e)^2/e). Classes with e == 0 are skipped.
func chiSquaredStatistic(observed, expected [Digits]float64) float64 {
	var sum float64
	for i := range observed {
		if expected[i] == 0 {
			continue
		}
		diff := observed[i] - expected[i]
		sum += diff * diff / expected[i]
	}
	return sum
}

// CriticalValue returns the chi-squared quantile at the confidence level
func CriticalValue(df int, confidence float64) float64 {
	if df == DegreesOfFreedom && confidence == 0.95 {
		return CriticalValue95
	}
	return distuv.ChiSquared{K: float64(df)}.Quantile(confidence)
}

// PValue returns P(X >= x) for X chi-squared distributed with df degrees of
// freedom.
func PValue(x float64, df int) float64 {
	if x <= 0 {
		return 1
	}
	return distuv.ChiSquared{K: float64(df)}.Survival(x)
}
