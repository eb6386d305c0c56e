// Package benford tests whether a metric's leading-digit distribution follows
// Benford's Law.
//
// Benford's Law predicts that digit d leads a number with probability
// log10(1 + 1/d). Analyze counts the first digits of a dataset, compares them
// with the expected counts through Pearson's chi-squared statistic on eight
// degrees of freedom, and reports both the critical-value verdict and the
// p-value. The two are kept separate: Conforms only reflects the comparison
// against the critical value.
//
// Usage:
//
//	a := benford.NewAnalyzer(benford.WithConfidence(0.95))
//	analysis, err := a.Analyze(snapshot)
//	if errors.Is(err, benford.ErrNoData) {
//		// nothing collected
//	}
//	fmt.Println(analysis.Result.ChiSquared, analysis.Result.Conforms)
package benford
