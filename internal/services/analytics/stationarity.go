package analytics

// Augmented Dickey-Fuller unit-root test with a constant term, used as
// the pre-check before Granger causality. The test regresses the first
// difference on the lagged level plus lagged differences and compares
// the t statistic on the level against MacKinnon critical values.

import "math"

// adf critical values for the constant-only regression, large samples.
var adfCritical = []struct {
	alpha float64
	value float64
}{
	{0.01, -3.43},
	{0.05, -2.86},
	{0.10, -2.57},
}

// ADFStationary reports whether the series rejects a unit root at the
// given significance level. Lag order for the augmentation terms
// follows the cube-root rule of thumb.
func ADFStationary(vals []float64, alpha float64) (bool, float64, error) {
	lags := int(math.Cbrt(float64(len(vals))))
	if lags < 1 {
		lags = 1
	}
	n := len(vals)
	if n < lags+10 {
		return false, 0, ErrInsufficientData
	}

	diff := difference(vals)

	// Rows start at index `lags` of diff so every augmentation lag exists.
	rows := len(diff) - lags
	y := make([]float64, rows)
	level := make([]float64, rows)
	lagCols := make([][]float64, lags)
	for j := range lagCols {
		lagCols[j] = make([]float64, rows)
	}
	for i := 0; i < rows; i++ {
		t := i + lags
		y[i] = diff[t]
		level[i] = vals[t] // vals[t] is the level one step before diff[t]
		for j := 0; j < lags; j++ {
			lagCols[j][i] = diff[t-1-j]
		}
	}

	cols := append([][]float64{level}, lagCols...)
	X := designMatrix(rows, cols)
	beta, rss, err := olsFit(y, X)
	if err != nil {
		return false, 0, err
	}
	se, err := olsStdErr(y, X, rss)
	if err != nil {
		return false, 0, err
	}
	if se[1] == 0 {
		return false, 0, ErrZeroVariance
	}
	tstat := beta[1] / se[1]

	crit := criticalValue(alpha)
	return tstat < crit, tstat, nil
}

// criticalValue picks the nearest tabulated threshold at or below the
// requested level.
func criticalValue(alpha float64) float64 {
	crit := adfCritical[1].value
	for _, c := range adfCritical {
		if alpha >= c.alpha {
			crit = c.value
		}
	}
	return crit
}

// difference returns the first differences, one element shorter.
func difference(vals []float64) []float64 {
	out := make([]float64, len(vals)-1)
	for i := range out {
		out[i] = vals[i+1] - vals[i]
	}
	return out
}
