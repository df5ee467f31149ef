package analytics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"StormFlow/internal/domain/models"
)

// CorrelationConfig tunes lagged cross-correlation.
type CorrelationConfig struct {
	MaxLag int
	Method models.CorrelationMethod
	// SampleFloor marks results computed from fewer overlapping samples
	// as low confidence.
	SampleFloor int
}

// CrossCorrelate computes the chosen correlation coefficient between a
// and b at every lag in [-MaxLag, +MaxLag]. A positive lag means a
// leads b: the coefficient at lag k pairs a[t] with b[t+k]. The best
// lag maximizes |coefficient|; ties go to the smaller |lag|.
func CrossCorrelate(pairID string, a, b []float64, cfg CorrelationConfig) (models.CorrelationResult, error) {
	if cfg.MaxLag < 0 {
		return models.CorrelationResult{}, ErrBadConfig
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n-cfg.MaxLag < 3 {
		return models.CorrelationResult{}, ErrInsufficientData
	}

	res := models.CorrelationResult{PairID: pairID, Method: cfg.Method}
	found := false
	for k := -cfg.MaxLag; k <= cfg.MaxLag; k++ {
		xs, ys := lagOverlap(a[:n], b[:n], k)
		coef, p, err := coefficientWithP(xs, ys, cfg.Method)
		if err != nil {
			continue
		}
		lc := models.LagCorrelation{Lag: k, Coefficient: coef, PValue: p, SampleSize: len(xs)}
		res.ByLag = append(res.ByLag, lc)
		better := !found ||
			math.Abs(coef) > math.Abs(res.Coefficient) ||
			(math.Abs(coef) == math.Abs(res.Coefficient) && abs(k) < abs(res.BestLag))
		if better {
			res.BestLag = k
			res.Coefficient = coef
			res.PValue = p
			res.SampleSize = len(xs)
			found = true
		}
	}
	if !found {
		return models.CorrelationResult{}, ErrInsufficientData
	}
	res.LowConfidence = res.SampleSize < cfg.SampleFloor
	return res, nil
}

// ControlSeries is a named confounder regressed out of both sides of a
// partial correlation.
type ControlSeries struct {
	ID     string
	Values []float64
}

// PartialCorrelation measures the association between a and b after
// removing the linear influence of the control series. Each control
// must have the same length as a and b.
func PartialCorrelation(pairID string, a, b []float64, controls []ControlSeries, sampleFloor int) (models.PartialCorrelationResult, error) {
	n := len(a)
	if len(b) != n {
		return models.PartialCorrelationResult{}, ErrBadConfig
	}
	cols := make([][]float64, len(controls))
	names := make([]string, len(controls))
	for i, c := range controls {
		if len(c.Values) != n {
			return models.PartialCorrelationResult{}, ErrBadConfig
		}
		cols[i] = c.Values
		names[i] = c.ID
	}
	k := len(controls)
	if n < k+4 {
		return models.PartialCorrelationResult{}, ErrInsufficientData
	}

	X := designMatrix(n, cols)
	ra, err := olsResiduals(a, X)
	if err != nil {
		return models.PartialCorrelationResult{}, err
	}
	rb, err := olsResiduals(b, X)
	if err != nil {
		return models.PartialCorrelationResult{}, err
	}

	coef := stat.Correlation(ra, rb, nil)
	if math.IsNaN(coef) {
		return models.PartialCorrelationResult{}, ErrZeroVariance
	}
	df := float64(n - k - 2)
	p := studentTPValue(coef, df)
	return models.PartialCorrelationResult{
		PairID:        pairID,
		Controls:      names,
		Coefficient:   coef,
		PValue:        p,
		SampleSize:    n,
		LowConfidence: n < sampleFloor,
	}, nil
}

// lagOverlap pairs a[t] with b[t+k] over the overlapping index range.
func lagOverlap(a, b []float64, k int) ([]float64, []float64) {
	if k >= 0 {
		return a[:len(a)-k], b[k:]
	}
	return a[-k:], b[:len(b)+k]
}

func coefficientWithP(xs, ys []float64, method models.CorrelationMethod) (float64, float64, error) {
	n := len(xs)
	if n < 3 {
		return 0, 0, ErrInsufficientData
	}
	switch method {
	case models.Kendall:
		tau := stat.Kendall(xs, ys, nil)
		if math.IsNaN(tau) {
			return 0, 0, ErrZeroVariance
		}
		return tau, kendallPValue(tau, n), nil
	case models.Spearman:
		xs, ys = ranks(xs), ranks(ys)
	case models.Pearson:
	default:
		return 0, 0, ErrBadConfig
	}
	r := stat.Correlation(xs, ys, nil)
	if math.IsNaN(r) {
		return 0, 0, ErrZeroVariance
	}
	return r, studentTPValue(r, float64(n-2)), nil
}

// studentTPValue converts a correlation coefficient into a two-sided
// p-value via the t transform.
func studentTPValue(r, df float64) float64 {
	if df <= 0 {
		return math.NaN()
	}
	denom := 1 - r*r
	if denom <= 0 {
		return 0
	}
	t := math.Abs(r) * math.Sqrt(df/denom)
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return 2 * dist.Survival(t)
}

// kendallPValue uses the large-sample normal approximation for tau.
func kendallPValue(tau float64, n int) float64 {
	fn := float64(n)
	z := 3 * tau * math.Sqrt(fn*(fn-1)) / math.Sqrt(2*(2*fn+5))
	norm := distuv.Normal{Mu: 0, Sigma: 1}
	return 2 * norm.Survival(math.Abs(z))
}

// ranks assigns fractional ranks with ties averaged.
func ranks(vals []float64) []float64 {
	idx := make([]int, len(vals))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool { return vals[idx[i]] < vals[idx[j]] })
	out := make([]float64, len(vals))
	for i := 0; i < len(idx); {
		j := i
		for j < len(idx) && vals[idx[j]] == vals[idx[i]] {
			j++
		}
		rank := float64(i+j+1) / 2 // average of 1-based ranks i+1..j
		for ; i < j; i++ {
			out[idx[i]] = rank
		}
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
