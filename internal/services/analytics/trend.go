package analytics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"StormFlow/internal/domain/models"
)

// RollingTrend fits a least-squares line inside every window of the
// series and reports its slope (units per second) and R². Windows whose
// timestamps do not vary are rejected.
func RollingTrend(s models.Series, window int) ([]models.TrendPoint, error) {
	if window < 2 {
		return nil, ErrBadConfig
	}
	if s.Len() < window {
		return nil, ErrInsufficientData
	}

	pts := sortPoints(s.Points)
	xs := make([]float64, window)
	ys := make([]float64, window)
	out := make([]models.TrendPoint, 0, len(pts)-window+1)
	for i := window; i <= len(pts); i++ {
		win := pts[i-window : i]
		base := win[0].T
		for j, p := range win {
			xs[j] = p.T.Sub(base).Seconds()
			ys[j] = p.V
		}
		if stat.Variance(xs, nil) == 0 {
			return nil, ErrZeroVariance
		}
		alpha, beta := stat.LinearRegression(xs, ys, nil, false)
		r2 := stat.RSquared(xs, ys, nil, alpha, beta)
		if math.IsNaN(r2) {
			// Flat dependent variable fits exactly.
			r2 = 1
		}
		out = append(out, models.TrendPoint{T: win[window-1].T, Slope: beta, R2: r2})
	}
	return out, nil
}

// Crossovers detects points where the short moving average crosses the
// long one. A cross from below is reported as warming, from above as
// cooling. Indices are positions in the time-sorted series.
func Crossovers(s models.Series, short, long int) ([]models.Crossover, error) {
	if short < 1 || long <= short {
		return nil, ErrBadConfig
	}
	if s.Len() < long+1 {
		return nil, ErrInsufficientData
	}

	pts := normalize(s.Points)
	vals := make([]float64, len(pts))
	for i, p := range pts {
		vals[i] = p.V
	}
	maS := movingAverage(vals, short)
	maL := movingAverage(vals, long)

	var out []models.Crossover
	prev := 0.0
	for i := long - 1; i < len(vals); i++ {
		diff := maS[i] - maL[i]
		if i > long-1 && sign(prev) != 0 && sign(diff) != 0 && sign(diff) != sign(prev) {
			dir := models.CrossWarming
			if diff < 0 {
				dir = models.CrossCooling
			}
			out = append(out, models.Crossover{T: pts[i].T, Index: i, Direction: dir})
		}
		if sign(diff) != 0 {
			prev = diff
		}
	}
	return out, nil
}

// Decompose splits the series into trend, seasonal and residual parts
// using classical additive decomposition with the given period. Trend
// and residual entries the centered average cannot reach are nil.
func Decompose(s models.Series, period int) (models.Decomposition, error) {
	if period < 2 {
		return models.Decomposition{}, ErrBadConfig
	}
	pts := normalize(s.Points)
	n := len(pts)
	if n < 2*period {
		return models.Decomposition{}, ErrInsufficientData
	}
	vals := make([]float64, n)
	for i, p := range pts {
		vals[i] = p.V
	}

	trend := centeredMA(vals, period)

	// Seasonal component: mean of detrended values per phase, shifted to
	// average out to zero over a full period.
	sums := make([]float64, period)
	counts := make([]int, period)
	for i, v := range vals {
		if math.IsNaN(trend[i]) {
			continue
		}
		sums[i%period] += v - trend[i]
		counts[i%period]++
	}
	phase := make([]float64, period)
	var mean float64
	for i := range phase {
		if counts[i] > 0 {
			phase[i] = sums[i] / float64(counts[i])
		}
		mean += phase[i]
	}
	mean /= float64(period)
	for i := range phase {
		phase[i] -= mean
	}

	seasonal := make([]float64, n)
	trendOut := make([]*float64, n)
	resid := make([]*float64, n)
	for i := range vals {
		seasonal[i] = phase[i%period]
		if math.IsNaN(trend[i]) {
			continue
		}
		t := trend[i]
		r := vals[i] - t - seasonal[i]
		trendOut[i] = &t
		resid[i] = &r
	}
	return models.Decomposition{Period: period, Trend: trendOut, Seasonal: seasonal, Residual: resid}, nil
}

// ChangePointConfig tunes shift detection.
type ChangePointConfig struct {
	// Threshold is the CUSUM decision level in standard deviations.
	Threshold float64
	// Window is the half-window used for the variance comparison.
	Window int
	// MinSeparation suppresses detections closer than this many samples
	// to a stronger one.
	MinSeparation int
}

// ChangePoints locates abrupt mean shifts (CUSUM) and variance shifts
// (adjacent-window dispersion ratio) in the series.
func ChangePoints(s models.Series, cfg ChangePointConfig) ([]models.ChangePoint, error) {
	if cfg.Threshold <= 0 || cfg.Window < 2 || cfg.MinSeparation < 0 {
		return nil, ErrBadConfig
	}
	pts := normalize(s.Points)
	n := len(pts)
	if n < 2*cfg.Window {
		return nil, ErrInsufficientData
	}
	vals := make([]float64, n)
	for i, p := range pts {
		vals[i] = p.V
	}

	var out []models.ChangePoint
	out = append(out, cusumShifts(pts, vals, s.ID, cfg.Threshold)...)
	out = append(out, varianceShifts(pts, vals, s.ID, cfg)...)
	return suppressNearby(out, cfg.MinSeparation), nil
}

func cusumShifts(pts []models.Point, vals []float64, id string, h float64) []models.ChangePoint {
	mean, std := stat.MeanStdDev(vals, nil)
	if std == 0 || math.IsNaN(std) {
		return nil
	}
	const slack = 0.5
	var out []models.ChangePoint
	var hi, lo float64
	for i, v := range vals {
		z := (v - mean) / std
		hi = math.Max(0, hi+z-slack)
		lo = math.Max(0, lo-z-slack)
		switch {
		case hi > h:
			out = append(out, models.ChangePoint{
				SeriesID: id, Index: i, T: pts[i].T, Magnitude: hi, Method: "cusum",
			})
			hi, lo = 0, 0
		case lo > h:
			out = append(out, models.ChangePoint{
				SeriesID: id, Index: i, T: pts[i].T, Magnitude: lo, Method: "cusum",
			})
			hi, lo = 0, 0
		}
	}
	return out
}

func varianceShifts(pts []models.Point, vals []float64, id string, cfg ChangePointConfig) []models.ChangePoint {
	w := cfg.Window
	var out []models.ChangePoint
	for i := w; i+w <= len(vals); i++ {
		left := stat.Variance(vals[i-w:i], nil)
		right := stat.Variance(vals[i:i+w], nil)
		if left == 0 && right == 0 {
			continue
		}
		lo, hi := math.Min(left, right), math.Max(left, right)
		if lo == 0 {
			lo = math.SmallestNonzeroFloat64
		}
		ratio := math.Log(hi / lo)
		if ratio > cfg.Threshold {
			out = append(out, models.ChangePoint{
				SeriesID: id, Index: i, T: pts[i].T, Magnitude: ratio, Method: "variance",
			})
		}
	}
	return out
}

// suppressNearby keeps only the strongest detection inside each
// min-separation neighborhood.
func suppressNearby(cps []models.ChangePoint, minSep int) []models.ChangePoint {
	if len(cps) == 0 {
		return nil
	}
	ordered := make([]models.ChangePoint, len(cps))
	copy(ordered, cps)
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && less(ordered[j], ordered[j-1]); j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}
	kept := ordered[:0]
	for _, cp := range ordered {
		if n := len(kept); n > 0 && cp.Index-kept[n-1].Index < minSep {
			if cp.Magnitude > kept[n-1].Magnitude {
				kept[n-1] = cp
			}
			continue
		}
		kept = append(kept, cp)
	}
	return kept
}

func less(a, b models.ChangePoint) bool {
	if a.Index != b.Index {
		return a.Index < b.Index
	}
	return a.Method < b.Method
}

func movingAverage(vals []float64, window int) []float64 {
	out := make([]float64, len(vals))
	var sum float64
	for i, v := range vals {
		sum += v
		if i >= window {
			sum -= vals[i-window]
		}
		if i >= window-1 {
			out[i] = sum / float64(window)
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// centeredMA computes the centered moving average used for trend
// extraction. Even periods use the standard two-pass 2xMA so the window
// stays symmetric.
func centeredMA(vals []float64, period int) []float64 {
	n := len(vals)
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	half := period / 2
	if period%2 == 1 {
		for i := half; i < n-half; i++ {
			var sum float64
			for j := i - half; j <= i+half; j++ {
				sum += vals[j]
			}
			out[i] = sum / float64(period)
		}
		return out
	}
	for i := half; i < n-half; i++ {
		var sum float64
		sum += vals[i-half] / 2
		sum += vals[i+half] / 2
		for j := i - half + 1; j < i+half; j++ {
			sum += vals[j]
		}
		out[i] = sum / float64(period)
	}
	return out
}

// sortPoints orders by time without collapsing duplicate timestamps.
func sortPoints(pts []models.Point) []models.Point {
	cp := make([]models.Point, len(pts))
	for i, p := range pts {
		cp[i] = models.Point{T: p.T.UTC(), V: p.V}
	}
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].T.Before(cp[j].T) })
	return cp
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
