package analytics

import (
	"sort"
	"time"

	"StormFlow/internal/domain/models"
)

// Interpolation selects how off-grid ticks are filled during alignment.
type Interpolation string

const (
	InterpLinear  Interpolation = "linear"
	InterpNearest Interpolation = "nearest"
	InterpNone    Interpolation = "none"
)

// Coverage selects which time range the aligned grid spans.
type Coverage string

const (
	CoverIntersection Coverage = "intersection"
	CoverUnion        Coverage = "union"
)

// AlignConfig controls grid resampling of two series onto a shared clock.
type AlignConfig struct {
	GridStep      time.Duration
	Interpolation Interpolation
	// MaxGapSteps is the farthest a filled tick may sit from a raw
	// observation, in grid steps. Ticks beyond it are dropped.
	MaxGapSteps int
	Coverage    Coverage
	MinSamples  int
}

func (c AlignConfig) validate() error {
	if c.GridStep <= 0 || c.MaxGapSteps < 0 || c.MinSamples < 0 {
		return ErrBadConfig
	}
	switch c.Interpolation {
	case InterpLinear, InterpNearest, InterpNone:
	default:
		return ErrBadConfig
	}
	switch c.Coverage {
	case CoverIntersection, CoverUnion:
	default:
		return ErrBadConfig
	}
	return nil
}

// Align resamples two series onto a shared grid. Ticks where either side
// cannot be observed or filled within the gap limit are excluded. The
// result is fully determined by the inputs and the config.
func Align(a, b models.Series, cfg AlignConfig) ([]models.AlignedSample, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if a.Len() == 0 || b.Len() == 0 {
		return nil, ErrInsufficientOverlap
	}

	pa := normalize(a.Points)
	pb := normalize(b.Points)

	var start, end time.Time
	switch cfg.Coverage {
	case CoverUnion:
		start = minTime(pa[0].T, pb[0].T)
		end = maxTime(pa[len(pa)-1].T, pb[len(pb)-1].T)
	default:
		start = maxTime(pa[0].T, pb[0].T)
		end = minTime(pa[len(pa)-1].T, pb[len(pb)-1].T)
	}
	start = ceilToGrid(start, cfg.GridStep)
	end = end.Truncate(cfg.GridStep)
	if end.Before(start) {
		return nil, ErrInsufficientOverlap
	}

	maxGap := time.Duration(cfg.MaxGapSteps) * cfg.GridStep
	var out []models.AlignedSample
	for t := start; !t.After(end); t = t.Add(cfg.GridStep) {
		va, fa, oka := sampleAt(pa, t, cfg.Interpolation, maxGap)
		if !oka {
			continue
		}
		vb, fb, okb := sampleAt(pb, t, cfg.Interpolation, maxGap)
		if !okb {
			continue
		}
		out = append(out, models.AlignedSample{T: t, A: va, B: vb, AFilled: fa, BFilled: fb})
	}
	if len(out) < cfg.MinSamples {
		return nil, ErrInsufficientOverlap
	}
	return out, nil
}

// normalize returns a UTC, time-sorted copy with duplicate timestamps
// collapsed to the last value seen.
func normalize(pts []models.Point) []models.Point {
	cp := make([]models.Point, len(pts))
	for i, p := range pts {
		cp[i] = models.Point{T: p.T.UTC(), V: p.V}
	}
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].T.Before(cp[j].T) })
	dedup := cp[:0]
	for _, p := range cp {
		if n := len(dedup); n > 0 && dedup[n-1].T.Equal(p.T) {
			dedup[n-1] = p
			continue
		}
		dedup = append(dedup, p)
	}
	return dedup
}

// sampleAt evaluates a sorted series at tick t. It returns the value, a
// flag telling whether the value was filled rather than observed, and
// whether the tick is usable at all.
func sampleAt(pts []models.Point, t time.Time, interp Interpolation, maxGap time.Duration) (float64, bool, bool) {
	i := sort.Search(len(pts), func(i int) bool { return !pts[i].T.Before(t) })
	if i < len(pts) && pts[i].T.Equal(t) {
		return pts[i].V, false, true
	}
	if interp == InterpNone {
		return 0, false, false
	}

	var prev, next *models.Point
	if i > 0 {
		prev = &pts[i-1]
	}
	if i < len(pts) {
		next = &pts[i]
	}

	// The gap limit bounds the distance to the nearest raw observation;
	// past it the tick is missing.
	nearest := maxGap + 1
	if prev != nil && t.Sub(prev.T) < nearest {
		nearest = t.Sub(prev.T)
	}
	if next != nil && next.T.Sub(t) < nearest {
		nearest = next.T.Sub(t)
	}
	if nearest > maxGap {
		return 0, false, false
	}

	if interp == InterpNearest || prev == nil || next == nil {
		if next == nil || (prev != nil && t.Sub(prev.T) <= next.T.Sub(t)) {
			return prev.V, true, true
		}
		return next.V, true, true
	}
	span := next.T.Sub(prev.T).Seconds()
	frac := t.Sub(prev.T).Seconds() / span
	return prev.V + frac*(next.V-prev.V), true, true
}

func ceilToGrid(t time.Time, step time.Duration) time.Time {
	tr := t.Truncate(step)
	if tr.Before(t) {
		tr = tr.Add(step)
	}
	return tr
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
