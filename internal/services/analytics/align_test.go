package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StormFlow/internal/domain/models"
)

func seriesEvery(id string, start time.Time, step time.Duration, vals []float64) models.Series {
	pts := make([]models.Point, len(vals))
	for i, v := range vals {
		pts[i] = models.Point{T: start.Add(time.Duration(i) * step), V: v}
	}
	return models.Series{ID: id, Points: pts}
}

func TestAlignHourlyAgainstFiveMinute(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	hourly := make([]float64, 7)
	for i := range hourly {
		hourly[i] = float64(i)
	}
	fine := make([]float64, 73)
	for i := range fine {
		fine[i] = 100 + float64(i)
	}
	a := seriesEvery("temp", start, time.Hour, hourly)
	b := seriesEvery("prob", start, 5*time.Minute, fine)

	cfg := AlignConfig{
		GridStep:      15 * time.Minute,
		Interpolation: InterpLinear,
		MaxGapSteps:   2,
		Coverage:      CoverIntersection,
		MinSamples:    5,
	}
	out, err := Align(a, b, cfg)
	require.NoError(t, err)
	require.Len(t, out, 25)

	for i, s := range out {
		wantT := start.Add(time.Duration(i) * 15 * time.Minute)
		assert.True(t, s.T.Equal(wantT), "tick %d at %v, want %v", i, s.T, wantT)

		// Hourly side: observed on the hour, interpolated elsewhere.
		onHour := s.T.Minute() == 0
		assert.Equal(t, !onHour, s.AFilled, "tick %d fill flag", i)
		assert.InDelta(t, float64(i)/4, s.A, 1e-9, "tick %d interpolated value", i)

		// Five-minute side lands on every grid tick exactly.
		assert.False(t, s.BFilled, "tick %d", i)
		assert.InDelta(t, 100+float64(i*3), s.B, 1e-9)
	}
}

func TestAlignIsDeterministic(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	a := seriesEvery("a", start, 7*time.Minute, []float64{4, 8, 1, 9, 2, 7, 3, 6})
	b := seriesEvery("b", start.Add(3*time.Minute), 11*time.Minute, []float64{1, 2, 3, 4, 5})

	cfg := AlignConfig{GridStep: 5 * time.Minute, Interpolation: InterpLinear, MaxGapSteps: 3, Coverage: CoverIntersection}
	first, err := Align(a, b, cfg)
	require.NoError(t, err)
	second, err := Align(a, b, cfg)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAlignDropsTicksBeyondMaxGap(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	a := seriesEvery("a", start, time.Hour, []float64{0, 1, 2})

	cfg := AlignConfig{GridStep: 15 * time.Minute, Interpolation: InterpLinear, MaxGapSteps: 1, Coverage: CoverIntersection}
	out, err := Align(a, a, cfg)
	require.NoError(t, err)

	// Half-hour ticks sit two steps from both neighbors and are dropped.
	var kept []int
	for _, s := range out {
		kept = append(kept, s.T.Minute())
		assert.NotEqual(t, 30, s.T.Minute())
	}
	assert.Len(t, out, 7, "kept ticks: %v", kept)
}

func TestAlignExactOnly(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	a := seriesEvery("a", start, time.Hour, []float64{0, 1, 2, 3})
	b := seriesEvery("b", start, 30*time.Minute, []float64{0, 1, 2, 3, 4, 5, 6})

	cfg := AlignConfig{GridStep: 30 * time.Minute, Interpolation: InterpNone, Coverage: CoverIntersection}
	out, err := Align(a, b, cfg)
	require.NoError(t, err)

	// Only on-the-hour ticks exist in both series.
	require.Len(t, out, 4)
	for _, s := range out {
		assert.Zero(t, s.T.Minute())
		assert.False(t, s.AFilled)
		assert.False(t, s.BFilled)
	}
}

func TestAlignInsufficientOverlap(t *testing.T) {
	day1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	a := seriesEvery("a", day1, time.Hour, []float64{1, 2, 3})
	b := seriesEvery("b", day2, time.Hour, []float64{1, 2, 3})

	cfg := AlignConfig{GridStep: time.Hour, Interpolation: InterpLinear, MaxGapSteps: 2, Coverage: CoverIntersection, MinSamples: 2}
	_, err := Align(a, b, cfg)
	assert.ErrorIs(t, err, ErrInsufficientOverlap)

	_, err = Align(models.Series{ID: "empty"}, b, cfg)
	assert.ErrorIs(t, err, ErrInsufficientOverlap)
}

func TestAlignMinSamples(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	a := seriesEvery("a", start, time.Hour, []float64{1, 2, 3})

	cfg := AlignConfig{GridStep: time.Hour, Interpolation: InterpLinear, MaxGapSteps: 1, Coverage: CoverIntersection, MinSamples: 10}
	_, err := Align(a, a, cfg)
	assert.ErrorIs(t, err, ErrInsufficientOverlap)
}

func TestAlignRejectsBadConfig(t *testing.T) {
	s := seriesEvery("a", time.Now().UTC(), time.Minute, []float64{1, 2})
	_, err := Align(s, s, AlignConfig{GridStep: 0, Interpolation: InterpLinear, Coverage: CoverIntersection})
	assert.ErrorIs(t, err, ErrBadConfig)
	_, err = Align(s, s, AlignConfig{GridStep: time.Minute, Interpolation: "spline", Coverage: CoverIntersection})
	assert.ErrorIs(t, err, ErrBadConfig)
}
