package analytics

import "errors"

var (
	// ErrInsufficientOverlap means the covered time range yields fewer
	// grid samples than the configured minimum.
	ErrInsufficientOverlap = errors.New("analytics: insufficient overlap between series")

	// ErrInsufficientData means a computation needs more observations
	// than the input carries (e.g. fewer than two seasonal periods).
	ErrInsufficientData = errors.New("analytics: insufficient data")

	// ErrSingularControls means the control matrix is rank deficient and
	// the partial correlation cannot be computed.
	ErrSingularControls = errors.New("analytics: control series are collinear")

	// ErrZeroVariance rejects windows whose independent variable does
	// not vary; the fit is undefined.
	ErrZeroVariance = errors.New("analytics: zero variance in independent variable")

	// ErrBadConfig rejects invalid parameter combinations.
	ErrBadConfig = errors.New("analytics: invalid configuration")
)
