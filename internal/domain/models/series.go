package models

import "time"

// Point is one timestamped value of a raw series.
type Point struct {
	T time.Time `json:"t"`
	V float64   `json:"v"`
}

// Series is an ordered-by-timestamp sequence of points for one identifier,
// e.g. "weather:berlin:temperature" or "market:0x12ab:yes:probability".
type Series struct {
	ID     string  `json:"id"`
	Points []Point `json:"points"`
}

// Len returns the number of points.
func (s Series) Len() int { return len(s.Points) }

// Start returns the first timestamp, or the zero time for an empty series.
func (s Series) Start() time.Time {
	if len(s.Points) == 0 {
		return time.Time{}
	}
	return s.Points[0].T
}

// End returns the last timestamp, or the zero time for an empty series.
func (s Series) End() time.Time {
	if len(s.Points) == 0 {
		return time.Time{}
	}
	return s.Points[len(s.Points)-1].T
}

// Values returns the values in order.
func (s Series) Values() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.V
	}
	return out
}

// AlignedSample is one grid tick carrying one value from each input series.
// Provenance flags mark whether the value was observed at the tick or filled
// from neighbors. Derived per alignment call, never persisted.
type AlignedSample struct {
	T       time.Time `json:"t"`
	A       float64   `json:"a"`
	B       float64   `json:"b"`
	AFilled bool      `json:"a_filled"`
	BFilled bool      `json:"b_filled"`
}
