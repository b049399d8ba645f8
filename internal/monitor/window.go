package monitor

import (
	"math"

	"github.com/gaspardpetit/sfsb/internal/cortex"
)

// FlickerWindow keeps the last Size flicker values and the warning flag
// raised for each of them.
type FlickerWindow struct {
	Size      int
	Threshold float64

	values   []float64
	warnings []bool
}

// Reading summarizes the window after one value was added.
type Reading struct {
	Value    float64 `json:"value"`
	Mean     float64 `json:"mean"`
	StdDev   float64 `json:"std_dev"`
	Warning  bool    `json:"warning"`
	Warnings int     `json:"warnings"`
}

// Add appends v, evicting the oldest value once the window is full. The
// value is flagged when the window mean exceeds Threshold.
func (w *FlickerWindow) Add(v float64) Reading {
	if len(w.values) >= w.Size {
		w.values = w.values[1:]
		w.warnings = w.warnings[1:]
	}
	w.values = append(w.values, v)

	mean, std := meanStd(w.values)
	warn := mean > w.Threshold
	w.warnings = append(w.warnings, warn)

	n := 0
	for _, b := range w.warnings {
		if b {
			n++
		}
	}
	return Reading{Value: v, Mean: mean, StdDev: std, Warning: warn, Warnings: n}
}

// Len returns the number of values held.
func (w *FlickerWindow) Len() int { return len(w.values) }

func meanStd(xs []float64) (float64, float64) {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(sq / float64(len(xs)))
}

// Flicker derives the eye-flicker value from a pow sample: the mean of the
// theta/gamma band ratios of AF3 and AF4.
func Flicker(s cortex.Sample) (float64, bool) {
	right, ok := ratio(s, "AF3/theta", "AF3/gamma")
	if !ok {
		return 0, false
	}
	left, ok := ratio(s, "AF4/theta", "AF4/gamma")
	if !ok {
		return 0, false
	}
	return (right + left) / 2, true
}

// MetricRatio derives (excitement + stress) / (focus + relaxation) from a
// met sample.
func MetricRatio(s cortex.Sample) (float64, bool) {
	exc, ok1 := s.Float("exc")
	str, ok2 := s.Float("str")
	foc, ok3 := s.Float("foc")
	rel, ok4 := s.Float("rel")
	if !ok1 || !ok2 || !ok3 || !ok4 || foc+rel == 0 {
		return 0, false
	}
	return (exc + str) / (foc + rel), true
}

func ratio(s cortex.Sample, num, den string) (float64, bool) {
	n, ok := s.Float(num)
	if !ok {
		return 0, false
	}
	d, ok := s.Float(den)
	if !ok || d == 0 {
		return 0, false
	}
	return n / d, true
}
