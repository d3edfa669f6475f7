// Package facematch decides whether a captured face descriptor belongs to an
// enrolled identity. It is pure computation over vectors: no I/O, no state.
package facematch

import (
	"errors"
	"math"
	"sort"
)

var (
	ErrNoEnrollment      = errors.New("no stored descriptor")
	ErrNoProbe           = errors.New("no probe descriptor")
	ErrDimensionMismatch = errors.New("descriptor dimensions differ")
	ErrNoMatch           = errors.New("no gallery entry within threshold")
)

// Result is a single one-to-one comparison outcome.
type Result struct {
	Match    bool
	Distance float64
}

// Best is the winning gallery entry of an identification sweep.
type Best struct {
	Label    string
	Distance float64
}

// Distance returns the Euclidean distance between two equal-length vectors.
func Distance(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// Verify compares a stored descriptor against a probe. The threshold is the
// maximum distance that still counts as the same person.
func Verify(stored, probe []float64, threshold float64) (Result, error) {
	if len(stored) == 0 {
		return Result{}, ErrNoEnrollment
	}
	if len(probe) == 0 {
		return Result{}, ErrNoProbe
	}
	dist, err := Distance(stored, probe)
	if err != nil {
		return Result{}, err
	}
	return Result{Match: dist <= threshold, Distance: dist}, nil
}

// IdentifyBest finds the gallery label whose reference descriptor is closest
// to the probe, and returns it when within threshold; otherwise ErrNoMatch.
// Labels are visited in sorted order and only a strictly smaller distance
// replaces the current best, so equal minimal distances deterministically
// resolve to the lexicographically first label.
func IdentifyBest(probe []float64, gallery map[string][][]float64, threshold float64) (Best, error) {
	if len(probe) == 0 {
		return Best{}, ErrNoProbe
	}
	if len(gallery) == 0 {
		return Best{}, ErrNoEnrollment
	}

	labels := make([]string, 0, len(gallery))
	for label := range gallery {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	best := Best{Distance: math.Inf(1)}
	for _, label := range labels {
		for _, ref := range gallery[label] {
			if len(ref) == 0 {
				return Best{}, ErrNoEnrollment
			}
			dist, err := Distance(ref, probe)
			if err != nil {
				return Best{}, err
			}
			if dist < best.Distance {
				best = Best{Label: label, Distance: dist}
			}
		}
	}

	if best.Distance > threshold {
		return Best{}, ErrNoMatch
	}
	return best, nil
}
