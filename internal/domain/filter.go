package domain

import (
	"fmt"
	"math"
	"strings"
)

// Quality-control limits applied by QualityFilter.
const (
	MinArea = 50.0
	MinTau  = 1.0

	strictPixelMinimum = 3.0
)

// PixelThreshold selects how many ice and liquid pixels a cloud object needs.
type PixelThreshold int

const (
	// PixelThresholdStrict keeps objects with more than 3 pixels of each phase.
	PixelThresholdStrict PixelThreshold = iota
	// PixelThresholdNonZero keeps objects with at least one pixel of each phase.
	PixelThresholdNonZero
)

// ParsePixelThreshold accepts "strict" or "nonzero".
func ParsePixelThreshold(s string) (PixelThreshold, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict":
		return PixelThresholdStrict, nil
	case "nonzero":
		return PixelThresholdNonZero, nil
	default:
		return 0, fmt.Errorf("unknown pixel threshold %q (want strict or nonzero)", s)
	}
}

func (t PixelThreshold) String() string {
	if t == PixelThresholdNonZero {
		return "nonzero"
	}
	return "strict"
}

// accepts reports whether a pixel count satisfies the threshold. A NaN count
// never does.
func (t PixelThreshold) accepts(n float64) bool {
	if math.IsNaN(n) {
		return false
	}
	if t == PixelThresholdNonZero {
		return n != 0
	}
	return n > strictPixelMinimum
}

// QualityFilter drops implausible cloud objects. Rows are never corrected.
type QualityFilter struct {
	Threshold PixelThreshold
}

// Accepts reports whether a record passes every quality predicate.
func (f QualityFilter) Accepts(r CloudRecord) bool {
	return !math.IsNaN(r.ReLiq) &&
		!math.IsNaN(r.ReIce) &&
		f.Threshold.accepts(r.NbIce) &&
		f.Threshold.accepts(r.NbLiq) &&
		r.Area > MinArea &&
		r.Tau > MinTau &&
		r.SizePocketIce != r.Area &&
		r.SizePocketLiq != r.Area
}

// Apply returns the records that pass, in their original order, and the
// number dropped.
func (f QualityFilter) Apply(records []CloudRecord) ([]CloudRecord, int) {
	kept := make([]CloudRecord, 0, len(records))
	for _, r := range records {
		if f.Accepts(r) {
			kept = append(kept, r)
		}
	}
	return kept, len(records) - len(kept)
}
