// Package reconcile cross-checks fine-grained bin aggregates against
// independently derived segment-level totals. A mismatch means the
// accumulation or the derivation drifted, so every check failure becomes a
// warning naming the segment and window; validation never aborts a run.
package reconcile

import (
	"fmt"

	"github.com/corral-data/density.report/internal/course"
	"github.com/corral-data/density.report/internal/grid"
)

// Check identifiers carried on warnings so downstream storage and reports
// can group failures by kind.
const (
	CheckDensity = "density"
	CheckRate    = "rate"
)

// Warning records one failed consistency check. Deviation is the relative
// difference that exceeded the tolerance.
type Warning struct {
	SegmentID   string
	WindowIndex int
	Check       string
	Got         float64
	Want        float64
	Deviation   float64
	Message     string
}

func (w Warning) String() string {
	return w.Message
}

// Validator holds the relative tolerances for the two checks. Density is an
// exact identity up to float rounding so its tolerance is tight; the rate
// check tolerates the mean-speed weighting introduced by short final bins.
type Validator struct {
	DensityTolerance float64
	RateTolerance    float64
}

// NewValidator returns a Validator with the default tolerances: 2% on
// density, 5% on rate.
func NewValidator() *Validator {
	return &Validator{
		DensityTolerance: 0.02,
		RateTolerance:    0.05,
	}
}

// Validate checks every window of the grid against segment-level totals
// recomputed from the same bins:
//
//   - the length-weighted mean bin density must match the whole-segment
//     density N / (L·W), and
//   - the length-weighted summed bin rate must match L times the
//     whole-segment rate.
//
// Empty windows trivially reconcile and are skipped. The returned slice is
// empty when every window passes.
func (v *Validator) Validate(seg course.Segment, g *grid.SegmentGrid) []Warning {
	var warnings []Warning

	byWindow := make(map[int][]grid.Bin)
	for _, b := range g.Bins {
		byWindow[b.WindowIndex] = append(byWindow[b.WindowIndex], b)
	}

	for _, w := range g.Windows {
		bins := byWindow[w.Index]
		if len(bins) == 0 {
			continue
		}

		var (
			total       int
			speedSum    float64
			weightedDen float64
			weightedRt  float64
		)
		for _, b := range bins {
			binLen := b.EndM - b.StartM
			total += b.Count
			speedSum += float64(b.Count) * b.MeanSpeedMPS
			weightedDen += b.Density * binLen
			weightedRt += b.Rate * binLen
		}
		if total == 0 {
			continue
		}

		segDensity := float64(total) / (seg.LengthM * seg.WidthM)
		segMeanSpeed := speedSum / float64(total)
		segRate := segDensity * seg.WidthM * segMeanSpeed

		meanBinDensity := weightedDen / seg.LengthM
		if dev := relativeDeviation(meanBinDensity, segDensity); dev > v.DensityTolerance {
			warnings = append(warnings, Warning{
				SegmentID:   seg.ID,
				WindowIndex: w.Index,
				Check:       CheckDensity,
				Got:         meanBinDensity,
				Want:        segDensity,
				Deviation:   dev,
				Message: fmt.Sprintf(
					"segment %s window %d: length-weighted bin density %.6f deviates %.1f%% from segment density %.6f",
					seg.ID, w.Index, meanBinDensity, dev*100, segDensity),
			})
		}

		wantRate := seg.LengthM * segRate
		if dev := relativeDeviation(weightedRt, wantRate); dev > v.RateTolerance {
			warnings = append(warnings, Warning{
				SegmentID:   seg.ID,
				WindowIndex: w.Index,
				Check:       CheckRate,
				Got:         weightedRt,
				Want:        wantRate,
				Deviation:   dev,
				Message: fmt.Sprintf(
					"segment %s window %d: summed bin rate %.4f deviates %.1f%% from segment rate %.4f",
					seg.ID, w.Index, weightedRt, dev*100, wantRate),
			})
		}
	}

	return warnings
}

// relativeDeviation compares got against a reference value. A zero reference
// with a nonzero measurement is an unbounded deviation; two zeros agree.
func relativeDeviation(got, want float64) float64 {
	if want == 0 {
		if got == 0 {
			return 0
		}
		return 1
	}
	d := (got - want) / want
	if d < 0 {
		d = -d
	}
	return d
}
