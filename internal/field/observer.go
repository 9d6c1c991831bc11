package field

import (
	"github.com/corral-data/density.report/internal/course"
	"github.com/corral-data/density.report/internal/grid"
)

// SegmentObserver maps the runner field onto segment-local observations:
// for a given segment and window, which runners are physically on the
// segment at the window midpoint, where, and how fast. It implements
// grid.ObservationSource.
//
// Each cohort's position is resolved through its own span on the segment,
// so two cohorts with disjoint ruler kilometres still land on the same
// physical metres.
type SegmentObserver struct {
	Field *Field
}

// NewSegmentObserver wraps a runner field as an observation source.
func NewSegmentObserver(f *Field) *SegmentObserver {
	return &SegmentObserver{Field: f}
}

// Observe samples every runner at the window midpoint and returns those on
// the segment, positioned in metres from the segment start.
func (o *SegmentObserver) Observe(seg course.Segment, w grid.Window) []grid.Observation {
	t := w.MidSec()
	var out []grid.Observation
	for _, r := range o.Field.Runners {
		span, ok := seg.Spans[r.Cohort]
		if !ok {
			continue
		}
		wave, ok := o.Field.Wave(r.Cohort)
		if !ok {
			continue
		}
		km := r.KMAt(t, wave.GunTimeSec)
		s := (km - span.StartKM) / span.LengthKM()
		if s < 0 || s >= 1 {
			continue
		}
		out = append(out, grid.Observation{
			PositionM: s * seg.LengthM,
			SpeedMPS:  r.SpeedMPS(),
		})
	}
	return out
}
