// Package grid turns raw runner trajectories into a 2-D (distance × time)
// grid of density, throughput rate, and Level-of-Service labels per course
// segment. The accumulation pass is the correctness-critical core: counts
// are scatter-accumulated, never assigned, so two runners landing in the
// same bin both contribute.
package grid

import (
	"fmt"
	"math"

	"github.com/corral-data/density.report/internal/course"
)

// Observation is one runner seen on a segment within a window: longitudinal
// position in metres from the segment start, and instantaneous speed.
type Observation struct {
	PositionM float64
	SpeedMPS  float64
}

// ObservationSource resolves which runners are on a segment during a window.
// The trajectory-to-segment mapping lives outside this package (see
// field.SegmentObserver).
type ObservationSource interface {
	Observe(seg course.Segment, w Window) []Observation
}

// Bin is the atomic output unit: one distance sub-range crossed with one
// time window. LOS is computed here, exactly once, from density alone;
// downstream consumers read the stored label and never recompute it.
type Bin struct {
	SegmentID   string
	BinIndex    int
	WindowIndex int

	StartM float64
	EndM   float64

	WindowStartSec float64
	WindowEndSec   float64

	Count        int
	MeanSpeedMPS float64
	Density      float64 // runners per m²
	Rate         float64 // runners per second past the bin
	LOS          string
}

// Counters summarise one accumulation pass for telemetry and emptiness
// detection.
type Counters struct {
	TotalBins          int
	OccupiedBins       int
	NonzeroDensityBins int
}

// SegmentGrid is the full bin grid for one segment at one resolution.
type SegmentGrid struct {
	SegmentID  string
	BinLengthM float64
	Windows    []Window
	Bins       []Bin
	Counters   Counters
}

// Empty reports whether the accumulation produced no occupied bins. Callers
// surface this as an error-level condition in run metadata; the grid itself
// is still returned.
func (g *SegmentGrid) Empty() bool {
	return g.Counters.OccupiedBins == 0
}

// scatterBuffer is the accumulate-into-buffer primitive. Add increments; it
// never assigns. An index-assignment here would silently zero density for
// any bin holding more than one runner.
type scatterBuffer struct {
	counts    []int
	speedSums []float64
}

func newScatterBuffer(n int) *scatterBuffer {
	return &scatterBuffer{
		counts:    make([]int, n),
		speedSums: make([]float64, n),
	}
}

// Add accumulates one observation into the bin at idx.
func (b *scatterBuffer) Add(idx int, speedMPS float64) {
	b.counts[idx]++
	b.speedSums[idx] += speedMPS
}

// Accumulator produces SegmentGrids at a fixed distance-bin length using a
// validated LOS table.
type Accumulator struct {
	BinLengthM float64
	Thresholds LOSTable
}

// NewAccumulator validates the bin length and threshold table up front so a
// bad configuration fails before any segment is processed.
func NewAccumulator(binLengthM float64, thresholds LOSTable) (*Accumulator, error) {
	if binLengthM <= 0 {
		return nil, fmt.Errorf("bin length must be positive, got %f", binLengthM)
	}
	if err := thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid LOS table: %w", err)
	}
	return &Accumulator{BinLengthM: binLengthM, Thresholds: thresholds}, nil
}

// AccumulateSegment runs one full accumulation pass over the segment: for
// every window, scatter-accumulate runner counts and speed sums per distance
// bin, then derive density, rate, and LOS. Bins are written once; a
// coarsening re-run produces a fresh grid rather than mutating this one.
func (a *Accumulator) AccumulateSegment(seg course.Segment, windows []Window, src ObservationSource) (*SegmentGrid, error) {
	if err := seg.Validate(); err != nil {
		return nil, fmt.Errorf("refusing to accumulate invalid segment: %w", err)
	}
	if len(windows) == 0 {
		return nil, fmt.Errorf("segment %s: no time windows", seg.ID)
	}

	nBins := int(math.Ceil(seg.LengthM / a.BinLengthM))
	g := &SegmentGrid{
		SegmentID:  seg.ID,
		BinLengthM: a.BinLengthM,
		Windows:    windows,
		Bins:       make([]Bin, 0, nBins*len(windows)),
	}

	for _, w := range windows {
		buf := newScatterBuffer(nBins)
		for _, obs := range src.Observe(seg, w) {
			if obs.PositionM < 0 || obs.PositionM >= seg.LengthM {
				continue
			}
			idx := int(obs.PositionM / a.BinLengthM)
			if idx >= nBins {
				idx = nBins - 1
			}
			buf.Add(idx, obs.SpeedMPS)
		}

		for i := 0; i < nBins; i++ {
			startM := float64(i) * a.BinLengthM
			endM := startM + a.BinLengthM
			if endM > seg.LengthM {
				endM = seg.LengthM
			}
			binLen := endM - startM

			count := buf.counts[i]
			meanSpeed := 0.0
			if count > 0 {
				meanSpeed = buf.speedSums[i] / float64(count)
			}
			density := float64(count) / (binLen * seg.WidthM)
			rate := density * seg.WidthM * meanSpeed

			g.Bins = append(g.Bins, Bin{
				SegmentID:      seg.ID,
				BinIndex:       i,
				WindowIndex:    w.Index,
				StartM:         startM,
				EndM:           endM,
				WindowStartSec: w.StartSec,
				WindowEndSec:   w.EndSec,
				Count:          count,
				MeanSpeedMPS:   meanSpeed,
				Density:        density,
				Rate:           rate,
				LOS:            a.Thresholds.Classify(density),
			})

			g.Counters.TotalBins++
			if count > 0 {
				g.Counters.OccupiedBins++
			}
			if density > 0 {
				g.Counters.NonzeroDensityBins++
			}
		}
	}

	return g, nil
}
