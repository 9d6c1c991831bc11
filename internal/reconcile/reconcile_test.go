package reconcile

import (
	"strings"
	"testing"

	"github.com/corral-data/density.report/internal/course"
	"github.com/corral-data/density.report/internal/grid"
)

type fixedObservations struct {
	obs []grid.Observation
}

func (f fixedObservations) Observe(seg course.Segment, w grid.Window) []grid.Observation {
	return f.obs
}

func testSegment() course.Segment {
	// 95 m long with 10 m bins: the final bin is truncated to 5 m, which is
	// exactly the case the length weighting has to handle.
	return course.Segment{ID: "S1", LengthM: 95, WidthM: 4, Direction: course.OneWay}
}

func accumulatedGrid(t *testing.T, obs []grid.Observation) *grid.SegmentGrid {
	t.Helper()
	acc, err := grid.NewAccumulator(10, grid.DefaultLOSTable())
	if err != nil {
		t.Fatalf("NewAccumulator: %v", err)
	}
	windows, err := grid.GenerateWindows(0, 60, 60)
	if err != nil {
		t.Fatalf("GenerateWindows: %v", err)
	}
	g, err := acc.AccumulateSegment(testSegment(), windows, fixedObservations{obs})
	if err != nil {
		t.Fatalf("AccumulateSegment: %v", err)
	}
	return g
}

func TestValidateCleanGridPasses(t *testing.T) {
	g := accumulatedGrid(t, []grid.Observation{
		{PositionM: 3, SpeedMPS: 3.2},
		{PositionM: 7, SpeedMPS: 2.8},
		{PositionM: 41, SpeedMPS: 3.0},
		{PositionM: 92, SpeedMPS: 2.5}, // lands in the truncated final bin
	})

	warnings := NewValidator().Validate(testSegment(), g)
	if len(warnings) != 0 {
		t.Errorf("clean grid should reconcile, got %d warnings: %v", len(warnings), warnings)
	}
}

func TestValidateFlagsTamperedDensity(t *testing.T) {
	g := accumulatedGrid(t, []grid.Observation{
		{PositionM: 3, SpeedMPS: 3.0},
		{PositionM: 41, SpeedMPS: 3.0},
	})

	// Corrupt one occupied bin's density and rate the way a broken
	// derivation would.
	for i := range g.Bins {
		if g.Bins[i].Count > 0 {
			g.Bins[i].Density *= 2
			g.Bins[i].Rate *= 2
			break
		}
	}

	warnings := NewValidator().Validate(testSegment(), g)
	if len(warnings) != 2 {
		t.Fatalf("expected density and rate warnings, got %d: %v", len(warnings), warnings)
	}

	kinds := map[string]bool{}
	for _, w := range warnings {
		kinds[w.Check] = true
		if w.SegmentID != "S1" {
			t.Errorf("warning names segment %q, want S1", w.SegmentID)
		}
		if w.WindowIndex != 0 {
			t.Errorf("warning names window %d, want 0", w.WindowIndex)
		}
		if !strings.Contains(w.Message, "S1") || !strings.Contains(w.Message, "window 0") {
			t.Errorf("message should name segment and window: %q", w.Message)
		}
	}
	if !kinds[CheckDensity] || !kinds[CheckRate] {
		t.Errorf("want one warning per check, got kinds %v", kinds)
	}
}

func TestValidateSkipsEmptyWindows(t *testing.T) {
	g := accumulatedGrid(t, nil)
	if warnings := NewValidator().Validate(testSegment(), g); len(warnings) != 0 {
		t.Errorf("empty windows must trivially reconcile, got %v", warnings)
	}
}

func TestRelativeDeviation(t *testing.T) {
	tests := []struct {
		name      string
		got, want float64
		dev       float64
	}{
		{"exact", 2.0, 2.0, 0},
		{"ten percent over", 1.1, 1.0, 0.1},
		{"ten percent under", 0.9, 1.0, 0.1},
		{"both zero", 0, 0, 0},
		{"zero reference", 0.5, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := relativeDeviation(tt.got, tt.want)
			if diff := got - tt.dev; diff > 1e-12 || diff < -1e-12 {
				t.Errorf("relativeDeviation(%f, %f) = %f, want %f", tt.got, tt.want, got, tt.dev)
			}
		})
	}
}
