package field

import (
	"math"
	"testing"

	"github.com/corral-data/density.report/internal/course"
	"github.com/corral-data/density.report/internal/grid"
)

func TestRunnerPositionModel(t *testing.T) {
	r := Runner{Cohort: "A", PaceSecPerKM: 300, StartOffsetSec: 60}
	gun := 1000.0

	tests := []struct {
		name   string
		t      float64
		wantKM float64
	}{
		{"before own start", 1000, -0.2},
		{"at own start line", 1060, 0},
		{"one km in", 1360, 1.0},
		{"two and a half km", 1810, 2.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.KMAt(tt.t, gun); math.Abs(got-tt.wantKM) > 1e-9 {
				t.Errorf("KMAt(%f) = %f, want %f", tt.t, got, tt.wantKM)
			}
		})
	}

	// TimeAtKM inverts KMAt.
	if got := r.TimeAtKM(2.5, gun); math.Abs(got-1810) > 1e-9 {
		t.Errorf("TimeAtKM(2.5) = %f, want 1810", got)
	}
}

func TestPaceQuantiles(t *testing.T) {
	f := &Field{
		Waves: []Wave{{ID: "A", GunTimeSec: 0}},
		Runners: []Runner{
			{Cohort: "A", PaceSecPerKM: 280},
			{Cohort: "A", PaceSecPerKM: 300},
			{Cohort: "A", PaceSecPerKM: 320},
			{Cohort: "A", PaceSecPerKM: 340},
			{Cohort: "A", PaceSecPerKM: 400},
		},
	}

	qs, err := f.PaceQuantiles("A", []float64{0.05, 0.5, 0.95})
	if err != nil {
		t.Fatalf("PaceQuantiles: %v", err)
	}
	if len(qs) != 3 {
		t.Fatalf("quantiles = %d, want 3", len(qs))
	}
	if qs[0] > qs[1] || qs[1] > qs[2] {
		t.Errorf("quantiles not ascending: %v", qs)
	}
	if qs[0] < 280 || qs[2] > 400 {
		t.Errorf("quantiles outside data range: %v", qs)
	}

	if _, err := f.PaceQuantiles("missing", []float64{0.5}); err == nil {
		t.Error("expected error for unknown cohort")
	}
}

func TestFieldValidate(t *testing.T) {
	tests := []struct {
		name      string
		field     Field
		expectErr bool
	}{
		{
			"valid roster",
			Field{
				Waves:   []Wave{{ID: "A", GunTimeSec: 0}},
				Runners: []Runner{{Cohort: "A", PaceSecPerKM: 300}},
			},
			false,
		},
		{
			"runner in unknown cohort",
			Field{
				Waves:   []Wave{{ID: "A", GunTimeSec: 0}},
				Runners: []Runner{{Cohort: "B", PaceSecPerKM: 300}},
			},
			true,
		},
		{
			"non-positive pace",
			Field{
				Waves:   []Wave{{ID: "A", GunTimeSec: 0}},
				Runners: []Runner{{Cohort: "A", PaceSecPerKM: 0}},
			},
			true,
		},
		{
			"negative start offset",
			Field{
				Waves:   []Wave{{ID: "A", GunTimeSec: 0}},
				Runners: []Runner{{Cohort: "A", PaceSecPerKM: 300, StartOffsetSec: -5}},
			},
			true,
		},
		{
			"duplicate wave",
			Field{Waves: []Wave{{ID: "A"}, {ID: "A"}}},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.field.Validate()
			if tt.expectErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestSegmentObserverMapsCohortRulers(t *testing.T) {
	// Segment F1 is 1000 m of shared asphalt. Cohort A crosses it at ruler
	// km [5.0, 6.0]; cohort B at [2.0, 3.0]. A runner from each cohort
	// standing at the same physical midpoint must produce the same
	// longitudinal position.
	seg := course.Segment{
		ID: "F1", LengthM: 1000, WidthM: 6, Direction: course.OneWay,
		Spans: map[string]course.Span{
			"A": {StartKM: 5.0, EndKM: 6.0},
			"B": {StartKM: 2.0, EndKM: 3.0},
		},
	}

	f := &Field{
		Waves: []Wave{{ID: "A", GunTimeSec: 0}, {ID: "B", GunTimeSec: 600}},
		Runners: []Runner{
			// pace 300 s/km: at t=1650 this runner is at km 5.5 on A's ruler.
			{Cohort: "A", PaceSecPerKM: 300},
			// pace 300 s/km, gun 600: at t=1350 this runner is at km 2.5 on B's ruler.
			{Cohort: "B", PaceSecPerKM: 300},
		},
	}

	obs := NewSegmentObserver(f)

	// Window midpoint 1650: A's runner at km 5.5 -> 500 m in. B's runner is
	// already past the segment (ruler km 3.5).
	got := obs.Observe(seg, grid.Window{Index: 0, StartSec: 1620, EndSec: 1680})
	if len(got) != 1 {
		t.Fatalf("observations = %d, want 1", len(got))
	}
	if math.Abs(got[0].PositionM-500) > 1e-6 {
		t.Errorf("A position = %f, want 500", got[0].PositionM)
	}

	// Window midpoint 1350: only B's runner is on segment (A's is at km 4.5).
	got = obs.Observe(seg, grid.Window{Index: 1, StartSec: 1320, EndSec: 1380})
	if len(got) != 1 {
		t.Fatalf("observations = %d, want 1", len(got))
	}
	if math.Abs(got[0].PositionM-500) > 1e-6 {
		t.Errorf("B position = %f, want 500", got[0].PositionM)
	}
	if math.Abs(got[0].SpeedMPS-1000.0/300.0) > 1e-9 {
		t.Errorf("B speed = %f, want %f", got[0].SpeedMPS, 1000.0/300.0)
	}
}
