package converge

import (
	"math"
	"testing"

	"github.com/corral-data/density.report/internal/course"
)

func sharedSegment() course.Segment {
	// Historical regression geometry: two cohorts share segment F1 with
	// entirely disjoint ruler kilometres.
	return course.Segment{
		ID: "F1", LengthM: 2250, WidthM: 7.5, Direction: course.OneWay,
		Spans: map[string]course.Span{
			"A": {StartKM: 5.81, EndKM: 8.10},
			"B": {StartKM: 2.70, EndKM: 4.95},
		},
	}
}

func TestSolveDisjointRulersConverge(t *testing.T) {
	// Cohort A guns at minute 440, B at minute 460; B's pace samples are
	// quicker, so B catches A on the shared asphalt. The historical bug was
	// a raw km-range overlap test returning "no overlap" here; expectation
	// is a valid local fraction and roughly km 6.98 on A's ruler.
	sv := NewSolver()
	a := Cohort{ID: "A", GunTimeSec: 440 * 60, PaceSamples: []float64{354, 360, 366}}
	b := Cohort{ID: "B", GunTimeSec: 460 * 60, PaceSamples: []float64{336, 340.8, 348}}

	res, err := sv.Solve(sharedSegment(), a, b)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if !res.Found {
		t.Fatal("expected convergence, got none")
	}
	if res.S < 0 || res.S > 1 {
		t.Errorf("local fraction = %f, want within [0,1]", res.S)
	}
	if math.Abs(res.KMRulerA-6.98) > 0.15 {
		t.Errorf("convergence on A's ruler = %f km, want ≈6.98", res.KMRulerA)
	}
	// The same physical point on B's ruler.
	wantB := 2.70 + res.S*2.25
	if math.Abs(res.KMRulerB-wantB) > 1e-9 {
		t.Errorf("convergence on B's ruler = %f km, want %f", res.KMRulerB, wantB)
	}
	if res.Zone.Lo < 0 || res.Zone.Hi > 1 || res.Zone.Width() <= 0 {
		t.Errorf("bad zone: %+v", res.Zone)
	}
	if res.MeetTimeSec <= a.GunTimeSec {
		t.Errorf("meet time = %f, want after cohort A's gun", res.MeetTimeSec)
	}
}

func TestSolveEqualGunTimesNotShortCircuited(t *testing.T) {
	// Same gun time but different paces must still be evaluated: the faster
	// cohort catches the slower one mid-segment.
	seg := course.Segment{
		ID: "S", LengthM: 1000, WidthM: 6, Direction: course.OneWay,
		Spans: map[string]course.Span{
			"A": {StartKM: 5.0, EndKM: 7.0},
			"B": {StartKM: 2.0, EndKM: 3.0},
		},
	}
	// Both waves gun at t=0. Cohort B walks (710 s/km) and reaches the
	// segment first; cohort A runs (300 s/km) and catches B on the segment:
	// 300·(5+2s) = 710·(2+s) at s = 80/110.
	a := Cohort{ID: "A", GunTimeSec: 0, PaceSamples: []float64{300}}
	b := Cohort{ID: "B", GunTimeSec: 0, PaceSamples: []float64{710}}

	res, err := NewSolver().Solve(seg, a, b)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if !res.Found {
		t.Fatal("equal gun times must not short-circuit to no convergence")
	}
	if math.Abs(res.S-80.0/110.0) > 1e-9 {
		t.Errorf("local fraction = %f, want %f", res.S, 80.0/110.0)
	}
	if math.Abs(res.MeetTimeSec-300*(5+2*res.S)) > 1e-6 {
		t.Errorf("meet time = %f, want %f", res.MeetTimeSec, 300*(5+2*res.S))
	}
}

func TestSolveParallelSpeedsSkipped(t *testing.T) {
	seg := course.Segment{
		ID: "S", LengthM: 1000, WidthM: 6, Direction: course.OneWay,
		Spans: map[string]course.Span{
			"A": {StartKM: 2.0, EndKM: 3.0},
			"B": {StartKM: 7.0, EndKM: 8.0},
		},
	}
	// Identical pace over identical span length: denominator is zero for
	// every pair. Must return no convergence, not an error or NaN.
	a := Cohort{ID: "A", GunTimeSec: 0, PaceSamples: []float64{330}}
	b := Cohort{ID: "B", GunTimeSec: 900, PaceSamples: []float64{330}}

	res, err := NewSolver().Solve(seg, a, b)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if res.Found {
		t.Error("parallel relative speeds must be skipped as no catch")
	}
	if res.Accepted != 0 {
		t.Errorf("accepted = %d, want 0", res.Accepted)
	}
}

func TestSolveMissingSpanFails(t *testing.T) {
	seg := course.Segment{
		ID: "S", LengthM: 1000, WidthM: 6, Direction: course.OneWay,
		Spans: map[string]course.Span{
			"A": {StartKM: 2.0, EndKM: 3.0},
		},
	}
	a := Cohort{ID: "A", GunTimeSec: 0, PaceSamples: []float64{300}}
	b := Cohort{ID: "B", GunTimeSec: 0, PaceSamples: []float64{360}}

	if _, err := NewSolver().Solve(seg, a, b); err == nil {
		t.Error("expected error for missing cohort span")
	}
}

func TestSolvePrefersMidpointSolution(t *testing.T) {
	// With multiple accepted pace pairs, the representative point is the one
	// closest to s=0.5.
	sv := NewSolver()
	a := Cohort{ID: "A", GunTimeSec: 440 * 60, PaceSamples: []float64{354, 360, 366}}
	b := Cohort{ID: "B", GunTimeSec: 460 * 60, PaceSamples: []float64{336, 340.8, 348}}

	res, err := sv.Solve(sharedSegment(), a, b)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if res.Accepted < 2 {
		t.Fatalf("accepted = %d, want at least 2 candidates", res.Accepted)
	}
	if math.Abs(res.S-0.5) > 0.1 {
		t.Errorf("representative s = %f, want the candidate nearest 0.5", res.S)
	}
	// Zone spans all accepted candidates, so it brackets the representative.
	if res.S < res.Zone.Lo || res.S > res.Zone.Hi {
		t.Errorf("representative s=%f outside zone %+v", res.S, res.Zone)
	}
}

func TestPadZone(t *testing.T) {
	tests := []struct {
		name string
		z    Zone
		min  float64
		want Zone
	}{
		{"wide enough untouched", Zone{0.2, 0.6}, 0.05, Zone{0.2, 0.6}},
		{"degenerate centre padded", Zone{0.5, 0.5}, 0.1, Zone{0.45, 0.55}},
		{"clamped at zero", Zone{0.0, 0.0}, 0.1, Zone{0.0, 0.1}},
		{"clamped at one", Zone{1.0, 1.0}, 0.1, Zone{0.9, 1.0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := padZone(tt.z, tt.min)
			if math.Abs(got.Lo-tt.want.Lo) > 1e-9 || math.Abs(got.Hi-tt.want.Hi) > 1e-9 {
				t.Errorf("padZone(%+v, %f) = %+v, want %+v", tt.z, tt.min, got, tt.want)
			}
		})
	}
}
