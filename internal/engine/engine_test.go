package engine

import (
	"math"
	"testing"

	"github.com/corral-data/density.report/internal/course"
	"github.com/corral-data/density.report/internal/field"
)

// mergeCatalog builds the two-wave merge scenario: one physical 2.29 km
// segment crossed by wave-a at course km 5.81–8.10 and wave-b at km
// 2.70–4.95 of its own shorter route.
func mergeCatalog() *course.Catalog {
	return &course.Catalog{Segments: []course.Segment{
		{
			ID:        "merge",
			LengthM:   2290,
			WidthM:    6,
			Direction: course.OneWay,
			Spans: map[string]course.Span{
				"wave-a": {StartKM: 5.81, EndKM: 8.10},
				"wave-b": {StartKM: 2.70, EndKM: 4.95},
			},
		},
	}}
}

// mergeField gives each wave three runners whose paces land exactly on the
// 5/50/95 empirical quantiles.
func mergeField() *field.Field {
	return &field.Field{
		Waves: []field.Wave{
			{ID: "wave-a", GunTimeSec: 440 * 60},
			{ID: "wave-b", GunTimeSec: 460 * 60},
		},
		Runners: []field.Runner{
			{Cohort: "wave-a", PaceSecPerKM: 354},
			{Cohort: "wave-a", PaceSecPerKM: 360},
			{Cohort: "wave-a", PaceSecPerKM: 366},
			{Cohort: "wave-b", PaceSecPerKM: 336},
			{Cohort: "wave-b", PaceSecPerKM: 340.8},
			{Cohort: "wave-b", PaceSecPerKM: 348},
		},
	}
}

func TestRunMergeScenario(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HorizonStartSec = 440 * 60 // first gun; nothing happens earlier

	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := e.Run(mergeCatalog(), mergeField())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Status != StatusOK {
		t.Errorf("status = %q, want %q", res.Status, StatusOK)
	}
	if res.RunID == "" {
		t.Error("run ID not assigned")
	}

	if len(res.Convergence) != 1 {
		t.Fatalf("convergence results = %d, want 1", len(res.Convergence))
	}
	cr := res.Convergence[0]
	if !cr.Found {
		t.Fatal("convergence not found for overlapping cohorts")
	}
	// Faster wave-b catches wave-a just short of wave-a's km 7.
	if math.Abs(cr.KMRulerA-6.98) > 0.15 {
		t.Errorf("convergence at wave-a km %.3f, want ~6.98", cr.KMRulerA)
	}
	if cr.Zone.Lo < 0 || cr.Zone.Hi > 1 || cr.Zone.Width() <= 0 {
		t.Errorf("malformed zone %+v", cr.Zone)
	}

	if len(res.Overtakes) != 1 {
		t.Fatalf("overtake records = %d, want 1", len(res.Overtakes))
	}
	rec := res.Overtakes[0]
	if rec.PairPasses+rec.PairCoPresent == 0 {
		t.Error("no runner pairs classified in the convergence zone")
	}

	g := res.Grids["merge"]
	if g == nil {
		t.Fatal("no grid for the merge segment")
	}
	if g.Empty() {
		t.Error("merge grid is empty despite runners crossing it")
	}
	if res.Metadata.OccupiedBins == 0 || res.Metadata.TotalFeatures == 0 {
		t.Errorf("metadata counters not populated: %+v", res.Metadata)
	}

	// Fine-grained aggregates must reconcile against segment totals.
	if len(res.Warnings) != 0 {
		t.Errorf("reconciliation warnings on a clean run: %v", res.Warnings)
	}
	if !res.Metadata.ReconcilePassed {
		t.Error("reconcile flag not set on a warning-free run")
	}
}

func TestRunIsolatesInvalidSegments(t *testing.T) {
	catalog := mergeCatalog()
	catalog.Segments = append(catalog.Segments, course.Segment{
		ID: "bad", LengthM: -5, WidthM: 4, Direction: course.OneWay,
	})

	cfg := DefaultConfig()
	cfg.HorizonStartSec = 440 * 60
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := e.Run(catalog, mergeField())
	if err != nil {
		t.Fatalf("a bad segment must not abort the run: %v", err)
	}
	if len(res.SegmentErrors) != 1 {
		t.Fatalf("segment errors = %d, want 1", len(res.SegmentErrors))
	}
	if res.SegmentErrors[0].SegmentID != "bad" {
		t.Errorf("wrong segment rejected: %+v", res.SegmentErrors[0])
	}
	if res.Grids["merge"] == nil {
		t.Error("valid segment dropped along with the invalid one")
	}
	if _, ok := res.Grids["bad"]; ok {
		t.Error("invalid segment produced a grid")
	}
}

func TestRunEmptyHorizonFlagsEmptyStatus(t *testing.T) {
	cfg := DefaultConfig()
	// Horizon ends long before the first gun: nobody is on course.
	cfg.HorizonStartSec = 0
	cfg.HorizonEndSec = 600

	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := e.Run(mergeCatalog(), mergeField())
	if err != nil {
		t.Fatalf("an empty horizon is a degraded run, not an error: %v", err)
	}
	if res.Status != StatusEmpty {
		t.Errorf("status = %q, want %q", res.Status, StatusEmpty)
	}
	if len(res.Metadata.EmptySegments) != 1 || res.Metadata.EmptySegments[0] != "merge" {
		t.Errorf("empty segments = %v, want [merge]", res.Metadata.EmptySegments)
	}
	if res.Grids["merge"] == nil {
		t.Error("empty run must still return the grid artifact")
	}
}

func TestRunRejectsAllInvalidCatalog(t *testing.T) {
	catalog := &course.Catalog{Segments: []course.Segment{
		{ID: "bad", LengthM: 0, WidthM: 0},
	}}
	e, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := e.Run(catalog, mergeField()); err == nil {
		t.Error("a catalog with zero valid segments must error")
	}
}
