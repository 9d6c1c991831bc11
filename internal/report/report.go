// Package report renders run artifacts to files: an interactive HTML
// density heatmap per segment, a static PNG of density over time, and a
// plain-text run summary.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/corral-data/density.report/internal/engine"
	"github.com/corral-data/density.report/internal/grid"
	"github.com/corral-data/density.report/internal/units"
)

// Reporter writes all artifacts for a run under OutputDir. Speeds in the
// text summary are rendered in Units; densities are always runners/m².
type Reporter struct {
	OutputDir string
	Units     string
}

// NewReporter creates the output directory if needed. An empty unit selects
// m/s; an unknown unit is a configuration error.
func NewReporter(dir, unit string) (*Reporter, error) {
	if unit == "" {
		unit = units.MPS
	}
	if !units.IsValid(unit) {
		return nil, fmt.Errorf("invalid speed unit %q, must be one of: %s",
			unit, units.GetValidUnitsString())
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create report dir: %w", err)
	}
	return &Reporter{OutputDir: dir, Units: unit}, nil
}

// Generate writes every artifact for the run. File-level failures abort:
// a half-written report directory is worse than an error.
func (r *Reporter) Generate(res *engine.RunResult) error {
	for id, g := range res.Grids {
		if err := r.renderHeatmap(id, g); err != nil {
			return err
		}
		if err := r.renderDensityPlot(id, g); err != nil {
			return err
		}
	}
	return r.writeSummary(res)
}

// renderHeatmap writes an interactive window × bin density heatmap.
func (r *Reporter) renderHeatmap(segmentID string, g *grid.SegmentGrid) error {
	data := make([]opts.HeatMapData, 0, len(g.Bins))
	maxDensity := 0.0
	for _, b := range g.Bins {
		data = append(data, opts.HeatMapData{
			Value: [3]interface{}{b.WindowIndex, b.BinIndex, b.Density},
		})
		if b.Density > maxDensity {
			maxDensity = b.Density
		}
	}
	if maxDensity == 0 {
		maxDensity = 1
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: fmt.Sprintf("Density — %s", segmentID),
			Width:     "1200px",
			Height:    "700px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Segment %s density", segmentID),
			Subtitle: fmt.Sprintf("bin length %.0f m, %d windows", g.BinLengthM, len(g.Windows)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Name: "time window"}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Name: "distance bin"}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxDensity),
			InRange: &opts.VisualMapInRange{
				Color: []string{"#440154", "#3e4989", "#26828e", "#35b779", "#b5de2b", "#fde725"},
			},
		}),
	)
	hm.AddSeries("density", data)

	path := filepath.Join(r.OutputDir, fmt.Sprintf("heatmap_%s.html", segmentID))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()
	if err := hm.Render(f); err != nil {
		return fmt.Errorf("failed to render heatmap for %s: %w", segmentID, err)
	}
	return nil
}

// writeSummary emits the plain-text run narrative.
func (r *Reporter) writeSummary(res *engine.RunResult) error {
	path := filepath.Join(r.OutputDir, "summary.txt")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	fmt.Fprintf(f, "Run %s\n", res.RunID)
	fmt.Fprintf(f, "Status: %s\n", res.Status)
	fmt.Fprintf(f, "Started: %s\n", res.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(f, "Features: %d (attempts: %d, final state: %s)\n",
		res.Metadata.TotalFeatures, res.Metadata.Attempts, res.Metadata.FinalState)
	fmt.Fprintf(f, "Occupied bins: %d, nonzero density bins: %d\n",
		res.Metadata.OccupiedBins, res.Metadata.NonzeroDensityBins)

	for _, tr := range res.Metadata.Coarsening {
		fmt.Fprintf(f, "Coarsening: %s -> %s (%s)\n", tr.From, tr.To, tr.Reason)
	}
	for _, id := range res.Metadata.EmptySegments {
		fmt.Fprintf(f, "Empty segment: %s\n", id)
	}

	ids := make([]string, 0, len(res.Grids))
	for id := range res.Grids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		speed, ok := meanSpeedMPS(res.Grids[id])
		if !ok {
			continue
		}
		fmt.Fprintf(f, "Segment %s: mean speed %.2f %s (pace %s)\n",
			id, units.ConvertSpeed(speed, r.Units), r.Units,
			units.FormatPace(units.SpeedToPaceSecPerKM(speed)))
	}

	if len(res.Convergence) > 0 {
		fmt.Fprintf(f, "\nConvergence\n")
		for _, cr := range res.Convergence {
			if !cr.Found {
				fmt.Fprintf(f, "  %s: %s vs %s — no convergence on segment\n",
					cr.SegmentID, cr.CohortA, cr.CohortB)
				continue
			}
			fmt.Fprintf(f, "  %s: %s meets %s at %s km %.2f (zone %.2f–%.2f, %d pace pairs)\n",
				cr.SegmentID, cr.CohortB, cr.CohortA, cr.CohortA, cr.KMRulerA,
				cr.Zone.Lo, cr.Zone.Hi, cr.Accepted)
		}
	}

	if len(res.Overtakes) > 0 {
		fmt.Fprintf(f, "\nOvertaking\n")
		for _, rec := range res.Overtakes {
			fmt.Fprintf(f, "  %s (%s vs %s): %d passes, %d co-present pairs\n",
				rec.SegmentID, rec.CohortA, rec.CohortB, rec.PairPasses, rec.PairCoPresent)
			for _, hl := range rec.HighLoad {
				fmt.Fprintf(f, "    high load: %s runner %d carries %d passes\n",
					hl.Cohort, hl.RunnerIndex, hl.Load)
			}
		}
	}

	if len(res.Warnings) > 0 {
		fmt.Fprintf(f, "\nReconciliation warnings\n")
		for _, w := range res.Warnings {
			fmt.Fprintf(f, "  %s\n", w.Message)
		}
	} else {
		fmt.Fprintf(f, "\nReconciliation: all segments consistent\n")
	}
	return nil
}

// meanSpeedMPS returns the count-weighted mean runner speed over every
// occupied bin, and false when the grid holds no observations.
func meanSpeedMPS(g *grid.SegmentGrid) (float64, bool) {
	var sum float64
	var n int
	for _, b := range g.Bins {
		sum += float64(b.Count) * b.MeanSpeedMPS
		n += b.Count
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
