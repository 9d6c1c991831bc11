package report

import (
	"fmt"
	"image/color"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/corral-data/density.report/internal/grid"
)

// renderDensityPlot writes a PNG of peak and mean bin density per time
// window for one segment.
func (r *Reporter) renderDensityPlot(segmentID string, g *grid.SegmentGrid) error {
	type windowStats struct {
		peak float64
		sum  float64
		n    int
	}
	stats := make(map[int]*windowStats)
	for _, b := range g.Bins {
		ws := stats[b.WindowIndex]
		if ws == nil {
			ws = &windowStats{}
			stats[b.WindowIndex] = ws
		}
		if b.Density > ws.peak {
			ws.peak = b.Density
		}
		ws.sum += b.Density
		ws.n++
	}

	peakPts := make(plotter.XYs, 0, len(g.Windows))
	meanPts := make(plotter.XYs, 0, len(g.Windows))
	for _, w := range g.Windows {
		ws := stats[w.Index]
		if ws == nil || ws.n == 0 {
			continue
		}
		x := w.MidSec()
		peakPts = append(peakPts, plotter.XY{X: x, Y: ws.peak})
		meanPts = append(meanPts, plotter.XY{X: x, Y: ws.sum / float64(ws.n)})
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Segment %s density over time", segmentID)
	p.X.Label.Text = "time (s)"
	p.Y.Label.Text = "density (runners/m²)"

	peakLine, err := plotter.NewLine(peakPts)
	if err != nil {
		return fmt.Errorf("failed to build peak density line: %w", err)
	}
	peakLine.Width = vg.Points(1)
	peakLine.Color = color.RGBA{R: 200, A: 255}
	p.Add(peakLine)
	p.Legend.Add("peak bin", peakLine)

	meanLine, err := plotter.NewLine(meanPts)
	if err != nil {
		return fmt.Errorf("failed to build mean density line: %w", err)
	}
	meanLine.Width = vg.Points(1)
	meanLine.Color = color.RGBA{B: 200, A: 255}
	p.Add(meanLine)
	p.Legend.Add("mean", meanLine)

	path := filepath.Join(r.OutputDir, fmt.Sprintf("density_%s.png", segmentID))
	if err := p.Save(10*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save density plot for %s: %w", segmentID, err)
	}
	return nil
}
