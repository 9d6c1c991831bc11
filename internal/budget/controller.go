// Package budget wraps the bin accumulator in an adaptive coarsening loop:
// when projected output size or elapsed compute time exceeds the configured
// ceilings, time windows are widened first (non-hotspot segments only), then
// distance bins, until the run fits or every option is exhausted. The retry
// loop is an explicit finite state machine; transitions are first-class
// values retained for inspection.
package budget

import (
	"fmt"
	"time"

	"github.com/corral-data/density.report/internal/course"
	"github.com/corral-data/density.report/internal/grid"
)

// State names one stage of the coarsening state machine.
type State string

const (
	StateInitial           State = "initial"
	StateTemporalCoarsened State = "temporal-coarsened"
	StateSpatialCoarsened  State = "spatial-coarsened"
	StatePartial           State = "partial"
)

// Transition records one state change with the measurements that forced it.
type Transition struct {
	From     State
	To       State
	Reason   string
	Features int
	Elapsed  time.Duration
}

// Resolution is the (bin length, window length) pair a segment is
// accumulated at.
type Resolution struct {
	BinLengthM float64
	WindowSec  float64
}

// Config carries the execution budget and coarsening steps, supplied
// externally; nothing here is a hardcoded policy.
type Config struct {
	// MaxFeatures caps the total bin count across all segments.
	MaxFeatures int

	// SoftTimeBudget caps the per-pass accumulation time. Exceeding it
	// triggers coarsening, never cancellation.
	SoftTimeBudget time.Duration

	// Hotspots lists segment IDs that keep full resolution while any
	// non-hotspot headroom remains.
	Hotspots []string

	// WindowWidenFactor and MaxWindowSec bound temporal coarsening.
	WindowWidenFactor float64
	MaxWindowSec      float64

	// BinWidenFactor and MaxBinLengthM bound spatial coarsening.
	BinWidenFactor float64
	MaxBinLengthM  float64
}

// DefaultConfig returns operational defaults sized for a 1-2 minute run.
func DefaultConfig() Config {
	return Config{
		MaxFeatures:       200000,
		SoftTimeBudget:    90 * time.Second,
		WindowWidenFactor: 2,
		MaxWindowSec:      300,
		BinWidenFactor:    2,
		MaxBinLengthM:     200,
	}
}

// Validate rejects budgets that can never terminate the loop.
func (c Config) Validate() error {
	if c.MaxFeatures <= 0 {
		return fmt.Errorf("MaxFeatures must be positive, got %d", c.MaxFeatures)
	}
	if c.SoftTimeBudget <= 0 {
		return fmt.Errorf("SoftTimeBudget must be positive, got %v", c.SoftTimeBudget)
	}
	if c.WindowWidenFactor <= 1 {
		return fmt.Errorf("WindowWidenFactor must exceed 1, got %f", c.WindowWidenFactor)
	}
	if c.BinWidenFactor <= 1 {
		return fmt.Errorf("BinWidenFactor must exceed 1, got %f", c.BinWidenFactor)
	}
	if c.MaxWindowSec <= 0 {
		return fmt.Errorf("MaxWindowSec must be positive, got %f", c.MaxWindowSec)
	}
	if c.MaxBinLengthM <= 0 {
		return fmt.Errorf("MaxBinLengthM must be positive, got %f", c.MaxBinLengthM)
	}
	return nil
}

// IsHotspot reports whether the segment is configured to retain resolution.
func (c Config) IsHotspot(id string) bool {
	for _, h := range c.Hotspots {
		if h == id {
			return true
		}
	}
	return false
}

// Result is the final accumulation outcome plus the full retry history.
type Result struct {
	Grids       map[string]*grid.SegmentGrid
	Resolutions map[string]Resolution
	FinalState  State
	History     []Transition
	Attempts    int
	Features    int
	Elapsed     time.Duration

	// Partial is set when both coarsening passes were exhausted and the run
	// still exceeds budget; the observed data is reported, flagged.
	Partial bool
}

// Controller drives the coarsening state machine over one segment catalog.
type Controller struct {
	cfg        Config
	base       Resolution
	thresholds grid.LOSTable

	// now is the clock; injectable for deterministic tests.
	now func() time.Time
}

// NewController validates the budget and base resolution up front.
func NewController(cfg Config, base Resolution, thresholds grid.LOSTable) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid budget config: %w", err)
	}
	if base.BinLengthM <= 0 || base.WindowSec <= 0 {
		return nil, fmt.Errorf("base resolution must be positive, got %+v", base)
	}
	return &Controller{cfg: cfg, base: base, thresholds: thresholds, now: time.Now}, nil
}

// Run accumulates every segment under budget, coarsening as needed. Each
// retry re-derives all grids from scratch at the coarser resolution; prior
// attempts are fully superseded, never merged.
func (c *Controller) Run(catalog course.Catalog, horizonStartSec, horizonEndSec float64, src grid.ObservationSource) (*Result, error) {
	res := &Result{
		Resolutions: make(map[string]Resolution, len(catalog.Segments)),
	}
	for _, seg := range catalog.Segments {
		res.Resolutions[seg.ID] = c.base
	}

	state := StateInitial
	for {
		grids, features, elapsed, err := c.accumulatePass(catalog, horizonStartSec, horizonEndSec, res.Resolutions, src)
		if err != nil {
			return nil, err
		}
		res.Attempts++
		res.Grids = grids
		res.Features = features
		res.Elapsed = elapsed

		reason, over := c.overBudget(features, elapsed)
		if !over {
			res.FinalState = state
			return res, nil
		}

		switch state {
		case StateInitial:
			state = c.transition(res, state, StateTemporalCoarsened, reason, features, elapsed)
			c.widenWindows(catalog, res.Resolutions, false)
		case StateTemporalCoarsened:
			if c.widenWindows(catalog, res.Resolutions, false) {
				continue // more temporal headroom at this state
			}
			state = c.transition(res, state, StateSpatialCoarsened, reason, features, elapsed)
			c.widenBins(catalog, res.Resolutions, false)
		case StateSpatialCoarsened:
			if c.widenBins(catalog, res.Resolutions, false) {
				continue
			}
			// No non-hotspot segment remains to coarsen; hotspots give up
			// their resolution only now, as the last resort before partial.
			if c.widenWindows(catalog, res.Resolutions, true) || c.widenBins(catalog, res.Resolutions, true) {
				continue
			}
			c.transition(res, state, StatePartial, reason, features, elapsed)
			res.FinalState = StatePartial
			res.Partial = true
			return res, nil
		}
	}
}

// transition appends to the history and returns the new state.
func (c *Controller) transition(res *Result, from, to State, reason string, features int, elapsed time.Duration) State {
	res.History = append(res.History, Transition{
		From: from, To: to, Reason: reason,
		Features: features, Elapsed: elapsed,
	})
	return to
}

// overBudget reports whether the pass exceeded either ceiling.
func (c *Controller) overBudget(features int, elapsed time.Duration) (string, bool) {
	if features > c.cfg.MaxFeatures {
		return fmt.Sprintf("feature count %d exceeds cap %d", features, c.cfg.MaxFeatures), true
	}
	if elapsed > c.cfg.SoftTimeBudget {
		return fmt.Sprintf("pass took %v, soft budget %v", elapsed, c.cfg.SoftTimeBudget), true
	}
	return "", false
}

// accumulatePass runs one full accumulation over all segments at the given
// per-segment resolutions.
func (c *Controller) accumulatePass(catalog course.Catalog, horizonStartSec, horizonEndSec float64, resolutions map[string]Resolution, src grid.ObservationSource) (map[string]*grid.SegmentGrid, int, time.Duration, error) {
	start := c.now()
	grids := make(map[string]*grid.SegmentGrid, len(catalog.Segments))
	features := 0

	for _, seg := range catalog.Segments {
		r := resolutions[seg.ID]
		windows, err := grid.GenerateWindows(horizonStartSec, horizonEndSec, r.WindowSec)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("segment %s: %w", seg.ID, err)
		}
		acc, err := grid.NewAccumulator(r.BinLengthM, c.thresholds)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("segment %s: %w", seg.ID, err)
		}
		g, err := acc.AccumulateSegment(seg, windows, src)
		if err != nil {
			return nil, 0, 0, err
		}
		grids[seg.ID] = g
		features += g.Counters.TotalBins
	}

	return grids, features, c.now().Sub(start), nil
}

// widenWindows widens the window length for segments in the named group
// (hotspots or non-hotspots). Returns whether any segment changed.
func (c *Controller) widenWindows(catalog course.Catalog, resolutions map[string]Resolution, hotspots bool) bool {
	changed := false
	for _, seg := range catalog.Segments {
		if c.cfg.IsHotspot(seg.ID) != hotspots {
			continue
		}
		r := resolutions[seg.ID]
		if r.WindowSec >= c.cfg.MaxWindowSec {
			continue
		}
		r.WindowSec = minF(r.WindowSec*c.cfg.WindowWidenFactor, c.cfg.MaxWindowSec)
		resolutions[seg.ID] = r
		changed = true
	}
	return changed
}

// widenBins is the spatial analogue of widenWindows.
func (c *Controller) widenBins(catalog course.Catalog, resolutions map[string]Resolution, hotspots bool) bool {
	changed := false
	for _, seg := range catalog.Segments {
		if c.cfg.IsHotspot(seg.ID) != hotspots {
			continue
		}
		r := resolutions[seg.ID]
		if r.BinLengthM >= c.cfg.MaxBinLengthM {
			continue
		}
		r.BinLengthM = minF(r.BinLengthM*c.cfg.BinWidenFactor, c.cfg.MaxBinLengthM)
		resolutions[seg.ID] = r
		changed = true
	}
	return changed
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
