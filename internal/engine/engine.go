// Package engine orchestrates one full analysis run: catalog validation,
// per-pair convergence solving, overtake counting, budget-controlled grid
// accumulation, and reconciliation. Failures are isolated per segment and
// per cohort pair; the run degrades rather than aborts.
package engine

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/corral-data/density.report/internal/budget"
	"github.com/corral-data/density.report/internal/converge"
	"github.com/corral-data/density.report/internal/course"
	"github.com/corral-data/density.report/internal/field"
	"github.com/corral-data/density.report/internal/grid"
	"github.com/corral-data/density.report/internal/overtake"
	"github.com/corral-data/density.report/internal/reconcile"
)

// paceProbs are the pace quantiles sampled per cohort when solving
// convergence: fast tail, median, slow tail.
var paceProbs = []float64{0.05, 0.5, 0.95}

// Run status values.
const (
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusEmpty   = "empty"
)

// Config carries everything a run needs besides the catalog and the field.
type Config struct {
	Budget   budget.Config
	Base     budget.Resolution
	Overtake overtake.Config
	LOS      grid.LOSTable

	// Analysis horizon in seconds from the epoch. A zero HorizonEndSec
	// derives the horizon from the field: the last runner's exit from the
	// last span, plus one window of slack.
	HorizonStartSec float64
	HorizonEndSec   float64
}

// DefaultConfig returns a config with every component at its defaults and a
// derived horizon.
func DefaultConfig() Config {
	return Config{
		Budget:   budget.DefaultConfig(),
		Base:     budget.Resolution{BinLengthM: 10, WindowSec: 30},
		Overtake: overtake.DefaultConfig(),
		LOS:      grid.DefaultLOSTable(),
	}
}

// RunMetadata summarises a finished run for logs and persistence.
type RunMetadata struct {
	TotalFeatures      int
	OccupiedBins       int
	NonzeroDensityBins int
	Attempts           int
	FinalState         budget.State
	Coarsening         []budget.Transition
	EmptySegments      []string
	ReconcilePassed    bool
}

// RunResult is the complete artifact set for one run. Grids are always
// present for every valid segment, even when empty or partial.
type RunResult struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string

	Grids       map[string]*grid.SegmentGrid
	Resolutions map[string]budget.Resolution
	Convergence []converge.Result
	Overtakes   []overtake.Record
	Warnings    []reconcile.Warning

	// SegmentErrors lists catalog entries excluded from the run.
	SegmentErrors []course.SegmentError

	Metadata RunMetadata
}

// Engine runs analyses. Construct with New.
type Engine struct {
	cfg       Config
	solver    *converge.Solver
	validator *reconcile.Validator
}

// New validates the configuration and returns a ready engine.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Budget.Validate(); err != nil {
		return nil, fmt.Errorf("invalid budget config: %w", err)
	}
	if err := cfg.Overtake.Validate(); err != nil {
		return nil, fmt.Errorf("invalid overtake config: %w", err)
	}
	if err := cfg.LOS.Validate(); err != nil {
		return nil, fmt.Errorf("invalid LOS table: %w", err)
	}
	return &Engine{
		cfg:       cfg,
		solver:    converge.NewSolver(),
		validator: reconcile.NewValidator(),
	}, nil
}

// Run executes one full analysis over the catalog and field.
func (e *Engine) Run(catalog *course.Catalog, f *field.Field) (*RunResult, error) {
	runID := uuid.New().String()
	res := &RunResult{RunID: runID, StartedAt: time.Now()}
	log.Printf("[Engine] starting run %s: %d segments, %d waves, %d runners",
		runID, len(catalog.Segments), len(f.Waves), len(f.Runners))

	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid field: %w", err)
	}

	valid, segErrs := catalog.Validate()
	res.SegmentErrors = segErrs
	for _, se := range segErrs {
		log.Printf("[Engine] ERROR: excluding segment: %v", se)
	}
	if len(valid.Segments) == 0 {
		return nil, fmt.Errorf("no valid segments in catalog (%d rejected)", len(segErrs))
	}

	e.solveInteractions(res, valid, f)

	horizonEnd := e.cfg.HorizonEndSec
	if horizonEnd <= e.cfg.HorizonStartSec {
		horizonEnd = deriveHorizonEnd(valid, f, e.cfg.Base.WindowSec)
		log.Printf("[Engine] derived analysis horizon end: %.0f s", horizonEnd)
	}

	ctrl, err := budget.NewController(e.cfg.Budget, e.cfg.Base, e.cfg.LOS)
	if err != nil {
		return nil, err
	}
	budgetRes, err := ctrl.Run(valid, e.cfg.HorizonStartSec, horizonEnd, field.NewSegmentObserver(f))
	if err != nil {
		return nil, fmt.Errorf("accumulation failed: %w", err)
	}
	res.Grids = budgetRes.Grids
	res.Resolutions = budgetRes.Resolutions

	for _, tr := range budgetRes.History {
		log.Printf("[Engine] coarsening %s -> %s: %s", tr.From, tr.To, tr.Reason)
	}

	allEmpty := len(valid.Segments) > 0
	for _, seg := range valid.Segments {
		g := res.Grids[seg.ID]
		if g == nil {
			continue
		}
		if g.Empty() {
			log.Printf("[Engine] ERROR: segment %s produced an empty grid (no observations in horizon)", seg.ID)
			res.Metadata.EmptySegments = append(res.Metadata.EmptySegments, seg.ID)
		} else {
			allEmpty = false
		}
		res.Metadata.OccupiedBins += g.Counters.OccupiedBins
		res.Metadata.NonzeroDensityBins += g.Counters.NonzeroDensityBins

		res.Warnings = append(res.Warnings, e.validator.Validate(seg, g)...)
	}
	for _, w := range res.Warnings {
		log.Printf("[Engine] WARNING: %s", w.Message)
	}

	res.Metadata.TotalFeatures = budgetRes.Features
	res.Metadata.Attempts = budgetRes.Attempts
	res.Metadata.FinalState = budgetRes.FinalState
	res.Metadata.Coarsening = budgetRes.History
	res.Metadata.ReconcilePassed = len(res.Warnings) == 0

	switch {
	case allEmpty:
		res.Status = StatusEmpty
	case budgetRes.Partial:
		res.Status = StatusPartial
	default:
		res.Status = StatusOK
	}
	res.FinishedAt = time.Now()

	log.Printf("[Engine] finished run %s: status=%s features=%d attempts=%d warnings=%d",
		runID, res.Status, res.Metadata.TotalFeatures, res.Metadata.Attempts, len(res.Warnings))
	return res, nil
}

// solveInteractions runs convergence and overtake counting for every cohort
// pair on every segment both cohorts cross. Solver errors disqualify one
// pair on one segment, nothing more.
func (e *Engine) solveInteractions(res *RunResult, catalog course.Catalog, f *field.Field) {
	for i := 0; i < len(f.Waves); i++ {
		for j := i + 1; j < len(f.Waves); j++ {
			waveA, waveB := f.Waves[i], f.Waves[j]
			for _, seg := range catalog.SharedSegments(waveA.ID, waveB.ID) {
				cr, err := e.solvePair(seg, waveA, waveB, f)
				if err != nil {
					log.Printf("[Engine] ERROR: convergence on %s (%s vs %s): %v",
						seg.ID, waveA.ID, waveB.ID, err)
					continue
				}
				res.Convergence = append(res.Convergence, cr)
				if !cr.Found {
					log.Printf("[Engine] no convergence on %s for %s vs %s",
						seg.ID, waveA.ID, waveB.ID)
					continue
				}

				rec, err := overtake.Count(cr, seg, f, e.cfg.Overtake)
				if err != nil {
					log.Printf("[Engine] ERROR: overtake count on %s (%s vs %s): %v",
						seg.ID, waveA.ID, waveB.ID, err)
					continue
				}
				res.Overtakes = append(res.Overtakes, rec)
			}
		}
	}
}

func (e *Engine) solvePair(seg course.Segment, waveA, waveB field.Wave, f *field.Field) (converge.Result, error) {
	pacesA, err := f.PaceQuantiles(waveA.ID, paceProbs)
	if err != nil {
		return converge.Result{}, err
	}
	pacesB, err := f.PaceQuantiles(waveB.ID, paceProbs)
	if err != nil {
		return converge.Result{}, err
	}
	return e.solver.Solve(seg,
		converge.Cohort{ID: waveA.ID, GunTimeSec: waveA.GunTimeSec, PaceSamples: pacesA},
		converge.Cohort{ID: waveB.ID, GunTimeSec: waveB.GunTimeSec, PaceSamples: pacesB})
}

// deriveHorizonEnd returns the latest time any runner exits any span of its
// cohort, plus one window of slack.
func deriveHorizonEnd(catalog course.Catalog, f *field.Field, windowSec float64) float64 {
	var end float64
	for _, seg := range catalog.Segments {
		for cohort, span := range seg.Spans {
			wave, ok := f.Wave(cohort)
			if !ok {
				continue
			}
			for _, r := range f.CohortRunners(cohort) {
				if t := r.TimeAtKM(span.EndKM, wave.GunTimeSec); t > end {
					end = t
				}
			}
		}
	}
	return end + windowSec
}
