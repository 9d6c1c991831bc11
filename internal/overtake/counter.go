// Package overtake classifies cross-cohort runner interactions inside a
// solved convergence zone: directional "true passes" versus mere temporal
// co-presence, plus the per-runner passing load used for marshal placement
// narratives.
//
// A pass is counted only when one runner's time-in-zone interval is strictly
// contained in the other's and the overlap exceeds a minimum duration. The
// strict-containment definition undercounts overtakes with partial
// (non-nested) overlap; that is a documented approximation carried on
// purpose, and the tests pin it. Changing it is a product decision, not a
// bug fix.
package overtake

import (
	"fmt"
	"sort"

	"github.com/corral-data/density.report/internal/converge"
	"github.com/corral-data/density.report/internal/course"
	"github.com/corral-data/density.report/internal/field"
)

// Config tunes pass classification.
type Config struct {
	// MinOverlapSec is the minimum in-zone overlap for a nested interval
	// pair to count as a directional pass.
	MinOverlapSec float64

	// HighLoadThreshold flags runners whose personal pass count exceeds it.
	HighLoadThreshold int
}

// DefaultConfig returns the operational defaults.
func DefaultConfig() Config {
	return Config{MinOverlapSec: 5, HighLoadThreshold: 5}
}

// Validate rejects nonsensical thresholds.
func (c Config) Validate() error {
	if c.MinOverlapSec < 0 {
		return fmt.Errorf("MinOverlapSec must be non-negative, got %f", c.MinOverlapSec)
	}
	if c.HighLoadThreshold < 1 {
		return fmt.Errorf("HighLoadThreshold must be at least 1, got %d", c.HighLoadThreshold)
	}
	return nil
}

// interval is one runner's entry/exit of the convergence zone.
type interval struct {
	entry float64
	exit  float64
}

// RunnerLoad identifies a high-burden runner for the operational narrative.
type RunnerLoad struct {
	Cohort      string
	RunnerIndex int // index within the cohort's roster order
	Load        int
}

// Record aggregates interaction counts for one (segment, cohort pair).
type Record struct {
	SegmentID string
	CohortA   string
	CohortB   string

	// Runners involved in at least one directional pass, per cohort.
	PassRunnersA int
	PassRunnersB int

	// Runners with temporal overlap but no pass, per cohort.
	CoPresentRunnersA int
	CoPresentRunnersB int

	// Total classified ordered pairs.
	PairPasses    int
	PairCoPresent int

	// LoadHistogram maps passing load to the number of runners carrying it.
	// Runners who never entered overlap with the other cohort are excluded.
	LoadHistogram map[int]int

	// HighLoad lists runners whose load exceeds the configured threshold,
	// sorted by descending load.
	HighLoad []RunnerLoad
}

// Count classifies every cross-cohort runner pair against the convergence
// zone solved for this segment. The zone must come from a Found result.
func Count(res converge.Result, seg course.Segment, f *field.Field, cfg Config) (Record, error) {
	rec := Record{
		SegmentID:     res.SegmentID,
		CohortA:       res.CohortA,
		CohortB:       res.CohortB,
		LoadHistogram: make(map[int]int),
	}

	if err := cfg.Validate(); err != nil {
		return rec, err
	}
	if !res.Found {
		return rec, fmt.Errorf("segment %s: no convergence solved for %s/%s", res.SegmentID, res.CohortA, res.CohortB)
	}

	intervalsA, err := zoneIntervals(res, seg, f, res.CohortA)
	if err != nil {
		return rec, err
	}
	intervalsB, err := zoneIntervals(res, seg, f, res.CohortB)
	if err != nil {
		return rec, err
	}

	loadsA := make([]int, len(intervalsA))
	loadsB := make([]int, len(intervalsB))
	coA := make([]bool, len(intervalsA))
	coB := make([]bool, len(intervalsB))

	for i, ia := range intervalsA {
		for j, ib := range intervalsB {
			overlap := minF(ia.exit, ib.exit) - maxF(ia.entry, ib.entry)
			if overlap <= 0 {
				continue
			}
			nested := (ia.entry > ib.entry && ia.exit < ib.exit) ||
				(ib.entry > ia.entry && ib.exit < ia.exit)
			if nested && overlap > cfg.MinOverlapSec {
				rec.PairPasses++
				loadsA[i]++
				loadsB[j]++
			} else {
				rec.PairCoPresent++
				coA[i] = true
				coB[j] = true
			}
		}
	}

	rec.PassRunnersA, rec.CoPresentRunnersA = tally(loadsA, coA, res.CohortA, cfg, &rec)
	rec.PassRunnersB, rec.CoPresentRunnersB = tally(loadsB, coB, res.CohortB, cfg, &rec)

	sort.Slice(rec.HighLoad, func(i, j int) bool {
		return rec.HighLoad[i].Load > rec.HighLoad[j].Load
	})
	return rec, nil
}

// zoneIntervals derives every cohort runner's entry/exit time for the zone,
// translated through the cohort's own ruler bounds.
func zoneIntervals(res converge.Result, seg course.Segment, f *field.Field, cohort string) ([]interval, error) {
	span, ok := seg.Spans[cohort]
	if !ok {
		return nil, fmt.Errorf("segment %s: no span for cohort %s", seg.ID, cohort)
	}
	wave, ok := f.Wave(cohort)
	if !ok {
		return nil, fmt.Errorf("no wave definition for cohort %s", cohort)
	}

	kmLo := span.StartKM + res.Zone.Lo*span.LengthKM()
	kmHi := span.StartKM + res.Zone.Hi*span.LengthKM()

	runners := f.CohortRunners(cohort)
	out := make([]interval, len(runners))
	for i, r := range runners {
		out[i] = interval{
			entry: r.TimeAtKM(kmLo, wave.GunTimeSec),
			exit:  r.TimeAtKM(kmHi, wave.GunTimeSec),
		}
	}
	return out, nil
}

// tally folds per-runner loads into the record's aggregate counts, histogram
// and high-load list. Returns (passRunners, coPresentRunners).
func tally(loads []int, coPresent []bool, cohort string, cfg Config, rec *Record) (int, int) {
	passRunners, coRunners := 0, 0
	for i, load := range loads {
		if load > 0 {
			passRunners++
			rec.LoadHistogram[load]++
			if load > cfg.HighLoadThreshold {
				rec.HighLoad = append(rec.HighLoad, RunnerLoad{Cohort: cohort, RunnerIndex: i, Load: load})
			}
		} else if coPresent[i] {
			coRunners++
			rec.LoadHistogram[0]++
		}
	}
	return passRunners, coRunners
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
