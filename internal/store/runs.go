package store

import (
	"fmt"
	"time"

	"github.com/corral-data/density.report/internal/converge"
	"github.com/corral-data/density.report/internal/grid"
	"github.com/corral-data/density.report/internal/overtake"
	"github.com/corral-data/density.report/internal/reconcile"
)

// RunRecord is the persisted summary row for one analysis run.
type RunRecord struct {
	RunID              string
	StartedAt          time.Time
	FinishedAt         time.Time
	Status             string
	FinalState         string
	Attempts           int
	TotalFeatures      int
	OccupiedBins       int
	NonzeroDensityBins int

	// ParamsJSON is the serialized run configuration, kept for replay and
	// audit alongside the results it produced.
	ParamsJSON string
}

// InsertRun records the run summary. The run row must exist before any
// per-run artifact rows reference it.
func (s *Store) InsertRun(r RunRecord) error {
	_, err := s.Exec(`
		INSERT INTO runs (run_id, started_at, finished_at, status, final_state,
			attempts, total_features, occupied_bins, nonzero_density_bins, params_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.StartedAt, r.FinishedAt, r.Status, r.FinalState,
		r.Attempts, r.TotalFeatures, r.OccupiedBins, r.NonzeroDensityBins, r.ParamsJSON)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", r.RunID, err)
	}
	return nil
}

// GetRun loads one run summary by ID.
func (s *Store) GetRun(runID string) (RunRecord, error) {
	var r RunRecord
	err := s.QueryRow(`
		SELECT run_id, started_at, finished_at, status, final_state,
			attempts, total_features, occupied_bins, nonzero_density_bins, params_json
		FROM runs WHERE run_id = ?`, runID).Scan(
		&r.RunID, &r.StartedAt, &r.FinishedAt, &r.Status, &r.FinalState,
		&r.Attempts, &r.TotalFeatures, &r.OccupiedBins, &r.NonzeroDensityBins, &r.ParamsJSON)
	if err != nil {
		return RunRecord{}, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	return r, nil
}

// ListRuns returns all run summaries, newest first.
func (s *Store) ListRuns() ([]RunRecord, error) {
	rows, err := s.Query(`
		SELECT run_id, started_at, finished_at, status, final_state,
			attempts, total_features, occupied_bins, nonzero_density_bins, params_json
		FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.RunID, &r.StartedAt, &r.FinishedAt, &r.Status,
			&r.FinalState, &r.Attempts, &r.TotalFeatures, &r.OccupiedBins,
			&r.NonzeroDensityBins, &r.ParamsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// InsertGrid stores every bin of one segment grid in a single transaction.
func (s *Store) InsertGrid(runID string, g *grid.SegmentGrid) error {
	tx, err := s.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin bin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO bins (run_id, segment_id, bin_index, window_index,
			start_m, end_m, window_start_sec, window_end_sec,
			runner_count, mean_speed_mps, density, rate, los)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare bin insert: %w", err)
	}
	defer stmt.Close()

	for _, b := range g.Bins {
		if _, err := stmt.Exec(runID, b.SegmentID, b.BinIndex, b.WindowIndex,
			b.StartM, b.EndM, b.WindowStartSec, b.WindowEndSec,
			b.Count, b.MeanSpeedMPS, b.Density, b.Rate, b.LOS); err != nil {
			return fmt.Errorf("failed to insert bin %s/%d/%d: %w",
				b.SegmentID, b.BinIndex, b.WindowIndex, err)
		}
	}
	return tx.Commit()
}

// InsertConvergence stores one solved (or unsolved) convergence result.
func (s *Store) InsertConvergence(runID string, res converge.Result) error {
	_, err := s.Exec(`
		INSERT INTO convergence_results (run_id, segment_id, cohort_a, cohort_b,
			found, s, km_ruler_a, km_ruler_b, meet_time_sec, zone_lo, zone_hi, accepted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, res.SegmentID, res.CohortA, res.CohortB,
		res.Found, res.S, res.KMRulerA, res.KMRulerB, res.MeetTimeSec,
		res.Zone.Lo, res.Zone.Hi, res.Accepted)
	if err != nil {
		return fmt.Errorf("failed to insert convergence result for %s: %w", res.SegmentID, err)
	}
	return nil
}

// InsertOvertake stores the interaction counts for one segment / cohort pair.
func (s *Store) InsertOvertake(runID string, rec overtake.Record) error {
	_, err := s.Exec(`
		INSERT INTO overtake_records (run_id, segment_id, cohort_a, cohort_b,
			pass_runners_a, pass_runners_b, co_present_runners_a, co_present_runners_b,
			pair_passes, pair_co_present, high_load_runners)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, rec.SegmentID, rec.CohortA, rec.CohortB,
		rec.PassRunnersA, rec.PassRunnersB, rec.CoPresentRunnersA, rec.CoPresentRunnersB,
		rec.PairPasses, rec.PairCoPresent, len(rec.HighLoad))
	if err != nil {
		return fmt.Errorf("failed to insert overtake record for %s: %w", rec.SegmentID, err)
	}
	return nil
}

// InsertWarnings stores reconciliation warnings for a run.
func (s *Store) InsertWarnings(runID string, warnings []reconcile.Warning) error {
	for _, w := range warnings {
		_, err := s.Exec(`
			INSERT INTO reconcile_warnings (run_id, segment_id, window_index,
				check_name, got, want, deviation, message)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, w.SegmentID, w.WindowIndex, w.Check, w.Got, w.Want, w.Deviation, w.Message)
		if err != nil {
			return fmt.Errorf("failed to insert reconcile warning for %s: %w", w.SegmentID, err)
		}
	}
	return nil
}

// BinCount returns the number of persisted bins for a run, optionally
// restricted to one segment (empty segmentID means all segments).
func (s *Store) BinCount(runID, segmentID string) (int, error) {
	var n int
	var err error
	if segmentID == "" {
		err = s.QueryRow(`SELECT COUNT(*) FROM bins WHERE run_id = ?`, runID).Scan(&n)
	} else {
		err = s.QueryRow(`SELECT COUNT(*) FROM bins WHERE run_id = ? AND segment_id = ?`,
			runID, segmentID).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count bins: %w", err)
	}
	return n, nil
}
