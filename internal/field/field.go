// Package field models the runner field of a multi-wave event: start waves
// (cohorts), individual runners with a constant-pace trajectory model, and
// pace quantile summaries used by the convergence solver.
package field

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/corral-data/density.report/internal/units"
)

// Wave is one start cohort. GunTimeSec is seconds from the analysis epoch
// (typically midnight of race day) to the wave's gun.
type Wave struct {
	ID         string  `json:"id"`
	GunTimeSec float64 `json:"gun_time_sec"`
}

// Runner is one participant. Pace is constant for the run: the cumulative
// distance model is km(t) = (t - gun - offset) / pace.
type Runner struct {
	Cohort         string  `json:"cohort"`
	PaceSecPerKM   float64 `json:"pace_sec_per_km"`
	StartOffsetSec float64 `json:"start_offset_sec"`
}

// SpeedMPS returns the runner's constant speed in metres per second.
func (r Runner) SpeedMPS() float64 {
	return units.PaceToSpeedMPS(r.PaceSecPerKM)
}

// KMAt returns the runner's position on its own cohort ruler at time t,
// given the cohort gun time. Negative values mean the runner has not yet
// crossed the start line.
func (r Runner) KMAt(t, gunTimeSec float64) float64 {
	if r.PaceSecPerKM <= 0 {
		return 0
	}
	return (t - gunTimeSec - r.StartOffsetSec) / r.PaceSecPerKM
}

// TimeAtKM returns the time at which the runner reaches the given ruler
// kilometre.
func (r Runner) TimeAtKM(km, gunTimeSec float64) float64 {
	return gunTimeSec + r.StartOffsetSec + r.PaceSecPerKM*km
}

// Field is the full runner roster plus wave definitions for one race.
type Field struct {
	Waves   []Wave   `json:"waves"`
	Runners []Runner `json:"runners"`
}

// Wave looks up a wave by cohort ID.
func (f *Field) Wave(cohort string) (Wave, bool) {
	for _, w := range f.Waves {
		if w.ID == cohort {
			return w, true
		}
	}
	return Wave{}, false
}

// CohortRunners returns all runners in the named cohort.
func (f *Field) CohortRunners(cohort string) []Runner {
	var out []Runner
	for _, r := range f.Runners {
		if r.Cohort == cohort {
			out = append(out, r)
		}
	}
	return out
}

// PaceQuantiles returns the cohort's pace (s/km) at the given cumulative
// probabilities, e.g. {0.05, 0.50, 0.95}. Returns an error for an unknown
// or empty cohort so the caller can skip the pair rather than solve on
// garbage.
func (f *Field) PaceQuantiles(cohort string, probs []float64) ([]float64, error) {
	runners := f.CohortRunners(cohort)
	if len(runners) == 0 {
		return nil, fmt.Errorf("no runners in cohort %q", cohort)
	}
	paces := make([]float64, 0, len(runners))
	for _, r := range runners {
		if r.PaceSecPerKM > 0 {
			paces = append(paces, r.PaceSecPerKM)
		}
	}
	if len(paces) == 0 {
		return nil, fmt.Errorf("no positive paces in cohort %q", cohort)
	}
	sort.Float64s(paces)

	out := make([]float64, len(probs))
	for i, p := range probs {
		out[i] = stat.Quantile(p, stat.Empirical, paces, nil)
	}
	return out, nil
}

// Validate checks the roster for basic consistency: every runner's cohort
// must have a wave, and paces must be positive.
func (f *Field) Validate() error {
	waves := make(map[string]bool, len(f.Waves))
	for _, w := range f.Waves {
		if w.ID == "" {
			return fmt.Errorf("wave with empty id")
		}
		if waves[w.ID] {
			return fmt.Errorf("duplicate wave id %q", w.ID)
		}
		waves[w.ID] = true
	}
	for i, r := range f.Runners {
		if !waves[r.Cohort] {
			return fmt.Errorf("runner %d: unknown cohort %q", i, r.Cohort)
		}
		if r.PaceSecPerKM <= 0 {
			return fmt.Errorf("runner %d: pace must be positive, got %f", i, r.PaceSecPerKM)
		}
		if r.StartOffsetSec < 0 {
			return fmt.Errorf("runner %d: start offset must be non-negative, got %f", i, r.StartOffsetSec)
		}
	}
	return nil
}

// LoadField reads a wave/runner roster from a JSON file.
func LoadField(path string) (*Field, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read field file: %w", err)
	}
	var f Field
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse field file: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid field file: %w", err)
	}
	return &f, nil
}
