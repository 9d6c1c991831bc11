package grid

import (
	"encoding/json"
	"fmt"
	"os"
)

// LOSThreshold maps a density lower bound (runners per square metre) to a
// Level-of-Service label. The table is opaque policy supplied by the
// operator; nothing in the engine hardcodes the boundaries.
type LOSThreshold struct {
	Label      string  `json:"label"`
	MinDensity float64 `json:"min_density"`
}

// LOSTable is an ordered list of thresholds, ascending by MinDensity.
// Classification is a total, monotone function of density alone; rate never
// participates.
type LOSTable struct {
	Thresholds []LOSThreshold `json:"thresholds"`
}

// DefaultLOSTable returns Fruin-style walkway service levels in runners/m².
func DefaultLOSTable() LOSTable {
	return LOSTable{Thresholds: []LOSThreshold{
		{Label: "A", MinDensity: 0},
		{Label: "B", MinDensity: 0.31},
		{Label: "C", MinDensity: 0.43},
		{Label: "D", MinDensity: 0.72},
		{Label: "E", MinDensity: 1.08},
		{Label: "F", MinDensity: 2.17},
	}}
}

// Validate checks the table is non-empty, starts at zero density, and is
// strictly ascending so classification is monotone.
func (t LOSTable) Validate() error {
	if len(t.Thresholds) == 0 {
		return fmt.Errorf("LOS table has no thresholds")
	}
	if t.Thresholds[0].MinDensity != 0 {
		return fmt.Errorf("first LOS threshold must start at density 0, got %f", t.Thresholds[0].MinDensity)
	}
	for i, th := range t.Thresholds {
		if th.Label == "" {
			return fmt.Errorf("LOS threshold %d has empty label", i)
		}
		if i > 0 && th.MinDensity <= t.Thresholds[i-1].MinDensity {
			return fmt.Errorf("LOS thresholds must be strictly ascending: %f after %f",
				th.MinDensity, t.Thresholds[i-1].MinDensity)
		}
	}
	return nil
}

// Classify returns the label of the highest threshold whose lower bound does
// not exceed the given density. Negative densities classify as the first
// label; callers never produce them, but the function stays total.
func (t LOSTable) Classify(density float64) string {
	label := t.Thresholds[0].Label
	for _, th := range t.Thresholds {
		if density >= th.MinDensity {
			label = th.Label
		}
	}
	return label
}

// LoadLOSTable reads an LOS threshold table from a JSON file and validates it.
func LoadLOSTable(path string) (LOSTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return LOSTable{}, fmt.Errorf("failed to read LOS table: %w", err)
	}
	var t LOSTable
	if err := json.Unmarshal(data, &t); err != nil {
		return LOSTable{}, fmt.Errorf("failed to parse LOS table: %w", err)
	}
	if err := t.Validate(); err != nil {
		return LOSTable{}, fmt.Errorf("invalid LOS table: %w", err)
	}
	return t, nil
}
