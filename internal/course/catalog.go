// Package course holds the static segment catalog for a race course: one
// Segment per physically distinct stretch of road, with per-cohort kilometre
// spans expressed in each cohort's own course ruler. The catalog carries no
// behaviour beyond validation; everything downstream treats it as immutable.
package course

import (
	"encoding/json"
	"fmt"
	"os"
)

// Direction describes permitted flow on a segment.
type Direction string

const (
	OneWay Direction = "one-way"
	TwoWay Direction = "two-way"
)

// Span is a cohort's kilometre range over a segment, measured on that
// cohort's own ruler. Two cohorts on the same asphalt can carry entirely
// disjoint span numbers.
type Span struct {
	StartKM float64 `json:"start_km"`
	EndKM   float64 `json:"end_km"`
}

// LengthKM returns the span length in that cohort's ruler kilometres.
func (s Span) LengthKM() float64 {
	return s.EndKM - s.StartKM
}

// Segment is one physical stretch of course. Spans is keyed by cohort ID;
// a segment participates in wave-interaction analysis when two or more
// cohorts carry a span over it.
type Segment struct {
	ID        string          `json:"id"`
	LengthM   float64         `json:"length_m"`
	WidthM    float64         `json:"width_m"`
	Direction Direction       `json:"direction"`
	Spans     map[string]Span `json:"spans"`
}

// Validate checks segment geometry and per-cohort spans. Invalid geometry is
// a configuration error: the segment is rejected before any accumulation.
func (s Segment) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("segment has empty id")
	}
	if s.LengthM <= 0 {
		return fmt.Errorf("segment %s: length must be positive, got %f", s.ID, s.LengthM)
	}
	if s.WidthM <= 0 {
		return fmt.Errorf("segment %s: width must be positive, got %f", s.ID, s.WidthM)
	}
	switch s.Direction {
	case OneWay, TwoWay:
	default:
		return fmt.Errorf("segment %s: unknown direction %q", s.ID, s.Direction)
	}
	for cohort, span := range s.Spans {
		if span.EndKM <= span.StartKM {
			return fmt.Errorf("segment %s: cohort %s span end_km (%f) must exceed start_km (%f)",
				s.ID, cohort, span.EndKM, span.StartKM)
		}
	}
	return nil
}

// SegmentError records a rejected segment so one bad row cannot abort
// processing of the others.
type SegmentError struct {
	SegmentID string
	Err       error
}

func (e SegmentError) Error() string {
	return fmt.Sprintf("segment %s: %v", e.SegmentID, e.Err)
}

// Catalog is the full segment set for one race.
type Catalog struct {
	Segments []Segment `json:"segments"`
}

// Validate partitions the catalog into valid segments and per-segment errors.
// The returned catalog contains only segments that passed validation.
func (c *Catalog) Validate() (Catalog, []SegmentError) {
	var valid []Segment
	var errs []SegmentError
	seen := make(map[string]bool)
	for _, seg := range c.Segments {
		if err := seg.Validate(); err != nil {
			errs = append(errs, SegmentError{SegmentID: seg.ID, Err: err})
			continue
		}
		if seen[seg.ID] {
			errs = append(errs, SegmentError{SegmentID: seg.ID, Err: fmt.Errorf("duplicate segment id")})
			continue
		}
		seen[seg.ID] = true
		valid = append(valid, seg)
	}
	return Catalog{Segments: valid}, errs
}

// Segment looks up a segment by ID.
func (c *Catalog) Segment(id string) (Segment, bool) {
	for _, seg := range c.Segments {
		if seg.ID == id {
			return seg, true
		}
	}
	return Segment{}, false
}

// SharedSegments returns segments where both named cohorts carry a span.
// Presence on the same named segment is the only criterion; no numeric
// overlap test on raw kilometres is ever performed here.
func (c *Catalog) SharedSegments(cohortA, cohortB string) []Segment {
	var shared []Segment
	for _, seg := range c.Segments {
		if _, okA := seg.Spans[cohortA]; !okA {
			continue
		}
		if _, okB := seg.Spans[cohortB]; !okB {
			continue
		}
		shared = append(shared, seg)
	}
	return shared
}

// LoadCatalog reads a segment catalog from a JSON file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}
	return &c, nil
}
