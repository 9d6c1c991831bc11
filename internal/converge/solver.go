// Package converge reconciles two cohorts' independent kilometre rulers onto
// a shared physical segment and solves for the point at which the faster
// cohort first catches the slower one.
//
// Two cohorts on the same asphalt can carry entirely disjoint ruler
// kilometres, because each cohort measures distance from its own start line.
// A numeric range-overlap test on raw kilometres therefore reports "no
// interaction" for cohorts standing on the same road at the same time. The
// solver never performs that test: presence on the same named segment is
// sufficient, and both spans are normalised onto a shared local axis
// s ∈ [0,1] before solving for simultaneous arrival.
package converge

import (
	"fmt"
	"math"

	"github.com/corral-data/density.report/internal/course"
)

// denominatorEpsilon is the traverse-time difference (seconds) below which
// relative speeds are treated as parallel: no catch.
const denominatorEpsilon = 1e-6

// Cohort is one wave's view of a segment pair: gun time plus representative
// pace samples (seconds per km), typically the 5th/50th/95th percentiles.
type Cohort struct {
	ID          string
	GunTimeSec  float64
	PaceSamples []float64
}

// Zone is a sub-range of the segment, in local fractions, where interaction
// occurs.
type Zone struct {
	Lo float64
	Hi float64
}

// Width returns the zone extent as a local fraction.
func (z Zone) Width() float64 {
	return z.Hi - z.Lo
}

// Result is the solved convergence geometry for one (segment, cohort pair).
type Result struct {
	SegmentID string
	CohortA   string
	CohortB   string

	Found bool

	// S is the representative convergence point as a local fraction, chosen
	// as the accepted solution closest to the segment midpoint.
	S float64

	// The convergence point translated back into each cohort's own ruler.
	KMRulerA float64
	KMRulerB float64

	// MeetTimeSec is the simultaneous-arrival time for the representative
	// pace pair.
	MeetTimeSec float64

	// Zone spans all accepted solutions, padded to MinZoneWidth.
	Zone Zone

	// Accepted counts how many pace-sample pairs produced an in-range
	// solution.
	Accepted int
}

// Solver holds convergence tuning. The zero value is not usable; call
// NewSolver.
type Solver struct {
	// MinZoneWidth pads degenerate single-solution zones so the overtake
	// counter always has a non-empty interval to work with.
	MinZoneWidth float64
}

// NewSolver returns a solver with the default zone padding.
func NewSolver() *Solver {
	return &Solver{MinZoneWidth: 0.05}
}

// Solve computes the convergence point for two cohorts on one segment.
// Both cohorts must carry a span over the segment; spans are normalised via
// km = start_km + s·(end_km − start_km) independently per cohort, and the
// linear simultaneous-arrival equation is solved for s. Only s ∈ [0,1] is
// accepted. Parallel relative speeds are skipped, not errors. Equal gun
// times are not short-circuited: different paces still converge.
func (sv *Solver) Solve(seg course.Segment, a, b Cohort) (Result, error) {
	res := Result{SegmentID: seg.ID, CohortA: a.ID, CohortB: b.ID}

	spanA, ok := seg.Spans[a.ID]
	if !ok {
		return res, fmt.Errorf("segment %s: no span for cohort %s", seg.ID, a.ID)
	}
	spanB, ok := seg.Spans[b.ID]
	if !ok {
		return res, fmt.Errorf("segment %s: no span for cohort %s", seg.ID, b.ID)
	}
	lenA := spanA.LengthKM()
	lenB := spanB.LengthKM()
	if lenA <= 0 || lenB <= 0 {
		return res, fmt.Errorf("segment %s: degenerate span length (A=%f km, B=%f km)", seg.ID, lenA, lenB)
	}
	if len(a.PaceSamples) == 0 || len(b.PaceSamples) == 0 {
		return res, fmt.Errorf("segment %s: missing pace samples for cohort pair %s/%s", seg.ID, a.ID, b.ID)
	}

	type candidate struct {
		s     float64
		paceA float64
	}

	best := candidate{s: math.NaN()}
	zoneLo, zoneHi := math.Inf(1), math.Inf(-1)

	for _, paceA := range a.PaceSamples {
		for _, paceB := range b.PaceSamples {
			// Arrival times along the shared axis:
			//   tA(s) = gunA + paceA·(kmA0 + s·lenA)
			//   tB(s) = gunB + paceB·(kmB0 + s·lenB)
			den := paceA*lenA - paceB*lenB
			if math.Abs(den) < denominatorEpsilon {
				continue // parallel relative speeds: no catch
			}
			num := (b.GunTimeSec + paceB*spanB.StartKM) - (a.GunTimeSec + paceA*spanA.StartKM)
			s := num / den
			if s < 0 || s > 1 {
				continue
			}

			res.Accepted++
			if s < zoneLo {
				zoneLo = s
			}
			if s > zoneHi {
				zoneHi = s
			}
			if math.IsNaN(best.s) || math.Abs(s-0.5) < math.Abs(best.s-0.5) {
				best = candidate{s: s, paceA: paceA}
			}
		}
	}

	if res.Accepted == 0 {
		return res, nil
	}

	res.Found = true
	res.S = best.s
	res.KMRulerA = spanA.StartKM + best.s*lenA
	res.KMRulerB = spanB.StartKM + best.s*lenB
	res.MeetTimeSec = a.GunTimeSec + best.paceA*res.KMRulerA
	res.Zone = padZone(Zone{Lo: zoneLo, Hi: zoneHi}, sv.MinZoneWidth)
	return res, nil
}

// padZone widens a zone to at least min width, clamped to [0,1].
func padZone(z Zone, min float64) Zone {
	if z.Width() >= min {
		return z
	}
	mid := (z.Lo + z.Hi) / 2
	z.Lo = mid - min/2
	z.Hi = mid + min/2
	if z.Lo < 0 {
		z.Hi -= z.Lo
		z.Lo = 0
	}
	if z.Hi > 1 {
		z.Lo -= z.Hi - 1
		z.Hi = 1
		if z.Lo < 0 {
			z.Lo = 0
		}
	}
	return z
}
