package grid

import "fmt"

// Window is one fixed-length slice of the analysis horizon. Windows are
// generated once per run and shared across all distance bins.
type Window struct {
	Index    int
	StartSec float64
	EndSec   float64
}

// MidSec returns the window midpoint, used as the sampling instant for
// runner observations.
func (w Window) MidSec() float64 {
	return (w.StartSec + w.EndSec) / 2
}

// DurationSec returns the window length in seconds.
func (w Window) DurationSec() float64 {
	return w.EndSec - w.StartSec
}

// GenerateWindows slices [horizonStartSec, horizonEndSec) into consecutive
// windows of widthSec. The final window is truncated at the horizon end.
func GenerateWindows(horizonStartSec, horizonEndSec, widthSec float64) ([]Window, error) {
	if widthSec <= 0 {
		return nil, fmt.Errorf("window width must be positive, got %f", widthSec)
	}
	if horizonEndSec <= horizonStartSec {
		return nil, fmt.Errorf("horizon end (%f) must exceed start (%f)", horizonEndSec, horizonStartSec)
	}

	var windows []Window
	idx := 0
	for start := horizonStartSec; start < horizonEndSec; start += widthSec {
		end := start + widthSec
		if end > horizonEndSec {
			end = horizonEndSec
		}
		windows = append(windows, Window{Index: idx, StartSec: start, EndSec: end})
		idx++
	}
	return windows, nil
}
