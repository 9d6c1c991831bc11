package units

import "fmt"

// Pace values are stored internally as seconds per kilometre. Runner input
// files commonly carry min/km strings, so both directions are provided.

// PaceToSpeedMPS converts a pace in seconds per kilometre to metres per second.
// A non-positive pace returns 0 rather than dividing by zero.
func PaceToSpeedMPS(secPerKM float64) float64 {
	if secPerKM <= 0 {
		return 0
	}
	return 1000.0 / secPerKM
}

// SpeedToPaceSecPerKM converts a speed in metres per second to seconds per
// kilometre. A non-positive speed returns 0.
func SpeedToPaceSecPerKM(speedMPS float64) float64 {
	if speedMPS <= 0 {
		return 0
	}
	return 1000.0 / speedMPS
}

// FormatPace renders a pace in seconds per kilometre as "M:SS/km" for
// operator-facing summaries.
func FormatPace(secPerKM float64) string {
	if secPerKM <= 0 {
		return "-"
	}
	mins := int(secPerKM) / 60
	secs := int(secPerKM) % 60
	return fmt.Sprintf("%d:%02d/km", mins, secs)
}
