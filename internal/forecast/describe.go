package forecast

import "math"

var compass = [16]string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

// Compass16 maps degrees to a 16-point compass label.
func Compass16(deg float64) string {
	i := int(math.Round(deg/22.5)) % 16
	if i < 0 {
		i += 16
	}
	return compass[i]
}

// CloudDesc maps a cloud cover percentage to its text tier.
func CloudDesc(pct float64) string {
	switch {
	case pct < 10:
		return "Clear"
	case pct < 30:
		return "Mostly clear"
	case pct < 60:
		return "Partly cloudy"
	case pct < 85:
		return "Mostly cloudy"
	default:
		return "Overcast"
	}
}

func roundInt(v float64) *int {
	r := int(math.Round(v))
	return &r
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

func ptr[T any](v T) *T { return &v }
