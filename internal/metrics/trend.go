package metrics

import "math"

// Trend labels the direction of change between the two halves of a window.
type Trend string

const (
	TrendImproving     Trend = "Improving"
	TrendSteady        Trend = "Steady"
	TrendDeteriorating Trend = "Deteriorating"
)

// minTrendSamples is the smallest series worth splitting; anything shorter
// reads as Steady.
const minTrendSamples = 6

// DetectTrend compares the mean of the first half of the series against the
// second half (odd lengths leave the extra sample in the second half). The
// relative change is measured against |mean(first)|; sensitivity is the
// fraction beyond which the label leaves Steady.
func DetectTrend(series []float64, sensitivity float64) Trend {
	if len(series) < minTrendSamples {
		return TrendSteady
	}

	mid := len(series) / 2
	first := Describe(series[:mid])
	second := Describe(series[mid:])

	if first.Mean == 0 {
		return TrendSteady
	}

	change := (second.Mean - first.Mean) / math.Abs(first.Mean)
	switch {
	case change >= sensitivity:
		return TrendImproving
	case change <= -sensitivity:
		return TrendDeteriorating
	default:
		return TrendSteady
	}
}
