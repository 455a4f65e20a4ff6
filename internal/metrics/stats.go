package metrics

import "math"

// BasicStats summarises one window of coherence samples.
type BasicStats struct {
	Mean  float64
	Stdev float64
	N     int
}

// Describe computes mean and sample standard deviation (n-1 denominator)
// over a series. NaN and infinite entries are skipped and do not count
// toward N. Empty input yields the zero BasicStats, not an error.
func Describe(series []float64) BasicStats {
	var total float64
	n := 0
	for _, v := range series {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		total += v
		n++
	}
	if n == 0 {
		return BasicStats{}
	}

	mean := total / float64(n)
	if n == 1 {
		return BasicStats{Mean: mean, N: 1}
	}

	var sse float64
	for _, v := range series {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		dv := v - mean
		sse += dv * dv
	}

	return BasicStats{
		Mean:  mean,
		Stdev: math.Sqrt(sse / float64(n-1)),
		N:     n,
	}
}

// Volatility returns the normalized dispersion stdev / |mean|. A zero mean
// is a valid low-information input and maps to 0, never a division error.
func (s BasicStats) Volatility() float64 {
	if s.Mean == 0 {
		return 0
	}
	return s.Stdev / math.Abs(s.Mean)
}
