package bench

import (
	"github.com/montanaflynn/stats"
)

// Stats summarizes one series of timings in milliseconds.
type Stats struct {
	N      int     `json:"n"`
	Mean   float64 `json:"mean_ms"`
	StdDev float64 `json:"stdev_ms"`
	CV     float64 `json:"cv"`
}

// Describe computes mean, sample standard deviation and coefficient of
// variation. Fewer than two samples give a zero deviation; a non-positive
// mean gives a zero CV.
func Describe(values []float64) Stats {
	out := Stats{N: len(values)}
	if out.N == 0 {
		return out
	}

	mean, err := stats.Mean(values)
	if err != nil {
		return out
	}
	out.Mean = mean

	if out.N > 1 {
		if sd, err := stats.StdDevS(values); err == nil {
			out.StdDev = sd
		}
	}
	if out.Mean > 0 {
		out.CV = out.StdDev / out.Mean
	}
	return out
}
