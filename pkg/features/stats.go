package features

import "math"

// accumulator keeps Welford running moments so statistics need O(1) state.
type accumulator struct {
	n    int
	mean float64
	m2   float64
	min  float64
	max  float64
}

func (a *accumulator) add(v float64) {
	a.n++
	if a.n == 1 {
		a.min, a.max = v, v
	} else {
		a.min = math.Min(a.min, v)
		a.max = math.Max(a.max, v)
	}
	delta := v - a.mean
	a.mean += delta / float64(a.n)
	a.m2 += delta * (v - a.mean)
}

// stats returns zeros for an empty sample.
func (a accumulator) stats() Stats {
	if a.n == 0 {
		return Stats{}
	}
	variance := a.m2 / float64(a.n)
	if variance < 0 {
		variance = 0
	}
	return Stats{Mean: a.mean, SD: math.Sqrt(variance), Max: a.max, Min: a.min}
}
