// Package stats provides the numeric primitives behind the radar scores.
package stats

import "math"

// Mean returns the arithmetic mean of values, or 0 for an empty slice.
// Callers that need to distinguish "no data" from a true zero mean must
// check the input length themselves.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Stdev returns the population standard deviation (divide by N).
// Slices shorter than 2 have no spread and return 0.
func Stdev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := Mean(values)
	variance := 0.0
	for _, v := range values {
		d := v - m
		variance += d * d
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}

// EMA returns the exponential moving average of values with smoothing
// factor k = 2/(span+1). The first element seeds the accumulator
// unweighted. Input must be ordered oldest to newest. Empty input
// returns 0.
func EMA(values []float64, span int) float64 {
	if len(values) == 0 {
		return 0
	}
	k := 2.0 / (float64(span) + 1)
	acc := values[0]
	for _, v := range values[1:] {
		acc = acc*(1-k) + v*k
	}
	return acc
}

// DefaultZ is the z value for a 95% Wilson interval.
const DefaultZ = 1.96

// WilsonScore returns the lower bound of the Wilson score confidence
// interval for the proportion up/(up+down). Zero votes yields 0.
func WilsonScore(up, down int64, z float64) float64 {
	n := float64(up + down)
	if n <= 0 {
		return 0
	}
	p := float64(up) / n
	z2 := z * z
	num := p + z2/(2*n) - z*math.Sqrt((p*(1-p)+z2/(4*n))/n)
	den := 1 + z2/n
	return num / den
}
