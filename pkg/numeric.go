package scanner

import (
	"golang.org/x/exp/constraints"
	"gonum.org/v1/gonum/floats"
)

// Integrate sums trace[low..high], both ends included, after clamping the
// window to the trace.
func Integrate(trace []float64, low int, high int) float64 {
	low = max(low, 0)
	high = min(high, len(trace)-1)
	if low > high {
		return 0
	}
	return floats.Sum(trace[low : high+1])
}

// Polynomial evaluates sum_i coefficients[i] * x^i with Horner's rule.
func Polynomial[T constraints.Float](coefficients []T, x T) T {
	var result T
	for i := len(coefficients) - 1; i >= 0; i-- {
		result = result*x + coefficients[i]
	}
	return result
}

func toFloats[T constraints.Integer | constraints.Float](samples []T) []float64 {
	values := make([]float64, len(samples))
	for i, sample := range samples {
		values[i] = float64(sample)
	}
	return values
}
