package errors

import "math"

// CheckNumericalStability fails with a NumericalInstabilityError when any
// value is NaN or ±Inf. Iterative solvers pass their iteration number.
func CheckNumericalStability(operation string, values []float64, iteration int) error {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return NewNumericalInstabilityError(operation, values, iteration)
		}
	}
	return nil
}

// Clip bounds v to [lo, hi].
func Clip(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}

// Sigmoid は exp のオーバーフローを避けたロジスティック関数
func Sigmoid(z float64) float64 {
	if z < 0 {
		ez := math.Exp(z)
		return ez / (1 + ez)
	}
	return 1 / (1 + math.Exp(-z))
}
