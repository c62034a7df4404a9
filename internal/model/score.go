package model

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MeanSquaredError returns the mean of squared differences. Inputs must have
// equal, non-zero length.
func MeanSquaredError(truth, pred []float64) float64 {
	diff := make([]float64, len(truth))
	floats.SubTo(diff, truth, pred)
	return floats.Dot(diff, diff) / float64(len(diff))
}

// R2Score returns the coefficient of determination. A constant target yields
// 1 for a perfect fit and 0 otherwise, so the score is never NaN.
func R2Score(truth, pred []float64) float64 {
	mean := stat.Mean(truth, nil)
	var ssRes, ssTot float64
	for i, y := range truth {
		r := y - pred[i]
		ssRes += r * r
		d := y - mean
		ssTot += d * d
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	score := 1 - ssRes/ssTot
	if math.IsNaN(score) {
		return 0
	}
	return score
}
