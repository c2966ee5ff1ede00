package ml

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Score holds held-out metrics of one candidate.
type Score struct {
	R2   float64
	RMSE float64
}

// Evaluate predicts every row of x and compares against y. R2 is NaN when
// y has no variance.
func Evaluate(r Regressor, x [][]float64, y []float64) Score {
	if len(x) == 0 || len(x) != len(y) {
		return Score{R2: math.NaN(), RMSE: math.NaN()}
	}
	estimates := make([]float64, len(x))
	var sse float64
	for i, row := range x {
		estimates[i] = r.Predict(row)
		d := estimates[i] - y[i]
		sse += d * d
	}
	return Score{
		R2:   stat.RSquaredFrom(estimates, y, nil),
		RMSE: math.Sqrt(sse / float64(len(y))),
	}
}

// Better reports whether a beats b. NaN ranks below every number.
func Better(a, b float64) bool {
	if math.IsNaN(a) {
		return false
	}
	if math.IsNaN(b) {
		return true
	}
	return a > b
}
