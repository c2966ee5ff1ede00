// Package ml holds the regression candidates, feature scaling, evaluation
// metrics and the serialisable model artifact used by training and serving.
package ml

import (
	"fmt"
	"math"
)

// Algorithm names, also stored in the model registry.
const (
	AlgorithmRandomForest     = "random_forest"
	AlgorithmGradientBoosting = "gradient_boosting"
	AlgorithmRidge            = "ridge"
	AlgorithmLinear           = "linear"
)

// Panel is the candidate order. Ties on score go to the earlier entry.
var Panel = []string{
	AlgorithmRandomForest,
	AlgorithmGradientBoosting,
	AlgorithmRidge,
	AlgorithmLinear,
}

// Regressor is a fitted or fittable model over dense rows.
type Regressor interface {
	Fit(x [][]float64, y []float64) error
	Predict(row []float64) float64
	// Importances returns one non-negative weight per column.
	Importances() []float64
}

// Confidencer is implemented by models that can judge a single prediction,
// returning a value in [0,1].
type Confidencer interface {
	Confidence(row []float64) float64
}

// NewRegressor builds an unfitted candidate. seed drives any randomness.
func NewRegressor(algorithm string, seed int64) (Regressor, error) {
	switch algorithm {
	case AlgorithmRandomForest:
		return NewRandomForest(WithForestSeed(seed)), nil
	case AlgorithmGradientBoosting:
		return NewGradientBoosting(), nil
	case AlgorithmRidge:
		return NewRidge(1.0), nil
	case AlgorithmLinear:
		return &Linear{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algorithm)
	}
}

// checkDataset validates a design matrix and returns its column count.
func checkDataset(x [][]float64, y []float64) (int, error) {
	if len(x) == 0 {
		return 0, ErrEmptyDataset
	}
	if len(x) != len(y) {
		return 0, fmt.Errorf("%w: %d rows, %d targets", ErrDimensionMismatch, len(x), len(y))
	}
	cols := len(x[0])
	for i, row := range x {
		if len(row) != cols {
			return 0, fmt.Errorf("%w: row %d has %d columns, want %d", ErrDimensionMismatch, i, len(row), cols)
		}
	}
	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("%w: target %d", ErrNonFinite, i)
		}
	}
	return cols, nil
}

// Normalize scales weights to sum to one. All-zero input stays zero.
func Normalize(w []float64) []float64 {
	out := make([]float64, len(w))
	var sum float64
	for _, v := range w {
		sum += math.Abs(v)
	}
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return out
	}
	for i, v := range w {
		out[i] = math.Abs(v) / sum
	}
	return out
}
