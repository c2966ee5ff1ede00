package ml

import (
	"fmt"
	"math"
	"strconv"

	"github.com/sajari/regression"
)

// Linear is ordinary least squares. Columns that are constant in the
// training rows are left out of the fit and get a zero coefficient.
type Linear struct {
	Intercept float64
	Coef      []float64
}

// Fit runs the regression and keeps intercept and coefficients.
func (l *Linear) Fit(x [][]float64, y []float64) error {
	cols, err := checkDataset(x, y)
	if err != nil {
		return err
	}
	used := varyingColumns(x, cols)
	if len(x) <= len(used)+1 {
		return fmt.Errorf("%w: %d rows for %d columns", ErrSingular, len(x), len(used))
	}

	var r regression.Regression
	r.SetObserved("finish_seconds")
	for k, j := range used {
		r.SetVar(k, "x"+strconv.Itoa(j))
	}
	for i, row := range x {
		vars := make([]float64, len(used))
		for k, j := range used {
			vars[k] = row[j]
		}
		r.Train(regression.DataPoint(y[i], vars))
	}
	if err := r.Run(); err != nil {
		return fmt.Errorf("ols: %w", err)
	}

	coeffs := r.GetCoeffs()
	if len(coeffs) != len(used)+1 {
		return fmt.Errorf("%w: got %d coefficients", ErrDimensionMismatch, len(coeffs))
	}
	for _, c := range coeffs {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return fmt.Errorf("%w: collinear columns", ErrSingular)
		}
	}
	l.Intercept = coeffs[0]
	l.Coef = make([]float64, cols)
	for k, j := range used {
		l.Coef[j] = coeffs[k+1]
	}
	return nil
}

// Predict evaluates the linear form.
func (l *Linear) Predict(row []float64) float64 {
	return linearForm(l.Intercept, l.Coef, row)
}

// Importances is the normalised coefficient magnitude.
func (l *Linear) Importances() []float64 {
	return Normalize(l.Coef)
}

func varyingColumns(x [][]float64, cols int) []int {
	var used []int
	for j := 0; j < cols; j++ {
		first := x[0][j]
		for _, row := range x[1:] {
			if row[j] != first {
				used = append(used, j)
				break
			}
		}
	}
	return used
}
