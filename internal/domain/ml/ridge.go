package ml

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Ridge is L2-regularised least squares. The intercept is not penalised.
type Ridge struct {
	Alpha     float64
	Intercept float64
	Coef      []float64
}

// NewRidge returns an unfitted ridge model with penalty alpha.
func NewRidge(alpha float64) *Ridge {
	return &Ridge{Alpha: alpha}
}

// Fit solves (XcᵀXc + αI)β = Xcᵀ(y-ȳ) on column-centred X.
func (r *Ridge) Fit(x [][]float64, y []float64) error {
	cols, err := checkDataset(x, y)
	if err != nil {
		return err
	}
	n := len(x)
	means := make([]float64, cols)
	for _, row := range x {
		for j, v := range row {
			means[j] += v
		}
	}
	for j := range means {
		means[j] /= float64(n)
	}
	yMean := stat.Mean(y, nil)

	xc := mat.NewDense(n, cols, nil)
	yc := mat.NewVecDense(n, nil)
	for i, row := range x {
		for j, v := range row {
			xc.Set(i, j, v-means[j])
		}
		yc.SetVec(i, y[i]-yMean)
	}

	var gram mat.Dense
	gram.Mul(xc.T(), xc)
	for j := 0; j < cols; j++ {
		gram.Set(j, j, gram.At(j, j)+r.Alpha)
	}
	var rhs mat.VecDense
	rhs.MulVec(xc.T(), yc)

	var beta mat.VecDense
	if err := beta.SolveVec(&gram, &rhs); err != nil {
		return fmt.Errorf("%w: %w", ErrSingular, err)
	}

	r.Coef = make([]float64, cols)
	r.Intercept = yMean
	for j := 0; j < cols; j++ {
		c := beta.AtVec(j)
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return fmt.Errorf("%w: coefficient %d", ErrNonFinite, j)
		}
		r.Coef[j] = c
		r.Intercept -= c * means[j]
	}
	return nil
}

// Predict evaluates the linear form.
func (r *Ridge) Predict(row []float64) float64 {
	return linearForm(r.Intercept, r.Coef, row)
}

// Importances is the normalised coefficient magnitude.
func (r *Ridge) Importances() []float64 {
	return Normalize(r.Coef)
}

func linearForm(intercept float64, coef, row []float64) float64 {
	out := intercept
	for j, c := range coef {
		if j < len(row) {
			out += c * row[j]
		}
	}
	return out
}
