package ml

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// StandardScaler centres each column on its training mean and divides by
// its training standard deviation. Zero-variance columns use a deviation
// of 1 so they map to 0 instead of NaN.
type StandardScaler struct {
	Mean []float64
	Std  []float64
}

// FitScaler learns column statistics from x.
func FitScaler(x [][]float64) (*StandardScaler, error) {
	if len(x) == 0 {
		return nil, ErrEmptyDataset
	}
	cols := len(x[0])
	s := &StandardScaler{Mean: make([]float64, cols), Std: make([]float64, cols)}
	column := make([]float64, len(x))
	for j := 0; j < cols; j++ {
		for i, row := range x {
			if len(row) != cols {
				return nil, fmt.Errorf("%w: row %d", ErrDimensionMismatch, i)
			}
			column[i] = row[j]
		}
		mean, std := stat.PopMeanStdDev(column, nil)
		if std < 1e-12 || math.IsNaN(std) {
			std = 1
		}
		s.Mean[j], s.Std[j] = mean, std
	}
	return s, nil
}

// Transform scales one row.
func (s *StandardScaler) Transform(row []float64) ([]float64, error) {
	if len(row) != len(s.Mean) {
		return nil, fmt.Errorf("%w: got %d columns, want %d", ErrDimensionMismatch, len(row), len(s.Mean))
	}
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.Mean[j]) / s.Std[j]
	}
	return out, nil
}

// TransformAll scales every row of x.
func (s *StandardScaler) TransformAll(x [][]float64) ([][]float64, error) {
	out := make([][]float64, len(x))
	for i, row := range x {
		t, err := s.Transform(row)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}
