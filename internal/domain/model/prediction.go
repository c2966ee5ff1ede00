package model

import (
	"fmt"
	"math"
	"time"
)

// FallbackModelID marks predictions produced without a trained model.
const FallbackModelID = "fallback"

// PredictionSource tells which stage of the serving chain produced a result.
type PredictionSource string

// Prediction sources.
const (
	SourceModel    PredictionSource = "model"
	SourceFallback PredictionSource = "fallback"
	SourceDefault  PredictionSource = "default"
)

// Prediction is the immutable result of one predict call.
type Prediction struct {
	ID         string
	UserID     string
	Event      string
	Seconds    float64
	Formatted  string
	Confidence float64
	ModelID    string
	Source     PredictionSource
	Reason     string // degradation reason, empty for model predictions
	Features   map[string]float64
	CreatedAt  time.Time
}

// IsFallback reports whether no trained model was used.
func (p *Prediction) IsFallback() bool {
	return p.ModelID == FallbackModelID
}

// FormatDuration renders seconds as H:MM:SS.
func FormatDuration(seconds float64) string {
	if seconds <= 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return "0:00:00"
	}
	total := int64(math.Round(seconds))
	return fmt.Sprintf("%d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
