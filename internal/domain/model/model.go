package model

import "time"

// TrainedModel is the registry view of a fitted model. The fitted regressor
// and its scaler live together in the artifact addressed by ArtifactKey.
type TrainedModel struct {
	ID            string
	Event         string
	Version       int
	Algorithm     string
	R2            float64
	RMSE          float64
	TrainSamples  int
	TestSamples   int
	FeatureNames  []string
	Importances   map[string]float64
	SchemaVersion string
	ArtifactKey   string
	TrainedAt     time.Time
	Active        bool
}
