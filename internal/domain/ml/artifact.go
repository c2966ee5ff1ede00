package ml

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

// Artifact is a fitted model together with the scaler and the column
// order it was trained with. Exactly one model field is set.
type Artifact struct {
	Algorithm     string
	FeatureNames  []string
	SchemaVersion string
	Scaler        *StandardScaler
	TrainedAt     time.Time
	R2            float64

	Forest   *RandomForest
	Boosting *GradientBoosting
	Ridge    *Ridge
	Linear   *Linear
}

// NewArtifact pairs a fitted regressor with its scaler.
func NewArtifact(algorithm string, names []string, schema string, scaler *StandardScaler, r Regressor, r2 float64) (*Artifact, error) {
	if scaler == nil || len(scaler.Mean) != len(names) {
		return nil, fmt.Errorf("%w: scaler does not match %d feature names", ErrDimensionMismatch, len(names))
	}
	a := &Artifact{
		Algorithm:     algorithm,
		FeatureNames:  append([]string(nil), names...),
		SchemaVersion: schema,
		Scaler:        scaler,
		TrainedAt:     time.Now().UTC(),
		R2:            r2,
	}
	switch m := r.(type) {
	case *RandomForest:
		a.Forest = m
	case *GradientBoosting:
		a.Boosting = m
	case *Ridge:
		a.Ridge = m
	case *Linear:
		a.Linear = m
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownAlgorithm, r)
	}
	return a, nil
}

// Model returns the stored regressor.
func (a *Artifact) Model() (Regressor, error) {
	switch {
	case a.Forest != nil:
		return a.Forest, nil
	case a.Boosting != nil:
		return a.Boosting, nil
	case a.Ridge != nil:
		return a.Ridge, nil
	case a.Linear != nil:
		return a.Linear, nil
	}
	return nil, ErrNotFitted
}

// Estimate scales an aligned row and predicts it. native is true when conf
// came from the model itself rather than being left for the caller.
func (a *Artifact) Estimate(row []float64) (value, conf float64, native bool, err error) {
	m, err := a.Model()
	if err != nil {
		return 0, 0, false, err
	}
	scaled, err := a.Scaler.Transform(row)
	if err != nil {
		return 0, 0, false, err
	}
	value = m.Predict(scaled)
	if c, ok := m.(Confidencer); ok {
		return value, c.Confidence(scaled), true, nil
	}
	return value, 0, false, nil
}

type envelope struct {
	Checksum string
	Payload  []byte
}

// Encode serialises a as gob, gzips it and wraps it with a SHA-256 of the
// raw gob bytes.
func Encode(a *Artifact) ([]byte, error) {
	var raw bytes.Buffer
	if err := gob.NewEncoder(&raw).Encode(a); err != nil {
		return nil, fmt.Errorf("encode artifact: %w", err)
	}
	sum := sha256.Sum256(raw.Bytes())

	var compressed bytes.Buffer
	gzw := gzip.NewWriter(&compressed)
	if _, err := gzw.Write(raw.Bytes()); err != nil {
		return nil, fmt.Errorf("compress artifact: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return nil, fmt.Errorf("finalize compression: %w", err)
	}

	var out bytes.Buffer
	env := envelope{Checksum: hex.EncodeToString(sum[:]), Payload: compressed.Bytes()}
	if err := gob.NewEncoder(&out).Encode(env); err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return out.Bytes(), nil
}

// Decode reverses Encode and verifies the checksum.
func Decode(data []byte) (*Artifact, error) {
	var env envelope
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: envelope: %w", ErrCorruptedArtifact, err)
	}
	gzr, err := gzip.NewReader(bytes.NewReader(env.Payload))
	if err != nil {
		return nil, fmt.Errorf("%w: decompress: %w", ErrCorruptedArtifact, err)
	}
	defer func() { _ = gzr.Close() }()

	raw, err := io.ReadAll(gzr)
	if err != nil {
		return nil, fmt.Errorf("%w: read: %w", ErrCorruptedArtifact, err)
	}
	sum := sha256.Sum256(raw)
	if got := hex.EncodeToString(sum[:]); got != env.Checksum {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, env.Checksum, got)
	}

	var a Artifact
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&a); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrCorruptedArtifact, err)
	}
	return &a, nil
}
