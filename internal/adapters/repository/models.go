package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	json "github.com/goccy/go-json"

	"github.com/okian/stride/internal/domain/model"
	"github.com/okian/stride/pkg/logger"
)

// ModelRegistry is the versioned model registry.
type ModelRegistry struct {
	s *SQLite
}

// Models returns the model registry.
func (s *SQLite) Models() *ModelRegistry {
	return &ModelRegistry{s: s}
}

const modelColumns = `id, event, version, algorithm, r2, rmse, train_samples, test_samples,
	feature_names, importances, schema_version, artifact_key, trained_at, active`

// Register stores m as the next version of its event. The new model is
// inactive; activation is a separate step.
func (r *ModelRegistry) Register(ctx context.Context, m *model.TrainedModel) (*model.TrainedModel, error) {
	names, err := json.Marshal(m.FeatureNames)
	if err != nil {
		return nil, fmt.Errorf("marshal feature names: %w", err)
	}
	importances, err := json.Marshal(m.Importances)
	if err != nil {
		return nil, fmt.Errorf("marshal importances: %w", err)
	}

	tx, err := r.s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin register: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var version int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM models WHERE event = ?`, m.Event).Scan(&version); err != nil {
		return nil, fmt.Errorf("next version: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO models (`+modelColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		m.ID, m.Event, version, m.Algorithm, finiteOrZero(m.R2), finiteOrZero(m.RMSE), m.TrainSamples, m.TestSamples,
		string(names), string(importances), m.SchemaVersion, m.ArtifactKey, toUnix(m.TrainedAt))
	if err != nil {
		return nil, fmt.Errorf("insert model: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit register: %w", err)
	}

	out := *m
	out.Version = version
	out.Active = false
	r.s.logger.Info(ctx, "model registered",
		logger.String("model_id", m.ID),
		logger.String("event", m.Event),
		logger.Int("version", version))
	return &out, nil
}

// Activate makes modelID the only active model of its event. The swap is a
// single statement, so readers never observe zero or two active models.
func (r *ModelRegistry) Activate(ctx context.Context, modelID string) (*model.TrainedModel, error) {
	m, err := r.Get(ctx, modelID)
	if err != nil {
		return nil, err
	}
	if _, err := r.s.db.ExecContext(ctx,
		`UPDATE models SET active = (id = ?) WHERE event = ?`, modelID, m.Event); err != nil {
		return nil, fmt.Errorf("activate model: %w", err)
	}
	m.Active = true
	r.s.logger.Info(ctx, "model activated",
		logger.String("model_id", modelID),
		logger.String("event", m.Event),
		logger.Int("version", m.Version))
	return m, nil
}

// Active returns the active model of event, or (nil, nil) when none is.
func (r *ModelRegistry) Active(ctx context.Context, event string) (*model.TrainedModel, error) {
	row := r.s.db.QueryRowContext(ctx,
		`SELECT `+modelColumns+` FROM models WHERE event = ? AND active = 1`, event)
	m, err := scanModel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read active model: %w", err)
	}
	return m, nil
}

// Get returns a model by id or ErrNotFound.
func (r *ModelRegistry) Get(ctx context.Context, modelID string) (*model.TrainedModel, error) {
	row := r.s.db.QueryRowContext(ctx, `SELECT `+modelColumns+` FROM models WHERE id = ?`, modelID)
	m, err := scanModel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: model %s", ErrNotFound, modelID)
	}
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	return m, nil
}

// List returns models newest version first. An empty event lists all.
func (r *ModelRegistry) List(ctx context.Context, event string) ([]*model.TrainedModel, error) {
	query := `SELECT ` + modelColumns + ` FROM models`
	var args []any
	if event != "" {
		query += ` WHERE event = ?`
		args = append(args, event)
	}
	query += ` ORDER BY event, version DESC`

	rows, err := r.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []*model.TrainedModel{}
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan model: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// finiteOrZero maps NaN and infinities to 0; sqlite would store NaN as NULL.
func finiteOrZero(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}

type scanner interface {
	Scan(dest ...any) error
}

func scanModel(sc scanner) (*model.TrainedModel, error) {
	var (
		m           model.TrainedModel
		names       string
		importances string
		trainedAt   int64
		active      int
	)
	err := sc.Scan(&m.ID, &m.Event, &m.Version, &m.Algorithm, &m.R2, &m.RMSE, &m.TrainSamples, &m.TestSamples,
		&names, &importances, &m.SchemaVersion, &m.ArtifactKey, &trainedAt, &active)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(names), &m.FeatureNames); err != nil {
		return nil, fmt.Errorf("unmarshal feature names: %w", err)
	}
	if err := json.Unmarshal([]byte(importances), &m.Importances); err != nil {
		return nil, fmt.Errorf("unmarshal importances: %w", err)
	}
	m.TrainedAt = fromUnix(trainedAt)
	m.Active = active == 1
	return &m, nil
}
