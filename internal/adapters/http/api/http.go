// Package api exposes the ops HTTP surface: metrics, stats, training
// triggers and the model registry.
package api

import (
	"context"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/okian/stride/internal/domain/model"
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	StatsProvider
	TrainDependencies
	ModelsDependencies
}

// Server wires HTTP routes for the ops API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	trainHandler  *TrainHandler
	modelsHandler *ModelsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(deps),
		trainHandler:  NewTrainHandler(deps),
		modelsHandler: NewModelsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/train", MetricsMiddleware(s.trainHandler.HandlePostTrain, "train"))
	mux.HandleFunc("/models", MetricsMiddleware(s.modelsHandler.HandleGetModels, "models"))
}

// TrainDependencies schedules background training.
type TrainDependencies interface {
	EnqueueTraining(ctx context.Context, event string, activate bool) (model.TrainJob, error)
}

// ModelsDependencies reads the model registry.
type ModelsDependencies interface {
	Models(ctx context.Context, event string) ([]*model.TrainedModel, error)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
