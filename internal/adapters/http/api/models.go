package api

import (
	"errors"
	"net/http"
	"time"

	service "github.com/okian/stride/internal/app"
	"github.com/okian/stride/internal/domain/model"
)

type modelResponse struct {
	ID           string             `json:"id"`
	Event        string             `json:"event"`
	Version      int                `json:"version"`
	Algorithm    string             `json:"algorithm"`
	R2           float64            `json:"r2"`
	RMSE         float64            `json:"rmse"`
	TrainSamples int                `json:"train_samples"`
	TestSamples  int                `json:"test_samples"`
	Importances  map[string]float64 `json:"importances,omitempty"`
	TrainedAt    time.Time          `json:"trained_at"`
	Active       bool               `json:"active"`
}

func toModelResponse(m *model.TrainedModel) modelResponse {
	return modelResponse{
		ID:           m.ID,
		Event:        m.Event,
		Version:      m.Version,
		Algorithm:    m.Algorithm,
		R2:           m.R2,
		RMSE:         m.RMSE,
		TrainSamples: m.TrainSamples,
		TestSamples:  m.TestSamples,
		Importances:  m.Importances,
		TrainedAt:    m.TrainedAt,
		Active:       m.Active,
	}
}

// ModelsHandler handles registry reads.
type ModelsHandler struct {
	deps ModelsDependencies
}

// NewModelsHandler creates a new models handler.
func NewModelsHandler(deps ModelsDependencies) *ModelsHandler {
	return &ModelsHandler{deps: deps}
}

// HandleGetModels handles GET /models?event=5k requests.
func (h *ModelsHandler) HandleGetModels(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_models"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	models, err := h.deps.Models(r.Context(), r.URL.Query().Get("event"))
	switch {
	case err == nil:
	case errors.Is(err, service.ErrUnknownEvent):
		writeError(w, http.StatusBadRequest, "unknown_event", WrapKind(op, ErrBadRequest, err))
		return
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", NewKind(op, ErrUnavailable))
		return
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	out := make([]modelResponse, 0, len(models))
	for _, m := range models {
		out = append(out, toModelResponse(m))
	}
	writeJSON(w, http.StatusOK, out)
}
