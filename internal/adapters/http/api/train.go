package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	service "github.com/okian/stride/internal/app"
)

type trainRequest struct {
	Event    string `json:"event"`
	Activate bool   `json:"activate"`
}

type trainResponse struct {
	Status      string    `json:"status"`
	JobID       string    `json:"job_id"`
	Event       string    `json:"event"`
	RequestedAt time.Time `json:"requested_at"`
}

// TrainHandler handles training triggers.
type TrainHandler struct {
	deps TrainDependencies
}

// NewTrainHandler creates a new train handler.
func NewTrainHandler(deps TrainDependencies) *TrainHandler {
	return &TrainHandler{deps: deps}
}

// HandlePostTrain handles POST /train requests. The run happens on a
// background worker; the response only acknowledges the job.
func (h *TrainHandler) HandlePostTrain(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_train"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req trainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(req.Event) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("missing event")))
		return
	}

	job, err := h.deps.EnqueueTraining(r.Context(), req.Event, req.Activate)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, trainResponse{
			Status:      "accepted",
			JobID:       job.ID,
			Event:       job.Event,
			RequestedAt: job.RequestedAt,
		})
	case errors.Is(err, service.ErrUnknownEvent):
		writeError(w, http.StatusBadRequest, "unknown_event", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, service.ErrPending):
		writeError(w, http.StatusConflict, "pending", WrapKind(op, ErrBackpressure, err))
	case errors.Is(err, service.ErrQueueFull):
		writeError(w, http.StatusTooManyRequests, "backpressure", NewKind(op, ErrBackpressure))
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", NewKind(op, ErrUnavailable))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
