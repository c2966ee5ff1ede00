package prediction

// Degradation reasons, used as log fields and as the fallback metric label.
const (
	ReasonUnknownEvent        = "unknown_event"
	ReasonRegistryError       = "registry_error"
	ReasonNoActiveModel       = "no_active_model"
	ReasonNoFeatures          = "no_features"
	ReasonInsufficientHistory = "insufficient_history"
	ReasonBreakerOpen         = "breaker_open"
	ReasonArtifactUnavailable = "artifact_unavailable"
	ReasonPredictionError     = "prediction_error"
	ReasonInvalidEstimate     = "invalid_estimate"
	ReasonUnknownCategory     = "unknown_category"
)
