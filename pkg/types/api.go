package types

// TrainRequest is the body of POST /models/train.
type TrainRequest struct {
	// Registered model type.
	// example: linear_regression
	ModelType string `json:"model_type" validate:"required" example:"linear_regression"`
	// Name to store the trained model under. An existing model with the
	// same name is replaced.
	// example: housing-v1
	ModelName string `json:"model_name" validate:"required" example:"housing-v1"`
	// Type-specific hyperparameters; unknown keys are ignored.
	Hyperparameters map[string]any `json:"hyperparameters,omitempty"`
	// Training feature matrix, one row per sample.
	XTrain [][]float64 `json:"X_train" validate:"required,min=1,dive,min=1"`
	// Training targets, one per row of X_train.
	YTrain []float64 `json:"y_train" validate:"required,min=1"`
}

// TrainResponse is returned by POST /models/train.
type TrainResponse struct {
	// example: Model trained successfully
	Message string `json:"message" example:"Model trained successfully"`
	// example: housing-v1
	ModelName string `json:"model_name" example:"housing-v1"`
	// example: linear_regression
	ModelType string `json:"model_type" example:"linear_regression"`
}

// PredictRequest is the body of POST /models/predict.
type PredictRequest struct {
	// example: housing-v1
	ModelName string `json:"model_name" validate:"required" example:"housing-v1"`
	// Feature rows to predict.
	X [][]float64 `json:"X" validate:"required,min=1,dive,min=1"`
}

// PredictResponse is returned by POST /models/predict.
type PredictResponse struct {
	// example: housing-v1
	ModelName string `json:"model_name" example:"housing-v1"`
	// One prediction per input row.
	Predictions []float64 `json:"predictions"`
}

// MessageResponse is the body of informational endpoints.
type MessageResponse struct {
	// example: ok
	Status string `json:"status" example:"ok"`
	// example: MLOps API is running
	Message string `json:"message" example:"MLOps API is running"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// MirrorStatus summarizes the remote artifact mirror for /status.
type MirrorStatus struct {
	// Whether a remote mirror is configured and reachable at startup.
	// example: true
	Enabled bool `json:"enabled" example:"true"`
	// Circuit breaker state: closed, half-open or open.
	// example: closed
	BreakerState string `json:"breaker_state,omitempty" example:"closed"`
	// Transfers waiting for the mirror worker.
	// example: 0
	QueueLen int `json:"queue_len" example:"0"`
	// example: 256
	QueueCap int `json:"queue_cap" example:"256"`
	// Transfers dropped because the queue was full or closed.
	// example: 0
	DroppedTotal uint64 `json:"dropped_total" example:"0"`
	// Remote calls that failed and were swallowed.
	// example: 2
	FailuresTotal uint64 `json:"failures_total" example:"2"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Number of stored models.
	// example: 3
	Models int `json:"models" example:"3"`
	// Number of models currently held in memory.
	// example: 1
	Cached int `json:"cached" example:"1"`
	// Local store directory.
	// example: models
	StoreDir string       `json:"store_dir" example:"models"`
	Mirror   MirrorStatus `json:"mirror"`
	// example: 12
	SavesTotal uint64 `json:"saves_total" example:"12"`
	// Loads that had to read an artifact from disk.
	// example: 4
	LoadsTotal uint64 `json:"loads_total" example:"4"`
	// example: 1
	DeletesTotal uint64 `json:"deletes_total" example:"1"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}
