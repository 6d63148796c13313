package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mlserve/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Train(ctx context.Context, req types.TrainRequest) (types.TrainResponse, error)
	Predict(ctx context.Context, req types.PredictRequest) (types.PredictResponse, error)
	ListModels() []types.ModelInfo
	GetModel(name string) (types.ModelInfo, error)
	DeleteModel(ctx context.Context, name string) error
	ModelTypes() []types.ModelType
	Status() types.StatusResponse
	Ready() bool
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
			MaxAge:         300,
		}))
	}

	h := &handlers{svc: svc}
	r.Get("/", h.root)
	r.Get("/health", h.health)
	r.Get("/models/types", h.modelTypes)
	r.Get("/models", h.listModels)
	r.Get("/models/{name}", h.getModel)
	r.Delete("/models/{name}", h.deleteModel)
	r.Post("/models/train", h.train)
	r.Post("/models/predict", h.predict)
	r.Get("/status", h.status)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

type handlers struct {
	svc Service
}

// respondError maps err to a status and writes the error payload.
func (h *handlers) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	ev := zlog.Warn()
	if status >= 500 {
		ev = zlog.Error()
	}
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		ev = ev.Str("request_id", rid)
	}
	ev.Err(err).Int("status", status).Str("path", r.URL.Path).Msg("request failed")
	writeJSONError(w, status, err.Error())
}

// root godoc
// @Summary      Service banner
// @Tags         health
// @Produce      json
// @Success      200  {object}  types.MessageResponse
// @Router       / [get]
func (h *handlers) root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.MessageResponse{Status: "ok", Message: "MLOps API is running"})
}

// health godoc
// @Summary      Health check
// @Tags         health
// @Produce      json
// @Success      200  {object}  types.MessageResponse
// @Router       /health [get]
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.MessageResponse{Status: "healthy", Message: "Service is operational"})
}

// modelTypes godoc
// @Summary      List trainable model types
// @Tags         models
// @Produce      json
// @Success      200  {array}  types.ModelType
// @Router       /models/types [get]
func (h *handlers) modelTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.ModelTypes())
}

// listModels godoc
// @Summary      List trained models
// @Tags         models
// @Produce      json
// @Success      200  {array}  types.ModelInfo
// @Router       /models [get]
func (h *handlers) listModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.ListModels())
}

// getModel godoc
// @Summary      Describe a trained model
// @Tags         models
// @Produce      json
// @Param        name  path  string  true  "Model name"
// @Success      200  {object}  types.ModelInfo
// @Failure      404  {object}  types.ErrorResponse
// @Router       /models/{name} [get]
func (h *handlers) getModel(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.GetModel(chi.URLParam(r, "name"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// deleteModel godoc
// @Summary      Delete a trained model
// @Tags         models
// @Produce      json
// @Param        name  path  string  true  "Model name"
// @Success      200  {object}  types.MessageResponse
// @Failure      404  {object}  types.ErrorResponse
// @Router       /models/{name} [delete]
func (h *handlers) deleteModel(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	ctx, cancel := handlerContext(r)
	defer cancel()
	if err := h.svc.DeleteModel(ctx, name); err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.MessageResponse{
		Status:  "success",
		Message: "Model '" + name + "' deleted successfully",
	})
}

// train godoc
// @Summary      Train a model
// @Description  Trains a model and stores it under model_name, replacing an existing model of that name.
// @Tags         models
// @Accept       json
// @Produce      json
// @Param        request  body  types.TrainRequest  true  "Training request"
// @Success      200  {object}  types.TrainResponse
// @Failure      400  {object}  types.ErrorResponse
// @Failure      415  {object}  types.ErrorResponse
// @Router       /models/train [post]
func (h *handlers) train(w http.ResponseWriter, r *http.Request) {
	var req types.TrainRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	ctx, cancel := handlerContext(r)
	defer cancel()
	resp, err := h.svc.Train(ctx, req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// predict godoc
// @Summary      Predict with a trained model
// @Tags         models
// @Accept       json
// @Produce      json
// @Param        request  body  types.PredictRequest  true  "Prediction request"
// @Success      200  {object}  types.PredictResponse
// @Failure      400  {object}  types.ErrorResponse
// @Failure      404  {object}  types.ErrorResponse
// @Router       /models/predict [post]
func (h *handlers) predict(w http.ResponseWriter, r *http.Request) {
	var req types.PredictRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	ctx, cancel := handlerContext(r)
	defer cancel()
	resp, err := h.svc.Predict(ctx, req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	predictionRowsTotal.Add(float64(len(resp.Predictions)))
	writeJSON(w, http.StatusOK, resp)
}

// status godoc
// @Summary      Store and mirror status
// @Tags         health
// @Produce      json
// @Success      200  {object}  types.StatusResponse
// @Router       /status [get]
func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status())
}
