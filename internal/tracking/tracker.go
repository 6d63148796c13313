// Package tracking records training runs in an experiment tracker. Every
// backend is best-effort from the caller's point of view: errors are returned
// so they can be logged, never so they can fail a request.
package tracking

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// DefaultExperiment groups runs recorded by the training endpoint.
const DefaultExperiment = "mlops-training"

// Run is one completed training.
type Run struct {
	ModelName       string
	ModelType       string
	Hyperparameters map[string]any
	NSamples        int
	NFeatures       int
	// Artifact is the serialized model.
	Artifact []byte
}

// Params flattens the run into string parameters: model_name, model_type,
// then every hyperparameter JSON-encoded.
func (r Run) Params() map[string]string {
	out := map[string]string{
		"model_name": r.ModelName,
		"model_type": r.ModelType,
	}
	for k, v := range r.Hyperparameters {
		if s, ok := v.(string); ok {
			out[k] = s
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			out[k] = fmt.Sprint(v)
			continue
		}
		out[k] = string(b)
	}
	return out
}

// Metrics returns the dataset size metrics.
func (r Run) Metrics() map[string]float64 {
	return map[string]float64{
		"n_samples":  float64(r.NSamples),
		"n_features": float64(r.NFeatures),
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Tracker records training runs.
type Tracker interface {
	TrackTraining(ctx context.Context, r Run) error
	Close() error
}

// Noop discards runs.
type Noop struct{}

func (Noop) TrackTraining(context.Context, Run) error { return nil }
func (Noop) Close() error                             { return nil }

// Config selects a backend.
type Config struct {
	// Backend is "off", "mlflow" or "sqlite".
	Backend    string
	URI        string
	Experiment string
	DBPath     string
	Timeout    time.Duration
}

// Open builds the configured tracker. Backend "" and "off" yield Noop.
func Open(cfg Config, log zerolog.Logger) (Tracker, error) {
	if cfg.Experiment == "" {
		cfg.Experiment = DefaultExperiment
	}
	switch strings.ToLower(cfg.Backend) {
	case "", "off", "none":
		log.Info().Msg("experiment tracking disabled")
		return Noop{}, nil
	case "mlflow":
		t, err := NewMLflow(cfg.URI, cfg.Experiment, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		log.Info().Str("uri", cfg.URI).Str("experiment", cfg.Experiment).Msg("mlflow tracking enabled")
		return t, nil
	case "sqlite":
		t, err := OpenSQLite(cfg.DBPath, cfg.Experiment)
		if err != nil {
			return nil, err
		}
		log.Info().Str("db", cfg.DBPath).Str("experiment", cfg.Experiment).Msg("sqlite tracking enabled")
		return t, nil
	default:
		return nil, fmt.Errorf("unknown tracking backend %q", cfg.Backend)
	}
}
