package tracking

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

// MLflow talks to an MLflow tracking server over its REST API 2.0.
type MLflow struct {
	base       string
	experiment string
	client     *http.Client

	mu    sync.Mutex
	expID string
}

// NewMLflow returns a client for the server at uri.
func NewMLflow(uri, experiment string, timeout time.Duration) (*MLflow, error) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("mlflow: invalid tracking uri %q", uri)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if experiment == "" {
		experiment = DefaultExperiment
	}
	return &MLflow{
		base:       strings.TrimRight(uri, "/"),
		experiment: experiment,
		client:     &http.Client{Timeout: timeout},
	}, nil
}

type mlflowError struct {
	Status    int
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

func (e *mlflowError) Error() string {
	return fmt.Sprintf("mlflow: %d %s: %s", e.Status, e.ErrorCode, e.Message)
}

func (t *MLflow) call(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	u := t.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return t.do(req, out)
}

func (t *MLflow) do(req *http.Request, out any) error {
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("mlflow: %w", err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("mlflow: read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		e := &mlflowError{Status: resp.StatusCode}
		_ = json.Unmarshal(b, e)
		return e
	}
	if out == nil || len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("mlflow: decode response: %w", err)
	}
	return nil
}

// experimentID resolves the experiment by name, creating it when missing.
func (t *MLflow) experimentID(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.expID != "" {
		return t.expID, nil
	}
	var got struct {
		Experiment struct {
			ExperimentID string `json:"experiment_id"`
		} `json:"experiment"`
	}
	err := t.call(ctx, http.MethodGet, "/api/2.0/mlflow/experiments/get-by-name",
		url.Values{"experiment_name": {t.experiment}}, nil, &got)
	if err == nil && got.Experiment.ExperimentID != "" {
		t.expID = got.Experiment.ExperimentID
		return t.expID, nil
	}
	if e, ok := err.(*mlflowError); err != nil && !(ok && e.ErrorCode == "RESOURCE_DOES_NOT_EXIST") {
		return "", err
	}
	var created struct {
		ExperimentID string `json:"experiment_id"`
	}
	if err := t.call(ctx, http.MethodPost, "/api/2.0/mlflow/experiments/create", nil,
		map[string]string{"name": t.experiment}, &created); err != nil {
		return "", err
	}
	t.expID = created.ExperimentID
	return t.expID, nil
}

type mlflowKV struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type mlflowMetric struct {
	Key       string  `json:"key"`
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"`
	Step      int64   `json:"step"`
}

// TrackTraining creates a run, logs params and metrics, uploads the artifact
// through the server's artifact proxy and closes the run.
func (t *MLflow) TrackTraining(ctx context.Context, r Run) error {
	expID, err := t.experimentID(ctx)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	var created struct {
		Run struct {
			Info struct {
				RunID       string `json:"run_id"`
				ArtifactURI string `json:"artifact_uri"`
			} `json:"info"`
		} `json:"run"`
	}
	err = t.call(ctx, http.MethodPost, "/api/2.0/mlflow/runs/create", nil, map[string]any{
		"experiment_id": expID,
		"start_time":    now,
		"run_name":      r.ModelName,
		"tags":          []mlflowKV{{Key: "mlflow.runName", Value: r.ModelName}},
	}, &created)
	if err != nil {
		return err
	}
	runID := created.Run.Info.RunID

	runErr := t.logRun(ctx, runID, created.Run.Info.ArtifactURI, r, now)
	status := "FINISHED"
	if runErr != nil {
		status = "FAILED"
	}
	err = t.call(ctx, http.MethodPost, "/api/2.0/mlflow/runs/update", nil, map[string]any{
		"run_id":   runID,
		"status":   status,
		"end_time": time.Now().UnixMilli(),
	}, nil)
	if runErr != nil {
		return runErr
	}
	return err
}

func (t *MLflow) logRun(ctx context.Context, runID, artifactURI string, r Run, ts int64) error {
	params := r.Params()
	batch := struct {
		RunID   string         `json:"run_id"`
		Params  []mlflowKV     `json:"params"`
		Metrics []mlflowMetric `json:"metrics"`
	}{RunID: runID}
	for _, k := range sortedKeys(params) {
		batch.Params = append(batch.Params, mlflowKV{Key: k, Value: params[k]})
	}
	metrics := r.Metrics()
	for _, k := range sortedKeys(metrics) {
		batch.Metrics = append(batch.Metrics, mlflowMetric{Key: k, Value: metrics[k], Timestamp: ts})
	}
	if err := t.call(ctx, http.MethodPost, "/api/2.0/mlflow/runs/log-batch", nil, batch, nil); err != nil {
		return err
	}
	if len(r.Artifact) == 0 {
		return nil
	}
	return t.uploadArtifact(ctx, artifactURI, r.ModelName+"/model.model", r.Artifact)
}

// uploadArtifact only supports the mlflow-artifacts proxy scheme; a server
// configured with a direct artifact store returns some other URI.
func (t *MLflow) uploadArtifact(ctx context.Context, artifactURI, name string, data []byte) error {
	const scheme = "mlflow-artifacts:"
	if !strings.HasPrefix(artifactURI, scheme) {
		return fmt.Errorf("mlflow: artifact uri %q is not served by the tracking server", artifactURI)
	}
	// mlflow-artifacts:/<exp>/<run>/artifacts or mlflow-artifacts://host/<exp>/...
	rest := strings.TrimPrefix(artifactURI, scheme)
	if strings.HasPrefix(rest, "//") {
		if i := strings.Index(rest[2:], "/"); i >= 0 {
			rest = rest[2+i:]
		} else {
			rest = ""
		}
	}
	p := "/api/2.0/mlflow-artifacts/artifacts/" + strings.Trim(rest, "/") + "/" + name
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, t.base+p, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	return t.do(req, nil)
}

func (t *MLflow) Close() error {
	t.client.CloseIdleConnections()
	return nil
}
