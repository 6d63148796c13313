package config

import (
	"strings"
	"testing"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestApplyEnv(t *testing.T) {
	cfg := Config{Addr: ":1", Tracking: Tracking{Backend: "sqlite"}}
	err := ApplyEnv(&cfg, envMap(map[string]string{
		"MLSERVE_ADDR":                   ":2",
		"MLSERVE_STORE_DIR":              "/store",
		"S3_ENABLED":                     "true",
		"S3_ENDPOINT_URL":                "http://minio:9000",
		"S3_ACCESS_KEY":                  "ak",
		"S3_SECRET_KEY":                  "sk",
		"S3_BUCKET":                      "bkt",
		"MLSERVE_REMOTE_TIMEOUT_SECONDS": "3",
		"MLFLOW_ENABLED":                 "1",
		"MLFLOW_TRACKING_URI":            "http://mlflow:5000",
		"DVC_ENABLED":                    "true",
	}))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if cfg.Addr != ":2" || cfg.StoreDir != "/store" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	r := cfg.Remote
	if !r.Enabled || r.Endpoint != "http://minio:9000" || r.AccessKey != "ak" || r.SecretKey != "sk" || r.Bucket != "bkt" || r.TimeoutSeconds != 3 {
		t.Fatalf("unexpected remote: %+v", r)
	}
	if cfg.Tracking.Backend != "mlflow" || cfg.Tracking.URI != "http://mlflow:5000" {
		t.Fatalf("unexpected tracking: %+v", cfg.Tracking)
	}
	if !cfg.Datasets.DVCEnabled {
		t.Fatalf("dvc not enabled")
	}
}

func TestApplyEnv_MLflowDisabled(t *testing.T) {
	cfg := Config{Tracking: Tracking{Backend: "mlflow"}}
	if err := ApplyEnv(&cfg, envMap(map[string]string{"MLFLOW_ENABLED": "false"})); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if cfg.Tracking.Backend != "off" {
		t.Fatalf("backend=%q", cfg.Tracking.Backend)
	}

	// Disabling mlflow leaves another backend alone.
	cfg = Config{Tracking: Tracking{Backend: "sqlite"}}
	_ = ApplyEnv(&cfg, envMap(map[string]string{"MLFLOW_ENABLED": "false"}))
	if cfg.Tracking.Backend != "sqlite" {
		t.Fatalf("backend=%q", cfg.Tracking.Backend)
	}
}

func TestApplyEnv_BadValues(t *testing.T) {
	cfg := Config{}
	err := ApplyEnv(&cfg, envMap(map[string]string{
		"S3_ENABLED":                     "maybe",
		"MLSERVE_REMOTE_TIMEOUT_SECONDS": "soon",
	}))
	if err == nil {
		t.Fatalf("expected error")
	}
	for _, want := range []string{"S3_ENABLED", "MLSERVE_REMOTE_TIMEOUT_SECONDS"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not name %s", err, want)
		}
	}
}
