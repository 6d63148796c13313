// Package config loads the service configuration from a file and the
// environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"mlserve/internal/common/fsutil"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are replaced by WithDefaults.
type Config struct {
	Addr         string `json:"addr" yaml:"addr" toml:"addr"`
	StoreDir     string `json:"store_dir" yaml:"store_dir" toml:"store_dir"`
	DataDir      string `json:"data_dir" yaml:"data_dir" toml:"data_dir"`
	LogLevel     string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat    string `json:"log_format" yaml:"log_format" toml:"log_format"`
	HTTPLogLevel string `json:"http_log_level" yaml:"http_log_level" toml:"http_log_level"`
	MaxBodyBytes int64  `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	// RequestTimeoutSeconds bounds train and predict; 0 disables.
	RequestTimeoutSeconds int64 `json:"request_timeout_seconds" yaml:"request_timeout_seconds" toml:"request_timeout_seconds"`

	Remote   Remote   `json:"remote" yaml:"remote" toml:"remote"`
	Tracking Tracking `json:"tracking" yaml:"tracking" toml:"tracking"`
	Datasets Datasets `json:"datasets" yaml:"datasets" toml:"datasets"`
	CORS     CORS     `json:"cors" yaml:"cors" toml:"cors"`
}

// Remote configures the object mirror.
type Remote struct {
	Enabled bool `json:"enabled" yaml:"enabled" toml:"enabled"`
	// Kind is "s3" or "dir".
	Kind               string `json:"kind" yaml:"kind" toml:"kind"`
	Endpoint           string `json:"endpoint" yaml:"endpoint" toml:"endpoint"`
	AccessKey          string `json:"access_key" yaml:"access_key" toml:"access_key"`
	SecretKey          string `json:"secret_key" yaml:"secret_key" toml:"secret_key"`
	Bucket             string `json:"bucket" yaml:"bucket" toml:"bucket"`
	Region             string `json:"region" yaml:"region" toml:"region"`
	UseSSL             bool   `json:"use_ssl" yaml:"use_ssl" toml:"use_ssl"`
	Dir                string `json:"dir" yaml:"dir" toml:"dir"`
	Prefix             string `json:"prefix" yaml:"prefix" toml:"prefix"`
	TimeoutSeconds     int    `json:"timeout_seconds" yaml:"timeout_seconds" toml:"timeout_seconds"`
	QueueDepth         int    `json:"queue_depth" yaml:"queue_depth" toml:"queue_depth"`
	BreakerFailures    uint32 `json:"breaker_failures" yaml:"breaker_failures" toml:"breaker_failures"`
	BreakerOpenSeconds int    `json:"breaker_open_seconds" yaml:"breaker_open_seconds" toml:"breaker_open_seconds"`
}

// Tracking configures experiment tracking.
type Tracking struct {
	// Backend is "off", "mlflow" or "sqlite".
	Backend        string `json:"backend" yaml:"backend" toml:"backend"`
	URI            string `json:"uri" yaml:"uri" toml:"uri"`
	Experiment     string `json:"experiment" yaml:"experiment" toml:"experiment"`
	DBPath         string `json:"db_path" yaml:"db_path" toml:"db_path"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds" toml:"timeout_seconds"`
}

// Datasets configures training data snapshots.
type Datasets struct {
	DVCEnabled bool   `json:"dvc_enabled" yaml:"dvc_enabled" toml:"dvc_enabled"`
	DVCBin     string `json:"dvc_bin" yaml:"dvc_bin" toml:"dvc_bin"`
}

// CORS is opt-in.
type CORS struct {
	Enabled bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	Origins []string `json:"origins" yaml:"origins" toml:"origins"`
	Methods []string `json:"methods" yaml:"methods" toml:"methods"`
	Headers []string `json:"headers" yaml:"headers" toml:"headers"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// ApplyEnv overlays recognised environment variables onto cfg. Unparseable
// booleans and numbers are reported rather than ignored.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	var errs []string
	boolean := func(key string, dst *bool) {
		v := getenv(key)
		if v == "" {
			return
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s=%q: not a boolean", key, v))
			return
		}
		*dst = b
	}
	integer := func(key string, dst *int) {
		v := getenv(key)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s=%q: not an integer", key, v))
			return
		}
		*dst = n
	}

	str("MLSERVE_ADDR", &cfg.Addr)
	str("MLSERVE_STORE_DIR", &cfg.StoreDir)
	str("MLSERVE_DATA_DIR", &cfg.DataDir)
	str("MLSERVE_LOG_LEVEL", &cfg.LogLevel)
	str("MLSERVE_LOG_FORMAT", &cfg.LogFormat)

	boolean("S3_ENABLED", &cfg.Remote.Enabled)
	str("S3_ENDPOINT_URL", &cfg.Remote.Endpoint)
	str("S3_ACCESS_KEY", &cfg.Remote.AccessKey)
	str("S3_SECRET_KEY", &cfg.Remote.SecretKey)
	str("S3_BUCKET", &cfg.Remote.Bucket)
	str("S3_REGION", &cfg.Remote.Region)
	integer("MLSERVE_REMOTE_TIMEOUT_SECONDS", &cfg.Remote.TimeoutSeconds)

	str("MLFLOW_TRACKING_URI", &cfg.Tracking.URI)
	if v := getenv("MLFLOW_ENABLED"); v != "" {
		on, err := strconv.ParseBool(v)
		switch {
		case err != nil:
			errs = append(errs, fmt.Sprintf("MLFLOW_ENABLED=%q: not a boolean", v))
		case on:
			cfg.Tracking.Backend = "mlflow"
		case cfg.Tracking.Backend == "mlflow":
			cfg.Tracking.Backend = "off"
		}
	}
	boolean("DVC_ENABLED", &cfg.Datasets.DVCEnabled)

	if len(errs) > 0 {
		return fmt.Errorf("environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

// WithDefaults returns cfg with zero values replaced by defaults.
func WithDefaults(cfg Config) Config {
	def := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	def(&cfg.Addr, ":8000")
	def(&cfg.StoreDir, "models")
	def(&cfg.DataDir, "data")
	def(&cfg.LogLevel, "info")
	def(&cfg.LogFormat, "json")
	def(&cfg.HTTPLogLevel, "info")
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 8 << 20
	}

	if cfg.Remote.Kind == "" {
		if cfg.Remote.Dir != "" && cfg.Remote.Endpoint == "" {
			cfg.Remote.Kind = "dir"
		} else {
			cfg.Remote.Kind = "s3"
		}
	}
	def(&cfg.Remote.Endpoint, "http://localhost:9000")
	def(&cfg.Remote.Bucket, "mlops-models")
	def(&cfg.Remote.Prefix, "models")
	if cfg.Remote.TimeoutSeconds <= 0 {
		cfg.Remote.TimeoutSeconds = 10
	}
	if cfg.Remote.QueueDepth <= 0 {
		cfg.Remote.QueueDepth = 256
	}
	if cfg.Remote.BreakerFailures == 0 {
		cfg.Remote.BreakerFailures = 5
	}
	if cfg.Remote.BreakerOpenSeconds <= 0 {
		cfg.Remote.BreakerOpenSeconds = 30
	}

	def(&cfg.Tracking.Backend, "off")
	def(&cfg.Tracking.URI, "http://localhost:5000")
	def(&cfg.Tracking.Experiment, "mlops-training")
	if cfg.Tracking.DBPath == "" {
		cfg.Tracking.DBPath = filepath.Join(cfg.DataDir, "tracking.db")
	}
	if cfg.Tracking.TimeoutSeconds <= 0 {
		cfg.Tracking.TimeoutSeconds = 10
	}

	def(&cfg.Datasets.DVCBin, "dvc")
	return cfg
}

// ExpandPaths resolves a leading '~' in every filesystem path of cfg.
func ExpandPaths(cfg Config) (Config, error) {
	for _, p := range []*string{&cfg.StoreDir, &cfg.DataDir, &cfg.Remote.Dir, &cfg.Tracking.DBPath} {
		v, err := fsutil.ExpandHome(*p)
		if err != nil {
			return cfg, err
		}
		*p = v
	}
	return cfg, nil
}
