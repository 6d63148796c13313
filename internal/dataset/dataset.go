// Package dataset snapshots training data as CSV next to the model store and
// optionally versions each snapshot with DVC.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"mlserve/internal/common/fsutil"
)

const (
	featuresFile = "X.csv"
	targetFile   = "y.csv"
	metaFile     = "metadata.json"
)

// Metadata is written next to every snapshot.
type Metadata struct {
	Shape     []int `json:"shape"`
	NSamples  int   `json:"n_samples"`
	NFeatures int   `json:"n_features"`
}

type datasetNotFoundError struct{ name string }

func (e datasetNotFoundError) Error() string { return fmt.Sprintf("Dataset '%s' not found", e.name) }

// IsDatasetNotFound reports whether err means the CSV pair is missing.
func IsDatasetNotFound(err error) bool {
	var e datasetNotFoundError
	return errors.As(err, &e)
}

// Config configures Storage.
type Config struct {
	// DataDir is the root; snapshots live in <DataDir>/datasets/<name>/.
	DataDir string
	// Versioner is optional; nil disables DVC.
	Versioner Versioner
	Logger    *zerolog.Logger
}

// Storage reads and writes dataset snapshots.
type Storage struct {
	root string
	vcs  Versioner
	log  zerolog.Logger
}

// New creates <DataDir>/datasets.
func New(cfg Config) (*Storage, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("dataset: data dir is required")
	}
	root := filepath.Join(cfg.DataDir, "datasets")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create datasets dir: %w", err)
	}
	s := &Storage{root: root, vcs: cfg.Versioner, log: zerolog.Nop()}
	if cfg.Logger != nil {
		s.log = cfg.Logger.With().Str("component", "dataset").Logger()
	}
	return s, nil
}

func (s *Storage) dir(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("dataset: invalid name %q", name)
	}
	return filepath.Join(s.root, name), nil
}

// Save writes X.csv, y.csv and metadata.json for name, replacing any previous
// snapshot. With push set and a versioner configured, the directory is then
// added and pushed; versioning failures are logged, not returned.
func (s *Storage) Save(ctx context.Context, name string, X [][]float64, y []float64, push bool) error {
	dir, err := s.dir(name)
	if err != nil {
		return err
	}
	if len(X) != len(y) {
		return fmt.Errorf("dataset %s: %d feature rows but %d targets", name, len(X), len(y))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dataset dir: %w", err)
	}
	nFeatures := 0
	if len(X) > 0 {
		nFeatures = len(X[0])
	}
	xb, err := encodeFeatures(X, nFeatures)
	if err != nil {
		return fmt.Errorf("dataset %s: %w", name, err)
	}
	if err := fsutil.WriteFileAtomic(filepath.Join(dir, featuresFile), xb, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", featuresFile, err)
	}
	yb, err := encodeTarget(y)
	if err != nil {
		return fmt.Errorf("dataset %s: %w", name, err)
	}
	if err := fsutil.WriteFileAtomic(filepath.Join(dir, targetFile), yb, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", targetFile, err)
	}
	meta := Metadata{Shape: []int{len(X), nFeatures}, NSamples: len(X), NFeatures: nFeatures}
	mb, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(filepath.Join(dir, metaFile), mb, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", metaFile, err)
	}
	s.log.Info().Str("dataset", name).Int("samples", len(X)).Int("features", nFeatures).Msg("dataset saved locally")

	if push && s.vcs != nil {
		s.version(ctx, name, dir)
	}
	return nil
}

func (s *Storage) version(ctx context.Context, name, dir string) {
	if err := s.vcs.Add(ctx, dir); err != nil {
		s.log.Warn().Err(err).Str("dataset", name).Msg("dvc add failed")
		return
	}
	if err := s.vcs.Push(ctx, dir); err != nil {
		s.log.Warn().Err(err).Str("dataset", name).Msg("dvc push failed")
		return
	}
	s.log.Info().Str("dataset", name).Msg("dataset pushed to dvc remote")
}

// Load reads the snapshot for name. When the directory is missing and pull
// is set, a DVC pull is attempted first.
func (s *Storage) Load(ctx context.Context, name string, pull bool) ([][]float64, []float64, error) {
	dir, err := s.dir(name)
	if err != nil {
		return nil, nil, err
	}
	if pull && s.vcs != nil && !fsutil.PathExists(dir) {
		if err := s.vcs.Pull(ctx, dir); err != nil {
			s.log.Warn().Err(err).Str("dataset", name).Msg("dvc pull failed")
		}
	}
	xPath := filepath.Join(dir, featuresFile)
	yPath := filepath.Join(dir, targetFile)
	if !fsutil.FileExists(xPath) || !fsutil.FileExists(yPath) {
		return nil, nil, datasetNotFoundError{name: name}
	}
	X, err := readFeatures(xPath)
	if err != nil {
		return nil, nil, fmt.Errorf("dataset %s: %w", name, err)
	}
	y, err := readTarget(yPath)
	if err != nil {
		return nil, nil, fmt.Errorf("dataset %s: %w", name, err)
	}
	s.log.Info().Str("dataset", name).Msg("dataset loaded")
	return X, y, nil
}

// ReadMetadata returns the metadata.json of a snapshot.
func (s *Storage) ReadMetadata(name string) (Metadata, error) {
	dir, err := s.dir(name)
	if err != nil {
		return Metadata{}, err
	}
	b, err := os.ReadFile(filepath.Join(dir, metaFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Metadata{}, datasetNotFoundError{name: name}
		}
		return Metadata{}, err
	}
	var m Metadata
	if err := json.Unmarshal(b, &m); err != nil {
		return Metadata{}, fmt.Errorf("parse dataset metadata: %w", err)
	}
	return m, nil
}
