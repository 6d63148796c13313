// Package service implements the request orchestration behind the HTTP API:
// it resolves model types, trains, snapshots the training data, records the
// run and hands the result to the model store.
package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"mlserve/internal/estimator"
	"mlserve/internal/manager"
	"mlserve/internal/registry"
	"mlserve/internal/tracking"
	"mlserve/pkg/types"
)

// Store is the subset of *manager.Manager the service needs.
type Store interface {
	Exists(name string) bool
	Save(ctx context.Context, name string, m estimator.Model, typeName string) error
	Load(ctx context.Context, name string) (estimator.Model, error)
	Delete(ctx context.Context, name string) error
	ListNames() []string
	GetInfo(name string) (types.ModelInfo, error)
	Status() types.StatusResponse
	Ready() bool
}

// DatasetSaver snapshots training data.
type DatasetSaver interface {
	Save(ctx context.Context, name string, X [][]float64, y []float64, push bool) error
}

// Config wires a Service. Datasets and Tracker are optional.
type Config struct {
	Registry *registry.Registry
	Store    Store
	Datasets DatasetSaver
	Tracker  tracking.Tracker
	Logger   *zerolog.Logger
}

type Service struct {
	reg      *registry.Registry
	store    Store
	datasets DatasetSaver
	tracker  tracking.Tracker
	log      zerolog.Logger

	// replaceMu serializes delete-then-save so two trainings of one name
	// cannot interleave.
	replaceMu sync.Mutex
}

func New(cfg Config) *Service {
	s := &Service{
		reg:      cfg.Registry,
		store:    cfg.Store,
		datasets: cfg.Datasets,
		tracker:  cfg.Tracker,
		log:      zerolog.Nop(),
	}
	if s.reg == nil {
		s.reg = registry.Default()
	}
	if s.tracker == nil {
		s.tracker = tracking.Noop{}
	}
	if cfg.Logger != nil {
		s.log = cfg.Logger.With().Str("component", "service").Logger()
	}
	return s
}

// DatasetName is the snapshot name used for a model's training data.
func DatasetName(modelName string) string { return modelName + "_train_data" }

// Train fits a new model and stores it under req.ModelName, replacing any
// existing model of that name. The old model is only removed once the new
// one has trained successfully.
func (s *Service) Train(ctx context.Context, req types.TrainRequest) (types.TrainResponse, error) {
	log := s.log.With().Str("model", req.ModelName).Str("type", req.ModelType).Logger()
	log.Info().Int("samples", len(req.XTrain)).Msg("training model")

	ctor, err := s.reg.Resolve(req.ModelType)
	if err != nil {
		return types.TrainResponse{}, err
	}
	if err := manager.ValidateName(req.ModelName); err != nil {
		return types.TrainResponse{}, err
	}
	model, err := ctor(estimator.Params(req.Hyperparameters))
	if err != nil {
		return types.TrainResponse{}, err
	}

	if s.datasets != nil {
		if err := s.datasets.Save(ctx, DatasetName(req.ModelName), req.XTrain, req.YTrain, true); err != nil {
			return types.TrainResponse{}, fmt.Errorf("save training data: %w", err)
		}
	}

	if err := model.Train(req.XTrain, req.YTrain); err != nil {
		return types.TrainResponse{}, err
	}

	s.track(ctx, log, req, model)

	s.replaceMu.Lock()
	defer s.replaceMu.Unlock()
	if s.store.Exists(req.ModelName) {
		log.Info().Msg("model exists, replacing")
		if err := s.store.Delete(ctx, req.ModelName); err != nil && !manager.IsModelNotFound(err) {
			return types.TrainResponse{}, err
		}
	}
	if err := s.store.Save(ctx, req.ModelName, model, req.ModelType); err != nil {
		return types.TrainResponse{}, err
	}
	log.Info().Msg("model trained successfully")
	return types.TrainResponse{
		Message:   "Model trained successfully",
		ModelName: req.ModelName,
		ModelType: req.ModelType,
	}, nil
}

// track records the run; failures are logged and dropped.
func (s *Service) track(ctx context.Context, log zerolog.Logger, req types.TrainRequest, model estimator.Model) {
	if _, off := s.tracker.(tracking.Noop); off {
		return
	}
	artifact, err := estimator.Encode(model)
	if err != nil {
		log.Warn().Err(err).Msg("encode model for tracking")
	}
	nFeatures := 0
	if len(req.XTrain) > 0 {
		nFeatures = len(req.XTrain[0])
	}
	run := tracking.Run{
		ModelName:       req.ModelName,
		ModelType:       req.ModelType,
		Hyperparameters: req.Hyperparameters,
		NSamples:        len(req.XTrain),
		NFeatures:       nFeatures,
		Artifact:        artifact,
	}
	if err := s.tracker.TrackTraining(ctx, run); err != nil {
		log.Warn().Err(err).Msg("experiment tracking failed")
	}
}

// Predict runs the stored model on req.X.
func (s *Service) Predict(ctx context.Context, req types.PredictRequest) (types.PredictResponse, error) {
	model, err := s.store.Load(ctx, req.ModelName)
	if err != nil {
		return types.PredictResponse{}, err
	}
	preds, err := model.Predict(req.X)
	if err != nil {
		return types.PredictResponse{}, err
	}
	s.log.Debug().Str("model", req.ModelName).Int("rows", len(req.X)).Msg("predictions made")
	return types.PredictResponse{ModelName: req.ModelName, Predictions: preds}, nil
}

// ListModels returns every stored model, sorted by name.
func (s *Service) ListModels() []types.ModelInfo {
	names := s.store.ListNames()
	out := make([]types.ModelInfo, 0, len(names))
	for _, name := range names {
		info, err := s.store.GetInfo(name)
		if err != nil {
			// deleted between ListNames and GetInfo
			continue
		}
		out = append(out, info)
	}
	return out
}

func (s *Service) GetModel(name string) (types.ModelInfo, error) {
	return s.store.GetInfo(name)
}

func (s *Service) DeleteModel(ctx context.Context, name string) error {
	if err := s.store.Delete(ctx, name); err != nil {
		return err
	}
	s.log.Info().Str("model", name).Msg("model deleted")
	return nil
}

// ModelTypes documents every registered type in registration order.
func (s *Service) ModelTypes() []types.ModelType {
	descs := s.reg.DescribeAll()
	out := make([]types.ModelType, 0, len(descs))
	for _, d := range descs {
		out = append(out, types.ModelType{Name: d.Name, Description: d.Description, Hyperparameters: d.Hyperparameters})
	}
	return out
}

func (s *Service) Status() types.StatusResponse { return s.store.Status() }

func (s *Service) Ready() bool { return s.store.Ready() }
