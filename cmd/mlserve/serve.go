package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"mlserve/internal/config"
	"mlserve/internal/dataset"
	"mlserve/internal/httpapi"
	"mlserve/internal/manager"
	"mlserve/internal/mirror"
	"mlserve/internal/registry"
	"mlserve/internal/service"
	"mlserve/internal/tracking"
)

const shutdownTimeout = 5 * time.Second

func runServe(parent context.Context, cfg config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := newLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	mgrCfg := manager.Config{
		Dir:              cfg.StoreDir,
		RemotePrefix:     cfg.Remote.Prefix,
		RemoteTimeout:    time.Duration(cfg.Remote.TimeoutSeconds) * time.Second,
		MirrorQueueDepth: cfg.Remote.QueueDepth,
		Logger:           &log,
	}
	if m := openMirror(ctx, cfg.Remote, log); m != nil {
		mgrCfg.Mirror = m
	}
	mgr, err := manager.New(ctx, mgrCfg)
	if err != nil {
		return err
	}

	dsCfg := dataset.Config{DataDir: cfg.DataDir, Logger: &log}
	if cfg.Datasets.DVCEnabled {
		dsCfg.Versioner = dataset.NewDVC(cfg.Datasets.DVCBin, "")
	}
	datasets, err := dataset.New(dsCfg)
	if err != nil {
		return err
	}

	tracker, err := tracking.Open(tracking.Config{
		Backend:    cfg.Tracking.Backend,
		URI:        cfg.Tracking.URI,
		Experiment: cfg.Tracking.Experiment,
		DBPath:     cfg.Tracking.DBPath,
		Timeout:    time.Duration(cfg.Tracking.TimeoutSeconds) * time.Second,
	}, log)
	if err != nil {
		log.Warn().Err(err).Str("backend", cfg.Tracking.Backend).Msg("experiment tracking unavailable; continuing without it")
		tracker = tracking.Noop{}
	}

	svc := service.New(service.Config{
		Registry: registry.Default(),
		Store:    mgr,
		Datasets: datasets,
		Tracker:  tracker,
		Logger:   &log,
	})

	httpapi.SetLogger(log.With().Str("component", "http").Logger())
	httpapi.SetDefaultLogLevel(cfg.HTTPLogLevel)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetRequestTimeoutSeconds(cfg.RequestTimeoutSeconds)
	httpapi.SetCORSOptions(cfg.CORS.Enabled, cfg.CORS.Origins, cfg.CORS.Methods, cfg.CORS.Headers)
	httpapi.SetBaseContext(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(svc),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("store_dir", cfg.StoreDir).Bool("mirror", mgrCfg.Mirror != nil).Msg("mlserve listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			shutdownStores(mgr, tracker, log)
			return err
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown error")
	}
	shutdownStores(mgr, tracker, log)
	return nil
}

func shutdownStores(mgr *manager.Manager, tracker tracking.Tracker, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := mgr.Close(ctx); err != nil {
		log.Warn().Err(err).Msg("mirror queue not fully drained")
	}
	if err := tracker.Close(); err != nil {
		log.Warn().Err(err).Msg("close tracker")
	}
}

// openMirror returns nil when the mirror is disabled or unreachable.
func openMirror(ctx context.Context, r config.Remote, log zerolog.Logger) mirror.Mirror {
	if !r.Enabled {
		return nil
	}
	g, err := mirror.Open(ctx, mirror.Config{
		Kind: r.Kind,
		S3: mirror.S3Config{
			Endpoint:  r.Endpoint,
			AccessKey: r.AccessKey,
			SecretKey: r.SecretKey,
			Bucket:    r.Bucket,
			Region:    r.Region,
			UseSSL:    r.UseSSL,
		},
		Dir: r.Dir,
		Breaker: mirror.BreakerSettings{
			ConsecutiveFailures: r.BreakerFailures,
			OpenTimeout:         time.Duration(r.BreakerOpenSeconds) * time.Second,
		},
	}, log)
	if err != nil {
		log.Warn().Err(err).Str("kind", r.Kind).Msg("remote mirror disabled")
		return nil
	}
	return g
}
