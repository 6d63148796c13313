package mirror

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config selects and addresses a mirror backend.
type Config struct {
	// Kind is "s3" (default) or "dir".
	Kind string
	S3   S3Config
	Dir  string
	// ProbeTimeout bounds the startup reachability probe. Zero means 5s.
	ProbeTimeout time.Duration
	Breaker      BreakerSettings
}

// Open builds the configured backend, probes it, and wraps it in a breaker.
// A probe failure returns an error; callers run without a mirror in that case.
func Open(ctx context.Context, cfg Config, log zerolog.Logger) (*Guarded, error) {
	timeout := cfg.ProbeTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	var backend Mirror
	switch strings.ToLower(cfg.Kind) {
	case "", "s3":
		s3, err := NewS3(cfg.S3)
		if err != nil {
			return nil, err
		}
		pctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := s3.EnsureBucket(pctx); err != nil {
			return nil, fmt.Errorf("remote mirror unreachable: %w", err)
		}
		backend = s3
		if cfg.Breaker.Name == "" {
			cfg.Breaker.Name = "s3:" + cfg.S3.Bucket
		}
	case "dir":
		d, err := NewDir(cfg.Dir)
		if err != nil {
			return nil, err
		}
		backend = d
		if cfg.Breaker.Name == "" {
			cfg.Breaker.Name = "dir"
		}
	default:
		return nil, fmt.Errorf("unknown mirror kind %q", cfg.Kind)
	}
	return NewGuarded(backend, cfg.Breaker, log), nil
}
