package manager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"mlserve/internal/estimator"
	"mlserve/internal/mirror"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultRemotePrefix     = "models"
	defaultRemoteTimeout    = 10 * time.Second
	defaultMirrorQueueDepth = 256
	metadataFileName        = "metadata.json"
)

// Config encapsulates all tunables for Manager construction.
type Config struct {
	// Dir holds <name>.model artifacts and metadata.json. Created if missing.
	Dir string
	// Mirror is the remote tier; nil disables it.
	Mirror mirror.Mirror
	// RemotePrefix namespaces object keys: <prefix>/<name>.model.
	RemotePrefix string
	// RemoteTimeout bounds every individual remote call.
	RemoteTimeout time.Duration
	// MirrorQueueDepth bounds pending uploads and deletes.
	MirrorQueueDepth int
	Logger           *zerolog.Logger
	Publisher        EventPublisher
}

// New opens the store: it creates Dir, loads metadata.json, drops entries
// whose artifact exists in no tier, and starts the mirror worker.
func New(ctx context.Context, cfg Config) (*Manager, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("manager: store dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	m := &Manager{
		dir:           cfg.Dir,
		metaPath:      filepath.Join(cfg.Dir, metadataFileName),
		cache:         make(map[string]estimator.Model),
		mirror:        cfg.Mirror,
		remotePrefix:  cfg.RemotePrefix,
		remoteTimeout: cfg.RemoteTimeout,
		pub:           cfg.Publisher,
		startTime:     time.Now(),
	}
	if m.remotePrefix == "" {
		m.remotePrefix = defaultRemotePrefix
	}
	if m.remoteTimeout <= 0 {
		m.remoteTimeout = defaultRemoteTimeout
	}
	if m.pub == nil {
		m.pub = noopPublisher{}
	}
	if cfg.Logger != nil {
		m.log = cfg.Logger.With().Str("component", "manager").Logger()
	} else {
		m.log = zerolog.Nop()
	}

	meta, err := readMetadata(m.metaPath)
	if err != nil {
		return nil, err
	}
	m.meta = meta
	if err := m.reconcile(ctx); err != nil {
		return nil, err
	}
	storedModels.Set(float64(len(m.meta)))

	if m.mirror != nil {
		depth := cfg.MirrorQueueDepth
		if depth <= 0 {
			depth = defaultMirrorQueueDepth
		}
		m.startRemote(depth)
	}
	m.ready.Store(true)
	m.log.Info().Str("dir", m.dir).Int("models", len(m.meta)).Bool("mirror", m.mirror != nil).Msg("model store opened")
	return m, nil
}
