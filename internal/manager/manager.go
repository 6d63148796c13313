package manager

import (
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"mlserve/internal/estimator"
	"mlserve/internal/mirror"
	"mlserve/pkg/types"
)

// Names become file names and object keys.
var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

type Manager struct {
	mu       sync.RWMutex
	dir      string
	metaPath string
	cache    map[string]estimator.Model
	meta     map[string]Record

	loads singleflight.Group

	mirror        mirror.Mirror
	remote        *remoteQueue
	remotePrefix  string
	remoteTimeout time.Duration

	pubMu sync.RWMutex
	pub   EventPublisher

	log       zerolog.Logger
	ready     atomic.Bool
	startTime time.Time

	savesTotal   atomic.Uint64
	loadsTotal   atomic.Uint64
	deletesTotal atomic.Uint64
}

// Ready reports whether the store is open and accepting mutations.
func (m *Manager) Ready() bool { return m.ready.Load() }

// Exists reports whether name has a metadata record. No I/O.
func (m *Manager) Exists(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.meta[name]
	return ok
}

// ListNames returns every stored model name in sorted order.
func (m *Manager) ListNames() []string {
	m.mu.RLock()
	out := make([]string, 0, len(m.meta))
	for name := range m.meta {
		out = append(out, name)
	}
	m.mu.RUnlock()
	sort.Strings(out)
	return out
}

// GetInfo returns the stored type and hyperparameters of name.
func (m *Manager) GetInfo(name string) (types.ModelInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.meta[name]
	if !ok {
		return types.ModelInfo{}, ErrModelNotFound(name)
	}
	return types.ModelInfo{Name: name, Type: rec.Type, Hyperparameters: rec.Hyperparameters.Clone()}, nil
}

func (m *Manager) artifactPath(name string) string {
	return filepath.Join(m.dir, name+estimator.ArtifactExt)
}

func (m *Manager) remoteKey(name string) string {
	return mirror.ObjectKey(m.remotePrefix, name, estimator.ArtifactExt)
}
