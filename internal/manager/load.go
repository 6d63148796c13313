package manager

import (
	"context"
	"errors"
	"fmt"
	"os"

	"mlserve/internal/common/fsutil"
	"mlserve/internal/estimator"
	"mlserve/internal/mirror"
)

// Load returns the model stored under name. Cache hits take only the read
// lock. A miss reads the local artifact, first fetching it from the mirror
// when it is missing locally but still recorded in metadata. Concurrent
// misses for one name share a single fetch and decode, which is not
// cancelled when the caller that started it goes away.
func (m *Manager) Load(ctx context.Context, name string) (estimator.Model, error) {
	if !validName.MatchString(name) {
		return nil, ErrModelNotFound(name)
	}
	m.mu.RLock()
	mdl, ok := m.cache[name]
	m.mu.RUnlock()
	if ok {
		storeOpsTotal.WithLabelValues("load", "hit").Inc()
		return mdl, nil
	}
	// The shared fetch outlives any single caller; the remote timeout bounds it.
	shared := context.WithoutCancel(ctx)
	v, err, _ := m.loads.Do(name, func() (any, error) {
		return m.loadSlow(shared, name)
	})
	if err != nil {
		if IsModelNotFound(err) {
			storeOpsTotal.WithLabelValues("load", "not_found").Inc()
		} else {
			storeOpsTotal.WithLabelValues("load", "error").Inc()
		}
		return nil, err
	}
	return v.(estimator.Model), nil
}

func (m *Manager) loadSlow(ctx context.Context, name string) (estimator.Model, error) {
	path := m.artifactPath(name)
	var staged string
	if m.mirror != nil && !fsutil.FileExists(path) && m.Exists(name) {
		staged = m.fetchRemote(ctx, name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if staged != "" {
		// A Delete may have run while the transfer was in flight.
		if _, ok := m.meta[name]; ok && !fsutil.FileExists(path) {
			if err := os.Rename(staged, path); err != nil {
				m.log.Warn().Err(err).Str("model", name).Msg("install downloaded artifact")
			}
		}
		_ = os.Remove(staged)
	}
	if mdl, ok := m.cache[name]; ok {
		return mdl, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrModelNotFound(name)
		}
		return nil, fmt.Errorf("read artifact %s: %w", name, err)
	}
	mdl, err := estimator.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", name, err)
	}
	m.cache[name] = mdl
	m.loadsTotal.Add(1)
	storeOpsTotal.WithLabelValues("load", "ok").Inc()
	m.log.Info().Str("model", name).Str("type", mdl.Kind()).Msg("model loaded")
	// m.mu is still held: publishers must not call back into the manager.
	m.publish(EventModelLoaded, name, map[string]any{"remote": staged != ""})
	return mdl, nil
}

// fetchRemote downloads the artifact of name into a staging file in the
// store dir and returns its path, or "" when the download failed.
func (m *Manager) fetchRemote(ctx context.Context, name string) string {
	f, err := os.CreateTemp(m.dir, "."+name+".download-*")
	if err != nil {
		m.log.Warn().Err(err).Str("model", name).Msg("stage remote download")
		return ""
	}
	staged := f.Name()
	_ = f.Close()

	key := m.remoteKey(name)
	rctx, cancel := context.WithTimeout(ctx, m.remoteTimeout)
	defer cancel()
	if err := m.mirror.Download(rctx, key, staged); err != nil {
		_ = os.Remove(staged)
		m.remoteFailed("download", name, key, err)
		return ""
	}
	m.log.Info().Str("model", name).Str("key", key).Msg("artifact fetched from mirror")
	return staged
}

func (m *Manager) remoteFailed(op, name, key string, err error) {
	if errors.Is(err, mirror.ErrNotFound) {
		m.log.Warn().Str("op", op).Str("model", name).Str("key", key).Msg("object missing on mirror")
	} else {
		m.log.Warn().Err(err).Str("op", op).Str("model", name).Str("key", key).Msg("mirror call failed")
	}
	if m.remote != nil {
		m.remote.failures.Add(1)
	}
	m.publish(EventRemoteFailed, name, map[string]any{"op": op, "error": err.Error()})
}
