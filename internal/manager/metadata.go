package manager

import (
	"context"
	"errors"
	"fmt"
	"os"

	json "github.com/goccy/go-json"

	"mlserve/internal/common/fsutil"
)

// readMetadata loads metadata.json. A missing file is an empty store.
func readMetadata(path string) (map[string]Record, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make(map[string]Record), nil
		}
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	data := make(map[string]Record)
	if len(b) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, fmt.Errorf("parse metadata %s: %w", path, err)
	}
	return data, nil
}

// writeMetadataLocked rewrites metadata.json in full. Caller holds m.mu.
func (m *Manager) writeMetadataLocked() error {
	b, err := json.MarshalIndent(m.meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := fsutil.WriteFileAtomic(m.metaPath, b, 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

// reconcile drops records whose artifact is in no tier. A record whose
// remote state cannot be determined is kept; Load will retry the fetch.
func (m *Manager) reconcile(ctx context.Context) error {
	var dropped []string
	for name := range m.meta {
		if fsutil.FileExists(m.artifactPath(name)) {
			continue
		}
		if m.mirror == nil {
			dropped = append(dropped, name)
			continue
		}
		rctx, cancel := context.WithTimeout(ctx, m.remoteTimeout)
		ok, err := m.mirror.Exists(rctx, m.remoteKey(name))
		cancel()
		if err != nil {
			m.log.Warn().Err(err).Str("model", name).Msg("cannot check mirror for missing artifact; keeping record")
			continue
		}
		if !ok {
			dropped = append(dropped, name)
		}
	}
	if len(dropped) == 0 {
		return nil
	}
	for _, name := range dropped {
		delete(m.meta, name)
		m.log.Warn().Str("model", name).Msg("dropping record without artifact")
	}
	return m.writeMetadataLocked()
}
