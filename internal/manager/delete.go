package manager

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Delete removes name from every local structure and queues the remote
// delete. A missing local artifact is not an error.
func (m *Manager) Delete(ctx context.Context, name string) error {
	if !validName.MatchString(name) {
		return ErrModelNotFound(name)
	}
	m.mu.Lock()
	_, cached := m.cache[name]
	_, known := m.meta[name]
	if !cached && !known {
		m.mu.Unlock()
		storeOpsTotal.WithLabelValues("delete", "not_found").Inc()
		return ErrModelNotFound(name)
	}
	if err := os.Remove(m.artifactPath(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		m.mu.Unlock()
		storeOpsTotal.WithLabelValues("delete", "error").Inc()
		return fmt.Errorf("remove artifact %s: %w", name, err)
	}
	delete(m.cache, name)
	delete(m.meta, name)
	m.enqueue(remoteJob{op: opDelete, name: name, key: m.remoteKey(name)})
	err := m.writeMetadataLocked()
	n := len(m.meta)
	m.mu.Unlock()

	storedModels.Set(float64(n))
	if err != nil {
		storeOpsTotal.WithLabelValues("delete", "error").Inc()
		return err
	}
	m.deletesTotal.Add(1)
	storeOpsTotal.WithLabelValues("delete", "ok").Inc()
	m.log.Info().Str("model", name).Msg("model deleted")
	m.publish(EventModelDeleted, name, nil)
	return nil
}
