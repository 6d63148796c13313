package manager

import (
	"context"
	"fmt"
	"os"

	"mlserve/internal/common/fsutil"
	"mlserve/internal/estimator"
)

// Save persists a trained model under a new name. A name already present in
// the cache or in metadata is rejected; replacing a model means Delete then
// Save. The remote upload is queued and never fails the call.
func (m *Manager) Save(ctx context.Context, name string, model estimator.Model, typeName string) error {
	if !validName.MatchString(name) {
		return ErrInvalidName(name)
	}
	if !model.Trained() {
		return estimator.ErrNotTrained(model.Kind())
	}
	data, err := estimator.Encode(model)
	if err != nil {
		storeOpsTotal.WithLabelValues("save", "error").Inc()
		return fmt.Errorf("encode model %s: %w", name, err)
	}

	m.mu.Lock()
	_, cached := m.cache[name]
	_, known := m.meta[name]
	if cached || known {
		m.mu.Unlock()
		storeOpsTotal.WithLabelValues("save", "duplicate").Inc()
		return ErrDuplicateModel(name)
	}
	path := m.artifactPath(name)
	if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
		m.mu.Unlock()
		storeOpsTotal.WithLabelValues("save", "error").Inc()
		return fmt.Errorf("write artifact %s: %w", name, err)
	}
	m.meta[name] = Record{Type: typeName, Hyperparameters: model.Hyperparameters()}
	if err := m.writeMetadataLocked(); err != nil {
		delete(m.meta, name)
		_ = os.Remove(path)
		m.mu.Unlock()
		storeOpsTotal.WithLabelValues("save", "error").Inc()
		return err
	}
	m.cache[name] = model
	m.enqueue(remoteJob{op: opUpload, name: name, key: m.remoteKey(name), path: path})
	n := len(m.meta)
	m.mu.Unlock()

	m.savesTotal.Add(1)
	storedModels.Set(float64(n))
	storeOpsTotal.WithLabelValues("save", "ok").Inc()
	m.log.Info().Str("model", name).Str("type", typeName).Int("bytes", len(data)).Msg("model saved")
	m.publish(EventModelSaved, name, map[string]any{"type": typeName})
	return nil
}
