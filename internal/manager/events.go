package manager

// Event names published by the manager.
const (
	EventModelSaved   = "model_saved"
	EventModelLoaded  = "model_loaded"
	EventModelDeleted = "model_deleted"
	EventRemoteFailed = "remote_failed"
)

// Event represents a manager lifecycle event.
// Minimal and stable: name + model name and optional fields via key/values.
type Event struct {
	Name   string
	Model  string
	Fields map[string]any
}

// EventPublisher receives events from the manager. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

// SetEventPublisher replaces the publisher; nil restores the no-op default.
func (m *Manager) SetEventPublisher(p EventPublisher) {
	if p == nil {
		p = noopPublisher{}
	}
	m.pubMu.Lock()
	m.pub = p
	m.pubMu.Unlock()
}

func (m *Manager) publish(name, model string, fields map[string]any) {
	m.pubMu.RLock()
	p := m.pub
	m.pubMu.RUnlock()
	p.Publish(Event{Name: name, Model: model, Fields: fields})
}
