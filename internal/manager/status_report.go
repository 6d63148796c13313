package manager

import (
	"time"

	"mlserve/pkg/types"
)

// breakerStater is implemented by mirror.Guarded.
type breakerStater interface{ State() string }

// Status builds a detailed status response for /status.
func (m *Manager) Status() types.StatusResponse {
	m.mu.RLock()
	resp := types.StatusResponse{
		Models:   len(m.meta),
		Cached:   len(m.cache),
		StoreDir: m.dir,
	}
	m.mu.RUnlock()

	resp.SavesTotal = m.savesTotal.Load()
	resp.LoadsTotal = m.loadsTotal.Load()
	resp.DeletesTotal = m.deletesTotal.Load()
	now := time.Now()
	resp.UptimeSeconds = int64(now.Sub(m.startTime).Seconds())
	resp.ServerTimeUnix = now.Unix()

	if q := m.remote; q != nil {
		resp.Mirror = types.MirrorStatus{
			Enabled:       true,
			QueueLen:      len(q.jobs),
			QueueCap:      cap(q.jobs),
			DroppedTotal:  q.dropped.Load(),
			FailuresTotal: q.failures.Load(),
		}
		if b, ok := m.mirror.(breakerStater); ok {
			resp.Mirror.BreakerState = b.State()
		}
	}
	return resp
}
