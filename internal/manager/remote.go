package manager

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"mlserve/internal/mirror"
)

type remoteOp string

const (
	opUpload remoteOp = "upload"
	opDelete remoteOp = "delete"
)

type remoteJob struct {
	op   remoteOp
	name string
	key  string
	path string
}

// remoteQueue feeds the single mirror worker. FIFO order keeps an upload
// and a later delete of the same name in order.
type remoteQueue struct {
	mu     sync.Mutex
	closed bool
	jobs   chan remoteJob
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	dropped  atomic.Uint64
	failures atomic.Uint64
}

func (m *Manager) startRemote(depth int) {
	ctx, cancel := context.WithCancel(context.Background())
	q := &remoteQueue{
		jobs:   make(chan remoteJob, depth),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
	m.remote = q
	go m.runRemote(q)
}

// enqueue never blocks. A full or closed queue drops the job.
func (m *Manager) enqueue(j remoteJob) {
	q := m.remote
	if q == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.dropped.Add(1)
		m.log.Warn().Str("op", string(j.op)).Str("model", j.name).Msg("mirror queue closed; dropping transfer")
		return
	}
	select {
	case q.jobs <- j:
	default:
		q.dropped.Add(1)
		m.log.Warn().Str("op", string(j.op)).Str("model", j.name).Int("depth", cap(q.jobs)).Msg("mirror queue full; dropping transfer")
	}
}

func (m *Manager) runRemote(q *remoteQueue) {
	defer close(q.done)
	for j := range q.jobs {
		if q.ctx.Err() != nil {
			q.dropped.Add(1)
			continue
		}
		m.applyRemote(q.ctx, j)
	}
}

func (m *Manager) applyRemote(ctx context.Context, j remoteJob) {
	rctx, cancel := context.WithTimeout(ctx, m.remoteTimeout)
	defer cancel()
	var err error
	switch j.op {
	case opUpload:
		err = m.mirror.Upload(rctx, j.path, j.key)
	case opDelete:
		err = m.mirror.Delete(rctx, j.key)
		if errors.Is(err, mirror.ErrNotFound) {
			err = nil
		}
	}
	if err != nil {
		m.remoteFailed(string(j.op), j.name, j.key, err)
		return
	}
	m.log.Debug().Str("op", string(j.op)).Str("model", j.name).Str("key", j.key).Msg("mirror transfer done")
}

// Close stops accepting mutations to the mirror and waits for queued
// transfers. If ctx expires first, in-flight calls are cancelled and the
// remaining jobs are abandoned.
func (m *Manager) Close(ctx context.Context) error {
	m.ready.Store(false)
	q := m.remote
	if q == nil {
		return nil
	}
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()
	select {
	case <-q.done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-q.done
		return ctx.Err()
	}
}
