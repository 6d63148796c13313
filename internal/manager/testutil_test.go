package manager

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"mlserve/internal/estimator"
	"mlserve/internal/mirror"
)

// fakeMirror is an in-memory mirror that records calls and can be told to fail.
type fakeMirror struct {
	mu      sync.Mutex
	objects map[string][]byte
	ops     []string
	fail    error

	// gate, when set, blocks Download until closed or ctx is done;
	// started receives one value per blocked Download.
	gate    chan struct{}
	started chan struct{}
}

func newFakeMirror() *fakeMirror { return &fakeMirror{objects: map[string][]byte{}} }

func (f *fakeMirror) record(op, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, op+" "+key)
	return f.fail
}

func (f *fakeMirror) Upload(_ context.Context, localPath, key string) error {
	if err := f.record("upload", key); err != nil {
		return err
	}
	b, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.objects[key] = b
	f.mu.Unlock()
	return nil
}

func (f *fakeMirror) Download(ctx context.Context, key, localPath string) error {
	if err := f.record("download", key); err != nil {
		return err
	}
	f.mu.Lock()
	gate, started := f.gate, f.started
	f.mu.Unlock()
	if gate != nil {
		started <- struct{}{}
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	b, ok := f.objects[key]
	f.mu.Unlock()
	if !ok {
		return mirror.ErrNotFound
	}
	return os.WriteFile(localPath, b, 0o644)
}

func (f *fakeMirror) Delete(_ context.Context, key string) error {
	if err := f.record("delete", key); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[key]; !ok {
		return mirror.ErrNotFound
	}
	delete(f.objects, key)
	return nil
}

func (f *fakeMirror) List(_ context.Context, prefix string) ([]string, error) {
	if err := f.record("list", prefix); err != nil {
		return nil, err
	}
	return nil, nil
}

func (f *fakeMirror) Exists(_ context.Context, key string) (bool, error) {
	if err := f.record("exists", key); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok, nil
}

func (f *fakeMirror) Ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

func (f *fakeMirror) setFail(err error) {
	f.mu.Lock()
	f.fail = err
	f.mu.Unlock()
}

var errRemoteDown = errors.New("remote down")

func newTestManager(t *testing.T, dir string, mir mirror.Mirror) *Manager {
	t.Helper()
	m, err := New(context.Background(), Config{Dir: dir, Mirror: mir})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	return m
}

func trainedLinear(t *testing.T) estimator.Model {
	t.Helper()
	m, err := estimator.NewLinearRegression(estimator.Params{"fit_intercept": true})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Train([][]float64{{1}, {2}, {3}, {4}, {5}}, []float64{2, 4, 6, 8, 10}); err != nil {
		t.Fatal(err)
	}
	return m
}

func trainedForest(t *testing.T) estimator.Model {
	t.Helper()
	m, err := estimator.NewRandomForest(estimator.Params{"n_estimators": 5, "random_state": 7})
	if err != nil {
		t.Fatal(err)
	}
	X := [][]float64{{0, 0}, {0, 1}, {1, 0}, {5, 5}, {5, 6}, {6, 5}}
	y := []float64{0, 0, 0, 1, 1, 1}
	if err := m.Train(X, y); err != nil {
		t.Fatal(err)
	}
	return m
}

func mustPredict(t *testing.T, m estimator.Model, X [][]float64) []float64 {
	t.Helper()
	out, err := m.Predict(X)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	return out
}
