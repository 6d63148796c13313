package manager

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"mlserve/internal/estimator"
	"mlserve/internal/mirror"
)

func TestRemoteFailuresNeverSurface(t *testing.T) {
	fm := newFakeMirror()
	fm.setFail(errRemoteDown)
	pub := NewMemoryPublisher()
	m, err := New(ctx, Config{Dir: t.TempDir(), Mirror: fm, Publisher: pub})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Save(ctx, "r", trainedLinear(t), estimator.KindLinearRegression); err != nil {
		t.Fatalf("Save with dead mirror: %v", err)
	}
	if _, err := m.Load(ctx, "r"); err != nil {
		t.Fatalf("Load with dead mirror: %v", err)
	}
	if err := m.Delete(ctx, "r"); err != nil {
		t.Fatalf("Delete with dead mirror: %v", err)
	}
	if err := m.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if got := m.Status().Mirror.FailuresTotal; got != 2 {
		t.Fatalf("FailuresTotal=%d want 2", got)
	}
	failed := 0
	for _, e := range pub.Events() {
		if e.Name == EventRemoteFailed {
			failed++
		}
	}
	if failed != 2 {
		t.Fatalf("remote_failed events=%d want 2", failed)
	}
}

func TestRemoteTransfersKeepOrder(t *testing.T) {
	fm := newFakeMirror()
	m, err := New(ctx, Config{Dir: t.TempDir(), Mirror: fm})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Save(ctx, "o", trainedLinear(t), estimator.KindLinearRegression); err != nil {
		t.Fatal(err)
	}
	if err := m.Delete(ctx, "o"); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(ctx); err != nil {
		t.Fatal(err)
	}
	want := []string{"upload models/o.model", "delete models/o.model"}
	if diff := cmp.Diff(want, fm.Ops()); diff != "" {
		t.Fatalf("mirror ops (-want +got):\n%s", diff)
	}
}

func TestLoadFetchesMissingArtifactFromMirror(t *testing.T) {
	dir := t.TempDir()
	remote, err := mirror.NewDir(filepath.Join(t.TempDir(), "bucket"))
	if err != nil {
		t.Fatal(err)
	}
	m, err := New(ctx, Config{Dir: dir, Mirror: remote})
	if err != nil {
		t.Fatal(err)
	}
	model := trainedForest(t)
	if err := m.Save(ctx, "far", model, estimator.KindRandomForest); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(dir, "far.model")); err != nil {
		t.Fatal(err)
	}

	pub := NewMemoryPublisher()
	m2, err := New(ctx, Config{Dir: dir, Mirror: remote, Publisher: pub})
	if err != nil {
		t.Fatal(err)
	}
	defer m2.Close(ctx)
	if !m2.Exists("far") {
		t.Fatalf("record dropped although the mirror holds the artifact")
	}
	got, err := m2.Load(ctx, "far")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	X := [][]float64{{0, 0}, {6, 6}}
	if diff := cmp.Diff(mustPredict(t, model, X), mustPredict(t, got, X)); diff != "" {
		t.Fatalf("predictions differ (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(filepath.Join(dir, "far.model")); err != nil {
		t.Fatalf("artifact not restored locally: %v", err)
	}
	evts := pub.Events()
	if len(evts) != 1 || evts[0].Name != EventModelLoaded || evts[0].Fields["remote"] != true {
		t.Fatalf("unexpected events: %+v", evts)
	}
}

func TestLoadAfterDeleteDoesNotResurrectFromMirror(t *testing.T) {
	fm := newFakeMirror()
	dir := t.TempDir()
	m := newTestManager(t, dir, fm)
	if err := m.Save(ctx, "z", trainedLinear(t), estimator.KindLinearRegression); err != nil {
		t.Fatal(err)
	}
	if err := m.Delete(ctx, "z"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Load(ctx, "z"); !IsModelNotFound(err) {
		t.Fatalf("want not found, got %v", err)
	}
	for _, op := range fm.Ops() {
		if op == "download models/z.model" {
			t.Fatalf("deleted model fetched from mirror")
		}
	}
}

func TestEnqueueAfterCloseIsDropped(t *testing.T) {
	fm := newFakeMirror()
	m, err := New(ctx, Config{Dir: t.TempDir(), Mirror: fm, MirrorQueueDepth: 1})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if err := m.Save(ctx, "late", trainedLinear(t), estimator.KindLinearRegression); err != nil {
		t.Fatalf("Save after Close: %v", err)
	}
	if got := m.Status().Mirror.DroppedTotal; got != 1 {
		t.Fatalf("DroppedTotal=%d want 1", got)
	}
	if len(fm.Ops()) != 0 {
		t.Fatalf("mirror called after Close: %v", fm.Ops())
	}
}

func TestCoalescedLoadSurvivesFirstCallerCancel(t *testing.T) {
	dir := t.TempDir()
	fm := newFakeMirror()
	m, err := New(ctx, Config{Dir: dir, Mirror: fm})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Save(ctx, "m1", trainedLinear(t), estimator.KindLinearRegression); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(dir, "m1.model")); err != nil {
		t.Fatal(err)
	}

	gate := make(chan struct{})
	fm.mu.Lock()
	fm.gate, fm.started = gate, make(chan struct{}, 4)
	started := fm.started
	fm.mu.Unlock()
	m2 := newTestManager(t, dir, fm)

	type result struct {
		model estimator.Model
		err   error
	}
	first, second := make(chan result, 1), make(chan result, 1)
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		mdl, err := m2.Load(cctx, "m1")
		first <- result{mdl, err}
	}()
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("download never started")
	}
	go func() {
		mdl, err := m2.Load(context.Background(), "m1")
		second <- result{mdl, err}
	}()
	// Let the second caller join the in-flight load, then drop the first.
	time.Sleep(50 * time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)
	close(gate)

	for name, ch := range map[string]chan result{"first": first, "second": second} {
		select {
		case r := <-ch:
			if r.err != nil {
				t.Fatalf("%s caller: %v", name, r.err)
			}
			if got := mustPredict(t, r.model, [][]float64{{6}}); got[0] < 11.999 || got[0] > 12.001 {
				t.Fatalf("%s caller predicted %v", name, got)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("%s caller did not return", name)
		}
	}
	downloads := 0
	for _, op := range fm.Ops() {
		if op == "download models/m1.model" {
			downloads++
		}
	}
	if downloads != 1 {
		t.Fatalf("downloads=%d want 1", downloads)
	}
}
