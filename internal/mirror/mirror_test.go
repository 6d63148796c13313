package mirror

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
)

func TestObjectKey(t *testing.T) {
	cases := []struct{ prefix, name, want string }{
		{"models", "m1", "models/m1.model"},
		{"/models/", "m1", "models/m1.model"},
		{"", "m1", "m1.model"},
	}
	for _, c := range cases {
		if got := ObjectKey(c.prefix, c.name, ".model"); got != c.want {
			t.Fatalf("ObjectKey(%q,%q)=%q want %q", c.prefix, c.name, got, c.want)
		}
	}
}

func TestParseEndpoint(t *testing.T) {
	cases := []struct {
		in     string
		ssl    bool
		host   string
		secure bool
	}{
		{"http://localhost:9000", true, "localhost:9000", false},
		{"https://s3.example.com", false, "s3.example.com", true},
		{"minio:9000", true, "minio:9000", true},
	}
	for _, c := range cases {
		host, secure, err := parseEndpoint(c.in, c.ssl)
		if err != nil {
			t.Fatalf("%s: %v", c.in, err)
		}
		if host != c.host || secure != c.secure {
			t.Fatalf("%s: got %s %v", c.in, host, secure)
		}
	}
	if _, _, err := parseEndpoint("", false); err == nil {
		t.Fatalf("expected error for empty endpoint")
	}
}

func TestNewS3_RequiresBucket(t *testing.T) {
	if _, err := NewS3(S3Config{Endpoint: "localhost:9000"}); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := NewS3(S3Config{Endpoint: "localhost:9000", Bucket: "b"}); err != nil {
		t.Fatalf("NewS3: %v", err)
	}
}

func TestDirRoundTrip(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	d, err := NewDir(filepath.Join(root, "remote"))
	if err != nil {
		t.Fatal(err)
	}
	src := filepath.Join(root, "a.model")
	if err := os.WriteFile(src, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	key := ObjectKey("models", "a", ".model")
	if err := d.Upload(ctx, src, key); err != nil {
		t.Fatalf("upload: %v", err)
	}
	ok, err := d.Exists(ctx, key)
	if err != nil || !ok {
		t.Fatalf("exists: %v %v", ok, err)
	}
	keys, err := d.List(ctx, "models/")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"models/a.model"}, keys); diff != "" {
		t.Fatalf("list (-want +got):\n%s", diff)
	}
	dst := filepath.Join(root, "local", "a.model")
	if err := d.Download(ctx, key, dst); err != nil {
		t.Fatalf("download: %v", err)
	}
	b, _ := os.ReadFile(dst)
	if string(b) != "payload" {
		t.Fatalf("download content %q", b)
	}
	if err := d.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := d.Delete(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
	if err := d.Download(ctx, key, dst); !errors.Is(err, ErrNotFound) {
		t.Fatalf("download missing: %v", err)
	}
}

func TestDirRejectsEscapingKey(t *testing.T) {
	d, err := NewDir(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Exists(context.Background(), "../etc/passwd"); err == nil {
		t.Fatalf("expected invalid key error")
	}
}

type failingMirror struct {
	calls int
	err   error
}

func (f *failingMirror) Upload(context.Context, string, string) error { f.calls++; return f.err }
func (f *failingMirror) Download(context.Context, string, string) error {
	f.calls++
	return f.err
}
func (f *failingMirror) Delete(context.Context, string) error { f.calls++; return f.err }
func (f *failingMirror) List(context.Context, string) ([]string, error) {
	f.calls++
	return nil, f.err
}
func (f *failingMirror) Exists(context.Context, string) (bool, error) {
	f.calls++
	return false, f.err
}

func TestGuardedOpensAfterFailures(t *testing.T) {
	fm := &failingMirror{err: errors.New("connection refused")}
	g := NewGuarded(fm, BreakerSettings{Name: "test-open", ConsecutiveFailures: 2, OpenTimeout: time.Hour}, zerolog.Nop())
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := g.Upload(ctx, "x", "k"); err == nil {
			t.Fatalf("expected failure")
		}
	}
	if g.State() != "open" {
		t.Fatalf("state=%s want open", g.State())
	}
	if err := g.Upload(ctx, "x", "k"); !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open-state rejection, got %v", err)
	}
	if fm.calls != 2 {
		t.Fatalf("backend called %d times while open", fm.calls)
	}
}

func TestGuardedNotFoundDoesNotTrip(t *testing.T) {
	fm := &failingMirror{err: ErrNotFound}
	g := NewGuarded(fm, BreakerSettings{Name: "test-notfound", ConsecutiveFailures: 1}, zerolog.Nop())
	for i := 0; i < 3; i++ {
		if err := g.Download(context.Background(), "k", "x"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("want ErrNotFound, got %v", err)
		}
	}
	if g.State() != "closed" {
		t.Fatalf("state=%s want closed", g.State())
	}
}

func TestOpenDirAndUnknownKind(t *testing.T) {
	g, err := Open(context.Background(), Config{Kind: "dir", Dir: t.TempDir()}, zerolog.Nop())
	if err != nil || g == nil {
		t.Fatalf("open dir: %v", err)
	}
	if _, err := Open(context.Background(), Config{Kind: "ftp"}, zerolog.Nop()); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}
