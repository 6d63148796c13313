// Package mirror provides the optional remote tier for model artifacts: a
// small object-store contract, an S3-compatible implementation on minio-go,
// a directory-backed implementation, and a circuit-breaking wrapper.
//
// Every call may fail with a transport error. Callers treat the mirror as
// best-effort and never let those errors reach their own callers.
package mirror

import (
	"context"
	"errors"
	"path"
	"strings"
)

// ErrNotFound is returned by Download and Delete implementations when the
// object does not exist. It is not counted as a transport failure.
var ErrNotFound = errors.New("mirror: object not found")

// Mirror is an object store keyed by slash-separated object names.
type Mirror interface {
	Upload(ctx context.Context, localPath, key string) error
	Download(ctx context.Context, key, localPath string) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// ObjectKey joins a namespace prefix, a name and an extension:
// ObjectKey("models", "m1", ".model") == "models/m1.model".
func ObjectKey(prefix, name, ext string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name + ext
	}
	return path.Join(prefix, name+ext)
}
