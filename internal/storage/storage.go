// Package storage keeps uploaded batch files, archives and PDFs.
package storage

import (
	"context"
	"crypto/rand"
	"errors"
	"path"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/oklog/ulid/v2"
)

var (
	ErrNotFound   = errors.New("object_not_found")
	ErrInvalidKey = errors.New("invalid_object_key")
)

// ObjectStorage is a flat key/value blob store.
type ObjectStorage interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// NewKey builds "<prefix>/<ulid>-<slugged name><ext>". ULIDs sort by
// creation time, so listings under a prefix come back in upload order.
func NewKey(prefix, filename string, now time.Time) string {
	ext := strings.ToLower(path.Ext(filename))
	base := slug.Make(strings.TrimSuffix(path.Base(filename), path.Ext(filename)))
	if base == "" {
		base = "file"
	}
	id := ulid.MustNew(ulid.Timestamp(now), ulid.Monotonic(rand.Reader, 0))
	return path.Join(strings.Trim(prefix, "/"), strings.ToLower(id.String())+"-"+base+ext)
}

func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") {
		return ErrInvalidKey
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "." || part == "" {
			return ErrInvalidKey
		}
	}
	return nil
}
