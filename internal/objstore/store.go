package objstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a read names an object that does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Name      string
	CreatedAt time.Time
}

// Store is the object storage surface the gateway needs: folder-style
// listing, whole-object reads and writes, and browser-driven upload sessions.
type Store interface {
	// ListPrefixes returns the names of the immediate child "folders" under
	// prefix. Pass an empty prefix to list the bucket root.
	ListPrefixes(ctx context.Context, bucket, prefix string) ([]string, error)

	// ListObjects returns every object under prefix, recursively. Zero-byte
	// folder markers are skipped.
	ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)

	// ReadBytes downloads the full content of one object.
	ReadBytes(ctx context.Context, bucket, key string) ([]byte, error)

	// WriteFile uploads a local file to the given key.
	WriteFile(ctx context.Context, bucket, key, localPath string) error

	// CreateUploadSession returns a URL the browser can upload the object to
	// directly. The origin is recorded for cross-origin verification where
	// the backing store supports it.
	CreateUploadSession(ctx context.Context, bucket, key, origin string) (string, error)
}

// LatestObject returns the most recently created object in the list, by
// object creation time, and false when the list is empty.
func LatestObject(objects []ObjectInfo) (ObjectInfo, bool) {
	if len(objects) == 0 {
		return ObjectInfo{}, false
	}
	latest := objects[0]
	for _, o := range objects[1:] {
		if o.CreatedAt.After(latest.CreatedAt) {
			latest = o
		}
	}
	return latest, true
}
