package mirror

import (
	"context"
	"log"
	"path/filepath"

	"github.com/solusnoir/solus/media"
)

// NoopMirror accepts every upload without sending it anywhere.
type NoopMirror struct{}

func (NoopMirror) Mirror(ctx context.Context, storedPath string, category media.Category) (string, error) {
	log.Println("Received no-op mirror request - dumping request information")
	log.Printf("Path: %v", storedPath)
	log.Printf("Bucket: %v", BucketFor(category))

	return "noop-" + filepath.Base(storedPath), nil
}

func (NoopMirror) List(ctx context.Context, bucket Bucket, pageSize int) ([]RemoteObject, error) {
	return []RemoteObject{}, nil
}
