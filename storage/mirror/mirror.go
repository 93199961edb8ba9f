// Package mirror pushes locally stored media to a remote object store and
// lists what has been mirrored there.
package mirror

import (
	"context"

	"github.com/solusnoir/solus/media"
)

type Bucket int

const (
	BucketUploads Bucket = iota
	BucketBeats
)

func (b Bucket) String() string {
	if b == BucketBeats {
		return "beats"
	}

	return "uploads"
}

// BucketFor resolves the target bucket of a category.
func BucketFor(category media.Category) Bucket {
	if category == media.CategoryBeat {
		return BucketBeats
	}

	return BucketUploads
}

// RemoteObject is one entry of a bucket listing.
type RemoteObject struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

type Mirror interface {
	// Mirror uploads the file at storedPath to the bucket of its category and
	// returns the identifier the remote service assigned.
	Mirror(ctx context.Context, storedPath string, category media.Category) (string, error)

	// List returns at most pageSize objects of the bucket. Only the first page
	// is fetched.
	List(ctx context.Context, bucket Bucket, pageSize int) ([]RemoteObject, error)
}
