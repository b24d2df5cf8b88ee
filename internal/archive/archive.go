// Package archive declares blob storage for run report artifacts.
package archive

import "context"

// BlobStore writes an artifact and returns its URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}
