package ports

import (
	"context"
	"io"
)

type PutObjectInput struct {
	ObjectKey   string
	ContentType string
	Reader      io.Reader
	Size        int64
}

type PutObjectOutput struct {
	// ObjectKey is the provider's identifier: the key itself for localfs and
	// s3, the file id for gdrive.
	ObjectKey string
	Size      int64
	// PublicURL is where the published object can be fetched without
	// credentials.
	PublicURL string
}

// StorageProvider is implemented by localfs, gdrive and s3.
type StorageProvider interface {
	Provider() string

	PutObject(ctx context.Context, in PutObjectInput) (PutObjectOutput, error)
	DeleteObject(ctx context.Context, objectKey string) error

	// Ping checks that the backend is reachable and writable.
	Ping(ctx context.Context) error
}
