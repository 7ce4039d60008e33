package storage

import (
	"context"
	"fmt"
	"io"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// Client is an interface for the subset of the Cloud Storage API used by the
// Vision templates.
// Ref: https://pkg.go.dev/cloud.google.com/go/storage
// This interface is used for mocking the gcs.Client in unit tests.
type Client interface {
	// Attrs returns the metadata of the object at loc. It returns
	// gcs.ErrObjectNotExist if the object does not exist.
	Attrs(ctx context.Context, loc Location) (*gcs.ObjectAttrs, error)
	// ListDirectory returns the metadata of the objects directly under
	// bucket/prefix, excluding objects in nested folders.
	ListDirectory(ctx context.Context, bucket, prefix string) ([]*gcs.ObjectAttrs, error)
	// Content returns the full content of the object at loc.
	Content(ctx context.Context, loc Location) ([]byte, error)
	// SaveBytes writes data to the object at loc with the given content type.
	SaveBytes(ctx context.Context, loc Location, data []byte, contentType string) error
}

type gcsClient struct {
	storageClient *gcs.Client
}

// NewClient wraps a Cloud Storage client in the Client interface.
func NewClient(storageClient *gcs.Client) Client {
	return &gcsClient{storageClient: storageClient}
}

func (s *gcsClient) Attrs(ctx context.Context, loc Location) (*gcs.ObjectAttrs, error) {
	return s.storageClient.Bucket(loc.Bucket()).Object(loc.Object()).Attrs(ctx)
}

func (s *gcsClient) ListDirectory(ctx context.Context, bucket, prefix string) ([]*gcs.ObjectAttrs, error) {
	it := s.storageClient.Bucket(bucket).Objects(ctx, &gcs.Query{
		Prefix:    prefix,
		Delimiter: "/", /* =current directory only */
	})

	var attrs []*gcs.ObjectAttrs
	for {
		objAttrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects under gs://%s/%s: %w", bucket, prefix, err)
		}
		// Delimited listings include synthetic entries for nested folders,
		// carrying only Prefix.
		if objAttrs.Name == "" {
			continue
		}
		attrs = append(attrs, objAttrs)
	}
	return attrs, nil
}

func (s *gcsClient) Content(ctx context.Context, loc Location) ([]byte, error) {
	reader, err := s.storageClient.Bucket(loc.Bucket()).Object(loc.Object()).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open reader for %s: %w", loc, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", loc, err)
	}
	return data, nil
}

func (s *gcsClient) SaveBytes(ctx context.Context, loc Location, data []byte, contentType string) error {
	writer := s.storageClient.Bucket(loc.Bucket()).Object(loc.Object()).NewWriter(ctx)
	writer.ContentType = contentType

	_, err := writer.Write(data)
	if err != nil {
		return fmt.Errorf("failed to write to %s: %w", loc, err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close writer for %s: %w", loc, err)
	}

	return nil
}
