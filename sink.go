package bqship

import (
	"context"
	"errors"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"golang.org/x/xerrors"
	"google.golang.org/api/googleapi"
)

// ObjectSink durably persists byte streams as addressed remote objects.
// Closing a writer blocks until the remote transfer is acknowledged.
type ObjectSink interface {
	NewWriter(ctx context.Context, object string) io.WriteCloser
	EnsureBucket(ctx context.Context, project, location string) error
	Delete(ctx context.Context, object string) error
}

type gcsSink struct {
	client *storage.Client
	bucket string
}

func newGCSSink(ctx context.Context, bucket string) (ObjectSink, error) {
	c, err := storage.NewClient(ctx)
	if err != nil {
		return nil, xerrors.Errorf("failed to build storage client: %w", err)
	}

	return &gcsSink{client: c, bucket: bucket}, nil
}

func (s *gcsSink) NewWriter(ctx context.Context, object string) io.WriteCloser {
	return s.client.Bucket(s.bucket).Object(object).NewWriter(ctx)
}

// EnsureBucket creates the staging bucket if it does not exist yet. It is
// called once per run, before any upload starts.
func (s *gcsSink) EnsureBucket(ctx context.Context, project, location string) error {
	b := s.client.Bucket(s.bucket)

	_, err := b.Attrs(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrBucketNotExist) {
		return xerrors.Errorf("failed to check bucket %s: %w", s.bucket, err)
	}

	if err := b.Create(ctx, project, &storage.BucketAttrs{Location: location}); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusConflict {
			return nil
		}
		return xerrors.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}

	return nil
}

func (s *gcsSink) Delete(ctx context.Context, object string) error {
	if err := s.client.Bucket(s.bucket).Object(object).Delete(ctx); err != nil {
		return xerrors.Errorf("failed to delete object %s: %w", object, err)
	}

	return nil
}
