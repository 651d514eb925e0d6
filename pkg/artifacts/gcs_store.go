//go:build gcp

package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

type GCSStoreConfig struct {
	Bucket string
	Prefix string
}

// GCSStore keeps content objects in a Cloud Storage bucket. Credentials
// come from Application Default Credentials.
type GCSStore struct {
	client *storage.Client
	bucket *storage.BucketHandle
	prefix string
}

func NewGCSStore(ctx context.Context, cfg GCSStoreConfig) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("artifacts: gcs client: %w", err)
	}
	return &GCSStore{client: client, bucket: client.Bucket(cfg.Bucket), prefix: cfg.Prefix}, nil
}

func (s *GCSStore) handle(digest string) (*storage.ObjectHandle, error) {
	key, err := objectKey(digest)
	if err != nil {
		return nil, err
	}
	return s.bucket.Object(s.prefix + key), nil
}

// Store writes with a DoesNotExist precondition; losing that race to an
// identical upload still means the content is there.
func (s *GCSStore) Store(ctx context.Context, data []byte) (string, error) {
	d := Digest(data)
	obj, err := s.handle(d)
	if err != nil {
		return "", err
	}
	if ok, err := s.exists(ctx, obj); err != nil || ok {
		return d, err
	}

	w := obj.If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("artifacts: gcs write %s: %w", d, err)
	}
	if err := w.Close(); err != nil {
		if ok, _ := s.exists(ctx, obj); ok {
			return d, nil
		}
		return "", fmt.Errorf("artifacts: gcs commit %s: %w", d, err)
	}
	return d, nil
}

func (s *GCSStore) Get(ctx context.Context, digest string) ([]byte, error) {
	obj, err := s.handle(digest)
	if err != nil {
		return nil, err
	}
	r, err := obj.NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, notFound(digest)
	}
	if err != nil {
		return nil, fmt.Errorf("artifacts: gcs read %s: %w", digest, err)
	}
	defer func() { _ = r.Close() }()
	return io.ReadAll(r)
}

func (s *GCSStore) Exists(ctx context.Context, digest string) (bool, error) {
	obj, err := s.handle(digest)
	if err != nil {
		return false, err
	}
	return s.exists(ctx, obj)
}

func (s *GCSStore) exists(ctx context.Context, obj *storage.ObjectHandle) (bool, error) {
	_, err := obj.Attrs(ctx)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrObjectNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("artifacts: gcs attrs %s: %w", obj.ObjectName(), err)
	}
}

func (s *GCSStore) Delete(ctx context.Context, digest string) error {
	obj, err := s.handle(digest)
	if err != nil {
		return err
	}
	if err := obj.Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("artifacts: gcs delete %s: %w", digest, err)
	}
	return nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
