package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCS stores artifacts in a Cloud Storage bucket. It relies on Application
// Default Credentials.
type GCS struct {
	client *storage.Client
	bucket *storage.BucketHandle
	prefix string
}

func NewGCS(ctx context.Context, bucket, prefix string) (*GCS, error) {
	if bucket == "" {
		return nil, errors.New("gcs: ARTIFACT_BUCKET is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCS{client: client, bucket: client.Bucket(bucket), prefix: prefix}, nil
}

func (s *GCS) Name() string { return "artifacts:gcs" }

func (s *GCS) Ping(ctx context.Context) error {
	_, err := s.bucket.Attrs(ctx)
	return err
}

func (s *GCS) Close() error { return s.client.Close() }

func (s *GCS) object(key string) (*storage.ObjectHandle, error) {
	k, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	return s.bucket.Object(objectName(s.prefix, k)), nil
}

func (s *GCS) Put(ctx context.Context, key string, data []byte) error {
	obj, err := s.object(key)
	if err != nil {
		return err
	}
	w := obj.NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write gcs object %s: %w", obj.ObjectName(), err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload %s: %w", obj.ObjectName(), err)
	}
	return nil
}

func (s *GCS) Exists(ctx context.Context, key string) (bool, error) {
	obj, err := s.object(key)
	if err != nil {
		return false, err
	}
	_, err = obj.Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat gcs object %s: %w", obj.ObjectName(), err)
	}
	return true, nil
}

func (s *GCS) Read(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.object(key)
	if err != nil {
		return nil, err
	}
	rc, err := obj.NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("read gcs object %s: %w", obj.ObjectName(), err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (s *GCS) Delete(ctx context.Context, key string) error {
	obj, err := s.object(key)
	if err != nil {
		return err
	}
	if err := obj.Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete gcs object %s: %w", obj.ObjectName(), err)
	}
	return nil
}

func (s *GCS) Move(ctx context.Context, src, dst string) error {
	from, err := s.object(src)
	if err != nil {
		return err
	}
	to, err := s.object(dst)
	if err != nil {
		return err
	}
	if _, err := to.CopierFrom(from).Run(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, src)
		}
		return fmt.Errorf("copy gcs object %s to %s: %w", from.ObjectName(), to.ObjectName(), err)
	}
	return s.Delete(ctx, src)
}

func (s *GCS) List(ctx context.Context, prefix string) ([]Object, error) {
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: objectName(s.prefix, prefix)})
	var out []Object
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list gcs objects: %w", err)
		}
		out = append(out, Object{Key: trimPrefix(s.prefix, attrs.Name), ModTime: attrs.Updated})
	}
	return out, nil
}
