// Package artifact stores statement files as opaque bytes under flat keys.
// The local-disk backend serves single-node deployments and tests; S3, GCS
// and MinIO back shared deployments.
package artifact

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"CimplrBankImport/internal/bankimport"
	"CimplrBankImport/internal/config"
)

// ErrNotFound is returned by Read and Move for a key that does not exist.
var ErrNotFound = bankimport.ErrObjectNotFound

// Object is one listed artifact.
type Object struct {
	Key     string
	ModTime time.Time
}

// Store adds listing, used by the temp-upload janitor, to the pipeline's
// artifact contract.
type Store interface {
	bankimport.ArtifactStore
	List(ctx context.Context, prefix string) ([]Object, error)
	// Ping checks the backend is reachable, for the resource heartbeat.
	Ping(ctx context.Context) error
	Name() string
}

// Open builds the backend selected by cfg.Backend.
func Open(ctx context.Context, cfg config.Artifacts) (Store, error) {
	switch cfg.Backend {
	case "", "fs":
		return NewFS(cfg.Dir)
	case "s3":
		return NewS3(ctx, cfg.Bucket, cfg.Prefix, cfg.Region)
	case "gcs":
		return NewGCS(ctx, cfg.Bucket, cfg.Prefix)
	case "minio":
		return NewMinio(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL, cfg.Bucket, cfg.Prefix)
	default:
		return nil, fmt.Errorf("unknown artifact backend %q (want fs, s3, gcs or minio)", cfg.Backend)
	}
}

// cleanKey rejects keys that could escape the store root.
func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return "", fmt.Errorf("invalid artifact key %q", key)
	}
	c := path.Clean(key)
	if c != key || c == "." || strings.HasPrefix(c, "../") || c == ".." {
		return "", fmt.Errorf("invalid artifact key %q", key)
	}
	return c, nil
}

// objectName joins a bucket prefix and a key.
func objectName(prefix, key string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}

// trimPrefix maps an object name back to its key.
func trimPrefix(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return strings.TrimPrefix(name, prefix+"/")
}
