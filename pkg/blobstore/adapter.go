// Package blobstore implements the Blob Adapter contract (spec §4 "Blob
// Adapter", §6 "Blob Adapter contract"): GET/HEAD/LIST over an immutable,
// content-addressed store of cold-tier Parquet partitions. It is modeled on
// platform/ucl-core/internal/connector/minio's ObjectStore abstraction,
// generalized with a ranged HEAD so partition metadata can be recovered
// without downloading the whole file.
package blobstore

import (
	"context"
	"os"

	"github.com/nucleus/vectorcore/pkg/vcerrors"
)

// Adapter is the minimal operation set the Cold Search Engine and the
// Migration Policy Engine need against cold storage.
type Adapter interface {
	// Get returns the object bytes, or (nil, nil) if the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// GetRange returns `length` bytes of an object starting at `offset`, or
	// (nil, nil) if missing. A negative offset counts back from the end of
	// the object; length <= 0 reads through to the end.
	GetRange(ctx context.Context, key string, offset, length int64) ([]byte, error)

	// Head returns object size, or (-1, nil) if the key does not exist.
	Head(ctx context.Context, key string) (int64, error)

	// Put writes an object, overwriting any existing content at key.
	Put(ctx context.Context, key string, data []byte) error

	// List returns every key under prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes an object. Used by the background blob-reclaim path
	// (spec §3 Lifecycle: "enqueues a background blob-reclaim").
	Delete(ctx context.Context, key string) error
}

// Config mirrors platform/ucl-core/internal/connector/minio.Config: an
// endpoint URL selects between the real MinIO/S3 client and a local dev
// fallback.
type Config struct {
	EndpointURL     string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Bucket          string
}

// New selects an Adapter implementation the same way
// platform/ucl-core/internal/connector/minio.New does: a real S3 client for
// http/https endpoints, LocalStore otherwise.
func New(cfg Config) (Adapter, error) {
	if cfg.EndpointURL == "http://" || cfg.EndpointURL == "https://" || cfg.EndpointURL == "" {
		return NewLocalAdapter(os.TempDir() + "/vectorcore-blobstore"), nil
	}
	adapter, err := NewS3Adapter(cfg)
	if err != nil {
		return nil, vcerrors.New(vcerrors.CodeStorageError, true, err)
	}
	return adapter, nil
}

// NewFromEnv builds an Adapter from BLOB_* environment variables, following
// the xxxFromEnv() convention in platform/ucl-core/pkg/logstore/minio_store.go.
func NewFromEnv() (Adapter, error) {
	cfg := Config{
		EndpointURL:     getenv("BLOB_ENDPOINT", ""),
		Region:          getenv("BLOB_REGION", ""),
		AccessKeyID:     getenv("BLOB_ACCESS_KEY", ""),
		SecretAccessKey: getenv("BLOB_SECRET_KEY", ""),
		UseSSL:          getenv("BLOB_USE_SSL", "false") == "true",
		Bucket:          getenv("BLOB_BUCKET", "vectorcore-cold"),
	}
	return New(cfg)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
