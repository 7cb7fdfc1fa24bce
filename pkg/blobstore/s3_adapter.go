package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/nucleus/vectorcore/pkg/vcerrors"
)

// S3Adapter implements Adapter using the minio-go SDK, adapted from
// platform/ucl-core/internal/connector/minio/s3_client.go's S3Client.
type S3Adapter struct {
	client *minio.Client
	bucket string
}

// NewS3Adapter creates a real MinIO/S3-backed Adapter from cfg.
func NewS3Adapter(cfg Config) (*S3Adapter, error) {
	if cfg.EndpointURL == "" {
		return nil, vcerrors.New(vcerrors.CodeStorageError, true, fmt.Errorf("endpointUrl is required"))
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, vcerrors.New(vcerrors.CodeStorageError, false, fmt.Errorf("credentials are required"))
	}

	u, err := url.Parse(cfg.EndpointURL)
	if err != nil {
		return nil, vcerrors.New(vcerrors.CodeStorageError, true, fmt.Errorf("invalid endpoint URL: %w", err))
	}
	endpoint := u.Host
	if endpoint == "" {
		endpoint = cfg.EndpointURL
	}
	useSSL := cfg.UseSSL || u.Scheme == "https"

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, vcerrors.New(vcerrors.CodeStorageError, true, fmt.Errorf("failed to create minio client: %w", err))
	}
	return &S3Adapter{client: client, bucket: cfg.Bucket}, nil
}

func (s *S3Adapter) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, classify(err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, classify(err)
	}
	return data, nil
}

// GetRange maps onto an HTTP Range request. A negative offset combined
// with a positive length is rejected as an invalid range.
func (s *S3Adapter) GetRange(ctx context.Context, key string, offset, length int64) ([]byte, error) {
	opts := minio.GetObjectOptions{}
	if length > 0 {
		if err := opts.SetRange(offset, offset+length-1); err != nil {
			return nil, vcerrors.New(vcerrors.CodeStorageError, false, err)
		}
	} else if offset < 0 {
		// bytes=-N: the trailing N bytes.
		if err := opts.SetRange(0, offset); err != nil {
			return nil, vcerrors.New(vcerrors.CodeStorageError, false, err)
		}
	} else if offset > 0 {
		// bytes=N-: from offset through to the end.
		if err := opts.SetRange(offset, 0); err != nil {
			return nil, vcerrors.New(vcerrors.CodeStorageError, false, err)
		}
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, opts)
	if err != nil {
		return nil, classify(err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, classify(err)
	}
	return data, nil
}

func (s *S3Adapter) Head(ctx context.Context, key string) (int64, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return -1, nil
		}
		return -1, classify(err)
	}
	return info.Size, nil
}

func (s *S3Adapter) Put(ctx context.Context, key string, data []byte) error {
	reader := bytes.NewReader(data)
	_, err := s.client.PutObject(ctx, s.bucket, key, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

func (s *S3Adapter) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, classify(obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

func (s *S3Adapter) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return classify(err)
	}
	return nil
}

func isNotFound(err error) bool {
	if resp, ok := err.(minio.ErrorResponse); ok {
		return resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket"
	}
	return strings.Contains(strings.ToLower(err.Error()), "not found") ||
		strings.Contains(strings.ToLower(err.Error()), "no such key")
}

// classify converts minio-go errors to vcerrors, adapted from
// classifyMinioError in platform/ucl-core/internal/connector/minio/s3_client.go.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if resp, ok := err.(minio.ErrorResponse); ok {
		switch resp.Code {
		case "NoSuchBucket", "NoSuchKey":
			return nil
		case "AccessDenied":
			return vcerrors.New(vcerrors.CodeStorageError, false, err)
		}
	}
	lowered := strings.ToLower(err.Error())
	if strings.Contains(lowered, "timeout") || strings.Contains(lowered, "deadline") {
		return vcerrors.New(vcerrors.CodeBackendTimeout, true, err)
	}
	if strings.Contains(lowered, "connection refused") || strings.Contains(lowered, "unreachable") {
		return vcerrors.New(vcerrors.CodeBackendTimeout, true, err)
	}
	return vcerrors.New(vcerrors.CodeStorageError, true, err)
}
