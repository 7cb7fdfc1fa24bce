package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/nucleus/vectorcore/pkg/vcerrors"
)

// LocalAdapter persists objects on disk, adapted from
// platform/ucl-core/internal/connector/minio/object_store.go's LocalStore.
// Used in dev/tests when no real blob endpoint is configured.
type LocalAdapter struct {
	root string
}

// NewLocalAdapter roots a local adapter at dir.
func NewLocalAdapter(root string) *LocalAdapter {
	if root == "" {
		root = filepath.Join(os.TempDir(), "vectorcore-blobstore")
	}
	_ = os.MkdirAll(root, 0o755)
	return &LocalAdapter{root: root}
}

func (s *LocalAdapter) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func (s *LocalAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, vcerrors.New(vcerrors.CodeStorageError, true, err)
	}
	return data, nil
}

func (s *LocalAdapter) GetRange(ctx context.Context, key string, offset, length int64) ([]byte, error) {
	data, err := s.Get(ctx, key)
	if err != nil || data == nil {
		return data, err
	}
	n := int64(len(data))
	if offset < 0 {
		offset = n + offset
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= n {
		return []byte{}, nil
	}
	end := n
	if length > 0 && offset+length < n {
		end = offset + length
	}
	return data[offset:end], nil
}

func (s *LocalAdapter) Head(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return -1, err
	}
	info, err := os.Stat(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return -1, nil
		}
		return -1, vcerrors.New(vcerrors.CodeStorageError, true, err)
	}
	return info.Size(), nil
}

func (s *LocalAdapter) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full := s.path(key)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return vcerrors.New(vcerrors.CodeStorageError, false, err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return vcerrors.New(vcerrors.CodeStorageError, true, err)
	}
	return nil
}

func (s *LocalAdapter) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	root := s.path(prefix)
	var keys []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(s.root, path)
		if relErr != nil {
			return relErr
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, vcerrors.New(vcerrors.CodeStorageError, true, err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *LocalAdapter) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return vcerrors.New(vcerrors.CodeStorageError, true, err)
	}
	return nil
}
