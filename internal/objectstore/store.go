// Package objectstore abstracts the backing blob storage behind a narrow
// interface. Snapshots only need append-only puts, gets and prefix listing.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// ErrKeyNotFound indicates the requested object does not exist.
var ErrKeyNotFound = errors.New("object key not found")

// ErrKeyExists indicates a put would overwrite an existing object. The store
// is append-only: a key, once written, is never mutated.
var ErrKeyExists = errors.New("object key already exists")

// ObjectStore is the storage contract the backup subsystem depends on.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// fsStore persists objects on an afero filesystem, one file per key.
type fsStore struct {
	fs   afero.Fs
	root string
}

// NewFSStore wires an object store rooted at dir on the given filesystem.
// Tests pass afero.NewMemMapFs(); production passes afero.NewOsFs().
// The root is cleaned because Walk reports cleaned paths; an uncleaned root
// like "./backups" would never strip from them.
func NewFSStore(fs afero.Fs, dir string) ObjectStore {
	return &fsStore{fs: fs, root: path.Clean(dir)}
}

func (s *fsStore) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	target := s.path(key)

	if exists, err := afero.Exists(s.fs, target); err != nil {
		return fmt.Errorf("failed to stat object %q: %w", key, err)
	} else if exists {
		return fmt.Errorf("put %q: %w", key, ErrKeyExists)
	}

	if err := s.fs.MkdirAll(path.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create object directory for %q: %w", key, err)
	}
	if err := afero.WriteFile(s.fs, target, data, 0o644); err != nil {
		return fmt.Errorf("failed to write object %q: %w", key, err)
	}

	return nil
}

func (s *fsStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(s.fs, s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("get %q: %w", key, ErrKeyNotFound)
		}
		return nil, fmt.Errorf("failed to read object %q: %w", key, err)
	}

	return data, nil
}

// List returns every key under prefix in lexical order.
func (s *fsStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	keys := []string{}
	err := afero.Walk(s.fs, s.root, func(p string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, os.ErrNotExist) {
				return nil
			}
			return walkErr
		}
		if info.IsDir() {
			return nil
		}

		key := strings.TrimPrefix(strings.TrimPrefix(p, s.root), "/")
		key = path.Clean(strings.ReplaceAll(key, string(os.PathSeparator), "/"))
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects under %q: %w", prefix, err)
	}

	sort.Strings(keys)
	return keys, nil
}

func (s *fsStore) path(key string) string {
	return path.Join(s.root, key)
}
