package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/desertthunder/smartsync/internal/shared"
)

const fileExt = ".json"

// FileStore keeps one directory per owner under root and one JSON file per document.
type FileStore struct {
	root string
}

// NewFileStore creates root if needed.
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: data_dir is required for file storage", shared.ErrMissingConfig)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating data dir: %v", shared.ErrPersistence, err)
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) path(ownerID, key string) string {
	return filepath.Join(s.root, ownerID, key+fileExt)
}

func (s *FileStore) Read(ctx context.Context, ownerID, key string) ([]byte, error) {
	if err := checkAddress(ownerID, key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path(ownerID, key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s/%s: %v", shared.ErrPersistence, ownerID, key, err)
	}
	return data, nil
}

// WriteAtomic writes data to a temporary file in the owner directory, syncs it and renames it
// over the target.
func (s *FileStore) WriteAtomic(ctx context.Context, ownerID, key string, data []byte) error {
	if err := checkAddress(ownerID, key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Join(s.root, ownerID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: creating owner dir: %v", shared.ErrPersistence, err)
	}

	tmp, err := os.CreateTemp(dir, "."+key+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %v", shared.ErrPersistence, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("%w: writing %s: %v", shared.ErrPersistence, key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("%w: syncing %s: %v", shared.ErrPersistence, key, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("%w: closing %s: %v", shared.ErrPersistence, key, err)
	}
	if err := os.Rename(tmpName, s.path(ownerID, key)); err != nil {
		cleanup()
		return fmt.Errorf("%w: replacing %s: %v", shared.ErrPersistence, key, err)
	}
	return nil
}

func (s *FileStore) Delete(ctx context.Context, ownerID, key string) error {
	if err := checkAddress(ownerID, key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err := os.Remove(s.path(ownerID, key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: deleting %s/%s: %v", shared.ErrPersistence, ownerID, key, err)
	}

	// drop the owner directory once empty so Owners stays accurate
	if entries, err := os.ReadDir(filepath.Join(s.root, ownerID)); err == nil && len(entries) == 0 {
		os.Remove(filepath.Join(s.root, ownerID))
	}
	return nil
}

func (s *FileStore) Keys(ctx context.Context, ownerID string) ([]string, error) {
	if !shared.ValidID(ownerID) {
		return nil, fmt.Errorf("%w: owner id %q", shared.ErrInvalidInput, ownerID)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(filepath.Join(s.root, ownerID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: listing %s: %v", shared.ErrPersistence, ownerID, err)
	}

	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileExt) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, fileExt))
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *FileStore) Owners(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("%w: listing owners: %v", shared.ErrPersistence, err)
	}

	owners := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && shared.ValidID(e.Name()) {
			owners = append(owners, e.Name())
		}
	}
	sort.Strings(owners)
	return owners, nil
}

func (s *FileStore) Close() error { return nil }
