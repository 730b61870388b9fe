package cache

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/kiiskristo/marketpulse-backend/internal/metrics"
	"github.com/kiiskristo/marketpulse-backend/pkg/errors"
)

// FileStore keeps one file per key under dir/namespace. Freshness is judged
// from the file's modification time.
type FileStore struct {
	dir string
	now func() time.Time
}

// NewFileStore creates the root directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create cache dir %s", dir)
	}
	return &FileStore{dir: dir, now: time.Now}, nil
}

func (s *FileStore) path(namespace, key string) string {
	return filepath.Join(s.dir, SanitizeKey(namespace), key+".json")
}

// Get implements Store.
func (s *FileStore) Get(_ context.Context, namespace, key string, expiry Expiry) ([]byte, bool, error) {
	p := s.path(namespace, key)

	info, err := os.Stat(p)
	if errors.Is(err, os.ErrNotExist) {
		metrics.RecordCacheLookup(namespace, false, nil)
		return nil, false, nil
	}
	if err != nil {
		metrics.RecordCacheLookup(namespace, false, err)
		return nil, false, errors.Wrap(err, "stat cache entry")
	}
	if !expiry.Fresh(info.ModTime(), s.now()) {
		metrics.RecordCacheLookup(namespace, false, nil)
		return nil, false, nil
	}

	data, err := os.ReadFile(p)
	if err != nil {
		metrics.RecordCacheLookup(namespace, false, err)
		return nil, false, errors.Wrap(err, "read cache entry")
	}
	metrics.RecordCacheLookup(namespace, true, nil)
	return data, true, nil
}

// Set implements Store. The entry is written to a temp file and renamed so
// concurrent readers never see a partial value.
func (s *FileStore) Set(_ context.Context, namespace, key string, value []byte, _ Expiry) error {
	p := s.path(namespace, key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return errors.Wrap(err, "create cache namespace")
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".tmp-*")
	if err != nil {
		return errors.Wrap(err, "create cache temp file")
	}
	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return errors.Wrap(err, "write cache entry")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return errors.Wrap(err, "close cache entry")
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		_ = os.Remove(tmp.Name())
		return errors.Wrap(err, "commit cache entry")
	}
	return nil
}

// Prune removes entries last written more than maxAge ago and returns how
// many were removed. Entries that vanish concurrently are skipped.
func (s *FileStore) Prune(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := s.now().Add(-maxAge)
	removed := 0

	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, errors.Wrap(err, "prune cache")
	}
	return removed, nil
}
