// Package localblob stores blobs as files under a root directory. It backs
// snapshot dumps when object storage is not configured.
package localblob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/domain"
)

// Store implements domain.BlobWriter and domain.BlobReader on a directory.
type Store struct {
	root string
}

// New returns a Store rooted at dir. The directory is created on first write.
func New(dir string) *Store {
	return &Store{root: filepath.Clean(dir)}
}

func (s *Store) resolve(path string) (string, error) {
	p := filepath.Join(s.root, filepath.FromSlash(path))
	if p != s.root && !strings.HasPrefix(p, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("localblob: path %q escapes root", path)
	}
	return p, nil
}

// Put writes data to path through a temp file and rename, so readers never
// see a partial file.
func (s *Store) Put(_ context.Context, path string, data io.Reader, _ string) error {
	dst, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("localblob: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		return fmt.Errorf("localblob: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, data); err != nil {
		tmp.Close()
		return fmt.Errorf("localblob: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("localblob: close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("localblob: rename %s: %w", path, err)
	}
	return nil
}

// Get opens path. A missing file wraps domain.ErrNotFound.
func (s *Store) Get(_ context.Context, path string) (io.ReadCloser, error) {
	p, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("localblob: %s: %w", path, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("localblob: open %s: %w", path, err)
	}
	return f, nil
}

// List returns every file whose slash path starts with prefix, sorted.
func (s *Store) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var out []domain.BlobInfo
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !strings.HasPrefix(rel, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, domain.BlobInfo{
			Path:         rel,
			Size:         info.Size(),
			ContentType:  mime.TypeByExtension(filepath.Ext(rel)),
			LastModified: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("localblob: list %s: %w", prefix, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Exists reports whether path is a file.
func (s *Store) Exists(_ context.Context, path string) (bool, error) {
	p, err := s.resolve(path)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}
