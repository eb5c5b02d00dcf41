package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FilePersister keeps the embedding cache in a local JSON file.
type FilePersister struct {
	Path string
}

// Load reads the cache file. A missing file is an empty cache.
func (p FilePersister) Load(_ context.Context) (map[string][]float32, error) {
	data, err := os.ReadFile(p.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string][]float32{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("oracle: read %s: %w", p.Path, err)
	}

	entries := make(map[string][]float32)
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("oracle: decode %s: %w", p.Path, err)
	}
	return entries, nil
}

// Save writes the cache to a temp file in the same directory and renames it
// over the target, so readers only ever see a complete file.
func (p FilePersister) Save(_ context.Context, entries map[string][]float32) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("oracle: encode cache: %w", err)
	}

	dir := filepath.Dir(p.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("oracle: create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(p.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("oracle: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("oracle: write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("oracle: sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("oracle: close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, p.Path); err != nil {
		return fmt.Errorf("oracle: rename to %s: %w", p.Path, err)
	}
	return nil
}
