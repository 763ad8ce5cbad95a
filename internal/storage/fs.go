package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/starford/lorekeeper/internal/apperr"
	"github.com/starford/lorekeeper/internal/checksum"
)

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path to the data directory
}

var _ Provider = (*FS)(nil)

// NewFS creates a new FS provider rooted at the given directory,
// creating it when missing.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute root directory.
func (f *FS) Root() string {
	return f.root
}

// safePath resolves a relative path against the root and rejects
// any result that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	abs, err := filepath.Abs(filepath.Join(f.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: path escapes root: %s", rel)
	}
	return abs, nil
}

// Abs resolves path under the root.
func (f *FS) Abs(path string) (string, error) {
	return f.safePath(path)
}

// List returns the files directly under dir whose names end with ext,
// sorted by path. Temp files are skipped.
func (f *FS) List(dir, ext string) ([]FileInfo, error) {
	base, err := f.safePath(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(base)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: list %s: %w", dir, err)
	}
	var out []FileInfo
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ext) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("storage: stat %s: %w", name, err)
		}
		data, err := os.ReadFile(filepath.Join(base, name))
		if err != nil {
			return nil, fmt.Errorf("storage: read %s: %w", name, err)
		}
		rel, _ := filepath.Rel(f.root, filepath.Join(base, name))
		out = append(out, FileInfo{
			Path:      rel,
			Checksum:  checksum.Sum(data),
			Size:      info.Size(),
			UpdatedAt: info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Read returns the raw bytes of a stored file. A missing file yields apperr.ErrNotFound.
func (f *FS) Read(path string) ([]byte, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("storage: read %s: %w", path, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return data, nil
}

// Write atomically writes content: tmp file → fsync → rename.
func (f *FS) Write(path string, content []byte) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperr.Persistence("storage: mkdir", err)
	}

	tmp, err := os.CreateTemp(dir, ".lorekeeper-tmp-*")
	if err != nil {
		return apperr.Persistence("storage: create temp", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return apperr.Persistence("storage: write temp", err)
	}
	if err := tmp.Sync(); err != nil {
		return apperr.Persistence("storage: fsync", err)
	}
	if err := tmp.Close(); err != nil {
		return apperr.Persistence("storage: close temp", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return apperr.Persistence("storage: rename", err)
	}
	success = true
	return nil
}

// Delete removes a stored file. A missing file yields apperr.ErrNotFound.
func (f *FS) Delete(path string) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("storage: delete %s: %w", path, apperr.ErrNotFound)
		}
		return apperr.Persistence("storage: delete "+path, err)
	}
	return nil
}

// Exists reports whether path names a regular file under the root.
func (f *FS) Exists(path string) bool {
	abs, err := f.safePath(path)
	if err != nil {
		return false
	}
	info, err := os.Stat(abs)
	return err == nil && info.Mode().IsRegular()
}

// ReadJSON decodes the JSON file at path into v.
func ReadJSON(p Provider, path string, v any) error {
	data, err := p.Read(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("storage: decode %s: %w", path, err)
	}
	return nil
}

// WriteJSON encodes v as indented JSON and writes it atomically.
func WriteJSON(p Provider, path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", path, err)
	}
	return p.Write(path, append(data, '\n'))
}
