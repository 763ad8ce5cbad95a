package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/starford/lorekeeper/internal/apperr"
	"github.com/starford/lorekeeper/internal/storage"
)

// RemoteFile is a file stored in the provider workspace.
type RemoteFile struct {
	ID        string
	Filename  string
	MimeType  string
	SizeBytes int64
	CreatedAt time.Time
}

func remoteFile(m anthropic.FileMetadata) RemoteFile {
	return RemoteFile{
		ID:        m.ID,
		Filename:  m.Filename,
		MimeType:  m.MimeType,
		SizeBytes: m.SizeBytes,
		CreatedAt: m.CreatedAt,
	}
}

// UploadFile uploads data as a plain-text document.
func (c *Client) UploadFile(ctx context.Context, name string, data []byte) (*RemoteFile, error) {
	meta, err := c.api.Beta.Files.Upload(ctx, anthropic.BetaFileUploadParams{
		File:  anthropic.File(bytes.NewReader(data), name, "text/plain"),
		Betas: c.betas(),
	})
	if err != nil {
		return nil, fmt.Errorf("llm: upload %s: %w", name, upstream(err))
	}
	f := remoteFile(*meta)
	return &f, nil
}

// ListFiles lists the workspace files, following every page.
func (c *Client) ListFiles(ctx context.Context) ([]RemoteFile, error) {
	iter := c.api.Beta.Files.ListAutoPaging(ctx, anthropic.BetaFileListParams{Betas: c.betas()})
	var files []RemoteFile
	for iter.Next() {
		files = append(files, remoteFile(iter.Current()))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("llm: list files: %w", upstream(err))
	}
	return files, nil
}

// DeleteFile removes a workspace file.
func (c *Client) DeleteFile(ctx context.Context, id string) error {
	if id == "" {
		return apperr.Input("file id is required")
	}
	_, err := c.api.Beta.Files.Delete(ctx, id, anthropic.BetaFileDeleteParams{Betas: c.betas()})
	if err == nil {
		return nil
	}
	err = upstream(err)
	var ue *apperr.UpstreamError
	if errors.As(err, &ue) && ue.Status == http.StatusNotFound {
		return apperr.NotFound("file %s", id)
	}
	return fmt.Errorf("llm: delete file %s: %w", id, err)
}

// CachedFile records one uploaded knowledge file.
type CachedFile struct {
	FileID     string    `json:"fileId"`
	Size       int       `json:"size"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// FileCache maps local knowledge file names to uploaded file ids and
// persists the map as a single JSON file.
type FileCache struct {
	fs   storage.Provider
	path string

	mu    sync.Mutex
	files map[string]CachedFile
}

// NewFileCache loads the cache at path. A missing file yields an empty cache.
func NewFileCache(fs storage.Provider, path string) (*FileCache, error) {
	fc := &FileCache{fs: fs, path: path, files: make(map[string]CachedFile)}
	if !fs.Exists(path) {
		return fc, nil
	}
	if err := storage.ReadJSON(fs, path, &fc.files); err != nil {
		return nil, fmt.Errorf("llm: load file cache: %w", err)
	}
	if fc.files == nil {
		fc.files = make(map[string]CachedFile)
	}
	return fc, nil
}

// Put records an upload and persists the cache.
func (fc *FileCache) Put(name string, f CachedFile) error {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.files[name] = f
	return fc.save()
}

// Get returns the cached upload for name.
func (fc *FileCache) Get(name string) (CachedFile, bool) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	f, ok := fc.files[name]
	return f, ok
}

// Names returns the cached file names, sorted.
func (fc *FileCache) Names() []string {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	names := make([]string, 0, len(fc.files))
	for n := range fc.files {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// IDs returns the remote ids in name order.
func (fc *FileCache) IDs() []string {
	names := fc.Names()
	fc.mu.Lock()
	defer fc.mu.Unlock()
	ids := make([]string, 0, len(names))
	for _, n := range names {
		if f, ok := fc.files[n]; ok {
			ids = append(ids, f.FileID)
		}
	}
	return ids
}

// Forget drops every entry pointing at the remote id.
func (fc *FileCache) Forget(fileID string) error {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	changed := false
	for n, f := range fc.files {
		if f.FileID == fileID {
			delete(fc.files, n)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return fc.save()
}

// Clear empties the cache.
func (fc *FileCache) Clear() error {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.files = make(map[string]CachedFile)
	return fc.save()
}

// Len returns the number of cached uploads.
func (fc *FileCache) Len() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return len(fc.files)
}

func (fc *FileCache) save() error {
	if err := storage.WriteJSON(fc.fs, fc.path, fc.files); err != nil {
		return fmt.Errorf("llm: save file cache: %w", err)
	}
	return nil
}
