// Package storage defines the data-directory file abstraction used for
// knowledge files, profiles, drafts and the uploaded-file cache.
package storage

import "time"

// FileInfo describes one stored file.
type FileInfo struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Provider is the interface for data-directory file operations.
// All paths are relative to the provider root.
type Provider interface {
	// List returns metadata for the files directly under dir whose name ends with ext.
	List(dir, ext string) ([]FileInfo, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Exists reports whether path is a regular file.
	Exists(path string) bool
	// Abs resolves path to an absolute location under the root.
	Abs(path string) (string, error)
}
