package api

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/lorekeeper/internal/patchnotes"
)

var imageTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// ImageHandler serves images downloaded for patch-note drafts.
type ImageHandler struct {
	root string
}

// NewImageHandler creates a handler rooted at the draft images directory.
func NewImageHandler(root string) *ImageHandler {
	return &ImageHandler{root: root}
}

// safePath validates that version and name are plain names and returns the
// absolute path of the image.
func (h *ImageHandler) safePath(version, name string) (string, error) {
	if !patchnotes.ValidVersion(version) {
		return "", fmt.Errorf("invalid version: %s", version)
	}
	if name == "" {
		return "", fmt.Errorf("filename is required")
	}
	cleaned := filepath.Clean(name)
	if cleaned != filepath.Base(cleaned) || strings.Contains(cleaned, "..") || strings.HasPrefix(cleaned, ".") {
		return "", fmt.Errorf("invalid filename: %s", name)
	}
	root, err := filepath.Abs(h.root)
	if err != nil {
		return "", err
	}
	abs := filepath.Join(root, version, cleaned)
	if !strings.HasPrefix(abs, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("path escapes images directory")
	}
	return abs, nil
}

// ServeFile handles GET /drafts/{version}/images/{filename}.
func (h *ImageHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	abs, err := h.safePath(chi.URLParam(r, "version"), chi.URLParam(r, "filename"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	ctype, ok := imageTypes[strings.ToLower(filepath.Ext(abs))]
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("not an image"))
		return
	}
	f, err := os.Open(abs)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
