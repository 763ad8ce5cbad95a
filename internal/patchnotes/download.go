package patchnotes

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/starford/lorekeeper/internal/models"
	"github.com/starford/lorekeeper/internal/storage"
)

// maxImageBytes caps a single downloaded image.
const maxImageBytes = 25 << 20

var attachmentIDPattern = regexp.MustCompile(`/attachments/\d+/(\d+)/`)

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true}

// Downloader saves the image attachments of raw notes under
// <images>/<version>/.
type Downloader struct {
	client *http.Client
	images storage.Provider
	logger *slog.Logger
}

// NewDownloader creates a Downloader writing into images.
func NewDownloader(client *http.Client, images storage.Provider, logger *slog.Logger) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{client: client, images: images, logger: logger}
}

// ImagePath returns the stored path of an attachment.
func ImagePath(version string, msg models.RawNote, a models.Attachment, n int) string {
	id := a.ID
	if m := attachmentIDPattern.FindStringSubmatch(a.URL); m != nil {
		id = m[1]
	}
	if id == "" {
		id = msg.MessageID
		if n > 0 {
			id += "-" + strconv.Itoa(n)
		}
	}
	return path.Join(version, id+imageExt(a))
}

func imageExt(a models.Attachment) string {
	if ext := strings.ToLower(path.Ext(a.Filename)); imageExts[ext] {
		return ext
	}
	if u, err := url.Parse(a.URL); err == nil {
		if ext := strings.ToLower(path.Ext(u.Path)); imageExts[ext] {
			return ext
		}
	}
	return ".png"
}

// Download fetches every image attachment of raw. Files already on disk are
// skipped; failed downloads are logged and left out of the result.
func (d *Downloader) Download(ctx context.Context, version string, raw []models.RawNote) []models.DownloadedImage {
	var out []models.DownloadedImage
	for i, note := range raw {
		for n, a := range note.Attachments {
			if ctx.Err() != nil {
				return out
			}
			p := ImagePath(version, note, a, n)
			img := models.DownloadedImage{
				OriginalURL:  a.URL,
				LocalPath:    p,
				Filename:     path.Base(p),
				MessageID:    note.MessageID,
				AttachmentID: strings.TrimSuffix(path.Base(p), path.Ext(p)),
				NoteIndex:    i,
				Width:        a.Width,
				Height:       a.Height,
			}
			if d.images.Exists(p) {
				img.Skipped = true
				out = append(out, img)
				continue
			}
			if err := d.fetch(ctx, a.URL, p); err != nil {
				d.logger.Warn("patchnotes: image download failed",
					slog.String("version", version),
					slog.String("url", a.URL),
					slog.String("error", err.Error()))
				continue
			}
			out = append(out, img)
		}
	}
	return out
}

func (d *Downloader) fetch(ctx context.Context, rawURL, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return err
	}
	return d.images.Write(dst, data)
}
