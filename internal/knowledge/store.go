// Package knowledge loads the JSON knowledge base and selects the documents
// that go into a completion prompt.
package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/lorekeeper/internal/models"
	"github.com/starford/lorekeeper/internal/storage"
)

// ForumFAQFile is the knowledge file rewritten by forum refreshes.
const ForumFAQFile = "forum_faq.json"

// Store reads knowledge documents from a directory of JSON arrays.
// Every Load re-reads the files; nothing is cached.
type Store struct {
	fs     storage.Provider
	logger *slog.Logger
}

// NewStore creates a Store over fs.
func NewStore(fs storage.Provider, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{fs: fs, logger: logger}
}

// rawDocument mirrors the on-disk shape before validation.
type rawDocument struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
	SourceURL   *string  `json:"source_url"`
	Priority    string   `json:"priority"`
	LastUpdated string   `json:"last_updated"`
}

// Load returns every valid document. Files that are not JSON arrays and
// records missing required fields are logged and skipped.
func (s *Store) Load(ctx context.Context) ([]models.Document, error) {
	files, err := s.fs.List("", ".json")
	if err != nil {
		return nil, fmt.Errorf("knowledge: list: %w", err)
	}

	var docs []models.Document
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := s.fs.Read(f.Path)
		if err != nil {
			s.logger.Warn("knowledge: read failed", slog.String("file", f.Path), slog.String("error", err.Error()))
			continue
		}
		var raws []rawDocument
		if err := json.Unmarshal(data, &raws); err != nil {
			s.logger.Warn("knowledge: file is not a JSON array of documents",
				slog.String("file", f.Path), slog.String("error", err.Error()))
			continue
		}
		for i, raw := range raws {
			doc, err := normalize(raw)
			if err != nil {
				s.logger.Warn("knowledge: skipping record",
					slog.String("file", f.Path), slog.Int("index", i), slog.String("error", err.Error()))
				continue
			}
			docs = append(docs, doc)
		}
	}

	s.logger.Debug("knowledge: loaded", slog.Int("documents", len(docs)), slog.Int("files", len(files)))
	return docs, nil
}

// ByCategory loads and filters documents by category.
func (s *Store) ByCategory(ctx context.Context, category string) ([]models.Document, error) {
	docs, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return byCategory(docs, 0, category), nil
}

// ByPriority loads and filters documents by priority.
func (s *Store) ByPriority(ctx context.Context, priority string) ([]models.Document, error) {
	docs, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return byPriority(docs, priority), nil
}

// Files lists the knowledge files with their sizes.
func (s *Store) Files() ([]storage.FileInfo, error) {
	return s.fs.List("", ".json")
}

// ReadFile returns the raw bytes of one knowledge file.
func (s *Store) ReadFile(name string) ([]byte, error) {
	return s.fs.Read(name)
}

// WriteForumFAQ replaces the forum FAQ file with docs.
func (s *Store) WriteForumFAQ(docs []models.Document) error {
	if err := storage.WriteJSON(s.fs, ForumFAQFile, docs); err != nil {
		return fmt.Errorf("knowledge: write forum faq: %w", err)
	}
	return nil
}

func normalize(raw rawDocument) (models.Document, error) {
	raw.ID = strings.TrimSpace(raw.ID)
	if raw.ID == "" {
		return models.Document{}, fmt.Errorf("missing id")
	}
	if strings.TrimSpace(raw.Title) == "" {
		return models.Document{}, fmt.Errorf("document %s: missing title", raw.ID)
	}
	if strings.TrimSpace(raw.Content) == "" {
		return models.Document{}, fmt.Errorf("document %s: missing content", raw.ID)
	}

	doc := models.Document{
		ID:       raw.ID,
		Title:    raw.Title,
		Content:  raw.Content,
		Category: strings.ToLower(strings.TrimSpace(raw.Category)),
		Tags:     raw.Tags,
		Priority: strings.ToLower(strings.TrimSpace(raw.Priority)),
	}
	if doc.Category == "" {
		doc.Category = models.CategoryFAQ
	}
	switch doc.Priority {
	case models.PriorityHigh, models.PriorityMedium, models.PriorityLow:
	default:
		doc.Priority = models.PriorityMedium
	}
	if doc.Tags == nil {
		doc.Tags = []string{}
	}
	if raw.SourceURL != nil {
		doc.SourceURL = strings.TrimSpace(*raw.SourceURL)
	}
	doc.LastUpdated = parseDate(raw.LastUpdated)
	return doc, nil
}

// parseDate accepts plain dates and RFC 3339 timestamps; anything else is zero.
func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
