package knowledge

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/starford/lorekeeper/internal/models"
	"github.com/starford/lorekeeper/internal/storage"
)

func testStore(t *testing.T, files map[string]string) *Store {
	t.Helper()
	fs, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	for name, content := range files {
		if err := fs.Write(name, []byte(content)); err != nil {
			t.Fatalf("Write %s: %v", name, err)
		}
	}
	return NewStore(fs, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestLoad_DefaultsAndValidation(t *testing.T) {
	s := testStore(t, map[string]string{
		"faq.json": `[
			{"id": "a", "title": "Death Penalty", "content": "You drop your corpse.", "category": "FAQ", "extra": 1},
			{"id": "b", "title": "Lore", "content": "Old gods.", "category": "lore", "tags": ["gods"], "source_url": "https://x", "priority": "high", "last_updated": "2024-03-01"},
			{"id": "", "title": "No id", "content": "dropped"},
			{"id": "c", "title": "", "content": "dropped"}
		]`,
		"broken.json": `{"id": "not-an-array"}`,
		"notes.txt":   `ignored`,
	})

	docs, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(docs), docs)
	}

	a := docs[0]
	if a.Category != models.CategoryFAQ {
		t.Errorf("category = %q, want lowercased faq", a.Category)
	}
	if a.Priority != models.PriorityMedium {
		t.Errorf("priority = %q, want default medium", a.Priority)
	}
	if a.Tags == nil || a.SourceURL != "" {
		t.Errorf("optional fields not defaulted: %+v", a)
	}

	b := docs[1]
	if b.SourceURL != "https://x" || b.Priority != models.PriorityHigh {
		t.Errorf("unexpected b: %+v", b)
	}
	if b.LastUpdated.IsZero() {
		t.Error("last_updated should parse")
	}
}

func TestLoad_EmptyDir(t *testing.T) {
	s := testStore(t, nil)
	docs, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("len = %d, want 0", len(docs))
	}
}

func TestByCategoryAndPriority(t *testing.T) {
	s := testStore(t, map[string]string{
		"kb.json": `[
			{"id": "1", "title": "A", "content": "a", "category": "lore", "priority": "high"},
			{"id": "2", "title": "B", "content": "b", "category": "faq", "priority": "low"}
		]`,
	})
	lore, err := s.ByCategory(context.Background(), models.CategoryLore)
	if err != nil || len(lore) != 1 || lore[0].ID != "1" {
		t.Errorf("ByCategory = %+v, %v", lore, err)
	}
	low, err := s.ByPriority(context.Background(), models.PriorityLow)
	if err != nil || len(low) != 1 || low[0].ID != "2" {
		t.Errorf("ByPriority = %+v, %v", low, err)
	}
}

func TestWriteForumFAQ(t *testing.T) {
	s := testStore(t, nil)
	err := s.WriteForumFAQ([]models.Document{{
		ID: "forum_1", Title: "Is there PvP?", Content: "Yes.", Category: models.CategoryFAQ,
		Tags: []string{"forum"}, Priority: models.PriorityHigh,
	}})
	if err != nil {
		t.Fatalf("WriteForumFAQ: %v", err)
	}
	docs, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "forum_1" {
		t.Errorf("reloaded docs = %+v", docs)
	}
}
