package patchnotes

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/starford/lorekeeper/internal/apperr"
	"github.com/starford/lorekeeper/internal/models"
)

const (
	devID = "100"
	botID = "999"
)

// fakeSource serves a chronological message list newest first, like the chat API.
type fakeSource struct {
	msgs  []Message
	calls int
}

func (f *fakeSource) Messages(_ context.Context, _ string, before string, limit int) ([]Message, error) {
	f.calls++
	end := len(f.msgs)
	if before != "" {
		for i, m := range f.msgs {
			if m.ID == before {
				end = i
				break
			}
		}
	}
	var out []Message
	for i := end - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.msgs[i])
	}
	return out, nil
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// history builds messages one minute apart with ids 1..n.
func history(contents ...string) []Message {
	out := make([]Message, len(contents))
	for i, c := range contents {
		out[i] = Message{
			ID:        strconv.Itoa(i + 1),
			AuthorID:  devID,
			Author:    "dev",
			Content:   c,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}
	}
	return out
}

func image(id string) models.Attachment {
	return models.Attachment{
		ID:          id,
		URL:         "https://cdn.example.com/attachments/1/" + id + "/shot.png",
		Filename:    "shot.png",
		ContentType: "image/png",
	}
}

func TestIsVersionMarker(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"**0.10.43**", true},
		{"Patch 1.2.3 is live", true},
		{"version 2.0.0", true},
		{"## `0.9.1`", true},
		{"Fixed a bug in 1.2.3", false},
		{"0.10", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsVersionMarker(tt.text); got != tt.want {
			t.Errorf("IsVersionMarker(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestExtractVersion(t *testing.T) {
	if got := ExtractVersion("**0.10.43**"); got != "0.10.43" {
		t.Errorf("ExtractVersion = %q, want 0.10.43", got)
	}
	if got := ExtractVersion("no version"); got != "" {
		t.Errorf("ExtractVersion = %q, want empty", got)
	}
}

func TestScan_FindsLatestMarker(t *testing.T) {
	msgs := history(
		"**0.10.42**",
		"Old note",
		"**0.10.43**",
		"Warrior: Fixed a bug with shield block",
		"reserve",
	)
	// a marker-looking post by someone else does not count
	msgs = append(msgs, Message{ID: "6", AuthorID: "555", Content: "0.11.0 when?", Timestamp: base.Add(10 * time.Minute)})

	res, err := NewScanner(&fakeSource{msgs: msgs}, "chan", devID).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.Version != "0.10.43" {
		t.Errorf("version = %q, want 0.10.43", res.Version)
	}
	if res.Marker.ID != "3" {
		t.Errorf("marker id = %q, want 3", res.Marker.ID)
	}
	var ids []string
	for _, m := range res.After {
		ids = append(ids, m.ID)
	}
	if got, want := len(ids), 3; got != want || ids[0] != "4" || ids[2] != "6" {
		t.Errorf("after ids = %v, want [4 5 6]", ids)
	}
}

func TestScan_PagesBackward(t *testing.T) {
	src := &fakeSource{msgs: history("**1.0.0**", "a", "b", "c", "d")}
	s := NewScanner(src, "chan", devID)
	s.pageSize = 2

	res, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.Pages != 3 {
		t.Errorf("pages = %d, want 3", res.Pages)
	}
	if len(res.After) != 4 || res.After[0].Content != "a" || res.After[3].Content != "d" {
		t.Errorf("after = %+v", res.After)
	}
}

func TestScan_NoMarker(t *testing.T) {
	src := &fakeSource{msgs: history("a", "b", "c")}
	_, err := NewScanner(src, "chan", devID).Scan(context.Background())
	if !errors.Is(err, apperr.ErrNoVersionMarker) {
		t.Fatalf("err = %v, want ErrNoVersionMarker", err)
	}

	_, err = NewScanner(&fakeSource{}, "chan", devID).Scan(context.Background())
	if !errors.Is(err, apperr.ErrNoVersionMarker) {
		t.Fatalf("empty channel err = %v, want ErrNoVersionMarker", err)
	}
}

func TestCollect_Filters(t *testing.T) {
	msgs := history(
		"Fixed flickering torches",
		"reserve",
		"  RESERVE ",
		"!patchnotes",
		"",
		"1.2.3",
	)
	msgs = append(msgs,
		Message{ID: "7", AuthorID: botID, Content: "Working on it..."},
		Message{ID: "8", AuthorID: devID, Attachments: []models.Attachment{
			image("42"),
			{ID: "43", URL: "https://cdn.example.com/x.zip", ContentType: "application/zip"},
		}},
	)

	got := Collect(msgs, CollectOptions{BotUserID: botID, CommandPrefix: "!"})
	if len(got) != 2 {
		t.Fatalf("collected %d notes, want 2: %+v", len(got), got)
	}
	if got[0].Content != "Fixed flickering torches" || got[0].HasImages() {
		t.Errorf("first note = %+v", got[0])
	}
	if got[1].MessageID != "8" || len(got[1].Attachments) != 1 || got[1].Attachments[0].ID != "42" {
		t.Errorf("image note = %+v", got[1])
	}
	if got[0].Attachments == nil {
		t.Error("attachments should be an empty slice, not nil")
	}
}
