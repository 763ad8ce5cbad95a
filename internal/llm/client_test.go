package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/lorekeeper/internal/apperr"
	"github.com/starford/lorekeeper/internal/storage"
)

type recordedUsage struct {
	model, command string
	in, out        int
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []recordedUsage
}

func (r *fakeRecorder) TrackUsage(_ context.Context, model, command string, in, out int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recordedUsage{model, command, in, out})
}

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.APIKey = "test-key"
	cfg.Timeout = 5 * time.Second
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return New(cfg, opts...)
}

func writeCompletion(w http.ResponseWriter, model, text string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      "msg_1",
		"type":    "message",
		"role":    "assistant",
		"model":   model,
		"content": []map[string]string{{"type": "text", "text": text}},
		"usage":   map[string]int{"input_tokens": 120, "output_tokens": 30},
	})
}

func writeError(w http.ResponseWriter, status int, typ, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":  "error",
		"error": map[string]string{"type": typ, "message": msg},
	})
}

type sentRequest struct {
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	System    []struct {
		Text string `json:"text"`
	} `json:"system"`
	Messages []struct {
		Role    string `json:"role"`
		Content []struct {
			Type   string `json:"type"`
			Text   string `json:"text"`
			Source struct {
				Type   string `json:"type"`
				FileID string `json:"file_id"`
			} `json:"source"`
		} `json:"content"`
	} `json:"messages"`
}

func TestAsk_SendsPromptAndRecordsUsage(t *testing.T) {
	rec := &fakeRecorder{}
	var got sentRequest

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "test-key" || r.Header.Get("Anthropic-Version") == "" {
			t.Errorf("missing auth headers: %v", r.Header)
		}
		if strings.Contains(r.Header.Get("Anthropic-Beta"), "files-api") {
			t.Error("files beta set for inline context")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		writeCompletion(w, got.Model, "  Death drops your corpse.  ")
	}, WithUsageRecorder(rec))

	ctx := WithCommand(context.Background(), "ask")
	resp, err := c.Ask(ctx, "system prompt", "[a] Death Penalty", "what happens when I die?", 0)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if resp.Text != "Death drops your corpse." {
		t.Errorf("text = %q", resp.Text)
	}
	if got.Model != DefaultConfig().Model || got.MaxTokens != DefaultConfig().MaxTokens {
		t.Errorf("model = %q, max_tokens = %d", got.Model, got.MaxTokens)
	}
	if len(got.System) != 1 || got.System[0].Text != "system prompt" {
		t.Errorf("system = %+v", got.System)
	}
	if len(got.Messages) != 1 || got.Messages[0].Role != "user" || len(got.Messages[0].Content) != 1 {
		t.Fatalf("messages = %+v", got.Messages)
	}
	want := "KNOWLEDGE BASE CONTEXT:\n[a] Death Penalty\n\nUSER QUESTION: what happens when I die?"
	if block := got.Messages[0].Content[0]; block.Type != "text" || block.Text != want {
		t.Errorf("content = %+v, want text %q", block, want)
	}
	if len(rec.calls) != 1 || rec.calls[0] != (recordedUsage{DefaultConfig().Model, "ask", 120, 30}) {
		t.Errorf("usage = %+v", rec.calls)
	}
}

func TestComplete_FallsBackOnce(t *testing.T) {
	var mu sync.Mutex
	var models []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req sentRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		models = append(models, req.Model)
		mu.Unlock()
		if req.Model == DefaultConfig().Model {
			writeError(w, 529, "overloaded_error", "Overloaded")
			return
		}
		writeCompletion(w, req.Model, "ok")
	})

	resp, err := c.Ask(context.Background(), "", "", "q", 0)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if resp.Model != DefaultConfig().FallbackModel {
		t.Errorf("model = %q, want fallback", resp.Model)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(models) != 2 {
		t.Errorf("attempts = %v, want exactly 2", models)
	}
}

func TestComplete_BothFailWithoutSDKRetries(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		writeError(w, http.StatusTooManyRequests, "rate_limit_error", "slow down")
	})

	_, err := c.Ask(context.Background(), "", "", "q", 0)
	if !errors.Is(err, apperr.ErrUpstream) {
		t.Fatalf("err = %v, want upstream", err)
	}
	var ue *apperr.UpstreamError
	if !errors.As(err, &ue) || !ue.RateLimited || ue.Code != "rate_limit_error" || ue.Status != http.StatusTooManyRequests {
		t.Errorf("upstream = %+v", ue)
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Errorf("calls = %d, want 2 (primary + fallback)", calls)
	}
}

func TestComplete_MissingKey(t *testing.T) {
	c := New(DefaultConfig())
	if _, err := c.Ask(context.Background(), "", "", "q", 0); !errors.Is(err, apperr.ErrInput) {
		t.Errorf("err = %v, want ErrInput", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		status      int
		retryable   bool
		rateLimited bool
	}{
		{http.StatusTooManyRequests, true, true},
		{529, true, true},
		{http.StatusInternalServerError, true, false},
		{http.StatusBadGateway, true, false},
		{http.StatusServiceUnavailable, true, false},
		{http.StatusGatewayTimeout, true, false},
		{http.StatusBadRequest, false, false},
		{http.StatusUnauthorized, false, false},
	}
	for _, tt := range tests {
		e := classify(tt.status, []byte("plain failure"))
		if e.Retryable != tt.retryable || e.RateLimited != tt.rateLimited {
			t.Errorf("status %d: retryable=%v rateLimited=%v", tt.status, e.Retryable, e.RateLimited)
		}
		if e.Message != "plain failure" {
			t.Errorf("status %d: message = %q", tt.status, e.Message)
		}
	}
}

func TestAskWithFiles_UsesDocumentBlocks(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Anthropic-Beta"), DefaultConfig().FilesBeta) {
			t.Errorf("beta header = %q", r.Header.Get("Anthropic-Beta"))
		}
		var req sentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if len(req.Messages) != 1 || len(req.Messages[0].Content) != 2 {
			t.Errorf("messages = %+v", req.Messages)
			writeCompletion(w, "m", "answer")
			return
		}
		doc, question := req.Messages[0].Content[0], req.Messages[0].Content[1]
		if doc.Type != "document" || doc.Source.Type != "file" || doc.Source.FileID != "file_1" {
			t.Errorf("document block = %+v", doc)
		}
		if question.Type != "text" || question.Text != "USER QUESTION: q" {
			t.Errorf("question block = %+v", question)
		}
		writeCompletion(w, "m", "answer")
	})
	if _, err := c.AskWithFiles(context.Background(), "sys", []string{"file_1"}, "q", 500); err != nil {
		t.Fatalf("AskWithFiles: %v", err)
	}
	if _, err := c.AskWithFiles(context.Background(), "sys", nil, "q", 500); err == nil {
		t.Error("expected error without files")
	}
}

func TestFilesAPI(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Anthropic-Beta"), DefaultConfig().FilesBeta) {
			t.Errorf("%s %s without files beta header", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/files":
			f, hdr, err := r.FormFile("file")
			if err != nil {
				t.Errorf("FormFile: %v", err)
				writeError(w, http.StatusBadRequest, "invalid_request_error", "no file")
				return
			}
			data, _ := io.ReadAll(f)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id": "file_1", "type": "file", "filename": hdr.Filename, "size_bytes": len(data),
				"mime_type": "text/plain", "created_at": "2025-01-02T03:04:05Z",
			})
		case r.Method == http.MethodGet && r.URL.Path == "/v1/files":
			_, _ = w.Write([]byte(`{"data":[{"id":"file_1","type":"file","filename":"faq.json","size_bytes":12,"mime_type":"text/plain","created_at":"2025-01-02T03:04:05Z"}],"has_more":false,"first_id":"file_1","last_id":"file_1"}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/v1/files/file_1":
			_, _ = w.Write([]byte(`{"id":"file_1","type":"file_deleted"}`))
		default:
			writeError(w, http.StatusNotFound, "not_found_error", "missing")
		}
	})
	ctx := context.Background()

	f, err := c.UploadFile(ctx, "faq.json", []byte(`[{"id":"a"}]`))
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if f.ID != "file_1" || f.Filename != "faq.json" || f.SizeBytes != 12 {
		t.Errorf("upload = %+v", f)
	}

	files, err := c.ListFiles(ctx)
	if err != nil || len(files) != 1 || files[0].ID != "file_1" {
		t.Fatalf("ListFiles = %+v, %v", files, err)
	}

	if err := c.DeleteFile(ctx, "file_1"); err != nil {
		t.Errorf("DeleteFile: %v", err)
	}
	if err := c.DeleteFile(ctx, "file_2"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("DeleteFile missing err = %v", err)
	}
}

func TestFileCache_Persists(t *testing.T) {
	fs, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	fc, err := NewFileCache(fs, "file-cache.json")
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}
	if err := fc.Put("lore.json", CachedFile{FileID: "file_b", Size: 10}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := fc.Put("faq.json", CachedFile{FileID: "file_a", Size: 5}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	reloaded, err := NewFileCache(fs, "file-cache.json")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if ids := reloaded.IDs(); strings.Join(ids, ",") != "file_a,file_b" {
		t.Errorf("ids = %v", ids)
	}

	if err := reloaded.Forget("file_a"); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if _, ok := reloaded.Get("faq.json"); ok {
		t.Error("forgotten entry still cached")
	}
	if err := reloaded.Clear(); err != nil || reloaded.Len() != 0 {
		t.Errorf("Clear: %v, len %d", err, reloaded.Len())
	}
}

func TestContextPassingToggle(t *testing.T) {
	c := New(DefaultConfig())
	if !c.ContextPassing() {
		t.Error("context passing should be the default")
	}
	c.SetContextPassing(false)
	if c.ContextPassing() {
		t.Error("toggle did not stick")
	}
}

func TestUpstream_TransportErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"connection refused", errors.New("dial tcp 127.0.0.1:1: connect: connection refused"), true},
		{"cancelled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ue *apperr.UpstreamError
			if !errors.As(upstream(tt.err), &ue) {
				t.Fatalf("upstream(%v) is not an UpstreamError", tt.err)
			}
			if ue.Retryable != tt.retryable || ue.Status != 0 {
				t.Errorf("upstream = %+v", ue)
			}
		})
	}
}
