package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/lorekeeper/internal/knowledge"
	"github.com/starford/lorekeeper/internal/models"
	"github.com/starford/lorekeeper/internal/patchnotes"
	"github.com/starford/lorekeeper/internal/testutil"
)

const knowledgeJSON = `[
	{"id": "death", "title": "Death Penalty", "content": "When you die you drop your corpse and lose experience.", "category": "faq", "priority": "high", "tags": ["death"]},
	{"id": "crafting", "title": "Crafting Basics", "content": "Combine reagents at a workbench.", "category": "guides"},
	{"id": "ludos", "title": "The Heretic", "content": "Ludos seeks a seventh aspect.", "category": "lore"}
]`

func testServer(t *testing.T) (*Server, *patchnotes.DraftStore) {
	t.Helper()
	_, kbFS := testutil.TestFS(t, map[string]string{"faq.json": knowledgeJSON})
	_, draftFS := testutil.TestFS(t, nil)
	drafts := patchnotes.NewDraftStore(draftFS, patchnotes.DefaultThresholds())

	srv := New(knowledge.NewStore(kbFS, testutil.Logger()), knowledge.DefaultTopics(), drafts, "test")
	return srv, drafts
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "search_knowledge":
		result, err = srv.searchKnowledge(ctx, req)
	case "build_context":
		result, err = srv.buildContext(ctx, req)
	case "list_drafts":
		result, err = srv.listDrafts(ctx, req)
	case "get_draft":
		result, err = srv.getDraft(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestSearchKnowledge(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "search_knowledge", map[string]any{"query": "what happens when I die", "limit": float64(1)})
	if r.IsError {
		t.Fatalf("error: %s", resultText(r))
	}
	var hits []searchHit
	if err := json.Unmarshal([]byte(resultText(r)), &hits); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "death" || hits[0].Score <= 0 {
		t.Errorf("hits = %+v", hits)
	}

	r = callTool(t, srv, "search_knowledge", map[string]any{"query": "xyzzy plugh"})
	if got := resultText(r); got != "[]" {
		t.Errorf("no-match result = %q, want []", got)
	}
}

func TestSearchKnowledge_MissingQuery(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "search_knowledge", map[string]any{})
	if !r.IsError {
		t.Error("expected error for missing query")
	}
}

func TestBuildContext(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "build_context", map[string]any{"question": "who is Ludos the heretic?"})
	text := resultText(r)
	if !strings.HasPrefix(text, "class: ") || !strings.Contains(text, "Ludos seeks a seventh aspect") {
		t.Errorf("context = %q", text)
	}

	r = callTool(t, srv, "build_context", map[string]any{"question": "anything", "budget": float64(0)})
	if got := resultText(r); got != "(no context available)" {
		t.Errorf("zero budget result = %q", got)
	}
}

func TestDrafts(t *testing.T) {
	srv, drafts := testServer(t)

	if got := resultText(callTool(t, srv, "list_drafts", nil)); got != "no drafts" {
		t.Errorf("empty list = %q", got)
	}

	cats := models.Categories{patchnotes.CategoryBugFixes: {"Fixed the lighthouse lamp"}}
	if _, err := drafts.Save(&models.PatchDraft{
		Version:    "0.10.43",
		Categories: cats,
		Discord:    patchnotes.RenderDiscord(cats),
	}); err != nil {
		t.Fatal(err)
	}

	list := resultText(callTool(t, srv, "list_drafts", nil))
	if !strings.HasPrefix(list, "0.10.43\tdraft") {
		t.Errorf("list = %q", list)
	}

	r := callTool(t, srv, "get_draft", map[string]any{"version": "0.10.43"})
	if r.IsError || !strings.Contains(resultText(r), "Fixed the lighthouse lamp") {
		t.Errorf("get_draft = %q", resultText(r))
	}

	if r := callTool(t, srv, "get_draft", map[string]any{"version": "9.9.9"}); !r.IsError {
		t.Error("expected error for missing draft")
	}
}

func TestKnowledgeFormatResource(t *testing.T) {
	srv, _ := testServer(t)
	req := mcp.ReadResourceRequest{}
	req.Params.URI = "lorekeeper://knowledge-format"
	contents, err := srv.readKnowledgeFormat(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || !strings.Contains(tc.Text, "JSON array of documents") {
		t.Errorf("contents = %+v", contents)
	}
}
