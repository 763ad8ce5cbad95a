// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the knowledge base and patch-note drafts over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/lorekeeper/internal/knowledge"
	"github.com/starford/lorekeeper/internal/patchnotes"
	"github.com/starford/lorekeeper/internal/textutil"
)

const (
	defaultSearchLimit = 10
	defaultBudget      = 8000
)

// Server wraps the MCP server with lorekeeper tools.
type Server struct {
	mcp     *server.MCPServer
	docs    *knowledge.Store
	scorer  *knowledge.Scorer
	builder *knowledge.ContextBuilder
	drafts  *patchnotes.DraftStore
}

// New creates a new MCP server with all tools registered.
func New(docs *knowledge.Store, topics knowledge.Topics, drafts *patchnotes.DraftStore, version string) *Server {
	s := &Server{
		docs:    docs,
		scorer:  knowledge.NewScorer(topics),
		builder: knowledge.NewContextBuilder(topics),
		drafts:  drafts,
	}

	s.mcp = server.NewMCPServer(
		"Lorekeeper",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_knowledge",
		mcp.WithDescription("Rank knowledge-base documents by relevance to a query."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Question or keywords")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 10)")),
	), s.searchKnowledge)

	s.mcp.AddTool(mcp.NewTool("build_context",
		mcp.WithDescription("Assemble the context block the bot would send to the model for a question."),
		mcp.WithString("question", mcp.Required(), mcp.Description("The player's question")),
		mcp.WithNumber("budget", mcp.Description("Token budget for the context (default 8000)")),
	), s.buildContext)

	s.mcp.AddTool(mcp.NewTool("list_drafts",
		mcp.WithDescription("List patch-note drafts, newest version first."),
	), s.listDrafts)

	s.mcp.AddTool(mcp.NewTool("get_draft",
		mcp.WithDescription("Get a patch-note draft with its categories and Discord rendering."),
		mcp.WithString("version", mcp.Required(), mcp.Description("Draft version, e.g. 0.10.43")),
	), s.getDraft)

	s.mcp.AddResource(
		mcp.NewResource("lorekeeper://knowledge-format", "Knowledge Format",
			mcp.WithResourceDescription("JSON document format of the knowledge base."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readKnowledgeFormat,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

type searchHit struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Category string `json:"category"`
	Score    int    `json:"score"`
	Snippet  string `json:"snippet"`
}

func (s *Server) searchKnowledge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := int(req.GetFloat("limit", defaultSearchLimit))

	docs, err := s.docs.Load(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	hits := []searchHit{}
	for _, r := range s.scorer.Search(query, docs, limit) {
		hits = append(hits, searchHit{
			ID:       r.Document.ID,
			Title:    r.Document.Title,
			Category: r.Document.Category,
			Score:    r.Score,
			Snippet:  snippet(r.Document.Content, 200),
		})
	}
	out, _ := json.MarshalIndent(hits, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) buildContext(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	budget := int(req.GetFloat("budget", defaultBudget))

	docs, err := s.docs.Load(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var text string
	if ranked := s.scorer.Score(question, docs); len(ranked) > 0 {
		text = s.builder.Build(question, knowledge.Rank(ranked, docs), budget)
	}
	if text == "" {
		return mcp.NewToolResultText("(no context available)"), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("class: %s\n\n%s", s.builder.Classify(question), text)), nil
}

func (s *Server) listDrafts(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := s.drafts.List()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(list) == 0 {
		return mcp.NewToolResultText("no drafts"), nil
	}
	lines := make([]string, 0, len(list))
	for _, d := range list {
		lines = append(lines, fmt.Sprintf("%s\t%s\t%d messages\t%d images", d.Version, d.Status, d.MessageCount, d.ImageCount))
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) getDraft(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	version, err := req.RequireString("version")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, _, err := s.drafts.Get(version)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(map[string]any{
		"version":    d.Version,
		"status":     d.Status,
		"categories": d.Categories,
		"discord":    d.Discord,
		"updated":    d.Updated,
	}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readKnowledgeFormat(_ context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "text/markdown",
			Text:     KnowledgeFormat,
		},
	}, nil
}

func snippet(s string, n int) string {
	s = textutil.CollapseSpaces(s)
	if head := textutil.Head(s, n); head != s {
		return head + "…"
	}
	return s
}
