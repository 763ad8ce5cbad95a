package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/lorekeeper/internal/knowledge"
	"github.com/starford/lorekeeper/internal/llm"
	"github.com/starford/lorekeeper/internal/mcpserver"
	"github.com/starford/lorekeeper/internal/profile"
)

// Version is reported by the MCP server.
var Version = "dev"

// RunMCP serves the knowledge base and drafts over MCP on stdio.
func RunMCP(_ context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := newLogger(app.config, os.Stderr)

	st, err := openStores(app.config, logger)
	if err != nil {
		return err
	}
	srv := mcpserver.New(st.knowledge, app.config.Knowledge.Topics, st.drafts, Version)
	logger.Info("MCP server starting on stdio")
	return srv.ServeStdio()
}

// Ask prints the context the bot would assemble for question using the
// active profile. With complete set it also asks the model and prints the answer.
func Ask(ctx context.Context, question string, complete bool, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := newLogger(app.config, os.Stderr)

	st, err := openStores(app.config, logger)
	if err != nil {
		return err
	}
	docs, err := st.knowledge.Load(ctx)
	if err != nil {
		return err
	}

	topics := app.config.Knowledge.Topics
	scorer := knowledge.NewScorer(topics)
	builder := knowledge.NewContextBuilder(topics)
	p := st.profiles.Active()

	ranked := scorer.Score(question, docs)
	fmt.Fprintf(app.out, "profile: %s\nclass: %s\ndocuments: %d of %d\n",
		p.Key, builder.Classify(question), len(ranked), len(docs))
	for i, r := range ranked {
		if i == 10 {
			fmt.Fprintf(app.out, "  … %d more\n", len(ranked)-i)
			break
		}
		fmt.Fprintf(app.out, "  %4d  %s  %s\n", r.Score, r.Document.ID, r.Document.Title)
	}
	if len(ranked) == 0 {
		fmt.Fprintln(app.out, "\nno relevant documents")
		return nil
	}

	kb := builder.Build(question, knowledge.Rank(ranked, docs), p.MaxTokens)
	fmt.Fprintf(app.out, "\n%s\n", kb)
	if !complete {
		return nil
	}

	client := llm.New(app.config.LLM, llm.WithLogger(logger))
	resp, err := client.Ask(ctx, profile.SystemPrompt(p), kb, question, 0)
	if err != nil {
		return err
	}
	logger.Debug("completion done",
		slog.String("model", resp.Model),
		slog.Int("input_tokens", resp.Usage.InputTokens),
		slog.Int("output_tokens", resp.Usage.OutputTokens))
	fmt.Fprintf(app.out, "\n--- answer (%s) ---\n%s\n", resp.Model, resp.Text)
	return nil
}
