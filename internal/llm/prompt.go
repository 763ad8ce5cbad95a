package llm

import (
	"context"
	"fmt"
)

// UserPrompt renders the question together with the assembled knowledge context.
func UserPrompt(knowledge, question string) string {
	return fmt.Sprintf("KNOWLEDGE BASE CONTEXT:\n%s\n\nUSER QUESTION: %s", knowledge, question)
}

// Ask answers question using knowledge passed inline.
func (c *Client) Ask(ctx context.Context, system, knowledge, question string, maxTokens int) (*Response, error) {
	return c.Complete(ctx, Request{
		System:    system,
		Messages:  []Message{{Role: "user", Content: UserPrompt(knowledge, question)}},
		MaxTokens: maxTokens,
	})
}

// AskWithFiles answers question referencing previously uploaded files.
func (c *Client) AskWithFiles(ctx context.Context, system string, fileIDs []string, question string, maxTokens int) (*Response, error) {
	if len(fileIDs) == 0 {
		return nil, fmt.Errorf("llm: ask with files: no uploaded files")
	}
	blocks := make([]Block, 0, len(fileIDs)+1)
	for _, id := range fileIDs {
		blocks = append(blocks, DocumentBlock(id))
	}
	blocks = append(blocks, TextBlock("USER QUESTION: "+question))
	return c.Complete(ctx, Request{
		System:    system,
		Messages:  []Message{{Role: "user", Blocks: blocks}},
		MaxTokens: maxTokens,
	})
}
