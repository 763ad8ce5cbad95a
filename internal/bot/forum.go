package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/lorekeeper/internal/models"
	"github.com/starford/lorekeeper/internal/textutil"
)

const (
	forumMessageLimit = 100
	forumContentLimit = 3000
)

var (
	forumTags         = []string{"forum", "community", "faq", "discord"}
	forumFallbackTags = []string{"forum", "community", "faq"}
)

func (b *Bot) refreshFAQ(ctx context.Context, req *Request) error {
	forumID := req.Cmd.Arg(0)
	if forumID == "" {
		return b.reply(ctx, req.Msg, "Usage: `!refreshfaq <forum_channel_id> [--bump]`\nThis will fetch message content from forum threads to update the knowledge base.")
	}
	threads, err := b.transport.ForumThreads(ctx, forumID)
	if err != nil {
		return err
	}
	_ = b.reply(ctx, req.Msg, fmt.Sprintf("🔄 Fetching content from %d forum threads... This may take a moment.", len(threads)))

	docs, processed := b.forumDocuments(ctx, req, threads)
	if err := b.deps.Knowledge.WriteForumFAQ(docs); err != nil {
		return err
	}
	req.Logger.Info("forum faq refreshed", slog.String("forum_id", forumID),
		slog.Int("threads", len(threads)), slog.Int("processed", processed))

	bumped := 0
	if req.Cmd.Flags["bump"] {
		bumped = b.bumpThreads(ctx, req, threads)
	}

	text := fmt.Sprintf("✅ **FAQ Knowledge Base Updated!**\n\n📊 **Stats:**\n• %d threads processed\n• %d total entries\n• Saved to: `%s`",
		processed, len(docs), "data/forum_faq.json")
	if req.Cmd.Flags["bump"] {
		text += fmt.Sprintf("\n• %d archived threads bumped", bumped)
	}
	return b.reply(ctx, req.Msg, text)
}

// forumDocuments turns threads into knowledge documents. A thread whose
// messages cannot be read still yields a title-only entry.
func (b *Bot) forumDocuments(ctx context.Context, req *Request, threads []Thread) ([]models.Document, int) {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	docs := make([]models.Document, 0, len(threads))
	processed := 0
	for _, t := range threads {
		doc := models.Document{
			ID:          "forum_" + t.ID,
			Title:       t.Name,
			Category:    models.CategoryFAQ,
			SourceURL:   t.URL(),
			LastUpdated: today,
		}
		msgs, err := b.transport.ThreadMessages(ctx, t.ID, forumMessageLimit)
		if err != nil {
			req.Logger.Warn("forum thread unreadable", slog.String("thread", t.Name), slog.String("error", err.Error()))
			doc.Content = "Forum thread: " + t.Name
			doc.Tags = forumFallbackTags
			doc.Priority = models.PriorityMedium
			docs = append(docs, doc)
			continue
		}
		doc.Content = threadContent(msgs)
		if doc.Content == "" {
			doc.Content = "Forum thread: " + t.Name
		}
		doc.Tags = forumTags
		doc.Priority = models.PriorityHigh
		docs = append(docs, doc)
		processed++
	}
	return docs, processed
}

func threadContent(msgs []Message) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.IsBot || strings.TrimSpace(m.Content) == "" {
			continue
		}
		parts = append(parts, m.Content)
	}
	return textutil.Head(strings.Join(parts, "\n\n"), forumContentLimit)
}

// Bumper reopens archived forum threads.
type Bumper interface {
	Unarchive(ctx context.Context, threadID string) (bool, error)
}

func (b *Bot) bumpThreads(ctx context.Context, req *Request, threads []Thread) int {
	bumper, ok := b.transport.(Bumper)
	if !ok {
		return 0
	}
	n := 0
	for _, t := range threads {
		changed, err := bumper.Unarchive(ctx, t.ID)
		if err != nil {
			req.Logger.Warn("thread bump failed", slog.String("thread", t.Name), slog.String("error", err.Error()))
			continue
		}
		if changed {
			n++
		}
	}
	return n
}

func (b *Bot) index(ctx context.Context, req *Request) error {
	forumID := req.Cmd.Arg(0)
	if forumID == "" {
		return b.reply(ctx, req.Msg, "Usage: `!index <forum_channel_id> [style]`\nStyles: discord, markdown, plain, numbered")
	}
	threads, err := b.transport.ForumThreads(ctx, forumID)
	if err != nil {
		return err
	}
	if len(threads) == 0 {
		return b.reply(ctx, req.Msg, "No threads found in that forum.")
	}
	lines := IndexLines(threads, req.Cmd.Arg(1))
	return b.send(ctx, req.Msg.ChannelID, strings.Join(lines, "\n"))
}

// IndexLines renders one line per thread in the given style: discord
// (the default), markdown, plain or numbered.
func IndexLines(threads []Thread, style string) []string {
	lines := make([]string, 0, len(threads))
	for i, t := range threads {
		var line string
		switch strings.ToLower(style) {
		case "markdown":
			line = fmt.Sprintf("- [%s](%s)", t.Name, t.URL())
		case "plain":
			line = fmt.Sprintf("%s - %s", t.Name, t.URL())
		case "numbered":
			line = fmt.Sprintf("%d. [%s](%s)", i+1, t.Name, t.URL())
		default:
			line = "#" + t.Name
		}
		lines = append(lines, line)
	}
	return lines
}
