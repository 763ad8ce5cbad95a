package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/starford/lorekeeper/internal/patchnotes"
)

func (b *Bot) patchNotes(ctx context.Context, req *Request) error {
	if b.deps.PatchNotes == nil {
		return b.reply(ctx, req.Msg, "❌ Patch notes are not configured on this bot.")
	}
	opts := patchnotes.Options{
		WithImages: req.Cmd.Flags["with-images"],
		UseAI:      req.Cmd.Flags["ai"],
		Progress: func(s string) {
			if err := b.reply(ctx, req.Msg, s); err != nil {
				req.Logger.Debug("progress reply failed", slog.String("error", err.Error()))
			}
		},
	}
	d, err := b.deps.PatchNotes.Assemble(ctx, opts)
	if err != nil {
		return err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "✅ **Patch notes draft for %s is ready**\n\n", d.Version)
	fmt.Fprintf(&sb, "**Messages:** %d\n**Images:** %d\n", d.MessageCount, d.ImageCount)
	if opts.WithImages {
		fmt.Fprintf(&sb, "**Downloaded:** %d\n", len(d.DownloadedImages))
	}
	if d.AIFormatted {
		sb.WriteString("**Formatting:** AI\n")
	}
	sb.WriteString("\n**Categories:**\n")
	for _, name := range patchnotes.OrderedCategories(d.Categories) {
		fmt.Fprintf(&sb, "- %s: %d\n", name, len(d.Categories[name]))
	}
	if b.cfg.DashboardURL != "" {
		fmt.Fprintf(&sb, "\nReview and publish: %s/drafts/%s", strings.TrimRight(b.cfg.DashboardURL, "/"), d.Version)
	}
	return b.reply(ctx, req.Msg, sb.String())
}
