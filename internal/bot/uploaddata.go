package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/lorekeeper/internal/apperr"
	"github.com/starford/lorekeeper/internal/llm"
)

func (b *Bot) uploadData(ctx context.Context, req *Request) error {
	switch req.Cmd.Sub() {
	case "upload":
		return b.upload(ctx, req, req.Cmd.Arg(1))
	case "toggle":
		return b.toggleMode(ctx, req, strings.ToLower(req.Cmd.Arg(1)))
	case "status":
		return b.uploadStatus(ctx, req)
	case "list":
		return b.listRemote(ctx, req)
	case "delete":
		return b.deleteRemote(ctx, req, req.Cmd.Arg(1))
	case "deleteall":
		return b.deleteAllRemote(ctx, req)
	case "clear":
		if b.deps.Files != nil {
			if err := b.deps.Files.Clear(); err != nil {
				return err
			}
		}
		return b.reply(ctx, req.Msg, "🗑️ **Uploaded files cache cleared!**\n\nYou can re-upload files with `!uploaddata upload`")
	default:
		return b.reply(ctx, req.Msg, "**Data Upload Commands:**\n\n"+
			"`!uploaddata upload [filename]` - Upload all data files or one file\n"+
			"`!uploaddata toggle on/off` - Toggle between context passing and file usage\n"+
			"`!uploaddata status` - Show current mode and local files\n"+
			"`!uploaddata list` - List uploaded files\n"+
			"`!uploaddata delete <file_id>` - Delete one uploaded file\n"+
			"`!uploaddata deleteall` - Delete ALL uploaded files\n"+
			"`!uploaddata clear` - Clear the uploaded files cache\n\n"+
			"**Current Mode:** "+b.modeText())
	}
}

func (b *Bot) modeText() string {
	if b.deps.LLM.ContextPassing() {
		return "Context Passing (with File Usage fallback)"
	}
	return "File Usage (with Context Passing fallback)"
}

type uploadResult struct {
	name   string
	fileID string
	size   int
	err    error
}

func (b *Bot) upload(ctx context.Context, req *Request, name string) error {
	var names []string
	if name != "" {
		names = []string{name}
		_ = b.reply(ctx, req.Msg, fmt.Sprintf("🚀 Starting upload of specific file: %s...", name))
	} else {
		files, err := b.deps.Knowledge.Files()
		if err != nil {
			return err
		}
		for _, f := range files {
			names = append(names, f.Path)
		}
		if len(names) == 0 {
			return b.reply(ctx, req.Msg, "❌ No data files found to upload.")
		}
		_ = b.reply(ctx, req.Msg, "🚀 Starting upload of all data files...")
	}

	results := make([]uploadResult, 0, len(names))
	for _, n := range names {
		res := b.uploadOne(ctx, n)
		if res.err != nil {
			req.Logger.Warn("upload failed", slog.String("file", n), slog.String("error", res.err.Error()))
		}
		b.deps.Monitor.TrackUpload(n, res.err == nil, res.fileID)
		results = append(results, res)
	}

	var ok, failed strings.Builder
	succeeded := 0
	for _, r := range results {
		if r.err != nil {
			fmt.Fprintf(&failed, "• %s: %s\n", r.name, apperr.UserMessage(r.err))
			continue
		}
		succeeded++
		fmt.Fprintf(&ok, "• %s (ID: %s, %d bytes)\n", r.name, r.fileID, r.size)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📤 **Upload Complete!**\n\n✅ **Successfully uploaded:** %d/%d files\n\n", succeeded, len(results))
	if ok.Len() > 0 {
		sb.WriteString("**Uploaded Files:**\n" + ok.String())
	}
	if failed.Len() > 0 {
		sb.WriteString("\n❌ **Failed Uploads:**\n" + failed.String())
	}
	sb.WriteString("\n**Current Mode:** " + b.modeText())
	sb.WriteString("\n\n💡 Use `!uploaddata toggle on/off` to switch modes")
	return b.reply(ctx, req.Msg, sb.String())
}

func (b *Bot) uploadOne(ctx context.Context, name string) uploadResult {
	res := uploadResult{name: name}
	data, err := b.deps.Knowledge.ReadFile(name)
	if err != nil {
		res.err = err
		return res
	}
	f, err := b.deps.LLM.UploadFile(ctx, name, data)
	if err != nil {
		res.err = err
		return res
	}
	res.fileID, res.size = f.ID, len(data)
	if b.deps.Files != nil {
		res.err = b.deps.Files.Put(name, llm.CachedFile{FileID: f.ID, Size: len(data), UploadedAt: time.Now()})
	}
	return res
}

func (b *Bot) toggleMode(ctx context.Context, req *Request, mode string) error {
	var on bool
	switch mode {
	case "on", "true":
		on = true
	case "off", "false":
	default:
		return b.reply(ctx, req.Msg, "Usage: `!uploaddata toggle on/off`\n\n`on` or `true` = Context passing mode\n`off` or `false` = File usage mode (uses uploaded files)")
	}
	b.deps.LLM.SetContextPassing(on)
	req.Logger.Info("answer mode changed", slog.Bool("context_passing", on))

	text := "🔄 **Mode Changed to: " + b.modeText() + "**\n\n"
	if on {
		text += "Bot will pass context in prompts.\n\n💡 Use `!uploaddata upload` to upload files, then `!uploaddata toggle off` to use them"
	} else {
		text += "Bot will use uploaded files.\n\n🤖 Bot will now use uploaded files for better quality answers"
	}
	return b.reply(ctx, req.Msg, text)
}

func (b *Bot) uploadStatus(ctx context.Context, req *Request) error {
	files, err := b.deps.Knowledge.Files()
	if err != nil {
		return err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 **Current Status:**\n\n**Mode:** %s\n\n", b.modeText())
	fmt.Fprintf(&sb, "**Local Data Files:** %d\n", len(files))
	for _, f := range files {
		fmt.Fprintf(&sb, "• %s (%dKB)\n", f.Path, (f.Size+512)/1024)
	}
	if b.deps.Files != nil {
		fmt.Fprintf(&sb, "\n**Uploaded Files:** %d\n", b.deps.Files.Len())
		for _, name := range b.deps.Files.Names() {
			if cf, ok := b.deps.Files.Get(name); ok {
				fmt.Fprintf(&sb, "• %s (`%s`)\n", name, cf.FileID)
			}
		}
	}
	sb.WriteString("\n💡 Use `!uploaddata toggle on/off` to switch modes")
	return b.reply(ctx, req.Msg, sb.String())
}

func (b *Bot) listRemote(ctx context.Context, req *Request) error {
	files, err := b.deps.LLM.ListFiles(ctx)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return b.reply(ctx, req.Msg, "📁 **No uploaded files found**")
	}
	var sb strings.Builder
	sb.WriteString("📁 **Uploaded Files:**\n\n")
	for i, f := range files {
		name := f.Filename
		if name == "" {
			name = "Unknown"
		}
		fmt.Fprintf(&sb, "%d. **%s**\n   ID: `%s`\n   Size: %dKB | Created: %s\n\n",
			i+1, name, f.ID, (f.SizeBytes+512)/1024, f.CreatedAt.Format(time.DateOnly))
	}
	return b.reply(ctx, req.Msg, sb.String())
}

func (b *Bot) deleteRemote(ctx context.Context, req *Request, id string) error {
	if id == "" {
		return b.reply(ctx, req.Msg, "Usage: `!uploaddata delete <file_id>`\n\nUse `!uploaddata list` to see available files")
	}
	if err := b.deps.LLM.DeleteFile(ctx, id); err != nil {
		return err
	}
	if b.deps.Files != nil {
		if err := b.deps.Files.Forget(id); err != nil {
			req.Logger.Warn("file cache update failed", slog.String("file_id", id), slog.String("error", err.Error()))
		}
	}
	return b.reply(ctx, req.Msg, fmt.Sprintf("🗑️ **File deleted successfully!**\n\nFile ID: `%s`", id))
}

func (b *Bot) deleteAllRemote(ctx context.Context, req *Request) error {
	files, err := b.deps.LLM.ListFiles(ctx)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return b.reply(ctx, req.Msg, "📁 **No uploaded files found**")
	}

	deleted := 0
	var failures []string
	for _, f := range files {
		if err := b.deps.LLM.DeleteFile(ctx, f.ID); err != nil {
			req.Logger.Warn("delete failed", slog.String("file_id", f.ID), slog.String("error", err.Error()))
			failures = append(failures, fmt.Sprintf("• %s: %s", f.Filename, apperr.UserMessage(err)))
			continue
		}
		deleted++
		if b.deps.Files != nil {
			if err := b.deps.Files.Forget(f.ID); err != nil {
				req.Logger.Warn("file cache update failed", slog.String("file_id", f.ID), slog.String("error", err.Error()))
			}
		}
	}

	text := fmt.Sprintf("🗑️ **Bulk Delete Complete!**\n\n✅ **Successfully deleted:** %d files\n", deleted)
	if len(failures) > 0 {
		text += fmt.Sprintf("❌ **Failed to delete:** %d files\n\n**Errors:**\n%s", len(failures), strings.Join(failures, "\n"))
	}
	return b.reply(ctx, req.Msg, text)
}
