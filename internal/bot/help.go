package bot

import (
	"context"
	"fmt"
	"strings"
)

func (b *Bot) help(ctx context.Context, req *Request) error {
	p := b.cfg.Prefix
	if name := strings.TrimPrefix(req.Cmd.Sub(), p); name != "" {
		c, ok := b.commands[name]
		if !ok {
			return b.reply(ctx, req.Msg, fmt.Sprintf("Unknown command `%s%s`. Use `%shelp` to list commands.", p, name, p))
		}
		text := fmt.Sprintf("**%s%s**\n%s\n\n**Usage:** `%s%s`", p, c.name, c.summary, p, c.usage)
		if c.admin {
			text += "\n*Administrators only.*"
		}
		return b.reply(ctx, req.Msg, text)
	}

	admin := b.isAdmin(ctx, req.Msg)
	var sb strings.Builder
	sb.WriteString("📖 **Available Commands** 📖\n\n")
	for _, name := range b.commandNames() {
		c := b.commands[name]
		if c.admin && !admin {
			continue
		}
		fmt.Fprintf(&sb, "`%s%s` - %s\n", p, c.usage, c.summary)
	}
	fmt.Fprintf(&sb, "\nUse `%shelp <command>` for details.", p)
	return b.reply(ctx, req.Msg, sb.String())
}
