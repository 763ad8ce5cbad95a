package bot

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"
)

const monitorFooter = "Lorekeeper Monitor"

const monitorHelp = "**🤖 Monitor Command Help**\n\n" +
	"**Usage:** `!monitor <subcommand>`\n\n" +
	"• `!monitor status` - Show bot status and statistics\n" +
	"• `!monitor metrics` - Show runtime metrics\n" +
	"• `!monitor health` - Run health check\n" +
	"• `!monitor profiles` - Show available profiles\n" +
	"• `!monitor files` - Show uploaded files\n" +
	"• `!monitor costs` - Show API usage and cost"

func (b *Bot) monitor(ctx context.Context, req *Request) error {
	switch req.Cmd.Sub() {
	case "status":
		return b.transport.ReplyEmbed(ctx, req.Msg, b.statusEmbed())
	case "metrics":
		return b.transport.ReplyEmbed(ctx, req.Msg, b.metricsEmbed())
	case "health":
		return b.transport.ReplyEmbed(ctx, req.Msg, b.healthEmbed())
	case "costs":
		return b.transport.ReplyEmbed(ctx, req.Msg, b.costsEmbed(ctx))
	case "profiles":
		return b.monitorProfiles(ctx, req)
	case "files":
		return b.monitorFiles(ctx, req)
	default:
		return b.reply(ctx, req.Msg, monitorHelp)
	}
}

func healthText(ok bool) string {
	if ok {
		return "✅ Healthy"
	}
	return "❌ Unhealthy"
}

func check(ok bool) string {
	if ok {
		return "✅"
	}
	return "❌"
}

func healthColor(ok bool) int {
	if ok {
		return ColorOK
	}
	return ColorError
}

func (b *Bot) statusEmbed() Embed {
	st := b.deps.Monitor.Status()
	top := make([]string, 0, len(st.TopCommands))
	for _, c := range st.TopCommands {
		top = append(top, fmt.Sprintf("**%s**: %d", c.Command, c.Count))
	}
	if len(top) == 0 {
		top = append(top, "None")
	}
	last := "Never"
	if st.LastActivity.Unix() > 0 {
		last = fmt.Sprintf("<t:%d:R>", st.LastActivity.Unix())
	}
	return Embed{
		Title: "🤖 Bot Status",
		Color: healthColor(st.Healthy),
		Fields: []EmbedField{
			{Name: "Status", Value: healthText(st.Healthy), Inline: true},
			{Name: "Uptime", Value: st.Uptime, Inline: true},
			{Name: "Memory Usage", Value: fmt.Sprintf("%dMB", st.HeapMB), Inline: true},
			{Name: "Messages Processed", Value: fmt.Sprint(st.Messages), Inline: true},
			{Name: "Errors", Value: fmt.Sprint(st.Errors), Inline: true},
			{Name: "Profile Switches", Value: fmt.Sprint(st.ProfileSwitches), Inline: true},
			{Name: "File Uploads", Value: fmt.Sprintf("%d (%d failed)", st.Uploads, st.UploadFailures), Inline: true},
			{Name: "Last Activity", Value: last, Inline: true},
			{Name: "Top Commands", Value: strings.Join(top, "\n")},
		},
		Footer: monitorFooter,
	}
}

func (b *Bot) metricsEmbed() Embed {
	st := b.deps.Monitor.Status()
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return Embed{
		Title: "📊 System Metrics",
		Color: ColorInfo,
		Fields: []EmbedField{
			{Name: "Memory Usage", Value: fmt.Sprintf("**Heap Used:** %dMB\n**Heap Reserved:** %dMB\n**System:** %dMB",
				ms.HeapAlloc>>20, ms.HeapSys>>20, ms.Sys>>20), Inline: true},
			{Name: "Runtime", Value: fmt.Sprintf("**Goroutines:** %d\n**CPU Cores:** %d\n**GC Cycles:** %d",
				st.Goroutines, runtime.NumCPU(), ms.NumGC), Inline: true},
			{Name: "Bot Statistics", Value: fmt.Sprintf("**Messages:** %d\n**Errors:** %d\n**Profile Switches:** %d\n**Uploads:** %d",
				st.Messages, st.Errors, st.ProfileSwitches, st.Uploads), Inline: true},
		},
		Footer: monitorFooter,
	}
}

func (b *Bot) healthEmbed() Embed {
	h := b.deps.Monitor.Health(time.Now())
	return Embed{
		Title: "🏥 Health Check",
		Color: healthColor(h.Healthy),
		Fields: []EmbedField{
			{Name: "Overall Status", Value: healthText(h.Healthy)},
			{Name: "Health Checks", Value: fmt.Sprintf("**Recent Activity:** %s\n**Error Rate Healthy:** %s (%.1f%%)",
				check(h.RecentActivity), check(h.ErrorRateHealthy), h.ErrorRate*100)},
		},
		Footer: monitorFooter,
	}
}

func (b *Bot) costsEmbed(ctx context.Context) Embed {
	c := b.deps.Monitor.Costs(ctx)
	fields := []EmbedField{
		{Name: "Today", Value: fmt.Sprintf("$%.4f\n%d tokens\n%d calls", c.Today.Cost, c.Today.Tokens, c.Today.Requests), Inline: true},
		{Name: "Yesterday", Value: fmt.Sprintf("$%.4f\n%d tokens\n%d calls", c.Yesterday.Cost, c.Yesterday.Tokens, c.Yesterday.Requests), Inline: true},
		{Name: "Since Start", Value: fmt.Sprintf("$%.4f\n%d tokens\n%d calls", c.Total.Cost, c.Total.Tokens, c.Total.Requests), Inline: true},
		{Name: "Averages", Value: fmt.Sprintf("$%.4f per request\n%.0f tokens per request\n~$%.2f per month",
			c.CostPerRequest, c.TokensPerRequest, c.EstimatedMonthly)},
	}
	switch {
	case c.Ledger != nil:
		fields = append(fields, EmbedField{Name: "All Time", Value: fmt.Sprintf("$%.4f over %d calls (%d in / %d out tokens)",
			c.Ledger.Cost, c.Ledger.Calls, c.Ledger.InputTokens, c.Ledger.OutputTokens)})
	case c.LedgerUnavailable:
		fields = append(fields, EmbedField{Name: "All Time", Value: "Usage ledger unavailable"})
	}
	return Embed{Title: "💰 API Costs", Color: ColorInfo, Fields: fields, Footer: monitorFooter}
}

func (b *Bot) monitorProfiles(ctx context.Context, req *Request) error {
	profiles, err := b.deps.Profiles.List()
	if err != nil {
		return err
	}
	active := b.deps.Profiles.Active()
	var sb strings.Builder
	sb.WriteString("**Available Profiles:**\n")
	for _, p := range profiles {
		mark := "⚪"
		if p.Key == active.Key {
			mark = "🟢"
		}
		fmt.Fprintf(&sb, "%s **%s** - %s\n", mark, p.Name, p.Description)
	}
	fmt.Fprintf(&sb, "\n**Active Profile:** %s", active.Name)
	return b.reply(ctx, req.Msg, sb.String())
}

func (b *Bot) monitorFiles(ctx context.Context, req *Request) error {
	files, err := b.deps.LLM.ListFiles(ctx)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return b.reply(ctx, req.Msg, "No files uploaded.")
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "**Uploaded Files (%d):**\n", len(files))
	for _, f := range files {
		fmt.Fprintf(&sb, "• **%s** (%dKB) - %s\n", f.Filename, (f.SizeBytes+512)/1024, f.CreatedAt.Format(time.DateOnly))
	}
	return b.reply(ctx, req.Msg, sb.String())
}
