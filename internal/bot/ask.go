package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/starford/lorekeeper/internal/knowledge"
	"github.com/starford/lorekeeper/internal/profile"
	"github.com/starford/lorekeeper/internal/ratelimit"
)

const (
	msgNoKnowledge   = "❌ No knowledge base found. Please add some data files to the `data/` folder first."
	msgNoInformation = "I don't have information about that topic in my current knowledge base. Try asking about game mechanics, lore, or community topics."
)

func (b *Bot) ask(ctx context.Context, req *Request) error {
	question := req.Cmd.Text
	if question == "" {
		return b.reply(ctx, req.Msg, "Usage: `!ask <your question>`\nExample: `!ask What is the death penalty system?`")
	}

	if d := b.deps.Limiter.Check(req.Msg.AuthorID, ratelimit.Long); !d.Allowed {
		req.Logger.Info("rate limited", slog.String("reason", d.Reason))
		return b.reply(ctx, req.Msg, "⏰ **Rate Limited:** "+d.Message(b.deps.Limiter.Config().DailyLimit))
	}
	b.typing(ctx, req)

	docs, err := b.deps.Knowledge.Load(ctx)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return b.reply(ctx, req.Msg, msgNoKnowledge)
	}

	p := req.Profile
	system := profile.SystemPrompt(p)

	if !b.deps.LLM.ContextPassing() && b.deps.Files != nil && b.deps.Files.Len() > 0 {
		resp, err := b.deps.LLM.AskWithFiles(ctx, system, b.deps.Files.IDs(), question, 0)
		if err == nil {
			return b.answer(ctx, req, question, resp.Text)
		}
		req.Logger.Warn("file mode failed, falling back to context passing", slog.String("error", err.Error()))
	}

	ranked := b.deps.Scorer.Score(question, docs)
	if len(ranked) == 0 {
		return b.reply(ctx, req.Msg, msgNoInformation)
	}
	kb := b.deps.Builder.Build(question, knowledge.Rank(ranked, docs), p.MaxTokens)
	if kb == "" {
		return b.reply(ctx, req.Msg, msgNoInformation)
	}
	if p.IncludeConversationContext {
		if prev := b.previousExchange(ctx, req); prev != "" {
			kb = prev + "\n\n" + kb
		}
	}
	req.Logger.Debug("context built",
		slog.Int("documents", len(ranked)),
		slog.Int("chars", len(kb)),
		slog.String("class", string(b.deps.Builder.Classify(question))))

	resp, err := b.deps.LLM.Ask(ctx, system, kb, question, 0)
	if err != nil {
		return err
	}
	return b.answer(ctx, req, question, resp.Text)
}

func (b *Bot) askAll(ctx context.Context, req *Request) error {
	question := req.Cmd.Text
	if question == "" {
		return b.reply(ctx, req.Msg, "Usage: `!askall <your question>`\n\nThis command uses ALL available context for comprehensive answers.")
	}
	b.typing(ctx, req)

	docs, err := b.deps.Knowledge.Load(ctx)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return b.reply(ctx, req.Msg, msgNoKnowledge)
	}
	kb := b.deps.Builder.BuildAll(docs)
	req.Logger.Info("askall context",
		slog.Int("chars", len(kb)),
		slog.Int("estimated_tokens", (len(kb)+knowledge.CharsPerToken-1)/knowledge.CharsPerToken),
		slog.Int("documents", len(knowledge.Dedupe(docs))))

	resp, err := b.deps.LLM.Ask(ctx, profile.SystemPrompt(req.Profile), kb, question, 0)
	if err != nil {
		return err
	}
	return b.answer(ctx, req, question, resp.Text)
}

func (b *Bot) answer(ctx context.Context, req *Request, question, text string) error {
	return b.reply(ctx, req.Msg, fmt.Sprintf("**Question:** %s\n\n%s", question, text))
}

func (b *Bot) typing(ctx context.Context, req *Request) {
	if err := b.transport.Typing(ctx, req.Msg.ChannelID); err != nil {
		req.Logger.Debug("typing indicator failed", slog.String("error", err.Error()))
	}
}

// previousExchange finds this user's previous question and the bot reply
// that followed it in the channel history.
func (b *Bot) previousExchange(ctx context.Context, req *Request) string {
	if b.cfg.HistoryLimit <= 0 {
		return ""
	}
	history, err := b.transport.History(ctx, req.Msg.ChannelID, req.Msg.ID, b.cfg.HistoryLimit)
	if err != nil {
		req.Logger.Warn("conversation history unavailable", slog.String("error", err.Error()))
		return ""
	}

	var botReply string
	for _, m := range history {
		switch {
		case m.IsBot && botReply == "":
			botReply = m.Content
		case !m.IsBot && botReply != "" && m.AuthorID == req.Msg.AuthorID:
			prev, ok := Parse(m.Content, b.cfg.Prefix)
			if !ok || (prev.Name != "ask" && prev.Name != "askall") {
				continue
			}
			return fmt.Sprintf("RECENT CONVERSATION:\nUser: %s\nAssistant: %s", prev.Text, strings.TrimSpace(botReply))
		}
	}
	return ""
}

func (b *Bot) stats(ctx context.Context, req *Request) error {
	cfg := b.deps.Limiter.Config()
	var sb strings.Builder
	sb.WriteString("📊 **Usage Statistics** 📊\n\n")

	if s, ok := b.deps.Limiter.Stats(req.Msg.AuthorID); ok {
		fmt.Fprintf(&sb, "**Your Requests Today:** %d/%d\n", s.RequestsToday, s.DailyLimit)
		fmt.Fprintf(&sb, "**Resets:** <t:%d:R>\n\n", s.NextReset.Unix())
	} else {
		fmt.Fprintf(&sb, "**Your Requests Today:** 0/%d\n\n", cfg.DailyLimit)
	}

	users := b.deps.Limiter.Users()
	total := 0
	for _, u := range users {
		total += u.RequestsToday
	}
	costs := b.deps.Monitor.Costs(ctx)
	fmt.Fprintf(&sb, "**Total Requests Today:** %d\n", total)
	fmt.Fprintf(&sb, "**Active Users:** %d\n", len(users))
	fmt.Fprintf(&sb, "**API Cost Today:** $%.4f (%d calls)\n", costs.Today.Cost, costs.Today.Requests)
	fmt.Fprintf(&sb, "**Estimated Monthly:** $%.2f\n\n", costs.EstimatedMonthly)

	if top := topUsers(users, 5); len(top) > 0 && b.isAdmin(ctx, req.Msg) {
		sb.WriteString("**Top Users:**\n")
		for i, u := range top {
			fmt.Fprintf(&sb, "%d. <@%s>: %d requests\n", i+1, u.UserID, u.RequestsToday)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "**Rate Limit Settings:**\n- Daily limit: %d requests per user\n- Cooldown: %s (simple), %s (heavy context)\n- Cost per request: ~$%.3f (simple), ~$%.2f (complex)",
		cfg.DailyLimit, cfg.ShortCooldown, cfg.LongCooldown,
		ratelimit.EstimatedCost("ask_simple"), ratelimit.EstimatedCost("ask"))
	return b.reply(ctx, req.Msg, sb.String())
}

func topUsers(users []ratelimit.UserStats, n int) []ratelimit.UserStats {
	out := append([]ratelimit.UserStats(nil), users...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].RequestsToday > out[j].RequestsToday })
	if len(out) > n {
		out = out[:n]
	}
	return out
}
