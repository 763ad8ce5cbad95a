package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/lorekeeper/internal/quiz"
	"github.com/starford/lorekeeper/internal/ratelimit"
)

func (b *Bot) runQuiz(ctx context.Context, req *Request) error {
	channel := req.Msg.ChannelID
	if req.Cmd.Sub() == "stop" {
		if b.quiz.Stop(channel) {
			return b.reply(ctx, req.Msg, "🎯 Quiz stopped! No more questions will be asked.")
		}
		return b.reply(ctx, req.Msg, "There is no active quiz in this channel.")
	}
	if _, ok := b.quiz.Active(channel); ok {
		return b.reply(ctx, req.Msg, "🎯 A quiz is already active! Use `!quiz stop` to end it first.")
	}
	if d := b.deps.Limiter.Check(req.Msg.AuthorID, ratelimit.Short); !d.Allowed {
		return b.reply(ctx, req.Msg, "⏰ **Rate Limited:** "+d.Message(b.deps.Limiter.Config().DailyLimit))
	}

	docs, err := b.deps.Knowledge.Load(ctx)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return b.reply(ctx, req.Msg, "❌ No knowledge base found. Cannot generate quiz questions.")
	}
	q, ok := b.deps.Quizzes.Generate(docs)
	if !ok {
		return b.reply(ctx, req.Msg, "❌ Could not generate a quiz question from the current knowledge base.")
	}
	if err := b.quiz.Start(channel, q); err != nil {
		if errors.Is(err, quiz.ErrActive) {
			return b.reply(ctx, req.Msg, "🎯 A quiz is already active! Use `!quiz stop` to end it first.")
		}
		return err
	}
	req.Logger.Info("quiz question asked", slog.String("quiz_id", q.ID), slog.String("category", q.Category))
	return b.reply(ctx, req.Msg, fmt.Sprintf("🎯 **QUIZ TIME!** 🎯\n\n**Question:** %s\n\n*First person to answer correctly wins!*", q.Text))
}

func (b *Bot) checkQuizAnswer(ctx context.Context, msg Message) {
	res, ok := b.quiz.Answer(msg.ChannelID, msg.AuthorID, msg.Content)
	if !ok {
		return
	}
	text := fmt.Sprintf("🎉 **CORRECT!** 🎉\n\n**%s** got it right!\n**Answer:** %s\n**Time:** %ds\n**Attempts:** %d\n\nGreat job! 🏆",
		msg.Author, res.Question.FullAnswer, int(res.Elapsed.Round(time.Second)/time.Second), res.Attempts)
	if err := b.reply(ctx, msg, text); err != nil {
		b.logger.Warn("quiz reply failed", slog.String("error", err.Error()))
	}
}

func (b *Bot) quizExpired(channelID string, q quiz.Question) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	text := fmt.Sprintf("⏰ **Time's up!** The correct answer was: **%s**\n\nBetter luck next time! 🎯", q.FullAnswer)
	if err := b.send(ctx, channelID, text); err != nil {
		b.logger.Warn("quiz timeout announcement failed", slog.String("channel_id", channelID), slog.String("error", err.Error()))
	}
}
