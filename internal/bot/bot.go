// Package bot routes chat commands to the knowledge, profile, patch-note and
// monitoring services and formats their replies for the chat platform.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sort"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/starford/lorekeeper/internal/apperr"
	"github.com/starford/lorekeeper/internal/knowledge"
	"github.com/starford/lorekeeper/internal/llm"
	"github.com/starford/lorekeeper/internal/models"
	"github.com/starford/lorekeeper/internal/monitor"
	"github.com/starford/lorekeeper/internal/patchnotes"
	"github.com/starford/lorekeeper/internal/profile"
	"github.com/starford/lorekeeper/internal/quiz"
	"github.com/starford/lorekeeper/internal/ratelimit"
	"github.com/starford/lorekeeper/internal/textutil"
)

const msgAdminOnly = "❌ This command is only available to administrators."

// Config holds command-router settings.
type Config struct {
	Prefix         string        `yaml:"prefix"`
	AdminUserIDs   []string      `yaml:"admin_user_ids"`
	AdminRoleIDs   []string      `yaml:"admin_role_ids"`
	ChunkSize      int           `yaml:"chunk_size"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	QuizTimeout    time.Duration `yaml:"quiz_timeout"`
	// HistoryLimit is how many channel messages are searched for the
	// previous exchange when a profile includes conversation context.
	HistoryLimit int    `yaml:"history_limit"`
	DashboardURL string `yaml:"dashboard_url"`
}

// DefaultConfig returns the stock router settings.
func DefaultConfig() Config {
	return Config{
		Prefix:         "!",
		ChunkSize:      1900,
		RequestTimeout: 2 * time.Minute,
		QuizTimeout:    quiz.DefaultTimeout,
		HistoryLimit:   20,
	}
}

// Validate implements validation.Validatable.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Prefix, validation.Required, validation.Length(1, 3)),
		validation.Field(&c.ChunkSize, validation.Required, validation.Min(100), validation.Max(MaxMessageLen)),
		validation.Field(&c.RequestTimeout, validation.Required),
		validation.Field(&c.QuizTimeout, validation.Required),
		validation.Field(&c.HistoryLimit, validation.Min(0), validation.Max(100)),
	)
}

// LLM is the completion and file API used by the question commands.
type LLM interface {
	Ask(ctx context.Context, system, knowledge, question string, maxTokens int) (*llm.Response, error)
	AskWithFiles(ctx context.Context, system string, fileIDs []string, question string, maxTokens int) (*llm.Response, error)
	ContextPassing() bool
	SetContextPassing(on bool)
	UploadFile(ctx context.Context, name string, data []byte) (*llm.RemoteFile, error)
	ListFiles(ctx context.Context) ([]llm.RemoteFile, error)
	DeleteFile(ctx context.Context, id string) error
}

// Assembler builds patch-note drafts.
type Assembler interface {
	Assemble(ctx context.Context, opts patchnotes.Options) (*models.PatchDraft, error)
}

// Deps are the services the commands use.
type Deps struct {
	Knowledge  *knowledge.Store
	Scorer     *knowledge.Scorer
	Builder    *knowledge.ContextBuilder
	LLM        LLM
	Files      *llm.FileCache
	Profiles   *profile.Store
	Limiter    *ratelimit.Limiter
	Monitor    *monitor.Monitor
	PatchNotes Assembler
	Quizzes    *quiz.Generator
}

// Request is one command invocation.
type Request struct {
	ID      string
	Msg     Message
	Cmd     Command
	Profile models.Profile
	Logger  *slog.Logger
}

type handlerFunc func(ctx context.Context, req *Request) error

type command struct {
	name    string
	admin   bool
	usage   string
	summary string
	run     handlerFunc
}

// Bot dispatches chat messages to command handlers.
type Bot struct {
	cfg       Config
	deps      Deps
	transport Transport
	logger    *slog.Logger
	quiz      *quiz.Manager
	commands  map[string]*command
}

// New creates a Bot.
func New(cfg Config, deps Deps, transport Transport, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bot{cfg: cfg, deps: deps, transport: transport, logger: logger}
	b.quiz = quiz.NewManager(cfg.QuizTimeout, b.quizExpired, logger)
	b.register()
	return b
}

func (b *Bot) register() {
	b.commands = make(map[string]*command)
	for _, c := range []*command{
		{name: "help", usage: "help [command]", summary: "Show available commands", run: b.help},
		{name: "ask", usage: "ask <question>", summary: "Ask a question about the game", run: b.ask},
		{name: "askall", admin: true, usage: "askall <question>", summary: "Ask using the whole knowledge base", run: b.askAll},
		{name: "quiz", usage: "quiz [stop]", summary: "Start a trivia question", run: b.runQuiz},
		{name: "stats", usage: "stats", summary: "Show your usage and the cost summary", run: b.stats},
		{name: "profile", usage: "profile <list|current|switch|info|create|update|delete|context|init>", summary: "Manage bot personalities", run: b.profile},
		{name: "patchnotes", admin: true, usage: "patchnotes [--with-images] [--ai]", summary: "Draft patch notes since the last version post", run: b.patchNotes},
		{name: "uploaddata", admin: true, usage: "uploaddata <upload|toggle|status|list|delete|deleteall|clear>", summary: "Manage uploaded knowledge files", run: b.uploadData},
		{name: "monitor", admin: true, usage: "monitor <status|metrics|health|profiles|files|costs>", summary: "Bot health and metrics", run: b.monitor},
		{name: "refreshfaq", admin: true, usage: "refreshfaq <forum_channel_id> [--bump]", summary: "Rebuild the forum FAQ knowledge file", run: b.refreshFAQ},
		{name: "index", admin: true, usage: "index <forum_channel_id> [discord|markdown|plain|numbered]", summary: "List forum thread titles", run: b.index},
	} {
		b.commands[c.name] = c
	}
}

func (b *Bot) commandNames() []string {
	names := make([]string, 0, len(b.commands))
	for n := range b.commands {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Close stops open quizzes.
func (b *Bot) Close() {
	b.quiz.Close()
}

// Handle processes one inbound message.
func (b *Bot) Handle(ctx context.Context, msg Message) {
	if msg.IsBot {
		return
	}
	cmd, ok := Parse(msg.Content, b.cfg.Prefix)
	if !ok {
		b.checkQuizAnswer(ctx, msg)
		return
	}
	c, ok := b.commands[cmd.Name]
	if !ok {
		return
	}

	req := &Request{
		ID:      uuid.NewString(),
		Msg:     msg,
		Cmd:     cmd,
		Profile: b.deps.Profiles.Active(),
	}
	req.Logger = b.logger.With(
		slog.String("request_id", req.ID),
		slog.String("command", cmd.Name),
		slog.String("user_id", msg.AuthorID),
		slog.String("channel_id", msg.ChannelID),
	)
	b.deps.Monitor.TrackMessage(cmd.Name)

	ctx, cancel := context.WithTimeout(llm.WithCommand(ctx, cmd.Name), b.cfg.RequestTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			req.Logger.Error("command panicked", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			b.deps.Monitor.TrackError(cmd.Name, err)
			_ = b.reply(ctx, msg, apperr.UserMessage(err))
		}
	}()

	if c.admin && !b.isAdmin(ctx, msg) {
		_ = b.reply(ctx, msg, msgAdminOnly)
		return
	}

	start := time.Now()
	err := c.run(ctx, req)
	if err != nil {
		req.Logger.Error("command failed", slog.String("error", err.Error()), slog.Duration("elapsed", time.Since(start)))
		b.deps.Monitor.TrackError(cmd.Name, err)
		if rerr := b.reply(ctx, msg, apperr.UserMessage(err)); rerr != nil {
			req.Logger.Warn("error reply failed", slog.String("error", rerr.Error()))
		}
		return
	}
	req.Logger.Info("command handled", slog.Duration("elapsed", time.Since(start)))
}

func (b *Bot) isAdmin(ctx context.Context, msg Message) bool {
	if slices.Contains(b.cfg.AdminUserIDs, msg.AuthorID) {
		return true
	}
	return b.transport.IsAdmin(ctx, msg)
}

// reply sends text to the author of msg, split into chunks that fit the
// platform limit.
func (b *Bot) reply(ctx context.Context, msg Message, text string) error {
	for _, chunk := range textutil.Chunk(text, b.cfg.ChunkSize) {
		if err := b.transport.Reply(ctx, msg, chunk); err != nil {
			return fmt.Errorf("bot: reply: %w", err)
		}
	}
	return nil
}

func (b *Bot) send(ctx context.Context, channelID, text string) error {
	for _, chunk := range textutil.Chunk(text, b.cfg.ChunkSize) {
		if err := b.transport.Send(ctx, channelID, chunk); err != nil {
			return fmt.Errorf("bot: send: %w", err)
		}
	}
	return nil
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
