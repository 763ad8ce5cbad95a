// Package llm talks to the Anthropic Messages and Files APIs.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/lorekeeper/internal/apperr"
)

const service = "anthropic"

// Config holds completion endpoint settings.
type Config struct {
	BaseURL       string        `yaml:"base_url"`
	APIKey        string        `yaml:"api_key"`
	Model         string        `yaml:"model"`
	FallbackModel string        `yaml:"fallback_model"`
	MaxTokens     int           `yaml:"max_tokens"`
	Timeout       time.Duration `yaml:"timeout"`
	FilesBeta     string        `yaml:"files_beta"`
}

// DefaultConfig returns the stock endpoint settings. The API key is left empty.
func DefaultConfig() Config {
	return Config{
		BaseURL:       "https://api.anthropic.com/",
		Model:         "claude-sonnet-4-5-20250929",
		FallbackModel: "claude-sonnet-4-20250514",
		MaxTokens:     1000,
		Timeout:       2 * time.Minute,
		FilesBeta:     string(anthropic.AnthropicBetaFilesAPI2025_04_14),
	}
}

// Validate validates the endpoint settings.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required),
		validation.Field(&c.Model, validation.Required),
		validation.Field(&c.MaxTokens, validation.Required, validation.Min(1)),
		validation.Field(&c.Timeout, validation.Required),
	)
}

// Block is one structured content block of a message: text, or a document
// referencing an uploaded file.
type Block struct {
	Text   string
	FileID string
}

// TextBlock returns a text content block.
func TextBlock(text string) Block {
	return Block{Text: text}
}

// DocumentBlock returns a block referencing an uploaded file.
func DocumentBlock(fileID string) Block {
	return Block{FileID: fileID}
}

// Message is one turn of the conversation. Content is sent as a single text
// block unless Blocks is set.
type Message struct {
	Role    string
	Content string
	Blocks  []Block
}

func (m Message) usesFiles() bool {
	for _, b := range m.Blocks {
		if b.FileID != "" {
			return true
		}
	}
	return false
}

func (m Message) param() anthropic.BetaMessageParam {
	var blocks []anthropic.BetaContentBlockParamUnion
	if len(m.Blocks) == 0 {
		blocks = append(blocks, anthropic.NewBetaTextBlock(m.Content))
	}
	for _, b := range m.Blocks {
		if b.FileID != "" {
			blocks = append(blocks, anthropic.NewBetaDocumentBlock(anthropic.BetaFileDocumentSourceParam{FileID: b.FileID}))
			continue
		}
		blocks = append(blocks, anthropic.NewBetaTextBlock(b.Text))
	}
	role := anthropic.BetaMessageParamRoleUser
	if m.Role == "assistant" {
		role = anthropic.BetaMessageParamRoleAssistant
	}
	return anthropic.BetaMessageParam{Role: role, Content: blocks}
}

// Request is a completion request. MaxTokens of 0 uses the configured default.
type Request struct {
	System    string
	Messages  []Message
	MaxTokens int
}

// Usage reports token consumption of one completion.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is a completed generation.
type Response struct {
	Text  string
	Model string
	Usage Usage
}

// UsageRecorder receives the usage of every successful completion.
type UsageRecorder interface {
	TrackUsage(ctx context.Context, model, command string, inputTokens, outputTokens int)
}

// Client is an Anthropic API client.
type Client struct {
	cfg        Config
	api        anthropic.Client
	httpClient *http.Client
	logger     *slog.Logger
	recorder   UsageRecorder

	// true: pass knowledge as prompt context; false: reference uploaded files
	contextPassing atomic.Bool
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithUsageRecorder sets the usage hook.
func WithUsageRecorder(r UsageRecorder) Option {
	return func(c *Client) { c.recorder = r }
}

// New creates a Client. The SDK's own retries are off: a failed request is
// retried once, on the fallback model, by Complete.
func New(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.api = anthropic.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithHTTPClient(c.httpClient),
		option.WithMaxRetries(0),
	)
	c.contextPassing.Store(true)
	return c
}

// ContextPassing reports whether questions carry the knowledge base inline.
func (c *Client) ContextPassing() bool {
	return c.contextPassing.Load()
}

// SetContextPassing switches between inline context and uploaded files.
func (c *Client) SetContextPassing(on bool) {
	c.contextPassing.Store(on)
}

// Model returns the primary model name.
func (c *Client) Model() string {
	return c.cfg.Model
}

// Complete sends req to the primary model and, if that fails, once to the
// fallback model.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if c.cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: api key not configured: %w", apperr.ErrInput)
	}

	start := time.Now()
	resp, err := c.send(ctx, c.cfg.Model, req)
	if err != nil && c.cfg.FallbackModel != "" && c.cfg.FallbackModel != c.cfg.Model && ctx.Err() == nil {
		c.logger.Warn("llm: primary model failed, trying fallback",
			slog.String("model", c.cfg.Model),
			slog.String("fallback", c.cfg.FallbackModel),
			slog.String("error", err.Error()))
		resp, err = c.send(ctx, c.cfg.FallbackModel, req)
	}
	if err != nil {
		return nil, err
	}

	c.logger.Debug("llm: completion",
		slog.String("model", resp.Model),
		slog.Int("input_tokens", resp.Usage.InputTokens),
		slog.Int("output_tokens", resp.Usage.OutputTokens),
		slog.Duration("elapsed", time.Since(start)))

	if c.recorder != nil {
		c.recorder.TrackUsage(ctx, resp.Model, CommandFrom(ctx), resp.Usage.InputTokens, resp.Usage.OutputTokens)
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, model string, req Request) (*Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.cfg.MaxTokens
	}
	params := anthropic.BetaMessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  make([]anthropic.BetaMessageParam, 0, len(req.Messages)),
	}
	if req.System != "" {
		params.System = []anthropic.BetaTextBlockParam{{Text: req.System}}
	}
	for _, m := range req.Messages {
		params.Messages = append(params.Messages, m.param())
		if m.usesFiles() && len(params.Betas) == 0 {
			params.Betas = c.betas()
		}
	}

	msg, err := c.api.Beta.Messages.New(ctx, params)
	if err != nil {
		return nil, upstream(err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	got := string(msg.Model)
	if got == "" {
		got = model
	}
	return &Response{
		Text:  strings.TrimSpace(sb.String()),
		Model: got,
		Usage: Usage{InputTokens: int(msg.Usage.InputTokens), OutputTokens: int(msg.Usage.OutputTokens)},
	}, nil
}

func (c *Client) betas() []anthropic.AnthropicBeta {
	return []anthropic.AnthropicBeta{anthropic.AnthropicBeta(c.cfg.FilesBeta)}
}

// upstream converts an SDK failure into an *apperr.UpstreamError.
func upstream(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return classify(apiErr.StatusCode, []byte(apiErr.RawJSON()))
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &apperr.UpstreamError{Service: service, Message: err.Error()}
	}
	return &apperr.UpstreamError{Service: service, Message: err.Error(), Retryable: true}
}

type wireError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// classify maps an error response onto the upstream error taxonomy.
func classify(status int, body []byte) *apperr.UpstreamError {
	e := &apperr.UpstreamError{Service: service, Status: status}

	var we wireError
	if json.Unmarshal(body, &we) == nil && we.Error.Message != "" {
		e.Code = we.Error.Type
		e.Message = we.Error.Message
	} else {
		e.Message = strings.TrimSpace(string(body))
	}

	switch status {
	case http.StatusTooManyRequests, 529:
		e.RateLimited = true
		e.Retryable = true
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		e.Retryable = true
	}
	return e
}

type commandKey struct{}

// WithCommand tags ctx with the chat command that triggers a completion so
// usage can be attributed.
func WithCommand(ctx context.Context, command string) context.Context {
	return context.WithValue(ctx, commandKey{}, command)
}

// CommandFrom returns the command tag of ctx, or "unknown".
func CommandFrom(ctx context.Context) string {
	if cmd, ok := ctx.Value(commandKey{}).(string); ok && cmd != "" {
		return cmd
	}
	return "unknown"
}
