// Package monitor keeps process-wide counters, cost estimates and health.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/lorekeeper/internal/usage"
)

const dayLayout = "2006-01-02"

// Pricing is the estimated USD price per 1K tokens.
type Pricing struct {
	InputPer1K  float64 `yaml:"input_per_1k"`
	OutputPer1K float64 `yaml:"output_per_1k"`
}

// Config holds monitor settings.
type Config struct {
	FlushInterval time.Duration `yaml:"flush_interval"`
	HealthWindow  time.Duration `yaml:"health_window"`
	MaxErrorRate  float64       `yaml:"max_error_rate"`
	LedgerPath    string        `yaml:"ledger_path"`
	Pricing       Pricing       `yaml:"pricing"`
}

// DefaultConfig returns the stock monitor settings.
func DefaultConfig() Config {
	return Config{
		FlushInterval: 15 * time.Minute,
		HealthWindow:  5 * time.Minute,
		MaxErrorRate:  0.10,
		LedgerPath:    "./data/usage.db",
		Pricing:       Pricing{InputPer1K: 0.015, OutputPer1K: 0.075},
	}
}

// Validate validates the monitor settings.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.FlushInterval, validation.Required),
		validation.Field(&c.HealthWindow, validation.Required),
		validation.Field(&c.MaxErrorRate, validation.Required, validation.Max(1.0)),
	)
}

type tally struct {
	tokens   int64
	cost     float64
	requests int64
}

// Monitor aggregates bot activity. All methods are safe for concurrent use.
type Monitor struct {
	cfg    Config
	logger *slog.Logger
	ledger usage.Ledger
	now    func() time.Time
	start  time.Time

	messages        atomic.Int64
	errors          atomic.Int64
	profileSwitches atomic.Int64
	uploads         atomic.Int64
	uploadFailures  atomic.Int64
	lastActivity    atomic.Int64 // unix nanos

	mu       sync.Mutex
	commands map[string]int64
	total    tally
	daily    map[string]tally
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLedger persists usage to l.
func WithLedger(l usage.Ledger) Option {
	return func(m *Monitor) { m.ledger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// New creates a Monitor.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Monitor{
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		commands: make(map[string]int64),
		daily:    make(map[string]tally),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.start = m.now()
	m.lastActivity.Store(m.start.UnixNano())
	return m
}

// TrackMessage counts a handled message and, when command is non-empty, its command.
func (m *Monitor) TrackMessage(command string) {
	m.messages.Add(1)
	m.lastActivity.Store(m.now().UnixNano())
	if command == "" {
		return
	}
	m.mu.Lock()
	m.commands[command]++
	m.mu.Unlock()
}

// TrackError counts a failed command.
func (m *Monitor) TrackError(command string, err error) {
	m.errors.Add(1)
	m.logger.Error("command failed", slog.String("command", command), slog.String("error", err.Error()))
}

// TrackProfileSwitch counts a profile switch.
func (m *Monitor) TrackProfileSwitch(from, to string) {
	m.profileSwitches.Add(1)
	m.logger.Info("profile switched", slog.String("from", from), slog.String("to", to))
}

// TrackUpload counts a knowledge file upload.
func (m *Monitor) TrackUpload(name string, ok bool, fileID string) {
	if ok {
		m.uploads.Add(1)
		m.logger.Info("file uploaded", slog.String("file", name), slog.String("file_id", fileID))
		return
	}
	m.uploadFailures.Add(1)
	m.logger.Warn("file upload failed", slog.String("file", name))
}

// Cost estimates the USD cost of a completion.
func (m *Monitor) Cost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1000*m.cfg.Pricing.InputPer1K +
		float64(outputTokens)/1000*m.cfg.Pricing.OutputPer1K
}

// TrackUsage records token usage of one completion. It satisfies llm.UsageRecorder.
func (m *Monitor) TrackUsage(ctx context.Context, model, command string, inputTokens, outputTokens int) {
	now := m.now()
	cost := m.Cost(inputTokens, outputTokens)
	tokens := int64(inputTokens + outputTokens)

	m.mu.Lock()
	m.total.tokens += tokens
	m.total.cost += cost
	m.total.requests++
	day := m.daily[now.Format(dayLayout)]
	day.tokens += tokens
	day.cost += cost
	day.requests++
	m.daily[now.Format(dayLayout)] = day
	m.mu.Unlock()

	m.logger.Info("api usage",
		slog.String("model", model),
		slog.String("command", command),
		slog.Int("input_tokens", inputTokens),
		slog.Int("output_tokens", outputTokens),
		slog.Float64("estimated_cost", cost))

	if m.ledger == nil {
		return
	}
	_, err := m.ledger.Record(context.WithoutCancel(ctx), usage.Call{
		CreatedAt:    now,
		Model:        model,
		Command:      command,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Cost:         cost,
	})
	if err != nil {
		m.logger.Warn("usage ledger write failed", slog.String("error", err.Error()))
	}
}

// CommandCount is one entry of TopCommands.
type CommandCount struct {
	Command string `json:"command"`
	Count   int64  `json:"count"`
}

// TopCommands returns the n most used commands, ties by name.
func (m *Monitor) TopCommands(n int) []CommandCount {
	m.mu.Lock()
	out := make([]CommandCount, 0, len(m.commands))
	for c, k := range m.commands {
		out = append(out, CommandCount{Command: c, Count: k})
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Command < out[j].Command
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Status is a snapshot of the counters.
type Status struct {
	Healthy         bool             `json:"healthy"`
	Uptime          string           `json:"uptime"`
	StartedAt       time.Time        `json:"startedAt"`
	LastActivity    time.Time        `json:"lastActivity"`
	Messages        int64            `json:"messages"`
	Errors          int64            `json:"errors"`
	ProfileSwitches int64            `json:"profileSwitches"`
	Uploads         int64            `json:"uploads"`
	UploadFailures  int64            `json:"uploadFailures"`
	HeapMB          uint64           `json:"heapMb"`
	Goroutines      int              `json:"goroutines"`
	Commands        map[string]int64 `json:"commands"`
	TopCommands     []CommandCount   `json:"topCommands"`
}

// Status returns the current counters.
func (m *Monitor) Status() Status {
	now := m.now()
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	m.mu.Lock()
	commands := make(map[string]int64, len(m.commands))
	for c, k := range m.commands {
		commands[c] = k
	}
	m.mu.Unlock()

	return Status{
		Healthy:         m.Health(now).Healthy,
		Uptime:          FormatUptime(now.Sub(m.start)),
		StartedAt:       m.start,
		LastActivity:    time.Unix(0, m.lastActivity.Load()),
		Messages:        m.messages.Load(),
		Errors:          m.errors.Load(),
		ProfileSwitches: m.profileSwitches.Load(),
		Uploads:         m.uploads.Load(),
		UploadFailures:  m.uploadFailures.Load(),
		HeapMB:          ms.HeapAlloc / 1024 / 1024,
		Goroutines:      runtime.NumGoroutine(),
		Commands:        commands,
		TopCommands:     m.TopCommands(3),
	}
}

// Health is the result of a health evaluation.
type Health struct {
	Healthy          bool    `json:"healthy"`
	RecentActivity   bool    `json:"recentActivity"`
	ErrorRateHealthy bool    `json:"errorRateHealthy"`
	ErrorRate        float64 `json:"errorRate"`
}

// Health reports healthy when there was activity within the health window
// and the error rate is below the configured maximum.
func (m *Monitor) Health(now time.Time) Health {
	last := time.Unix(0, m.lastActivity.Load())
	h := Health{RecentActivity: now.Sub(last) < m.cfg.HealthWindow}
	if msgs := m.messages.Load(); msgs > 0 {
		h.ErrorRate = float64(m.errors.Load()) / float64(msgs)
	}
	h.ErrorRateHealthy = h.ErrorRate < m.cfg.MaxErrorRate
	h.Healthy = h.RecentActivity && h.ErrorRateHealthy
	return h
}

// Figure is a token and cost pair.
type Figure struct {
	Tokens   int64   `json:"tokens"`
	Cost     float64 `json:"cost"`
	Requests int64   `json:"requests"`
}

// Costs summarises spending.
type Costs struct {
	Total             Figure        `json:"total"`
	Today             Figure        `json:"today"`
	Yesterday         Figure        `json:"yesterday"`
	CostPerRequest    float64       `json:"costPerRequest"`
	TokensPerRequest  float64       `json:"tokensPerRequest"`
	EstimatedMonthly  float64       `json:"estimatedMonthly"`
	Ledger            *usage.Totals `json:"ledger,omitempty"`
	LedgerUnavailable bool          `json:"ledgerUnavailable,omitempty"`
}

// Costs returns in-memory cost figures plus the persisted ledger totals.
func (m *Monitor) Costs(ctx context.Context) Costs {
	now := m.now()
	m.mu.Lock()
	c := Costs{
		Total:     figure(m.total),
		Today:     figure(m.daily[now.Format(dayLayout)]),
		Yesterday: figure(m.daily[now.AddDate(0, 0, -1).Format(dayLayout)]),
	}
	m.mu.Unlock()

	if c.Total.Requests > 0 {
		c.CostPerRequest = c.Total.Cost / float64(c.Total.Requests)
		c.TokensPerRequest = float64(c.Total.Tokens) / float64(c.Total.Requests)
	}
	c.EstimatedMonthly = c.Today.Cost * 30

	if m.ledger != nil {
		t, err := m.ledger.Totals(ctx)
		if err != nil {
			m.logger.Warn("usage ledger read failed", slog.String("error", err.Error()))
			c.LedgerUnavailable = true
		} else {
			c.Ledger = &t
		}
	}
	return c
}

func figure(t tally) Figure {
	return Figure{Tokens: t.tokens, Cost: t.cost, Requests: t.requests}
}

// Run logs a metrics snapshot every flush interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.flush()
			return nil
		case <-ticker.C:
			m.flush()
		}
	}
}

func (m *Monitor) flush() {
	st := m.Status()
	m.logger.Info("metrics",
		slog.String("uptime", st.Uptime),
		slog.Int64("messages", st.Messages),
		slog.Int64("errors", st.Errors),
		slog.Int64("profile_switches", st.ProfileSwitches),
		slog.Int64("uploads", st.Uploads),
		slog.Uint64("heap_mb", st.HeapMB),
		slog.Int("goroutines", st.Goroutines))
	if h := m.Health(m.now()); !h.Healthy {
		m.logger.Warn("health check failed",
			slog.Bool("recent_activity", h.RecentActivity),
			slog.Float64("error_rate", h.ErrorRate))
	}
}

// FormatUptime renders d as "1d 2h 3m", "2h 3m", "3m 4s" or "4s".
func FormatUptime(d time.Duration) string {
	secs := int64(d / time.Second)
	mins, hours, days := secs/60, secs/3600, secs/86400
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours%24, mins%60)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, mins%60)
	case mins > 0:
		return fmt.Sprintf("%dm %ds", mins, secs%60)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}
