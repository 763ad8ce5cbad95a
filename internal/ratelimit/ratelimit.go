// Package ratelimit enforces per-user daily caps and cooldowns for chat commands.
//
// Counters live only in memory. A restart grants every user a fresh quota;
// with more than one bot replica the limits are per process.
package ratelimit

import (
	"fmt"
	"sort"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Class selects the cooldown tier of a command.
type Class int

const (
	// Short is the cooldown tier for light commands.
	Short Class = iota
	// Long is the cooldown tier for commands that send large prompts.
	Long
)

// Denial reasons.
const (
	ReasonDailyLimit = "daily_limit"
	ReasonCooldown   = "cooldown"
)

// Config holds limiter settings.
type Config struct {
	DailyLimit    int           `yaml:"daily_limit"`
	ShortCooldown time.Duration `yaml:"short_cooldown"`
	LongCooldown  time.Duration `yaml:"long_cooldown"`
}

// DefaultConfig returns the stock limits: 20 requests a day, 30s and 2m cooldowns.
func DefaultConfig() Config {
	return Config{
		DailyLimit:    20,
		ShortCooldown: 30 * time.Second,
		LongCooldown:  2 * time.Minute,
	}
}

// Validate validates the limiter settings.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DailyLimit, validation.Required, validation.Min(1)),
		validation.Field(&c.ShortCooldown, validation.Min(time.Duration(0))),
		validation.Field(&c.LongCooldown, validation.Min(time.Duration(0))),
	)
}

// Decision is the outcome of a Check.
type Decision struct {
	Allowed    bool
	Reason     string
	RetryAfter time.Duration
	ResetAt    time.Time
	Remaining  int
}

// Message renders a user-facing explanation of a denial.
func (d Decision) Message(limit int) string {
	switch d.Reason {
	case ReasonDailyLimit:
		return fmt.Sprintf("You've reached your daily limit of %d requests. Try again tomorrow!", limit)
	case ReasonCooldown:
		secs := int((d.RetryAfter + time.Second - 1) / time.Second)
		return fmt.Sprintf("Please wait %d seconds before making another request.", secs)
	default:
		return ""
	}
}

type counter struct {
	requestsToday int
	dayBoundary   time.Time
	lastRequest   time.Time
}

// UserStats is a snapshot of one user's counters.
type UserStats struct {
	UserID        string    `json:"userId"`
	RequestsToday int       `json:"requestsToday"`
	DailyLimit    int       `json:"dailyLimit"`
	LastRequest   time.Time `json:"lastRequest"`
	NextReset     time.Time `json:"nextReset"`
}

// Limiter tracks per-user counters.
type Limiter struct {
	cfg Config
	now func() time.Time

	mu    sync.Mutex
	users map[string]*counter
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a Limiter.
func New(cfg Config, opts ...Option) *Limiter {
	l := &Limiter{
		cfg:   cfg,
		now:   time.Now,
		users: make(map[string]*counter),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Config returns the limiter settings.
func (l *Limiter) Config() Config {
	return l.cfg
}

// Check decides whether userID may run a command of the given class now.
// An allowed check consumes one request from the daily quota.
func (l *Limiter) Check(userID string, class Class) Decision {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.users[userID]
	if !ok {
		c = &counter{dayBoundary: nextMidnight(now)}
		l.users[userID] = c
	}
	if now.After(c.dayBoundary) || now.Equal(c.dayBoundary) {
		c.requestsToday = 0
		c.dayBoundary = nextMidnight(now)
	}

	if c.requestsToday >= l.cfg.DailyLimit {
		return Decision{
			Reason:     ReasonDailyLimit,
			RetryAfter: c.dayBoundary.Sub(now),
			ResetAt:    c.dayBoundary,
		}
	}

	cooldown := l.cfg.ShortCooldown
	if class == Long {
		cooldown = l.cfg.LongCooldown
	}
	if !c.lastRequest.IsZero() {
		if elapsed := now.Sub(c.lastRequest); elapsed < cooldown {
			return Decision{
				Reason:     ReasonCooldown,
				RetryAfter: cooldown - elapsed,
				ResetAt:    c.dayBoundary,
				Remaining:  l.cfg.DailyLimit - c.requestsToday,
			}
		}
	}

	c.requestsToday++
	c.lastRequest = now
	return Decision{
		Allowed:   true,
		ResetAt:   c.dayBoundary,
		Remaining: l.cfg.DailyLimit - c.requestsToday,
	}
}

// Stats returns userID's counters, or false when the user has no history.
func (l *Limiter) Stats(userID string) (UserStats, bool) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.users[userID]
	if !ok {
		return UserStats{}, false
	}
	return l.snapshot(userID, c, now), true
}

// Users returns every tracked user, sorted by id.
func (l *Limiter) Users() []UserStats {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]UserStats, 0, len(l.users))
	for id, c := range l.users {
		out = append(out, l.snapshot(id, c, now))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Reset forgets userID's counters.
func (l *Limiter) Reset(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.users, userID)
}

func (l *Limiter) snapshot(id string, c *counter, now time.Time) UserStats {
	st := UserStats{
		UserID:        id,
		RequestsToday: c.requestsToday,
		DailyLimit:    l.cfg.DailyLimit,
		LastRequest:   c.lastRequest,
		NextReset:     c.dayBoundary,
	}
	if !now.Before(c.dayBoundary) {
		st.RequestsToday = 0
	}
	return st
}

// nextMidnight returns the start of the day after t in t's location.
func nextMidnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}

// Cost estimates per command kind, in USD.
var estimatedCosts = map[string]float64{
	"ask":        0.01,
	"ask_simple": 0.003,
	"quiz":       0.005,
	"refresh":    0.02,
}

// EstimatedCost returns the rough per-request cost for a command kind.
func EstimatedCost(kind string) float64 {
	if c, ok := estimatedCosts[kind]; ok {
		return c
	}
	return estimatedCosts["ask"]
}
