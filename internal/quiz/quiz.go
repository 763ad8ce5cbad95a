package quiz

import (
	"errors"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/lorekeeper/internal/models"
)

const (
	// DefaultTimeout is how long a question stays open.
	DefaultTimeout = 60 * time.Second
	maxAttempts    = 50
)

// ErrActive is returned when a channel already has an open question.
var ErrActive = errors.New("a quiz is already active in this channel")

// Question is one generated trivia question.
type Question struct {
	ID         string
	Category   string
	Text       string
	Answer     string
	FullAnswer string
}

// Generator picks random templates until one yields a question.
type Generator struct {
	templates []Template
	rng       *rand.Rand
}

// NewGenerator creates a Generator. A nil rng is seeded randomly.
func NewGenerator(templates []Template, rng *rand.Rand) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Generator{templates: templates, rng: rng}
}

// Generate returns a question drawn from docs, or false when no template
// matched after a bounded number of attempts.
func (g *Generator) Generate(docs []models.Document) (Question, bool) {
	if len(g.templates) == 0 || len(docs) == 0 {
		return Question{}, false
	}
	for range maxAttempts {
		t := g.templates[g.rng.IntN(len(g.templates))]
		for _, doc := range docs {
			if t.Category != CategoryGeneral && doc.Category != t.Category {
				continue
			}
			f, ok := t.Extract(doc, g.rng)
			if !ok {
				continue
			}
			return Question{
				ID:         uuid.NewString(),
				Category:   t.Category,
				Text:       t.Render(f),
				Answer:     f.Answer,
				FullAnswer: f.FullAnswer,
			}, true
		}
	}
	return Question{}, false
}

// Result describes a correctly answered question.
type Result struct {
	Question Question
	UserID   string
	Attempts int
	Elapsed  time.Duration
}

type session struct {
	q        Question
	answer   string
	started  time.Time
	attempts int
	timer    *time.Timer
}

// Manager tracks the open question of every channel.
type Manager struct {
	timeout   time.Duration
	onTimeout func(channelID string, q Question)
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

// NewManager creates a Manager. onTimeout runs on its own goroutine when a
// question expires unanswered.
func NewManager(timeout time.Duration, onTimeout func(channelID string, q Question), logger *slog.Logger) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		timeout:   timeout,
		onTimeout: onTimeout,
		logger:    logger,
		now:       time.Now,
		sessions:  make(map[string]*session),
	}
}

// Start opens q in channelID.
func (m *Manager) Start(channelID string, q Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[channelID]; ok {
		return ErrActive
	}
	s := &session{q: q, answer: strings.ToLower(strings.TrimSpace(q.Answer)), started: m.now()}
	s.timer = time.AfterFunc(m.timeout, func() { m.expire(channelID, s) })
	m.sessions[channelID] = s
	m.logger.Info("quiz: started", slog.String("channel", channelID), slog.String("quiz_id", q.ID))
	return nil
}

func (m *Manager) expire(channelID string, s *session) {
	m.mu.Lock()
	if m.sessions[channelID] != s {
		m.mu.Unlock()
		return
	}
	delete(m.sessions, channelID)
	m.mu.Unlock()

	m.logger.Info("quiz: timed out", slog.String("channel", channelID), slog.String("quiz_id", s.q.ID))
	if m.onTimeout != nil {
		m.onTimeout(channelID, s.q)
	}
}

// Active returns the open question of channelID.
func (m *Manager) Active(channelID string) (Question, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[channelID]
	if !ok {
		return Question{}, false
	}
	return s.q, true
}

// Stop closes the question of channelID. It reports whether one was open.
func (m *Manager) Stop(channelID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[channelID]
	if !ok {
		return false
	}
	s.timer.Stop()
	delete(m.sessions, channelID)
	return true
}

// Answer checks a chat message against the open question. A message that
// contains the answer, case-insensitively, wins and closes the question.
func (m *Manager) Answer(channelID, userID, content string) (Result, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[channelID]
	if !ok {
		return Result{}, false
	}
	s.attempts++
	if s.answer == "" || !strings.Contains(strings.ToLower(content), s.answer) {
		return Result{}, false
	}
	s.timer.Stop()
	delete(m.sessions, channelID)
	return Result{Question: s.q, UserID: userID, Attempts: s.attempts, Elapsed: m.now().Sub(s.started)}, true
}

// Close stops every open question without announcing it.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		s.timer.Stop()
		delete(m.sessions, id)
	}
}
