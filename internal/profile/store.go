// Package profile manages the named personality configurations of the bot
// and the process-wide active profile.
package profile

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/lorekeeper/internal/apperr"
	"github.com/starford/lorekeeper/internal/models"
	"github.com/starford/lorekeeper/internal/storage"
)

// DefaultKey names the built-in profile that can never be deleted.
const DefaultKey = "locked-down"

var keyPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// Store persists one JSON file per profile and tracks the active one.
//
// Switching swaps a single pointer. Concurrent switches race and the last
// write wins; callers take a snapshot with Active at the start of a request.
type Store struct {
	fs     storage.Provider
	logger *slog.Logger

	active atomic.Pointer[models.Profile]
	// serialises file mutations so Create's existence check is meaningful
	mu sync.Mutex
}

// NewStore creates a Store and activates the default profile, writing it
// to disk when missing.
func NewStore(fs storage.Provider, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{fs: fs, logger: logger}
	if !fs.Exists(fileName(DefaultKey)) {
		if err := s.write(Default()); err != nil {
			return nil, fmt.Errorf("profile: seed default: %w", err)
		}
	}
	def, err := s.Get(DefaultKey)
	if err != nil {
		return nil, err
	}
	s.active.Store(&def)
	return s, nil
}

// Active returns a snapshot of the active profile.
func (s *Store) Active() models.Profile {
	return *s.active.Load()
}

// ActiveKey returns the key of the active profile.
func (s *Store) ActiveKey() string {
	return s.active.Load().Key
}

// Get loads one profile by key.
func (s *Store) Get(key string) (models.Profile, error) {
	if !keyPattern.MatchString(key) {
		return models.Profile{}, apperr.NotFound("profile %q", key)
	}
	var p models.Profile
	if err := storage.ReadJSON(s.fs, fileName(key), &p); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return models.Profile{}, apperr.NotFound("profile %q", key)
		}
		return models.Profile{}, fmt.Errorf("profile: load %s: %w", key, err)
	}
	p.Key = key
	applyDefaults(&p)
	return p, nil
}

// List returns all profiles sorted by key. Unreadable files are logged and skipped.
func (s *Store) List() ([]models.Profile, error) {
	files, err := s.fs.List("", ".json")
	if err != nil {
		return nil, fmt.Errorf("profile: list: %w", err)
	}
	out := make([]models.Profile, 0, len(files))
	for _, f := range files {
		key := strings.TrimSuffix(f.Path, ".json")
		p, err := s.Get(key)
		if err != nil {
			s.logger.Warn("profile: skipping file", slog.String("file", f.Path), slog.String("error", err.Error()))
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Switch makes key the active profile and returns it.
func (s *Store) Switch(key string) (models.Profile, error) {
	p, err := s.Get(key)
	if err != nil {
		return models.Profile{}, err
	}
	s.active.Store(&p)
	s.logger.Info("profile: switched", slog.String("profile", key))
	return p, nil
}

// Create validates and persists a new profile.
func (s *Store) Create(p models.Profile) (models.Profile, error) {
	applyDefaults(&p)
	if err := Validate(p); err != nil {
		return models.Profile{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fs.Exists(fileName(p.Key)) {
		return models.Profile{}, fmt.Errorf("profile %q: %w", p.Key, apperr.ErrAlreadyExists)
	}
	if err := s.write(p); err != nil {
		return models.Profile{}, err
	}
	return p, nil
}

// Patch lists the optional fields of an update.
type Patch struct {
	Name                       *string `json:"name"`
	Description                *string `json:"description"`
	SystemPrompt               *string `json:"systemPrompt"`
	MaxTokens                  *int    `json:"maxTokens"`
	ResponseLength             *string `json:"responseLength"`
	Personality                *string `json:"personality"`
	AllowSpeculation           *bool   `json:"allowSpeculation"`
	AllowOffTopic              *bool   `json:"allowOffTopic"`
	CitationStyle              *string `json:"citationStyle"`
	IncludeConversationContext *bool   `json:"includeConversationContext"`
}

// Apply returns p with the patch's set fields applied.
func (pt Patch) Apply(p models.Profile) models.Profile {
	setString(&p.Name, pt.Name)
	setString(&p.Description, pt.Description)
	setString(&p.SystemPrompt, pt.SystemPrompt)
	setString(&p.ResponseLength, pt.ResponseLength)
	setString(&p.Personality, pt.Personality)
	setString(&p.CitationStyle, pt.CitationStyle)
	if pt.MaxTokens != nil {
		p.MaxTokens = *pt.MaxTokens
	}
	if pt.AllowSpeculation != nil {
		p.AllowSpeculation = *pt.AllowSpeculation
	}
	if pt.AllowOffTopic != nil {
		p.AllowOffTopic = *pt.AllowOffTopic
	}
	if pt.IncludeConversationContext != nil {
		p.IncludeConversationContext = *pt.IncludeConversationContext
	}
	return p
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// Update applies patch to an existing profile. Updating the active profile
// swaps in the new value.
func (s *Store) Update(key string, patch Patch) (models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.Get(key)
	if err != nil {
		return models.Profile{}, err
	}
	next := patch.Apply(cur)
	if err := Validate(next); err != nil {
		return models.Profile{}, err
	}
	if err := s.write(next); err != nil {
		return models.Profile{}, err
	}
	if s.ActiveKey() == key {
		s.active.Store(&next)
	}
	return next, nil
}

// Delete removes a profile. The default profile cannot be deleted; deleting
// the active profile falls back to the default.
func (s *Store) Delete(key string) error {
	if key == DefaultKey {
		return apperr.Input("the %s profile cannot be deleted", DefaultKey)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.Get(key); err != nil {
		return err
	}
	if err := s.fs.Delete(fileName(key)); err != nil {
		return fmt.Errorf("profile: delete %s: %w", key, err)
	}
	if s.ActiveKey() == key {
		if _, err := s.Switch(DefaultKey); err != nil {
			return err
		}
	}
	return nil
}

// InitDefaults writes the preset profiles that do not exist yet and returns
// the keys it created.
func (s *Store) InitDefaults() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var created []string
	for _, p := range Presets() {
		if s.fs.Exists(fileName(p.Key)) {
			continue
		}
		if err := s.write(p); err != nil {
			return created, err
		}
		created = append(created, p.Key)
	}
	return created, nil
}

// Reload re-reads the active profile from disk, falling back to the default
// when its file has gone. It is called when profile files change externally.
func (s *Store) Reload() {
	key := s.ActiveKey()
	p, err := s.Get(key)
	if err != nil {
		s.logger.Warn("profile: active profile unavailable, reverting to default",
			slog.String("profile", key), slog.String("error", err.Error()))
		if !s.fs.Exists(fileName(DefaultKey)) {
			if err := s.write(Default()); err != nil {
				s.logger.Error("profile: restore default failed", slog.String("error", err.Error()))
			}
		}
		if p, err = s.Get(DefaultKey); err != nil {
			s.logger.Error("profile: default profile unavailable", slog.String("error", err.Error()))
			return
		}
	}
	s.active.Store(&p)
}

// Validate checks a profile with ozzo-validation rules.
func Validate(p models.Profile) error {
	err := validation.ValidateStruct(&p,
		validation.Field(&p.Key, validation.Required, validation.Match(keyPattern)),
		validation.Field(&p.Name, validation.Required, validation.Length(1, 100)),
		validation.Field(&p.SystemPrompt, validation.Required),
		validation.Field(&p.MaxTokens, validation.Required, validation.Min(1000), validation.Max(200000)),
		validation.Field(&p.CitationStyle, validation.In(models.CitationFAQID, models.CitationClickableURL)),
	)
	if err != nil {
		return fmt.Errorf("%w: %s", apperr.ErrInput, err.Error())
	}
	return nil
}

func applyDefaults(p *models.Profile) {
	if p.CitationStyle == "" {
		p.CitationStyle = models.CitationFAQID
	}
	if p.MaxTokens == 0 {
		p.MaxTokens = DefaultMaxTokens
	}
	if p.Name == "" {
		p.Name = p.Key
	}
}

func (s *Store) write(p models.Profile) error {
	if err := storage.WriteJSON(s.fs, fileName(p.Key), p); err != nil {
		return fmt.Errorf("profile: save %s: %w", p.Key, err)
	}
	return nil
}

func fileName(key string) string {
	return key + ".json"
}
