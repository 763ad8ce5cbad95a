package internal

import (
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/lorekeeper/internal/bot"
	"github.com/starford/lorekeeper/internal/knowledge"
	"github.com/starford/lorekeeper/internal/llm"
	"github.com/starford/lorekeeper/internal/monitor"
	"github.com/starford/lorekeeper/internal/patchnotes"
	"github.com/starford/lorekeeper/internal/ratelimit"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Discord   bot.DiscordConfig `yaml:"discord"`
	Bot       bot.Config        `yaml:"bot"`
	LLM       llm.Config        `yaml:"llm"`
	Knowledge KnowledgeConfig   `yaml:"knowledge"`
	Profiles  ProfilesConfig    `yaml:"profiles"`
	Drafts    DraftsConfig      `yaml:"drafts"`
	RateLimit ratelimit.Config  `yaml:"rate_limit"`
	Dashboard DashboardConfig   `yaml:"dashboard"`
	Monitor   monitor.Config    `yaml:"monitor"`
}

// Validate validates the configuration. The Discord section is checked
// separately by the serve command, since the offline commands need no token.
func (c *Config) Validate() error {
	sections := []struct {
		name string
		v    validation.Validatable
	}{
		{"app", &c.App},
		{"bot", &c.Bot},
		{"llm", &c.LLM},
		{"knowledge", &c.Knowledge},
		{"profiles", &c.Profiles},
		{"drafts", &c.Drafts},
		{"rate_limit", &c.RateLimit},
		{"dashboard", &c.Dashboard},
		{"monitor", &c.Monitor},
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// KnowledgeConfig locates the knowledge base.
type KnowledgeConfig struct {
	Dir string `yaml:"dir"`
	// UploadsFile records the files uploaded to the model provider.
	UploadsFile string           `yaml:"uploads_file"`
	Topics      knowledge.Topics `yaml:"topics"`
}

// Validate validates the knowledge configuration.
func (c *KnowledgeConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.Required),
		validation.Field(&c.UploadsFile, validation.Required),
	)
}

// ProfilesConfig locates the profile files.
type ProfilesConfig struct {
	Dir string `yaml:"dir"`
}

// Validate validates the profiles configuration.
func (c *ProfilesConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.Required),
	)
}

// DraftsConfig holds patch-note draft storage and matcher settings.
type DraftsConfig struct {
	Dir        string                `yaml:"dir"`
	ImagesDir  string                `yaml:"images_dir"`
	Thresholds patchnotes.Thresholds `yaml:"thresholds"`
}

// Validate validates the drafts configuration.
func (c *DraftsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.Required),
		validation.Field(&c.ImagesDir, validation.Required),
	)
}

// DashboardConfig controls the HTTP dashboard. An enabled dashboard needs
// both credentials.
type DashboardConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	PublicURL string `yaml:"public_url"`
}

// Validate validates the dashboard configuration.
func (c *DashboardConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Username, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.Password, validation.When(c.Enabled || c.Username != "", validation.Required)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Bot: bot.DefaultConfig(),
		LLM: llm.DefaultConfig(),
		Knowledge: KnowledgeConfig{
			Dir:         "./data/knowledge",
			UploadsFile: "./data/uploaded_files.json",
			Topics:      knowledge.DefaultTopics(),
		},
		Profiles: ProfilesConfig{
			Dir: "./data/profiles",
		},
		Drafts: DraftsConfig{
			Dir:        "./data/drafts",
			ImagesDir:  "./data/images",
			Thresholds: patchnotes.DefaultThresholds(),
		},
		RateLimit: ratelimit.DefaultConfig(),
		Dashboard: DashboardConfig{
			Enabled: false,
		},
		Monitor: monitor.DefaultConfig(),
	}
}
