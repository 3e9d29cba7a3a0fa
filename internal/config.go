package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/robfig/cron/v3"

	"github.com/starford/council/internal/docgen"
	"github.com/starford/council/internal/gesture"
	"github.com/starford/council/internal/poller"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// DefaultCommittees seeds the committee list of a fresh database.
var DefaultCommittees = []string{
	"Budget and Finance",
	"Education",
	"Public Safety",
	"Public Works",
	"Planning and Zoning",
	"Health and Human Services",
	"Parks and Recreation",
	"Rules and Ethics",
}

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	SQLite     SQLiteConfig      `yaml:"sqlite"`
	Auth       AuthConfig        `yaml:"auth"`
	Documents  DocumentsConfig   `yaml:"documents"`
	View       ViewConfig        `yaml:"view"`
	Committees []string          `yaml:"committees"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Documents.Validate(); err != nil {
		return fmt.Errorf("documents: %w", err)
	}
	if err := c.View.Validate(); err != nil {
		return fmt.Errorf("view: %w", err)
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

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// DocumentsConfig configures agenda generation.
type DocumentsConfig struct {
	// Path is the directory agenda PDFs are written to and served from.
	Path            string        `yaml:"path"`
	Workers         int           `yaml:"workers"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	PollMaxAttempts int           `yaml:"poll_max_attempts"`
	// Sweep is a cron spec for regenerating missing upcoming agendas. Empty disables it.
	Sweep         string        `yaml:"sweep"`
	RenderTimeout time.Duration `yaml:"render_timeout"`
	// ChromePath overrides the browser binary; empty searches the usual locations.
	ChromePath string `yaml:"chrome_path"`
}

// Validate validates the documents configuration.
func (c *DocumentsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.Workers, validation.Min(1), validation.Max(32)),
		validation.Field(&c.PollInterval, validation.Min(100*time.Millisecond)),
		validation.Field(&c.PollMaxAttempts, validation.Min(1)),
		validation.Field(&c.Sweep, validation.By(cronSpec)),
		validation.Field(&c.RenderTimeout, validation.Min(time.Second)),
	)
}

func cronSpec(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := cron.ParseStandard(s); err != nil {
		return validation.NewError("validation_cron", "must be a valid cron expression")
	}
	return nil
}

// ViewConfig configures the calendar view.
type ViewConfig struct {
	// ClickWindow is how long a click waits for a second one.
	ClickWindow time.Duration `yaml:"click_window"`
	// Timezone is the IANA zone the council meets in; it decides "today".
	Timezone string `yaml:"timezone"`
}

// Validate validates the view configuration.
func (c *ViewConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ClickWindow, validation.Min(50*time.Millisecond), validation.Max(2*time.Second)),
		validation.Field(&c.Timezone, validation.By(timezone)),
	)
}

// Location resolves Timezone; empty means the local zone.
func (c *ViewConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

func timezone(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := time.LoadLocation(s); err != nil {
		return validation.NewError("validation_timezone", "must be an IANA time zone")
	}
	return nil
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
		SQLite: SQLiteConfig{
			Path: "./council.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Documents: DocumentsConfig{
			Path:            "./agendas",
			Workers:         2,
			PollInterval:    poller.DefaultInterval,
			PollMaxAttempts: poller.DefaultMaxAttempts,
			Sweep:           "*/15 * * * *",
			RenderTimeout:   docgen.DefaultRenderTimeout,
		},
		View: ViewConfig{
			ClickWindow: gesture.DefaultWindow,
		},
		Committees: DefaultCommittees,
	}
}
