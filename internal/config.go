package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Remote RemoteConfig      `yaml:"remote"`
	Mirror MirrorConfig      `yaml:"mirror"`
	Queue  QueueConfig       `yaml:"queue"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Auth   AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Remote.Validate(); err != nil {
		return err
	}
	if err := c.Mirror.Validate(); err != nil {
		return err
	}
	if err := c.Queue.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
	// ReplayPaceMS is the delay between consecutive replay writes, in
	// milliseconds. Zero means the default.
	ReplayPaceMS int `yaml:"replay_pace_ms"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.ReplayPaceMS, validation.Min(0)),
	); err != nil {
		return err
	}
	return c.HTTP.Validate()
}

// ReplayPace returns the configured replay pacing as a duration.
func (c *ApplicationConfig) ReplayPace() time.Duration {
	return time.Duration(c.ReplayPaceMS) * time.Millisecond
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

// RemoteConfig points at the hosted document repository.
type RemoteConfig struct {
	BaseURL string `yaml:"base_url"`
	// Repo is the "owner/name" pair of the data repository.
	Repo           string `yaml:"repo"`
	Branch         string `yaml:"branch"`
	Token          string `yaml:"token"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Validate validates the remote configuration.
func (c *RemoteConfig) Validate() error {
	if c.Branch == "" {
		c.Branch = "main"
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 30
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required),
		validation.Field(&c.Repo, validation.Required),
		validation.Field(&c.TimeoutSeconds, validation.Min(1)),
	)
}

// Timeout returns the per-request remote timeout.
func (c *RemoteConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// MirrorConfig holds the path of the local document mirror.
type MirrorConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the mirror configuration.
func (c *MirrorConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// QueueConfig holds the path of the offline mutation queue directory.
type QueueConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the queue configuration.
func (c *QueueConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
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

// AuthConfig holds authentication configuration for the local API.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication, suitable for the
//     embedded single-user case.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
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

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8099,
			},
		},
		Remote: RemoteConfig{
			BaseURL:        "https://api.github.com",
			Branch:         "main",
			TimeoutSeconds: 30,
		},
		Mirror: MirrorConfig{
			Path: "./mirror",
		},
		Queue: QueueConfig{
			Path: "./offline_updates",
		},
		SQLite: SQLiteConfig{
			Path: "./fieldsync.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
