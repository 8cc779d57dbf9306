package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/taboard/internal/remote"
	"github.com/starford/taboard/internal/storage"
	"github.com/starford/taboard/internal/syncer"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Storage drivers.
const (
	StorageDriverFile   = "file"
	StorageDriverSQLite = "sqlite"
)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	Storage    StorageConfig     `yaml:"storage"`
	Remote     RemoteConfig      `yaml:"remote"`
	Sync       SyncConfig        `yaml:"sync"`
	Auth       AuthConfig        `yaml:"auth"`
	Credential CredentialConfig  `yaml:"credential"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Remote.Validate(); err != nil {
		return fmt.Errorf("remote: %w", err)
	}
	if err := c.Sync.Validate(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level    `yaml:"log_level"`
	LogFile  LogFileConfig `yaml:"log_file"`
	HTTP     HTTPConfig    `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := c.LogFile.Validate(); err != nil {
		return err
	}
	return c.HTTP.Validate()
}

// LogFileConfig enables a rotating log file next to stdout. An empty Path
// disables it.
type LogFileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Validate validates the log file configuration.
func (c *LogFileConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxSizeMB, validation.Min(0)),
		validation.Field(&c.MaxBackups, validation.Min(0)),
		validation.Field(&c.MaxAgeDays, validation.Min(0)),
	)
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

// StorageConfig selects where the board document and sync metadata live.
// For the file driver Path is a directory; for sqlite it is a database file.
type StorageConfig struct {
	Driver     string        `yaml:"driver"`
	Path       string        `yaml:"path"`
	Debounce   time.Duration `yaml:"debounce"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// Validate validates the storage configuration.
func (c *StorageConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required, validation.In(StorageDriverFile, StorageDriverSQLite)),
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
		validation.Field(&c.RetryDelay, validation.Min(time.Duration(0))),
	)
}

// RemoteConfig holds the remote file store settings.
type RemoteConfig struct {
	FileName   string           `yaml:"file_name"`
	Endpoints  remote.Endpoints `yaml:"endpoints"`
	RetryDelay time.Duration    `yaml:"retry_delay"`
	Timeout    time.Duration    `yaml:"timeout"`
}

// Validate validates the remote configuration.
func (c *RemoteConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.FileName, validation.Required, validation.Length(1, 255)),
		validation.Field(&c.RetryDelay, validation.Min(time.Duration(0))),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Second)),
	); err != nil {
		return err
	}
	e := &c.Endpoints
	return validation.ValidateStruct(e,
		validation.Field(&e.API, validation.Required),
		validation.Field(&e.Upload, validation.Required),
		validation.Field(&e.UserInfo, validation.Required),
		validation.Field(&e.Revoke, validation.Required),
	)
}

// SyncConfig holds the sync scheduling settings.
type SyncConfig struct {
	Interval         time.Duration `yaml:"interval"`
	Freshness        time.Duration `yaml:"freshness"`
	LocalChangeDelay time.Duration `yaml:"local_change_delay"`
}

// Validate validates the sync configuration.
func (c *SyncConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Interval, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.Freshness, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.LocalChangeDelay, validation.Min(time.Duration(0))),
	)
}

// AuthConfig holds authentication configuration for the local API.
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

// CredentialConfig holds the bearer credential for the remote store. It is
// usually injected from the environment; an empty token leaves the device
// unable to connect.
type CredentialConfig struct {
	Token string `yaml:"token"`
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			LogFile: LogFileConfig{
				MaxSizeMB:  10,
				MaxBackups: 3,
				MaxAgeDays: 28,
			},
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Storage: StorageConfig{
			Driver:     StorageDriverFile,
			Path:       "./data",
			Debounce:   storage.DefaultDebounce,
			RetryDelay: storage.DefaultRetryDelay,
		},
		Remote: RemoteConfig{
			FileName:   remote.DefaultFileName,
			Endpoints:  remote.DefaultEndpoints(),
			RetryDelay: remote.DefaultRetryDelay,
			Timeout:    remote.DefaultTimeout,
		},
		Sync: SyncConfig{
			Interval:         syncer.DefaultInterval,
			Freshness:        syncer.DefaultFreshness,
			LocalChangeDelay: syncer.DefaultLocalChangeDelay,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
