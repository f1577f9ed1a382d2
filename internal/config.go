package internal

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/tasklink/internal/models"
	"github.com/starford/tasklink/internal/render"
	"github.com/starford/tasklink/internal/syncer"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Registry backends.
const (
	RegistrySQLite   = "sqlite"
	RegistrySettings = "settings"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Vault    VaultConfig       `yaml:"vault"`
	SQLite   SQLiteConfig      `yaml:"sqlite"`
	Auth     AuthConfig        `yaml:"auth"`
	Remote   RemoteConfig      `yaml:"remote"`
	Registry RegistryConfig    `yaml:"registry"`
	Display  DisplayConfig     `yaml:"display"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{&c.App, &c.Vault, &c.SQLite, &c.Auth, &c.Remote, &c.Registry, &c.Display} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
	// Workers bounds concurrent remote calls during bulk syncs.
	Workers int `yaml:"workers"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Workers, validation.Min(1), validation.Max(64)),
	); err != nil {
		return fmt.Errorf("app: %w", err)
	}
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

// VaultConfig holds the path to the Markdown vault directory.
type VaultConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
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

// AuthConfig holds authentication configuration for the HTTP API.
//
// Mode is "disabled" (default, local use) or "token" (Bearer token, Token
// must be non-empty).
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

// RemoteConfig points at the remote task store.
type RemoteConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
	// ListID is used as is when set. Otherwise the id cached in the
	// settings file is used, and failing that the list called ListName is
	// looked up or created.
	ListID   string        `yaml:"list_id"`
	ListName string        `yaml:"list_name"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Validate validates the remote configuration.
func (c *RemoteConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required, is.URL),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	); err != nil {
		return fmt.Errorf("remote: %w", err)
	}
	if c.ListID == "" && c.ListName == "" {
		return fmt.Errorf("remote: one of list_id or list_name is required")
	}
	return nil
}

// RegistryConfig selects where block link tokens are persisted.
type RegistryConfig struct {
	Backend string `yaml:"backend"`
	// SettingsPath is the YAML settings file. With the sqlite backend its
	// tokens are imported once at startup.
	SettingsPath string `yaml:"settings_path"`
}

// Validate validates the registry configuration.
func (c *RegistryConfig) Validate() error {
	if c.Backend == "" {
		c.Backend = RegistrySQLite
	}
	err := validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.In(RegistrySQLite, RegistrySettings)),
		validation.Field(&c.SettingsPath, validation.When(c.Backend == RegistrySettings, validation.Required)),
	)
	if err != nil {
		return fmt.Errorf("registry: %w", err)
	}
	return nil
}

// DisplayConfig controls how tasks are parsed from and written to notes.
type DisplayConfig struct {
	Template      string               `yaml:"template"`
	Glyphs        models.Glyphs        `yaml:"glyphs"`
	StatusSymbols models.StatusSymbols `yaml:"status_symbols"`
	// CreatedIn is the body given to new tasks; %s receives the note name.
	CreatedIn     string `yaml:"created_in"`
	LinkAppName   string `yaml:"link_app_name"`
	LinkURL       string `yaml:"link_url"`
	DateFormat    string `yaml:"date_format"`
	CreatedPrefix string `yaml:"created_prefix"`
	BodyPrefix    string `yaml:"body_prefix"`
}

// Validate validates the display configuration.
func (c *DisplayConfig) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.Template, validation.Required, validation.By(containsPlaceholder(render.PlaceholderTask))),
		validation.Field(&c.CreatedIn, validation.By(singleVerb)),
		validation.Field(&c.LinkURL, validation.When(c.LinkURL != "", validation.By(containsPlaceholder(syncer.PlaceholderFile)))),
	)
	if err != nil {
		return fmt.Errorf("display: %w", err)
	}
	if c.Glyphs.Low != "" && c.Glyphs.Low == c.Glyphs.High {
		return fmt.Errorf("display: low and high glyphs must differ")
	}
	return nil
}

func containsPlaceholder(p string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if !strings.Contains(s, p) {
			return fmt.Errorf("must contain %s", p)
		}
		return nil
	}
}

func singleVerb(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if strings.Count(s, "%s") != 1 || strings.Count(s, "%") != 1 {
		return fmt.Errorf("must contain exactly one %%s")
	}
	return nil
}

// RenderOptions returns the serializer settings.
func (c *DisplayConfig) RenderOptions() render.Options {
	return render.Options{Template: c.Template, Symbols: c.StatusSymbols, Glyphs: c.Glyphs}
}

// DigestOptions returns the daily digest settings.
func (c *DisplayConfig) DigestOptions() render.DigestOptions {
	return render.DigestOptions{DateFormat: c.DateFormat, CreatedPrefix: c.CreatedPrefix, BodyPrefix: c.BodyPrefix}
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
			Workers: 4,
		},
		Vault: VaultConfig{
			Path: "./vault",
		},
		SQLite: SQLiteConfig{
			Path: "./tasklink.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Remote: RemoteConfig{
			ListName: "Obsidian",
			Timeout:  30 * time.Second,
		},
		Registry: RegistryConfig{
			Backend: RegistrySQLite,
		},
		Display: DisplayConfig{
			Template:      render.DefaultTemplate,
			Glyphs:        models.Glyphs{Low: "🔽", High: "🔼"},
			StatusSymbols: models.DefaultStatusSymbols(),
			CreatedIn:     "Created in [[%s]]",
			LinkAppName:   "Obsidian",
			DateFormat:    "2006-01-02",
			CreatedPrefix: "🔎",
			BodyPrefix:    "💡",
		},
	}
}
