package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"identity-service/internal/auth/linker"
	"identity-service/internal/auth/orchestrator"
	"identity-service/internal/db"

	"github.com/caarlos0/env/v11"
)

const minSecretBytes = 32

// Database is the storage section, also loaded on its own by identityctl.
type Database struct {
	Driver string `env:"DATABASE_DRIVER" envDefault:"postgres"`
	DSN    string `env:"DATABASE_DSN"`
}

func (d Database) Validate() error {
	if _, err := db.ParseDialect(d.Driver); err != nil {
		return err
	}
	if strings.TrimSpace(d.DSN) == "" {
		return errors.New("DATABASE_DSN is required")
	}
	return nil
}

type Config struct {
	AppPort string `env:"APP_PORT" envDefault:"8080"`

	Database

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	EnabledProviders []string `env:"ENABLED_PROVIDERS" envSeparator:"," envDefault:"google"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string `env:"GOOGLE_REDIRECT_URL"`

	KeycloakIssuer        string `env:"KEYCLOAK_ISSUER"`
	KeycloakClientID      string `env:"KEYCLOAK_CLIENT_ID"`
	KeycloakRedirectURL   string `env:"KEYCLOAK_REDIRECT_URL"`
	KeycloakPublicBaseURL string `env:"KEYCLOAK_PUBLIC_BASE_URL"`

	GitHubClientID     string `env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `env:"GITHUB_CLIENT_SECRET"`
	GitHubRedirectURL  string `env:"GITHUB_REDIRECT_URL"`

	ConfirmationSecret       string        `env:"CONFIRMATION_SECRET"`
	ConfirmationTTL          time.Duration `env:"CONFIRMATION_TTL" envDefault:"30m"`
	ConnectUnverified        string        `env:"CONNECT_UNVERIFIED" envDefault:"reject"`
	DenyEmailLinkedElsewhere bool          `env:"DENY_EMAIL_LINKED_ELSEWHERE" envDefault:"true"`
	ProfileMergeFields       []string      `env:"PROFILE_MERGE_FIELDS" envSeparator:"," envDefault:"display_name,avatar_url"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	SessionTTL   time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	CookieSecure bool          `env:"COOKIE_SECURE" envDefault:"true"`

	NotifyChannel string `env:"NOTIFY_CHANNEL"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.EnabledProviders = normalizeList(cfg.EnabledProviders)
	cfg.ProfileMergeFields = normalizeList(cfg.ProfileMergeFields)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDatabase parses only the storage settings. Callers may override
// fields before calling Validate.
func LoadDatabase() (Database, error) {
	var d Database
	if err := env.Parse(&d); err != nil {
		return Database{}, fmt.Errorf("parse env: %w", err)
	}
	return d, nil
}

// Validate reports every configuration problem at once.
func (c Config) Validate() error {
	var errs []error

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, err)
	}

	if len(c.EnabledProviders) == 0 {
		errs = append(errs, errors.New("ENABLED_PROVIDERS must name at least one provider"))
	}
	for _, name := range c.EnabledProviders {
		if err := c.providerSettings(name); err != nil {
			errs = append(errs, err)
		}
	}

	mode, err := orchestrator.ParseConnectMode(c.ConnectUnverified)
	if err != nil {
		errs = append(errs, fmt.Errorf("CONNECT_UNVERIFIED: %w", err))
	}
	if mode == orchestrator.ConnectReconfirm && len(c.ConfirmationSecret) < minSecretBytes {
		errs = append(errs, fmt.Errorf("CONFIRMATION_SECRET must be at least %d bytes in reconfirm mode", minSecretBytes))
	}
	if c.ConfirmationSecret != "" && len(c.ConfirmationSecret) < minSecretBytes {
		errs = append(errs, fmt.Errorf("CONFIRMATION_SECRET must be at least %d bytes", minSecretBytes))
	}
	if c.ConfirmationTTL <= 0 {
		errs = append(errs, errors.New("CONFIRMATION_TTL must be positive"))
	}

	if _, err := linker.ParseFields(c.ProfileMergeFields); err != nil {
		errs = append(errs, fmt.Errorf("PROFILE_MERGE_FIELDS: %w", err))
	}

	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}

	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT %q must be json or text", c.LogFormat))
	}

	return errors.Join(errs...)
}

func (c Config) providerSettings(name string) error {
	var missing []string
	require := func(key, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, key)
		}
	}

	switch name {
	case "google":
		require("GOOGLE_CLIENT_ID", c.GoogleClientID)
		require("GOOGLE_CLIENT_SECRET", c.GoogleClientSecret)
		require("GOOGLE_REDIRECT_URL", c.GoogleRedirectURL)
	case "keycloak":
		require("KEYCLOAK_ISSUER", c.KeycloakIssuer)
		require("KEYCLOAK_CLIENT_ID", c.KeycloakClientID)
		require("KEYCLOAK_REDIRECT_URL", c.KeycloakRedirectURL)
		require("KEYCLOAK_PUBLIC_BASE_URL", c.KeycloakPublicBaseURL)
	case "github":
		require("GITHUB_CLIENT_ID", c.GitHubClientID)
		require("GITHUB_CLIENT_SECRET", c.GitHubClientSecret)
		require("GITHUB_REDIRECT_URL", c.GitHubRedirectURL)
	default:
		return fmt.Errorf("ENABLED_PROVIDERS: unknown provider %q", name)
	}

	if len(missing) > 0 {
		return fmt.Errorf("provider %s: missing %s", name, strings.Join(missing, ", "))
	}
	return nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
