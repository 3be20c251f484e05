package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_DSN", "/tmp/identity.db")
	t.Setenv("ENABLED_PROVIDERS", " GitHub , ")
	t.Setenv("GITHUB_CLIENT_ID", "id")
	t.Setenv("GITHUB_CLIENT_SECRET", "secret")
	t.Setenv("GITHUB_REDIRECT_URL", "http://localhost:8080/oauth/callback/github")
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.AppPort)
	assert.Equal(t, []string{"github"}, cfg.EnabledProviders)
	assert.Equal(t, 30*time.Minute, cfg.ConfirmationTTL)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, "reject", cfg.ConnectUnverified)
	assert.True(t, cfg.DenyEmailLinkedElsewhere)
	assert.True(t, cfg.CookieSecure)
	assert.Equal(t, []string{"display_name", "avatar_url"}, cfg.ProfileMergeFields)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadRejectsMissingProviderSettings(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("ENABLED_PROVIDERS", "github,google")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GOOGLE_CLIENT_ID")
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("ENABLED_PROVIDERS", "myspace")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "myspace")
}

func TestLoadReconfirmNeedsSecret(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("CONNECT_UNVERIFIED", "reconfirm")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONFIRMATION_SECRET")

	t.Setenv("CONFIRMATION_SECRET", "0123456789abcdef0123456789abcdef")
	_, err = Load()
	assert.NoError(t, err)
}

func TestLoadRejectsBadValues(t *testing.T) {
	for key, value := range map[string]string{
		"CONNECT_UNVERIFIED":   "allow",
		"PROFILE_MERGE_FIELDS": "email",
		"DATABASE_DRIVER":      "mysql",
		"LOG_FORMAT":           "xml",
		"SESSION_TTL":          "0s",
	} {
		t.Run(key, func(t *testing.T) {
			setBaseEnv(t)
			t.Setenv(key, value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadDatabase(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_DSN", "")

	d, err := LoadDatabase()
	require.NoError(t, err)
	assert.Error(t, d.Validate())

	t.Setenv("DATABASE_DSN", "file.db")
	d, err = LoadDatabase()
	require.NoError(t, err)
	assert.NoError(t, d.Validate())
	assert.Equal(t, "sqlite", d.Driver)
}
