package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimalYAML = `
database:
  url: postgres://localhost/test
auth:
  jwt_secret: secret
rate_limit:
  activate:
    max_attempts: 3
    window: 10m
products:
  - slug: screener
    trial_enabled: true
`

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalYAML), true)
	require.NoError(t, err)

	assert.True(t, cfg.Runtime.Dev)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 1, cfg.Activation.MinBatch)
	assert.Equal(t, 100, cfg.Activation.MaxBatch)
	assert.Equal(t, 2*time.Hour, cfg.Trial.Grace)
	assert.Equal(t, RateRule{MaxAttempts: 3, Window: 10 * time.Minute}, cfg.RateLimit["activate"])

	require.Len(t, cfg.Products, 1)
	assert.Equal(t, "monthly", cfg.Products[0].RequiredLevel)
	assert.Equal(t, "membership", cfg.Products[0].PriceType)
	assert.Equal(t, 5, cfg.Products[0].TrialQuota)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("ENTITLEMENTS_DATABASE_URL", "postgres://override/db")
	t.Setenv("ENTITLEMENTS_JWT_SECRET", "from-env")
	t.Setenv("ENTITLEMENTS_HTTP_PORT", "9090")
	t.Setenv("ENTITLEMENTS_LOG_LEVEL", "debug")
	t.Setenv("ENTITLEMENTS_TRIAL_GRACE", "30m")

	cfg, err := LoadConfig(writeConfig(t, minimalYAML), false)
	require.NoError(t, err)

	assert.Equal(t, "postgres://override/db", cfg.Database.URL)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 30*time.Minute, cfg.Trial.Grace)
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing database url",
			yaml: "auth:\n  jwt_secret: s\n",
			want: "database.url is required",
		},
		{
			name: "missing jwt secret",
			yaml: "database:\n  url: postgres://x\n",
			want: "auth.jwt_secret is required",
		},
		{
			name: "bad product level",
			yaml: minimalYAML + "  - slug: bad\n    required_level: weekly\n",
			want: "invalid required_level",
		},
		{
			name: "duplicate slug",
			yaml: minimalYAML + "  - slug: screener\n",
			want: "duplicate slug",
		},
		{
			name: "bad rate rule",
			yaml: "database:\n  url: postgres://x\nauth:\n  jwt_secret: s\nrate_limit:\n  login:\n    max_attempts: 0\n    window: 1m\n",
			want: "rate_limit.login",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.yaml), false)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}
