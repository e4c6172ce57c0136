package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "12345678901234567890123456789012"

func TestLoadDefaultsWithEnv(t *testing.T) {
	t.Setenv("WPGEN_JWT_SECRET", testSecret)
	t.Setenv("WPGEN_ADMIN_PASSWORD", "s3cret")
	t.Setenv("WPGEN_SETTLE_DELAY_MS", "250")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8081", cfg.Server.Addr)
	assert.Equal(t, 15*time.Second, cfg.Timeouts.Verify())
	assert.Equal(t, 60*time.Second, cfg.Timeouts.Install())
	assert.Equal(t, 30*time.Second, cfg.Timeouts.DebugLog())
	assert.Equal(t, 250*time.Millisecond, cfg.Deploy.SettleDelay())
	assert.Equal(t, "s3cret", cfg.Auth.AdminPassword)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlData := `
server:
  addr: "127.0.0.1:9000"
auth:
  admin_username: root
  admin_password: pw
  jwt_secret: "` + testSecret + `"
timeouts:
  verify_ms: 5000
logging:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(yamlData), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, "root", cfg.Auth.AdminUsername)
	assert.Equal(t, 5*time.Second, cfg.Timeouts.Verify())
	// untouched keys keep their defaults
	assert.Equal(t, 60*time.Second, cfg.Timeouts.Install())
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing secret", func(c *Config) { c.Auth.JWTSecret = "" }, "WPGEN_JWT_SECRET"},
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }, "at least 32"},
		{"missing password", func(c *Config) { c.Auth.AdminPassword = "" }, "WPGEN_ADMIN_PASSWORD"},
		{"zero timeout", func(c *Config) { c.Timeouts.InstallMS = 0 }, "timeouts"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "log level"},
		{"write timeout below deploy budget", func(c *Config) { c.Server.WriteTimeoutMS = 120000 }, "worst-case deployment"},
		{"negative write timeout", func(c *Config) { c.Server.WriteTimeoutMS = -1 }, "write_timeout_ms"},
		{"write timeout covers deploy budget", func(c *Config) { c.Server.WriteTimeoutMS = int(c.DeployBudget().Milliseconds()) }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Auth.JWTSecret = testSecret
			cfg.Auth.AdminPassword = "pw"
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDeployBudget(t *testing.T) {
	cfg := Default()

	// 2x30s delete + 15s check + 2s settle + 2x60s install + 2x30s debug log
	assert.Equal(t, 4*time.Minute+17*time.Second, cfg.DeployBudget())
	assert.Zero(t, cfg.Server.GetWriteTimeout())

	cfg.Timeouts.InstallMS = 90000
	assert.Equal(t, 5*time.Minute+17*time.Second, cfg.DeployBudget())
}
