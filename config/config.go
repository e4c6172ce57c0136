package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig  `yaml:"server"`
	CORS     CORSConfig    `yaml:"cors"`
	Auth     AuthConfig    `yaml:"auth"`
	Timeouts TimeoutConfig `yaml:"timeouts"`
	Deploy   DeployConfig  `yaml:"deploy"`
	SSH      SSHConfig     `yaml:"ssh"`
	LLM      LLMConfig     `yaml:"llm"`
	Storage  StorageConfig `yaml:"storage"`
	Logging  LoggingConfig `yaml:"logging"`
}

// ServerConfig holds the HTTP listener settings. A zero write timeout leaves
// responses bounded only by the per-operation budgets.
type ServerConfig struct {
	Addr           string `yaml:"addr"`
	ReadTimeoutMS  int    `yaml:"read_timeout_ms"`
	WriteTimeoutMS int    `yaml:"write_timeout_ms"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxAgeHours    int      `yaml:"max_age_hours"`
}

type AuthConfig struct {
	AdminUsername  string `yaml:"admin_username"`
	AdminPassword  string `yaml:"admin_password"`
	JWTSecret      string `yaml:"jwt_secret"`
	JWTExpiryHours int    `yaml:"jwt_expiry_hours"`
}

// TimeoutConfig holds the per-operation budgets. Verification must fail fast,
// while install/update may run slow activation hooks on the remote side.
type TimeoutConfig struct {
	VerifyMS   int `yaml:"verify_ms"`
	InstallMS  int `yaml:"install_ms"`
	DebugLogMS int `yaml:"debug_log_ms"`
	DeleteMS   int `yaml:"delete_ms"`
	ConnectMS  int `yaml:"connect_ms"`
}

type DeployConfig struct {
	SettleDelayMS int `yaml:"settle_delay_ms"`
}

type SSHConfig struct {
	KnownHostsPath string `yaml:"known_hosts_path"`
}

type LLMConfig struct {
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	MaxTokens int    `yaml:"max_tokens"`
}

type StorageConfig struct {
	ActivitiesFile string `yaml:"activities_file"`
	MaxActivities  int    `yaml:"max_activities"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8081",
			ReadTimeoutMS:  30000,
			WriteTimeoutMS: 0,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
			MaxAgeHours:    12,
		},
		Auth: AuthConfig{
			AdminUsername:  "admin",
			JWTExpiryHours: 8,
		},
		Timeouts: TimeoutConfig{
			VerifyMS:   15000,
			InstallMS:  60000,
			DebugLogMS: 30000,
			DeleteMS:   30000,
			ConnectMS:  15000,
		},
		Deploy: DeployConfig{SettleDelayMS: 2000},
		LLM: LLMConfig{
			Model:     "claude-sonnet-4-5-20250929",
			MaxTokens: 8192,
		},
		Storage: StorageConfig{
			ActivitiesFile: "activities.json",
			MaxActivities:  100,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads configuration from file (if it exists) and applies environment variable overrides
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// defaults + environment only
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate ensures all required configuration values are set
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("WPGEN_JWT_SECRET is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("jwt_secret must be at least 32 characters")
	}
	if c.Auth.AdminPassword == "" {
		return fmt.Errorf("WPGEN_ADMIN_PASSWORD must be set")
	}
	if c.Timeouts.VerifyMS <= 0 || c.Timeouts.InstallMS <= 0 || c.Timeouts.DebugLogMS <= 0 ||
		c.Timeouts.DeleteMS <= 0 || c.Timeouts.ConnectMS <= 0 {
		return fmt.Errorf("all timeouts must be positive")
	}
	if c.Deploy.SettleDelayMS < 0 {
		return fmt.Errorf("settle_delay_ms must not be negative")
	}
	if c.Server.WriteTimeoutMS < 0 {
		return fmt.Errorf("write_timeout_ms must not be negative")
	}
	if w := c.Server.GetWriteTimeout(); w > 0 && w < c.DeployBudget() {
		return fmt.Errorf("write_timeout_ms (%s) is shorter than the worst-case deployment (%s); raise it or set 0", w, c.DeployBudget())
	}
	if !c.Logging.IsLogLevelValid() {
		return fmt.Errorf("invalid log level %q", c.Logging.Level)
	}
	return nil
}

// applyEnvOverrides checks for environment variables with WPGEN_ prefix
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WPGEN_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("WPGEN_CORS_ORIGINS"); v != "" {
		cfg.CORS.AllowedOrigins = strings.Split(v, ",")
	}

	if v := os.Getenv("WPGEN_ADMIN_USERNAME"); v != "" {
		cfg.Auth.AdminUsername = v
	}
	if v := os.Getenv("WPGEN_ADMIN_PASSWORD"); v != "" {
		cfg.Auth.AdminPassword = v
	}
	if v := os.Getenv("WPGEN_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}

	if v := os.Getenv("WPGEN_SETTLE_DELAY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Deploy.SettleDelayMS = n
		}
	}
	if v := os.Getenv("WPGEN_KNOWN_HOSTS"); v != "" {
		cfg.SSH.KnownHostsPath = v
	}

	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("WPGEN_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}

	if v := os.Getenv("WPGEN_ACTIVITIES_FILE"); v != "" {
		cfg.Storage.ActivitiesFile = v
	}
	if v := os.Getenv("WPGEN_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("WPGEN_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// GetReadTimeout returns the read timeout as a duration
func (s *ServerConfig) GetReadTimeout() time.Duration { return ms(s.ReadTimeoutMS) }

// GetWriteTimeout returns the write timeout as a duration
func (s *ServerConfig) GetWriteTimeout() time.Duration { return ms(s.WriteTimeoutMS) }

func (t TimeoutConfig) Verify() time.Duration   { return ms(t.VerifyMS) }
func (t TimeoutConfig) Install() time.Duration  { return ms(t.InstallMS) }
func (t TimeoutConfig) DebugLog() time.Duration { return ms(t.DebugLogMS) }
func (t TimeoutConfig) Delete() time.Duration   { return ms(t.DeleteMS) }
func (t TimeoutConfig) Connect() time.Duration  { return ms(t.ConnectMS) }

// SettleDelay is the pause between a pre-update delete and the upload.
func (d DeployConfig) SettleDelay() time.Duration { return ms(d.SettleDelayMS) }

// DeployBudget is the longest a single deployment request can take: a REST
// delete, the existence check and an FTP delete, the settle delay, the update
// and its forced install retry, then a debug log read over REST and FTP.
func (c *Config) DeployBudget() time.Duration {
	t := c.Timeouts
	return 2*t.Delete() + t.Verify() + c.Deploy.SettleDelay() + 2*t.Install() + 2*t.DebugLog()
}

// GetJWTExpiry returns JWT expiry as duration
func (a *AuthConfig) GetJWTExpiry() time.Duration {
	return time.Duration(a.JWTExpiryHours) * time.Hour
}

// IsLogLevelValid checks if the log level is valid
func (l *LoggingConfig) IsLogLevelValid() bool {
	validLevels := []string{"debug", "info", "warn", "error"}
	return slices.Contains(validLevels, strings.ToLower(l.Level))
}
