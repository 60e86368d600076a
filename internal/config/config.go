// Package config loads and validates the digest configuration from a YAML
// file merged over defaults, with MORNING_DIGEST_ environment overrides.
// Configuration is read once at startup and treated as immutable afterwards.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/oyvinds78/morningdigest/internal/collectors"
)

// DefaultFile is the config file looked up when --config is not given.
const DefaultFile = "digest-config.yaml"

// Config contains all configuration for the digest system.
type Config struct {
	LLM      LLMConfig         `mapstructure:"llm" json:"llm" validate:"required"`
	Feeds    FeedsConfig       `mapstructure:"feeds" json:"feeds"`
	Calendar CalendarConfig    `mapstructure:"calendar" json:"calendar"`
	Weather  WeatherConfig     `mapstructure:"weather" json:"weather"`
	Email    EmailConfig       `mapstructure:"email" json:"email"`
	Budget   BudgetConfig      `mapstructure:"budget" json:"budget"`
	Run      RunConfig         `mapstructure:"run" json:"run"`
	Profile  map[string]string `mapstructure:"profile" json:"profile,omitempty"`

	// StateDir holds the budget and usage JSON files.
	StateDir string `mapstructure:"state_dir" json:"state_dir"`
	LogLevel string `mapstructure:"log_level" json:"log_level" validate:"omitempty,oneof=trace debug info warn error"`
}

// LLMConfig selects and configures the completion provider.
type LLMConfig struct {
	Provider  string  `mapstructure:"provider" json:"provider" validate:"required,oneof=openai gemini"`
	APIKey    string  `mapstructure:"api_key" json:"api_key,omitempty"`
	Model     string  `mapstructure:"model" json:"model" validate:"required"`
	BaseURL   string  `mapstructure:"base_url" json:"base_url,omitempty" validate:"omitempty,url"`
	RateLimit float64 `mapstructure:"rate_limit" json:"rate_limit" validate:"min=0"`
}

// FeedsConfig lists the feed sources per section.
type FeedsConfig struct {
	News       []collectors.FeedSource `mapstructure:"news" json:"news" validate:"dive"`
	Tech       []collectors.FeedSource `mapstructure:"tech" json:"tech" validate:"dive"`
	Newsletter []collectors.FeedSource `mapstructure:"newsletter" json:"newsletter" validate:"dive"`
}

// CalendarConfig points at an iCalendar export.
type CalendarConfig struct {
	ICSURL string `mapstructure:"ics_url" json:"ics_url" validate:"omitempty,url"`
}

// WeatherConfig configures the OpenWeatherMap collector.
type WeatherConfig struct {
	APIKey  string `mapstructure:"api_key" json:"api_key,omitempty"`
	City    string `mapstructure:"city" json:"city"`
	Country string `mapstructure:"country" json:"country"`
}

// EmailConfig configures SMTP delivery for send-email.
type EmailConfig struct {
	Host     string `mapstructure:"host" json:"host"`
	Port     int    `mapstructure:"port" json:"port" validate:"min=0,max=65535"`
	Username string `mapstructure:"username" json:"username"`
	Password string `mapstructure:"password" json:"password,omitempty"`
	From     string `mapstructure:"from" json:"from" validate:"omitempty,email"`
	To       string `mapstructure:"to" json:"to" validate:"omitempty,email"`
}

// BudgetConfig holds the token ceilings. Zero permits nothing; negative
// disables a ceiling.
type BudgetConfig struct {
	Daily      int `mapstructure:"daily" json:"daily"`
	Hourly     int `mapstructure:"hourly" json:"hourly"`
	PerRequest int `mapstructure:"per_request" json:"per_request"`
}

// RunConfig holds run-shape settings: window, timeouts and retry policy.
type RunConfig struct {
	WindowHours   int           `mapstructure:"window_hours" json:"window_hours" validate:"min=1,max=168"`
	Timeout       time.Duration `mapstructure:"timeout" json:"timeout"`
	AgentTimeout  time.Duration `mapstructure:"agent_timeout" json:"agent_timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts" json:"retry_attempts" validate:"min=0,max=10"`
	RetryDelay    time.Duration `mapstructure:"retry_delay" json:"retry_delay"`
}

// DefaultConfig returns the configuration used when no file overrides it.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:  "openai",
			Model:     "gpt-4o-mini",
			RateLimit: 2,
		},
		Budget: BudgetConfig{
			Daily:      10000,
			Hourly:     2000,
			PerRequest: 1000,
		},
		Run: RunConfig{
			WindowHours:   24,
			Timeout:       5 * time.Minute,
			AgentTimeout:  30 * time.Second,
			RetryAttempts: 2,
			RetryDelay:    2 * time.Second,
		},
		StateDir: "state",
		LogLevel: "info",
	}
}

// Load reads the config file at path (DefaultFile when empty, skipped if
// absent), applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MORNING_DIGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	if _, err := os.Stat(path); err != nil {
		if explicit {
			return nil, fmt.Errorf("config file does not exist: %s", path)
		}
		// No default file is fine: defaults plus env carry a minimal setup.
	} else {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Env-only secrets, so keys never have to live in the YAML file.
	if key := os.Getenv("MORNING_DIGEST_LLM_API_KEY"); key != "" {
		cfg.LLM.APIKey = key
	}
	if key := os.Getenv("MORNING_DIGEST_WEATHER_API_KEY"); key != "" {
		cfg.Weather.APIKey = key
	}
	if pw := os.Getenv("MORNING_DIGEST_EMAIL_PASSWORD"); pw != "" {
		cfg.Email.Password = pw
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration and prepares the state directory.
func (c *Config) Validate() error {
	validate := validator.New()

	if c.StateDir != "" {
		c.StateDir = filepath.Clean(c.StateDir)
		if err := os.MkdirAll(c.StateDir, 0o755); err != nil {
			return fmt.Errorf("cannot create state directory: %w", err)
		}
	}

	return validate.Struct(c)
}

// SaveToFile writes the configuration as YAML-compatible JSON to path.
// Used by config init to seed a starting file.
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// BudgetStatePath returns the path of the persisted budget counters.
func (c *Config) BudgetStatePath() string {
	return filepath.Join(c.StateDir, "budget.json")
}

// String renders the config with secrets masked.
func (c *Config) String() string {
	cp := *c
	cp.LLM.APIKey = mask(cp.LLM.APIKey)
	cp.Weather.APIKey = mask(cp.Weather.APIKey)
	cp.Email.Password = mask(cp.Email.Password)

	data, _ := json.MarshalIndent(cp, "", "  ")
	return string(data)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return strings.Repeat("*", len(s))
}
