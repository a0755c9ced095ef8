// Package config loads service configuration from environment
// variables and an optional YAML file. The env names match the
// original deployment so existing .env files keep working.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the full service configuration
type Config struct {
	Provider  string `mapstructure:"provider"`
	GmailUser string `mapstructure:"gmail_user"`
	Project   string `mapstructure:"project"`
	StateFile string `mapstructure:"state_file"`
	AuditDB   string `mapstructure:"audit_db"`

	Labels     LabelsConfig     `mapstructure:"labels"`
	Thresholds ThresholdsConfig `mapstructure:"thresholds"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Server     ServerConfig     `mapstructure:"server"`
	Push       PushConfig       `mapstructure:"push"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Log        LogConfig        `mapstructure:"log"`
}

// LabelsConfig names the label applied for each tier
type LabelsConfig struct {
	Critical string `mapstructure:"critical"`
	Urgent   string `mapstructure:"urgent"`
	Medium   string `mapstructure:"medium"`
	Digest   string `mapstructure:"digest"`
}

// ThresholdsConfig holds the lower score bound for each tier above digest
type ThresholdsConfig struct {
	Critical float64 `mapstructure:"critical"`
	Urgent   float64 `mapstructure:"urgent"`
	Medium   float64 `mapstructure:"medium"`
}

// OpenAIConfig configures the importance scorer
type OpenAIConfig struct {
	Model string `mapstructure:"model"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// PushConfig configures OIDC verification of push deliveries.
// Verification is disabled while Audience is empty.
type PushConfig struct {
	Audience       string `mapstructure:"audience"`
	ServiceAccount string `mapstructure:"service_account"`
	JWKSURL        string `mapstructure:"jwks_url"`
}

// NATSConfig configures the optional triage event stream
type NATSConfig struct {
	URL string `mapstructure:"url"`
}

// LogConfig configures the process logger
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from the optional file at path, the
// environment, and built-in defaults, in ascending precedence of
// defaults < file < env.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TRIAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindLegacyEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults mirrors the original deployment defaults
func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", "gmail")
	v.SetDefault("gmail_user", "me")
	v.SetDefault("project", "")
	v.SetDefault("state_file", "watch_state.json")
	v.SetDefault("audit_db", "data/triage.db")

	v.SetDefault("labels.critical", "AI/Critical")
	v.SetDefault("labels.urgent", "AI/Urgent")
	v.SetDefault("labels.medium", "AI/Medium")
	v.SetDefault("labels.digest", "AI/DigestQueue")

	v.SetDefault("thresholds.critical", 0.8)
	v.SetDefault("thresholds.urgent", 0.5)
	v.SetDefault("thresholds.medium", 0.4)

	v.SetDefault("openai.model", "gpt-4o-mini")

	v.SetDefault("server.port", 8080)

	v.SetDefault("push.audience", "")
	v.SetDefault("push.service_account", "")
	v.SetDefault("push.jwks_url", "https://www.googleapis.com/oauth2/v3/certs")

	v.SetDefault("nats.url", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// bindLegacyEnv wires the unprefixed variable names the original
// deployment used, alongside the TRIAGE_* forms AutomaticEnv covers
func bindLegacyEnv(v *viper.Viper) {
	v.BindEnv("provider", "TRIAGE_PROVIDER", "MAIL_PROVIDER")
	v.BindEnv("gmail_user", "TRIAGE_GMAIL_USER", "GMAIL_USER")
	v.BindEnv("project", "TRIAGE_PROJECT", "GOOGLE_CLOUD_PROJECT")
	v.BindEnv("state_file", "TRIAGE_STATE_FILE", "STATE_FILE")
	v.BindEnv("audit_db", "TRIAGE_AUDIT_DB", "AUDIT_DB")

	v.BindEnv("labels.critical", "TRIAGE_LABELS_CRITICAL", "LABEL_CRITICAL")
	v.BindEnv("labels.urgent", "TRIAGE_LABELS_URGENT", "LABEL_URGENT")
	v.BindEnv("labels.medium", "TRIAGE_LABELS_MEDIUM", "LABEL_MEDIUM")
	v.BindEnv("labels.digest", "TRIAGE_LABELS_DIGEST", "LABEL_DIGEST")

	v.BindEnv("thresholds.critical", "TRIAGE_THRESHOLDS_CRITICAL", "THRESHOLD_CRITICAL")
	v.BindEnv("thresholds.urgent", "TRIAGE_THRESHOLDS_URGENT", "THRESHOLD_URGENT", "IMPORTANCE_THRESHOLD")
	v.BindEnv("thresholds.medium", "TRIAGE_THRESHOLDS_MEDIUM", "THRESHOLD_MEDIUM")

	v.BindEnv("openai.model", "TRIAGE_OPENAI_MODEL", "OPENAI_MODEL")

	v.BindEnv("server.port", "TRIAGE_SERVER_PORT", "PORT")

	v.BindEnv("push.audience", "TRIAGE_PUSH_AUDIENCE", "PUBSUB_AUDIENCE")
	v.BindEnv("push.service_account", "TRIAGE_PUSH_SERVICE_ACCOUNT", "PUBSUB_SERVICE_ACCOUNT")
	v.BindEnv("push.jwks_url", "TRIAGE_PUSH_JWKS_URL")

	v.BindEnv("nats.url", "TRIAGE_NATS_URL", "NATS_URL")

	v.BindEnv("log.level", "TRIAGE_LOG_LEVEL", "LOG_LEVEL")
	v.BindEnv("log.format", "TRIAGE_LOG_FORMAT", "LOG_FORMAT")
}

// Validate rejects configurations the triage pipeline cannot run with
func (c *Config) Validate() error {
	t := c.Thresholds
	if t.Critical <= 0 || t.Critical > 1 || t.Urgent <= 0 || t.Medium <= 0 {
		return fmt.Errorf("thresholds must be in (0, 1], got critical=%v urgent=%v medium=%v",
			t.Critical, t.Urgent, t.Medium)
	}
	if t.Critical <= t.Urgent || t.Urgent <= t.Medium {
		return fmt.Errorf("thresholds must descend critical > urgent > medium, got %v/%v/%v",
			t.Critical, t.Urgent, t.Medium)
	}
	l := c.Labels
	if l.Critical == "" || l.Urgent == "" || l.Medium == "" || l.Digest == "" {
		return fmt.Errorf("all four tier labels must be set")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	return nil
}

// Addr returns the HTTP listen address
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
