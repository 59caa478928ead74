package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// MailboxConfig holds the mail store connection settings.
type MailboxConfig struct {
	// Kind is "imap" or "mbox". An mbox file is served read-only.
	Kind     string `mapstructure:"kind" yaml:"kind"`
	MboxPath string `mapstructure:"mbox_path" yaml:"mbox_path"`

	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`

	// Security is "tls" for implicit TLS or "starttls".
	Security string `mapstructure:"security" yaml:"security"`

	// Folder is the folder scanned and reconciled by default.
	Folder string `mapstructure:"folder" yaml:"folder"`

	// TrashFolder receives messages moved by cleanup. Nothing is expunged.
	TrashFolder string `mapstructure:"trash_folder" yaml:"trash_folder"`

	// PasswordKey names the keyring entry that holds the IMAP password.
	PasswordKey string `mapstructure:"password_key" yaml:"password_key"`
}

// OracleConfig selects and tunes the scoring model used by the last tier.
type OracleConfig struct {
	// Provider is "ollama" or "anthropic".
	Provider  string `mapstructure:"provider" yaml:"provider"`
	Model     string `mapstructure:"model" yaml:"model"`
	BaseURL   string `mapstructure:"base_url" yaml:"base_url"`
	MaxTokens int    `mapstructure:"max_tokens" yaml:"max_tokens"`

	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`

	// RatePerMinute bounds oracle calls; zero disables limiting.
	RatePerMinute float64 `mapstructure:"rate_per_minute" yaml:"rate_per_minute"`

	// Exemplars is how many past decisions are passed as examples.
	Exemplars int `mapstructure:"exemplars" yaml:"exemplars"`

	// APIKeyName names the keyring entry holding the provider API key.
	APIKeyName string `mapstructure:"api_key_name" yaml:"api_key_name"`
}

// AgeThresholds holds per-category minimum ages, in days, for the
// age-gated delete rules.
type AgeThresholds struct {
	Event       int `mapstructure:"event" yaml:"event"`
	JobOffer    int `mapstructure:"job_offer" yaml:"job_offer"`
	Newsletter  int `mapstructure:"newsletter" yaml:"newsletter"`
	Promotional int `mapstructure:"promotional" yaml:"promotional"`
}

// RulesConfig customizes the deterministic rule tier. Empty keyword lists
// fall back to the built-in defaults.
type RulesConfig struct {
	VIPSenders []string      `mapstructure:"vip_senders" yaml:"vip_senders"`
	AgeDays    AgeThresholds `mapstructure:"age_days" yaml:"age_days"`

	EventKeywords       []string `mapstructure:"event_keywords" yaml:"event_keywords"`
	JobKeywords         []string `mapstructure:"job_keywords" yaml:"job_keywords"`
	PromotionalKeywords []string `mapstructure:"promotional_keywords" yaml:"promotional_keywords"`
	NewsletterSenders   []string `mapstructure:"newsletter_senders" yaml:"newsletter_senders"`
}

// PatternThreshold is the minimum evidence for a profile to count as a pattern.
type PatternThreshold struct {
	MinDecisions int     `mapstructure:"min_decisions" yaml:"min_decisions"`
	Ratio        float64 `mapstructure:"ratio" yaml:"ratio"`
}

// PatternConfig holds the thresholds per profile granularity.
type PatternConfig struct {
	Sender   PatternThreshold `mapstructure:"sender" yaml:"sender"`
	Domain   PatternThreshold `mapstructure:"domain" yaml:"domain"`
	Category PatternThreshold `mapstructure:"category" yaml:"category"`
}

// CalibrationConfig tunes the confidence correction applied to oracle output.
type CalibrationConfig struct {
	MinSamples int     `mapstructure:"min_samples" yaml:"min_samples"`
	Factor     float64 `mapstructure:"factor" yaml:"factor"`

	// OracleOnly restricts learning to decisions made against oracle verdicts.
	OracleOnly bool `mapstructure:"oracle_only" yaml:"oracle_only"`
}

// CleanupConfig holds deletion workflow defaults.
type CleanupConfig struct {
	MinConfidence float64 `mapstructure:"min_confidence" yaml:"min_confidence"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// DisplayConfig holds UI/rendering preferences.
type DisplayConfig struct {
	Theme string `mapstructure:"theme" yaml:"theme"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`
	MetricsFile  string `mapstructure:"metrics_file" yaml:"metrics_file"`

	Mailbox     MailboxConfig     `mapstructure:"mailbox" yaml:"mailbox"`
	Oracle      OracleConfig      `mapstructure:"oracle" yaml:"oracle"`
	Rules       RulesConfig       `mapstructure:"rules" yaml:"rules"`
	Pattern     PatternConfig     `mapstructure:"pattern" yaml:"pattern"`
	Calibration CalibrationConfig `mapstructure:"calibration" yaml:"calibration"`
	Cleanup     CleanupConfig     `mapstructure:"cleanup" yaml:"cleanup"`
	Log         LogConfig         `mapstructure:"log" yaml:"log"`
	Display     DisplayConfig     `mapstructure:"display" yaml:"display"`
}

// EnvPrefix is prepended to environment overrides, e.g.
// MAILTRIAGE_MAILBOX_HOST overrides mailbox.host.
const EnvPrefix = "MAILTRIAGE"

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/mailtriage/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mailtriage", "config.yaml")
}

// DefaultDatabasePath returns ~/.local/share/mailtriage/mailtriage.db.
func DefaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "mailtriage.db"
	}
	return filepath.Join(home, ".local", "share", "mailtriage", "mailtriage.db")
}

// DefaultAppConfig returns the configuration used when no file exists.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		DatabasePath: DefaultDatabasePath(),
		Mailbox: MailboxConfig{
			Kind:        "imap",
			Port:        993,
			Security:    "tls",
			Folder:      "INBOX",
			TrashFolder: "Trash",
			PasswordKey: "imap_password",
		},
		Oracle: OracleConfig{
			Provider:      "ollama",
			Model:         "llama3.1:8b",
			BaseURL:       "http://localhost:11434",
			MaxTokens:     1024,
			TimeoutSec:    120,
			RatePerMinute: 30,
			Exemplars:     3,
			APIKeyName:    "anthropic_api_key",
		},
		Rules: RulesConfig{
			AgeDays: AgeThresholds{
				Event:       60,
				JobOffer:    180,
				Newsletter:  7,
				Promotional: 90,
			},
		},
		Pattern: PatternConfig{
			Sender:   PatternThreshold{MinDecisions: 3, Ratio: 0.90},
			Domain:   PatternThreshold{MinDecisions: 8, Ratio: 0.90},
			Category: PatternThreshold{MinDecisions: 15, Ratio: 0.85},
		},
		Calibration: CalibrationConfig{
			MinSamples: 10,
			Factor:     0.5,
			OracleOnly: true,
		},
		Cleanup: CleanupConfig{MinConfidence: 0.95},
		Log:     LogConfig{Level: "info", Format: "console"},
		Display: DisplayConfig{Theme: "default"},
	}
}

func setDefaults(v *viper.Viper, cfg *AppConfig) {
	v.SetDefault("database_path", cfg.DatabasePath)
	v.SetDefault("metrics_file", cfg.MetricsFile)

	v.SetDefault("mailbox.kind", cfg.Mailbox.Kind)
	v.SetDefault("mailbox.mbox_path", cfg.Mailbox.MboxPath)
	v.SetDefault("mailbox.host", cfg.Mailbox.Host)
	v.SetDefault("mailbox.port", cfg.Mailbox.Port)
	v.SetDefault("mailbox.username", cfg.Mailbox.Username)
	v.SetDefault("mailbox.security", cfg.Mailbox.Security)
	v.SetDefault("mailbox.folder", cfg.Mailbox.Folder)
	v.SetDefault("mailbox.trash_folder", cfg.Mailbox.TrashFolder)
	v.SetDefault("mailbox.password_key", cfg.Mailbox.PasswordKey)

	v.SetDefault("oracle.provider", cfg.Oracle.Provider)
	v.SetDefault("oracle.model", cfg.Oracle.Model)
	v.SetDefault("oracle.base_url", cfg.Oracle.BaseURL)
	v.SetDefault("oracle.max_tokens", cfg.Oracle.MaxTokens)
	v.SetDefault("oracle.timeout_sec", cfg.Oracle.TimeoutSec)
	v.SetDefault("oracle.rate_per_minute", cfg.Oracle.RatePerMinute)
	v.SetDefault("oracle.exemplars", cfg.Oracle.Exemplars)
	v.SetDefault("oracle.api_key_name", cfg.Oracle.APIKeyName)

	v.SetDefault("rules.age_days.event", cfg.Rules.AgeDays.Event)
	v.SetDefault("rules.age_days.job_offer", cfg.Rules.AgeDays.JobOffer)
	v.SetDefault("rules.age_days.newsletter", cfg.Rules.AgeDays.Newsletter)
	v.SetDefault("rules.age_days.promotional", cfg.Rules.AgeDays.Promotional)

	v.SetDefault("pattern.sender.min_decisions", cfg.Pattern.Sender.MinDecisions)
	v.SetDefault("pattern.sender.ratio", cfg.Pattern.Sender.Ratio)
	v.SetDefault("pattern.domain.min_decisions", cfg.Pattern.Domain.MinDecisions)
	v.SetDefault("pattern.domain.ratio", cfg.Pattern.Domain.Ratio)
	v.SetDefault("pattern.category.min_decisions", cfg.Pattern.Category.MinDecisions)
	v.SetDefault("pattern.category.ratio", cfg.Pattern.Category.Ratio)

	v.SetDefault("calibration.min_samples", cfg.Calibration.MinSamples)
	v.SetDefault("calibration.factor", cfg.Calibration.Factor)
	v.SetDefault("calibration.oracle_only", cfg.Calibration.OracleOnly)

	v.SetDefault("cleanup.min_confidence", cfg.Cleanup.MinConfidence)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("display.theme", cfg.Display.Theme)
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Environment variables prefixed with EnvPrefix override file values.
// If the file does not exist, defaults plus environment are returned.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, DefaultAppConfig())

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := DefaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate rejects values the engine cannot run with.
func (c *AppConfig) Validate() error {
	for name, th := range map[string]PatternThreshold{
		"sender":   c.Pattern.Sender,
		"domain":   c.Pattern.Domain,
		"category": c.Pattern.Category,
	} {
		if th.MinDecisions < 1 {
			return fmt.Errorf("pattern.%s.min_decisions must be at least 1", name)
		}
		if th.Ratio <= 0 || th.Ratio > 1 {
			return fmt.Errorf("pattern.%s.ratio must be in (0,1]", name)
		}
	}
	if c.Calibration.Factor < 0 || c.Calibration.Factor > 1 {
		return fmt.Errorf("calibration.factor must be in [0,1]")
	}
	if c.Calibration.MinSamples < 0 {
		return fmt.Errorf("calibration.min_samples must not be negative")
	}
	if c.Cleanup.MinConfidence < 0 || c.Cleanup.MinConfidence > 1 {
		return fmt.Errorf("cleanup.min_confidence must be in [0,1]")
	}
	switch c.Mailbox.Kind {
	case "imap":
	case "mbox":
		if c.Mailbox.MboxPath == "" {
			return fmt.Errorf("mailbox.mbox_path is required when mailbox.kind is mbox")
		}
	default:
		return fmt.Errorf("mailbox.kind %q is not supported", c.Mailbox.Kind)
	}
	switch c.Oracle.Provider {
	case "ollama", "anthropic":
	default:
		return fmt.Errorf("oracle.provider %q is not supported", c.Oracle.Provider)
	}
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("database_path", cfg.DatabasePath)
	v.Set("metrics_file", cfg.MetricsFile)
	v.Set("mailbox", cfg.Mailbox)
	v.Set("oracle", cfg.Oracle)
	v.Set("rules", cfg.Rules)
	v.Set("pattern", cfg.Pattern)
	v.Set("calibration", cfg.Calibration)
	v.Set("cleanup", cfg.Cleanup)
	v.Set("log", cfg.Log)
	v.Set("display", cfg.Display)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
