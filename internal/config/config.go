// ABOUTME: Configuration loading with viper layering defaults, config.json, .env and HERALD_ env vars
// ABOUTME: Also provides factories for the storage backend, dedup policy and extraction pipeline

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/harper/herald/internal/charm"
	"github.com/harper/herald/internal/extract"
	"github.com/harper/herald/internal/fetch"
	"github.com/harper/herald/internal/ledger"
	"github.com/harper/herald/internal/markup"
	"github.com/harper/herald/internal/models"
	"github.com/harper/herald/internal/slack"
	"github.com/harper/herald/internal/storage"
)

// Config stores herald configuration.
type Config struct {
	FeedURL     string `mapstructure:"feed_url"`
	BotToken    string `mapstructure:"bot_token"`
	ChannelName string `mapstructure:"channel_name"`
	ChannelID   string `mapstructure:"channel_id"`

	Interval    time.Duration `mapstructure:"interval"`
	IntervalSec int           `mapstructure:"interval_sec"`
	PostDelay   time.Duration `mapstructure:"post_delay"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`

	DedupPolicy  string `mapstructure:"dedup_policy"`
	AuthorFormat string `mapstructure:"author_format"`
	SkipBacklog  bool   `mapstructure:"skip_backlog"`

	// Backend selects the ledger storage: "sqlite" (default) or "charm".
	Backend string `mapstructure:"backend"`
	// DataDir holds herald.db. Supports ~ expansion.
	DataDir string `mapstructure:"data_dir"`

	BaseURL          string `mapstructure:"base_url"`
	TablePlaceholder string `mapstructure:"table_placeholder"`
	Footer           string `mapstructure:"footer"`
	Color            string `mapstructure:"color"`
	Mention          string `mapstructure:"mention"`
	UserAgent        string `mapstructure:"user_agent"`
	SlackAPIURL      string `mapstructure:"slack_api_url"`

	LogLevel    string `mapstructure:"log_level"`
	LogFile     string `mapstructure:"log_file"`
	MetricsAddr string `mapstructure:"metrics_addr"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

// legacyEnv maps keys to the unprefixed variable names older deployments use.
var legacyEnv = map[string]string{
	"feed_url":     "FEED_URL",
	"bot_token":    "BOT_TOKEN",
	"channel_name": "CHANNEL_NAME",
	"interval_sec": "INTERVAL_SEC",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("feed_url", "")
	v.SetDefault("bot_token", "")
	v.SetDefault("channel_name", "")
	v.SetDefault("channel_id", "")
	v.SetDefault("interval", DefaultInterval)
	v.SetDefault("interval_sec", 0)
	v.SetDefault("post_delay", DefaultPostDelay)
	v.SetDefault("http_timeout", DefaultHTTPTimeout)
	v.SetDefault("dedup_policy", ledger.PolicyLedger)
	v.SetDefault("author_format", string(models.AuthorFirstLast))
	v.SetDefault("skip_backlog", false)
	v.SetDefault("backend", BackendSQLite)
	v.SetDefault("data_dir", "")
	v.SetDefault("base_url", markup.DefaultBaseURL)
	v.SetDefault("table_placeholder", markup.DefaultTablePlaceholder)
	v.SetDefault("footer", slack.DefaultFooter)
	v.SetDefault("color", slack.DefaultColor)
	v.SetDefault("mention", slack.DefaultMention)
	v.SetDefault("user_agent", fetch.DefaultUserAgent)
	v.SetDefault("slack_api_url", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
	v.SetDefault("metrics_addr", "")
}

// Load reads configuration. An explicit path must exist; otherwise
// ./config.json and $XDG_CONFIG_HOME/herald/config.json are tried.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		if err := v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(key), legacy); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("json")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(configHome(), "herald"))
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if cfg.IntervalSec > 0 && cfg.Interval == DefaultInterval {
		cfg.Interval = time.Duration(cfg.IntervalSec) * time.Second
	}
	return &cfg, nil
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.FeedURL) == "" {
		problems = append(problems, "feed_url is required")
	}
	if c.Interval <= 0 {
		problems = append(problems, fmt.Sprintf("interval must be positive, got %s", c.Interval))
	}
	if c.HTTPTimeout <= 0 {
		problems = append(problems, fmt.Sprintf("http_timeout must be positive, got %s", c.HTTPTimeout))
	}
	if c.PostDelay < 0 {
		problems = append(problems, fmt.Sprintf("post_delay must not be negative, got %s", c.PostDelay))
	}
	if c.DedupPolicy != ledger.PolicyLedger && c.DedupPolicy != ledger.PolicyCursor {
		problems = append(problems, fmt.Sprintf("dedup_policy must be %q or %q, got %q", ledger.PolicyLedger, ledger.PolicyCursor, c.DedupPolicy))
	}
	if _, err := models.ParseAuthorFormat(c.AuthorFormat); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Backend != BackendSQLite && c.Backend != BackendCharm {
		problems = append(problems, fmt.Sprintf("backend must be %q or %q, got %q", BackendSQLite, BackendCharm, c.Backend))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ValidateDelivery checks the settings needed to post to Slack.
func (c *Config) ValidateDelivery() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.BotToken == "" {
		return errors.New("invalid config: bot_token is required")
	}
	if c.ChannelName == "" && c.ChannelID == "" {
		return errors.New("invalid config: channel_name or channel_id is required")
	}
	return nil
}

// GetDataDir returns the configured data directory with ~ expanded,
// defaulting to the standard XDG data directory.
func (c *Config) GetDataDir() string {
	if c.DataDir == "" {
		return storage.DefaultDataDir()
	}
	return ExpandPath(c.DataDir)
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// OpenStore creates the Store for the configured backend.
func (c *Config) OpenStore() (storage.Store, error) {
	return c.OpenBackend(c.Backend)
}

// OpenBackend creates the Store for a named backend using this config's data dir.
func (c *Config) OpenBackend(backend string) (storage.Store, error) {
	switch backend {
	case BackendSQLite, "":
		return storage.NewSQLiteStore(storage.DBPath(c.GetDataDir()))
	case BackendCharm:
		return charm.NewClient()
	default:
		return nil, fmt.Errorf("unknown backend: %q", backend)
	}
}

// NewPolicy builds the configured dedup policy over store.
func (c *Config) NewPolicy(store storage.Store) (ledger.Policy, error) {
	return ledger.New(c.DedupPolicy, store, c.SkipBacklog)
}

// NewRenderer builds the sanitizing mrkdwn renderer.
func (c *Config) NewRenderer() *markup.Renderer {
	r := markup.NewRenderer(c.BaseURL, c.TablePlaceholder)
	r.Sanitizer = markup.NewSanitizer()
	return r
}

// NewExtractor builds the extraction pipeline.
func (c *Config) NewExtractor() (*extract.Extractor, error) {
	authors, err := models.ParseAuthorFormat(c.AuthorFormat)
	if err != nil {
		return nil, err
	}
	return extract.New(c.NewRenderer(), authors), nil
}

// NewPoster builds the Slack poster for a resolved channel id.
func (c *Config) NewPoster(channelID string) *slack.Poster {
	return slack.New(slack.Options{
		Token:   c.BotToken,
		APIURL:  c.SlackAPIURL,
		Channel: channelID,
		Mention: c.Mention,
		Color:   c.Color,
		Footer:  c.Footer,
	})
}

func configHome() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, _ := os.UserHomeDir()
		configDir = filepath.Join(homeDir, ".config")
	}
	return configDir
}

// DefaultConfigPath is where setup writes config.json.
func DefaultConfigPath() string {
	return filepath.Join(configHome(), "herald", "config.json")
}

// SaveFile writes the connection settings to path as JSON, merging into any
// keys already present so hand-edited settings survive.
func (c *Config) SaveFile(path string) error {
	settings := map[string]any{}
	if raw, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(raw, &settings); err != nil {
			return fmt.Errorf("parse existing %s: %w", path, err)
		}
	}

	settings["feed_url"] = c.FeedURL
	settings["bot_token"] = c.BotToken
	settings["channel_name"] = c.ChannelName
	settings["backend"] = c.Backend
	if c.DataDir != "" {
		settings["data_dir"] = c.DataDir
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	// The file holds the bot token.
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
