// ABOUTME: Tests for configuration loading and validation
// ABOUTME: Verifies defaults, config.json layering, env overrides and backend/policy factories

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harper/herald/internal/ledger"
	"github.com/harper/herald/internal/storage"
)

// isolate points every lookup location at a temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	for _, key := range []string{"FEED_URL", "BOT_TOKEN", "CHANNEL_NAME", "INTERVAL_SEC"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(orig) })
	return dir
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Empty(t, cfg.FeedURL)
	assert.Equal(t, DefaultInterval, cfg.Interval)
	assert.Equal(t, DefaultPostDelay, cfg.PostDelay)
	assert.Equal(t, ledger.PolicyLedger, cfg.DedupPolicy)
	assert.Equal(t, "first-last", cfg.AuthorFormat)
	assert.Equal(t, BackendSQLite, cfg.Backend)
	assert.Equal(t, "https://gatech.instructure.com", cfg.BaseURL)
	assert.Equal(t, "#EEB211", cfg.Color)
	assert.Equal(t, "via Canvas", cfg.Footer)
	assert.Equal(t, "<!channel>", cfg.Mention)
	assert.Empty(t, cfg.File)
}

func TestLoadConfigJSON(t *testing.T) {
	dir := isolate(t)
	writeConfig(t, dir, `{
		"feed_url": "https://gatech.instructure.com/feeds/announcements/course_1.atom",
		"bot_token": "xoxb-1",
		"channel_name": "announcements",
		"interval_sec": 120
	}`)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://gatech.instructure.com/feeds/announcements/course_1.atom", cfg.FeedURL)
	assert.Equal(t, "xoxb-1", cfg.BotToken)
	assert.Equal(t, "announcements", cfg.ChannelName)
	assert.Equal(t, 2*time.Minute, cfg.Interval, "interval_sec should apply when interval is unset")
	assert.NotEmpty(t, cfg.File)
	assert.NoError(t, cfg.ValidateDelivery())
}

func TestLoadExplicitPath(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"feed_url": "https://x/feed", "interval": "90s", "dedup_policy": "cursor"}`), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.Interval)
	assert.Equal(t, ledger.PolicyCursor, cfg.DedupPolicy)

	_, err = Load(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := isolate(t)
	writeConfig(t, dir, `{"feed_url": "https://file/feed", "channel_name": "file-channel"}`)

	t.Setenv("HERALD_FEED_URL", "https://env/feed")
	t.Setenv("HERALD_SKIP_BACKLOG", "true")
	t.Setenv("CHANNEL_NAME", "legacy-channel")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://env/feed", cfg.FeedURL)
	assert.True(t, cfg.SkipBacklog)
	assert.Equal(t, "legacy-channel", cfg.ChannelName)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			FeedURL:      "https://x/feed",
			Interval:     time.Minute,
			PostDelay:    time.Second,
			HTTPTimeout:  time.Second,
			DedupPolicy:  ledger.PolicyLedger,
			AuthorFormat: "full",
			Backend:      BackendSQLite,
		}
	}

	assert.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing feed", func(c *Config) { c.FeedURL = " " }},
		{"zero interval", func(c *Config) { c.Interval = 0 }},
		{"negative delay", func(c *Config) { c.PostDelay = -time.Second }},
		{"zero http timeout", func(c *Config) { c.HTTPTimeout = 0 }},
		{"bad policy", func(c *Config) { c.DedupPolicy = "hope" }},
		{"bad author format", func(c *Config) { c.AuthorFormat = "initials" }},
		{"bad backend", func(c *Config) { c.Backend = "markdown" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateDelivery(t *testing.T) {
	cfg := &Config{
		FeedURL:     "https://x/feed",
		Interval:    time.Minute,
		HTTPTimeout: time.Second,
		DedupPolicy: ledger.PolicyCursor,
		Backend:     BackendCharm,
	}
	assert.Error(t, cfg.ValidateDelivery(), "bot token missing")

	cfg.BotToken = "xoxb"
	assert.Error(t, cfg.ValidateDelivery(), "channel missing")

	cfg.ChannelID = "C1"
	assert.NoError(t, cfg.ValidateDelivery())
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, "", ExpandPath(""))
	assert.Equal(t, home, ExpandPath("~"))
	assert.Equal(t, filepath.Join(home, "herald"), ExpandPath("~/herald"))
	assert.Equal(t, "/var/lib/herald", ExpandPath("/var/lib/herald"))
}

func TestOpenStoreAndPolicy(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{Backend: BackendSQLite, DataDir: dir, DedupPolicy: ledger.PolicyCursor}

	store, err := cfg.OpenStore()
	require.NoError(t, err)
	defer store.Close()
	assert.FileExists(t, storage.DBPath(dir))

	policy, err := cfg.NewPolicy(store)
	require.NoError(t, err)
	assert.Equal(t, ledger.PolicyCursor, policy.Name())

	_, err = cfg.OpenBackend("floppy")
	assert.Error(t, err)
}

func TestNewExtractor(t *testing.T) {
	cfg := &Config{AuthorFormat: "full", BaseURL: "https://canvas.example.edu"}
	x, err := cfg.NewExtractor()
	require.NoError(t, err)

	feed, err := x.Extract([]byte(`<feed xmlns="http://www.w3.org/2005/Atom"><entry><id>1</id><author><name>Ada B Lovelace</name></author><content type="html">&lt;a href="/p"&gt;p&lt;/a&gt;</content></entry></feed>`))
	require.NoError(t, err)
	require.Len(t, feed.Entries, 1)
	assert.Equal(t, "Ada B Lovelace", feed.Entries[0].Author)
	assert.Equal(t, "<https://canvas.example.edu/p|p>", feed.Entries[0].Content)

	cfg.AuthorFormat = "nickname"
	_, err = cfg.NewExtractor()
	assert.Error(t, err)
}

func TestSaveFile(t *testing.T) {
	isolate(t)
	path := DefaultConfigPath()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte(`{"post_delay": "2s", "feed_url": "https://old"}`), 0o600))

	cfg := &Config{FeedURL: "https://new/feed.atom", BotToken: "xoxb-1", ChannelName: "cs1332", Backend: BackendSQLite}
	require.NoError(t, cfg.SaveFile(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://new/feed.atom", loaded.FeedURL)
	assert.Equal(t, "cs1332", loaded.ChannelName)
	assert.Equal(t, 2*time.Second, loaded.PostDelay, "existing keys are kept")
}
