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
	p := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PINTEREST_ACCESS_TOKEN", "SERVER_ADDRESS", "DATABASE_DSN", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
	c, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", c.Server.Addr)
	assert.Equal(t, "https://api.pinterest.com/v5", c.Pinterest.APIBase)
	assert.Equal(t, 10*time.Second, c.Fetch.Timeout())
	assert.Equal(t, 15*time.Second, c.Fetch.ImageTimeout())
	assert.Equal(t, 1, c.Aggregate.BoardConcurrency)
	assert.Equal(t, "api", c.Search.DefaultMode)
	assert.Equal(t, 256, c.Search.CacheSize)
	assert.Equal(t, 10*time.Minute, c.Search.CacheTTL)
	assert.Equal(t, []string{"pinimg.com", "pinterest.com"}, c.ImageProxy.AllowedSuffixes)
	assert.Equal(t, int64(25<<20), c.ImageProxy.MaxBytes)
	assert.Equal(t, "./data.db", c.Database.DSN)
	assert.Equal(t, "pretty", c.LogFormat)
}

func TestLoad_FileAndEnv(t *testing.T) {
	p := writeConfig(t, `
SERVER:
  addr: ":9000"
  static_dir: ./public
PINTEREST:
  access_token: from-file
  client_id: cid
FETCH:
  timeout_ms: 2500
AGGREGATE:
  board_concurrency: 4
SEARCH:
  default_mode: Public
  cache_ttl: 90s
IMAGE_PROXY:
  allowed_suffixes: [pinimg.com]
  max_bytes: 1024
LOG_LEVEL: debug
`)
	t.Setenv("PINTEREST_ACCESS_TOKEN", "from-env")
	t.Setenv("SERVER_ADDRESS", "")
	t.Setenv("LOG_LEVEL", "")

	c, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, ":9000", c.Server.Addr)
	assert.Equal(t, "./public", c.Server.StaticDir)
	assert.Equal(t, "from-env", c.Pinterest.AccessToken)
	assert.Equal(t, "cid", c.Pinterest.ClientID)
	assert.Equal(t, 2500*time.Millisecond, c.Fetch.Timeout())
	assert.Equal(t, 4, c.Aggregate.BoardConcurrency)
	assert.Equal(t, "public", c.Search.DefaultMode)
	assert.Equal(t, 90*time.Second, c.Search.CacheTTL)
	assert.Equal(t, []string{"pinimg.com"}, c.ImageProxy.AllowedSuffixes)
	assert.Equal(t, int64(1024), c.ImageProxy.MaxBytes)
	assert.Equal(t, "debug", c.LogLevel)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"PINTEREST_CLIENT_SECRET": " s3cret ",
		"PINTEREST_REDIRECT_URI":  "http://localhost/cb",
		"DATABASE_DSN":            "file:tokens.db",
		"SERVER_ADDRESS":          "   ",
	}
	c := Config{Server: Server{Addr: ":1"}}
	c.ApplyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	assert.Equal(t, "s3cret", c.Pinterest.ClientSecret)
	assert.Equal(t, "http://localhost/cb", c.Pinterest.RedirectURI)
	assert.Equal(t, "file:tokens.db", c.Database.DSN)
	assert.Equal(t, ":1", c.Server.Addr)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"negative timeout", Config{Fetch: Fetch{TimeoutMS: -1}}},
		{"negative concurrency", Config{Aggregate: Aggregate{BoardConcurrency: -2}}},
		{"unknown mode", Config{Search: Search{DefaultMode: "scrape"}}},
		{"negative cache", Config{Search: Search{CacheSize: -1}}},
		{"empty allow-list", Config{ImageProxy: ImageProxy{AllowedSuffixes: []string{}}}},
		{"negative max bytes", Config{ImageProxy: ImageProxy{MaxBytes: -1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cfg.Validate())
		})
	}
}

func TestLoad_BadYAML(t *testing.T) {
	p := writeConfig(t, "SERVER: [unclosed")
	_, err := Load(p)
	assert.Error(t, err)
}
