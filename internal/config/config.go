// 包 config 负责加载与校验应用配置（settings.yaml），
// 对外提供结构体 Config 及默认值/合法性校验。
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     Server     `yaml:"SERVER"`
	Pinterest  Pinterest  `yaml:"PINTEREST"`
	Fetch      Fetch      `yaml:"FETCH"`
	Aggregate  Aggregate  `yaml:"AGGREGATE"`
	Search     Search     `yaml:"SEARCH"`
	ImageProxy ImageProxy `yaml:"IMAGE_PROXY"`
	Database   Database   `yaml:"DATABASE"`
	LogLevel   string     `yaml:"LOG_LEVEL"`
	LogFormat  string     `yaml:"LOG_FORMAT"` // text|json|pretty
	LogLocale  string     `yaml:"LOG_LOCALE"` // zh-CN|en
	LogColor   string     `yaml:"LOG_COLOR"`  // auto|always|never
}

type Server struct {
	Addr      string `yaml:"addr"`       // :8080
	StaticDir string `yaml:"static_dir"` // 为空则不托管前端
}

type Pinterest struct {
	APIBase      string   `yaml:"api_base"`
	WebBase      string   `yaml:"web_base"`
	AccessToken  string   `yaml:"access_token"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	RedirectURI  string   `yaml:"redirect_uri"`
	Scopes       []string `yaml:"scopes"`
}

type Fetch struct {
	TimeoutMS      int    `yaml:"timeout_ms"`
	ImageTimeoutMS int    `yaml:"image_timeout_ms"`
	UserAgent      string `yaml:"user_agent"`
	ProxyHTTP      string `yaml:"proxy_http"`
	ProxyHTTPS     string `yaml:"proxy_https"`
}

type Aggregate struct {
	// BoardConcurrency：并行抓取的画板数，1 为串行
	BoardConcurrency int `yaml:"board_concurrency"`
}

type Search struct {
	DefaultMode string        `yaml:"default_mode"` // api|public
	CacheSize   int           `yaml:"cache_size"`
	CacheTTL    time.Duration `yaml:"cache_ttl"` // 如 10m
}

type ImageProxy struct {
	AllowedSuffixes []string `yaml:"allowed_suffixes"`
	MaxBytes        int64    `yaml:"max_bytes"`
}

type Database struct {
	DSN string `yaml:"dsn"` // ./data.db，sqlite
}

// Timeout 返回普通 API 调用的截止时间。
func (f Fetch) Timeout() time.Duration { return time.Duration(f.TimeoutMS) * time.Millisecond }

// ImageTimeout 返回图片代理的截止时间。
func (f Fetch) ImageTimeout() time.Duration {
	return time.Duration(f.ImageTimeoutMS) * time.Millisecond
}

// Load 读取 YAML（文件不存在时使用默认值），叠加环境变量后校验并填充默认值。
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := readFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("unmarshal config %s: %w", path, err)
		}
	}
	c.ApplyEnv(os.LookupEnv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

func readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", path, err)
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return b, nil
}

// ApplyEnv 用环境变量覆盖配置文件中的同名项，空值不覆盖。
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(&c.Pinterest.AccessToken, "PINTEREST_ACCESS_TOKEN")
	set(&c.Pinterest.ClientID, "PINTEREST_CLIENT_ID")
	set(&c.Pinterest.ClientSecret, "PINTEREST_CLIENT_SECRET")
	set(&c.Pinterest.RedirectURI, "PINTEREST_REDIRECT_URI")
	set(&c.Server.Addr, "SERVER_ADDRESS")
	set(&c.Database.DSN, "DATABASE_DSN")
	set(&c.LogLevel, "LOG_LEVEL")
}

// Validate 负责合法性检查与默认值设置，避免在业务层分散判空逻辑。
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Pinterest.APIBase == "" {
		c.Pinterest.APIBase = "https://api.pinterest.com/v5"
	}
	if c.Pinterest.WebBase == "" {
		c.Pinterest.WebBase = "https://www.pinterest.com"
	}
	if c.Fetch.TimeoutMS < 0 || c.Fetch.ImageTimeoutMS < 0 {
		return errors.New("FETCH timeouts must be >= 0")
	}
	if c.Fetch.TimeoutMS == 0 {
		c.Fetch.TimeoutMS = 10000
	}
	if c.Fetch.ImageTimeoutMS == 0 {
		c.Fetch.ImageTimeoutMS = 15000
	}
	if c.Aggregate.BoardConcurrency < 0 {
		return errors.New("AGGREGATE.board_concurrency must be >= 0")
	}
	if c.Aggregate.BoardConcurrency == 0 {
		c.Aggregate.BoardConcurrency = 1
	}
	c.Search.DefaultMode = strings.ToLower(strings.TrimSpace(c.Search.DefaultMode))
	switch c.Search.DefaultMode {
	case "":
		c.Search.DefaultMode = "api"
	case "api", "public":
	default:
		return fmt.Errorf("unsupported SEARCH.default_mode: %s", c.Search.DefaultMode)
	}
	if c.Search.CacheSize < 0 || c.Search.CacheTTL < 0 {
		return errors.New("SEARCH cache size/ttl must be >= 0")
	}
	if c.Search.CacheSize == 0 {
		c.Search.CacheSize = 256
	}
	if c.Search.CacheTTL == 0 {
		c.Search.CacheTTL = 10 * time.Minute
	}
	if c.ImageProxy.AllowedSuffixes == nil {
		c.ImageProxy.AllowedSuffixes = []string{"pinimg.com", "pinterest.com"}
	}
	if len(c.ImageProxy.AllowedSuffixes) == 0 {
		return errors.New("IMAGE_PROXY.allowed_suffixes must not be empty")
	}
	if c.ImageProxy.MaxBytes < 0 {
		return errors.New("IMAGE_PROXY.max_bytes must be >= 0")
	}
	if c.ImageProxy.MaxBytes == 0 {
		c.ImageProxy.MaxBytes = 25 << 20
	}
	if c.Database.DSN == "" {
		c.Database.DSN = "./data.db"
	}
	if c.LogFormat == "" {
		c.LogFormat = "pretty"
	}
	if c.LogLocale == "" {
		c.LogLocale = "zh-CN"
	}
	if c.LogColor == "" {
		c.LogColor = "auto"
	}
	return nil
}
