package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures everything required to run the crawl service and the one-shot CLI.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	DB        SQLConfig       `yaml:"db"`
	Redis     RedisConfig     `yaml:"redis"`
	Jobs      JobsConfig      `yaml:"jobs"`
	Crawl     CrawlConfig     `yaml:"crawl"`
	Extract   ExtractConfig   `yaml:"extract"`
	Rendering RenderingConfig `yaml:"rendering"`
	Robots    RobotsConfig    `yaml:"robots"`
	LLM       LLMConfig       `yaml:"llm"`
	Liveness  LivenessConfig  `yaml:"liveness"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig controls the HTTP listener and background job capacity.
type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	MaxConcurrency  int      `yaml:"max_concurrency"`
	QueueSize       int      `yaml:"queue_size"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// SQLConfig describes the relational database holding results and domain status.
type SQLConfig struct {
	Driver          string   `yaml:"driver"`
	DSN             string   `yaml:"dsn"`
	MaxOpenConns    int      `yaml:"max_open_conns"`
	MaxIdleConns    int      `yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
	CreateIfMissing bool     `yaml:"create_if_missing"`
	AutoMigrate     bool     `yaml:"auto_migrate"`
}

// Enabled reports whether a database has been configured.
func (c SQLConfig) Enabled() bool {
	return c.Driver != "" && c.DSN != ""
}

// RedisConfig configures the redis job store.
type RedisConfig struct {
	Host      string   `yaml:"host"`
	Port      string   `yaml:"port"`
	DB        int      `yaml:"db"`
	Password  string   `yaml:"password"`
	KeyPrefix string   `yaml:"key_prefix"`
	Timeout   Duration `yaml:"timeout"`
}

// Addr returns host:port.
func (c RedisConfig) Addr() string {
	port := c.Port
	if port == "" {
		port = "6379"
	}
	return c.Host + ":" + port
}

// JobsConfig controls the job store backend and lifecycle timings.
type JobsConfig struct {
	Backend         string   `yaml:"backend"`
	Retention       Duration `yaml:"retention"`
	CleanupSchedule string   `yaml:"cleanup_schedule"`
	Timeout         Duration `yaml:"timeout"`
	PollRetries     int      `yaml:"poll_retries"`
	PollRetryDelay  Duration `yaml:"poll_retry_delay"`
}

// CrawlConfig holds the orchestrator's limits and politeness settings.
type CrawlConfig struct {
	DefaultMaxDepth    int               `yaml:"default_max_depth"`
	UserAgent          string            `yaml:"user_agent"`
	Headers            map[string]string `yaml:"headers"`
	ProxyURL           string            `yaml:"proxy_url"`
	RequestDelay       Duration          `yaml:"request_delay"`
	RateLimitPerDomain RateLimitConfig   `yaml:"rate_limit_per_domain"`
	HomepageTimeout    Duration          `yaml:"homepage_timeout"`
	PageTimeout        Duration          `yaml:"page_timeout"`
	KeyPageTimeout     Duration          `yaml:"key_page_timeout"`
	KeyPageRetryDelay  Duration          `yaml:"key_page_retry_delay"`
	KeyPagePaths       []string          `yaml:"key_page_paths"`
	MaxKeyPages        int               `yaml:"max_key_pages"`
	HomepageMinWords   int               `yaml:"homepage_min_words"`
	KeyPageMinWords    int               `yaml:"key_page_min_words"`
	FallbackMaxDepth   int               `yaml:"fallback_max_depth"`
	MaxLinksPerPage    int               `yaml:"max_links_per_page"`
	MaxBodyBytes       int64             `yaml:"max_body_bytes"`
}

// RateLimitConfig applies a token bucket per domain on top of the fixed delay.
type RateLimitConfig struct {
	Requests int      `yaml:"requests"`
	Window   Duration `yaml:"window"`
}

// Enabled reports whether per-domain rate limiting is active.
func (r RateLimitConfig) Enabled() bool {
	return r.Requests > 0 && !r.Window.IsZero()
}

// ExtractConfig tunes main-content isolation.
type ExtractConfig struct {
	MinWords          int      `yaml:"min_words"`
	MinContainerChars int      `yaml:"min_container_chars"`
	RemoveSelectors   []string `yaml:"remove_selectors"`
	ContentSelectors  []string `yaml:"content_selectors"`
}

// RenderingConfig selects and tunes the render capability.
type RenderingConfig struct {
	Engine             string   `yaml:"engine"`
	WaitForSelector    string   `yaml:"wait_for_selector"`
	WaitForDOMReady    bool     `yaml:"wait_for_dom_ready"`
	CaptureDelay       Duration `yaml:"capture_delay"`
	DisableHeadless    bool     `yaml:"disable_headless"`
	ConcurrentSessions int      `yaml:"concurrent_sessions"`
	BlockResources     bool     `yaml:"block_resources"`
}

// RobotsConfig configures the optional robots.txt gate.
type RobotsConfig struct {
	UserAgent string   `yaml:"user_agent"`
	CacheTTL  Duration `yaml:"cache_ttl"`
	Overrides []string `yaml:"overrides"`
}

// LLMConfig configures the text-generation capability.
type LLMConfig struct {
	Provider    string   `yaml:"provider"`
	Model       string   `yaml:"model"`
	APIKey      string   `yaml:"api_key"`
	APIURL      string   `yaml:"api_url"`
	MaxTokens   int      `yaml:"max_tokens"`
	Temperature float64  `yaml:"temperature"`
	Timeout     Duration `yaml:"timeout"`
	MaxRetries  int      `yaml:"max_retries"`
}

// Enabled reports whether a provider and key are present.
func (c LLMConfig) Enabled() bool {
	p := strings.ToLower(c.Provider)
	return p != "" && p != "none" && strings.TrimSpace(c.APIKey) != ""
}

// LivenessConfig controls the llms.txt presence sweep.
type LivenessConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Schedule    string   `yaml:"schedule"`
	Timeout     Duration `yaml:"timeout"`
	Concurrency int      `yaml:"concurrency"`
	StaleAfter  Duration `yaml:"stale_after"`
}

// LoggingConfig selects log verbosity and format.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Structured  bool   `yaml:"structured"`
	Development bool   `yaml:"development"`
}

// DefaultKeyPagePaths are probed after a substantial homepage.
var DefaultKeyPagePaths = []string{
	"/about",
	"/ueber-uns",
	"/about-us",
	"/company",
	"/unternehmen",
	"/services",
	"/leistungen",
	"/dienstleistungen",
	"/products",
	"/produkte",
	"/solutions",
	"/loesungen",
	"/team",
	"/people",
	"/philosophy",
	"/mission",
	"/vision",
}

// Default returns a Config populated with the service defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			MaxConcurrency:  5,
			QueueSize:       64,
			ShutdownTimeout: DurationFrom(15 * time.Second),
		},
		DB: SQLConfig{
			AutoMigrate: true,
		},
		Redis: RedisConfig{
			Port:      "6379",
			KeyPrefix: "llmstxt:jobs",
			Timeout:   DurationFrom(3 * time.Second),
		},
		Jobs: JobsConfig{
			Backend:         "memory",
			Retention:       DurationFrom(2 * time.Hour),
			CleanupSchedule: "@every 10m",
			Timeout:         DurationFrom(10 * time.Minute),
			PollRetries:     3,
			PollRetryDelay:  DurationFrom(100 * time.Millisecond),
		},
		Crawl: CrawlConfig{
			DefaultMaxDepth:   3,
			UserAgent:         "Mozilla/5.0 (compatible; LLMsTxtGenerator/1.0)",
			Headers:           map[string]string{},
			RequestDelay:      DurationFrom(500 * time.Millisecond),
			HomepageTimeout:   DurationFrom(15 * time.Second),
			PageTimeout:       DurationFrom(30 * time.Second),
			KeyPageTimeout:    DurationFrom(10 * time.Second),
			KeyPageRetryDelay: DurationFrom(500 * time.Millisecond),
			KeyPagePaths:      append([]string(nil), DefaultKeyPagePaths...),
			MaxKeyPages:       3,
			HomepageMinWords:  200,
			KeyPageMinWords:   100,
			FallbackMaxDepth:  1,
			MaxLinksPerPage:   200,
			MaxBodyBytes:      6 * 1024 * 1024,
		},
		Extract: ExtractConfig{
			MinWords:          50,
			MinContainerChars: 100,
		},
		Rendering: RenderingConfig{
			Engine:             "chromedp",
			WaitForDOMReady:    true,
			ConcurrentSessions: 2,
			BlockResources:     true,
		},
		Robots: RobotsConfig{
			UserAgent: "LLMsTxtGenerator",
			CacheTTL:  DurationFrom(6 * time.Hour),
		},
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			APIURL:      "https://api.openai.com/v1",
			MaxTokens:   1500,
			Temperature: 0.2,
			Timeout:     DurationFrom(60 * time.Second),
			MaxRetries:  2,
		},
		Liveness: LivenessConfig{
			Enabled:     true,
			Schedule:    "@every 1h",
			Timeout:     DurationFrom(5 * time.Second),
			Concurrency: 8,
			StaleAfter:  DurationFrom(time.Hour),
		},
		Logging: LoggingConfig{
			Level:      "info",
			Structured: true,
		},
	}
}

// Load reads, merges, and validates configuration from a YAML file.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		cfg := Default()
		cfg.normalise()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer fh.Close()
	return LoadFromReader(fh)
}

// LoadFromReader decodes configuration from an arbitrary reader.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decodeYAML(r, &cfg); err != nil {
		return nil, err
	}
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// Validate enforces the invariants the service relies on.
func (c Config) Validate() error {
	if c.Server.MaxConcurrency <= 0 {
		return fmt.Errorf("server.max_concurrency must be > 0 (got %d)", c.Server.MaxConcurrency)
	}
	if c.Server.QueueSize <= 0 {
		return fmt.Errorf("server.queue_size must be > 0 (got %d)", c.Server.QueueSize)
	}
	switch c.Jobs.Backend {
	case "memory", "redis", "sql":
	default:
		return fmt.Errorf("unsupported jobs.backend %q", c.Jobs.Backend)
	}
	if c.Jobs.Backend == "redis" && c.Redis.Host == "" {
		return errors.New("redis.host must be set when jobs.backend is redis")
	}
	if c.Jobs.Backend == "sql" && !c.DB.Enabled() {
		return errors.New("db.driver and db.dsn must be set when jobs.backend is sql")
	}
	if c.Jobs.Retention.Duration <= 0 {
		return errors.New("jobs.retention must be > 0")
	}
	if c.Jobs.Timeout.Duration <= 0 {
		return errors.New("jobs.timeout must be > 0")
	}
	if c.Jobs.PollRetries < 0 {
		return fmt.Errorf("jobs.poll_retries must be >= 0 (got %d)", c.Jobs.PollRetries)
	}
	if c.DB.Driver != "" {
		switch c.DB.Driver {
		case "postgres", "sqlite3":
		default:
			return fmt.Errorf("unsupported db.driver %q", c.DB.Driver)
		}
	}
	if c.Crawl.DefaultMaxDepth <= 0 {
		return fmt.Errorf("crawl.default_max_depth must be > 0 (got %d)", c.Crawl.DefaultMaxDepth)
	}
	if c.Crawl.MaxKeyPages < 0 {
		return fmt.Errorf("crawl.max_key_pages must be >= 0 (got %d)", c.Crawl.MaxKeyPages)
	}
	if c.Crawl.FallbackMaxDepth <= 0 {
		return fmt.Errorf("crawl.fallback_max_depth must be > 0 (got %d)", c.Crawl.FallbackMaxDepth)
	}
	if c.Crawl.MaxBodyBytes <= 0 {
		return fmt.Errorf("crawl.max_body_bytes must be > 0 (got %d)", c.Crawl.MaxBodyBytes)
	}
	if rl := c.Crawl.RateLimitPerDomain; rl.Requests < 0 {
		return fmt.Errorf("crawl.rate_limit_per_domain.requests must be >= 0 (got %d)", rl.Requests)
	}
	if strings.TrimSpace(c.Crawl.UserAgent) == "" {
		return errors.New("crawl.user_agent must be set")
	}
	if c.Extract.MinWords <= 0 {
		return fmt.Errorf("extract.min_words must be > 0 (got %d)", c.Extract.MinWords)
	}
	switch c.Rendering.Engine {
	case "chromedp", "rod", "http":
	default:
		return fmt.Errorf("unsupported rendering.engine %q", c.Rendering.Engine)
	}
	switch c.LLM.Provider {
	case "", "none", "openai", "anthropic":
	default:
		return fmt.Errorf("unsupported llm.provider %q", c.LLM.Provider)
	}
	if c.LLM.MaxTokens < 0 {
		return fmt.Errorf("llm.max_tokens must be >= 0 (got %d)", c.LLM.MaxTokens)
	}
	if c.Liveness.Concurrency <= 0 {
		return fmt.Errorf("liveness.concurrency must be > 0 (got %d)", c.Liveness.Concurrency)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unsupported logging.level %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) normalise() {
	c.Server.Addr = strings.TrimSpace(c.Server.Addr)
	c.DB.Driver = strings.ToLower(strings.TrimSpace(c.DB.Driver))
	if c.DB.Driver == "postgresql" {
		c.DB.Driver = "postgres"
	}
	if c.DB.Driver == "sqlite" {
		c.DB.Driver = "sqlite3"
	}
	c.DB.DSN = strings.TrimSpace(c.DB.DSN)
	c.Redis.Host = strings.TrimSpace(c.Redis.Host)
	c.Jobs.Backend = strings.ToLower(strings.TrimSpace(c.Jobs.Backend))
	c.Crawl.UserAgent = strings.TrimSpace(c.Crawl.UserAgent)
	c.Rendering.Engine = strings.ToLower(strings.TrimSpace(c.Rendering.Engine))
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	c.LLM.APIURL = strings.TrimRight(strings.TrimSpace(c.LLM.APIURL), "/")
	if c.Crawl.Headers == nil {
		c.Crawl.Headers = make(map[string]string)
	}
	if len(c.Crawl.KeyPagePaths) == 0 {
		c.Crawl.KeyPagePaths = append([]string(nil), DefaultKeyPagePaths...)
	}
	for i, p := range c.Crawl.KeyPagePaths {
		p = strings.TrimSpace(p)
		if p != "" && !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		c.Crawl.KeyPagePaths[i] = p
	}
	if len(c.Robots.Overrides) > 0 {
		c.Robots.Overrides = dedupeLower(c.Robots.Overrides)
	}
}

func dedupeLower(values []string) []string {
	unique := make(map[string]struct{}, len(values))
	cleaned := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := unique[v]; ok {
			continue
		}
		unique[v] = struct{}{}
		cleaned = append(cleaned, v)
	}
	sort.Strings(cleaned)
	return cleaned
}
