package config

import (
	"fmt"
	"strconv"
	"strings"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overlays environment variables onto the loaded configuration and revalidates it.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	if lookup == nil {
		return nil
	}
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		if !ok {
			return "", false
		}
		v = strings.TrimSpace(v)
		return v, v != ""
	}

	if v, ok := get("LLMSTXT_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := get("CRAWLER_MAX_CONCURRENCY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CRAWLER_MAX_CONCURRENCY: %w", err)
		}
		c.Server.MaxConcurrency = n
	}
	if v, ok := get("DATABASE_DRIVER"); ok {
		c.DB.Driver = v
	}
	if v, ok := get("DATABASE_URL"); ok {
		c.DB.DSN = v
		if c.DB.Driver == "" {
			c.DB.Driver = driverFromDSN(v)
		}
	}
	if v, ok := get("JOBS_BACKEND"); ok {
		c.Jobs.Backend = v
	}
	if v, ok := get("REDIS_HOST"); ok {
		c.Redis.Host = v
	}
	if v, ok := get("REDIS_PORT"); ok {
		c.Redis.Port = v
	}
	if v, ok := get("REDIS_DB"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REDIS_DB: %w", err)
		}
		c.Redis.DB = n
	}
	if v, ok := lookup("REDIS_PASSWORD"); ok {
		c.Redis.Password = v
	}
	if v, ok := get("LLM_PROVIDER"); ok {
		c.LLM.Provider = v
	}
	if v, ok := get("LLM_MODEL"); ok {
		c.LLM.Model = v
	}
	if v, ok := get("LLM_API_URL"); ok {
		c.LLM.APIURL = v
	}
	switch strings.ToLower(c.LLM.Provider) {
	case "anthropic":
		if v, ok := get("ANTHROPIC_API_KEY"); ok && c.LLM.APIKey == "" {
			c.LLM.APIKey = v
		}
	default:
		if v, ok := get("OPENAI_API_KEY"); ok && c.LLM.APIKey == "" {
			c.LLM.APIKey = v
		}
	}
	if v, ok := get("RENDER_ENGINE"); ok {
		c.Rendering.Engine = v
	}
	if v, ok := get("LOG_LEVEL"); ok {
		c.Logging.Level = v
	}

	c.normalise()
	return c.Validate()
}

func driverFromDSN(dsn string) string {
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return "postgres"
	case strings.HasPrefix(lower, "file:"), strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"):
		return "sqlite3"
	default:
		return ""
	}
}
