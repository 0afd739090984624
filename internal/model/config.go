package model

import (
	"time"
)

// DefaultSourceURL is the page the statistics are collected from
const DefaultSourceURL = "https://ourworldindata.org/marriages-and-divorces"

// DefaultUserAgent mimics a desktop browser; the source rejects obvious bots
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Config is the complete runtime configuration
type Config struct {
	Source    SourceConfig    `yaml:"source" mapstructure:"source"`
	HTTP      HTTPConfig      `yaml:"http" mapstructure:"http"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	LLM       LLMConfig       `yaml:"llm" mapstructure:"llm"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Artifacts ArtifactsConfig `yaml:"artifacts" mapstructure:"artifacts"`
	Dashboard DashboardConfig `yaml:"dashboard" mapstructure:"dashboard"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// SourceConfig describes where and how the page is fetched
type SourceConfig struct {
	URL               string  `yaml:"url" mapstructure:"url"`
	RespectRobots     bool    `yaml:"respect_robots" mapstructure:"respect_robots"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// HTTPConfig holds outbound HTTP client settings
type HTTPConfig struct {
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent    string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	HTTPProxy    string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy   string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy      string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// CacheConfig controls the fetched-page cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// LLMConfig configures the text-generation provider
type LLMConfig struct {
	Provider     string `yaml:"provider" mapstructure:"provider"`
	Model        string `yaml:"model" mapstructure:"model"`
	APIKey       string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL      string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout      int    `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens    int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	StrictSchema bool   `yaml:"strict_schema" mapstructure:"strict_schema"`
}

// StoreConfig selects and configures the table store
type StoreConfig struct {
	// Driver is one of "rest", "postgres", "sqlite"
	Driver string `yaml:"driver" mapstructure:"driver"`
	Table  string `yaml:"table" mapstructure:"table"`

	// URL and Key are the REST (Supabase/PostgREST) credential pair
	URL string `yaml:"url,omitempty" mapstructure:"url"`
	Key string `yaml:"key,omitempty" mapstructure:"key"`

	// DSN is the postgres connection string or the sqlite file path
	DSN string `yaml:"dsn,omitempty" mapstructure:"dsn"`

	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// ArtifactsConfig names the files passed between stages
type ArtifactsConfig struct {
	Dir        string `yaml:"dir" mapstructure:"dir"`
	RawBlob    string `yaml:"raw_blob" mapstructure:"raw_blob"`
	Structured string `yaml:"structured" mapstructure:"structured"`
}

// DashboardConfig configures the read-side web server
type DashboardConfig struct {
	Addr             string        `yaml:"addr" mapstructure:"addr"`
	CacheTTL         time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	DefaultCountries int           `yaml:"default_countries" mapstructure:"default_countries"`
	Debug            bool          `yaml:"debug" mapstructure:"debug"`
}

// LogConfig configures structured logging
type LogConfig struct {
	Level       string `yaml:"level" mapstructure:"level"`
	Development bool   `yaml:"development" mapstructure:"development"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			URL:               DefaultSourceURL,
			RespectRobots:     false,
			RequestsPerSecond: 1,
			BurstSize:         1,
		},
		HTTP: HTTPConfig{
			Timeout:      30 * time.Second,
			UserAgent:    DefaultUserAgent,
			MaxBodyBytes: 5_000_000,
		},
		Cache: CacheConfig{
			Enabled:   false,
			Dir:       ".vitals-cache",
			MemoryTTL: 10 * time.Minute,
			DiskTTL:   24 * time.Hour,
		},
		LLM: LLMConfig{
			Provider:     "openai",
			Model:        "gpt-4o",
			Timeout:      180,
			StrictSchema: true,
		},
		Store: StoreConfig{
			Driver:  "rest",
			Table:   "demographics_data",
			Timeout: 30 * time.Second,
		},
		Artifacts: ArtifactsConfig{
			Dir:        "data",
			RawBlob:    "raw_blob.txt",
			Structured: "structured_data.json",
		},
		Dashboard: DashboardConfig{
			Addr:             ":8501",
			CacheTTL:         10 * time.Minute,
			DefaultCountries: 2,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// ValidateStore reports the credentials the selected store driver is missing
func (c StoreConfig) ValidateStore() error {
	var missing []string
	switch c.Driver {
	case "rest", "":
		if c.URL == "" {
			missing = append(missing, "SUPABASE_URL")
		}
		if c.Key == "" {
			missing = append(missing, "SUPABASE_KEY")
		}
	case "postgres", "sqlite":
		if c.DSN == "" {
			missing = append(missing, "DATABASE_URL")
		}
	default:
		return &ConfigurationError{Reason: "unknown store driver: " + c.Driver}
	}
	if c.Table == "" {
		missing = append(missing, "VITALS_STORE_TABLE")
	}
	if len(missing) > 0 {
		return &ConfigurationError{Missing: missing}
	}
	return nil
}

// ValidateLLM reports a missing API key for providers that need one
func (c LLMConfig) ValidateLLM() error {
	switch c.Provider {
	case "openai":
		if c.APIKey == "" {
			return &ConfigurationError{Missing: []string{"OPENAI_API_KEY"}}
		}
	case "anthropic", "claude":
		if c.APIKey == "" {
			return &ConfigurationError{Missing: []string{"ANTHROPIC_API_KEY"}}
		}
	case "ollama":
	default:
		return &ConfigurationError{Reason: "unknown LLM provider: " + c.Provider}
	}
	return nil
}
