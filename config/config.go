package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the article factory.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Image     ImageConfig     `mapstructure:"image"`
	Search    SearchConfig    `mapstructure:"search"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Publish   PublishConfig   `mapstructure:"publish"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Server    ServerConfig    `mapstructure:"server"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Debug     bool   `mapstructure:"debug"`
	OutputDir string `mapstructure:"output_dir"`
}

// LLMConfig points at an OpenAI-compatible chat completions endpoint.
type LLMConfig struct {
	APIURL         string        `mapstructure:"api_url"`
	APIKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model"`
	EmbeddingModel string        `mapstructure:"embedding_model"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RequestDelay   time.Duration `mapstructure:"request_delay"`
	MaxRetries     int           `mapstructure:"max_retries"`
	// MaxConsecutiveFailures is the process-fatal breaker threshold across
	// the whole generation boundary, not per call.
	MaxConsecutiveFailures int `mapstructure:"max_consecutive_failures"`
}

// ImageConfig configures the async cover-image generation API.
type ImageConfig struct {
	APIURL       string        `mapstructure:"api_url"`
	APIKey       string        `mapstructure:"api_key"`
	Model        string        `mapstructure:"model"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxWait      time.Duration `mapstructure:"max_wait"`
}

// SearchConfig selects and configures the web search provider.
type SearchConfig struct {
	Provider   string `mapstructure:"provider"` // searxng or serper
	Host       string `mapstructure:"host"`     // searxng instance
	APIKey     string `mapstructure:"api_key"`  // serper key
	MaxResults int    `mapstructure:"max_results"`
}

// FetchConfig selects and configures the page fetcher.
type FetchConfig struct {
	Provider   string        `mapstructure:"provider"` // jina or chromedp
	JinaAPIKey string        `mapstructure:"jina_api_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxChars   int           `mapstructure:"max_chars"`
}

// RetrievalConfig controls the per-article ephemeral index.
type RetrievalConfig struct {
	BaseDir      string `mapstructure:"base_dir"`
	ChunkSize    int    `mapstructure:"chunk_size"`
	ChunkOverlap int    `mapstructure:"chunk_overlap"`
	TopK         int    `mapstructure:"top_k"`
	// KeepSessions preserves session directories after cleanup for
	// inspection. Debug only.
	KeepSessions bool `mapstructure:"keep_sessions"`
}

// CatalogConfig holds the game catalog database and tier settings.
type CatalogConfig struct {
	Postgres  PostgresConfig `mapstructure:"postgres"`
	TiersFile string         `mapstructure:"tiers_file"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN builds a postgres connection string from either the URL or the parts.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres not configured (catalog.postgres.host/dbname or url)")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

// SchedulerConfig drives the daemon loop.
type SchedulerConfig struct {
	DailyLimit    int           `mapstructure:"daily_limit"`
	BacklogFile   string        `mapstructure:"backlog_file"`
	CacheDir      string        `mapstructure:"cache_dir"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	StateFile     string        `mapstructure:"state_file"`
	NoWorkBackoff time.Duration `mapstructure:"no_work_backoff"`
	Redis         RedisConfig   `mapstructure:"redis"`
}

// RedisConfig is optional; when set the daemon takes a run lock so two
// instances never interleave.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// PublishConfig points at the CMS.
type PublishConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// NotifyConfig configures the Telegram notification sink.
type NotifyConfig struct {
	TelegramToken  string `mapstructure:"telegram_token"`
	TelegramChatID string `mapstructure:"telegram_chat_id"`
}

// ServerConfig configures the daemon's ops HTTP server.
type ServerConfig struct {
	Address string `mapstructure:"address"` // empty disables the server
}

// LoadConfig reads configuration from file and environment (SLOTPRESS_*).
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.SetDefault("general.output_dir", "output")
	viper.SetDefault("llm.api_url", "https://api.openai.com/v1/chat/completions")
	viper.SetDefault("llm.timeout", "5m")
	viper.SetDefault("llm.request_delay", "1s")
	viper.SetDefault("llm.max_retries", 5)
	viper.SetDefault("llm.max_consecutive_failures", 10)
	viper.SetDefault("image.poll_interval", "5s")
	viper.SetDefault("image.max_wait", "5m")
	viper.SetDefault("search.provider", "searxng")
	viper.SetDefault("search.max_results", 5)
	viper.SetDefault("fetch.provider", "jina")
	viper.SetDefault("fetch.timeout", "30s")
	viper.SetDefault("fetch.max_chars", 20000)
	viper.SetDefault("retrieval.base_dir", "output/index_sessions")
	viper.SetDefault("retrieval.chunk_size", 1000)
	viper.SetDefault("retrieval.chunk_overlap", 100)
	viper.SetDefault("retrieval.top_k", 4)
	viper.SetDefault("catalog.tiers_file", "output/provider_tiers.json")
	viper.SetDefault("scheduler.daily_limit", 50)
	viper.SetDefault("scheduler.backlog_file", "output/generated_topics.csv")
	viper.SetDefault("scheduler.cache_dir", "output/topic_cache")
	viper.SetDefault("scheduler.cache_ttl", "168h")
	viper.SetDefault("scheduler.state_file", "output/daemon_state.json")
	viper.SetDefault("scheduler.no_work_backoff", "1h")
	viper.SetDefault("publish.timeout", "30s")

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("SLOTPRESS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	return &config
}
