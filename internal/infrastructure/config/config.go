package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"recipe-scaler/internal/pkg/common"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 推論服務後端
const (
	ProviderOpenRouter = "openrouter"
	ProviderLangChain  = "langchain"
	ProviderGemini     = "gemini"
)

// 各推論後端未設定時使用的模型與端點
const (
	DefaultOpenRouterModel   = "openai/gpt-4o-mini"
	DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	DefaultOpenAIModel       = "gpt-4o-mini"
	DefaultGeminiModel       = "gemini-1.5-flash"
)

// 縮放模式
const (
	ScalingModeSplit  = "split"
	ScalingModeOracle = "oracle"
)

// 快取後端
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// Config 應用配置
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Oracle    OracleConfig    `mapstructure:"oracle"`
	Scaling   ScalingConfig   `mapstructure:"scaling"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Retail    RetailConfig    `mapstructure:"retail"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Retry     RetryConfig     `mapstructure:"retry"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Source    SourceConfig    `mapstructure:"source"`
	LogLevel  string          `mapstructure:"log_level"`
	LogDir    string          `mapstructure:"log_dir"`
}

// AppConfig 應用程式設定
type AppConfig struct {
	Env     string `mapstructure:"env"`
	Debug   bool   `mapstructure:"debug"`
	Version string `mapstructure:"version"`
	Name    string `mapstructure:"name"`
}

// ServerConfig 服務器配置
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"`
	DedupWindow    time.Duration `mapstructure:"dedup_window"`
}

// OracleConfig 推論服務配置
type OracleConfig struct {
	Provider          string        `mapstructure:"provider"`
	APIKey            string        `mapstructure:"api_key"`
	Model             string        `mapstructure:"model"`
	BaseURL           string        `mapstructure:"base_url"`
	MaxTokens         int           `mapstructure:"max_tokens"`
	Temperature       float64       `mapstructure:"temperature"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

// ScalingConfig 縮放設定
type ScalingConfig struct {
	Mode      string  `mapstructure:"mode"`
	Tolerance float64 `mapstructure:"tolerance"`
}

// CacheConfig 推論回覆快取配置
type CacheConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Backend         string        `mapstructure:"backend"`
	MaxSize         int           `mapstructure:"max_size"`
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
}

// RetailConfig 零售搜尋設定
type RetailConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	BaseURL      string        `mapstructure:"base_url"`
	Workers      int           `mapstructure:"workers"`
	WaitTimeout  time.Duration `mapstructure:"wait_timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	RequestDelay time.Duration `mapstructure:"request_delay"`
	Cookie       string        `mapstructure:"cookie"`
	UserAgent    string        `mapstructure:"user_agent"`
}

// StorageConfig 結果保存設定
type StorageConfig struct {
	OutputPath string `mapstructure:"output_path"`
	HistoryDSN string `mapstructure:"history_dsn"`
}

// RetryConfig 呼叫端對推論服務的重試策略
type RetryConfig struct {
	Attempts int           `mapstructure:"attempts"`
	Backoff  time.Duration `mapstructure:"backoff"`
}

// RateLimitConfig HTTP 限流配置
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// SourceConfig 食譜網頁抓取設定
type SourceConfig struct {
	Timeout  time.Duration `mapstructure:"timeout"`
	MaxChars int           `mapstructure:"max_chars"`
}

// LoadConfig 載入設定
func LoadConfig() (*Config, error) {
	// .env 不存在時只使用環境變數與預設值
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	// 設定環境變數前綴
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 綁定常用環境變量
	_ = v.BindEnv("oracle.provider", "APP_ORACLE_PROVIDER", "ORACLE_PROVIDER")
	_ = v.BindEnv("oracle.model", "APP_ORACLE_MODEL", "ORACLE_MODEL")
	_ = v.BindEnv("oracle.base_url", "APP_ORACLE_BASE_URL", "ORACLE_BASE_URL")
	_ = v.BindEnv("oracle.api_key", "APP_ORACLE_API_KEY", "OPENROUTER_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("oracle.max_tokens", "APP_ORACLE_MAX_TOKENS", "MODEL_MAX_TOKENS")
	_ = v.BindEnv("cache.enabled", "APP_CACHE_ENABLED", "CACHE_ENABLED")
	_ = v.BindEnv("cache.redis_addr", "APP_CACHE_REDIS_ADDR", "REDIS_ADDR")
	_ = v.BindEnv("retail.cookie", "APP_RETAIL_COOKIE", "WALMART_COOKIE")
	_ = v.BindEnv("rate_limit.enabled", "APP_RATE_LIMIT_ENABLED", "RATE_LIMIT_ENABLED")
	_ = v.BindEnv("log_level", "APP_LOG_LEVEL", "LOG_LEVEL")

	// 可選的設定檔 config.yaml
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// 解析設定
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	normalize(&config)

	// 驗證必要設定
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// MaskAPIKey 遮罩 API Key，只顯示前後各 4 個字符
func MaskAPIKey(key string) string {
	return common.MaskSecret(key)
}

// setDefaults 設定預設值
func setDefaults(v *viper.Viper) {
	// 應用程式設定
	v.SetDefault("app.env", "development")
	v.SetDefault("app.debug", false)
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.name", "recipe-scaler")

	// 伺服器設定
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "180s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "170s")
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.dedup_window", "2s")

	// 推論服務設定
	v.SetDefault("oracle.provider", ProviderOpenRouter)
	v.SetDefault("oracle.max_tokens", 4096)
	v.SetDefault("oracle.temperature", 0.2)
	v.SetDefault("oracle.timeout", "60s")
	v.SetDefault("oracle.requests_per_second", 1.0)
	v.SetDefault("oracle.burst", 2)

	// 縮放設定
	v.SetDefault("scaling.mode", ScalingModeSplit)
	v.SetDefault("scaling.tolerance", 1e-6)

	// 快取設定
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.backend", CacheBackendMemory)
	v.SetDefault("cache.max_size", 500)
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.cleanup_interval", "10m")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_db", 0)

	// 零售搜尋設定
	v.SetDefault("retail.enabled", false)
	v.SetDefault("retail.base_url", "https://www.walmart.com")
	v.SetDefault("retail.workers", 1)
	v.SetDefault("retail.wait_timeout", "10s")
	v.SetDefault("retail.poll_interval", "500ms")
	v.SetDefault("retail.request_delay", "2s")
	v.SetDefault("retail.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")

	// 保存設定
	v.SetDefault("storage.output_path", "shopping_list.json")
	v.SetDefault("storage.history_dsn", "")

	// 重試設定
	v.SetDefault("retry.attempts", 1)
	v.SetDefault("retry.backoff", "2s")

	// 限流設定
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests", 30)
	v.SetDefault("rate_limit.window", "1m")

	// 網頁抓取設定
	v.SetDefault("source.timeout", "20s")
	v.SetDefault("source.max_chars", 20000)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_dir", "logs")
}

// normalize 統一大小寫與空白
func normalize(config *Config) {
	config.Oracle.Provider = strings.ToLower(strings.TrimSpace(config.Oracle.Provider))
	config.Scaling.Mode = strings.ToLower(strings.TrimSpace(config.Scaling.Mode))
	config.Cache.Backend = strings.ToLower(strings.TrimSpace(config.Cache.Backend))
	config.Retail.BaseURL = strings.TrimRight(config.Retail.BaseURL, "/")
	config.Oracle.Model = strings.TrimSpace(config.Oracle.Model)
	config.Oracle.BaseURL = strings.TrimRight(strings.TrimSpace(config.Oracle.BaseURL), "/")
	applyProviderDefaults(&config.Oracle)
}

// applyProviderDefaults 依後端補上未設定的模型與端點。
// langchain 留空端點時使用 OpenAI 官方端點，gemini 不使用端點。
func applyProviderDefaults(o *OracleConfig) {
	switch o.Provider {
	case ProviderOpenRouter:
		if o.Model == "" {
			o.Model = DefaultOpenRouterModel
		}
		if o.BaseURL == "" {
			o.BaseURL = DefaultOpenRouterBaseURL
		}
	case ProviderLangChain:
		if o.Model == "" {
			o.Model = DefaultOpenAIModel
		}
	case ProviderGemini:
		if o.Model == "" {
			o.Model = DefaultGeminiModel
		}
	}
}

// validateConfig 驗證設定
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 {
		return fmt.Errorf("server port is required")
	}

	switch config.Oracle.Provider {
	case ProviderOpenRouter, ProviderLangChain, ProviderGemini:
	default:
		return fmt.Errorf("unknown oracle provider %q", config.Oracle.Provider)
	}
	if config.Oracle.Timeout <= 0 {
		return fmt.Errorf("oracle timeout must be positive")
	}
	if config.Oracle.RequestsPerSecond <= 0 || config.Oracle.Burst <= 0 {
		return fmt.Errorf("invalid oracle rate limit")
	}

	switch config.Scaling.Mode {
	case ScalingModeSplit, ScalingModeOracle:
	default:
		return fmt.Errorf("unknown scaling mode %q", config.Scaling.Mode)
	}
	if config.Scaling.Tolerance <= 0 {
		return fmt.Errorf("scaling tolerance must be positive")
	}

	// 驗證快取設定
	if config.Cache.Enabled {
		switch config.Cache.Backend {
		case CacheBackendMemory:
			if config.Cache.MaxSize <= 0 {
				return fmt.Errorf("invalid cache max size")
			}
			if config.Cache.CleanupInterval <= 0 {
				return fmt.Errorf("invalid cache cleanup interval")
			}
		case CacheBackendRedis:
			if config.Cache.RedisAddr == "" {
				return fmt.Errorf("redis address is required")
			}
		default:
			return fmt.Errorf("unknown cache backend %q", config.Cache.Backend)
		}
		if config.Cache.TTL <= 0 {
			return fmt.Errorf("invalid cache ttl")
		}
	}

	if config.Retail.Enabled {
		if config.Retail.BaseURL == "" {
			return fmt.Errorf("retail base url is required")
		}
		if config.Retail.Workers <= 0 {
			return fmt.Errorf("invalid retail workers")
		}
		if config.Retail.WaitTimeout <= 0 || config.Retail.PollInterval <= 0 {
			return fmt.Errorf("invalid retail wait settings")
		}
	}

	if config.Retry.Attempts <= 0 {
		return fmt.Errorf("retry attempts must be at least 1")
	}

	return nil
}
