package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server" json:"server"`
	Database      DatabaseConfig      `mapstructure:"database" json:"database"`
	Auth          AuthConfig          `mapstructure:"auth" json:"auth"`
	OpenAI        OpenAIConfig        `mapstructure:"openai" json:"openai"`
	Chat          ChatConfig          `mapstructure:"chat" json:"chat"`
	Summarization SummarizationConfig `mapstructure:"summarization" json:"summarization"`
	Log           LogConfig           `mapstructure:"log" json:"log"`
	Metrics       MetricsConfig       `mapstructure:"metrics" json:"metrics"`
}

type ServerConfig struct {
	Host string `mapstructure:"host" json:"host"`
	Port int    `mapstructure:"port" json:"port"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host" json:"host"`
	Port     int    `mapstructure:"port" json:"port"`
	User     string `mapstructure:"user" json:"user"`
	Password string `mapstructure:"password" json:"-"`
	Database string `mapstructure:"database" json:"database"`
	SSLMode  string `mapstructure:"sslmode" json:"sslmode"`
}

type AuthConfig struct {
	JWTSecret       string        `mapstructure:"jwt_secret" json:"-"`
	JWTIssuer       string        `mapstructure:"jwt_issuer" json:"jwt_issuer"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl" json:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl" json:"refresh_token_ttl"`
}

type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key" json:"-"`
	BaseURL string `mapstructure:"base_url" json:"base_url,omitempty"`
}

type ChatConfig struct {
	DefaultModel string  `mapstructure:"default_model" json:"default_model"`
	SystemPrompt string  `mapstructure:"system_prompt" json:"system_prompt"`
	Temperature  float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens    int     `mapstructure:"max_tokens" json:"max_tokens"`
}

// SummarizationConfig seeds the engine; the admin API can change the
// effective values at runtime.
type SummarizationConfig struct {
	MaxTokensBeforeSummarization int    `mapstructure:"max_tokens_before_summarization" json:"max_tokens_before_summarization"`
	SummaryModel                 string `mapstructure:"summary_model" json:"summary_model"`
	PreserveRecentMessages       int    `mapstructure:"preserve_recent_messages" json:"preserve_recent_messages"`
	MaxSummaryTokens             int    `mapstructure:"max_summary_tokens" json:"max_summary_tokens"`
	// TokenCounter selects "heuristic" (default) or "tiktoken". The tiktoken
	// vocabulary loads from the network on first use, so exact counting is
	// opt-in.
	TokenCounter string `mapstructure:"token_counter" json:"token_counter"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" json:"enabled"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Check for user config directory
	homeDir, err := os.UserHomeDir()
	if err == nil {
		viper.AddConfigPath(filepath.Join(homeDir, ".kenchat"))
	}

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		// Defaults plus env overrides are enough to run
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	loadEnvOverrides(&cfg)

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 3000)

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "kenchat")
	viper.SetDefault("database.database", "kenchat")
	viper.SetDefault("database.sslmode", "disable")

	viper.SetDefault("auth.jwt_issuer", "kenchat")
	viper.SetDefault("auth.access_token_ttl", "15m")
	viper.SetDefault("auth.refresh_token_ttl", "168h")

	viper.SetDefault("chat.default_model", "gpt-4o-mini")
	viper.SetDefault("chat.system_prompt", "You are a helpful personal assistant.")
	viper.SetDefault("chat.temperature", 0.7)
	viper.SetDefault("chat.max_tokens", 2048)

	viper.SetDefault("summarization.max_tokens_before_summarization", 8000)
	viper.SetDefault("summarization.summary_model", "gpt-4o-mini")
	viper.SetDefault("summarization.preserve_recent_messages", 10)
	viper.SetDefault("summarization.max_summary_tokens", 500)
	viper.SetDefault("summarization.token_counter", "heuristic")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	viper.SetDefault("metrics.enabled", true)
}

func loadEnvOverrides(cfg *Config) {
	if host := os.Getenv("KENCHAT_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("KENCHAT_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	if dbHost := os.Getenv("POSTGRES_HOST"); dbHost != "" {
		cfg.Database.Host = dbHost
	}
	if dbPort := os.Getenv("POSTGRES_PORT"); dbPort != "" {
		if p, err := strconv.Atoi(dbPort); err == nil {
			cfg.Database.Port = p
		}
	}
	if dbUser := os.Getenv("POSTGRES_USER"); dbUser != "" {
		cfg.Database.User = dbUser
	}
	if dbPass := os.Getenv("POSTGRES_PASSWORD"); dbPass != "" {
		cfg.Database.Password = dbPass
	}
	if dbName := os.Getenv("POSTGRES_DB"); dbName != "" {
		cfg.Database.Database = dbName
	}

	if secret := os.Getenv("KENCHAT_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	} else if secret := os.Getenv("SECRET_KEY"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}

	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		cfg.OpenAI.APIKey = apiKey
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		cfg.OpenAI.BaseURL = baseURL
	}
}
