package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. STORY_SERVER_PORT.
const EnvPrefix = "STORY"

// keys without defaults still need explicit env bindings so Unmarshal sees them
var requiredKeys = []string{
	"database.url",
	"llm.gemini_api_key",
	"tasks.hostname",
}

// Load reads configuration from a .env file, an optional config.yaml in the
// working directory or ./configs, and STORY_* environment variables.
// Environment variables take precedence over the file.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file path. An empty path searches
// the default locations and tolerates a missing file.
func LoadFile(path string) (*Config, error) {
	return LoadWith(path, nil)
}

// LoadWith is LoadFile with overrides applied above every other source.
// Keys use the dotted form, e.g. "database.driver".
func LoadWith(path string, overrides map[string]any) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range requiredKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	for key, value := range overrides {
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 2*time.Minute)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("broker.url", "nats://127.0.0.1:4222")
	v.SetDefault("broker.subject_prefix", "story")
	v.SetDefault("broker.stream", "STORY_TASKS")
	v.SetDefault("broker.bucket", "story_results")
	v.SetDefault("broker.ack_wait", 10*time.Minute)
	v.SetDefault("broker.inspect_timeout", time.Second)
	v.SetDefault("broker.connect_attempts", 5)

	v.SetDefault("tasks.retry_delay", 60*time.Second)
	v.SetDefault("tasks.story_max_retries", 3)
	v.SetDefault("tasks.llm_max_retries", 2)
	v.SetDefault("tasks.retry_terminal", true)
	v.SetDefault("tasks.result_ttl", time.Hour)
	v.SetDefault("tasks.poll_interval", 500*time.Millisecond)
	v.SetDefault("tasks.max_result_wait", time.Minute)
	v.SetDefault("tasks.concurrency", 1)

	v.SetDefault("llm.default_model", "gemini-2.0-flash")
	v.SetDefault("llm.models", []string{"gemini-2.0-flash", "gemini-1.5-pro"})
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.request_timeout", 60*time.Second)
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay", time.Second)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
}
