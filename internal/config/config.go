package config

import "time"

// Config holds all application configuration.
// Both the API process and the worker process load the same structure.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Broker   BrokerConfig   `mapstructure:"broker" validate:"required"`
	Tasks    TaskConfig     `mapstructure:"tasks" validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm" validate:"required"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel     string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" validate:"gte=0"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"gte=0"`
}

// DatabaseConfig contains story database settings.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" validate:"required,oneof=postgres sqlite"`
	URL             string        `mapstructure:"url" validate:"required"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gte=0"`
}

// BrokerConfig contains NATS JetStream settings used for the work queue,
// the result store and the worker control plane.
type BrokerConfig struct {
	URL             string        `mapstructure:"url" validate:"required"`
	SubjectPrefix   string        `mapstructure:"subject_prefix" validate:"required,alphanum"`
	Stream          string        `mapstructure:"stream" validate:"required"`
	Bucket          string        `mapstructure:"bucket" validate:"required"`
	AckWait         time.Duration `mapstructure:"ack_wait" validate:"gt=0"`
	InspectTimeout  time.Duration `mapstructure:"inspect_timeout" validate:"gt=0"`
	ConnectAttempts uint64        `mapstructure:"connect_attempts" validate:"gte=1"`
}

// TaskConfig parameterizes the retry policy, result retention and workers.
type TaskConfig struct {
	RetryDelay      time.Duration `mapstructure:"retry_delay" validate:"gte=0"`
	StoryMaxRetries int           `mapstructure:"story_max_retries" validate:"gte=0"`
	LLMMaxRetries   int           `mapstructure:"llm_max_retries" validate:"gte=0"`
	RetryTerminal   bool          `mapstructure:"retry_terminal"`
	ResultTTL       time.Duration `mapstructure:"result_ttl" validate:"gt=0"`
	PollInterval    time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	MaxResultWait   time.Duration `mapstructure:"max_result_wait" validate:"gt=0"`
	Concurrency     int           `mapstructure:"concurrency" validate:"gte=1"`
	Hostname        string        `mapstructure:"hostname"`
}

// LLMConfig contains model provider settings. An empty API key is allowed;
// models are then reported as unavailable and LLM tasks fail terminally.
type LLMConfig struct {
	GeminiAPIKey   string            `mapstructure:"gemini_api_key"`
	DefaultModel   string            `mapstructure:"default_model" validate:"required"`
	Models         []string          `mapstructure:"models" validate:"required,min=1,dive,required"`
	TaskModels     map[string]string `mapstructure:"task_models"`
	Temperature    float64           `mapstructure:"temperature" validate:"gte=0,lte=2"`
	MaxTokens      int               `mapstructure:"max_tokens" validate:"gt=0"`
	RequestTimeout time.Duration     `mapstructure:"request_timeout" validate:"gt=0"`
	MaxRetries     uint64            `mapstructure:"max_retries"`
	RetryDelay     time.Duration     `mapstructure:"retry_delay" validate:"gte=0"`
}

// MetricsConfig controls the worker's Prometheus endpoint. The API process
// serves metrics on its own router.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port" validate:"omitempty,gt=0,lt=65536"`
}
