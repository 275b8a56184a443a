package config

import "time"

// Config represents the main configuration structure
type Config struct {
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Guard      GuardConfig      `yaml:"guard" mapstructure:"guard"`
	Limits     LimitsConfig     `yaml:"limits" mapstructure:"limits"`
	Logging    LoggingConfig    `yaml:"logging" mapstructure:"logging"`
	WebSocket  WebSocketConfig  `yaml:"websocket" mapstructure:"websocket"`
	Audit      AuditConfig      `yaml:"audit" mapstructure:"audit"`
	Export     ExportConfig     `yaml:"export" mapstructure:"export"`
	Classifier ClassifierConfig `yaml:"classifier" mapstructure:"classifier"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// GuardConfig contains inspection pipeline configuration
type GuardConfig struct {
	PolicyPath    string        `yaml:"policy_path" mapstructure:"policy_path"`
	MessagesPath  string        `yaml:"messages_path" mapstructure:"messages_path"`
	MaxEntities   int           `yaml:"max_entities" mapstructure:"max_entities"`
	TimeBudget    time.Duration `yaml:"time_budget" mapstructure:"time_budget"`
	ContextWindow int           `yaml:"context_window" mapstructure:"context_window"`
}

// LimitsConfig contains resource-exhaustion defenses applied by the
// transport before the pipeline runs.
type LimitsConfig struct {
	MaxBodyBytes   int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	MaxConcurrent  int           `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`
	RequireAPIKey  bool          `yaml:"require_api_key" mapstructure:"require_api_key"`
	APIKey         string        `yaml:"api_key" mapstructure:"api_key"`
	RateLimit      struct {
		Enabled        bool    `yaml:"enabled" mapstructure:"enabled"`
		RequestsPerMin float64 `yaml:"requests_per_min" mapstructure:"requests_per_min"`
		Burst          int     `yaml:"burst" mapstructure:"burst"`
	} `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
	File   struct {
		Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
		Path    string `yaml:"path" mapstructure:"path"`
	} `yaml:"file" mapstructure:"file"`
}

// WebSocketConfig contains dashboard event stream configuration
type WebSocketConfig struct {
	Enabled            bool   `yaml:"enabled" mapstructure:"enabled"`
	Path               string `yaml:"path" mapstructure:"path"`
	Username           string `yaml:"username" mapstructure:"username"`
	Password           string `yaml:"password" mapstructure:"password"`
	BroadcastDecisions bool   `yaml:"broadcast_decisions" mapstructure:"broadcast_decisions"`
	BroadcastSystem    bool   `yaml:"broadcast_system" mapstructure:"broadcast_system"`
}

// AuditConfig contains the Postgres audit trail configuration
type AuditConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// ExportConfig contains the Redis SIEM spool configuration
type ExportConfig struct {
	Enabled       bool          `yaml:"enabled" mapstructure:"enabled"`
	RedisURL      string        `yaml:"redis_url" mapstructure:"redis_url"`
	QueueKey      string        `yaml:"queue_key" mapstructure:"queue_key"`
	BatchSize     int           `yaml:"batch_size" mapstructure:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval" mapstructure:"flush_interval"`
}

// ClassifierConfig controls the optional explain-only classifier hook
type ClassifierConfig struct {
	Enabled       bool          `yaml:"enabled" mapstructure:"enabled"`
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MinConfidence float64       `yaml:"min_confidence" mapstructure:"min_confidence"`
}

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Guard: GuardConfig{
			PolicyPath:    "configs/policy.yaml",
			MessagesPath:  "configs/messages.yaml",
			MaxEntities:   1000,
			TimeBudget:    100 * time.Millisecond,
			ContextWindow: 200,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		WebSocket: WebSocketConfig{
			Enabled:            false,
			Path:               "/ws",
			BroadcastDecisions: true,
			BroadcastSystem:    true,
		},
		Audit: AuditConfig{
			Enabled:         false,
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Export: ExportConfig{
			Enabled:       false,
			QueueKey:      "egress-guard:events",
			BatchSize:     64,
			FlushInterval: 5 * time.Second,
		},
		Classifier: ClassifierConfig{
			Enabled:       false,
			Timeout:       50 * time.Millisecond,
			MinConfidence: 0.6,
		},
	}
	cfg.Limits.MaxBodyBytes = 512 * 1024
	cfg.Limits.MaxConcurrent = 10
	cfg.Limits.RequestTimeout = 30 * time.Second
	cfg.Limits.RateLimit.Enabled = true
	cfg.Limits.RateLimit.RequestsPerMin = 300
	cfg.Limits.RateLimit.Burst = 30
	return cfg
}
