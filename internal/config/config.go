package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ignite/coach-nudge/internal/scoring"
)

// Config holds all configuration for the nudge engine.
type Config struct {
	Server          ServerConfig          `yaml:"server"`
	Database        DatabaseConfig        `yaml:"database"`
	Redis           RedisConfig           `yaml:"redis"`
	Scoring         scoring.Policy        `yaml:"scoring"`
	Scheduler       SchedulerConfig       `yaml:"scheduler"`
	Dispatcher      DispatcherConfig      `yaml:"dispatcher"`
	TrainerDefaults TrainerDefaultsConfig `yaml:"trainer_defaults"`
	Templates       []TemplateConfig      `yaml:"templates" validate:"dive"`
	GHL             GHLConfig             `yaml:"ghl"`
	SES             SESConfig             `yaml:"ses"`
	AI              AIConfig              `yaml:"ai"`
	Reports         ReportsConfig         `yaml:"reports"`
	Logging         LoggingConfig         `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port" validate:"min=1,max=65535"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds the Postgres connection settings
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_seconds"`
	QueryTimeout    int    `yaml:"query_timeout_seconds"`
}

// Timeout returns the per-query timeout
func (c DatabaseConfig) Timeout() time.Duration {
	return time.Duration(c.QueryTimeout) * time.Second
}

// RedisConfig holds the Redis settings used for distributed run locks.
// An empty URL falls back to Postgres advisory locks.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// SchedulerConfig controls the periodic scoring run
type SchedulerConfig struct {
	IntervalMinutes   int `yaml:"interval_minutes" validate:"min=1"`
	SendOffsetMinutes int `yaml:"send_offset_minutes" validate:"min=0"`
	LockTTLSeconds    int `yaml:"lock_ttl_seconds"`
}

// Interval returns the scoring interval as a duration
func (c SchedulerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// SendOffset returns the delay between scheduling and sending a nudge
func (c SchedulerConfig) SendOffset() time.Duration {
	return time.Duration(c.SendOffsetMinutes) * time.Minute
}

// LockTTL returns the distributed lock TTL
func (c SchedulerConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// DispatcherConfig controls the periodic send pass
type DispatcherConfig struct {
	IntervalSeconds    int `yaml:"interval_seconds" validate:"min=1"`
	BatchSize          int `yaml:"batch_size" validate:"min=1"`
	SendTimeoutSeconds int `yaml:"send_timeout_seconds"`
}

// Interval returns the dispatch interval as a duration
func (c DispatcherConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// SendTimeout returns the per-message delivery timeout
func (c DispatcherConfig) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutSeconds) * time.Second
}

// TrainerDefaultsConfig applies to trainers without a settings row
type TrainerDefaultsConfig struct {
	Enabled          bool   `yaml:"enabled"`
	DailyLimit       int    `yaml:"daily_limit" validate:"min=0"`
	MinRiskThreshold int    `yaml:"min_risk_threshold" validate:"min=0,max=100"`
	Timezone         string `yaml:"timezone"`
	QuietHoursStart  int    `yaml:"quiet_hours_start" validate:"min=0,max=23"`
	QuietHoursEnd    int    `yaml:"quiet_hours_end" validate:"min=0,max=23"`
	Channel          string `yaml:"channel" validate:"omitempty,oneof=sms email"`
}

// TemplateConfig overrides a built-in nudge template
type TemplateConfig struct {
	ID         string `yaml:"id" validate:"required"`
	Category   string `yaml:"category" validate:"omitempty,oneof=check_in booking_reminder motivation"`
	Body       string `yaml:"body" validate:"required"`
	MaxPerWeek int    `yaml:"max_per_week" validate:"min=0"`
}

// GHLConfig holds GoHighLevel (LeadConnector) API settings for SMS delivery
type GHLConfig struct {
	Enabled        bool   `yaml:"enabled"`
	BaseURL        string `yaml:"base_url"`
	APIVersion     string `yaml:"api_version"`
	LocationID     string `yaml:"location_id"`
	APIKey         string `yaml:"api_key"` // private integration token
	ClientID       string `yaml:"client_id"`
	ClientSecret   string `yaml:"client_secret"`
	RefreshToken   string `yaml:"refresh_token"`
	TokenURL       string `yaml:"token_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

// Timeout returns the configured timeout as a duration
func (c GHLConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// UsesOAuth reports whether refresh-token credentials are configured.
func (c GHLConfig) UsesOAuth() bool {
	return c.ClientID != "" && c.RefreshToken != ""
}

// SESConfig holds AWS SES settings for email nudges
type SESConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	FromEmail string `yaml:"from_email" validate:"omitempty,email"`
	FromName  string `yaml:"from_name"`
	Subject   string `yaml:"subject"`
}

// AIConfig holds the text-generation settings for message drafts
type AIConfig struct {
	Enabled            bool    `yaml:"enabled"`
	Provider           string  `yaml:"provider" validate:"omitempty,oneof=gateway bedrock"`
	GatewayURL         string  `yaml:"gateway_url"`
	APIKey             string  `yaml:"api_key"`
	Model              string  `yaml:"model"`
	BedrockModelID     string  `yaml:"bedrock_model_id"`
	Region             string  `yaml:"region"`
	MaxTokens          int     `yaml:"max_tokens"`
	Temperature        float32 `yaml:"temperature"`
	TimeoutSeconds     int     `yaml:"timeout_seconds"`
	FallbackToTemplate bool    `yaml:"fallback_to_template"`
}

// Timeout returns the configured timeout as a duration
func (c AIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ReportsConfig controls where run reports are archived
type ReportsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Region        string `yaml:"region"`
	DynamoDBTable string `yaml:"dynamodb_table"`
	S3Bucket      string `yaml:"s3_bucket"`
	S3Prefix      string `yaml:"s3_prefix"`
	RetentionDays int    `yaml:"retention_days"`
}

// LoggingConfig configures the structured logger
type LoggingConfig struct {
	Level     string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	File      string `yaml:"file"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Redact reports whether PII redaction is on (default true).
func (c LoggingConfig) Redact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Scoring is seeded before decoding so an explicit 0 in YAML disables a term.
	cfg := Config{Scoring: scoring.DefaultPolicy()}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 300
	}
	if cfg.Database.QueryTimeout == 0 {
		cfg.Database.QueryTimeout = 30
	}
	if cfg.Scheduler.IntervalMinutes == 0 {
		cfg.Scheduler.IntervalMinutes = 24 * 60
	}
	if cfg.Scheduler.SendOffsetMinutes == 0 {
		cfg.Scheduler.SendOffsetMinutes = 120
	}
	if cfg.Scheduler.LockTTLSeconds == 0 {
		cfg.Scheduler.LockTTLSeconds = 600
	}
	if cfg.Dispatcher.IntervalSeconds == 0 {
		cfg.Dispatcher.IntervalSeconds = 300
	}
	if cfg.Dispatcher.BatchSize == 0 {
		cfg.Dispatcher.BatchSize = 200
	}
	if cfg.Dispatcher.SendTimeoutSeconds == 0 {
		cfg.Dispatcher.SendTimeoutSeconds = 15
	}
	if cfg.TrainerDefaults.DailyLimit == 0 {
		cfg.TrainerDefaults.DailyLimit = 10
	}
	if cfg.TrainerDefaults.Timezone == "" {
		cfg.TrainerDefaults.Timezone = "UTC"
	}
	if cfg.TrainerDefaults.Channel == "" {
		cfg.TrainerDefaults.Channel = "sms"
	}
	if cfg.GHL.BaseURL == "" {
		cfg.GHL.BaseURL = "https://services.leadconnectorhq.com"
	}
	if cfg.GHL.APIVersion == "" {
		cfg.GHL.APIVersion = "2021-07-28"
	}
	if cfg.GHL.TokenURL == "" {
		cfg.GHL.TokenURL = "https://services.leadconnectorhq.com/oauth/token"
	}
	if cfg.GHL.TimeoutSeconds == 0 {
		cfg.GHL.TimeoutSeconds = 15
	}
	if cfg.GHL.MaxRetries == 0 {
		cfg.GHL.MaxRetries = 2
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-east-1"
	}
	if cfg.SES.Subject == "" {
		cfg.SES.Subject = "Checking in"
	}
	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "gateway"
	}
	if cfg.AI.Model == "" {
		cfg.AI.Model = "google/gemini-2.5-flash"
	}
	if cfg.AI.BedrockModelID == "" {
		cfg.AI.BedrockModelID = "anthropic.claude-3-haiku-20240307-v1:0"
	}
	if cfg.AI.Region == "" {
		cfg.AI.Region = "us-east-1"
	}
	if cfg.AI.MaxTokens == 0 {
		cfg.AI.MaxTokens = 300
	}
	if cfg.AI.Temperature == 0 {
		cfg.AI.Temperature = 0.7
	}
	if cfg.AI.TimeoutSeconds == 0 {
		cfg.AI.TimeoutSeconds = 30
	}
	if cfg.Reports.Region == "" {
		cfg.Reports.Region = "us-east-1"
	}
	if cfg.Reports.S3Prefix == "" {
		cfg.Reports.S3Prefix = "nudge-runs/"
	}
	if cfg.Reports.RetentionDays == 0 {
		cfg.Reports.RetentionDays = 90
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// Validate checks struct tags and cross-field rules.
func (cfg *Config) Validate() error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.GHL.Enabled && cfg.GHL.LocationID == "" {
		return fmt.Errorf("invalid config: ghl.location_id is required when ghl is enabled")
	}
	if cfg.GHL.Enabled && cfg.GHL.APIKey == "" && !cfg.GHL.UsesOAuth() {
		return fmt.Errorf("invalid config: ghl needs api_key or client_id+refresh_token")
	}
	if cfg.SES.Enabled && cfg.SES.FromEmail == "" {
		return fmt.Errorf("invalid config: ses.from_email is required when ses is enabled")
	}
	if cfg.AI.Enabled && cfg.AI.Provider == "gateway" && (cfg.AI.GatewayURL == "" || cfg.AI.APIKey == "") {
		return fmt.Errorf("invalid config: ai gateway needs gateway_url and api_key")
	}
	if cfg.Reports.Enabled && cfg.Reports.DynamoDBTable == "" && cfg.Reports.S3Bucket == "" {
		return fmt.Errorf("invalid config: reports need a dynamodb_table or s3_bucket")
	}
	if _, err := time.LoadLocation(cfg.TrainerDefaults.Timezone); err != nil {
		return fmt.Errorf("invalid config: trainer_defaults.timezone: %w", err)
	}
	return nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars, so secrets
// can live in .env locally and in real env vars when deployed.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("GHL_API_KEY"); v != "" {
		cfg.GHL.APIKey = v
	}
	if v := os.Getenv("GHL_LOCATION_ID"); v != "" {
		cfg.GHL.LocationID = v
	}
	if v := os.Getenv("GHL_CLIENT_ID"); v != "" {
		cfg.GHL.ClientID = v
	}
	if v := os.Getenv("GHL_CLIENT_SECRET"); v != "" {
		cfg.GHL.ClientSecret = v
	}
	if v := os.Getenv("GHL_REFRESH_TOKEN"); v != "" {
		cfg.GHL.RefreshToken = v
	}
	if v := os.Getenv("AI_GATEWAY_URL"); v != "" {
		cfg.AI.GatewayURL = v
	}
	if v := os.Getenv("AI_GATEWAY_API_KEY"); v != "" {
		cfg.AI.APIKey = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.AI.Region = v
		cfg.Reports.Region = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
