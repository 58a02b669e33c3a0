package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Enrich      EnrichConfig      `yaml:"enrich" mapstructure:"enrich"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Retry       RetryConfig       `yaml:"retry" mapstructure:"retry"`
	Circuit     CircuitConfig     `yaml:"circuit" mapstructure:"circuit"`
	RateLimit   RateLimitConfig   `yaml:"ratelimit" mapstructure:"ratelimit"`
	Navigation  NavigationConfig  `yaml:"navigation" mapstructure:"navigation"`
	Validation  ValidationConfig  `yaml:"validation" mapstructure:"validation"`
	Apollo      ApolloConfig      `yaml:"apollo" mapstructure:"apollo"`
	RocketReach RocketReachConfig `yaml:"rocketreach" mapstructure:"rocketreach"`
	Notion      NotionConfig      `yaml:"notion" mapstructure:"notion"`
	Batch       BatchConfig       `yaml:"batch" mapstructure:"batch"`
	Export      ExportConfig      `yaml:"export" mapstructure:"export"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Monitoring  MonitoringConfig  `yaml:"monitoring" mapstructure:"monitoring"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// EnrichConfig configures merging, scoring, and filtering of contacts.
type EnrichConfig struct {
	MinConfidence   float64            `yaml:"min_confidence" mapstructure:"min_confidence" validate:"gte=0,lte=1"`
	MaxResults      int                `yaml:"max_results" mapstructure:"max_results" validate:"gte=1"`
	CrossValidation bool               `yaml:"cross_validation" mapstructure:"cross_validation"`
	SourceWeights   map[string]float64 `yaml:"source_weights" mapstructure:"source_weights" validate:"dive,gte=0,lte=1"`
	TargetTitles    []string           `yaml:"target_titles" mapstructure:"target_titles" validate:"min=1"`
	ScoringFile     string             `yaml:"scoring_file" mapstructure:"scoring_file"`
}

// CacheConfig configures the enrichment result cache.
type CacheConfig struct {
	Dir      string `yaml:"dir" mapstructure:"dir"`
	TTLHours int    `yaml:"ttl_hours" mapstructure:"ttl_hours" validate:"gte=1"`
}

// TTL returns the cache TTL as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// StoreConfig configures the result store backend.
type StoreConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver" validate:"oneof=file sqlite"`
	Dir    string `yaml:"dir" mapstructure:"dir"`
	DSN    string `yaml:"dsn" mapstructure:"dsn"`
}

// RetryConfig configures per-source retries.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts" validate:"gte=1,lte=10"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms" validate:"gte=0"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms" validate:"gte=0"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier" validate:"gte=1"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction" validate:"gte=0,lte=1"`
}

// CircuitConfig configures per-source circuit breakers.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold" validate:"gte=1"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs" validate:"gte=1"`
}

// RateLimitConfig configures the shared outbound rate limiter.
type RateLimitConfig struct {
	RequestsPerWindow int `yaml:"requests_per_window" mapstructure:"requests_per_window" validate:"gte=1"`
	WindowSecs        int `yaml:"window_secs" mapstructure:"window_secs" validate:"gte=1"`
	Burst             int `yaml:"burst" mapstructure:"burst" validate:"gte=1"`
	MaxConcurrent     int `yaml:"max_concurrent" mapstructure:"max_concurrent" validate:"gte=1"`
}

// NavigationConfig configures the per-source navigation state machine.
type NavigationConfig struct {
	MaxAttempts          int    `yaml:"max_attempts" mapstructure:"max_attempts" validate:"gte=1"`
	TimeoutSecs          int    `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"gte=1"`
	RecoveryIntervalSecs int    `yaml:"recovery_interval_secs" mapstructure:"recovery_interval_secs" validate:"gte=0"`
	StateDir             string `yaml:"state_dir" mapstructure:"state_dir"`
	MaxRetries           int    `yaml:"max_retries" mapstructure:"max_retries" validate:"gte=0"`
	TargetRole           string `yaml:"target_role" mapstructure:"target_role"`
}

// ValidationConfig configures the validation service.
type ValidationConfig struct {
	PatternsFile string `yaml:"patterns_file" mapstructure:"patterns_file"`
}

// ApolloConfig holds Apollo API settings.
type ApolloConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// RocketReachConfig holds RocketReach API settings.
type RocketReachConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// NotionConfig holds Notion API credentials and the lead queue database.
type NotionConfig struct {
	Token  string `yaml:"token" mapstructure:"token"`
	LeadDB string `yaml:"lead_db" mapstructure:"lead_db"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent" validate:"gte=1,lte=50"`
}

// ExportConfig configures result exports.
type ExportConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures alert thresholds and the webhook alerts go to.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold" validate:"gte=0,lte=1"`
	MinSearches          int     `yaml:"min_searches" mapstructure:"min_searches" validate:"gte=0"`
	SourceErrorThreshold int     `yaml:"source_error_threshold" mapstructure:"source_error_threshold" validate:"gte=0"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs" validate:"gte=0"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultTargetTitles are the executive and finance titles searched for.
var DefaultTargetTitles = []string{
	"CEO",
	"Chief Executive Officer",
	"President",
	"CFO",
	"Chief Financial Officer",
	"Director of Finance",
	"Director of FP&A",
	"Head of Finance",
	"Finance Director",
	"VP of Finance",
	"Finance Lead",
}

// Load reads configuration from .env, file, and environment.
func Load() (*Config, error) {
	// A missing .env is expected outside local development.
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("apollo.key", "LEAD_APOLLO_KEY", "APOLLO_API_KEY")
	_ = v.BindEnv("rocketreach.key", "LEAD_ROCKETREACH_KEY", "ROCKETREACH_API_KEY")
	_ = v.BindEnv("notion.token", "LEAD_NOTION_TOKEN", "NOTION_TOKEN")
	_ = v.BindEnv("monitoring.webhook_url", "LEAD_MONITORING_WEBHOOK_URL", "ALERT_WEBHOOK_URL")

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("enrich.min_confidence", 0.7)
	v.SetDefault("enrich.max_results", 5)
	v.SetDefault("enrich.cross_validation", true)
	v.SetDefault("enrich.source_weights", map[string]float64{"apollo": 0.6, "rocketreach": 0.4})
	v.SetDefault("enrich.target_titles", DefaultTargetTitles)
	v.SetDefault("cache.dir", "data/cache")
	v.SetDefault("cache.ttl_hours", 24)
	v.SetDefault("store.driver", "file")
	v.SetDefault("store.dir", "data/results")
	v.SetDefault("store.dsn", "data/results.db")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 1000)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.0)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)
	v.SetDefault("ratelimit.requests_per_window", 100)
	v.SetDefault("ratelimit.window_secs", 60)
	v.SetDefault("ratelimit.burst", 10)
	v.SetDefault("ratelimit.max_concurrent", 10)
	v.SetDefault("navigation.max_attempts", 3)
	v.SetDefault("navigation.timeout_secs", 300)
	v.SetDefault("navigation.recovery_interval_secs", 5)
	v.SetDefault("navigation.state_dir", "data/navigation")
	v.SetDefault("navigation.max_retries", 1)
	v.SetDefault("navigation.target_role", "CFO")
	v.SetDefault("validation.patterns_file", "data/email_patterns.json")
	v.SetDefault("apollo.base_url", "https://api.apollo.io/v1")
	v.SetDefault("rocketreach.base_url", "https://api.rocketreach.co/v2")
	v.SetDefault("batch.max_concurrent", 3)
	v.SetDefault("export.dir", "exports")
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.min_searches", 5)
	v.SetDefault("monitoring.source_error_threshold", 20)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
	})
	return v
}

// Validate checks value ranges and the settings required by mode.
// Known modes: "enrich" (one-off and batch runs), "notion" (batch from
// the Notion queue), "serve", and "offline" (commands that only read the
// result store or cache).
func (c *Config) Validate(mode string) error {
	var problems []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return eris.Wrap(err, "config: validate")
		}
		for _, fe := range verrs {
			problems = append(problems, fmt.Sprintf("%s failed %s=%s", fieldPath(fe), fe.Tag(), fe.Param()))
		}
	}

	switch mode {
	case "offline":
	case "enrich":
		problems = append(problems, c.sourceProblems()...)
	case "notion":
		problems = append(problems, c.sourceProblems()...)
		if c.Notion.Token == "" {
			problems = append(problems, "notion.token is required")
		}
		if c.Notion.LeadDB == "" {
			problems = append(problems, "notion.lead_db is required")
		}
	case "serve":
		problems = append(problems, c.sourceProblems()...)
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) sourceProblems() []string {
	if c.Apollo.Key == "" && c.RocketReach.Key == "" {
		return []string{"apollo.key or rocketreach.key is required"}
	}
	return nil
}

// fieldPath converts a validator namespace (Config.enrich.min_confidence)
// into the yaml key users write (enrich.min_confidence).
func fieldPath(fe validator.FieldError) string {
	return strings.TrimPrefix(fe.Namespace(), "Config.")
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
