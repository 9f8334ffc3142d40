package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mikey/mail-triage/internal/heuristics"
	"github.com/mikey/mail-triage/internal/triage"
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance. An explicit path takes
// precedence over the search path.
func New(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/mail-triage/")
		v.AddConfigPath("$HOME/.mail-triage")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("MAIL_TRIAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	// Weights and thresholds are registered key by key so that environment
	// variables such as MAIL_TRIAGE_WEIGHTS_TO_ME reach Unmarshal
	setStructDefaults(v, "weights", heuristics.DefaultWeights())
	setStructDefaults(v, "triage", triage.DefaultPolicy())

	// Triage defaults
	v.SetDefault("triage.user_email", "")
	v.SetDefault("triage.vip_senders", []string{})
	v.SetDefault("triage.salutation_names", []string{})
	v.SetDefault("triage.workers", 8)
	v.SetDefault("triage.max_body_chars", 4000)

	// Sender history defaults
	v.SetDefault("profiles.type", "file")
	v.SetDefault("profiles.path", "data/sender_profiles.json")
	v.SetDefault("profiles.lock_timeout", "10s")
	v.SetDefault("profiles.sqlite_path", "data/sender_profiles.db")
	v.SetDefault("profiles.mysql_dsn", "user:password@tcp(localhost:3306)/mail_triage")
	v.SetDefault("profiles.flush_interval", "1m")

	// Classifier defaults
	v.SetDefault("classifier.enabled", false)
	v.SetDefault("classifier.provider", "openai")
	v.SetDefault("classifier.max_ai", 50)
	v.SetDefault("classifier.max_body_chars", 4000)
	v.SetDefault("classifier.retry.max_attempts", 3)
	v.SetDefault("classifier.retry.initial_backoff", "1s")
	v.SetDefault("classifier.retry.max_backoff", "30s")
	v.SetDefault("classifier.cache.enabled", true)
	v.SetDefault("classifier.cache.type", "memory")
	v.SetDefault("classifier.cache.ttl", "24h")
	v.SetDefault("classifier.cache.cleanup_frequency", "1h")

	// Redis defaults, used by the redis verdict cache
	v.SetDefault("redis.address", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "mail-triage:verdict:")

	// Bedrock defaults
	v.SetDefault("bedrock.region", "us-east-1")
	v.SetDefault("bedrock.model_id", "anthropic.claude-3-haiku-20240307-v1:0")
	v.SetDefault("bedrock.max_tokens", 400)
	v.SetDefault("bedrock.temperature", 0.0)
	v.SetDefault("bedrock.top_p", 1.0)

	// Gemini defaults
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model_name", "gemini-1.5-flash")
	v.SetDefault("gemini.max_tokens", 400)
	v.SetDefault("gemini.temperature", 0.0)
	v.SetDefault("gemini.top_p", 1.0)

	// OpenAI defaults
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.model_name", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 400)
	v.SetDefault("openai.temperature", 0.0)

	// Server defaults
	v.SetDefault("server.filter_type", "smtp")
	v.SetDefault("server.listen_address", "127.0.0.1:10025")
	v.SetDefault("server.next_hop", "127.0.0.1:10026")
	v.SetDefault("server.hostname", "localhost")
	v.SetDefault("server.max_message_bytes", 10*1024*1024)
	v.SetDefault("server.metrics_address", "127.0.0.1:9125")
	v.SetDefault("server.headers.decision", "X-Triage-Decision")
	v.SetDefault("server.headers.score", "X-Triage-Score")
	v.SetDefault("server.headers.reason", "X-Triage-Reason")
	v.SetDefault("server.headers.source", "X-Triage-Source")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	return time.ParseDuration(c.GetString(key))
}

// Set overrides a value, used for command line flags
func (c *Config) Set(key string, value interface{}) {
	c.v.Set(key, value)
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}

// setStructDefaults registers every mapstructure-tagged field of value as a
// default under prefix
func setStructDefaults(v *viper.Viper, prefix string, value any) {
	rv := reflect.ValueOf(value)
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		tag := rt.Field(i).Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		v.SetDefault(prefix+"."+tag, rv.Field(i).Interface())
	}
}
