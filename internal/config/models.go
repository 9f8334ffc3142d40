package config

import (
	"fmt"
	"time"

	"github.com/mikey/mail-triage/internal/classify"
	"github.com/mikey/mail-triage/internal/heuristics"
	"github.com/mikey/mail-triage/internal/triage"
)

// TriageConfig represents who the engine triages for and how
type TriageConfig struct {
	UserEmail       string
	VIPSenders      []string
	SalutationNames []string
	Workers         int
	Policy          triage.Policy
}

// ProfilesConfig represents the sender history store configuration
type ProfilesConfig struct {
	Type          string
	Path          string
	LockTimeout   time.Duration
	SQLitePath    string
	MySQLDSN      string
	FlushInterval time.Duration
}

// ClassifierConfig represents the optional AI classification step
type ClassifierConfig struct {
	Enabled      bool
	Provider     string
	MaxAI        int
	MaxBodyChars int
	Retry        classify.RetryPolicy
	Cache        VerdictCacheConfig
}

// VerdictCacheConfig controls the verdict cache of the daemon
type VerdictCacheConfig struct {
	Enabled          bool
	Type             string
	TTL              time.Duration
	CleanupFrequency time.Duration
}

// RedisConfig represents the Redis connection used by the verdict cache
type RedisConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	ModelName   string
	MaxTokens   int
	Temperature float32
}

// HeaderNames are the headers the content filter stamps
type HeaderNames struct {
	Decision string
	Score    string
	Reason   string
	Source   string
}

// ServerConfig represents the content filter daemon configuration
type ServerConfig struct {
	ListenAddress   string
	NextHop         string
	Hostname        string
	MaxMessageBytes int64
	MetricsAddress  string
	Headers         HeaderNames
}

// GetTriage returns the triage configuration with a validated policy
func (c *Config) GetTriage() (TriageConfig, error) {
	doc := struct {
		Policy triage.Policy `mapstructure:"triage"`
	}{Policy: triage.DefaultPolicy()}
	if err := c.v.Unmarshal(&doc); err != nil {
		return TriageConfig{}, fmt.Errorf("failed to decode triage policy: %w", err)
	}
	policy := doc.Policy
	if err := policy.Validate(); err != nil {
		return TriageConfig{}, err
	}
	return TriageConfig{
		UserEmail:       c.GetString("triage.user_email"),
		VIPSenders:      c.GetStringSlice("triage.vip_senders"),
		SalutationNames: c.GetStringSlice("triage.salutation_names"),
		Workers:         c.GetInt("triage.workers"),
		Policy:          policy,
	}, nil
}

// GetWeights returns the scoring weights, starting from the defaults.
// Whole-document decoding keeps values set through Set merged with the file.
func (c *Config) GetWeights() (heuristics.Weights, error) {
	doc := struct {
		Weights heuristics.Weights `mapstructure:"weights"`
	}{Weights: heuristics.DefaultWeights()}
	if err := c.v.Unmarshal(&doc); err != nil {
		return heuristics.Weights{}, fmt.Errorf("failed to decode weights: %w", err)
	}
	w := doc.Weights
	if err := w.Validate(); err != nil {
		return heuristics.Weights{}, err
	}
	return w, nil
}

// GetProfiles returns the sender history store configuration
func (c *Config) GetProfiles() (ProfilesConfig, error) {
	lockTimeout, err := c.GetDuration("profiles.lock_timeout")
	if err != nil {
		return ProfilesConfig{}, fmt.Errorf("invalid profiles.lock_timeout: %w", err)
	}
	flushInterval, err := c.GetDuration("profiles.flush_interval")
	if err != nil {
		return ProfilesConfig{}, fmt.Errorf("invalid profiles.flush_interval: %w", err)
	}
	if flushInterval <= 0 {
		return ProfilesConfig{}, fmt.Errorf("profiles.flush_interval must be positive, got %s", flushInterval)
	}
	return ProfilesConfig{
		Type:          c.GetString("profiles.type"),
		Path:          c.GetString("profiles.path"),
		LockTimeout:   lockTimeout,
		SQLitePath:    c.GetString("profiles.sqlite_path"),
		MySQLDSN:      c.GetString("profiles.mysql_dsn"),
		FlushInterval: flushInterval,
	}, nil
}

// GetClassifier returns the AI classification configuration. The confidence
// bar lives in the triage policy so both layers agree on it.
func (c *Config) GetClassifier() (ClassifierConfig, error) {
	retry := classify.DefaultRetryPolicy()
	if err := c.v.UnmarshalKey("classifier.retry", &retry); err != nil {
		return ClassifierConfig{}, fmt.Errorf("failed to decode classifier.retry: %w", err)
	}
	ttl, err := c.GetDuration("classifier.cache.ttl")
	if err != nil {
		return ClassifierConfig{}, fmt.Errorf("invalid classifier.cache.ttl: %w", err)
	}
	cleanup, err := c.GetDuration("classifier.cache.cleanup_frequency")
	if err != nil {
		return ClassifierConfig{}, fmt.Errorf("invalid classifier.cache.cleanup_frequency: %w", err)
	}
	return ClassifierConfig{
		Enabled:      c.GetBool("classifier.enabled"),
		Provider:     c.GetString("classifier.provider"),
		MaxAI:        c.GetInt("classifier.max_ai"),
		MaxBodyChars: c.GetInt("classifier.max_body_chars"),
		Retry:        retry,
		Cache: VerdictCacheConfig{
			Enabled:          c.GetBool("classifier.cache.enabled"),
			Type:             c.GetString("classifier.cache.type"),
			TTL:              ttl,
			CleanupFrequency: cleanup,
		},
	}, nil
}

// GetRedis returns the Redis configuration
func (c *Config) GetRedis() RedisConfig {
	return RedisConfig{
		Address:   c.GetString("redis.address"),
		Password:  c.GetString("redis.password"),
		DB:        c.GetInt("redis.db"),
		KeyPrefix: c.GetString("redis.key_prefix"),
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		BaseURL:     c.GetString("openai.base_url"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
	}
}

// GetServer returns the content filter daemon configuration
func (c *Config) GetServer() ServerConfig {
	return ServerConfig{
		ListenAddress:   c.GetString("server.listen_address"),
		NextHop:         c.GetString("server.next_hop"),
		Hostname:        c.GetString("server.hostname"),
		MaxMessageBytes: c.v.GetInt64("server.max_message_bytes"),
		MetricsAddress:  c.GetString("server.metrics_address"),
		Headers: HeaderNames{
			Decision: c.GetString("server.headers.decision"),
			Score:    c.GetString("server.headers.score"),
			Reason:   c.GetString("server.headers.reason"),
			Source:   c.GetString("server.headers.source"),
		},
	}
}
