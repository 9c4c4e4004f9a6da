// Package config loads DomainOS runtime configuration: LLM provider
// credentials/defaults, the embedded store path, advisory rate limits, and
// automation engine tuning. Precedence: YAML file first, then environment
// variables override secrets and anything the
// operator wants to tweak without editing the file.
package config

// AnthropicPromptCacheConfig controls which parts of a request opt into
// Anthropic prompt caching.
type AnthropicPromptCacheConfig struct {
	Enabled       bool `yaml:"enabled"`
	CacheSystem   bool `yaml:"cache_system,omitempty"`
	CacheTools    bool `yaml:"cache_tools,omitempty"`
	CacheMessages bool `yaml:"cache_messages,omitempty"`
}

// AnthropicConfig configures the Anthropic provider adapter.
type AnthropicConfig struct {
	APIKey      string                     `yaml:"api_key"`
	BaseURL     string                     `yaml:"base_url,omitempty"`
	Model       string                     `yaml:"model,omitempty"`
	PromptCache AnthropicPromptCacheConfig `yaml:"prompt_cache,omitempty"`
	ExtraParams map[string]any             `yaml:"extra_params,omitempty"`
}

// OpenAIConfig configures the OpenAI-style provider adapter. Ollama reuses
// this shape with BaseURL pointed at a local server.
type OpenAIConfig struct {
	APIKey      string         `yaml:"api_key,omitempty"`
	BaseURL     string         `yaml:"base_url,omitempty"`
	Model       string         `yaml:"model,omitempty"`
	ExtraParams map[string]any `yaml:"extra_params,omitempty"`
	LogPayloads bool           `yaml:"log_payloads,omitempty"`
}

// ProvidersConfig holds every configured LLM back-end plus which one is the
// global default when a Domain doesn't override (provider, model).
type ProvidersConfig struct {
	Default   string          `yaml:"default"` // "anthropic" | "openai" | "ollama"
	Anthropic AnthropicConfig `yaml:"anthropic"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Ollama    OpenAIConfig    `yaml:"ollama"`
}

// StoreConfig configures the embedded sqlite store.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// AdvisoryConfig exposes the advisory rate-limit defaults as
// named, overridable constants.
type AdvisoryConfig struct {
	KHour            int `yaml:"k_hour"`
	KDay             int `yaml:"k_day"`
	DedupWindowHours int `yaml:"dedup_window_hours"`
}

// AutomationConfig tunes the scheduler tick and retention cleanup.
type AutomationConfig struct {
	TickIntervalSeconds  int `yaml:"tick_interval_seconds"`
	RunTimeoutSeconds    int `yaml:"run_timeout_seconds"`
	RetentionDays        int `yaml:"retention_days"`
	RetentionPerRun      int `yaml:"retention_per_automation"`
	StaleRunAfterMinutes int `yaml:"stale_run_after_minutes"`
}

// KafkaConfig configures the optional Kafka command-consumer transport
// (cmd/orchestratord) that lets automation events be dispatched over
// the wire instead of only from in-process callers. Brokers empty disables
// the transport entirely; cmd/domainosd never starts it.
type KafkaConfig struct {
	Brokers                string `yaml:"brokers,omitempty"`
	GroupID                string `yaml:"group_id,omitempty"`
	CommandsTopic          string `yaml:"commands_topic,omitempty"`
	ResponsesTopic         string `yaml:"responses_topic,omitempty"`
	WorkerCount            int    `yaml:"worker_count,omitempty"`
	WorkflowTimeoutSeconds int    `yaml:"workflow_timeout_seconds,omitempty"`
	DedupeRedisAddr        string `yaml:"dedupe_redis_addr,omitempty"`
}

// ObservabilityConfig controls logging level and OTel export.
type ObservabilityConfig struct {
	LogLevel     string `yaml:"log_level"`
	LogPath      string `yaml:"log_path,omitempty"`
	ServiceName  string `yaml:"service_name"`
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`
}

// PromptBudgetConfig exposes the token-budget constants.
type PromptBudgetConfig struct {
	BriefingTokenBudget int `yaml:"briefing_token_budget"`
	DigestInitialCap    int `yaml:"digest_initial_cap_chars"`
	DigestFloor         int `yaml:"digest_floor_chars"`
	DigestHardFloor     int `yaml:"digest_hard_floor_chars"`
}

// Config is the top-level DomainOS configuration document.
type Config struct {
	Providers     ProvidersConfig     `yaml:"providers"`
	Store         StoreConfig         `yaml:"store"`
	Advisory      AdvisoryConfig      `yaml:"advisory"`
	Automation    AutomationConfig    `yaml:"automation"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	Observability ObservabilityConfig `yaml:"observability"`
	PromptBudget  PromptBudgetConfig  `yaml:"prompt_budget"`
}

// Defaults returns a Config populated with the built-in defaults before
// YAML/env overlays are applied.
func Defaults() Config {
	return Config{
		Providers: ProvidersConfig{Default: "anthropic"},
		Store:     StoreConfig{Path: "domainos.db"},
		Advisory: AdvisoryConfig{
			KHour:            10,
			KDay:             30,
			DedupWindowHours: 24,
		},
		Automation: AutomationConfig{
			TickIntervalSeconds:  60,
			RunTimeoutSeconds:    120,
			RetentionDays:        30,
			RetentionPerRun:      50,
			StaleRunAfterMinutes: 30,
		},
		Kafka: KafkaConfig{
			GroupID:                "domainos-orchestrator",
			CommandsTopic:          "domainos.orchestrator.commands",
			ResponsesTopic:         "domainos.orchestrator.responses",
			WorkerCount:            4,
			WorkflowTimeoutSeconds: 600,
			DedupeRedisAddr:        "localhost:6379",
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			ServiceName: "domainos",
		},
		PromptBudget: PromptBudgetConfig{
			BriefingTokenBudget: 48000,
			DigestInitialCap:    6000,
			DigestFloor:         500,
			DigestHardFloor:     2000,
		},
	}
}
