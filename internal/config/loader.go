package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"
)

// Load reads filename (if it exists) into Defaults(), then applies
// environment-variable overrides for secrets and operator tuning.
func Load(filename string) (Config, error) {
	cfg := Defaults()

	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("unmarshal config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); v != "" {
		cfg.Providers.Anthropic.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("ANTHROPIC_MODEL")); v != "" {
		cfg.Providers.Anthropic.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("ANTHROPIC_BASE_URL")); v != "" {
		cfg.Providers.Anthropic.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); v != "" {
		cfg.Providers.OpenAI.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_MODEL")); v != "" {
		cfg.Providers.OpenAI.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")); v != "" {
		cfg.Providers.OpenAI.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("OLLAMA_BASE_URL")); v != "" {
		cfg.Providers.Ollama.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("OLLAMA_MODEL")); v != "" {
		cfg.Providers.Ollama.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("DOMAINOS_DEFAULT_PROVIDER")); v != "" {
		cfg.Providers.Default = v
	}
	if v := strings.TrimSpace(os.Getenv("DOMAINOS_STORE_PATH")); v != "" {
		cfg.Store.Path = v
	}
	if v := intFromEnv("DOMAINOS_ADVISORY_K_HOUR", 0); v != 0 {
		cfg.Advisory.KHour = v
	}
	if v := intFromEnv("DOMAINOS_ADVISORY_K_DAY", 0); v != 0 {
		cfg.Advisory.KDay = v
	}
	if v := strings.TrimSpace(os.Getenv("DOMAINOS_LOG_LEVEL")); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("DOMAINOS_LOG_PATH")); v != "" {
		cfg.Observability.LogPath = v
	}
	if v := strings.TrimSpace(os.Getenv("DOMAINOS_OTLP_ENDPOINT")); v != "" {
		cfg.Observability.OTLPEndpoint = v
	}
	if v := strings.TrimSpace(firstNonEmptyEnv("KAFKA_BROKERS", "KAFKA_BOOTSTRAP_SERVERS")); v != "" {
		cfg.Kafka.Brokers = v
	}
	if v := strings.TrimSpace(os.Getenv("KAFKA_GROUP_ID")); v != "" {
		cfg.Kafka.GroupID = v
	}
	if v := strings.TrimSpace(firstNonEmptyEnv("KAFKA_COMMANDS_TOPIC", "KAFKA_COMMAND_TOPIC")); v != "" {
		cfg.Kafka.CommandsTopic = v
	}
	if v := strings.TrimSpace(firstNonEmptyEnv("KAFKA_RESPONSES_TOPIC", "KAFKA_RESPONSE_TOPIC")); v != "" {
		cfg.Kafka.ResponsesTopic = v
	}
	if v := intFromEnv("KAFKA_WORKER_COUNT", 0); v != 0 {
		cfg.Kafka.WorkerCount = v
	}
	if v := intFromEnv("DOMAINOS_WORKFLOW_TIMEOUT_SECONDS", 0); v != 0 {
		cfg.Kafka.WorkflowTimeoutSeconds = v
	}
	if v := strings.TrimSpace(os.Getenv("DEDUPE_REDIS_ADDR")); v != "" {
		cfg.Kafka.DedupeRedisAddr = v
	}
}

func firstNonEmptyEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
