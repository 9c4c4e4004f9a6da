package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, "anthropic", cfg.Providers.Default)
	require.Equal(t, 10, cfg.Advisory.KHour)
	require.Equal(t, 30, cfg.Advisory.KDay)
	require.Equal(t, 48000, cfg.PromptBudget.BriefingTokenBudget)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
providers:
  default: openai
  openai:
    model: gpt-4o
advisory:
  k_hour: 5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "openai", cfg.Providers.Default)
	require.Equal(t, "gpt-4o", cfg.Providers.OpenAI.Model)
	require.Equal(t, 5, cfg.Advisory.KHour)
	require.Equal(t, 30, cfg.Advisory.KDay, "unset fields keep defaults")
}

func TestLoad_DefaultsKafkaTransportDisabled(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Empty(t, cfg.Kafka.Brokers, "no brokers configured by default; orchestratord refuses to start")
	require.Equal(t, "domainos-orchestrator", cfg.Kafka.GroupID)
	require.Equal(t, 4, cfg.Kafka.WorkerCount)
}

func TestLoad_KafkaEnvOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_WORKER_COUNT", "8")
	t.Setenv("DEDUPE_REDIS_ADDR", "redis.internal:6380")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, "broker1:9092,broker2:9092", cfg.Kafka.Brokers)
	require.Equal(t, 8, cfg.Kafka.WorkerCount)
	require.Equal(t, "redis.internal:6380", cfg.Kafka.DedupeRedisAddr)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "providers:\n  anthropic:\n    api_key: from-yaml\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("ANTHROPIC_API_KEY", "from-env")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.Providers.Anthropic.APIKey)
}
