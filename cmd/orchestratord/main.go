//go:build enterprise
// +build enterprise

// Command orchestratord is DomainOS's optional Kafka transport for the
// automation engine: it subscribes to a commands topic,
// dispatches each CommandEnvelope's Workflow/Attrs as an automation event
// via internal/orchestrator.EventRunner, and publishes the result (or a DLQ
// entry on permanent failure) back to a responses topic
// (env-overridable config -> Redis dedupe store -> Kafka producer ->
// admin preflight -> consumer loop), with automation.Engine as the single
// downstream collaborator. Build with -tags enterprise; the default
// domainosd build never links Kafka or Redis.
package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/quiet-coder-io/domainos/internal/automation"
	"github.com/quiet-coder-io/domainos/internal/config"
	"github.com/quiet-coder-io/domainos/internal/llm/promptrunner"
	"github.com/quiet-coder-io/domainos/internal/llm/providers"
	"github.com/quiet-coder-io/domainos/internal/observability"
	"github.com/quiet-coder-io/domainos/internal/orchestrator"
	"github.com/quiet-coder-io/domainos/internal/store"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("orchestratord")
	}
}

func run() error {
	cfg, err := config.Load("domainos.yaml")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	observability.InitLogger(cfg.Observability.LogPath, cfg.Observability.LogLevel)

	baseCtx := context.Background()

	brokers := make([]string, 0)
	for _, b := range strings.Split(cfg.Kafka.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return fmt.Errorf("no Kafka brokers configured (set kafka.brokers or KAFKA_BROKERS)")
	}

	workflowTimeout := time.Duration(cfg.Kafka.WorkflowTimeoutSeconds) * time.Second
	dedupeTTL := workflowTimeout

	log.Info().
		Strs("brokers", brokers).
		Str("groupID", cfg.Kafka.GroupID).
		Str("commandsTopic", cfg.Kafka.CommandsTopic).
		Str("responsesTopic", cfg.Kafka.ResponsesTopic).
		Int("workers", cfg.Kafka.WorkerCount).
		Dur("workflowTimeout", workflowTimeout).
		Msg("starting orchestratord Kafka transport")

	dedupe, err := orchestrator.NewRedisDedupeStore(cfg.Kafka.DedupeRedisAddr)
	if err != nil {
		return fmt.Errorf("init redis dedupe store: %w", err)
	}
	defer func() {
		if cerr := dedupe.Close(); cerr != nil {
			log.Error().Err(cerr).Msg("error closing redis client")
		}
	}()

	producer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Balancer: &kafka.LeastBytes{},
	})
	defer func() {
		if err := producer.Close(); err != nil {
			log.Error().Err(err).Msg("error closing kafka producer")
		}
	}()

	shutdown, err := observability.InitOTel(baseCtx, cfg.Observability)
	if err != nil {
		log.Warn().Err(err).Msg("otel init failed, continuing without observability")
		shutdown = nil
	}
	if shutdown != nil {
		defer func() { _ = shutdown(context.Background()) }()
	}

	httpClient := observability.NewHTTPClient(nil)

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	provider, err := providers.Build(cfg, cfg.Providers.Default, httpClient)
	if err != nil {
		return fmt.Errorf("build default llm provider: %w", err)
	}

	automationEngine := &automation.Engine{
		Store:  st,
		Runner: promptrunner.Runner{Provider: provider},
		Dispatcher: automation.NewRegistry(map[string]automation.ActionHandler{
			automation.ActionNotification: automation.ActionHandlerFunc(logNotification),
			automation.ActionCreateGTask:  automation.ActionHandlerFunc(stubExternalAction("create_gtask")),
			automation.ActionDraftGmail:   automation.ActionHandlerFunc(stubExternalAction("draft_gmail")),
		}),
		Config: cfg.Automation,
	}
	runner := orchestrator.EventRunner{Handler: automationEngine}

	ctx, cancel := signal.NotifyContext(baseCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ctxAdmin, cancelAdmin := context.WithTimeout(baseCtx, 5*time.Second)
	defer cancelAdmin()
	if err := orchestrator.CheckBrokers(ctxAdmin, brokers, 3*time.Second); err != nil {
		return fmt.Errorf("reach kafka brokers: %w", err)
	}

	cmdCfg := kafka.TopicConfig{Topic: cfg.Kafka.CommandsTopic, NumPartitions: 1, ReplicationFactor: 1}
	respCfg := kafka.TopicConfig{Topic: cfg.Kafka.ResponsesTopic, NumPartitions: 1, ReplicationFactor: 1}
	dlqCfg := kafka.TopicConfig{Topic: cfg.Kafka.ResponsesTopic + ".dlq", NumPartitions: 1, ReplicationFactor: 1}
	if err := orchestrator.EnsureTopics(ctxAdmin, brokers, []kafka.TopicConfig{cmdCfg, respCfg, dlqCfg}); err != nil {
		return fmt.Errorf("ensure kafka topics: %w", err)
	}

	if err := orchestrator.StartKafkaConsumer(
		ctx,
		brokers,
		cfg.Kafka.GroupID,
		cfg.Kafka.CommandsTopic,
		nil,
		producer,
		runner,
		dedupe,
		cfg.Kafka.WorkerCount,
		cfg.Kafka.ResponsesTopic,
		dedupeTTL,
		workflowTimeout,
	); err != nil {
		return fmt.Errorf("kafka consumer terminated: %w", err)
	}

	log.Info().Msg("orchestratord stopped")
	return nil
}

func logNotification(ctx context.Context, actionConfig, llmResponse string) (string, string, error) {
	log.Info().Str("config", actionConfig).Msg("automation notification fired")
	return llmResponse, "", nil
}

// stubExternalAction mirrors cmd/domainosd's stub: Gmail/GTasks are external
// collaborators not wired here either.
func stubExternalAction(actionType string) automation.ActionHandlerFunc {
	return func(ctx context.Context, actionConfig, llmResponse string) (string, string, error) {
		return fmt.Sprintf("%s not connected; drafted content: %s", actionType, llmResponse), "", nil
	}
}
