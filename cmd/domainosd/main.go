// Command domainosd is the DomainOS host process: it loads configuration,
// opens the embedded store, wires a provider-agnostic chat turn service, and
// drives the automation tick and mission runner in the background
// (config -> logger -> otel -> http client -> engine -> ops endpoints).
// The chat-HTTP intake surface and any CLI live in separate processes and
// are not implemented here; only ops endpoints are exposed.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quiet-coder-io/domainos/internal/advisory"
	"github.com/quiet-coder-io/domainos/internal/agentrt"
	"github.com/quiet-coder-io/domainos/internal/automation"
	"github.com/quiet-coder-io/domainos/internal/config"
	"github.com/quiet-coder-io/domainos/internal/domainstatus"
	"github.com/quiet-coder-io/domainos/internal/kb"
	"github.com/quiet-coder-io/domainos/internal/llm/promptrunner"
	"github.com/quiet-coder-io/domainos/internal/llm/providers"
	"github.com/quiet-coder-io/domainos/internal/mission"
	"github.com/quiet-coder-io/domainos/internal/observability"
	"github.com/quiet-coder-io/domainos/internal/store"
	"github.com/quiet-coder-io/domainos/internal/tools"
	"github.com/quiet-coder-io/domainos/internal/tools/bridge"
	"github.com/quiet-coder-io/domainos/internal/tools/multitool"
	"github.com/quiet-coder-io/domainos/internal/tools/patchtool"
	"github.com/quiet-coder-io/domainos/internal/turn"
)

func main() {
	cfg, err := config.Load("domainos.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.Observability.LogPath, cfg.Observability.LogLevel)

	shutdown, err := observability.InitOTel(context.Background(), cfg.Observability)
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
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	provider, err := providers.Build(cfg, cfg.Providers.Default, httpClient)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build default llm provider")
	}

	// The name-dispatched tool registry (patchtool, multitool) bridges into
	// the tool-use loop's Others map rather than being called directly, so
	// every tool call still passes through the loop's ROWYS guard and size
	// limits.
	rawTools := tools.NewRegistry()
	rawTools.Register(patchtool.New("."))
	rawTools.Register(multitool.NewParallel(rawTools))

	turnSvc := &turn.Service{
		Store:    st,
		Loop:     agentrt.NewLoop(provider, agentrt.NewCapabilityCache(), &agentrt.Registry{Others: bridge.Executors(rawTools)}),
		KBApply:  &kb.Applier{Store: st},
		Advisory: advisory.NewRepository(st, cfg.Advisory),
		Status:   domainstatus.NewBuilder(st),
		Tools:    bridge.Schemas(rawTools),
	}
	_ = turnSvc // exercised by internal/turn's own tests and by any future intake adapter.

	runner := promptrunner.Runner{Provider: provider}

	automationEngine := &automation.Engine{
		Store:  st,
		Runner: runner,
		Dispatcher: automation.NewRegistry(map[string]automation.ActionHandler{
			automation.ActionNotification: automation.ActionHandlerFunc(logNotification),
			automation.ActionCreateGTask:  automation.ActionHandlerFunc(stubExternalAction("create_gtask")),
			automation.ActionDraftGmail:   automation.ActionHandlerFunc(stubExternalAction("draft_gmail")),
		}),
		Config: cfg.Automation,
	}

	missionRegistry := mission.NewRegistry()
	missionRegistry.Register(mission.NewPortfolioBriefingDefinition(st, cfg.PromptBudget.BriefingTokenBudget))
	missionRunner := &mission.Runner{
		Store:    st,
		Registry: missionRegistry,
		Stream:   runner.Stream,
	}
	_ = missionRunner // wired but not invoked in this process: nothing here calls Start or Decide.

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runAutomationTicks(ctx, automationEngine, cfg.Automation)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := st.DB().PingContext(r.Context()); err != nil {
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintln(w, "ready")
	})

	srv := &http.Server{Addr: ":8090", Handler: mux}
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("domainosd ops endpoints listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("ops server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}

// runAutomationTicks drives Engine.Tick once per TickIntervalSeconds, plus a
// daily RetentionCleanup pass, until ctx is canceled.
func runAutomationTicks(ctx context.Context, eng *automation.Engine, cfg config.AutomationConfig) {
	interval := time.Duration(cfg.TickIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	retention := time.NewTicker(24 * time.Hour)
	defer retention.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := eng.Tick(ctx); err != nil {
				log.Error().Err(err).Msg("automation tick failed")
			}
			if _, err := eng.CleanupStaleRuns(ctx); err != nil {
				log.Error().Err(err).Msg("automation stale-run cleanup failed")
			}
		case <-retention.C:
			if _, err := eng.RetentionCleanup(ctx); err != nil {
				log.Error().Err(err).Msg("automation retention cleanup failed")
			}
		}
	}
}

func logNotification(ctx context.Context, actionConfig, llmResponse string) (string, string, error) {
	log.Info().Str("config", actionConfig).Msg("automation notification fired")
	return llmResponse, "", nil
}

// stubExternalAction reports actionType handlers not yet backed by a live
// Gmail/GTasks collaborator (both live in separate processes) as a no-op
// success so the automation run completes and surfaces the would-be action
// in its result field for an operator to action manually.
func stubExternalAction(actionType string) automation.ActionHandlerFunc {
	return func(ctx context.Context, actionConfig, llmResponse string) (string, string, error) {
		return fmt.Sprintf("%s not connected; drafted content: %s", actionType, llmResponse), "", nil
	}
}
