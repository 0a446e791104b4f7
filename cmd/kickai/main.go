// Command kickai is the process entrypoint: it loads config, wires every
// internal package together, and runs until terminated. Config load,
// logger init, event bus, store open, recovery scan, then domain
// wiring, then a signal-driven graceful shutdown with a bounded drain.
// KICKAI's surface is a fleet of Telegram bot connections, not an
// HTTP API — no WASM skills, no MCP, no plan coordinator, no TUI, no
// HTTP/WS gateway.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/kickai/kickai/internal/agent"
	"github.com/kickai/kickai/internal/authz"
	"github.com/kickai/kickai/internal/bus"
	"github.com/kickai/kickai/internal/command"
	"github.com/kickai/kickai/internal/config"
	"github.com/kickai/kickai/internal/fleet"
	"github.com/kickai/kickai/internal/invite"
	"github.com/kickai/kickai/internal/llm"
	"github.com/kickai/kickai/internal/orchestrator"
	otelpkg "github.com/kickai/kickai/internal/otel"
	"github.com/kickai/kickai/internal/reminder"
	"github.com/kickai/kickai/internal/storage"
	"github.com/kickai/kickai/internal/telemetry"
	"github.com/kickai/kickai/internal/tool"
)

// drainTimeout bounds how long shutdown waits for in-flight updates and
// scheduler ticks to finish before moving on; anything still running
// past this is left for the next startup's lease-recovery scan.
const drainTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fatalStartup(nil, "config load", err)
	}

	logger, closer, err := telemetry.NewLogger(cfg.HomeDir, cfg.LogLevel, false)
	if err != nil {
		fatalStartup(nil, "logger init", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)
	logger.Info("startup phase", "phase", "config_loaded", "teams", len(cfg.Teams))

	if len(cfg.Teams) == 0 {
		logger.Warn("no teams configured; add at least one team to config.yaml", "path", config.ConfigPath(cfg.HomeDir))
	}

	otelProvider, err := otelpkg.Init(ctx, otelpkg.Config{
		Enabled:        cfg.Telemetry.Enabled,
		Exporter:       cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		ServiceName:    cfg.Telemetry.ServiceName,
		SampleRate:     cfg.Telemetry.SampleRate,
		MetricsEnabled: cfg.Telemetry.MetricsEnabled,
	})
	if err != nil {
		fatalStartup(logger, "otel init", err)
	}
	defer func() { _ = otelProvider.Shutdown(context.Background()) }()

	otelMetrics, err := otelpkg.NewMetrics(otelProvider.Meter)
	if err != nil {
		fatalStartup(logger, "otel metrics init", err)
	}

	eventBus := bus.New()

	dbPath := storage.DefaultDBPath(cfg.HomeDir)
	store, err := storage.Open(dbPath)
	if err != nil {
		fatalStartup(logger, "store open", err)
	}
	defer store.Close()
	logger.Info("startup phase", "phase", "schema_migrated", "path", dbPath)

	requeued, err := store.RequeueExpiredLeases(ctx, time.Now().UTC())
	if err != nil {
		fatalStartup(logger, "recovery scan", err)
	}
	logger.Info("startup phase", "phase", "recovery_scan_completed", "requeued", requeued)

	capabilitiesPath := filepath.Join(cfg.HomeDir, "capabilities.csv")
	checker, err := authz.NewChecker(capabilitiesPath)
	if err != nil {
		fatalStartup(logger, "capability checker init", err)
	}

	commands := command.NewRegistry()
	roster := agent.NewRoster()

	invites := invite.NewService(store, cfg.InviteSecretKey, cfg.InviteTTL())
	invites.SetMetrics(otelMetrics)
	invites.SetBaseURL(cfg.InviteBaseURL)

	fleetMgr := fleet.NewManager(&cfg, store, eventBus)

	tools, err := tool.NewRegistry(tool.StorageDefinitions(store, commands, invites, fleetMgr))
	if err != nil {
		fatalStartup(logger, "tool registry init", err)
	}

	llmClient := llm.NewGenkitClient(ctx, llm.Config{
		Provider:                 cfg.LLM.Provider,
		Model:                    cfg.LLM.Model,
		APIKey:                   cfg.LLMProviderAPIKey(cfg.LLM.Provider),
		OpenAICompatibleProvider: cfg.LLM.OpenAICompatibleProvider,
		OpenAICompatibleBaseURL:  cfg.LLM.OpenAICompatibleBaseURL,
	})

	router := orchestrator.NewRouter(store, checker, commands, roster, tools, llmClient, invites, eventBus, cfg.AgentDeadline())
	router.SetTelemetry(otelProvider.Tracer, otelMetrics)
	engine := orchestrator.NewEngine(store, router, orchestrator.EngineConfig{})
	engine.SetMetrics(otelMetrics)

	reminderSched := reminder.NewScheduler(reminder.Config{
		Store:    store,
		Notifier: fleetMgr,
		Logger:   logger,
		Metrics:  otelMetrics,
	})

	logger.Info("startup phase", "phase", "components_wired")

	engine.Start(ctx)
	fleetMgr.Start(ctx)
	reminderSched.Start(ctx)

	watcher := config.NewWatcher(cfg.HomeDir, logger)
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("config watcher unavailable; team table changes require a restart", "error", err)
	} else {
		go watchConfigReloads(ctx, watcher, fleetMgr, logger)
	}

	logger.Info("kickai running", "teams", len(cfg.Teams))

	<-ctx.Done()
	logger.Info("shutdown signal received, draining")

	reminderSched.Stop()
	engine.Drain(drainTimeout)
	fleetMgr.Wait()

	logger.Info("shutdown complete")
}

// watchConfigReloads re-reads config.yaml on every fsnotify event and
// hands the refreshed team table to the fleet manager (§6: no process
// restart required to add a team). A reload that fails validation is
// logged and skipped — the fleet keeps running on the last good table.
func watchConfigReloads(ctx context.Context, watcher *config.Watcher, fleetMgr *fleet.Manager, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events():
			if !ok {
				return
			}
			newCfg, err := config.LoadFrom(ev.Path)
			if err != nil {
				logger.Error("config reload failed, keeping previous team table", "path", ev.Path, "error", err)
				continue
			}
			logger.Info("config reloaded", "teams", len(newCfg.Teams))
			fleetMgr.Reconcile(newCfg.Teams)
		}
	}
}

func fatalStartup(logger *slog.Logger, phase string, err error) {
	if logger != nil {
		logger.Error("startup failure", "phase", phase, "error", err)
	} else {
		fmt.Fprintf(os.Stderr, "startup failure: %s: %v\n", phase, err)
	}
	os.Exit(1)
}
