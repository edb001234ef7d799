package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"

	"riskdesk/config"
	"riskdesk/internal/agent"
	"riskdesk/internal/api"
	"riskdesk/internal/bus"
	"riskdesk/internal/desk"
	"riskdesk/internal/exec"
	"riskdesk/internal/ingest"
	"riskdesk/internal/logger"
	"riskdesk/internal/metrics"
	"riskdesk/internal/model"
	"riskdesk/internal/notification"
	"riskdesk/internal/replay"
	"riskdesk/internal/risk"
	"riskdesk/internal/sandbox"
	"riskdesk/internal/store"
)

const (
	shutdownGrace  = 5 * time.Second
	livenessPeriod = 10 * time.Second
	wsFreshWindow  = 2 * time.Minute
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the full desk: ingest, analytics, agents, API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.Init("riskdesk", cfg.LogLevel)
	log.Info().Str("mode", cfg.ExecutionMode).Msg("riskdesk starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Snapshot store ----
	var (
		st          store.Store
		redisStore  *store.Redis
		redisClient *goredis.Client
	)
	if cfg.RedisURL != "" {
		redisStore, err = store.NewRedis(ctx, cfg.RedisURL, logger.Component(log, "store"))
		if err != nil {
			return err
		}
		st = redisStore
		redisClient = redisStore.Client()
		log.Info().Msg("redis snapshot store ready")
	} else {
		st = store.NewMemory()
		log.Info().Msg("using in-memory snapshot store")
	}

	// ---- Durable event log ----
	var (
		durable bus.Log
		pglog   *bus.PGLog
	)
	if cfg.DatabaseURL != "" {
		pglog, err = bus.NewPGLog(cfg.DatabaseURL, logger.Component(log, "eventlog"))
		if err != nil {
			log.Warn().Err(err).Msg("event log unavailable, continuing with ring buffer only")
			pglog = nil
		} else {
			durable = pglog
			log.Info().Msg("postgres event log ready")
		}
	}

	// ---- Metrics, health, event bus ----
	prom := metrics.New(nil)
	health := metrics.NewHealthStatus()

	evbus := bus.New(1024, durable, logger.Component(log, "bus"))
	evbus.OnEmit = func(ev model.Event) {
		prom.EventsEmitted.WithLabelValues(string(ev.EventType)).Inc()
		switch ev.EventType {
		case model.EventIndexUpdate:
			prom.TariffIndex.Set(payloadFloat(ev.Payload, "tariff_index"))
			prom.ShockScore.Set(payloadFloat(ev.Payload, "shock_score"))
		case model.EventRuleActionProposed:
			prom.RulesTriggered.WithLabelValues(payloadString(ev.Payload, "rule_name")).Inc()
		case model.EventAgentSignal:
			prom.AgentSignals.WithLabelValues(
				payloadString(ev.Payload, "agent"),
				payloadString(ev.Payload, "severity"),
			).Inc()
		case model.EventRiskThrottleOn:
			prom.ThrottleActive.Set(1)
		case model.EventRiskThrottleOff:
			prom.ThrottleActive.Set(0)
		case model.EventReplayCompleted:
			prom.ReplayRuns.Inc()
		case model.EventSandboxComparison:
			prom.SandboxRuns.Inc()
		}
	}

	// ---- Risk and execution ----
	riskEngine := risk.NewEngine(
		cfg.MaxLeverage, cfg.MaxMarginUsage, cfg.MaxDailyLoss,
		time.Duration(cfg.CooldownSecs)*time.Second,
		st, logger.Component(log, "risk"))

	paper := exec.NewPaperExecutor(evbus, logger.Component(log, "paper"))

	var journal *exec.Journal
	if cfg.JournalPath != "" {
		journal, err = exec.NewJournal(cfg.JournalPath, logger.Component(log, "journal"))
		if err != nil {
			log.Warn().Err(err).Msg("trade journal unavailable, continuing without it")
			journal = nil
		}
	}

	router := exec.NewRouter(exec.RouterConfig{
		Mode:               cfg.ExecutionMode,
		FreshnessThreshold: cfg.PriceFreshnessThreshold,
		IntegrityBlockLive: cfg.IntegrityBlockLive,
	}, evbus, riskEngine, agent.NewExecutionAgent(), st, paper, journal, logger.Component(log, "router"))
	router.OnRoute = func(status string, elapsed time.Duration) {
		prom.OrdersRouted.WithLabelValues(status).Inc()
		prom.RouteDuration.Observe(elapsed.Seconds())
		prom.PaperBookSize.Set(float64(len(paper.Positions())))
	}
	if cfg.ExecutionMode == "live" {
		router.RegisterLive("hyperliquid",
			exec.NewHyperliquidExecutor(cfg.HyperliquidAPIKey, evbus, logger.Component(log, "hyperliquid_exec")))
		router.RegisterLive("drift",
			exec.NewDriftExecutor(cfg.DriftRPCURL, cfg.SolanaPrivateKey, evbus, logger.Component(log, "drift_exec")))
	}

	// ---- Ingest: pollers, compute loop, agents ----
	sched := ingest.BuildScheduler(cfg, st, evbus, logger.Component(log, "ingest"))
	sched.OnResult = func(job string, err error, elapsed time.Duration) {
		prom.IngestRuns.WithLabelValues(job).Inc()
		prom.IngestDuration.WithLabelValues(job).Observe(elapsed.Seconds())
		if err != nil {
			prom.IngestFailures.WithLabelValues(job).Inc()
		}
	}

	loop := desk.NewLoop(st, evbus, cfg.WITSCountries, cfg.WITSProducts, cfg.ExecutionMode,
		cfg.AdaptiveWeights, logger.Component(log, "compute"))
	sched.Add(ingest.Job{Name: "compute", Interval: cfg.Jobs.Compute, Run: func(ctx context.Context) error {
		if err := loop.Tick(ctx); err != nil {
			return err
		}
		health.SetLastTickTime(time.Now())
		return nil
	}})

	coordinator := agent.NewCoordinator(st, evbus, logger.Component(log, "agents"))
	sched.Add(ingest.Job{Name: "agents", Interval: cfg.Jobs.Agents, Run: func(context.Context) error {
		coordinator.Evaluate()
		return nil
	}})

	health.SetSchedulerJobs(len(sched.Jobs()))
	sched.Start(ctx)

	hlws := ingest.NewHyperliquidWS(st, cfg.Jobs.Hyperliquid, logger.Component(log, "hyperliquid_ws"))
	hlws.OnReconnect = prom.WSReconnects.Inc
	go hlws.Run(ctx)

	// ---- Outbound alerting ----
	var notifiers []notification.Notifier
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		notifiers = append(notifiers,
			notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID, logger.Component(log, "telegram")))
	}
	if cfg.AlertWebhookURL != "" {
		notifiers = append(notifiers,
			notification.NewWebhookNotifier(cfg.AlertWebhookURL, logger.Component(log, "webhook")))
	}
	dispatcher := notification.NewDispatcher(logger.Component(log, "alerts"), notifiers...)
	if dispatcher.Enabled() {
		go dispatcher.Run(ctx, evbus.Subscribe(notification.AlertTypes()...))
		log.Info().Int("channels", len(notifiers)).Msg("alert dispatcher running")
	}

	// ---- Replay and sandbox engines ----
	replayEngine := replay.NewEngine(evbus, logger.Component(log, "replay"))
	sandboxEngine := sandbox.NewEngine(evbus, logger.Component(log, "sandbox"))

	// ---- HTTP surfaces ----
	apiSrv := api.NewServer(cfg.APIAddr, api.Deps{
		Store:   st,
		Bus:     evbus,
		Risk:    riskEngine,
		Router:  router,
		Paper:   paper,
		Journal: journal,
		Agents:  coordinator,
		Replay:  replayEngine,
		Sandbox: sandboxEngine,
		Health:  health,
	}, logger.Component(log, "api"))
	apiSrv.Start(ctx)

	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health, logger.Component(log, "metrics"))
	metricsSrv.Start()

	health.StartLivenessChecker(ctx, redisClient, livenessPeriod)
	go watchFeeds(ctx, st, pglog, health)

	log.Info().
		Str("api", cfg.APIAddr).
		Str("metrics", cfg.MetricsAddr).
		Int("jobs", len(sched.Jobs())).
		Msg("riskdesk ready")

	// ---- Wait for shutdown ----
	<-sigCh
	log.Info().Msg("shutdown signal received")
	cancel()

	sched.Stop(shutdownGrace)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()
	apiSrv.Stop(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)

	evbus.Close()
	if journal != nil {
		journal.Close()
	}
	if pglog != nil {
		pglog.Close()
	}
	if redisStore != nil {
		redisStore.Close()
	}

	log.Info().Msg("shutdown complete")
	return nil
}

// watchFeeds tracks stream freshness and event log backlog for the health
// probe. The Hyperliquid feed counts as connected while its latest tick is
// younger than wsFreshWindow.
func watchFeeds(ctx context.Context, st store.Store, pglog *bus.PGLog, health *metrics.HealthStatus) {
	ticker := time.NewTicker(livenessPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			connected := false
			if snap, ok := st.Get(store.PriceKey("hyperliquid", "SOL_USD")); ok {
				if raw, ok := snap["ts"].(string); ok {
					if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
						connected = time.Since(ts) < wsFreshWindow
					}
				}
			}
			health.SetWSConnected(connected)

			if pglog != nil {
				health.SetEventLogOK(pglog.PendingCount() == 0)
			}
		}
	}
}

func payloadFloat(m map[string]interface{}, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func payloadString(m map[string]interface{}, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return "unknown"
}
