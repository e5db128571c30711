package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"salescrm-platform/internal/audit"
	"salescrm-platform/internal/auth"
	"salescrm-platform/internal/call"
	"salescrm-platform/internal/config"
	"salescrm-platform/internal/events"
	"salescrm-platform/internal/governance"
	"salescrm-platform/internal/httpapi"
	"salescrm-platform/internal/lead"
	"salescrm-platform/internal/orgsettings"
	"salescrm-platform/internal/provider"
	"salescrm-platform/pkg/logger"
	"salescrm-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	voice, err := provider.NewTwilioProvider(provider.TwilioOptions{
		AccountSID:     cfg.Twilio.AccountSID,
		AuthToken:      cfg.Twilio.AuthToken,
		RequestTimeout: cfg.Twilio.RequestTimeout,
	})
	if err != nil {
		log.Error("provider init failed", "err", err)
		os.Exit(1)
	}

	// Stores.
	callStore := call.NewPostgresStore(db)
	leadStore := lead.NewPostgresStore(db)
	matcher := lead.NewMatcher(leadStore)
	settings := orgsettings.NewService(orgsettings.NewPostgresRepo(db), orgsettings.Defaults{
		RecordingDelaySeconds: cfg.Governance.RecordingDelaySeconds,
		RecordingKeepSeconds:  cfg.Governance.RecordingKeepSeconds,
		AgentMaxCallSeconds:   cfg.Governance.AgentMaxCallSeconds,
		ManagerMaxCallSeconds: cfg.Governance.ManagerMaxCallSeconds,
	})

	// Performance events: Kafka when brokers are configured, otherwise dropped.
	var sink events.Sink
	if len(cfg.Events.KafkaBrokers) > 0 {
		ks, err := events.NewKafkaSink(events.KafkaConfig{
			Brokers: cfg.Events.KafkaBrokers,
			Topic:   cfg.Events.KafkaTopic,
		})
		if err != nil {
			log.Error("kafka init failed", "err", err)
			os.Exit(1)
		}
		defer ks.Close()
		sink = ks
	} else {
		log.Warn("kafka brokers not configured, performance events disabled")
	}
	emitter := events.NewEmitter(sink, log)

	// Append-only trail for automated governance actions and outcome writes.
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))

	// Governance: durable timers in Redis, fired by the in-process poller.
	scheduler := governance.NewRedisScheduler(rdb)
	engine := governance.NewEngine(callStore, voice, settings, scheduler, auditSvc, log)
	poller := governance.NewPoller(engine, scheduler, log)
	go poller.Run(rootCtx)

	// Per-org dial cap, leased for the longest allowed call plus slack.
	var dialCap call.DialCap
	if cfg.Calls.MaxConcurrentPerOrg > 0 {
		capTTL := time.Duration(cfg.Governance.ManagerMaxCallSeconds+300) * time.Second
		dialCap = call.NewRedisDialCap(rdb, cfg.Calls.MaxConcurrentPerOrg, capTTL, log)
	}

	initiator := call.NewInitiator(callStore, leadStore, matcher, voice, emitter, dialCap, call.InitiatorConfig{
		PublicBaseURL:      cfg.App.PublicBaseURL,
		DefaultCallerID:    cfg.Twilio.DefaultCallerID,
		RingTimeoutSeconds: cfg.Calls.RingTimeoutSeconds,
	}, log)

	// Attribution for events the orchestrator has no row for: match the
	// number against call history on either side.
	resolveOrg := func(ctx context.Context, to, from string) (string, error) {
		if org, err := callStore.OrganizationByNumber(ctx, from); err == nil {
			return org, nil
		}
		return callStore.OrganizationByNumber(ctx, to)
	}

	processor := call.NewProcessor(callStore, leadStore, matcher, voice, engine, emitter, dialCap, resolveOrg, call.ProcessorConfig{
		ConversationMinSeconds: cfg.Calls.ConversationMinSeconds,
		QualifiedMinSeconds:    cfg.Calls.QualifiedMinSeconds,
	}, log)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		authMW: auth.RequireAccessToken(authManager),
		handlers: httpapi.Handlers{
			Auth:      authManager,
			Initiator: initiator,
			Calls:     callStore,
			Processor: processor,
			Audit:     auditSvc,
		},
		webhooks: httpapi.Webhooks{
			Processor:           processor,
			Calls:               callStore,
			Settings:            settings,
			VoicemailMessageURL: cfg.Calls.VoicemailMessageURL,
		},
		healthDB: func(ctx context.Context) error {
			return utils.HealthCheck(ctx, db, 2*time.Second)
		},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
