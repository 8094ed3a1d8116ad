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

	"dialer-platform/internal/admission"
	"dialer-platform/internal/audit"
	"dialer-platform/internal/auth"
	"dialer-platform/internal/calls"
	"dialer-platform/internal/campaign"
	"dialer-platform/internal/config"
	"dialer-platform/internal/contacts"
	"dialer-platform/internal/dialer"
	"dialer-platform/internal/endpointpool"
	"dialer-platform/internal/httpapi"
	"dialer-platform/internal/metrics"
	"dialer-platform/internal/reporting"
	"dialer-platform/pkg/logger"
	"dialer-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/time/rate"
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

	// Persistence layer.
	campaignStore := campaign.NewPGStore(db)
	registry := calls.NewPGRegistry(db)
	auditSvc := audit.NewService(audit.NewPGRepo(db))

	// Admission control: authoritative counts from the registry, Redis as a
	// non-authoritative fast path.
	limitPolicy := admission.NewLimitPolicy(admission.NewPGLimitRepository(db), cfg.Engine.DefaultClientMaxCalls)
	controller := admission.NewController(registry, limitPolicy, admission.NewRedisFastPath(rdb), admission.Config{
		GlobalMax:   cfg.Engine.GlobalMaxCalls,
		CallTimeout: cfg.Engine.CallTimeout,
	}, log)

	// Provider callbacks settle calls and release admission slots.
	applier := campaign.NewCallbackApplier(registry, campaignStore)
	applier.OnRelease = func(ctx context.Context, c calls.ActiveCall) {
		controller.ReleaseFastPathFor(ctx, c.ClientID)
	}

	twilio := &dialer.TwilioDialer{
		AccountSID:        cfg.Twilio.AccountSID,
		AuthToken:         cfg.Twilio.AuthToken,
		AnswerURL:         cfg.Twilio.AnswerURL,
		StatusCallbackURL: cfg.Twilio.StatusCallbackURL,
	}

	processor := campaign.NewProcessor(
		campaignStore, registry, contacts.NewPGSource(db),
		controller, twilio, auditSvc, cfg.Twilio.FromNumber,
		campaign.ProcessorConfig{
			HeartbeatPeriod: cfg.Engine.HeartbeatPeriod,
			DialRate:        rate.Limit(cfg.Engine.DialRate),
			DialBurst:       cfg.Engine.DialBurst,
		}, log)
	runner := campaign.NewRunner(processor, campaign.NewWorkerID(), log)
	control := campaign.NewControl(campaignStore, runner, auditSvc)

	// Background sweeps: reclaim dead workers' campaigns, release stuck calls.
	orphanSweep := campaign.NewOrphanSweep(campaignStore, auditSvc, cfg.Engine.OrphanSweepInterval, cfg.Engine.OrphanThreshold, log)
	go orphanSweep.Run(rootCtx)
	timeoutSweep := admission.NewTimeoutSweep(registry, campaign.StoreTally{Store: campaignStore}, controller,
		cfg.Engine.CallSweepInterval, cfg.Engine.CallTimeout, log)
	go timeoutSweep.Run(rootCtx)

	pool := endpointpool.NewAllocator(endpointpool.NewPGRepository(db), cfg.Pool.FreshnessWindow, log)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(metrics.Middleware())

	handlers := httpapi.Handlers{
		Auth:      authManager,
		Control:   control,
		Reporting: reporting.NewService(reporting.NewPGRepo(db)),
		Pool:      pool,
	}
	webhook := dialer.StatusWebhookHandler{Applier: applier}

	registerRoutes(r, handlers, webhook, auth.RequireAccessToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "worker_id", runner.WorkerID())
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

	// Park running campaign loops so other workers can resume them.
	if err := runner.Shutdown(shutdownCtx); err != nil {
		log.Error("campaign runner shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
