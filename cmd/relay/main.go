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

	"call-relay/internal/auth"
	"call-relay/internal/config"
	"call-relay/internal/history"
	"call-relay/internal/notify"
	"call-relay/internal/observer"
	"call-relay/internal/reconcile"
	"call-relay/internal/registry"
	"call-relay/internal/signalwire"
	"call-relay/pkg/logger"
	"call-relay/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
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

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth.SessionSecret, cfg.Auth.Issuer, cfg.Auth.SessionTTL)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	// Call-history persistence is optional; memory-only otherwise.
	var histService *history.Service
	if cfg.HistoryEnabled() {
		db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
		if err != nil {
			log.Error("postgres init failed", "err", err)
			os.Exit(1)
		}
		defer db.Close()

		repo, err := history.NewPostgresRepo(db)
		if err != nil {
			log.Error("history init failed", "err", err)
			os.Exit(1)
		}
		histService = history.NewService(repo)
		log.Info("call history persistence enabled")
	} else {
		histService = history.NewService(history.NewMemoryRepo())
	}

	fanout := notify.NewFanout(log)
	defer fanout.Close()

	// Notifications go straight to the fanout unless the Redis bridge is
	// configured, in which case they are also relayed across instances.
	var publisher notify.Publisher = fanout
	if cfg.BridgeEnabled() {
		rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()

		bridge := notify.NewRedisBridge(rdb, "call-relay:notifications", uuid.NewString(), fanout, log)
		publisher = bridge
		go bridge.Run(rootCtx)
		log.Info("cross-instance notification bridge enabled")
	}

	reg := registry.New()
	engine := reconcile.New(reg, publisher,
		reconcile.WithHistory(histService),
		reconcile.WithLogger(log),
	)

	sweeper := reconcile.NewSweeper(engine,
		reconcile.WithSweepInterval(cfg.Sweep.Interval),
		reconcile.WithWebhookStaleAfter(cfg.Sweep.WebhookStaleAfter),
		reconcile.WithSweeperLogger(log),
	)
	go sweeper.Run(rootCtx)

	hub := observer.NewHub(log)
	go hub.Run(rootCtx, fanout)

	platform, err := signalwire.New(signalwire.Config{
		ProjectID: cfg.SignalWire.ProjectID,
		Token:     cfg.SignalWire.Token,
		SpaceURL:  cfg.SignalWire.SpaceURL,
		Topics:    cfg.SignalWire.Topics,
	}, log)
	if err != nil {
		log.Error("platform client init failed", "err", err)
		os.Exit(1)
	}
	go platform.Run(rootCtx)
	go func() {
		for ev := range platform.Events() {
			engine.HandlePlatformEvent(ev)
		}
	}()

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		cfg:    cfg,
		auth:   authManager,
		engine: engine,
		hub:    hub,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("relay listening",
			"addr", srv.Addr,
			"env", cfg.App.Env,
			"webhook_url", cfg.WebhookURL(),
		)
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
}
