package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/moodlink/realtime-service/config"
	"github.com/moodlink/realtime-service/internal/auth"
	"github.com/moodlink/realtime-service/internal/bus"
	"github.com/moodlink/realtime-service/internal/dispatch"
	"github.com/moodlink/realtime-service/internal/registry"
	httpx "github.com/moodlink/realtime-service/internal/transport/http"
	"github.com/moodlink/realtime-service/internal/transport/ws"
	"github.com/moodlink/realtime-service/pkg/logger"

	"github.com/redis/go-redis/v9"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.Env(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting realtime-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version)

	// --- event bus ---
	var eventBus bus.Bus
	switch cfg.Bus.Backend {
	case "memory":
		eventBus = bus.NewMemory(cfg.Bus.Buffer)
	default:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		eventBus = bus.NewRedis(rdb, slog.Default(), cfg.Bus.Buffer)
	}

	// --- registry & dispatcher ---
	verifier := auth.NewJWTVerifier(cfg.Auth.Secret)
	reg := registry.New(verifier, slog.Default())
	disp := dispatch.New(eventBus, reg, slog.Default())

	// --- WS server ---
	wsServer := ws.NewServer(reg, eventBus, ws.Config{
		PingInterval:   cfg.WS.Ping(),
		WriteWait:      cfg.WS.Write(),
		ReadLimit:      cfg.WS.ReadLimit,
		QueueSize:      cfg.WS.QueueSize,
		MsgRate:        cfg.WS.MsgRate,
		MsgBurst:       cfg.WS.MsgBurst,
		OnInvalidToken: ws.Policy(cfg.Auth.OnInvalidToken),
	}, slog.Default())

	// --- HTTP ---
	handler := httpx.NewHandler(reg, disp)
	router := httpx.NewRouter(handler, wsServer)
	httpSrv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- run dispatcher & server ---
	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	defer stopDispatch()

	errCh := make(chan error, 2)

	go func() {
		if err := disp.Run(dispatchCtx); err != nil {
			errCh <- err
		}
	}()

	go func() {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// --- graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal", "sig", sig)
	case err := <-errCh:
		slog.Error("server error", "err", err)
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stopDispatch()
	_ = httpSrv.Shutdown(ctxShutdown)
	slog.Info("stopped")
}
