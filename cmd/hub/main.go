package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shardlink/shardlink/hub"
	"github.com/shardlink/shardlink/internal/config"
	"github.com/shardlink/shardlink/registry"
	"github.com/shardlink/shardlink/wire"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("shardlink-hub starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	slog.Info("config loaded",
		"port", cfg.Hub.Port,
		"send_buffer", cfg.Hub.SendBuffer,
		"ping_interval", cfg.Hub.PingInterval,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	h, err := hub.New(hub.Options{
		Password:     cfg.Hub.Password,
		SendBuffer:   cfg.Hub.SendBuffer,
		PingInterval: cfg.Hub.PingInterval,
		PongWait:     cfg.Hub.PongWait,
		Events: hub.Events{
			Listening: func(addr string) {
				slog.Info("hub listening", "addr", addr)
			},
			Connection: func(c *registry.Client, _ *http.Request) {
				slog.Info("client accepted",
					"clientid", c.ID, "shardid", c.Shard, "connection_id", c.ConnectionID)
			},
			Rejected: func(r *http.Request) {
				slog.Warn("upgrade rejected",
					"remote", r.RemoteAddr, "clientid", r.Header.Get(hub.HeaderClientID))
			},
			WSClose: func(c *registry.Client, code int, reason string) {
				slog.Info("client disconnected",
					"clientid", c.ID, "connection_id", c.ConnectionID,
					"code", code, "reason", reason)
			},
			WSError: func(c *registry.Client, err error) {
				slog.Warn("client socket error", "connection_id", c.ConnectionID, "err", err)
			},
			Announced: func(c *registry.Client, _ *wire.Envelope) {
				slog.Debug("announce routed", "clientid", c.ID, "shardid", c.Shard)
			},
			Close: func() {
				slog.Info("hub closed")
			},
			Error: func(err error) {
				slog.Error("hub error", "err", err)
			},
		},
	})
	if err != nil {
		slog.Error("failed to create hub", "err", err)
		os.Exit(1)
	}

	// Hot-reload the config so the shared secret can be rotated live.
	go func() {
		if err := config.Watch(ctx, *configPath, func(cfg *config.Config) {
			h.SetPassword(cfg.Hub.Password)
		}); err != nil {
			slog.Error("config watch failed", "err", err)
		}
	}()

	r := chi.NewRouter()
	r.Handle("/", h)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok")) //nolint:errcheck
	})
	r.Get("/api/stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(h.Stats()) //nolint:errcheck
	})

	addr := fmt.Sprintf(":%d", cfg.Hub.Port)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		h.NotifyListening(addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.NotifyError(err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shardlink-hub shutting down")
	h.Shutdown()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
}
