package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/arena-server/internal/config"
	"github.com/DoyleJ11/arena-server/internal/engine"
	"github.com/DoyleJ11/arena-server/internal/httpapi"
	"github.com/DoyleJ11/arena-server/internal/hub"
	"github.com/DoyleJ11/arena-server/internal/lobby"
	"github.com/DoyleJ11/arena-server/internal/metrics"
	"github.com/DoyleJ11/arena-server/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	table := engine.DefaultArchetypes()
	lb := lobby.NewLobby(ctx, table, logger, m)
	h := hub.NewHub(ctx, lb, logger, m)
	srv := server.New(lb, logger, m, server.Options{
		OutboxSize:   cfg.OutboxSize,
		WriteTimeout: cfg.WriteTimeout,
	})

	httpServer := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.SetupRoutes(httpapi.Deps{
			Server:         srv,
			Lobby:          lb,
			Hub:            h,
			Archetypes:     table,
			Gatherer:       reg,
			Logger:         logger,
			OriginPatterns: cfg.OriginPatterns,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, cfg.TCPAddr)
	})
	g.Go(func() error {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
		}
		return nil
	})

	err := g.Wait()
	cancel()
	<-h.Done()
	<-lb.Done()
	logger.Info("server stopped")
	return err
}
