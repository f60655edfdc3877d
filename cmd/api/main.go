package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"staffdesk.org/internal/app"
	"staffdesk.org/internal/config"
	"staffdesk.org/internal/httpapi"
	"staffdesk.org/internal/obs"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config (optional)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		obs.L().Fatal("load config", zap.Error(err))
	}

	logger := obs.InitLogger(obs.LogConfig{
		Env:         cfg.App.Env,
		Level:       cfg.App.LogLevel,
		ServiceName: "staffdesk-api",
		Version:     version,
	})
	defer func() { _ = obs.SyncLogger() }()

	obs.Init()
	obs.SetBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := app.Build(ctx, cfg)
	if err != nil {
		logger.Fatal("build backend", zap.Error(err))
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Warn("close backend", zap.Error(err))
		}
	}()
	if c.DevToken != "" {
		logger.Warn("memory backend: development sysadmin token issued", zap.String("token", c.DevToken))
	}

	ready := httpapi.ReadyProbe{Checks: c.Checks}
	api := httpapi.New(c.Identity, c.Directory, c.Registry, ready, httpapi.Options{
		Version:         version,
		CORSOrigins:     cfg.Server.CORSAllowedOrigins,
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
		RateBurst:       cfg.Server.RateBurst,
		RatePerSecond:   cfg.Server.RateRPS,
		UpstreamTimeout: cfg.UpstreamTimeout,
		Passwords:       c.Passwords,
		TrustedProxies:  cfg.Server.TrustedProxies,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	grpcSrv := httpapi.NewGRPCServer(ready, cfg.UpstreamTimeout)
	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			logger.Fatal("grpc listen", zap.Error(err))
		}
		go func() {
			logger.Info("grpc health listening", zap.String("addr", cfg.Server.GRPCAddr))
			if err := grpcSrv.Serve(lis); err != nil {
				logger.Error("grpc serve", zap.Error(err))
			}
		}()
	}

	if cfg.ReconcileInterval > 0 {
		go reconcileLoop(ctx, c, cfg.ReconcileInterval)
	}

	go func() {
		logger.Info("starting staffdesk-api",
			zap.String("version", version),
			zap.String("addr", srv.Addr),
			zap.String("backend", cfg.Backend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	grpcSrv.GracefulStop()
	logger.Info("stopped")
}

func reconcileLoop(ctx context.Context, c *app.Container, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			rep, err := c.Directory.Reconcile(ctx)
			fields := []zap.Field{
				zap.Int("checked", rep.Checked),
				zap.Int("updated", rep.Updated),
				zap.Int("orphaned", rep.Orphaned),
				zap.Int("failed", rep.Failed),
			}
			if err != nil {
				obs.L().Warn("reconcile finished with errors", append(fields, zap.Error(err))...)
				continue
			}
			obs.L().Info("reconcile finished", fields...)
		}
	}
}
