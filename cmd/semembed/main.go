package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	rediscache "semembed/cache/redis"
	"semembed/config"
	"semembed/embedding"
	embeddinggrpc "semembed/embedding/grpc"
	"semembed/embedding/hash"
	"semembed/embedding/openai"
	"semembed/engine"
	"semembed/executor"
	"semembed/logger"
	"semembed/metrics"
	"semembed/registry"
	"semembed/server"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/cpuid/v2"
	"google.golang.org/grpc"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 5 * time.Second
)

func main() {
	if err := run(); err != nil {
		slog.Error("semembed exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	format := cfg.LogFormat
	if format == "" {
		format = logger.DefaultFormat(os.Stdout)
	}
	log := logger.New(cfg.LogLevel, format, os.Stdout)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting semembed",
		"cpu", cpuid.CPU.BrandName,
		"cores", cpuid.CPU.PhysicalCores,
		"model", cfg.DefaultModel,
		"models", len(cfg.Models),
	)

	m := metrics.New(log)
	loaders := map[string]embedding.Loader{
		"openai": openai.Load,
		"grpc":   embeddinggrpc.Load,
		"hash":   hash.Load,
	}
	reg, err := registry.New(cfg.Models, loaders, registry.WithObserver(m), registry.WithLogger(log))
	if err != nil {
		return err
	}
	defer reg.Close()
	m.WatchLoadedModels(reg.List)

	opts := []engine.Option{engine.WithLogger(log)}
	if cfg.Redis.Enabled() {
		client, err := rediscache.Dial(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer client.Close()
		cacheSvc := rediscache.New(client, cfg.Redis.QueueSize, cfg.Redis.Workers, cfg.Redis.TTL, log)
		defer cacheSvc.Shutdown()
		opts = append(opts, engine.WithCache(cacheSvc))
		log.Info("embedding cache enabled", "addr", cfg.Redis.Addr, "workers", cfg.Redis.Workers)
	}

	e := engine.New(engine.Config{
		DefaultModel:   cfg.DefaultModel,
		MaxInputs:      cfg.MaxInputs,
		RequestTimeout: cfg.RequestTimeout,
	}, reg, executor.New(executor.WithObserver(m)), m, opts...)
	if cfg.Preload {
		e.Preload(ctx)
	}

	if cfg.DebugMode {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := server.New(e, m, log, server.WithMaxBodyBytes(cfg.MaxBodyBytes))
	if cfg.DebugMode {
		srv.EnablePprof()
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info("HTTP server listening", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("error running http server: %w", err)
		}
	}()

	var grpcServer *grpc.Server
	if cfg.GRPCPort > 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
		if err != nil {
			return fmt.Errorf("failed to listen: %w", err)
		}
		grpcServer = grpc.NewServer(embeddinggrpc.ServerOptions()...)
		embeddinggrpc.Register(grpcServer, embeddinggrpc.NewServer(e))
		go func() {
			log.Info("gRPC server listening", "port", cfg.GRPCPort)
			if err := grpcServer.Serve(lis); err != nil {
				errCh <- fmt.Errorf("failed to serve grpc: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}
