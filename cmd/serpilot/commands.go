// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/serpilot/pkg/logging"
	"github.com/AleutianAI/serpilot/services/experiment/archive"
	"github.com/AleutianAI/serpilot/services/experiment/config"
	"github.com/AleutianAI/serpilot/services/experiment/handlers"
	"github.com/AleutianAI/serpilot/services/experiment/observability"
	"github.com/AleutianAI/serpilot/services/experiment/routes"
	"github.com/AleutianAI/serpilot/services/experiment/session"
	"github.com/AleutianAI/serpilot/services/experiment/stimulus"
	"github.com/AleutianAI/serpilot/services/experiment/trials"
	"github.com/AleutianAI/serpilot/services/experiment/ttl"
)

var (
	flagUIDir  string
	flagLogDir string
	flagDebug  bool
)

var rootCmd = &cobra.Command{
	Use:   "serpilot",
	Short: "Multi-stage speech emotion perception experiment server",
	Long: `serpilot serves a browser-based listening experiment: four fixed
stages of trials built from wav pools on disk, with every response
appended to a per-session CSV log.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the experiment HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagUIDir, "ui-dir", "./ui", "directory holding the static pages")
	serveCmd.Flags().StringVar(&flagLogDir, "log-dir", "", "directory for JSON service logs (disabled when empty)")
	serveCmd.Flags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	rootCmd.AddCommand(serveCmd)
}

// initTracer sets up the OTLP gRPC trace exporter. Returns a shutdown
// func. A missing endpoint leaves the default no-op tracer provider in
// place, so span creation in the handlers stays free.
func initTracer(ctx context.Context, endpoint string) (func(context.Context), error) {
	if endpoint == "" {
		return func(context.Context) {}, nil
	}

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("serpilot-experiment")))
	if err != nil {
		return nil, err
	}
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(traceExporter)))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := traceProvider.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "failed to shutdown OTLP exporter: %v\n", err)
		}
	}, nil
}

func runServe(ctx context.Context) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return err
	}

	level := logging.LevelInfo
	if flagDebug {
		level = logging.LevelDebug
	}
	logger := logging.New(logging.Config{
		Level:   level,
		LogDir:  flagLogDir,
		Service: "experiment",
		JSON:    !isatty.IsTerminal(os.Stderr.Fd()),
	})
	defer logger.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := initTracer(ctx, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("setup OTLP tracer: %w", err)
	}
	defer shutdownTracer(context.Background())

	metrics := observability.InitMetrics()
	store := session.NewMemoryStore()
	engine := session.NewEngine(cfg, store, logger)

	arch, err := archive.Open(archive.Config{
		Path:   cfg.ArchiveDir,
		Logger: logger.With("component", "archive").Slog(),
	})
	if err != nil {
		return err
	}
	defer arch.Close()

	sweeper := ttl.NewSweeper(store, arch, metrics, logger, cfg.SessionTTL)
	scheduler := ttl.NewScheduler(sweeper, cfg.SweepInterval, logger)
	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer scheduler.Stop()

	// Pool watcher: keeps the pool_files gauge current and warns when
	// a directory drops below what the stage designs need.
	watcher, err := stimulus.NewWatcher(engine.RoleDirs(), trials.PoolMinimums(),
		func(role stimulus.Role, count int) {
			metrics.RecordPoolSize(string(role), count)
		})
	if err != nil {
		logger.Warn("serve: stimulus watcher unavailable", "error", err)
	} else {
		if err := watcher.Start(); err != nil {
			logger.Warn("serve: stimulus watcher failed to start", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	if !flagDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("serpilot-experiment"))

	routes.Register(router, routes.Options{
		Experiment: handlers.NewExperimentHandler(engine, store, metrics, logger),
		Admin:      handlers.NewAdminHandler(store, sweeper, arch, logger),
		Misc:       handlers.NewMiscHandler(store, cfg.StimulusRoot),
		Store:      store,
		UIDir:      flagUIDir,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serve: listening",
			"port", cfg.Port,
			"stimulus_root", cfg.StimulusRoot,
			"data_dir", cfg.DataDir)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("serve: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	// Retire what we can so summaries land in the archive before the
	// process exits.
	sweeper.SweepOnce()
	return nil
}
