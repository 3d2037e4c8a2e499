package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"thurman/observability/logging"
	telemetry "thurman/observability/otel"
	"thurman/services/poold/app"
	"thurman/services/poold/config"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/poold/config.yaml", "path to poold config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if env := strings.TrimSpace(os.Getenv("POOLD_ENV")); env != "" {
		cfg.Environment = strings.ToLower(env)
	}

	logger, logCloser := logging.SetupWithOptions(logging.Options{
		Service:    "poold",
		Env:        cfg.Environment,
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer logCloser.Close()

	telemetryCfg := telemetry.Config{
		ServiceName:    "poold",
		ServiceVersion: version,
		Environment:    cfg.Environment,
		InstanceID:     strings.TrimSpace(os.Getenv("POOLD_INSTANCE_ID")),
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		Headers:        cfg.Telemetry.Headers,
		Metrics:        cfg.Telemetry.Metrics,
		Traces:         cfg.Telemetry.Traces,
		SampleRatio:    cfg.Telemetry.SampleRatio,
		ExportInterval: cfg.Telemetry.ExportInterval,
	}
	if endpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); endpoint != "" {
		telemetryCfg.Endpoint = endpoint
	}
	if headers := telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")); len(headers) > 0 {
		telemetryCfg.Headers = headers
	}
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			telemetryCfg.Insecure = parsed
		}
	}
	tel, err := telemetry.Init(context.Background(), telemetryCfg)
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	if cfg.GenesisPath == "" {
		log.Fatalf("genesis path required")
	}
	genesis, err := config.LoadGenesis(cfg.GenesisPath)
	if err != nil {
		log.Fatalf("load genesis: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	daemon, err := app.Build(ctx, cfg, genesis, logger)
	if err != nil {
		log.Fatalf("build poold: %v", err)
	}
	defer daemon.Close()

	if cfg.Telemetry.Metrics {
		gauges, err := telemetry.RegisterPoolGauges(tel.Meter("thurman/poold"), daemon.Engine)
		if err != nil {
			log.Fatalf("register pool gauges: %v", err)
		}
		defer func() { _ = gauges.Unregister() }()
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           daemon.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("poold listening", "addr", cfg.ListenAddress, "env", cfg.Environment)
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("forcing server stop", "error", err)
			_ = srv.Close()
		}
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve http: %v", err)
		}
	}
}
