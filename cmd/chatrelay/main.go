package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/chatrelay/cmd/mainconfig"
	"github.com/wolfman30/chatrelay/internal/api/router"
	"github.com/wolfman30/chatrelay/internal/app/bootstrap"
	appconfig "github.com/wolfman30/chatrelay/internal/config"
	"github.com/wolfman30/chatrelay/internal/discord"
	"github.com/wolfman30/chatrelay/internal/dispatch"
	"github.com/wolfman30/chatrelay/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/chatrelay/internal/http/middleware"
	"github.com/wolfman30/chatrelay/internal/observability/metrics"
	"github.com/wolfman30/chatrelay/internal/script"
	"github.com/wolfman30/chatrelay/internal/senders"
	"github.com/wolfman30/chatrelay/internal/transcript"
	"github.com/wolfman30/chatrelay/pkg/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := appconfig.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	cfg := appconfig.Load()

	if isatty.IsTerminal(os.Stdin.Fd()) {
		if err := promptMissing(cfg); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}

	logFile, err := openLogFile(cfg.LogFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if logFile != nil {
		defer logFile.Close()
	}
	logger := logging.NewWithSinks(logging.Options{
		Level:   cfg.LogLevel,
		Console: os.Stdout,
		File:    fileWriter(logFile),
		Color:   cfg.LogColor,
	})

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return 1
	}

	registry, err := senders.LoadFile(cfg.SendersFile)
	if err != nil {
		logger.Error("failed to load senders", "path", cfg.SendersFile, "error", err)
		return 1
	}
	sc, err := script.LoadFile(cfg.DialogFile, script.TextOptions{
		SenderCount: registry.Len(),
		ReplyMode:   cfg.DialogReplyMode,
	})
	if err != nil {
		logger.Error("failed to load dialog", "path", cfg.DialogFile, "error", err)
		return 1
	}

	logger.Info("starting chatrelay",
		"channel_id", cfg.ChannelID,
		"senders", registry.Len(),
		"turns", sc.Len(),
		"delay_mode", cfg.DelayMode,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var awsCfg *aws.Config
	if mainconfig.NeedsAWS(cfg) {
		loaded, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			return 1
		}
		awsCfg = &loaded
	}

	pool, err := bootstrap.BuildPostgresPool(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		return 1
	}
	if pool != nil {
		defer pool.Close()
	}
	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}

	memory := transcript.NewMemoryStore(0)
	deps := bootstrap.RecorderDeps{
		Pool:   pool,
		Redis:  redisClient,
		Memory: memory,
		Config: cfg,
		Logger: logger,
	}
	if awsCfg != nil && cfg.TranscriptBucket != "" {
		deps.S3 = mainconfig.NewS3Client(*awsCfg, cfg)
	}

	client := bootstrap.BuildDiscordClient(cfg, logger)
	engine, err := buildEngine(registry, client, cfg, logger, deps, prometheus.DefaultRegisterer)
	if err != nil {
		logger.Error("failed to build dispatch engine", "error", err)
		return 1
	}

	srv := startOpsServer(ctx, cfg.OpsAddr, engine, memory, bootstrap.BuildRunReader(deps), logger)

	outcome, runErr := engine.Run(ctx, cfg.ChannelID, sc)

	notifier := bootstrap.BuildRunNotifier(cfg, awsCfg, logger)
	if err := notifier.NotifyOutcome(context.WithoutCancel(ctx), outcome); err != nil {
		logger.Warn("run notification failed", "error", err)
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("ops server forced to shutdown", "error", err)
		}
		cancel()
	}

	if runErr != nil {
		return 1
	}
	return 0
}

func buildEngine(registry *senders.Registry, client *discord.Client, cfg *appconfig.Config, logger *logging.Logger, deps bootstrap.RecorderDeps, reg prometheus.Registerer) (*dispatch.Engine, error) {
	engine, err := dispatch.NewEngine(registry, client, bootstrap.DispatchOptions(cfg), logger)
	if err != nil {
		return nil, err
	}
	engine = engine.
		WithValidator(client).
		WithObserver(metrics.NewDispatchMetrics(reg))
	if rec := bootstrap.BuildRecorder(deps); rec != nil {
		engine = engine.WithRecorder(rec)
	}
	return engine, nil
}

// startOpsServer serves health, metrics, live run status and journaled run
// lookups until the server is shut down. It returns nil when addr is empty.
func startOpsServer(ctx context.Context, addr string, engine *dispatch.Engine, memory *transcript.MemoryStore, runs transcript.Reader, logger *logging.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	handler := router.New(&router.Config{
		Logger:         logger,
		Status:         handlers.NewStatusHandler(engine, memory, logger).WithRunReader(runs),
		MetricsHandler: promhttp.Handler(),
		RateLimiter:    httpmiddleware.NewRateLimiter(ctx, 5, 10),
	})
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("ops server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops server error", "error", err)
		}
	}()
	return srv
}

func openLogFile(path string) (*os.File, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return f, nil
}

// fileWriter avoids handing a typed-nil *os.File to the logger.
func fileWriter(f *os.File) io.Writer {
	if f == nil {
		return nil
	}
	return f
}
