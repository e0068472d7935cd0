package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"bux-stream/application"
	"bux-stream/application/credential"
	"bux-stream/core/event"
	"bux-stream/infrastructure/config"
	"bux-stream/infrastructure/logging"
	"bux-stream/infrastructure/metrics"
	"bux-stream/infrastructure/repository"
	"bux-stream/infrastructure/transport"
)

type streamOptions struct {
	configPath  string
	actions     []string
	url         string
	tokenEnv    string
	archive     bool
	metricsAddr string
	logLevel    string
	quiet       bool
}

func newStreamCommand() *cobra.Command {
	opts := &streamOptions{}

	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Subscribe to real-time channels and log events",
		Example: `  buxstream stream
  buxstream stream --action portfolio.performance --action position.opened
  buxstream stream --config buxstream.yaml --archive --metrics-addr :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.resolve(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runStream(ctx, cfg, opts.quiet)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "path to YAML config file")
	cmd.Flags().StringArrayVarP(&opts.actions, "action", "a", nil, "subscription action (repeatable)")
	cmd.Flags().StringVar(&opts.url, "url", "", "real-time endpoint URL")
	cmd.Flags().StringVar(&opts.tokenEnv, "token-env", "", "environment variable holding the access token")
	cmd.Flags().BoolVar(&opts.archive, "archive", false, "archive events to MongoDB")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "do not log event payloads")

	return cmd
}

// resolve merges the config file with flags; flags win.
func (o *streamOptions) resolve(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if len(o.actions) > 0 {
		cfg.Stream.Actions = o.actions
	}
	if o.url != "" {
		cfg.Stream.URL = o.url
	}
	if o.tokenEnv != "" {
		cfg.Stream.TokenEnv = o.tokenEnv
	}
	if cmd.Flags().Changed("archive") {
		cfg.Archive.Enabled = o.archive
	}
	if o.metricsAddr != "" {
		cfg.Metrics.Addr = o.metricsAddr
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runStream(ctx context.Context, cfg *config.Config, quiet bool) error {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logger, closeLog, err := logging.Setup(&logging.Config{
		Level:      level,
		Version:    version,
		Dir:        cfg.Logging.Dir,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
		AddSource:  cfg.Logging.AddSource,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer closeLog()

	logger.Info("Starting buxstream", "actions", cfg.Stream.Actions)

	actions, err := cfg.ActionList()
	if err != nil {
		return err
	}

	collector := metrics.NewCollector()
	if cfg.Metrics.Addr != "" {
		stopMetrics := serveMetrics(cfg.Metrics.Addr, collector, logger)
		defer stopMetrics()
	}

	wsConfig := transport.DefaultWebSocketConfig()
	wsConfig.HandshakeTimeout = cfg.Stream.ConnectTimeout.Std()
	if cfg.Stream.MaxMessageSize > 0 {
		wsConfig.MaxMessageSize = cfg.Stream.MaxMessageSize
	}

	coordinator, err := application.NewCoordinator(&application.CoordinatorConfig{
		URL:            cfg.Stream.URL,
		Actions:        actions,
		Credentials:    credential.NewEnv(cfg.Stream.TokenEnv),
		DialerFactory:  func() transport.Dialer { return transport.NewWebSocketDialer(wsConfig) },
		ConnectTimeout: cfg.Stream.ConnectTimeout.Std(),
		Observer:       collector,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	coordinator.Subscribe(func(e event.StreamEvent) error {
		attrs := []any{"action", e.Action(), "index", e.Index(), "bytes", len(e.Payload())}
		if !quiet {
			attrs = append(attrs, "payload", e.Payload())
		}
		logger.Info("Event received", attrs...)
		return nil
	})

	if cfg.Archive.Enabled {
		mongoDB, err := repository.NewMongoDB(ctx, &repository.MongoDBConfig{
			URI:            cfg.Archive.URI,
			Database:       cfg.Archive.Database,
			ConnectTimeout: cfg.Archive.ConnectTimeout.Std(),
			PingTimeout:    cfg.Archive.ConnectTimeout.Std(),
		}, logger)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mongoDB.Close(closeCtx)
		}()

		archive := repository.NewMongoEventArchive(mongoDB, cfg.Archive.Collection, cfg.Archive.WriteTimeout.Std(), logger)
		if err := archive.EnsureIndexes(ctx); err != nil {
			return err
		}
		// Archive writes outlive cancellation of the stream so in-flight events are kept.
		coordinator.Subscribe(archive.Handler(context.WithoutCancel(ctx)))
	}

	err = coordinator.Run(ctx)
	logger.Info("buxstream stopped")
	return err
}

// serveMetrics starts the Prometheus endpoint and returns a shutdown function.
func serveMetrics(addr string, collector *metrics.Collector, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("Serving metrics", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
}
