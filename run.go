package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/epalmerini/rabbitlog/internal/collector"
	"github.com/epalmerini/rabbitlog/internal/config"
	"github.com/epalmerini/rabbitlog/internal/console"
	"github.com/epalmerini/rabbitlog/internal/metrics"
	"github.com/epalmerini/rabbitlog/internal/rabbitmq"
	"github.com/epalmerini/rabbitlog/internal/xdg"
)

func newLogger(w io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}).
		Level(level).
		With().Timestamp().Logger()
}

// loadConfig resolves the runtime config from config.toml, the environment
// and the command-line flags of c.
func loadConfig(c *cli.Context) (config.Config, error) {
	configDir := c.String("config-dir")
	if configDir == "" {
		dir, err := xdg.ConfigDir()
		if err != nil {
			return config.Config{}, fmt.Errorf("resolve config directory: %w", err)
		}
		configDir = dir
	}

	fileCfg, err := config.LoadFileConfig(configDir)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}

	cfg, err := fileCfg.Resolve(c.String("profile"))
	if err != nil {
		if errors.Is(err, config.ErrUnknownProfile) {
			return config.Config{}, fmt.Errorf("%w (available: %v)", err, fileCfg.ProfileNames())
		}
		return config.Config{}, err
	}

	return cfg.WithOverrides(config.Overrides{
		LogFile:     c.String("log-file"),
		MetricsAddr: c.String("metrics-addr"),
		Verbose:     c.Bool("verbose"),
	}), nil
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := newLogger(os.Stderr, cfg.Verbose)

	log.Info().
		Str("broker", cfg.Broker.Addr()).
		Str("user", cfg.Broker.Username).
		Str("vhost", cfg.Broker.VHost).
		Str("exchange", cfg.Topology.Exchange).
		Str("queue", cfg.Topology.Queue).
		Str("log_file", cfg.LogFile).
		Msg("starting log collector")

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	stopOnDone(ctx, stop)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(registry)
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	col := collector.New(cfg, console.NewPrinter(os.Stdout), m, log)

	if cfg.MetricsAddr == "" {
		return col.Run(ctx)
	}

	metricsServer := metrics.NewServer(cfg.MetricsAddr, registry)
	metricsErrCh := metricsServer.Start()
	log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return col.Run(gctx)
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-metricsErrCh:
			return err
		}
	})
	err = g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if shutdownErr := metricsServer.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Warn().Err(shutdownErr).Msg("metrics server shutdown error")
	}
	return err
}

// stopOnDone calls stop as soon as ctx is done. Once the first signal has
// been caught the default handling is restored, so a second interrupt during
// teardown terminates the process.
func stopOnDone(ctx context.Context, stop context.CancelFunc) {
	go func() {
		<-ctx.Done()
		stop()
	}()
}

// hintFor returns a troubleshooting hint for the broker errors a user can
// fix from the command line.
func hintFor(err error) string {
	switch {
	case errors.Is(err, rabbitmq.ErrAuthentication):
		return "check RABBITMQ_USER and RABBITMQ_PASS (or the profile's username/password)"
	case errors.Is(err, rabbitmq.ErrConnection):
		return "check that RabbitMQ is running and that RABBITMQ_HOST and RABBITMQ_PORT are correct"
	default:
		return ""
	}
}
