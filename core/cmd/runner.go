package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m3rciful/orderbot/core/bootstrap"
	coreconfig "github.com/m3rciful/orderbot/core/config"
	"github.com/m3rciful/orderbot/core/logger"
	coretelegram "github.com/m3rciful/orderbot/core/telegram"
	"github.com/m3rciful/orderbot/core/telegram/commands"
)

// ConfigEnvVar names the environment variable holding the optional YAML path.
const ConfigEnvVar = "CONFIG_PATH"

// Options describe how to load configuration, bootstrap the app, and run the bot.
type Options struct {
	// ConfigPath takes precedence over ConfigEnvVar. Both may be empty, in
	// which case configuration comes from the environment only.
	ConfigPath string

	LoadConfig     func(path string) (*coreconfig.Config, error)
	Bootstrap      func(ctx context.Context, opts bootstrap.Options) (*bootstrap.Result, error)
	ShutdownLogger func() error
	RunTelegram    func(ctx context.Context, opts coretelegram.RunOptions) error

	// Signals overrides the shutdown signals. Defaults to SIGINT and SIGTERM.
	Signals []os.Signal
}

// ResolveConfigPath returns path, or the value of ConfigEnvVar when path is empty.
func ResolveConfigPath(path string) string {
	if path != "" {
		return path
	}
	return os.Getenv(ConfigEnvVar)
}

// Run loads configuration, bootstraps infrastructure, and serves the bot
// until a shutdown signal arrives.
func Run(opts Options) error {
	loadConfig := opts.LoadConfig
	if loadConfig == nil {
		loadConfig = coreconfig.Load
	}
	boot := opts.Bootstrap
	if boot == nil {
		boot = bootstrap.Run
	}

	signals := opts.Signals
	if len(signals) == 0 {
		signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	ctx, cancel := signal.NotifyContext(context.Background(), signals...)
	defer cancel()

	startedAt := time.Now()
	cfgPath := ResolveConfigPath(opts.ConfigPath)
	if cfgPath != "" {
		log.Printf("loading config: %s", cfgPath)
	}
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("cmd: failed to load config: %w", err)
	}

	res, err := boot(ctx, bootstrap.Options{Config: cfg})
	if err != nil {
		return fmt.Errorf("cmd: bootstrap failed: %w", err)
	}

	shutdownLogger := opts.ShutdownLogger
	if shutdownLogger == nil {
		shutdownLogger = logger.Shutdown
	}
	defer func() {
		if err := shutdownLogger(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()
	defer func() {
		if err := res.Close(); err != nil {
			logger.Warn(logger.Background(), "db", "db.close",
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
		}
	}()

	runOpts := coretelegram.RunOptions{
		Config:   cfg,
		Commands: commands.Default(),
		Archive:  res.Archive,
		OnStart: func(ctx context.Context, rt coretelegram.Runtime) error {
			logger.Info(ctx, "app", "ready",
				slog.String("status", "ok"),
				slog.String("listen", cfg.ListenAddr()),
				slog.Bool("archive", res.Archive != nil),
				slog.Duration("startup_duration", logger.RoundMS(time.Since(startedAt))),
			)
			return nil
		},
		OnStop: func(ctx context.Context, rt coretelegram.Runtime) error {
			attrs := []slog.Attr{slog.Int("sessions", rt.Store.Len())}
			if rt.Deliverer != nil {
				attrs = append(attrs, slog.Uint64("delivery_failures", rt.Deliverer.ErrorCount()))
			}
			logger.Info(ctx, "app", "shutdown", attrs...)
			return nil
		},
	}

	run := opts.RunTelegram
	if run == nil {
		run = coretelegram.RunTelegram
	}
	return run(ctx, runOpts)
}
