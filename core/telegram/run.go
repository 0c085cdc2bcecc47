package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	coreconfig "github.com/m3rciful/orderbot/core/config"
	"github.com/m3rciful/orderbot/core/logger"
	"github.com/m3rciful/orderbot/core/telegram/commands"
	"github.com/m3rciful/orderbot/core/telegram/dispatch"
	"github.com/m3rciful/orderbot/core/telegram/ingress"
	tgsender "github.com/m3rciful/orderbot/core/telegram/sender"
	"github.com/m3rciful/orderbot/core/telegram/state"

	tele "gopkg.in/telebot.v4"
)

// Bot is the part of *tele.Bot the runtime talks to.
type Bot interface {
	tgsender.Messenger
	WebhookAPI
	CommandAPI
}

// RunOptions controls the behaviour of RunTelegram.
type RunOptions struct {
	Config   *coreconfig.Config
	Commands *commands.Registry

	// Bot overrides the Telegram client built from Config.
	Bot Bot
	// Store overrides the in-memory session store.
	Store state.Store
	// Archive receives completed orders when set.
	Archive dispatch.Archive
	// Metrics is the registry behind the metrics endpoint. A fresh registry
	// with Go and process collectors is used when nil.
	Metrics *prometheus.Registry

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime exposes runtime components to lifecycle hooks.
type Runtime struct {
	Bot       Bot
	Bridge    *dispatch.Bridge
	Deliverer *tgsender.Deliverer
	Store     state.Store
	Ingress   *ingress.Server
}

// NewBot builds the Telegram client. No updates are polled; the bot is used
// for outbound calls only.
func NewBot(cfg *coreconfig.Config) (*tele.Bot, error) {
	if cfg == nil {
		return nil, fmt.Errorf("telegram: nil config provided")
	}
	start := time.Now()
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Telegram.Token,
		Client: BuildHTTPClient(cfg.Delivery.AttemptTimeout()),
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: bot initialization failed: %s", redactToken(err.Error()))
	}
	logger.Info(logger.Background(), "tg", "bot.init",
		slog.String("status", "ok"),
		slog.Duration("duration", time.Since(start)),
	)
	return bot, nil
}

// RunTelegram composes the bot runtime and serves the webhook until ctx is
// done. On shutdown the HTTP server stops first, then pending conversation
// events are drained.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Config == nil {
		return fmt.Errorf("telegram: nil config provided")
	}
	cfg := opts.Config

	reg := opts.Metrics
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: "orderbot",
				Subsystem: "logger",
				Name:      "lines_dropped_total",
				Help:      "Log lines discarded while the log writer queue was full.",
			}, func() float64 { return float64(logger.DroppedLines()) }),
		)
	}
	cmds := opts.Commands
	if cmds == nil {
		cmds = commands.Default()
	}

	bot := opts.Bot
	if bot == nil {
		b, err := NewBot(cfg)
		if err != nil {
			return err
		}
		bot = b
	}

	metrics := dispatch.MustNewMetrics(reg)
	deliverer := tgsender.NewDeliverer(bot, tgsender.Options{
		MaxRetries:     cfg.Delivery.Retries(),
		RetryBackoff:   cfg.Delivery.RetryBackoff(),
		AttemptTimeout: cfg.Delivery.AttemptTimeout(),
		MaxDuration:    cfg.Delivery.MaxDuration(),
		Observer:       metrics,
	})
	store := opts.Store
	if store == nil {
		store = state.NewMemoryStore()
	}
	conversations := dispatch.NewConversations(dispatch.ConversationsConfig{
		Store:     store,
		Texts:     cfg.Texts,
		Deliverer: deliverer,
		Recipient: tele.ChatID(cfg.Telegram.RecipientID),
		Archive:   opts.Archive,
		Metrics:   metrics,
	})
	bridge := dispatch.New(conversations, dispatch.Options{
		Workers:    cfg.Dispatch.Workers,
		QueueSize:  cfg.Dispatch.QueueSize,
		KeyBacklog: cfg.Dispatch.KeyBacklog,
	}, metrics)

	srv, err := ingress.New(bridge, ingress.Options{
		Secret:      cfg.Telegram.Token,
		HealthPath:  cfg.Webhook.HealthPath,
		MetricsPath: cfg.Webhook.MetricsPath,
		Commands:    cmds,
		Registerer:  reg,
		Gatherer:    reg,
	})
	if err != nil {
		_ = bridge.Close(context.Background())
		return err
	}

	rt := Runtime{
		Bot:       bot,
		Bridge:    bridge,
		Deliverer: deliverer,
		Store:     store,
		Ingress:   srv,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx, cfg.ListenAddr(), cfg.Dispatch.ShutdownTimeout())
	})
	g.Go(func() error {
		return startup(gctx, cfg, cmds, rt, opts.OnStart)
	})
	runErr := g.Wait()

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Dispatch.ShutdownTimeout())
	defer cancel()
	closeErr := bridge.Close(drainCtx)

	var stopErr error
	if opts.OnStop != nil {
		stopErr = opts.OnStop(drainCtx, rt)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	if closeErr != nil {
		return closeErr
	}
	return stopErr
}

// startup registers the command menu and the webhook while the server is
// already listening. A failed webhook registration stops the runtime.
func startup(ctx context.Context, cfg *coreconfig.Config, cmds *commands.Registry, rt Runtime, onStart func(context.Context, Runtime) error) error {
	if err := InitBotCommands(ctx, rt.Bot, cmds); err != nil {
		logger.Warn(ctx, "tg", "startup.commands",
			slog.String("status", "skip"),
			slog.String("err", err.Error()),
		)
	}

	if cfg.Webhook.SkipRegistration {
		logger.Info(ctx, "tg", "webhook.set", slog.String("status", "skip"))
	} else if err := RegisterWebhook(ctx, rt.Bot, WebhookOptions{
		URL:         cfg.WebhookURL(),
		DropPending: cfg.Webhook.DropPending,
	}); err != nil {
		return err
	}

	if onStart != nil {
		if err := onStart(ctx, rt); err != nil {
			return err
		}
	}
	return nil
}
