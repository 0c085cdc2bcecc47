package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/m3rciful/orderbot/core/buildinfo"
	corecmd "github.com/m3rciful/orderbot/core/cmd"
	coreconfig "github.com/m3rciful/orderbot/core/config"
	coretelegram "github.com/m3rciful/orderbot/core/telegram"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	serve := func(cmd *cobra.Command, _ []string) error {
		return corecmd.Run(corecmd.Options{ConfigPath: configPath})
	}

	root := &cobra.Command{
		Use:           "orderbot",
		Short:         "Telegram cake order bot",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          serve,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config (defaults to $"+corecmd.ConfigEnvVar+")")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Serve the webhook and process conversations",
			Args:  cobra.NoArgs,
			RunE:  serve,
		},
		newWebhookCommand(&configPath),
		&cobra.Command{
			Use:   "version",
			Short: "Print build information",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), buildinfo.String())
			},
		},
	)
	return root
}

func newWebhookCommand(configPath *string) *cobra.Command {
	webhook := &cobra.Command{
		Use:   "webhook",
		Short: "Manage the Telegram webhook registration",
	}

	webhook.AddCommand(&cobra.Command{
		Use:   "set",
		Short: "Register <external_url>/<token> as the webhook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBot(*configPath, func(ctx context.Context, cfg *coreconfig.Config, bot coretelegram.WebhookAPI) error {
				return coretelegram.RegisterWebhook(ctx, bot, coretelegram.WebhookOptions{
					URL:         cfg.WebhookURL(),
					DropPending: cfg.Webhook.DropPending,
				})
			})
		},
	})

	var dropPending bool
	del := &cobra.Command{
		Use:   "delete",
		Short: "Remove the webhook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBot(*configPath, func(ctx context.Context, _ *coreconfig.Config, bot coretelegram.WebhookAPI) error {
				return coretelegram.DeleteWebhook(ctx, bot, dropPending)
			})
		},
	}
	del.Flags().BoolVar(&dropPending, "drop-pending", false, "drop updates queued on the Telegram side")
	webhook.AddCommand(del)

	return webhook
}

func withBot(configPath string, fn func(context.Context, *coreconfig.Config, coretelegram.WebhookAPI) error) error {
	cfg, err := coreconfig.Load(corecmd.ResolveConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	bot, err := coretelegram.NewBot(cfg)
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return fn(ctx, cfg, bot)
}
