package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/m3rciful/orderbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

// AllowedUpdates limits webhook deliveries to the update types the bot reads.
var AllowedUpdates = []string{"message"}

// WebhookOptions declares the public webhook registration.
type WebhookOptions struct {
	// URL is the full public webhook address, including the secret path.
	URL         string
	DropPending bool
}

// WebhookAPI is the part of *tele.Bot that manages the webhook.
type WebhookAPI interface {
	SetWebhook(w *tele.Webhook) error
	RemoveWebhook(dropPending ...bool) error
}

// BuildWebhook returns the webhook registration for opts.
func BuildWebhook(opts WebhookOptions) *tele.Webhook {
	return &tele.Webhook{
		AllowedUpdates: AllowedUpdates,
		DropUpdates:    opts.DropPending,
		Endpoint:       &tele.WebhookEndpoint{PublicURL: opts.URL},
	}
}

// RegisterWebhook points Telegram at the public webhook URL.
func RegisterWebhook(ctx context.Context, api WebhookAPI, opts WebhookOptions) error {
	if strings.TrimSpace(opts.URL) == "" {
		return fmt.Errorf("telegram: empty webhook url")
	}
	if err := api.SetWebhook(BuildWebhook(opts)); err != nil {
		logger.Error(ctx, "tg", "webhook.set",
			slog.String("status", "fail"),
			slog.String("err", redactToken(err.Error())),
		)
		return fmt.Errorf("telegram: set webhook: %w", err)
	}
	logger.Info(ctx, "tg", "webhook.set",
		slog.String("status", "ok"),
		slog.String("public_url", redactToken(opts.URL)),
		slog.Bool("drop_pending", opts.DropPending),
	)
	return nil
}

// DeleteWebhook removes the webhook registration.
func DeleteWebhook(ctx context.Context, api WebhookAPI, dropPending bool) error {
	if err := api.RemoveWebhook(dropPending); err != nil {
		logger.Error(ctx, "tg", "webhook.delete",
			slog.String("status", "fail"),
			slog.String("err", redactToken(err.Error())),
		)
		return fmt.Errorf("telegram: delete webhook: %w", err)
	}
	logger.Info(ctx, "tg", "webhook.delete",
		slog.String("status", "ok"),
		slog.Bool("drop_pending", dropPending),
	)
	return nil
}

var tokenRe = regexp.MustCompile(`[0-9]+:[A-Za-z0-9_-]{10,}`)

// redactToken hides bot tokens in webhook URLs and API errors.
func redactToken(s string) string {
	return tokenRe.ReplaceAllString(s, "<redacted>")
}
