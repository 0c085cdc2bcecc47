package telegram

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/m3rciful/orderbot/core/logger"
	"github.com/m3rciful/orderbot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

// CommandAPI is the part of *tele.Bot that manages the command menu.
type CommandAPI interface {
	SetCommands(opts ...interface{}) error
}

// InitBotCommands sets the Telegram bot commands shown in the command menu.
func InitBotCommands(ctx context.Context, api CommandAPI, reg *commands.Registry) error {
	list := reg.ListCommands(true)
	if len(list) == 0 {
		return nil
	}
	if err := api.SetCommands(list); err != nil {
		logger.Error(ctx, "tg.wire", "register.commands",
			slog.String("status", "fail"),
			slog.String("err", redactToken(err.Error())),
		)
		return fmt.Errorf("telegram: set commands: %w", err)
	}
	logger.Info(ctx, "tg.wire", "register.commands",
		slog.String("status", "ok"),
		slog.Int("commands", len(list)),
	)
	return nil
}

var (
	_ CommandAPI = (*tele.Bot)(nil)
	_ WebhookAPI = (*tele.Bot)(nil)
)
