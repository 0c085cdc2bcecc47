package ingress

import (
	"errors"
	"strings"

	"github.com/m3rciful/orderbot/core/order"
	"github.com/m3rciful/orderbot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

// ErrDecode marks a webhook payload that is not a Telegram update.
var ErrDecode = errors.New("ingress: malformed update")

// Skip reasons reported by Decode.
const (
	SkipNoMessage      = "no_message"
	SkipNotText        = "not_text"
	SkipChannel        = "channel"
	SkipUnknownCommand = "unknown_command"
)

// Decode maps an update to a conversation event. When the update carries
// nothing the conversation handles, it returns a non-empty skip reason.
//
// Only new messages with text are considered: edits, callbacks and media are
// skipped. /start and /cancel (optionally addressed as /cmd@botname) become
// Start and Cancel; other commands are skipped.
func Decode(upd tele.Update, reg *commands.Registry) (order.Event, string) {
	msg := upd.Message
	if msg == nil || msg.Chat == nil {
		return order.Event{}, SkipNoMessage
	}
	if msg.Chat.Type == tele.ChatChannel || msg.Chat.Type == tele.ChatChannelPrivate {
		return order.Event{}, SkipChannel
	}
	text := msg.Text
	if strings.TrimSpace(text) == "" {
		return order.Event{}, SkipNotText
	}

	ev := order.Event{
		Key:      order.Key{ChatID: msg.Chat.ID},
		Kind:     order.EventText,
		Text:     text,
		UpdateID: upd.ID,
	}
	if msg.Sender != nil {
		ev.Key.UserID = msg.Sender.ID
	}

	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "/") {
		token := strings.Fields(trimmed)[0]
		cmd, ok := reg.Lookup(token)
		if !ok {
			return order.Event{}, SkipUnknownCommand
		}
		ev.Kind = cmd.Kind
	}
	return ev, ""
}
