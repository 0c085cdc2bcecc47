package keyboard

import (
	"github.com/m3rciful/orderbot/core/order"

	tele "gopkg.in/telebot.v4"
)

// RemoveKeyboard returns a markup that hides the keyboard.
func RemoveKeyboard() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{RemoveKeyboard: true}
}

// ReplyButtons builds a one-time reply keyboard from rows of text.
func ReplyButtons(rows ...[]string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{ResizeKeyboard: true, OneTimeKeyboard: true}
	var keyboard []tele.Row
	for _, row := range rows {
		var buttons []tele.Btn
		for _, label := range row {
			buttons = append(buttons, markup.Text(label))
		}
		keyboard = append(keyboard, markup.Row(buttons...))
	}
	markup.Reply(keyboard...)
	return markup
}

// ForHint maps a reply keyboard hint to concrete markup. It returns nil when
// the client keyboard should be left alone.
func ForHint(hint order.Keyboard, texts order.Texts) *tele.ReplyMarkup {
	switch hint {
	case order.KeyboardRemove:
		return RemoveKeyboard()
	case order.KeyboardSkipComment:
		if texts.SkipComment == "" {
			return nil
		}
		return ReplyButtons([]string{texts.SkipComment})
	}
	return nil
}
