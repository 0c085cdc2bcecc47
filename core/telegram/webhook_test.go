package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/m3rciful/orderbot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

type fakeBotAPI struct {
	webhook  *tele.Webhook
	removed  []bool
	commands []interface{}
	err      error
}

func (f *fakeBotAPI) SetWebhook(w *tele.Webhook) error {
	if f.err != nil {
		return f.err
	}
	f.webhook = w
	return nil
}

func (f *fakeBotAPI) RemoveWebhook(dropPending ...bool) error {
	if f.err != nil {
		return f.err
	}
	f.removed = append(f.removed, dropPending...)
	return nil
}

func (f *fakeBotAPI) SetCommands(opts ...interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.commands = opts
	return nil
}

func TestRegisterWebhook(t *testing.T) {
	api := &fakeBotAPI{}
	url := "https://cakes.example.com/123456:ABCDEFGHIJKLMNOP"
	if err := RegisterWebhook(context.Background(), api, WebhookOptions{URL: url, DropPending: true}); err != nil {
		t.Fatalf("RegisterWebhook: %v", err)
	}
	if api.webhook == nil || api.webhook.Endpoint.PublicURL != url {
		t.Fatalf("unexpected webhook %+v", api.webhook)
	}
	if !api.webhook.DropUpdates {
		t.Fatal("expected pending updates to be dropped")
	}
	if len(api.webhook.AllowedUpdates) != 1 || api.webhook.AllowedUpdates[0] != "message" {
		t.Fatalf("unexpected allowed updates %v", api.webhook.AllowedUpdates)
	}
}

func TestRegisterWebhookErrors(t *testing.T) {
	if err := RegisterWebhook(context.Background(), &fakeBotAPI{}, WebhookOptions{}); err == nil {
		t.Fatal("expected error for empty url")
	}
	api := &fakeBotAPI{err: errors.New("bad request")}
	if err := RegisterWebhook(context.Background(), api, WebhookOptions{URL: "https://x/1:y"}); err == nil {
		t.Fatal("expected error from api")
	}
}

func TestDeleteWebhook(t *testing.T) {
	api := &fakeBotAPI{}
	if err := DeleteWebhook(context.Background(), api, true); err != nil {
		t.Fatalf("DeleteWebhook: %v", err)
	}
	if len(api.removed) != 1 || !api.removed[0] {
		t.Fatalf("unexpected remove calls %v", api.removed)
	}
}

func TestInitBotCommands(t *testing.T) {
	api := &fakeBotAPI{}
	if err := InitBotCommands(context.Background(), api, commands.Default()); err != nil {
		t.Fatalf("InitBotCommands: %v", err)
	}
	if len(api.commands) != 1 {
		t.Fatalf("expected one argument, got %d", len(api.commands))
	}
	list, ok := api.commands[0].([]tele.Command)
	if !ok || len(list) != 2 {
		t.Fatalf("unexpected commands %#v", api.commands[0])
	}
}

func TestRedactToken(t *testing.T) {
	in := `Post "https://api.telegram.org/bot123456:ABCDEFGHIJKLMNOP/setWebhook": EOF`
	out := redactToken(in)
	if strings.Contains(out, "ABCDEFGHIJKLMNOP") {
		t.Fatalf("token leaked: %s", out)
	}
	if redactToken("https://host:8443/path") != "https://host:8443/path" {
		t.Fatal("port must not be redacted")
	}
}
