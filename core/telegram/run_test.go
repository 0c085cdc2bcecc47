package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	coreconfig "github.com/m3rciful/orderbot/core/config"

	tele "gopkg.in/telebot.v4"
)

type recordingBot struct {
	fakeBotAPI
	mu   sync.Mutex
	sent map[string][]string
}

func (b *recordingBot) Send(to tele.Recipient, what interface{}, _ ...interface{}) (*tele.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sent == nil {
		b.sent = make(map[string][]string)
	}
	b.sent[to.Recipient()] = append(b.sent[to.Recipient()], fmt.Sprint(what))
	return &tele.Message{}, nil
}

func (b *recordingBot) messages(chat string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.sent[chat]...)
}

func testConfig(t *testing.T) *coreconfig.Config {
	t.Helper()
	cfg := &coreconfig.Config{}
	cfg.Telegram.Token = "123456:ABCDEFGHIJKLMNOP"
	cfg.Telegram.RecipientID = -100777
	cfg.Webhook.URL = "https://cakes.example.com"
	if err := coreconfig.Normalize(cfg); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	cfg.Webhook.Listen = "127.0.0.1"
	cfg.Webhook.Port = 0
	cfg.Delivery.RetryBackoffMS = 1
	return cfg
}

func update(id int, chatID int64, text string) string {
	return fmt.Sprintf(`{"update_id":%d,"message":{"message_id":%d,"date":1700000000,`+
		`"from":{"id":%d,"is_bot":false,"first_name":"U"},`+
		`"chat":{"id":%d,"type":"private"},"text":%q}}`, id, id, chatID, chatID, text)
}

func TestRunTelegramEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	bot := &recordingBot{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	script := []string{"/start", "Anna", "+7 999 123-45-67", "Napoleon, 1.5kg"}
	onStart := func(_ context.Context, rt Runtime) error {
		for i, text := range script {
			req := httptest.NewRequest(http.MethodPost, cfg.WebhookPath(), strings.NewReader(update(i+1, 555, text)))
			rec := httptest.NewRecorder()
			rt.Ingress.Handler().ServeHTTP(rec, req)
			if rec.Code != http.StatusOK {
				return fmt.Errorf("update %d: status %d", i, rec.Code)
			}
		}
		cancel()
		return nil
	}

	var failures uint64 = 1
	onStop := func(_ context.Context, rt Runtime) error {
		failures = rt.Deliverer.ErrorCount()
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- RunTelegram(ctx, RunOptions{Config: cfg, Bot: bot, OnStart: onStart, OnStop: onStop})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunTelegram: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("RunTelegram did not stop")
	}

	if failures != 0 {
		t.Fatalf("expected no failed deliveries, got %d", failures)
	}
	if bot.webhook == nil || bot.webhook.Endpoint.PublicURL != cfg.WebhookURL() {
		t.Fatalf("webhook not registered: %+v", bot.webhook)
	}
	if len(bot.commands) == 0 {
		t.Fatal("command menu not set")
	}

	replies := bot.messages("555")
	if len(replies) != 4 {
		t.Fatalf("expected 4 replies, got %d: %v", len(replies), replies)
	}
	if replies[3] != cfg.Texts.Confirmation {
		t.Fatalf("expected confirmation, got %q", replies[3])
	}
	notes := bot.messages("-100777")
	if len(notes) != 1 || !strings.Contains(notes[0], "Napoleon, 1.5kg") {
		t.Fatalf("unexpected notifications %v", notes)
	}
}

func TestRunTelegramWebhookFailureStops(t *testing.T) {
	cfg := testConfig(t)
	bot := &recordingBot{fakeBotAPI: fakeBotAPI{err: fmt.Errorf("telegram: Unauthorized (401)")}}

	done := make(chan error, 1)
	go func() {
		done <- RunTelegram(context.Background(), RunOptions{Config: cfg, Bot: bot})
	}()

	select {
	case err := <-done:
		if err == nil || !strings.Contains(err.Error(), "set webhook") {
			t.Fatalf("expected webhook error, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("RunTelegram did not stop")
	}
}
