package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/m3rciful/orderbot/core/logger"
	"github.com/m3rciful/orderbot/core/order"
	"github.com/m3rciful/orderbot/core/telegram/keyboard"
	"github.com/m3rciful/orderbot/core/telegram/state"

	tele "gopkg.in/telebot.v4"
)

// Deliverer sends one message with the retry policy of the sender package.
type Deliverer interface {
	Deliver(ctx context.Context, action string, to tele.Recipient, text string, opts *tele.SendOptions) error
}

// Archive stores completed orders. It returns the stored order ID.
type Archive interface {
	Save(ctx context.Context, p order.Placed) (string, error)
}

// Delivery actions, used as log and metric labels.
const (
	ActionNotify = "notify"
	ActionReply  = "reply"
)

// ConversationsConfig wires the dependencies of Conversations.
type ConversationsConfig struct {
	Store     state.Store
	Texts     order.Texts
	Deliverer Deliverer
	// Recipient receives every completed order.
	Recipient tele.Recipient
	// Archive is optional.
	Archive Archive
	Metrics *Metrics
	Now     func() time.Time
}

// Conversations is the Processor that drives the order conversation.
type Conversations struct {
	store     state.Store
	texts     order.Texts
	deliverer Deliverer
	recipient tele.Recipient
	archive   Archive
	metrics   *Metrics
	now       func() time.Time
}

// NewConversations builds the conversation processor.
func NewConversations(cfg ConversationsConfig) *Conversations {
	store := cfg.Store
	if store == nil {
		store = state.NewMemoryStore()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Conversations{
		store:     store,
		texts:     cfg.Texts.WithDefaults(),
		deliverer: cfg.Deliverer,
		recipient: cfg.Recipient,
		archive:   cfg.Archive,
		metrics:   cfg.Metrics,
		now:       now,
	}
}

// Process applies ev to the conversation of ev.Key. The new session is
// committed before any effect runs, so a failing or crashing effect never
// causes the same input to be applied twice.
func (c *Conversations) Process(ctx context.Context, ev order.Event) error {
	start := time.Now()

	current, _ := c.store.Get(ev.Key)
	res := order.Transition(current, ev, c.texts)
	ctx = logger.WithStage(ctx, string(order.StageOf(current)))

	if res.Outcome != order.OutcomeIgnored {
		c.commit(ev.Key, res.Next)
	}

	err := c.execute(ctx, ev, res)
	c.metrics.setSessions(c.store.Len())
	c.metrics.observeProcessed(string(res.Outcome), time.Since(start))
	logEventSummary(ctx, ev, current, res, start, err)
	return err
}

func (c *Conversations) commit(key order.Key, next order.Session) {
	if next == nil || next.Stage().Terminal() {
		c.store.Remove(key)
		return
	}
	c.store.Put(key, next)
}

// execute runs Notify first. When it fails the apology replaces the regular
// reply; the conversation is over either way.
func (c *Conversations) execute(ctx context.Context, ev order.Event, res order.Result) error {
	eff := res.Effects
	if eff.Empty() {
		return nil
	}

	reply := eff.Reply
	var firstErr error
	if eff.Notify != nil {
		err := c.notify(ctx, eff.Notify.Text)
		if err != nil {
			firstErr = err
			if eff.Fallback != nil {
				reply = eff.Fallback
			}
		}
		c.archiveOrder(ctx, ev, eff.Notify.Order, err == nil)
	}

	if reply != nil {
		if err := c.reply(ctx, ev.Key, reply); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *Conversations) notify(ctx context.Context, text string) error {
	if c.deliverer == nil {
		return nil
	}
	return c.deliverer.Deliver(ctx, ActionNotify, c.recipient, text, &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
	})
}

func (c *Conversations) reply(ctx context.Context, key order.Key, r *order.Reply) error {
	if c.deliverer == nil {
		return nil
	}
	opts := &tele.SendOptions{}
	if markup := keyboard.ForHint(r.Keyboard, c.texts); markup != nil {
		opts.ReplyMarkup = markup
	}
	return c.deliverer.Deliver(ctx, ActionReply, tele.ChatID(key.ChatID), r.Text, opts)
}

// archiveOrder archives a completed order. Failures are logged only.
func (c *Conversations) archiveOrder(ctx context.Context, ev order.Event, o order.Order, delivered bool) {
	if c.archive == nil {
		return
	}
	placed := order.Placed{
		Order:     o,
		ChatID:    ev.Key.ChatID,
		UserID:    ev.Key.UserID,
		UpdateID:  ev.UpdateID,
		Delivered: delivered,
		PlacedAt:  c.now(),
	}
	id, err := c.archive.Save(ctx, placed)
	if err != nil {
		logger.Error(ctx, "orders", "order.archive",
			slog.String("status", "fail"),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		return
	}
	logger.Info(ctx, "orders", "order.archive",
		slog.String("status", "ok"),
		slog.String("order_id", id),
		slog.Bool("delivered", delivered),
	)
}
