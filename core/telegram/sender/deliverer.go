package sender

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/m3rciful/orderbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

var (
	// ErrPermanent matches delivery errors that retrying cannot fix.
	ErrPermanent = errors.New("telegram sender: permanent delivery failure")

	errAttemptTimeout = errors.New("telegram sender: attempt timed out")

	tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)
)

// Messenger is the part of *tele.Bot used for outbound messages.
type Messenger interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Observer receives one call per finished delivery.
type Observer interface {
	ObserveDelivery(action, result string, attempts int)
}

// Options controls retries of a single delivery.
type Options struct {
	MaxRetries   int
	RetryBackoff time.Duration
	// AttemptTimeout bounds one Send call.
	AttemptTimeout time.Duration
	// MaxDuration bounds the time spent retrying a single delivery.
	MaxDuration time.Duration
	Observer    Observer
}

// DeliveryError describes a delivery that did not succeed.
type DeliveryError struct {
	Action    string
	Attempts  int
	Kind      string
	Permanent bool
	Err       error
}

func (e *DeliveryError) Error() string {
	msg := "telegram sender: " + e.Action + " failed"
	if e.Err != nil {
		msg += ": " + sanitizeErrorMessage(e.Err)
	}
	return msg
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrPermanent) match permanent failures.
func (e *DeliveryError) Is(target error) bool {
	return target == ErrPermanent && e.Permanent
}

// Deliverer sends messages synchronously with bounded retries.
type Deliverer struct {
	msgr Messenger
	opts Options
	errs atomic.Uint64
}

// NewDeliverer wraps msgr with sane defaults if options are zeroed.
func NewDeliverer(msgr Messenger, opts Options) *Deliverer {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Second
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 10 * time.Second
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 30 * time.Second
	}
	return &Deliverer{msgr: msgr, opts: opts}
}

// ErrorCount returns the number of failed deliveries.
func (d *Deliverer) ErrorCount() uint64 {
	return d.errs.Load()
}

// Deliver sends text to the recipient. Transient failures are retried with a
// linearly growing backoff until MaxRetries or MaxDuration is exhausted.
// The returned error is always a *DeliveryError.
func (d *Deliverer) Deliver(ctx context.Context, action string, to tele.Recipient, text string, opts *tele.SendOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	deadlineCtx, cancel := context.WithTimeout(ctx, d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	logger.Debug(ctx, "tg.sender", "send.start", sendLogAttrs(ctx, action)...)

	attempts := d.opts.MaxRetries + 1
	var (
		lastErr error
		kind    string
		attempt int
	)
attemptLoop:
	for attempt = 1; attempt <= attempts; attempt++ {
		err := d.attempt(deadlineCtx, to, text, opts)
		if err == nil {
			if attempt > 1 {
				logger.Info(ctx, "tg.sender", "send.retry.success",
					append(sendLogAttrs(ctx, action),
						slog.Int("attempt", attempt),
						slog.Int("elapsed_ms", durationToMS(time.Since(start))),
					)...,
				)
			}
			logger.Debug(ctx, "tg.sender", "send.success",
				append(sendLogAttrs(ctx, action), slog.Int("elapsed_ms", durationToMS(time.Since(start))))...,
			)
			d.observe(action, "ok", attempt)
			return nil
		}

		lastErr = err
		retryable, k := Classify(err)
		kind = k
		if !retryable || attempt == attempts {
			break
		}

		delay := d.opts.RetryBackoff * time.Duration(attempt)
		if wait := floodWait(err); wait > delay {
			delay = wait
		}
		logger.Debug(ctx, "tg.sender", "send.retry.backoff",
			append(sendLogAttrs(ctx, action),
				slog.Int("attempt", attempt),
				slog.String("error_kind", kind),
				slog.Duration("delay", delay),
			)...,
		)
		timer := time.NewTimer(delay)
		select {
		case <-deadlineCtx.Done():
			timer.Stop()
			lastErr = deadlineCtx.Err()
			kind = describe(lastErr).kind
			break attemptLoop
		case <-timer.C:
		}
	}

	d.errs.Add(1)
	derr := &DeliveryError{
		Action:    action,
		Attempts:  attempt,
		Kind:      kind,
		Permanent: isPermanent(lastErr),
		Err:       lastErr,
	}
	logSendFailure(ctx, action, derr, time.Since(start))
	result := "transient"
	if derr.Permanent {
		result = "permanent"
	}
	d.observe(action, result, attempt)
	return derr
}

// attempt runs one Send bounded by AttemptTimeout. A send that outlives the
// timeout keeps running in the background until the HTTP client gives up.
func (d *Deliverer) attempt(ctx context.Context, to tele.Recipient, text string, opts *tele.SendOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		var err error
		if opts != nil {
			_, err = d.msgr.Send(to, text, opts)
		} else {
			_, err = d.msgr.Send(to, text)
		}
		done <- err
	}()

	timer := time.NewTimer(d.opts.AttemptTimeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return errAttemptTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Deliverer) observe(action, result string, attempts int) {
	if d.opts.Observer != nil {
		d.opts.Observer.ObserveDelivery(action, result, attempts)
	}
}

func sendLogAttrs(ctx context.Context, action string) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("action", action),
		slog.String("endpoint", "sendMessage"),
	}
	if rid := logger.RIDFrom(ctx); rid != "" {
		attrs = append(attrs, slog.String("rid", rid))
	}
	if updateID := logger.UpdateIDFrom(ctx); updateID != 0 {
		attrs = append(attrs, slog.Int("update_id", updateID))
	}
	if chatID := logger.ChatIDFrom(ctx); chatID != 0 {
		attrs = append(attrs, slog.Int64("chat_id", chatID))
	}
	return attrs
}

func logSendFailure(ctx context.Context, action string, err *DeliveryError, elapsed time.Duration) {
	attrs := append(sendLogAttrs(ctx, action),
		slog.String("status", "fail"),
		slog.String("err", sanitizeErrorMessage(err.Err)),
		slog.String("error_kind", err.Kind),
		slog.Bool("retryable", !err.Permanent),
		slog.Int("attempts", err.Attempts),
		slog.Int("elapsed_ms", durationToMS(elapsed)),
	)
	logger.Error(ctx, "tg.sender", "send.fail", attrs...)
}

func durationToMS(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(logger.RoundMS(d) / time.Millisecond)
}

// sanitizeErrorMessage prevents accidental leakage of Telegram bot tokens in logs.
func sanitizeErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if msg == "" {
		return ""
	}
	return tokenRe.ReplaceAllString(msg, "bot<redacted>")
}
