package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/m3rciful/orderbot/core/logger"
	"github.com/m3rciful/orderbot/core/order"
	"github.com/m3rciful/orderbot/core/telegram/sender"
)

func logEventSummary(ctx context.Context, ev order.Event, prev order.Session, res order.Result, start time.Time, err error) {
	status := "ok"
	switch {
	case err != nil:
		status = "fail"
	case res.Outcome == order.OutcomeIgnored:
		status = "skip"
	}

	attrs := []slog.Attr{
		slog.String("status", status),
		slog.String("kind", string(ev.Kind)),
		slog.String("next_stage", string(order.StageOf(res.Next))),
		slog.String("outcome", string(res.Outcome)),
		slog.Int64("duration_ms", logger.RoundMS(time.Since(start)).Milliseconds()),
	}
	if res.Outcome == order.OutcomeCancelled {
		attrs = append(attrs, slog.Int("form_fields", filledFields(order.FormOf(prev))))
	}
	if !ev.ReceivedAt.IsZero() {
		attrs = append(attrs, slog.Int64("elapsed_ms", logger.RoundMS(time.Since(ev.ReceivedAt)).Milliseconds()))
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", deriveErrorCode(err)),
		)
	}
	logger.LogEvent(ctx, logger.Component("dispatch"), slog.LevelInfo, "event.handled", attrs...)
}

// filledFields counts the answers a user gave before leaving the form.
func filledFields(o order.Order) int {
	n := 0
	for _, v := range []string{o.Name, o.Phone, o.Comment} {
		if v != "" {
			n++
		}
	}
	return n
}

func deriveErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var derr *sender.DeliveryError
	if errors.As(err, &derr) {
		code := derr.Action + "_" + derr.Kind
		if derr.Permanent {
			code += "_permanent"
		}
		return strings.ToUpper(code)
	}
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t != nil && t.Name() != "" {
		return strings.ToUpper(strings.ReplaceAll(t.Name(), " ", "_"))
	}
	return "UNKNOWN_ERROR"
}
