package logger

import (
	"context"
	"log/slog"
)

type ctxKey struct{ name string }

var (
	metaKey   = ctxKey{"meta"}
	loggerKey = ctxKey{"logger"}
)

// eventMeta is the per-update correlation data carried in context. It is
// copied on every With* call, so values stored in a parent are never mutated.
type eventMeta struct {
	rid      string
	updateID int
	userID   int64
	chatID   int64
	stage    string
}

func metaFrom(ctx context.Context) eventMeta {
	if ctx == nil {
		return eventMeta{}
	}
	m, _ := ctx.Value(metaKey).(eventMeta)
	return m
}

func withMeta(ctx context.Context, fn func(*eventMeta)) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	m := metaFrom(ctx)
	fn(&m)
	return context.WithValue(ctx, metaKey, m)
}

// WithLogger stores the provided slog.Logger in context for propagation across layers.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey, log)
}

// FromContext extracts slog.Logger from context or returns global default.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
			return l
		}
	}
	return L
}

// WithRID attaches request correlation id into context.
func WithRID(ctx context.Context, rid string) context.Context {
	return withMeta(ctx, func(m *eventMeta) { m.rid = rid })
}

// RIDFrom extracts rid from context if present.
func RIDFrom(ctx context.Context) string { return metaFrom(ctx).rid }

// WithUpdateMeta attaches the update, sender and conversation identifiers.
func WithUpdateMeta(ctx context.Context, updateID int, userID, chatID int64) context.Context {
	return withMeta(ctx, func(m *eventMeta) {
		m.updateID = updateID
		m.userID = userID
		m.chatID = chatID
	})
}

// WithStage records the conversation stage the event was applied to.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}
	return withMeta(ctx, func(m *eventMeta) { m.stage = stage })
}

// StageFrom returns the conversation stage from context if present.
func StageFrom(ctx context.Context) string { return metaFrom(ctx).stage }

// UserIDFrom extracts the Telegram user ID from context.
func UserIDFrom(ctx context.Context) int64 { return metaFrom(ctx).userID }

// ChatIDFrom extracts the conversation chat ID from context.
func ChatIDFrom(ctx context.Context) int64 { return metaFrom(ctx).chatID }

// UpdateIDFrom extracts the Telegram update ID from context.
func UpdateIDFrom(ctx context.Context) int { return metaFrom(ctx).updateID }
