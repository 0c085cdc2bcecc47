package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"

	"github.com/m3rciful/orderbot/core/buildinfo"
	coreconfig "github.com/m3rciful/orderbot/core/config"
)

var (
	initOnce sync.Once
	closeMu  sync.Mutex
	closed   bool

	logWriter  *asyncWriter
	logClosers []io.Closer

	levelVar slog.LevelVar
	secrets  redactor

	debugSampler  = newRatioSampler(1, 50)
	traceOverride bool

	// L is the base logger. Prefer the context-first helpers below.
	L = slog.Default()
)

// settings is the resolved logging section.
type settings struct {
	format     logFormat
	level      slog.Level
	keyOrder   []string
	profile    string
	filePath   string
	queueLines int
	sampleNum  int
	sampleDen  int
}

func settingsFrom(cfg *coreconfig.Config) settings {
	s := settings{
		format:    formatJSON,
		level:     slog.LevelInfo,
		keyOrder:  slices.Clone(defaultKeyOrder),
		sampleNum: 1,
		sampleDen: 50,
	}
	if cfg == nil {
		return s
	}
	lc := cfg.Logging

	s.profile = strings.ToLower(strings.TrimSpace(lc.Profile))
	if s.profile == "" {
		s.profile = "prod"
	}
	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		s.format = formatKV
	case "json":
	default:
		if s.profile == "debug" || s.profile == "dev" {
			s.format = formatKV
		}
	}
	switch strings.ToLower(strings.TrimSpace(lc.Level)) {
	case "debug":
		s.level = slog.LevelDebug
	case "warn", "warning":
		s.level = slog.LevelWarn
	case "error":
		s.level = slog.LevelError
	}
	if order := splitKeys(lc.KeysOrder); len(order) > 0 {
		s.keyOrder = order
	}
	if dir, file := strings.TrimSpace(lc.Dir), strings.TrimSpace(lc.BotFile); dir != "" && file != "" {
		s.filePath = filepath.Join(dir, file)
	}
	s.queueLines = lc.QueueLines

	if spec := strings.TrimSpace(lc.DebugSample); spec != "" {
		num, den := parseRatioSpec(spec)
		switch {
		case num == 0 && den == 0:
			s.sampleNum, s.sampleDen = 0, 0
		case num > 0 && den > 0:
			s.sampleNum, s.sampleDen = num, den
		}
	}
	return s
}

func splitKeys(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "default" {
		return nil
	}
	var keys []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// InitLogger configures the global structured logger. Only the first call
// has any effect.
func InitLogger(cfg *coreconfig.Config) error {
	initOnce.Do(func() {
		s := settingsFrom(cfg)
		levelVar.Set(s.level)
		debugSampler.Set(s.sampleNum, s.sampleDen)
		traceOverride = envFlag("TRACE") || envFlag("LOG_TRACE")
		if cfg != nil {
			RegisterSecret(cfg.Telegram.Token)
		}

		outputs := []io.Writer{os.Stdout}
		if s.filePath != "" {
			f, err := openLogFile(s.filePath)
			if err != nil {
				// A missing log file is not fatal, stdout still works.
				log.Printf("logger: %v", err)
			} else {
				outputs = append(outputs, f)
				logClosers = append(logClosers, f)
			}
		}
		logWriter = newAsyncWriter(outputs, s.queueLines)

		L = slog.New(newStructuredHandler(handlerConfig{
			level:    &levelVar,
			writer:   logWriter,
			format:   s.format,
			keyOrder: s.keyOrder,
			redact:   &secrets,
		}))
		slog.SetDefault(L)

		Info(context.Background(), "app", "startup",
			slog.String("go_version", runtime.Version()),
			slog.String("build_version", buildinfo.Version),
			slog.String("build_commit", buildinfo.Commit),
			slog.String("build_time", buildinfo.Date),
			slog.String("cfg_profile", s.profile),
		)
	})
	return nil
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

func envFlag(name string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// RegisterSecret masks secret in every string field logged from now on.
// Values shorter than eight characters are ignored.
func RegisterSecret(secret string) {
	secrets.add(secret)
}

// DroppedLines reports how many log lines were discarded under back pressure.
func DroppedLines() uint64 {
	if logWriter == nil {
		return 0
	}
	return logWriter.Dropped()
}

// Shutdown flushes buffered output and closes the file sinks. Calls after
// the first are no-ops.
func Shutdown() error {
	closeMu.Lock()
	defer closeMu.Unlock()
	if closed {
		return nil
	}
	closed = true

	var errs []error
	if logWriter != nil {
		if n := logWriter.Dropped(); n > 0 {
			log.Printf("logger: %d lines dropped under back pressure", n)
		}
		errs = append(errs, logWriter.Flush(), logWriter.Close())
	}
	for _, c := range logClosers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Background returns the root context for logs outside any update.
func Background() context.Context {
	return context.Background()
}

// LogEvent writes one event through logg, falling back to the context
// logger and then to L.
func LogEvent(ctx context.Context, logg *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	if logg == nil {
		return
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, level, "", attrs...)
}

// Component returns L scoped to a component name.
func Component(name string) *slog.Logger {
	if name = strings.TrimSpace(name); name == "" {
		return L
	}
	return L.With("component", name)
}

// Event logs under component. A logger carried by ctx wins over L.
func Event(ctx context.Context, component string, level slog.Level, event string, attrs ...slog.Attr) {
	logg := FromContext(ctx)
	if name := strings.TrimSpace(component); name != "" {
		logg = logg.With("component", name)
	}
	LogEvent(ctx, logg, level, event, attrs...)
}

// Debug logs a sampled debug event. TRACE=1 disables sampling.
func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	if !ShouldSampleDebug() {
		return
	}
	Event(ctx, component, slog.LevelDebug, event, attrs...)
}

func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelInfo, event, attrs...)
}

func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelWarn, event, attrs...)
}

func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelError, event, attrs...)
}

// ShouldSampleDebug reports whether a high-volume debug detail should be
// logged right now.
func ShouldSampleDebug() bool {
	return traceOverride || debugSampler.Allow()
}
