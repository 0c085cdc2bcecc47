package logger

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"log/slog"
)

func newTestHandler(buf *bytes.Buffer, format logFormat) (*structuredHandler, *asyncWriter) {
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	return newStructuredHandler(handlerConfig{
		level:    slog.LevelDebug,
		writer:   aw,
		format:   format,
		keyOrder: append([]string(nil), defaultKeyOrder...),
	}), aw
}

func drain(t *testing.T, aw *asyncWriter) {
	t.Helper()
	if err := aw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestStructuredHandlerKVOrder(t *testing.T) {
	buf := &bytes.Buffer{}
	handler, aw := newTestHandler(buf, formatKV)
	ctx := WithRID(Background(), "rid-123")
	ctx = WithUpdateMeta(ctx, 42, 7, 9)
	ctx = WithStage(ctx, "awaiting_phone")

	log := slog.New(handler).With("component", "dispatch")
	LogEvent(ctx, log, slog.LevelInfo, "event.applied",
		slog.String("status", "ok"),
		slog.String("cause", "unit"),
	)
	drain(t, aw)

	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("expected log line")
	}
	tokens := strings.Split(line, " ")
	if len(tokens) < 6 {
		t.Fatalf("unexpected token count: %d (%s)", len(tokens), line)
	}
	expected := []string{"ts=", "level=INFO", "component=dispatch", "event=event.applied", "status=ok", "rid=rid-123"}
	for i, prefix := range expected {
		if !strings.HasPrefix(tokens[i], prefix) {
			t.Fatalf("token %d = %s, expected prefix %s", i, tokens[i], prefix)
		}
	}
	if !strings.Contains(line, "stage=awaiting_phone") {
		t.Fatalf("expected stage from context, got %s", line)
	}
}

func TestStructuredHandlerJSONOrder(t *testing.T) {
	buf := &bytes.Buffer{}
	handler, aw := newTestHandler(buf, formatJSON)
	ctx := WithRID(Background(), "rid-json")
	ctx = WithUpdateMeta(ctx, 11, 22, 33)

	log := slog.New(handler).With("component", "tg.sender")
	LogEvent(ctx, log, slog.LevelError, "send.fail",
		slog.String("status", "fail"),
		slog.String("err", "boom"),
		slog.String("err_code", "TEST_FAIL"),
	)
	drain(t, aw)

	line := strings.TrimSpace(buf.String())
	if !strings.HasPrefix(line, "{") {
		t.Fatalf("expected JSON, got %s", line)
	}
	prefixes := []string{`{"ts":`, `"level":"ERROR"`, `"component":"tg.sender"`, `"event":"send.fail"`, `"status":"fail"`, `"rid":"rid-json"`}
	pos := -1
	for _, pref := range prefixes {
		idx := strings.Index(line, pref)
		if idx == -1 || idx < pos {
			t.Fatalf("prefix %s not found in order within %s", pref, line)
		}
		pos = idx
	}
}

func TestStructuredHandlerCompactRID(t *testing.T) {
	buf := &bytes.Buffer{}
	handler, aw := newTestHandler(buf, formatKV)
	rawRID := "123:456:789"
	ctx := WithRID(Background(), rawRID)
	log := slog.New(handler).With("component", "app")
	LogEvent(ctx, log, slog.LevelInfo, "rid.test",
		slog.String("status", "ok"),
	)
	drain(t, aw)
	line := strings.TrimSpace(buf.String())
	if !strings.Contains(line, "rid="+CompactRID(rawRID)) {
		t.Fatalf("expected compact rid, got %s", line)
	}
	if strings.Contains(line, "rid_full=") {
		t.Fatalf("rid_full should be omitted in KV output, got %s", line)
	}
}

func TestStructuredHandlerCompactRIDJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	handler, aw := newTestHandler(buf, formatJSON)
	rawRID := "12:34:56"
	ctx := WithRID(Background(), rawRID)
	log := slog.New(handler).With("component", "app")
	LogEvent(ctx, log, slog.LevelInfo, "rid.test",
		slog.String("status", "ok"),
	)
	drain(t, aw)
	line := strings.TrimSpace(buf.String())
	if !strings.Contains(line, `"rid":"`+CompactRID(rawRID)+`"`) {
		t.Fatalf("expected compact rid in JSON, got %s", line)
	}
	if !strings.Contains(line, `"rid_full":"`+rawRID+`"`) {
		t.Fatalf("expected rid_full in JSON output, got %s", line)
	}
	if !strings.Contains(line, `"ts_unix_nano"`) {
		t.Fatalf("expected ts_unix_nano to be present in JSON output, got %s", line)
	}
}

func TestStructuredHandlerNormalizesDurationsAndOutcome(t *testing.T) {
	buf := &bytes.Buffer{}
	handler, aw := newTestHandler(buf, formatKV)
	log := slog.New(handler).With("component", "dispatch")
	LogEvent(Background(), log, slog.LevelInfo, "event.applied",
		slog.Duration("duration", 1500*time.Microsecond),
		slog.Duration("queue", 20*time.Millisecond),
		slog.String("outcome", "invalid_phone"),
	)
	LogEvent(Background(), log, slog.LevelInfo, "event.applied",
		slog.String("outcome", "bogus"),
	)
	drain(t, aw)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	for _, want := range []string{"duration_ms=2", "queue_ms=20", "outcome=invalid_phone"} {
		if !strings.Contains(lines[0], want) {
			t.Fatalf("expected %s in %s", want, lines[0])
		}
	}
	if strings.Contains(lines[1], "outcome=") {
		t.Fatalf("unknown outcome should be dropped: %s", lines[1])
	}
}

func TestStructuredHandlerRedactsSecrets(t *testing.T) {
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 16)
	r := &redactor{}
	r.add("123456:ABCdefGhIJKlmnoPQRstuVWXyz")
	r.add("short")
	handler := newStructuredHandler(handlerConfig{
		level:  slog.LevelDebug,
		writer: aw,
		format: formatKV,
		redact: r,
	})
	LogEvent(Background(), slog.New(handler), slog.LevelWarn, "send.fail",
		slog.String("err", `Post "https://api.telegram.org/bot123456:ABCdefGhIJKlmnoPQRstuVWXyz/sendMessage": timeout`),
		slog.String("path", "short"),
	)
	drain(t, aw)

	line := buf.String()
	if strings.Contains(line, "ABCdefGhIJKlmnoPQRstuVWXyz") {
		t.Fatalf("token leaked: %s", line)
	}
	if !strings.Contains(line, "<redacted>") {
		t.Fatalf("expected redaction marker: %s", line)
	}
	if !strings.Contains(line, "path=short") {
		t.Fatalf("short values must not be treated as secrets: %s", line)
	}
}

func TestContextMetaIsCopied(t *testing.T) {
	parent := WithUpdateMeta(WithRID(Background(), "1:2:3"), 1, 3, 2)
	child := WithStage(parent, "awaiting_name")

	if StageFrom(parent) != "" {
		t.Fatal("stage leaked into parent context")
	}
	if RIDFrom(child) != "1:2:3" || UpdateIDFrom(child) != 1 || UserIDFrom(child) != 3 || ChatIDFrom(child) != 2 {
		t.Fatal("child lost parent metadata")
	}
	if WithStage(parent, "") != parent {
		t.Fatal("empty stage must return the same context")
	}
}

func TestCompactRIDKeepsGroupSign(t *testing.T) {
	if got := CompactRID("100:-1001234:42"); got != "2s.-lgk2.16" {
		t.Fatalf("CompactRID = %q", got)
	}
	if got := CompactRID("not-a-rid"); got != "not-a-rid" {
		t.Fatalf("CompactRID = %q", got)
	}
}

func TestSanitizeLimit(t *testing.T) {
	if got := SanitizeLimit("Ан\x00на\u200b\tok\x7f", 5); got != "Анна\t" {
		t.Fatalf("SanitizeLimit = %q", got)
	}
}

type blockingSink struct {
	entered chan struct{}
	once    sync.Once
	release chan struct{}
	buf     bytes.Buffer
}

func (b *blockingSink) Write(p []byte) (int, error) {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return b.buf.Write(p)
}

func TestAsyncWriterDropsWhenFull(t *testing.T) {
	sink := &blockingSink{entered: make(chan struct{}), release: make(chan struct{})}
	aw := newAsyncWriter([]io.Writer{sink}, 2)

	if err := aw.Write([]byte("line\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	// The first line is flushed on its own and parks the writer goroutine.
	<-sink.entered
	for i := 0; i < 49; i++ {
		if err := aw.Write([]byte("line\n")); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if got := aw.Dropped(); got != 47 {
		t.Fatalf("dropped %d, want 47", got)
	}
	close(sink.release)
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if written := strings.Count(sink.buf.String(), "line\n"); written != 3 {
		t.Fatalf("written %d, want 3", written)
	}
	if err := aw.Write([]byte("late\n")); err == nil {
		t.Fatal("write after close must fail")
	}
}
