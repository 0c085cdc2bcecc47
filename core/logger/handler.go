package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"

	timeFormatMillis = "2006-01-02T15:04:05.000Z07:00"
)

type lineWriter interface {
	Write(line []byte) error
}

type handlerConfig struct {
	level    slog.Leveler
	writer   lineWriter
	format   logFormat
	keyOrder []string
	redact   *redactor
}

// structuredHandler renders records as one flat line per event. Keys listed
// in keyOrder come first, the rest follow alphabetically.
type structuredHandler struct {
	cfg    handlerConfig
	attrs  []slog.Attr
	prefix string
}

var linePool = sync.Pool{New: func() any { return new(bytes.Buffer) }}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if cfg.keyOrder == nil {
		cfg.keyOrder = slices.Clone(defaultKeyOrder)
	}
	return &structuredHandler{cfg: cfg}
}

func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.level.Level()
}

func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.writer == nil {
		return errors.New("logger: writer not initialized")
	}

	rec := make(record, 16)
	ts := r.Time.UTC()
	rec["ts"] = ts.Truncate(time.Millisecond).Format(timeFormatMillis)
	rec["level"] = normalizeLevel(r.Level.String())

	for _, a := range h.attrs {
		h.add(rec, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.add(rec, a)
		return true
	})
	rec.fillFrom(metaFrom(ctx))
	rec.finalize(h.cfg.redact.apply(r.Message))

	if h.cfg.format == formatJSON {
		rec["ts_unix_nano"] = ts.UnixNano()
	} else {
		delete(rec, "rid_full")
	}
	keys := rec.orderedKeys(h.cfg.keyOrder)

	buf := linePool.Get().(*bytes.Buffer)
	buf.Reset()
	defer linePool.Put(buf)

	if h.cfg.format == formatJSON {
		if err := rec.writeJSON(buf, keys); err != nil {
			return err
		}
	} else {
		rec.writeKV(buf, keys)
	}
	buf.WriteByte('\n')
	return h.cfg.writer.Write(buf.Bytes())
}

func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	for _, a := range attrs {
		if h.prefix != "" {
			a.Key = h.prefix + "." + a.Key
		}
		clone.attrs = append(clone.attrs, a)
	}
	return &clone
}

func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	if clone.prefix == "" {
		clone.prefix = name
	} else {
		clone.prefix += "." + name
	}
	return &clone
}

// add flattens a (possibly grouped) attribute into rec.
func (h *structuredHandler) add(rec record, a slog.Attr) {
	key := a.Key
	if h.prefix != "" && !strings.HasPrefix(key, h.prefix+".") {
		key = h.prefix + "." + key
	}
	h.addValue(rec, key, a.Value.Resolve())
}

func (h *structuredHandler) addValue(rec record, key string, v slog.Value) {
	if v.Kind() == slog.KindGroup {
		for _, child := range v.Group() {
			childKey := child.Key
			if key != "" {
				childKey = key + "." + childKey
			}
			h.addValue(rec, childKey, child.Value.Resolve())
		}
		return
	}
	if key == "" {
		return
	}
	k, val, ok := normalizeAttr(key, v)
	if !ok {
		return
	}
	if s, isStr := val.(string); isStr {
		val = h.cfg.redact.apply(s)
	}
	rec[k] = val
}

func normalizeAttr(key string, val slog.Value) (string, any, bool) {
	switch val.Kind() {
	case slog.KindString:
		return key, strings.TrimSpace(val.String()), true
	case slog.KindBool:
		return key, val.Bool(), true
	case slog.KindInt64:
		return key, val.Int64(), true
	case slog.KindUint64:
		if u := val.Uint64(); u <= math.MaxInt64 {
			return key, int64(u), true
		}
		return key, val.Uint64(), true
	case slog.KindFloat64:
		return key, val.Float64(), true
	case slog.KindDuration:
		return durationField(key, val.Duration())
	case slog.KindTime:
		return key, val.Time().UTC().Format(time.RFC3339Nano), true
	}
	switch x := val.Any().(type) {
	case nil:
		return key, nil, false
	case error:
		return key, x.Error(), true
	case time.Duration:
		return durationField(key, x)
	case fmt.Stringer:
		return key, x.String(), true
	case string:
		return key, strings.TrimSpace(x), true
	default:
		return key, fmt.Sprint(x), true
	}
}

// durationField renders durations as rounded milliseconds under a *_ms key.
func durationField(key string, d time.Duration) (string, any, bool) {
	if !strings.HasSuffix(key, "_ms") {
		key += "_ms"
	}
	return key, RoundMS(d).Milliseconds(), true
}

// record is the flat field set of one log line.
type record map[string]any

func (rec record) str(key string) string {
	switch v := rec[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func (rec record) setDefault(key string, val any, present bool) {
	if !present {
		return
	}
	if _, ok := rec[key]; !ok {
		rec[key] = val
	}
}

// fillFrom adds the context metadata that the record does not already carry.
func (rec record) fillFrom(m eventMeta) {
	rec.setDefault("rid", m.rid, m.rid != "")
	rec.setDefault("update_id", m.updateID, m.updateID != 0)
	rec.setDefault("user_id", m.userID, m.userID != 0)
	rec.setDefault("chat_id", m.chatID, m.chatID != 0)
	rec.setDefault("stage", m.stage, m.stage != "")
}

// finalize applies the schema: compact rid, event and component fallbacks,
// enumerated status and outcome, no empty values.
func (rec record) finalize(msg string) {
	if rid := rec.str("rid"); rid != "" {
		if compact := CompactRID(rid); compact != rid {
			rec["rid_full"] = rid
			rec["rid"] = compact
		}
	}
	if rec.str("event") == "" {
		rec["event"] = orDefault(msg, "unknown")
	}
	if rec.str("component") == "" {
		rec["component"] = "app"
	}
	if s := rec.str("status"); s != "" {
		rec["status"], _ = normalizeStatus(s)
	}
	if o := rec.str("outcome"); o != "" {
		if normalized, ok := normalizeOutcome(o); ok {
			rec["outcome"] = normalized
		} else {
			delete(rec, "outcome")
		}
	}
	for k, v := range rec {
		if v == nil || v == "" {
			delete(rec, k)
		}
	}
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func (rec record) orderedKeys(order []string) []string {
	keys := make([]string, 0, len(rec))
	seen := make(map[string]bool, len(order))
	for _, k := range order {
		if _, ok := rec[k]; ok && !seen[k] {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	rest := make([]string, 0, len(rec)-len(keys))
	for k := range rec {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

func (rec record) writeJSON(buf *bytes.Buffer, keys []string) error {
	buf.WriteByte('{')
	for i, k := range keys {
		data, err := json.Marshal(rec[k])
		if err != nil {
			return fmt.Errorf("logger: encode %s: %w", k, err)
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(k))
		buf.WriteByte(':')
		buf.Write(data)
	}
	buf.WriteByte('}')
	return nil
}

func (rec record) writeKV(buf *bytes.Buffer, keys []string) {
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(k)
		buf.WriteByte('=')
		buf.WriteString(kvValue(rec[k]))
	}
}

func kvValue(v any) string {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	default:
		s = fmt.Sprint(x)
	}
	if strings.IndexFunc(s, needsQuote) >= 0 {
		return strconv.Quote(s)
	}
	return s
}

func needsQuote(r rune) bool {
	return r <= ' ' || r == '=' || r == '"'
}

// redactor masks registered secrets in string fields. Secrets are added
// at init and read on every record.
type redactor struct {
	secrets atomic.Pointer[[]string]
}

func (r *redactor) add(secret string) {
	secret = strings.TrimSpace(secret)
	if r == nil || len(secret) < 8 {
		return
	}
	for {
		old := r.secrets.Load()
		var next []string
		if old != nil {
			if slices.Contains(*old, secret) {
				return
			}
			next = append(next, *old...)
		}
		next = append(next, secret)
		if r.secrets.CompareAndSwap(old, &next) {
			return
		}
	}
}

func (r *redactor) apply(s string) string {
	if r == nil || s == "" {
		return s
	}
	list := r.secrets.Load()
	if list == nil {
		return s
	}
	for _, secret := range *list {
		s = strings.ReplaceAll(s, secret, "<redacted>")
	}
	return s
}
