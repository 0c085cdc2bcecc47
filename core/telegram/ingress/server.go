package ingress

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	metricsprom "github.com/slok/go-http-metrics/metrics/prometheus"
	httpmetrics "github.com/slok/go-http-metrics/middleware"
	"github.com/slok/go-http-metrics/middleware/std"

	"github.com/m3rciful/orderbot/core/logger"
	"github.com/m3rciful/orderbot/core/order"
	"github.com/m3rciful/orderbot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

// MaxBodyBytes bounds the size of one webhook payload.
const MaxBodyBytes = 1 << 20

// Submitter accepts decoded events without blocking.
type Submitter interface {
	Submit(ctx context.Context, ev order.Event) error
}

// Options configures the ingress server.
type Options struct {
	// Secret is the webhook path segment, the bot token.
	Secret      string
	HealthPath  string
	MetricsPath string
	Commands    *commands.Registry

	// Registerer receives the HTTP metrics; Gatherer backs MetricsPath.
	// Both are optional.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer

	DedupSize int
	DedupTTL  time.Duration
}

// Server is the HTTP front of the bot: the Telegram webhook, a health probe
// and the metrics endpoint.
type Server struct {
	sub     Submitter
	opts    Options
	dedup   *deduper
	handler http.Handler
}

// New builds the ingress router.
func New(sub Submitter, opts Options) (*Server, error) {
	if sub == nil {
		return nil, errors.New("ingress: nil submitter")
	}
	if opts.Secret == "" {
		return nil, errors.New("ingress: empty webhook secret")
	}
	if opts.HealthPath == "" {
		opts.HealthPath = "/health"
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}
	if opts.Commands == nil {
		opts.Commands = commands.Default()
	}
	dedup, err := newDeduper(opts.DedupSize, opts.DedupTTL)
	if err != nil {
		return nil, err
	}

	s := &Server{sub: sub, opts: opts, dedup: dedup}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	instrument := func(id string, h http.HandlerFunc) http.Handler { return h }
	if s.opts.Registerer != nil {
		mdlw := httpmetrics.New(httpmetrics.Config{
			Recorder: metricsprom.NewRecorder(metricsprom.Config{Registry: s.opts.Registerer}),
		})
		// Fixed handler IDs keep the secret path out of metric labels.
		instrument = func(id string, h http.HandlerFunc) http.Handler {
			return std.Handler(id, mdlw, h)
		}
	}

	r.Method(http.MethodGet, s.opts.HealthPath, instrument("health", s.handleHealth))
	r.Method(http.MethodHead, s.opts.HealthPath, instrument("health", s.handleHealth))
	if s.opts.Gatherer != nil {
		r.Method(http.MethodGet, s.opts.MetricsPath, promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}
	r.Method(http.MethodPost, "/{secret}", instrument("webhook", s.handleWebhook))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = io.WriteString(w, "OK")
	}
}

func (s *Server) authorized(r *http.Request) bool {
	got := chi.URLParam(r, "secret")
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.Secret)) == 1
}

// handleWebhook acknowledges every authorized request with 200 so Telegram
// never redelivers an update the bot already decided about.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.NotFound(w, r)
		return
	}
	start := time.Now()
	defer ack(w)

	upd, err := decodeUpdate(w, r)
	if err != nil {
		logger.Warn(r.Context(), "ingress", "update.decode",
			slog.String("status", "fail"),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("cause", "decode"),
		)
		return
	}

	ev, skip := Decode(upd, s.opts.Commands)
	ctx := logger.WithRID(r.Context(), logger.BuildRID(upd.ID, ev.Key.ChatID, ev.Key.UserID))
	ctx = logger.WithUpdateMeta(ctx, upd.ID, ev.Key.UserID, ev.Key.ChatID)

	if s.dedup.isDuplicate(upd.ID) {
		logger.Debug(ctx, "ingress", "update.skip", slog.String("status", "duplicate"))
		return
	}
	if skip != "" {
		logger.Debug(ctx, "ingress", "update.skip",
			slog.String("status", "skip"),
			slog.String("cause", skip),
		)
		return
	}

	ev.ReceivedAt = start
	if err := s.sub.Submit(ctx, ev); err != nil {
		logger.Warn(ctx, "ingress", "update.submit",
			slog.String("status", "rejected"),
			slog.String("kind", string(ev.Kind)),
			slog.String("err", err.Error()),
		)
		return
	}
	logger.Debug(ctx, "ingress", "update.accept",
		slog.String("status", "ok"),
		slog.String("kind", string(ev.Kind)),
		slog.Duration("duration", time.Since(start)),
	)
}

func decodeUpdate(w http.ResponseWriter, r *http.Request) (tele.Update, error) {
	var upd tele.Update
	body := http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(&upd); err != nil {
		return tele.Update{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return upd, nil
}

func ack(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "ok")
}

// Run serves on addr until ctx is done, then shuts down gracefully within
// shutdownTimeout.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		err := srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()
	logger.Info(ctx, "ingress", "server.start",
		slog.String("listen", addr),
		slog.String("status", "ok"),
	)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ingress: listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ingress: shutdown: %w", err)
	}
	logger.Info(ctx, "ingress", "server.stop", slog.String("status", "ok"))
	return <-errCh
}
