package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/m3rciful/orderbot/core/logger"
	"github.com/m3rciful/orderbot/core/order"
)

var (
	// ErrClosed is returned by Submit after Close was called.
	ErrClosed = errors.New("dispatch: bridge closed")
	// ErrQueueFull indicates the bridge holds QueueSize pending events.
	ErrQueueFull = errors.New("dispatch: queue full")
	// ErrKeyBacklog refuses a Start while its conversation already holds
	// KeyBacklog pending events.
	ErrKeyBacklog = errors.New("dispatch: conversation backlog full")
)

// Processor handles one event at a time for a given key.
type Processor interface {
	Process(ctx context.Context, ev order.Event) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, ev order.Event) error

// Process calls f(ctx, ev).
func (f ProcessorFunc) Process(ctx context.Context, ev order.Event) error {
	return f(ctx, ev)
}

// Options controls the size of the bridge.
type Options struct {
	Workers int
	// QueueSize bounds the number of pending events across all keys.
	QueueSize int
	// KeyBacklog is the number of pending events of one key above which a
	// new Start is refused. Text and Cancel answer a conversation in
	// progress and are only bounded by QueueSize.
	KeyBacklog int
}

type queued struct {
	ev       order.Event
	enqueued time.Time
}

type keyQueue struct {
	events []queued
	// scheduled is set while the key sits in ready or is held by a worker.
	scheduled bool
}

// Bridge hands decoded events to a fixed worker pool. Events of the same key
// are processed one at a time in submission order; distinct keys proceed in
// parallel.
type Bridge struct {
	proc    Processor
	opts    Options
	metrics *Metrics

	mu          sync.Mutex
	queues      map[order.Key]*keyQueue
	pending     int
	closed      bool
	readyClosed bool
	// ready holds keys with pending events. Its capacity equals QueueSize
	// and every key in it has at least one pending event, so sends never
	// block.
	ready chan order.Key

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New starts a bridge with sane defaults if options are zeroed.
func New(proc Processor, opts Options, metrics *Metrics) *Bridge {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.KeyBacklog <= 0 {
		opts.KeyBacklog = 16
	}
	if opts.KeyBacklog > opts.QueueSize {
		opts.KeyBacklog = opts.QueueSize
	}

	base, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		proc:    proc,
		opts:    opts,
		metrics: metrics,
		queues:  make(map[order.Key]*keyQueue),
		ready:   make(chan order.Key, opts.QueueSize),
		base:    base,
		cancel:  cancel,
	}
	for i := 0; i < opts.Workers; i++ {
		b.wg.Add(1)
		go b.worker()
	}
	logger.Info(logger.Background(), "dispatch", "bridge.start",
		slog.Int("workers", opts.Workers),
		slog.Int("pending", opts.QueueSize),
		slog.Int("backlog", opts.KeyBacklog),
	)
	return b
}

// Submit enqueues ev without blocking. ctx is used for logging only; the
// event is processed under the bridge's own context.
func (b *Bridge) Submit(ctx context.Context, ev order.Event) error {
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now()
	}

	b.mu.Lock()
	err := b.enqueueLocked(ev)
	pending := b.pending
	b.mu.Unlock()

	b.metrics.setPending(pending)
	if err != nil {
		reason := rejectReason(err)
		b.metrics.incRejected(reason)
		logger.Warn(ctx, "dispatch", "submit.rejected",
			slog.String("status", "rejected"),
			slog.String("kind", string(ev.Kind)),
			slog.String("cause", reason),
			slog.Int("pending", pending),
		)
		return err
	}
	b.metrics.incSubmitted(string(ev.Kind))
	return nil
}

func (b *Bridge) enqueueLocked(ev order.Event) error {
	if b.closed {
		return ErrClosed
	}
	if b.pending >= b.opts.QueueSize {
		return ErrQueueFull
	}
	q := b.queues[ev.Key]
	if q == nil {
		q = &keyQueue{}
		b.queues[ev.Key] = q
	}
	if ev.Kind == order.EventStart && len(q.events) >= b.opts.KeyBacklog {
		return ErrKeyBacklog
	}
	q.events = append(q.events, queued{ev: ev, enqueued: time.Now()})
	b.pending++
	if !q.scheduled {
		q.scheduled = true
		b.ready <- ev.Key
	}
	return nil
}

// Pending returns the number of events not yet picked up by a worker.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending
}

// Close stops accepting events and waits until every pending event has been
// processed. When ctx expires first, events still queued are dropped and the
// context of in-flight processing is cancelled.
func (b *Bridge) Close(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	pending := b.pending
	b.closeReadyLocked()
	b.mu.Unlock()

	logger.Info(ctx, "dispatch", "bridge.drain", slog.Int("pending", pending))

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.cancel()
		logger.Info(ctx, "dispatch", "bridge.stop", slog.String("status", "ok"))
		return nil
	case <-ctx.Done():
	}

	b.mu.Lock()
	dropped := b.pending
	for _, q := range b.queues {
		for i := range q.events {
			q.events[i] = queued{}
		}
		q.events = q.events[:0]
	}
	b.pending = 0
	b.closeReadyLocked()
	b.mu.Unlock()
	b.cancel()
	b.metrics.setPending(0)

	logger.Warn(ctx, "dispatch", "bridge.stop",
		slog.String("status", "fail"),
		slog.String("cause", "drain_timeout"),
		slog.Int("pending", dropped),
	)
	return fmt.Errorf("dispatch: close: %w", ctx.Err())
}

// closeReadyLocked closes ready once no more keys can be scheduled. A worker
// re-schedules a key only while it has pending events, and Submit is refused
// after close, so pending == 0 means no further sends.
func (b *Bridge) closeReadyLocked() {
	if b.closed && b.pending == 0 && !b.readyClosed {
		b.readyClosed = true
		close(b.ready)
	}
}

func (b *Bridge) worker() {
	defer b.wg.Done()
	for key := range b.ready {
		item, ok := b.next(key)
		if !ok {
			continue
		}
		b.run(item)
		b.finish(key)
	}
}

// next pops the oldest event of key. It reports false when the queue was
// emptied by a timed out Close.
func (b *Bridge) next(key order.Key) (queued, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queues[key]
	if q == nil {
		return queued{}, false
	}
	if len(q.events) == 0 {
		q.scheduled = false
		delete(b.queues, key)
		return queued{}, false
	}
	item := q.events[0]
	q.events[0] = queued{}
	q.events = q.events[1:]
	b.pending--
	b.metrics.setPending(b.pending)
	return item, true
}

func (b *Bridge) finish(key order.Key) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queues[key]
	if q == nil {
		return
	}
	if len(q.events) > 0 {
		b.ready <- key
		return
	}
	q.scheduled = false
	delete(b.queues, key)
	b.closeReadyLocked()
}

func (b *Bridge) run(item queued) {
	ev := item.ev
	ctx := eventContext(b.base, ev)

	defer func() {
		if r := recover(); r != nil {
			b.metrics.observeProcessed("panic", time.Since(item.enqueued))
			logger.Error(ctx, "dispatch", "event.panic",
				slog.String("status", "fail"),
				slog.String("outcome", "panic"),
				slog.String("kind", string(ev.Kind)),
				slog.Any("err", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	logger.Debug(ctx, "dispatch", "event.start",
		slog.String("kind", string(ev.Kind)),
		slog.Duration("queue", time.Since(item.enqueued)),
	)
	if err := b.proc.Process(ctx, ev); err != nil {
		logger.Debug(ctx, "dispatch", "event.error",
			slog.String("status", "fail"),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
	}
}

// eventContext derives the processing context of ev with its log metadata.
func eventContext(base context.Context, ev order.Event) context.Context {
	k := ev.Key
	ctx := logger.WithRID(base, logger.BuildRID(ev.UpdateID, k.ChatID, k.UserID))
	ctx = logger.WithUpdateMeta(ctx, ev.UpdateID, k.UserID, k.ChatID)
	return logger.WithLogger(ctx, logger.Component("dispatch"))
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrClosed):
		return "closed"
	case errors.Is(err, ErrQueueFull):
		return "queue_full"
	case errors.Is(err, ErrKeyBacklog):
		return "key_backlog"
	}
	return "unknown"
}
