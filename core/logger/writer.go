package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

const (
	defaultQueueLines = 1024
	defaultSinkBuffer = 64 * 1024
)

// asyncWriter fans log lines out to its sinks from a single goroutine.
// Lines are dropped, and counted, while the queue is full so that a slow
// sink never stalls the webhook acknowledgement path.
type asyncWriter struct {
	queue    chan []byte
	flushReq chan chan error
	done     chan struct{}
	mu       sync.RWMutex
	closed   bool
	dropped  atomic.Uint64
	sinks    []*bufio.Writer
	errMu    sync.Mutex
	writeErr error
}

func newAsyncWriter(writers []io.Writer, queueLines int) *asyncWriter {
	if queueLines <= 0 {
		queueLines = defaultQueueLines
	}
	sinks := make([]*bufio.Writer, 0, len(writers))
	for _, w := range writers {
		if w != nil {
			sinks = append(sinks, bufio.NewWriterSize(w, defaultSinkBuffer))
		}
	}
	aw := &asyncWriter{
		queue:    make(chan []byte, queueLines),
		flushReq: make(chan chan error),
		done:     make(chan struct{}),
		sinks:    sinks,
	}
	go aw.loop()
	return aw
}

func (w *asyncWriter) loop() {
	defer close(w.done)
	for {
		select {
		case line, ok := <-w.queue:
			if !ok {
				w.setErr(w.flushAll())
				return
			}
			w.setErr(w.writeAll(line))
			// Flush once the burst is written instead of after every line.
			if len(w.queue) == 0 {
				w.setErr(w.flushAll())
			}
		case ack := <-w.flushReq:
			for pending := len(w.queue); pending > 0; pending-- {
				w.setErr(w.writeAll(<-w.queue))
			}
			ack <- w.flushAll()
		}
	}
}

// Write enqueues a copy of p. It never blocks.
func (w *asyncWriter) Write(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	line := append([]byte(nil), p...)
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return errors.New("logger: writer closed")
	}
	select {
	case w.queue <- line:
	default:
		w.dropped.Add(1)
	}
	return nil
}

// Dropped reports how many lines were discarded because the queue was full.
func (w *asyncWriter) Dropped() uint64 {
	return w.dropped.Load()
}

// Flush writes everything queued so far and flushes the sinks.
func (w *asyncWriter) Flush() error {
	ack := make(chan error, 1)
	select {
	case w.flushReq <- ack:
		return <-ack
	case <-w.done:
		return w.err()
	}
}

// Close drains the queue and reports the first write error seen.
func (w *asyncWriter) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	<-w.done
	return w.err()
}

func (w *asyncWriter) writeAll(p []byte) error {
	var errs []error
	for _, sink := range w.sinks {
		if _, err := sink.Write(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *asyncWriter) flushAll() error {
	var errs []error
	for _, sink := range w.sinks {
		if err := sink.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *asyncWriter) err() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.writeErr
}

func (w *asyncWriter) setErr(err error) {
	if err == nil {
		return
	}
	w.errMu.Lock()
	defer w.errMu.Unlock()
	if w.writeErr == nil {
		w.writeErr = err
	}
}
