package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Closer allows flushing and stopping the async handler.
type Closer interface {
	Close()
}

type nopCloser struct{}

func (nopCloser) Close() {}

// queued is a record waiting to be written. The request ID is captured at
// enqueue time because the caller's context is gone when a worker runs.
type queued struct {
	rec       slog.Record
	requestID string
	inner     slog.Handler
}

// AsyncHandler moves log writes off the request path. Records are buffered
// in a bounded channel and written by a small worker pool; when the buffer
// is full the record is dropped and counted.
type AsyncHandler struct {
	inner  slog.Handler
	shared *asyncShared
}

type asyncShared struct {
	ch      chan queued
	wg      sync.WaitGroup
	dropped atomic.Int64
	once    sync.Once
}

// NewAsyncHandler creates an AsyncHandler with the given buffer capacity and worker count.
func NewAsyncHandler(inner slog.Handler, bufSize, workers int) *AsyncHandler {
	if workers < 1 {
		workers = 1
	}
	s := &asyncShared{ch: make(chan queued, bufSize)}
	for range workers {
		s.wg.Add(1)
		go s.drain()
	}
	return &AsyncHandler{inner: inner, shared: s}
}

func (s *asyncShared) drain() {
	defer s.wg.Done()
	for q := range s.ch {
		ctx := context.Background()
		if q.requestID != "" {
			ctx = WithRequestID(ctx, q.requestID)
		}
		_ = q.inner.Handle(ctx, q.rec)
	}
}

// Enabled delegates to the inner handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enqueues the record. Drops if the buffer is full.
func (h *AsyncHandler) Handle(ctx context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	q := queued{rec: rec.Clone(), requestID: RequestID(ctx), inner: h.inner}
	select {
	case h.shared.ch <- q:
	default:
		h.shared.dropped.Add(1)
	}
	return nil
}

// WithAttrs returns a handler sharing the same buffer but wrapping a new inner handler.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), shared: h.shared}
}

// WithGroup returns a handler sharing the same buffer but wrapping a new inner handler.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), shared: h.shared}
}

// DroppedCount returns the number of dropped records.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.shared.dropped.Load()
}

// Close stops accepting records and waits for the workers to drain the
// buffer. It is safe to call more than once.
func (h *AsyncHandler) Close() {
	h.shared.once.Do(func() {
		close(h.shared.ch)
		h.shared.wg.Wait()
	})
}
