package logger

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// recordingHandler collects slog.Records for test assertions.
type recordingHandler struct {
	mu         sync.Mutex
	records    []slog.Record
	requestIDs []string
	delay      time.Duration
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(ctx context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	if h.delay > 0 {
		time.Sleep(h.delay)
	}
	h.mu.Lock()
	h.records = append(h.records, rec)
	h.requestIDs = append(h.requestIDs, RequestID(ctx))
	h.mu.Unlock()
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}

func TestAsyncHandler_BasicWrite(t *testing.T) {
	inner := &recordingHandler{}
	ah := NewAsyncHandler(inner, 100, 1)

	rec := slog.NewRecord(time.Now(), slog.LevelInfo, "hello", 0)
	if err := ah.Handle(context.Background(), rec); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}

	ah.Close()

	if got := inner.count(); got != 1 {
		t.Fatalf("expected 1 record, got %d", got)
	}
}

func TestAsyncHandler_PreservesRequestID(t *testing.T) {
	inner := &recordingHandler{}
	ah := NewAsyncHandler(inner, 10, 1)

	ctx := WithRequestID(context.Background(), "req-7")
	_ = ah.Handle(ctx, slog.NewRecord(time.Now(), slog.LevelInfo, "x", 0))
	ah.Close()

	if len(inner.requestIDs) != 1 || inner.requestIDs[0] != "req-7" {
		t.Fatalf("expected request id to survive the queue, got %v", inner.requestIDs)
	}
}

func TestAsyncHandler_ConcurrentWrites(t *testing.T) {
	const goroutines = 50
	const perGoroutine = 50
	total := goroutines * perGoroutine

	inner := &recordingHandler{}
	ah := NewAsyncHandler(inner, total, 4)

	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perGoroutine {
				_ = ah.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "msg", 0))
			}
		}()
	}
	wg.Wait()
	ah.Close()

	if got := inner.count() + int(ah.DroppedCount()); got != total {
		t.Fatalf("expected %d records written or dropped, got %d", total, got)
	}
}

func TestAsyncHandler_DropsWhenFull(t *testing.T) {
	inner := &recordingHandler{delay: 50 * time.Millisecond}
	ah := NewAsyncHandler(inner, 1, 1)

	for range 10 {
		_ = ah.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "msg", 0))
	}
	ah.Close()

	if ah.DroppedCount() == 0 {
		t.Fatal("expected some records to be dropped")
	}
	if got := inner.count() + int(ah.DroppedCount()); got != 10 {
		t.Fatalf("expected 10 records accounted for, got %d", got)
	}
}

func TestAsyncHandler_CloseTwice(t *testing.T) {
	ah := NewAsyncHandler(&recordingHandler{}, 1, 1)
	ah.Close()
	ah.Close()
}
