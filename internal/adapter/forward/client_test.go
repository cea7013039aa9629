package forward_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Strob0t/mailflow/internal/adapter/forward"
	"github.com/Strob0t/mailflow/internal/logger"
	"github.com/Strob0t/mailflow/internal/port/dispatch"
	"github.com/Strob0t/mailflow/internal/resilience"
)

func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Fatalf("unexpected content type: %q", ct)
		}
		if id := r.Header.Get("X-Request-ID"); id != "req-1" {
			t.Errorf("expected propagated request ID, got %q", id)
		}
		var got map[string]string
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got["hello"] != "handler" {
			t.Errorf("unexpected payload: %v", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"invoice handled"}`))
	}))
	defer srv.Close()

	ctx := logger.WithRequestID(context.Background(), "req-1")
	out, err := forward.NewClient(5*time.Second).PostJSON(ctx, srv.URL, map[string]string{"hello": "handler"})
	if err != nil {
		t.Fatalf("PostJSON: %v", err)
	}
	if string(out) != `{"status":"invoice handled"}` {
		t.Fatalf("unexpected response: %s", out)
	}
}

func TestPostJSONNonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	out, err := forward.NewClient(5*time.Second).PostJSON(context.Background(), srv.URL, struct{}{})
	if err != nil {
		t.Fatalf("PostJSON: %v", err)
	}
	if string(out) != `"ok"` {
		t.Fatalf("expected quoted body, got %s", out)
	}
}

func TestPostJSONStatusError(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"server error", http.StatusInternalServerError},
		{"not found", http.StatusNotFound},
		{"redirect without location", http.StatusMultipleChoices},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "down", tt.status)
			}))
			defer srv.Close()

			_, err := forward.NewClient(5*time.Second).PostJSON(context.Background(), srv.URL, struct{}{})
			var se *dispatch.StatusError
			if !errors.As(err, &se) {
				t.Fatalf("expected StatusError, got %v", err)
			}
			if se.Status != tt.status || dispatch.StatusOf(err) != tt.status {
				t.Fatalf("status = %d, want %d", se.Status, tt.status)
			}
		})
	}
}

func TestPostJSONTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	_, err := forward.NewClient(50*time.Millisecond).PostJSON(context.Background(), srv.URL, struct{}{})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if dispatch.StatusOf(err) != 0 {
		t.Fatalf("timeout should not carry a status: %v", err)
	}
}

func TestPostJSONUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	if _, err := forward.NewClient(time.Second).PostJSON(context.Background(), url, struct{}{}); err == nil {
		t.Fatal("expected connection error")
	}
}

func TestPostJSONBreakerPerTarget(t *testing.T) {
	var downCalls atomic.Int32
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		downCalls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer down.Close()
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer up.Close()

	c := forward.NewClient(time.Second)
	c.SetBreakers(resilience.NewSet(1, time.Minute))
	ctx := context.Background()

	_, _ = c.PostJSON(ctx, down.URL, struct{}{})
	if _, err := c.PostJSON(ctx, down.URL, struct{}{}); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if n := downCalls.Load(); n != 1 {
		t.Fatalf("expected 1 call to failing target, got %d", n)
	}
	if _, err := c.PostJSON(ctx, up.URL, struct{}{}); err != nil {
		t.Fatalf("healthy target should be unaffected: %v", err)
	}
}
