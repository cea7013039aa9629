package otel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Strob0t/mailflow/internal/config"
)

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.Telemetry{SampleRatio: 1}, "mailflow-test", "dev")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestHasScheme(t *testing.T) {
	tests := map[string]bool{
		"localhost:4317":             false,
		"otel-collector:4317":        false,
		"http://localhost:4317":      true,
		"https://collector.internal": true,
	}
	for endpoint, want := range tests {
		if got := hasScheme(endpoint); got != want {
			t.Errorf("hasScheme(%q) = %v, want %v", endpoint, got, want)
		}
	}
}

func TestNilMetricsRecordsNothing(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordClassification(ctx, "HumanReview", 0.4, true)
	m.RecordRoute(ctx, "HumanReview", true, false)
	m.RecordRouteFailure(ctx, "fallback exhausted")
	m.ObserveStage(ctx, "routing", time.Second, nil)
}

func TestNewMetrics(t *testing.T) {
	m, err := NewMetrics()
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.RecordClassification(context.Background(), "InvoiceRequest", 0.92, false)
	m.ObserveStage(context.Background(), "classification", 10*time.Millisecond, errors.New("boom"))
}

func TestEndSpanRecordsError(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	_, span := tp.Tracer("test").Start(context.Background(), "forward")
	EndSpan(span, errors.New("handler unreachable"))

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 ended span, got %d", len(spans))
	}
	if len(spans[0].Events()) == 0 {
		t.Error("expected the error to be recorded as an event")
	}
}

func TestTransportPropagatesTraceContext(t *testing.T) {
	var traceparent string
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		traceparent = r.Header.Get("Traceparent")
	}))
	defer srv.Close()

	if _, err := Setup(context.Background(), config.Telemetry{}, "mailflow-test", "dev"); err != nil {
		t.Fatalf("Setup: %v", err)
	}

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "dispatch")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, http.NoBody)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := (&http.Client{Transport: NewTransport(nil)}).Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	_ = resp.Body.Close()

	if traceparent == "" {
		t.Fatal("expected traceparent header on outbound request")
	}
}
