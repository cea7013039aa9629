package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Strob0t/mailflow/internal/adapter/forward"
	mfhttp "github.com/Strob0t/mailflow/internal/adapter/http"
	"github.com/Strob0t/mailflow/internal/domain/email"
	"github.com/Strob0t/mailflow/internal/domain/route"
	"github.com/Strob0t/mailflow/internal/port/capability"
	"github.com/Strob0t/mailflow/internal/service"
)

const emailJSON = `{
	"sender": "accounting@vendor.com",
	"subject": "Invoice #2024-001 - Payment Due",
	"body": "Attached is the invoice for services rendered last month.",
	"received_time": "2024-05-01T09:30:00.123456"
}`

// pipeline is a classifier, router and handler server wired together.
type pipeline struct {
	classifier *httptest.Server
	router     *httptest.Server
	handlers   *httptest.Server
	hits       map[string]*atomic.Int32
}

type pipelineOpts struct {
	capability capability.Classifier
	down       map[string]bool // handler paths that answer 500
	observe    func(*http.Request)
}

func newPipeline(t *testing.T, opts pipelineOpts) *pipeline {
	t.Helper()
	p := &pipeline{hits: make(map[string]*atomic.Int32)}

	hr := mfhttp.NewRouter("handlers-test")
	mfhttp.MountHandlerRoutes(hr, &mfhttp.Handlers{Workflows: service.NewHandlerService(nil)})
	for _, wf := range service.Workflows() {
		p.hits[wf.Path] = &atomic.Int32{}
	}
	p.handlers = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, ok := p.hits[r.URL.Path]; ok {
			c.Add(1)
		}
		if opts.observe != nil {
			opts.observe(r)
		}
		if opts.down[r.URL.Path] {
			http.Error(w, "handler down", http.StatusInternalServerError)
			return
		}
		hr.ServeHTTP(w, r)
	}))
	t.Cleanup(p.handlers.Close)

	poster := forward.NewClient(5 * time.Second)
	handlers := route.Handlers{
		InvoiceRequest:     p.handlers.URL + "/handle_invoice",
		AppointmentBooking: p.handlers.URL + "/handle_schedule",
		NewClientInquiry:   p.handlers.URL + "/handle_inquiry",
		HumanReview:        p.handlers.URL + "/handle_review",
	}
	rr := mfhttp.NewRouter("router-test")
	mfhttp.MountRouterRoutes(rr, &mfhttp.Handlers{
		Router: service.NewRouterService(handlers, poster, 5*time.Second, nil, nil),
	})
	p.router = httptest.NewServer(rr)
	t.Cleanup(p.router.Close)

	cr := mfhttp.NewRouter("classifier-test")
	mfhttp.MountClassifierRoutes(cr, &mfhttp.Handlers{
		Classifier: service.NewClassifierService(opts.capability, poster, service.ClassifierOptions{
			Threshold:         0.85,
			RouterURL:         p.router.URL + "/route",
			CapabilityTimeout: 5 * time.Second,
			DispatchTimeout:   5 * time.Second,
		}, nil),
	})
	p.classifier = httptest.NewServer(cr)
	t.Cleanup(p.classifier.Close)

	return p
}

func (p *pipeline) hitCount(path string) int32 { return p.hits[path].Load() }

func fixed(w email.WorkflowType, score float64) capability.Func {
	return func(context.Context, email.NormalizedEmail) (email.ClassificationResult, error) {
		return email.ClassificationResult{WorkflowType: w, ConfidenceScore: score}, nil
	}
}

func post(t *testing.T, url, body string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, out
}

// Scenario A.
func TestPipeline_RoutedToPrimary(t *testing.T) {
	p := newPipeline(t, pipelineOpts{capability: fixed(email.WorkflowInvoiceRequest, 0.92)})

	status, body := post(t, p.classifier.URL+"/classify", emailJSON)
	if status != http.StatusOK {
		t.Fatalf("status = %d, body = %v", status, body)
	}

	want := map[string]any{
		"status":         "success",
		"classification": map[string]any{"workflow_type": "InvoiceRequest", "confidence_score": 0.92},
		"routed":         true,
		"route": map[string]any{
			"status":      "routed",
			"handler":     "InvoiceRequest",
			"result":      map[string]any{"status": "invoice handled"},
			"fallback":    false,
			"substituted": false,
		},
	}
	if diff := cmp.Diff(want, body); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}
	if n := p.hitCount("/handle_review"); n != 0 {
		t.Errorf("review handler hit %d times", n)
	}
}

// Scenario B.
func TestPipeline_LowConfidenceGoesToReview(t *testing.T) {
	p := newPipeline(t, pipelineOpts{capability: fixed(email.WorkflowAppointmentBooking, 0.60)})

	status, body := post(t, p.classifier.URL+"/classify", emailJSON)
	if status != http.StatusOK {
		t.Fatalf("status = %d, body = %v", status, body)
	}
	cls := body["classification"].(map[string]any)
	if cls["workflow_type"] != "HumanReview" {
		t.Fatalf("delivered classification = %v", cls)
	}
	if p.hitCount("/handle_schedule") != 0 || p.hitCount("/handle_review") != 1 {
		t.Fatalf("unexpected handler hits: schedule=%d review=%d", p.hitCount("/handle_schedule"), p.hitCount("/handle_review"))
	}
}

// Scenario C.
func TestPipeline_FallbackToReview(t *testing.T) {
	p := newPipeline(t, pipelineOpts{
		capability: fixed(email.WorkflowNewClientInquiry, 0.95),
		down:       map[string]bool{"/handle_inquiry": true},
	})

	status, body := post(t, p.classifier.URL+"/classify", emailJSON)
	if status != http.StatusOK {
		t.Fatalf("status = %d, body = %v", status, body)
	}
	rt := body["route"].(map[string]any)
	if rt["handler"] != "HumanReview" || rt["fallback"] != true {
		t.Fatalf("unexpected route: %v", rt)
	}
	if cls := body["classification"].(map[string]any); cls["workflow_type"] != "NewClientInquiry" {
		t.Fatalf("classification must not be rewritten on fallback: %v", cls)
	}
}

// Scenario D.
func TestPipeline_FallbackExhausted(t *testing.T) {
	p := newPipeline(t, pipelineOpts{
		capability: fixed(email.WorkflowInvoiceRequest, 0.95),
		down:       map[string]bool{"/handle_invoice": true, "/handle_review": true},
	})

	status, body := post(t, p.router.URL+"/route", `{
		"original_email": `+emailJSON+`,
		"classification": {"workflow_type": "InvoiceRequest", "confidence_score": 0.95}
	}`)
	if status != http.StatusBadGateway {
		t.Fatalf("status = %d, body = %v", status, body)
	}
	if body["kind"] != "fallback exhausted" {
		t.Fatalf("kind = %v", body["kind"])
	}
	if attempts := body["attempts"].([]any); len(attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %v", attempts)
	}

	status, body = post(t, p.classifier.URL+"/classify", emailJSON)
	if status != http.StatusBadGateway || body["stage"] != "dispatch" || body["routed"] != false {
		t.Fatalf("classifier: status = %d, body = %v", status, body)
	}
}

// Scenario E.
func TestPipeline_MalformedCapabilityOutput(t *testing.T) {
	p := newPipeline(t, pipelineOpts{capability: fixed("invoice", 0.95)})

	status, body := post(t, p.classifier.URL+"/classify", emailJSON)
	if status != http.StatusBadGateway || body["stage"] != "classification" {
		t.Fatalf("status = %d, body = %v", status, body)
	}
	for path := range p.hits {
		if n := p.hitCount(path); n != 0 {
			t.Errorf("%s hit %d times", path, n)
		}
	}
}

func TestPipeline_BadInput(t *testing.T) {
	p := newPipeline(t, pipelineOpts{capability: fixed(email.WorkflowInvoiceRequest, 0.95)})

	tests := []struct {
		name string
		url  string
		body string
	}{
		{"empty body", p.classifier.URL + "/classify", ``},
		{"not json", p.classifier.URL + "/classify", `sender=a`},
		{"missing field", p.classifier.URL + "/classify", `{"sender":"a","subject":"b","body":"c"}`},
		{"bad timestamp", p.classifier.URL + "/classify", `{"sender":"a","subject":"b","body":"c","received_time":"tomorrow"}`},
		{"unknown workflow", p.router.URL + "/route", `{"original_email":` + emailJSON + `,"classification":{"workflow_type":"Spam","confidence_score":0.9}}`},
		{"score out of range", p.router.URL + "/route", `{"original_email":` + emailJSON + `,"classification":{"workflow_type":"InvoiceRequest","confidence_score":2}}`},
		{"handler missing classification", p.handlers.URL + "/handle_invoice", `{"original_email":` + emailJSON + `}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := post(t, tt.url, tt.body)
			if status != http.StatusBadRequest {
				t.Fatalf("status = %d, body = %v", status, body)
			}
			if body["status"] != "error" {
				t.Fatalf("body = %v", body)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	p := newPipeline(t, pipelineOpts{capability: fixed(email.WorkflowInvoiceRequest, 0.95)})

	tests := map[string]string{
		p.classifier.URL: "email_classification",
		p.router.URL:     "workflow_router",
		p.handlers.URL:   "workflow_handlers",
	}
	for base, agent := range tests {
		resp, err := http.Get(base + "/health")
		if err != nil {
			t.Fatalf("GET health: %v", err)
		}
		var body map[string]string
		_ = json.NewDecoder(resp.Body).Decode(&body)
		_ = resp.Body.Close()

		if diff := cmp.Diff(map[string]string{"status": "healthy", "agent": agent}, body); diff != "" {
			t.Errorf("%s health mismatch (-want +got):\n%s", agent, diff)
		}
	}
}

func TestRequestIDPropagatesThroughPipeline(t *testing.T) {
	var seen atomic.Value
	p := newPipeline(t, pipelineOpts{
		capability: fixed(email.WorkflowInvoiceRequest, 0.95),
		observe:    func(r *http.Request) { seen.Store(r.Header.Get("X-Request-ID")) },
	})

	req, _ := http.NewRequest(http.MethodPost, p.classifier.URL+"/classify", bytes.NewBufferString(emailJSON))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", "trace-me")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	_ = resp.Body.Close()

	if got, _ := seen.Load().(string); got != "trace-me" {
		t.Fatalf("handler saw request ID %q", got)
	}
}
