package route_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Strob0t/mailflow/internal/domain"
	"github.com/Strob0t/mailflow/internal/domain/email"
	"github.com/Strob0t/mailflow/internal/domain/route"
)

var full = route.Handlers{
	InvoiceRequest:     "http://h/invoice",
	AppointmentBooking: "http://h/schedule",
	NewClientInquiry:   "http://h/inquiry",
	HumanReview:        "http://h/review",
}

func TestResolveConfigured(t *testing.T) {
	for _, w := range email.WorkflowTypes() {
		res, err := full.Resolve(w)
		if err != nil {
			t.Fatalf("Resolve(%s): %v", w, err)
		}
		want := route.Resolution{Handler: w, URL: full.Address(w)}
		if diff := cmp.Diff(want, res); diff != "" {
			t.Errorf("Resolve(%s) mismatch (-want +got):\n%s", w, diff)
		}
	}
}

func TestResolveSubstitutesHumanReview(t *testing.T) {
	h := full
	h.AppointmentBooking = ""

	res, err := h.Resolve(email.WorkflowAppointmentBooking)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := route.Resolution{Handler: email.WorkflowHumanReview, URL: "http://h/review", Substituted: true}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveUnresolved(t *testing.T) {
	h := route.Handlers{InvoiceRequest: "http://h/invoice"}

	if _, err := h.Resolve(email.WorkflowInvoiceRequest); err != nil {
		t.Fatalf("configured type should resolve: %v", err)
	}
	for _, w := range []email.WorkflowType{email.WorkflowNewClientInquiry, email.WorkflowHumanReview} {
		_, err := h.Resolve(w)
		if !errors.Is(err, domain.ErrHandlerUnresolved) {
			t.Errorf("Resolve(%s): expected ErrHandlerUnresolved, got %v", w, err)
		}
	}
}

func TestResolveIsPure(t *testing.T) {
	first, _ := full.Resolve(email.WorkflowNewClientInquiry)
	for range 10 {
		again, _ := full.Resolve(email.WorkflowNewClientInquiry)
		if again != first {
			t.Fatalf("Resolve not deterministic: %+v vs %+v", again, first)
		}
	}
}

func TestErrorTriedAndKind(t *testing.T) {
	rerr := &route.Error{
		PipelineError: domain.NewPipelineError(domain.StageRouting, domain.ErrFallbackExhausted, "http://h/review", errors.New("down")),
		Decided:       email.WorkflowInvoiceRequest,
		Attempts: []route.Attempt{
			{Handler: email.WorkflowInvoiceRequest, URL: "http://h/invoice", Error: "down"},
			{Handler: email.WorkflowHumanReview, URL: "http://h/review", Error: "down"},
		},
	}
	if diff := cmp.Diff([]string{"http://h/invoice", "http://h/review"}, rerr.Tried()); diff != "" {
		t.Errorf("Tried mismatch (-want +got):\n%s", diff)
	}

	var err error = rerr
	if !errors.Is(err, domain.ErrFallbackExhausted) {
		t.Error("errors.Is should see the kind")
	}
	var pe *domain.PipelineError
	if !errors.As(err, &pe) || pe.Stage != domain.StageRouting {
		t.Errorf("errors.As PipelineError = %+v", pe)
	}
	if rerr.Attempts[0].Succeeded() {
		t.Error("failed attempt reported as succeeded")
	}
}
