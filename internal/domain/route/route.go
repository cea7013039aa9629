// Package route defines handler resolution and the outcome of routing a
// classified email to a workflow handler.
package route

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Strob0t/mailflow/internal/domain"
	"github.com/Strob0t/mailflow/internal/domain/email"
)

// Handlers maps every workflow type to a handler address. An empty address
// is a configuration gap; Resolve substitutes the human-review handler.
type Handlers struct {
	InvoiceRequest     string
	AppointmentBooking string
	NewClientInquiry   string
	HumanReview        string
}

// Address returns the configured address for w, or "" when w is unmapped.
func (h Handlers) Address(w email.WorkflowType) string {
	switch w {
	case email.WorkflowInvoiceRequest:
		return h.InvoiceRequest
	case email.WorkflowAppointmentBooking:
		return h.AppointmentBooking
	case email.WorkflowNewClientInquiry:
		return h.NewClientInquiry
	case email.WorkflowHumanReview:
		return h.HumanReview
	}
	return ""
}

// Resolution is the handler chosen for a workflow type.
type Resolution struct {
	Handler     email.WorkflowType
	URL         string
	Substituted bool
}

// Resolve picks the handler for w. It is a pure function of w and h.
// When w has no address the human-review handler is returned with
// Substituted set. ErrHandlerUnresolved is returned only when the
// human-review address is missing too.
func (h Handlers) Resolve(w email.WorkflowType) (Resolution, error) {
	if addr := h.Address(w); addr != "" {
		return Resolution{Handler: w, URL: addr}, nil
	}
	if h.HumanReview == "" {
		return Resolution{}, domain.NewPipelineError(domain.StageRouting, domain.ErrHandlerUnresolved, string(w),
			fmt.Errorf("no address for %s and no human-review address", w))
	}
	return Resolution{
		Handler:     email.WorkflowHumanReview,
		URL:         h.HumanReview,
		Substituted: w != email.WorkflowHumanReview,
	}, nil
}

// Attempt records one forwarding attempt.
type Attempt struct {
	Handler  email.WorkflowType `json:"handler"`
	URL      string             `json:"url"`
	Error    string             `json:"error,omitempty"`
	Duration time.Duration      `json:"duration_ns"`
}

// Succeeded reports whether the attempt delivered the payload.
func (a Attempt) Succeeded() bool { return a.Error == "" }

// Outcome is the terminal state of a successful route: the handler that
// accepted the email and whether it got there through the fallback path.
// Decided is the workflow type in the payload, which is never rewritten.
type Outcome struct {
	Decided     email.WorkflowType `json:"decided"`
	Handler     email.WorkflowType `json:"handler"`
	Fallback    bool               `json:"fallback"`
	Substituted bool               `json:"substituted"`
	Result      json.RawMessage    `json:"result,omitempty"`
	Attempts    []Attempt          `json:"attempts"`
}

// Error is a terminal routing failure together with every attempt made.
type Error struct {
	*domain.PipelineError
	Decided  email.WorkflowType
	Attempts []Attempt
}

// Unwrap exposes the pipeline error so errors.Is sees its kind and cause.
func (e *Error) Unwrap() error { return e.PipelineError }

// Tried returns the handler addresses attempted, in order.
func (e *Error) Tried() []string {
	urls := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		urls = append(urls, a.URL)
	}
	return urls
}
