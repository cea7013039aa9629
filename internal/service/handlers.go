package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/mailflow/internal/domain"
	"github.com/Strob0t/mailflow/internal/domain/email"
	"github.com/Strob0t/mailflow/internal/logger"
	"github.com/Strob0t/mailflow/internal/port/messagequeue"
)

// Workflow describes one placeholder workflow handler endpoint.
type Workflow struct {
	Type   email.WorkflowType
	Path   string
	Status string
}

// Workflows lists the placeholder handlers in routing order.
func Workflows() []Workflow {
	return []Workflow{
		{Type: email.WorkflowInvoiceRequest, Path: "/handle_invoice", Status: "invoice handled"},
		{Type: email.WorkflowAppointmentBooking, Path: "/handle_schedule", Status: "schedule handled"},
		{Type: email.WorkflowNewClientInquiry, Path: "/handle_inquiry", Status: "inquiry handled"},
		{Type: email.WorkflowHumanReview, Path: "/handle_review", Status: "review handled"},
	}
}

// HandlerService implements the placeholder workflow handlers. They accept
// any schema-valid classified email and acknowledge it; the review handler
// also announces the email to operators.
type HandlerService struct {
	events messagequeue.Publisher
}

// NewHandlerService creates a HandlerService. events may be nil.
func NewHandlerService(events messagequeue.Publisher) *HandlerService {
	if events == nil {
		events = messagequeue.Nop{}
	}
	return &HandlerService{events: events}
}

// Handle acknowledges ce on behalf of workflow w and returns the status
// message for the response body.
func (s *HandlerService) Handle(ctx context.Context, w Workflow, ce email.ClassifiedEmail) (string, error) {
	if err := ce.Validate(); err != nil {
		return "", domain.NewPipelineError(domain.StageValidation, domain.ErrValidation, w.Path, err)
	}

	slog.InfoContext(ctx, "workflow handler received email",
		"handler", w.Type,
		"workflow_type", ce.Classification.WorkflowType,
		"sender", ce.OriginalEmail.Sender,
	)

	if w.Type == email.WorkflowHumanReview {
		s.requestReview(ctx, ce)
	}
	return w.Status, nil
}

func (s *HandlerService) requestReview(ctx context.Context, ce email.ClassifiedEmail) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventTimeout)
	defer cancel()

	err := messagequeue.PublishJSON(pubCtx, s.events, messagequeue.SubjectReviewRequested, messagequeue.ReviewRequestedPayload{
		EventID:      uuid.NewString(),
		RequestID:    logger.RequestID(ctx),
		Sender:       ce.OriginalEmail.Sender,
		Subject:      ce.OriginalEmail.Subject,
		ReceivedTime: ce.OriginalEmail.ReceivedTime,
		WorkflowType: ce.Classification.WorkflowType.String(),
		Confidence:   ce.Classification.ConfidenceScore,
		At:           time.Now().UTC(),
	})
	if err != nil {
		slog.WarnContext(ctx, "review request publish failed", "error", err)
	}
}
