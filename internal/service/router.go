package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/mailflow/internal/adapter/otel"
	"github.com/Strob0t/mailflow/internal/domain"
	"github.com/Strob0t/mailflow/internal/domain/email"
	"github.com/Strob0t/mailflow/internal/domain/route"
	"github.com/Strob0t/mailflow/internal/logger"
	"github.com/Strob0t/mailflow/internal/port/dispatch"
	"github.com/Strob0t/mailflow/internal/port/messagequeue"
)

// eventTimeout bounds publishing of a routing event.
const eventTimeout = 2 * time.Second

// RouterService delivers classified emails to workflow handlers. When the
// primary handler fails it makes exactly one attempt against the
// human-review handler.
type RouterService struct {
	handlers route.Handlers
	poster   dispatch.Poster
	timeout  time.Duration
	events   messagequeue.Publisher
	metrics  *otel.Metrics
}

// NewRouterService creates a RouterService. events and metrics may be nil.
func NewRouterService(h route.Handlers, poster dispatch.Poster, timeout time.Duration, events messagequeue.Publisher, metrics *otel.Metrics) *RouterService {
	if events == nil {
		events = messagequeue.Nop{}
	}
	return &RouterService{
		handlers: h,
		poster:   poster,
		timeout:  timeout,
		events:   events,
		metrics:  metrics,
	}
}

// Route forwards ce to the handler for its workflow type. The payload is
// sent unchanged to every target, including the fallback.
//
// On success the returned Outcome names the handler that accepted the
// email. Terminal failures are *route.Error values whose kind is
// ErrHandlerUnreachable (the human-review handler was the only target) or
// ErrFallbackExhausted (primary and fallback both failed).
func (s *RouterService) Route(ctx context.Context, ce email.ClassifiedEmail) (*route.Outcome, error) {
	if err := ce.Validate(); err != nil {
		return nil, domain.NewPipelineError(domain.StageValidation, domain.ErrValidation, "", err)
	}
	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	decided := ce.Classification.WorkflowType
	slog.InfoContext(ctx, "routing classified email",
		"workflow_type", decided,
		"confidence_score", ce.Classification.ConfidenceScore,
	)

	res, err := s.handlers.Resolve(decided)
	if err != nil {
		slog.ErrorContext(ctx, "no handler available", "workflow_type", decided, "error", err)
		return nil, s.fail(ctx, ce, start, &route.Error{PipelineError: asPipelineError(err), Decided: decided})
	}
	if res.Substituted {
		slog.ErrorContext(ctx, "no handler configured for workflow type, substituting human review",
			"workflow_type", decided,
			"handler_url", res.URL,
		)
	}

	attempts := make([]route.Attempt, 0, 2)

	primary, body, perr := s.forward(ctx, res.Handler, res.URL, ce, false)
	attempts = append(attempts, primary)
	if perr == nil {
		return s.succeed(ctx, ce, start, &route.Outcome{
			Decided:     decided,
			Handler:     res.Handler,
			Substituted: res.Substituted,
			Result:      body,
			Attempts:    attempts,
		}), nil
	}

	if res.Handler == email.WorkflowHumanReview {
		cause := perr
		if res.Substituted {
			cause = fmt.Errorf("%w for %s: %w", domain.ErrHandlerUnresolved, decided, perr)
		}
		slog.ErrorContext(ctx, "human review handler unreachable",
			"handler_url", res.URL,
			"error", perr,
		)
		return nil, s.fail(ctx, ce, start, &route.Error{
			PipelineError: domain.NewPipelineError(domain.StageRouting, domain.ErrHandlerUnreachable, res.URL, cause),
			Decided:       decided,
			Attempts:      attempts,
		})
	}

	slog.WarnContext(ctx, "primary handler failed, falling back to human review",
		"workflow_type", decided,
		"handler_url", res.URL,
		"error", perr,
	)

	fallback, body, ferr := s.forward(ctx, email.WorkflowHumanReview, s.handlers.HumanReview, ce, true)
	attempts = append(attempts, fallback)
	if ferr == nil {
		return s.succeed(ctx, ce, start, &route.Outcome{
			Decided:  decided,
			Handler:  email.WorkflowHumanReview,
			Fallback: true,
			Result:   body,
			Attempts: attempts,
		}), nil
	}

	slog.ErrorContext(ctx, "fallback to human review also failed",
		"workflow_type", decided,
		"handler_url", s.handlers.HumanReview,
		"error", ferr,
	)
	cause := errors.Join(
		fmt.Errorf("%w: %s: %w", domain.ErrHandlerUnreachable, res.URL, perr),
		fmt.Errorf("%w: %s: %w", domain.ErrHandlerUnreachable, s.handlers.HumanReview, ferr),
	)
	return nil, s.fail(ctx, ce, start, &route.Error{
		PipelineError: domain.NewPipelineError(domain.StageRouting, domain.ErrFallbackExhausted, s.handlers.HumanReview, cause),
		Decided:       decided,
		Attempts:      attempts,
	})
}

// forward makes one delivery attempt.
func (s *RouterService) forward(ctx context.Context, handler email.WorkflowType, url string, ce email.ClassifiedEmail, fallback bool) (route.Attempt, json.RawMessage, error) {
	ctx, span := otel.StartForwardSpan(ctx, handler.String(), url, fallback)
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	slog.InfoContext(ctx, "forwarding payload to handler", "handler", handler, "handler_url", url, "fallback", fallback)

	start := time.Now()
	body, err := s.poster.PostJSON(ctx, url, ce)
	otel.EndSpan(span, err)

	a := route.Attempt{Handler: handler, URL: url, Duration: time.Since(start)}
	if err != nil {
		a.Error = err.Error()
	}
	return a, body, err
}

func (s *RouterService) succeed(ctx context.Context, ce email.ClassifiedEmail, start time.Time, o *route.Outcome) *route.Outcome {
	slog.InfoContext(ctx, "email routed",
		"workflow_type", o.Decided,
		"handler", o.Handler,
		"fallback", o.Fallback,
		"substituted", o.Substituted,
	)
	s.metrics.RecordRoute(ctx, o.Handler.String(), o.Fallback, o.Substituted)
	s.metrics.ObserveStage(ctx, domain.StageRouting, time.Since(start), nil)

	s.publish(ctx, messagequeue.SubjectRouted, messagequeue.RoutedPayload{
		EventID:     uuid.NewString(),
		RequestID:   logger.RequestID(ctx),
		Sender:      ce.OriginalEmail.Sender,
		Subject:     ce.OriginalEmail.Subject,
		Decided:     o.Decided.String(),
		Handler:     o.Handler.String(),
		Confidence:  ce.Classification.ConfidenceScore,
		Fallback:    o.Fallback,
		Substituted: o.Substituted,
		Attempts:    attemptPayloads(o.Attempts),
		At:          time.Now().UTC(),
	})
	return o
}

func (s *RouterService) fail(ctx context.Context, ce email.ClassifiedEmail, start time.Time, rerr *route.Error) *route.Error {
	kind := kindOf(rerr.PipelineError)
	s.metrics.RecordRouteFailure(ctx, kind)
	s.metrics.ObserveStage(ctx, domain.StageRouting, time.Since(start), rerr)

	s.publish(ctx, messagequeue.SubjectRouteFailed, messagequeue.RouteFailedPayload{
		EventID:    uuid.NewString(),
		RequestID:  logger.RequestID(ctx),
		Sender:     ce.OriginalEmail.Sender,
		Subject:    ce.OriginalEmail.Subject,
		Decided:    rerr.Decided.String(),
		Confidence: ce.Classification.ConfidenceScore,
		Kind:       kind,
		Error:      rerr.Error(),
		Attempts:   attemptPayloads(rerr.Attempts),
		At:         time.Now().UTC(),
	})
	return rerr
}

// publish emits a routing event. Failures are logged and otherwise ignored.
func (s *RouterService) publish(ctx context.Context, subject string, payload any) {
	ctx, cancel := context.WithTimeout(ctx, eventTimeout)
	defer cancel()
	if err := messagequeue.PublishJSON(ctx, s.events, subject, payload); err != nil {
		slog.WarnContext(ctx, "event publish failed", "subject", subject, "error", err)
	}
}

func attemptPayloads(attempts []route.Attempt) []messagequeue.AttemptPayload {
	out := make([]messagequeue.AttemptPayload, len(attempts))
	for i, a := range attempts {
		out[i] = messagequeue.AttemptPayload{Handler: a.Handler.String(), URL: a.URL, Error: a.Error}
	}
	return out
}

func kindOf(pe *domain.PipelineError) string {
	if pe == nil || pe.Kind == nil {
		return "unknown"
	}
	return pe.Kind.Error()
}

func asPipelineError(err error) *domain.PipelineError {
	var pe *domain.PipelineError
	if errors.As(err, &pe) {
		return pe
	}
	return domain.NewPipelineError(domain.StageRouting, domain.ErrHandlerUnresolved, "", err)
}
