// Package service contains the application services of the mail pipeline:
// classification with the confidence gate, routing with a single fallback
// to human review, and the placeholder workflow handlers.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Strob0t/mailflow/internal/adapter/otel"
	"github.com/Strob0t/mailflow/internal/domain"
	"github.com/Strob0t/mailflow/internal/domain/email"
	"github.com/Strob0t/mailflow/internal/port/capability"
	"github.com/Strob0t/mailflow/internal/port/dispatch"
)

// ClassifierOptions configures a ClassifierService.
type ClassifierOptions struct {
	// Threshold is the confidence below which the gate forces HumanReview.
	Threshold float64
	// RouterURL is where classified emails are POSTed.
	RouterURL string
	// CapabilityTimeout bounds one capability call, including the wait
	// for a concurrency slot.
	CapabilityTimeout time.Duration
	// DispatchTimeout bounds the POST to the router.
	DispatchTimeout time.Duration
}

// ClassifyResult is the outcome of a successful classify call.
type ClassifyResult struct {
	// Classification is what was delivered to the router, after the gate.
	Classification email.ClassificationResult
	// Overridden is true when the confidence gate fired.
	Overridden bool
	// Route is the router's response body.
	Route json.RawMessage
}

// DispatchError reports an email that was classified but not accepted by
// the router. Classification is what the router was sent.
type DispatchError struct {
	*domain.PipelineError
	Classification email.ClassificationResult
}

// Unwrap exposes the pipeline error so errors.Is sees its kind and cause.
func (e *DispatchError) Unwrap() error { return e.PipelineError }

// ClassifierService labels a normalized email, applies the confidence gate
// and hands the result to the router.
type ClassifierService struct {
	capability capability.Classifier
	poster     dispatch.Poster
	opts       ClassifierOptions
	metrics    *otel.Metrics
}

// NewClassifierService creates a ClassifierService. metrics may be nil.
func NewClassifierService(c capability.Classifier, poster dispatch.Poster, opts ClassifierOptions, metrics *otel.Metrics) *ClassifierService {
	return &ClassifierService{
		capability: c,
		poster:     poster,
		opts:       opts,
		metrics:    metrics,
	}
}

// Threshold returns the configured confidence threshold.
func (s *ClassifierService) Threshold() float64 { return s.opts.Threshold }

// ApplyGate forces HumanReview when the score is below threshold and
// reports whether it fired. The score itself is kept; the original label
// is not. A NaN threshold or score fires the gate.
func ApplyGate(r email.ClassificationResult, threshold float64) (email.ClassificationResult, bool) {
	if !(r.ConfidenceScore >= threshold) {
		r.WorkflowType = email.WorkflowHumanReview
		return r, true
	}
	return r, false
}

// Classify runs the classification capability on e, gates the result and
// POSTs the classified email to the router. The caller's cancellation does
// not stop an admitted request; each outbound call has its own timeout.
func (s *ClassifierService) Classify(ctx context.Context, e email.NormalizedEmail) (*ClassifyResult, error) {
	if err := e.Validate(); err != nil {
		return nil, domain.NewPipelineError(domain.StageValidation, domain.ErrValidation, "", err)
	}
	ctx = context.WithoutCancel(ctx)

	raw, err := s.runCapability(ctx, e)
	if err != nil {
		slog.ErrorContext(ctx, "classification failed", "sender", e.Sender, "error", err)
		return nil, domain.NewPipelineError(domain.StageClassification, domain.ErrClassification, "capability", err)
	}

	gated, overridden := ApplyGate(raw, s.opts.Threshold)
	if overridden {
		slog.WarnContext(ctx, "low confidence, routing to human review",
			"workflow_type", raw.WorkflowType,
			"confidence_score", raw.ConfidenceScore,
			"threshold", s.opts.Threshold,
		)
	}
	s.metrics.RecordClassification(ctx, gated.WorkflowType.String(), raw.ConfidenceScore, overridden)

	classified := email.ClassifiedEmail{OriginalEmail: e, Classification: gated}
	body, err := s.dispatch(ctx, classified)
	if err != nil {
		slog.ErrorContext(ctx, "router dispatch failed",
			"router_url", s.opts.RouterURL,
			"workflow_type", gated.WorkflowType,
			"confidence_score", gated.ConfidenceScore,
			"status", dispatch.StatusOf(err),
			"error", err,
		)
		return nil, &DispatchError{
			PipelineError:  domain.NewPipelineError(domain.StageDispatch, domain.ErrRoutingDispatch, s.opts.RouterURL, err),
			Classification: gated,
		}
	}

	slog.InfoContext(ctx, "email classified and routed",
		"workflow_type", gated.WorkflowType,
		"confidence_score", gated.ConfidenceScore,
		"overridden", overridden,
	)
	return &ClassifyResult{Classification: gated, Overridden: overridden, Route: body}, nil
}

func (s *ClassifierService) runCapability(ctx context.Context, e email.NormalizedEmail) (email.ClassificationResult, error) {
	ctx, cancel := withTimeout(ctx, s.opts.CapabilityTimeout)
	defer cancel()

	ctx, span := otel.StartClassifySpan(ctx, modelOf(s.capability))
	start := time.Now()
	slog.InfoContext(ctx, "calling classification capability", "sender", e.Sender)

	r, err := s.capability.Classify(ctx, e)
	if err == nil {
		if verr := r.Validate(); verr != nil {
			err = fmt.Errorf("capability returned an invalid result: %w", verr)
		}
	}
	s.metrics.ObserveStage(ctx, domain.StageClassification, time.Since(start), err)
	otel.EndSpan(span, err)
	if err != nil {
		return email.ClassificationResult{}, err
	}

	slog.InfoContext(ctx, "capability classified email",
		"workflow_type", r.WorkflowType,
		"confidence_score", r.ConfidenceScore,
		"duration", time.Since(start),
	)
	return r, nil
}

func (s *ClassifierService) dispatch(ctx context.Context, ce email.ClassifiedEmail) (json.RawMessage, error) {
	ctx, cancel := withTimeout(ctx, s.opts.DispatchTimeout)
	defer cancel()

	ctx, span := otel.StartDispatchSpan(ctx, ce.Classification.WorkflowType.String(), ce.Classification.ConfidenceScore)
	start := time.Now()
	slog.InfoContext(ctx, "sending classified email to router",
		"router_url", s.opts.RouterURL,
		"workflow_type", ce.Classification.WorkflowType,
		"confidence_score", ce.Classification.ConfidenceScore,
	)

	body, err := s.poster.PostJSON(ctx, s.opts.RouterURL, ce)
	s.metrics.ObserveStage(ctx, domain.StageDispatch, time.Since(start), err)
	otel.EndSpan(span, err)
	return body, err
}

// modelOf returns the model name when the capability exposes one.
func modelOf(c capability.Classifier) string {
	if m, ok := c.(interface{ Model() string }); ok {
		return m.Model()
	}
	return ""
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
