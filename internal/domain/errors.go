// Package domain provides shared domain-level sentinel errors and the
// pipeline error type used by the classifier and router.
package domain

import (
	"errors"
	"fmt"
)

// ErrValidation indicates a malformed NormalizedEmail or ClassifiedEmail.
// Nothing downstream is called when it is returned.
var ErrValidation = errors.New("validation error")

// ErrClassification indicates the classification capability failed or
// returned output that does not match the ClassificationResult schema.
var ErrClassification = errors.New("classification error")

// ErrRoutingDispatch indicates the classifier could not hand a classified
// email to the router. The email was classified but delivery is unconfirmed.
var ErrRoutingDispatch = errors.New("routing dispatch error")

// ErrHandlerUnresolved indicates a workflow type has no handler address.
// The router substitutes the human-review handler and only surfaces this
// when the substitute fails as well.
var ErrHandlerUnresolved = errors.New("handler unresolved")

// ErrHandlerUnreachable indicates a handler could not be reached or
// answered with a non-2xx status.
var ErrHandlerUnreachable = errors.New("handler unreachable")

// ErrFallbackExhausted indicates both the primary handler and the
// human-review safety net are unreachable.
var ErrFallbackExhausted = errors.New("fallback exhausted")

// Pipeline stages reported in PipelineError.Stage.
const (
	StageValidation     = "validation"
	StageClassification = "classification"
	StageDispatch       = "dispatch"
	StageRouting        = "routing"
)

// PipelineError carries which stage failed, which target was being called
// and the underlying cause. Kind is one of the sentinel errors above so that
// errors.Is works on the wrapper.
type PipelineError struct {
	Stage  string
	Target string
	Kind   error
	Err    error
}

// NewPipelineError builds a PipelineError for the given stage.
func NewPipelineError(stage string, kind error, target string, err error) *PipelineError {
	return &PipelineError{Stage: stage, Target: target, Kind: kind, Err: err}
}

func (e *PipelineError) Error() string {
	switch {
	case e.Target != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s (%s): %v", e.Stage, e.Kind, e.Target, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Err)
	case e.Target != "":
		return fmt.Sprintf("%s: %s (%s)", e.Stage, e.Kind, e.Target)
	default:
		return fmt.Sprintf("%s: %s", e.Stage, e.Kind)
	}
}

// Unwrap exposes both the sentinel kind and the cause.
func (e *PipelineError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
