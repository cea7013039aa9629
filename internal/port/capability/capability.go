// Package capability defines the port for the external classification
// capability. Implementations are untrusted: they may fail, time out or
// return output that does not match the schema.
package capability

import (
	"context"

	"github.com/Strob0t/mailflow/internal/domain/email"
)

// Classifier maps a normalized email to a labeled result.
//
// Implementations must return a result that passes
// email.ClassificationResult.Validate, or an error. They must not coerce
// malformed output into a valid result.
type Classifier interface {
	Classify(ctx context.Context, e email.NormalizedEmail) (email.ClassificationResult, error)
}

// Func adapts a plain function to the Classifier interface.
type Func func(ctx context.Context, e email.NormalizedEmail) (email.ClassificationResult, error)

// Classify calls f.
func (f Func) Classify(ctx context.Context, e email.NormalizedEmail) (email.ClassificationResult, error) {
	return f(ctx, e)
}
