package messagequeue

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects only need to be
// valid JSON.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	switch subject {
	case SubjectRouted:
		var p RoutedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return schemaError(subject, err)
		}
		if p.EventID == "" || p.Handler == "" || p.Decided == "" {
			return schemaError(subject, errors.New("event_id, decided and handler are required"))
		}
	case SubjectRouteFailed:
		var p RouteFailedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return schemaError(subject, err)
		}
		if p.EventID == "" || p.Kind == "" {
			return schemaError(subject, errors.New("event_id and kind are required"))
		}
	case SubjectReviewRequested:
		var p ReviewRequestedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return schemaError(subject, err)
		}
		if p.EventID == "" {
			return schemaError(subject, errors.New("event_id is required"))
		}
	}
	return nil
}

func schemaError(subject string, err error) error {
	return fmt.Errorf("schema validation failed for %s: %w", subject, err)
}
