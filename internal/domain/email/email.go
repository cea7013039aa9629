// Package email defines the data contracts exchanged between the classifier,
// the router and the workflow handlers. All types are plain values: they are
// copied, never shared, across the network boundary.
package email

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Strob0t/mailflow/internal/domain"
)

// NormalizedEmail is an email reduced to sender, subject, body and receipt
// time, independent of the mailbox protocol it came from.
type NormalizedEmail struct {
	Sender       string `json:"sender"`
	Subject      string `json:"subject"`
	Body         string `json:"body"`
	ReceivedTime string `json:"received_time"`
}

// receivedTimeLayouts are the ISO-8601 forms accepted for ReceivedTime.
// The zoneless variant is what Python's datetime.isoformat() emits for
// naive timestamps.
var receivedTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

// Validate checks that ReceivedTime is an ISO-8601 timestamp. Empty subject
// and body are legal.
func (e NormalizedEmail) Validate() error {
	if e.ReceivedTime == "" {
		return fmt.Errorf("%w: received_time is required", domain.ErrValidation)
	}
	if _, err := ParseReceivedTime(e.ReceivedTime); err != nil {
		return fmt.Errorf("%w: received_time %q is not an ISO-8601 timestamp", domain.ErrValidation, e.ReceivedTime)
	}
	return nil
}

// ParseReceivedTime parses an ISO-8601 receipt timestamp.
func ParseReceivedTime(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range receivedTimeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// UnmarshalJSON requires every field to be present; values may be empty.
func (e *NormalizedEmail) UnmarshalJSON(data []byte) error {
	var aux struct {
		Sender       *string `json:"sender"`
		Subject      *string `json:"subject"`
		Body         *string `json:"body"`
		ReceivedTime *string `json:"received_time"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	switch {
	case aux.Sender == nil:
		return missingField("sender")
	case aux.Subject == nil:
		return missingField("subject")
	case aux.Body == nil:
		return missingField("body")
	case aux.ReceivedTime == nil:
		return missingField("received_time")
	}
	*e = NormalizedEmail{
		Sender:       *aux.Sender,
		Subject:      *aux.Subject,
		Body:         *aux.Body,
		ReceivedTime: *aux.ReceivedTime,
	}
	return nil
}

// ClassificationResult is the labeled output of the classification
// capability, possibly overridden once by the confidence gate.
type ClassificationResult struct {
	WorkflowType    WorkflowType `json:"workflow_type"`
	ConfidenceScore float64      `json:"confidence_score"`
}

// Validate checks the enum and the [0,1] score range.
func (r ClassificationResult) Validate() error {
	if !r.WorkflowType.Valid() {
		return fmt.Errorf("%w: workflow_type %q is not a known workflow", domain.ErrValidation, string(r.WorkflowType))
	}
	if r.ConfidenceScore < 0 || r.ConfidenceScore > 1 {
		return fmt.Errorf("%w: confidence_score %v outside [0,1]", domain.ErrValidation, r.ConfidenceScore)
	}
	return nil
}

// UnmarshalJSON requires both fields to be present.
func (r *ClassificationResult) UnmarshalJSON(data []byte) error {
	var aux struct {
		WorkflowType    *WorkflowType `json:"workflow_type"`
		ConfidenceScore *float64      `json:"confidence_score"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.WorkflowType == nil {
		return missingField("workflow_type")
	}
	if aux.ConfidenceScore == nil {
		return missingField("confidence_score")
	}
	*r = ClassificationResult{WorkflowType: *aux.WorkflowType, ConfidenceScore: *aux.ConfidenceScore}
	return nil
}

// ClassifiedEmail is the payload the classifier sends to the router and the
// router forwards, unchanged, to a handler.
type ClassifiedEmail struct {
	OriginalEmail  NormalizedEmail      `json:"original_email"`
	Classification ClassificationResult `json:"classification"`
}

// Validate checks both parts of the payload.
func (c ClassifiedEmail) Validate() error {
	if err := c.OriginalEmail.Validate(); err != nil {
		return fmt.Errorf("original_email: %w", err)
	}
	if err := c.Classification.Validate(); err != nil {
		return fmt.Errorf("classification: %w", err)
	}
	return nil
}

// UnmarshalJSON requires both parts to be present.
func (c *ClassifiedEmail) UnmarshalJSON(data []byte) error {
	var aux struct {
		OriginalEmail  *NormalizedEmail      `json:"original_email"`
		Classification *ClassificationResult `json:"classification"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.OriginalEmail == nil {
		return missingField("original_email")
	}
	if aux.Classification == nil {
		return missingField("classification")
	}
	*c = ClassifiedEmail{OriginalEmail: *aux.OriginalEmail, Classification: *aux.Classification}
	return nil
}

func missingField(name string) error {
	return fmt.Errorf("missing field %q", name)
}
