package email

import (
	"encoding/json"
	"fmt"
)

// WorkflowType is one of the four intents an email is classified into.
type WorkflowType string

const (
	WorkflowInvoiceRequest     WorkflowType = "InvoiceRequest"
	WorkflowAppointmentBooking WorkflowType = "AppointmentBooking"
	WorkflowNewClientInquiry   WorkflowType = "NewClientInquiry"
	WorkflowHumanReview        WorkflowType = "HumanReview"
)

// WorkflowTypes lists every valid workflow type in a stable order.
func WorkflowTypes() []WorkflowType {
	return []WorkflowType{
		WorkflowInvoiceRequest,
		WorkflowAppointmentBooking,
		WorkflowNewClientInquiry,
		WorkflowHumanReview,
	}
}

// Valid reports whether w is one of the four enumerated values.
func (w WorkflowType) Valid() bool {
	switch w {
	case WorkflowInvoiceRequest, WorkflowAppointmentBooking, WorkflowNewClientInquiry, WorkflowHumanReview:
		return true
	}
	return false
}

func (w WorkflowType) String() string { return string(w) }

// ParseWorkflowType returns the workflow type named s. Matching is exact.
func ParseWorkflowType(s string) (WorkflowType, error) {
	w := WorkflowType(s)
	if !w.Valid() {
		return "", fmt.Errorf("unknown workflow_type %q", s)
	}
	return w, nil
}

// UnmarshalJSON rejects any literal outside the enum.
func (w *WorkflowType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("workflow_type: %w", err)
	}
	parsed, err := ParseWorkflowType(s)
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}
