package messagequeue

import "time"

// AttemptPayload describes one forwarding attempt inside a routing event.
type AttemptPayload struct {
	Handler string `json:"handler"`
	URL     string `json:"url"`
	Error   string `json:"error,omitempty"`
}

// RoutedPayload is the schema for mail.routed messages. Decided is the
// workflow type in the payload, Handler the one that accepted it.
type RoutedPayload struct {
	EventID     string           `json:"event_id"`
	RequestID   string           `json:"request_id,omitempty"`
	Sender      string           `json:"sender"`
	Subject     string           `json:"subject"`
	Decided     string           `json:"decided"`
	Handler     string           `json:"handler"`
	Confidence  float64          `json:"confidence"`
	Fallback    bool             `json:"fallback"`
	Substituted bool             `json:"substituted"`
	Attempts    []AttemptPayload `json:"attempts"`
	At          time.Time        `json:"at"`
}

// RouteFailedPayload is the schema for mail.route_failed messages.
type RouteFailedPayload struct {
	EventID    string           `json:"event_id"`
	RequestID  string           `json:"request_id,omitempty"`
	Sender     string           `json:"sender"`
	Subject    string           `json:"subject"`
	Decided    string           `json:"decided"`
	Confidence float64          `json:"confidence"`
	Kind       string           `json:"kind"`
	Error      string           `json:"error"`
	Attempts   []AttemptPayload `json:"attempts"`
	At         time.Time        `json:"at"`
}

// ReviewRequestedPayload is the schema for mail.review_requested messages.
type ReviewRequestedPayload struct {
	EventID      string    `json:"event_id"`
	RequestID    string    `json:"request_id,omitempty"`
	Sender       string    `json:"sender"`
	Subject      string    `json:"subject"`
	ReceivedTime string    `json:"received_time"`
	WorkflowType string    `json:"workflow_type"`
	Confidence   float64   `json:"confidence"`
	At           time.Time `json:"at"`
}
