// Package dispatch defines the port for posting JSON payloads to another
// pipeline component: classifier to router, router to handlers.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Poster delivers body to url and returns the response body on a 2xx.
// Any other status, a network error or a timeout is returned as an error.
type Poster interface {
	PostJSON(ctx context.Context, url string, body any) (json.RawMessage, error)
}

// StatusError is returned when the target answers with a non-2xx status.
type StatusError struct {
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.URL, e.Status, e.Body)
}

// StatusOf returns the HTTP status carried by err, or 0 if there is none.
func StatusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}
