package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Strob0t/mailflow/internal/domain/email"
	"github.com/Strob0t/mailflow/internal/domain/route"
	"github.com/Strob0t/mailflow/internal/service"
)

// Health identities reported by each service.
const (
	AgentClassifier = "email_classification"
	AgentRouter     = "workflow_router"
	AgentHandlers   = "workflow_handlers"
)

// Handlers holds the services behind the HTTP surface. Only the services a
// process runs need to be set.
type Handlers struct {
	Classifier *service.ClassifierService
	Router     *service.RouterService
	Workflows  *service.HandlerService
	// Checks are the dependencies probed by /ready.
	Checks []Check
}

type classifyResponse struct {
	Status         string                     `json:"status"`
	Classification email.ClassificationResult `json:"classification"`
	Routed         bool                       `json:"routed"`
	Route          json.RawMessage            `json:"route,omitempty"`
}

type dispatchErrorResponse struct {
	Status         string                     `json:"status"`
	Stage          string                     `json:"stage"`
	Error          string                     `json:"error"`
	Classification email.ClassificationResult `json:"classification"`
	Routed         bool                       `json:"routed"`
}

// Classify handles POST /classify.
func (h *Handlers) Classify(w http.ResponseWriter, r *http.Request) {
	in, ok := readJSON[email.NormalizedEmail](w, r, bodyLimit)
	if !ok {
		return
	}

	res, err := h.Classifier.Classify(r.Context(), in)
	if err != nil {
		var de *service.DispatchError
		if errors.As(err, &de) {
			writeJSON(w, http.StatusBadGateway, dispatchErrorResponse{
				Status:         "error",
				Stage:          de.Stage,
				Error:          de.Error(),
				Classification: de.Classification,
				Routed:         false,
			})
			return
		}
		writePipelineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, classifyResponse{
		Status:         "success",
		Classification: res.Classification,
		Routed:         true,
		Route:          res.Route,
	})
}

type routeResponse struct {
	Status      string             `json:"status"`
	Handler     email.WorkflowType `json:"handler"`
	Result      json.RawMessage    `json:"result"`
	Fallback    bool               `json:"fallback"`
	Substituted bool               `json:"substituted"`
}

type routeErrorResponse struct {
	Status   string          `json:"status"`
	Stage    string          `json:"stage"`
	Error    string          `json:"error"`
	Kind     string          `json:"kind"`
	Attempts []route.Attempt `json:"attempts"`
}

// Route handles POST /route.
func (h *Handlers) Route(w http.ResponseWriter, r *http.Request) {
	in, ok := readJSON[email.ClassifiedEmail](w, r, bodyLimit)
	if !ok {
		return
	}

	out, err := h.Router.Route(r.Context(), in)
	if err != nil {
		var rerr *route.Error
		if errors.As(err, &rerr) {
			attempts := rerr.Attempts
			if attempts == nil {
				attempts = []route.Attempt{}
			}
			writeJSON(w, statusFor(err), routeErrorResponse{
				Status:   "error",
				Stage:    rerr.Stage,
				Error:    rerr.Error(),
				Kind:     rerr.Kind.Error(),
				Attempts: attempts,
			})
			return
		}
		writePipelineError(w, r, err)
		return
	}

	result := out.Result
	if result == nil {
		result = json.RawMessage("null")
	}
	writeJSON(w, http.StatusOK, routeResponse{
		Status:      "routed",
		Handler:     out.Handler,
		Result:      result,
		Fallback:    out.Fallback,
		Substituted: out.Substituted,
	})
}

// Workflow returns the handler for one placeholder workflow endpoint.
func (h *Handlers) Workflow(wf service.Workflow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, ok := readJSON[email.ClassifiedEmail](w, r, bodyLimit)
		if !ok {
			return
		}
		status, err := h.Workflows.Handle(r.Context(), wf, in)
		if err != nil {
			writePipelineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": status})
	}
}
