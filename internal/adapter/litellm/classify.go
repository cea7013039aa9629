package litellm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Strob0t/mailflow/internal/domain/email"
)

const systemPrompt = `You are an email classification expert. Analyze the email and classify it into exactly one of these categories:
- InvoiceRequest: emails about invoices, billing, payments or financial documents
- AppointmentBooking: emails about scheduling, meetings, appointments or calendar events
- NewClientInquiry: emails from potential new clients asking about services or products
- HumanReview: emails that do not clearly fit the categories above or are ambiguous

Provide a confidence score between 0 and 1 indicating how confident you are in the classification.
Respond with a single JSON object with the fields "workflow_type" and "confidence_score" and nothing else.`

const userPromptTemplate = `Please classify this email:

From: %s
Subject: %s
Body: %s
Received: %s`

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type jsonSchemaFormat struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type responseFormat struct {
	Type       string           `json:"type"`
	JSONSchema jsonSchemaFormat `json:"json_schema"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// ErrMalformedOutput is returned when the model's answer does not match the
// ClassificationResult schema.
var ErrMalformedOutput = errors.New("malformed classification output")

// classificationSchema is the JSON schema the model is constrained to.
func classificationSchema() map[string]any {
	types := email.WorkflowTypes()
	enum := make([]string, len(types))
	for i, w := range types {
		enum[i] = w.String()
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"workflow_type":    map[string]any{"type": "string", "enum": enum},
			"confidence_score": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
		},
		"required":             []string{"workflow_type", "confidence_score"},
		"additionalProperties": false,
	}
}

func buildRequest(model string, temperature float64, e email.NormalizedEmail) chatRequest {
	return chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf(userPromptTemplate, e.Sender, e.Subject, e.Body, e.ReceivedTime)},
		},
		Temperature: temperature,
		ResponseFormat: responseFormat{
			Type: "json_schema",
			JSONSchema: jsonSchemaFormat{
				Name:   "classification_result",
				Strict: true,
				Schema: classificationSchema(),
			},
		},
	}
}

// Classify asks the model for a classification of e. The answer is decoded
// strictly: unknown or missing fields, an unknown workflow type or a score
// outside [0,1] all yield ErrMalformedOutput.
func (c *Client) Classify(ctx context.Context, e email.NormalizedEmail) (email.ClassificationResult, error) {
	body, err := json.Marshal(buildRequest(c.model, c.temperature, e))
	if err != nil {
		return email.ClassificationResult{}, fmt.Errorf("marshal completion request: %w", err)
	}

	data, err := c.doRequest(ctx, http.MethodPost, "/chat/completions", body)
	if err != nil {
		return email.ClassificationResult{}, fmt.Errorf("chat completion: %w", err)
	}

	var resp chatResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return email.ClassificationResult{}, fmt.Errorf("unmarshal completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return email.ClassificationResult{}, fmt.Errorf("%w: no choices in completion", ErrMalformedOutput)
	}

	return ParseResult(resp.Choices[0].Message.Content)
}

// ParseResult decodes a model answer into a ClassificationResult.
func ParseResult(content string) (email.ClassificationResult, error) {
	raw := []byte(unfence(content))

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return email.ClassificationResult{}, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	for k := range fields {
		if k != "workflow_type" && k != "confidence_score" {
			return email.ClassificationResult{}, fmt.Errorf("%w: unknown field %q", ErrMalformedOutput, k)
		}
	}

	var r email.ClassificationResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return email.ClassificationResult{}, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if err := r.Validate(); err != nil {
		return email.ClassificationResult{}, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return r, nil
}

// unfence strips a surrounding ``` or ```json code fence.
func unfence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
