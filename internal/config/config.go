// Package config provides hierarchical configuration loading for mailflow.
// Precedence: defaults < YAML file < environment variables.
package config

import (
	"time"

	"github.com/Strob0t/mailflow/internal/domain/route"
)

// Config holds all runtime configuration for the mailflow services. It is
// read once at startup and passed by value or pointer into each component.
type Config struct {
	Server     Server     `yaml:"server"`
	Classifier Classifier `yaml:"classifier"`
	Router     Router     `yaml:"router"`
	LiteLLM    LiteLLM    `yaml:"litellm"`
	Logging    Logging    `yaml:"logging"`
	Breaker    Breaker    `yaml:"breaker"`
	NATS       NATS       `yaml:"nats"`
	Telemetry  Telemetry  `yaml:"telemetry"`
}

// Server holds the listen ports of each service.
type Server struct {
	ClassifierPort string `yaml:"classifier_port"`
	RouterPort     string `yaml:"router_port"`
	HandlersPort   string `yaml:"handlers_port"`
}

// Classifier holds the classification stage configuration.
type Classifier struct {
	Threshold     float64       `yaml:"confidence_threshold"` // below this the workflow is forced to HumanReview
	RouterURL     string        `yaml:"router_url"`
	Timeout       time.Duration `yaml:"timeout"`        // bound on the router call
	MaxConcurrent int           `yaml:"max_concurrent"` // concurrent capability calls
}

// Router holds the routing stage configuration.
type Router struct {
	Handlers Handlers      `yaml:"handlers"`
	Timeout  time.Duration `yaml:"timeout"` // bound on each handler call
}

// Handlers holds one address per workflow type. An empty address other than
// HumanReview is allowed and resolves to the human-review handler.
type Handlers struct {
	InvoiceRequest     string `yaml:"invoice_request"`
	AppointmentBooking string `yaml:"appointment_booking"`
	NewClientInquiry   string `yaml:"new_client_inquiry"`
	HumanReview        string `yaml:"human_review"`
}

// Map converts the configured addresses into the router's handler mapping.
func (h Handlers) Map() route.Handlers {
	return route.Handlers{
		InvoiceRequest:     h.InvoiceRequest,
		AppointmentBooking: h.AppointmentBooking,
		NewClientInquiry:   h.NewClientInquiry,
		HumanReview:        h.HumanReview,
	}
}

// LiteLLM holds the classification capability endpoint (an OpenAI-compatible
// chat completions API, usually a LiteLLM proxy).
type LiteLLM struct {
	URL         string        `yaml:"url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Breaker holds circuit breaker configuration for outbound calls.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// NATS holds the optional event broker configuration. An empty URL
// disables event publishing.
type NATS struct {
	URL string `yaml:"url"`
}

// Telemetry holds OpenTelemetry export configuration. An empty endpoint
// keeps the global no-op providers.
type Telemetry struct {
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// DefaultTimeout bounds every outbound call of the pipeline.
const DefaultTimeout = 30 * time.Second

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			ClassifierPort: "8001",
			RouterPort:     "8002",
			HandlersPort:   "8003",
		},
		Classifier: Classifier{
			Threshold:     0.85,
			RouterURL:     "http://localhost:8002/route",
			Timeout:       DefaultTimeout,
			MaxConcurrent: 16,
		},
		Router: Router{
			Handlers: Handlers{
				InvoiceRequest:     "http://localhost:8003/handle_invoice",
				AppointmentBooking: "http://localhost:8003/handle_schedule",
				NewClientInquiry:   "http://localhost:8003/handle_inquiry",
				HumanReview:        "http://localhost:8003/handle_review",
			},
			Timeout: DefaultTimeout,
		},
		LiteLLM: LiteLLM{
			URL:         "http://localhost:4000",
			Model:       "gpt-3.5-turbo",
			Temperature: 0.1,
			Timeout:     DefaultTimeout,
		},
		Logging: Logging{
			Level: "info",
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Telemetry: Telemetry{
			Insecure:    true,
			SampleRatio: 1.0,
		},
	}
}
