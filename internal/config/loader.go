package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "mailflow.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The YAML path is taken from MAILFLOW_CONFIG when set. A missing file is
// not an error.
func Load() (*Config, error) {
	path := DefaultConfigFile
	if p := os.Getenv("MAILFLOW_CONFIG"); p != "" {
		path = p
	}
	return LoadFrom(path)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	if err := loadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config env: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from operator config
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config. A numeric value
// that does not parse is an error rather than silently ignored.
func loadEnv(cfg *Config) error {
	setString(&cfg.Server.ClassifierPort, "MAILFLOW_CLASSIFIER_PORT")
	setString(&cfg.Server.RouterPort, "MAILFLOW_ROUTER_PORT")
	setString(&cfg.Server.HandlersPort, "MAILFLOW_HANDLERS_PORT")

	// Endpoints
	setString(&cfg.Classifier.RouterURL, "ROUTER_AGENT_URL")
	setString(&cfg.Router.Handlers.InvoiceRequest, "INVOICE_HANDLER_URL")
	setString(&cfg.Router.Handlers.AppointmentBooking, "SCHEDULER_URL")
	setString(&cfg.Router.Handlers.NewClientInquiry, "INFO_RETRIEVAL_URL")
	setString(&cfg.Router.Handlers.HumanReview, "HUMAN_REVIEW_URL")

	// Classification capability
	setString(&cfg.LiteLLM.URL, "LITELLM_URL")
	setString(&cfg.LiteLLM.APIKey, "OPENAI_API_KEY")
	setString(&cfg.LiteLLM.APIKey, "LITELLM_MASTER_KEY")
	setString(&cfg.LiteLLM.Model, "MAILFLOW_LLM_MODEL")

	setString(&cfg.Logging.Level, "MAILFLOW_LOG_LEVEL")
	setString(&cfg.Logging.Service, "MAILFLOW_LOG_SERVICE")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")

	return errors.Join(
		setFloat64(&cfg.Classifier.Threshold, "CONFIDENCE_THRESHOLD"),
		setDuration(&cfg.Classifier.Timeout, "MAILFLOW_CLASSIFIER_TIMEOUT"),
		setInt(&cfg.Classifier.MaxConcurrent, "MAILFLOW_CLASSIFIER_MAX_CONCURRENT"),
		setDuration(&cfg.Router.Timeout, "MAILFLOW_ROUTER_TIMEOUT"),
		setFloat64(&cfg.LiteLLM.Temperature, "MAILFLOW_LLM_TEMPERATURE"),
		setDuration(&cfg.LiteLLM.Timeout, "MAILFLOW_LLM_TIMEOUT"),
		setBool(&cfg.Logging.Async, "MAILFLOW_LOG_ASYNC"),
		setInt(&cfg.Breaker.MaxFailures, "MAILFLOW_BREAKER_MAX_FAILURES"),
		setDuration(&cfg.Breaker.Timeout, "MAILFLOW_BREAKER_TIMEOUT"),
		setBool(&cfg.Telemetry.Insecure, "MAILFLOW_OTEL_INSECURE"),
		setFloat64(&cfg.Telemetry.SampleRatio, "MAILFLOW_OTEL_SAMPLE_RATIO"),
	)
}

// validate checks invariants shared by every service.
func validate(cfg *Config) error {
	if !unitInterval(cfg.Classifier.Threshold) {
		return errors.New("classifier.confidence_threshold must be within [0,1]")
	}
	if cfg.Classifier.Timeout <= 0 {
		return errors.New("classifier.timeout must be > 0")
	}
	if cfg.Classifier.MaxConcurrent < 1 {
		return errors.New("classifier.max_concurrent must be >= 1")
	}
	if cfg.Router.Timeout <= 0 {
		return errors.New("router.timeout must be > 0")
	}
	if cfg.LiteLLM.Timeout <= 0 {
		return errors.New("litellm.timeout must be > 0")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if !unitInterval(cfg.Telemetry.SampleRatio) {
		return errors.New("telemetry.sample_ratio must be within [0,1]")
	}
	return nil
}

// RequireClassifier checks the values the classifier cannot start without.
func (c *Config) RequireClassifier() error {
	if c.Server.ClassifierPort == "" {
		return errors.New("server.classifier_port is required")
	}
	if err := requireURL(c.LiteLLM.URL, "litellm.url"); err != nil {
		return err
	}
	if c.LiteLLM.APIKey == "" {
		return errors.New("litellm.api_key is required")
	}
	if c.LiteLLM.Model == "" {
		return errors.New("litellm.model is required")
	}
	return requireURL(c.Classifier.RouterURL, "classifier.router_url")
}

// RequireRouter checks the values the router cannot start without. Only the
// human-review address is mandatory; it is the substitute for the others.
func (c *Config) RequireRouter() error {
	if c.Server.RouterPort == "" {
		return errors.New("server.router_port is required")
	}
	h := c.Router.Handlers
	if err := requireURL(h.HumanReview, "router.handlers.human_review"); err != nil {
		return err
	}
	optional := []struct{ addr, name string }{
		{h.InvoiceRequest, "router.handlers.invoice_request"},
		{h.AppointmentBooking, "router.handlers.appointment_booking"},
		{h.NewClientInquiry, "router.handlers.new_client_inquiry"},
	}
	for _, o := range optional {
		if o.addr == "" {
			continue
		}
		if err := requireURL(o.addr, o.name); err != nil {
			return err
		}
	}
	return nil
}

// RequireHandlers checks the values the placeholder handlers need.
func (c *Config) RequireHandlers() error {
	if c.Server.HandlersPort == "" {
		return errors.New("server.handlers_port is required")
	}
	return nil
}

func requireURL(raw, name string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", name)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL", name)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// unitInterval reports whether f lies in [0,1]. NaN does not.
func unitInterval(f float64) bool {
	return f >= 0 && f <= 1
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %q is not an integer", key, v)
	}
	*dst = n
	return nil
}

func setFloat64(dst *float64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("%s: %q is not a finite number", key, v)
	}
	*dst = f
	return nil
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %q is not a boolean", key, v)
	}
	*dst = b
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %q is not a duration", key, v)
	}
	*dst = d
	return nil
}
