package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Strob0t/mailflow/internal/adapter/forward"
	mfhttp "github.com/Strob0t/mailflow/internal/adapter/http"
	"github.com/Strob0t/mailflow/internal/adapter/litellm"
	mfnats "github.com/Strob0t/mailflow/internal/adapter/nats"
	"github.com/Strob0t/mailflow/internal/adapter/otel"
	"github.com/Strob0t/mailflow/internal/config"
	"github.com/Strob0t/mailflow/internal/logger"
	"github.com/Strob0t/mailflow/internal/port/messagequeue"
	"github.com/Strob0t/mailflow/internal/resilience"
	"github.com/Strob0t/mailflow/internal/service"
)

const shutdownTimeout = 30 * time.Second

// Component names, used for the service log attribute and span names.
const (
	componentClassifier = "classifier"
	componentRouter     = "router"
	componentHandlers   = "handlers"
)

var serveCmd = &cobra.Command{
	Use:       "serve classifier|router|handlers|all",
	Short:     "Run one or all pipeline services",
	Long:      "Runs the classifier (:8001), the router (:8002), the placeholder workflow handlers (:8003), or all three in one process.",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{componentClassifier, componentRouter, componentHandlers, "all"},
	RunE:      runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	components := []string{args[0]}
	if args[0] == "all" {
		components = []string{componentHandlers, componentRouter, componentClassifier}
	}
	if err := requireConfig(cfg, components); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	serviceName := "mailflow"
	if len(components) == 1 {
		serviceName += "-" + components[0]
	}
	if cfg.Logging.Service == "" {
		cfg.Logging.Service = serviceName
	}
	log, closeLog := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer closeLog.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOtel, err := otel.Setup(ctx, cfg.Telemetry, serviceName, version)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOtel(sctx); err != nil {
			slog.Warn("otel shutdown failed", "error", err)
		}
	}()

	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	events, natsCheck := connectEvents(ctx, cfg, serviceName)
	defer func() { _ = events.Close() }()

	breakers := resilience.NewSet(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	breakers.OnStateChange(func(name, from, to string) {
		slog.Warn("circuit breaker state changed", "target", name, "from", from, "to", to)
	})

	slog.Info("config loaded",
		"components", components,
		"log_level", cfg.Logging.Level,
		"nats", cfg.NATS.URL != "",
		"otel", cfg.Telemetry.Endpoint != "",
	)

	servers := make([]*http.Server, 0, len(components))
	for _, c := range components {
		switch c {
		case componentClassifier:
			servers = append(servers, newClassifierServer(cfg, metrics, breakers, natsCheck))
		case componentRouter:
			servers = append(servers, newRouterServer(cfg, events, metrics, breakers, natsCheck))
		case componentHandlers:
			servers = append(servers, newHandlersServer(cfg, events, natsCheck))
		}
	}

	return serve(ctx, servers)
}

// requireConfig checks the values each component cannot start without.
func requireConfig(cfg *config.Config, components []string) error {
	var errs []error
	for _, c := range components {
		switch c {
		case componentClassifier:
			errs = append(errs, cfg.RequireClassifier())
		case componentRouter:
			errs = append(errs, cfg.RequireRouter())
		case componentHandlers:
			errs = append(errs, cfg.RequireHandlers())
		}
	}
	return errors.Join(errs...)
}

// connectEvents returns the event publisher and, when NATS is configured,
// a readiness check for it. Events are best-effort: a broker that cannot
// be reached at startup is logged and replaced by a no-op publisher.
func connectEvents(ctx context.Context, cfg *config.Config, serviceName string) (messagequeue.Publisher, []mfhttp.Check) {
	if cfg.NATS.URL == "" {
		return messagequeue.Nop{}, nil
	}
	q, err := mfnats.Connect(ctx, cfg.NATS.URL, serviceName)
	if err != nil {
		slog.Warn("nats unavailable, pipeline events disabled", "url", cfg.NATS.URL, "error", err)
		return messagequeue.Nop{}, nil
	}
	check := mfhttp.Check{Name: "nats", Fn: func(context.Context) error {
		if !q.IsConnected() {
			return errors.New("disconnected")
		}
		return nil
	}}
	return q, []mfhttp.Check{check}
}

func newClassifierServer(cfg *config.Config, metrics *otel.Metrics, breakers *resilience.Set, checks []mfhttp.Check) *http.Server {
	llm := litellm.NewClient(litellm.Options{
		BaseURL:     cfg.LiteLLM.URL,
		APIKey:      cfg.LiteLLM.APIKey,
		Model:       cfg.LiteLLM.Model,
		Temperature: cfg.LiteLLM.Temperature,
		Timeout:     cfg.LiteLLM.Timeout,
	})
	llm.SetBreaker(breakers.Get("litellm"))
	limiter := resilience.NewLimiter(cfg.Classifier.MaxConcurrent)
	llm.SetLimiter(limiter)

	// No breaker towards the router: a 502 from the router reports a
	// handler outage, not a router outage.
	poster := forward.NewClient(cfg.Classifier.Timeout)

	svc := service.NewClassifierService(llm, poster, service.ClassifierOptions{
		Threshold:         cfg.Classifier.Threshold,
		RouterURL:         cfg.Classifier.RouterURL,
		CapabilityTimeout: cfg.LiteLLM.Timeout,
		DispatchTimeout:   cfg.Classifier.Timeout,
	}, metrics)
	slog.Info("classifier configured",
		"model", llm.Model(),
		"confidence_threshold", svc.Threshold(),
		"max_concurrent", limiter.Limit(),
		"router_url", cfg.Classifier.RouterURL,
	)

	h := &mfhttp.Handlers{
		Classifier: svc,
		Checks: append([]mfhttp.Check{{Name: "litellm", Fn: func(ctx context.Context) error {
			_, err := llm.Health(ctx)
			return err
		}}}, checks...),
	}
	r := mfhttp.NewRouter("mailflow-" + componentClassifier)
	mfhttp.MountClassifierRoutes(r, h)
	return newServer(cfg.Server.ClassifierPort, r)
}

func newRouterServer(cfg *config.Config, events messagequeue.Publisher, metrics *otel.Metrics, breakers *resilience.Set, checks []mfhttp.Check) *http.Server {
	poster := forward.NewClient(cfg.Router.Timeout)
	poster.SetBreakers(breakers)

	svc := service.NewRouterService(cfg.Router.Handlers.Map(), poster, cfg.Router.Timeout, events, metrics)

	r := mfhttp.NewRouter("mailflow-" + componentRouter)
	mfhttp.MountRouterRoutes(r, &mfhttp.Handlers{Router: svc, Checks: checks})
	return newServer(cfg.Server.RouterPort, r)
}

func newHandlersServer(cfg *config.Config, events messagequeue.Publisher, checks []mfhttp.Check) *http.Server {
	r := mfhttp.NewRouter("mailflow-" + componentHandlers)
	mfhttp.MountHandlerRoutes(r, &mfhttp.Handlers{Workflows: service.NewHandlerService(events), Checks: checks})
	return newServer(cfg.Server.HandlersPort, r)
}

func newServer(port string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// serve runs every server until ctx is cancelled or one of them fails,
// then shuts all of them down gracefully.
func serve(ctx context.Context, servers []*http.Server) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, srv := range servers {
		g.Go(func() error {
			slog.Info("starting server", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("shutdown %s: %w", srv.Addr, err))
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
