package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"zapreply/pkg/config"
	"zapreply/pkg/metrics"
	"zapreply/pkg/provider"
	"zapreply/pkg/requestid"
	"zapreply/pkg/webhook"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultHost = "0.0.0.0"
	defaultPort = 18790

	healthCheckInterval = 30 * time.Second
	shutdownTimeout     = 5 * time.Second
)

// Service serves the webhook endpoint next to health, readiness, and metrics routes.
type Service struct {
	cfg      *config.Config
	log      *slog.Logger
	provider provider.Client
	webhook  *webhook.Handler

	mu               sync.RWMutex
	startedAt        time.Time
	providerLastOKAt time.Time
	providerLastErr  string
}

type statusResponse struct {
	Status           string `json:"status"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
	Configured       bool   `json:"configured"`
	Generation       string `json:"generation"`
	ProviderLastOKAt string `json:"provider_last_ok_at,omitempty"`
	ProviderLastErr  string `json:"provider_last_error,omitempty"`
}

// NewService wires the webhook handler into the gateway. client may be nil when generation is
// disabled.
func NewService(cfg *config.Config, handler *webhook.Handler, client provider.Client, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if handler == nil {
		return nil, errors.New("webhook handler is required")
	}
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		cfg:      cfg,
		log:      log.With("component", "gateway.service"),
		provider: client,
		webhook:  handler,
	}, nil
}

// Run listens until ctx is cancelled, then shuts the server down gracefully.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	if s.provider != nil {
		if err := s.checkProviderHealth(ctx); err != nil {
			s.log.Warn("Initial provider health check failed", "error", err)
		}
		go s.runHealthChecks(ctx)
	}

	listener, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.Addr(), err)
	}

	return s.serve(ctx, listener)
}

// Addr returns the configured listen address.
func (s *Service) Addr() string {
	host := strings.TrimSpace(s.cfg.Gateway.Host)
	if host == "" {
		host = defaultHost
	}

	port := s.cfg.Gateway.Port
	if port <= 0 {
		port = defaultPort
	}

	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Routes returns the gateway router. The webhook route accepts every method so the handler
// can answer 405 itself.
func (s *Service) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RealIP)
	router.Use(requestid.Middleware)

	router.Handle(s.cfg.WebhookPath(), s.webhook)
	router.Get("/healthz", s.handleHealth)
	router.Get("/readyz", s.handleReady)
	router.Handle("/metrics", promhttp.Handler())

	return router
}

func (s *Service) serve(ctx context.Context, listener net.Listener) error {
	server := &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("Gateway shutdown incomplete", "error", err)
		}
	}()

	s.log.Info("Gateway started",
		"address", listener.Addr().String(),
		"webhook_path", s.cfg.WebhookPath(),
		"configured", s.webhook.Configured(),
		"generation", s.generationState(),
	)
	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve gateway: %w", err)
	}

	<-shutdownDone
	s.log.Info("Gateway stopped")
	return nil
}

func (s *Service) runHealthChecks(ctx context.Context) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.checkProviderHealth(ctx); err != nil {
				s.log.Warn("Provider health check failed", "error", err)
			}
		}
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondStatus(w, http.StatusOK, "ok")
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	statusCode := http.StatusOK
	status := "ready"
	if !s.isReady() {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	s.respondStatus(w, statusCode, status)
}

func (s *Service) respondStatus(w http.ResponseWriter, statusCode int, status string) {
	payload := s.currentStatus(status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write status response", "error", err)
	}
}

func (s *Service) currentStatus(status string) statusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	providerLastOK := ""
	if !s.providerLastOKAt.IsZero() {
		providerLastOK = s.providerLastOKAt.Format(time.RFC3339)
	}

	return statusResponse{
		Status:           status,
		UptimeSeconds:    uptime,
		Configured:       s.webhook.Configured(),
		Generation:       s.generationState(),
		ProviderLastOKAt: providerLastOK,
		ProviderLastErr:  s.providerLastErr,
	}
}

// isReady requires complete configuration and, with generation enabled, a healthy provider.
func (s *Service) isReady() bool {
	if !s.webhook.Configured() {
		return false
	}
	if s.provider == nil {
		return true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.providerLastOKAt.IsZero() {
		return false
	}

	return s.providerLastErr == ""
}

func (s *Service) checkProviderHealth(ctx context.Context) error {
	if err := s.provider.Health(ctx); err != nil {
		s.mu.Lock()
		s.providerLastErr = err.Error()
		s.mu.Unlock()
		metrics.SetProviderHealthy(false)
		return fmt.Errorf("provider health check failed: %w", err)
	}

	s.mu.Lock()
	s.providerLastErr = ""
	s.providerLastOKAt = time.Now().UTC()
	s.mu.Unlock()
	metrics.SetProviderHealthy(true)

	return nil
}

func (s *Service) generationState() string {
	if s.provider == nil {
		return "disabled"
	}

	return "enabled"
}
