// Package httpapi wires the analysis pipeline, quota tracker, and billing
// sync into the HTTP surface of the service.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/didifkup/vibecheck/internal/analyze"
	"github.com/didifkup/vibecheck/internal/auth"
	"github.com/didifkup/vibecheck/internal/billing"
	"github.com/didifkup/vibecheck/internal/config"
	"github.com/didifkup/vibecheck/internal/persist"
	"github.com/didifkup/vibecheck/internal/quota"
	"github.com/didifkup/vibecheck/internal/ratelimit"
	"github.com/didifkup/vibecheck/internal/store"
)

// identityVerifier resolves bearer tokens to users.
type identityVerifier interface {
	Verify(ctx context.Context, accessToken string) (*auth.User, error)
}

// analyzer runs the prompt → model → reconcile pipeline.
type analyzer interface {
	Analyze(ctx context.Context, req *analyze.AnalysisRequest) (*analyze.AnalysisResult, bool)
}

// Service is the HTTP API.
type Service struct {
	cfg       *config.Config
	verifier  identityVerifier
	pipeline  analyzer
	tracker   *quota.Tracker
	sink      *persist.Sink
	profiles  *store.ProfileStore
	usage     *store.UsageStore
	scenarios *store.ScenarioStore
	billing   *billing.Processor
	limiter   ratelimit.Limiter
	router    chi.Router
	metrics   *serviceMetrics
	startTime time.Time
}

// Deps carries the collaborators a Service needs.
type Deps struct {
	Config    *config.Config
	Verifier  identityVerifier
	Pipeline  analyzer
	Tracker   *quota.Tracker
	Sink      *persist.Sink
	Profiles  *store.ProfileStore
	Usage     *store.UsageStore
	Scenarios *store.ScenarioStore
	Billing   *billing.Processor
	Limiter   ratelimit.Limiter
}

// NewService creates the API service and mounts its routes.
func NewService(deps Deps) *Service {
	s := &Service{
		cfg:       deps.Config,
		verifier:  deps.Verifier,
		pipeline:  deps.Pipeline,
		tracker:   deps.Tracker,
		sink:      deps.Sink,
		profiles:  deps.Profiles,
		usage:     deps.Usage,
		scenarios: deps.Scenarios,
		billing:   deps.Billing,
		limiter:   deps.Limiter,
		router:    chi.NewRouter(),
		metrics:   newServiceMetrics(),
		startTime: time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes mounts middleware and handlers. CORS runs first so OPTIONS
// preflights never touch auth, quota, or the model.
func (s *Service) setupRoutes() {
	s.router.Use(s.cors)
	s.router.Use(requestID)
	s.router.Use(recoverer)

	s.router.Get("/api/healthz", s.handleHealthz)
	s.router.Post("/api/billing/webhook", s.handleBillingWebhook)

	s.router.Group(func(r chi.Router) {
		r.Use(rateLimit(s.limiter))
		r.Post("/api/analyze", s.handleAnalyze)
		r.Get("/api/usage", s.handleUsage)
		r.Get("/api/history", s.handleHistory)
	})
}

// Router returns the HTTP handler for the service.
func (s *Service) Router() http.Handler {
	return s.router
}
