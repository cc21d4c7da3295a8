package http

import (
	"context"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"costbook/internal/core"
	"costbook/internal/log"
	"costbook/internal/middleware/ratelimit"
	"costbook/internal/middleware/security"
	"costbook/internal/middleware/trace"
	"costbook/internal/report"
	"costbook/internal/services"
	appweb "costbook/web"
)

// ReportSource builds project reports.
type ReportSource interface {
	ProjectReport(ctx context.Context, projectID string) (report.ProjectReport, error)
}

// Deps are the collaborators the server is built from.
type Deps struct {
	Projects *services.ProjectService
	Reports  ReportSource
	Logger   *log.Logger
	// Ready reports whether backing stores are reachable. Nil means always ready.
	Ready     func(ctx context.Context) error
	RateLimit ratelimit.Config
}

type Server struct {
	http.Server
	templates *template.Template
	projects  *services.ProjectService
	reports   ReportSource
	ready     func(ctx context.Context) error
	logger    *log.Logger

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	shutdownOnce sync.Once
}

func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		projects: deps.Projects,
		reports:  deps.Reports,
		ready:    deps.Ready,
		logger:   logger,
		limiter:  ratelimit.NewLimiter(deps.RateLimit),
		detector: security.NewDetector(),
		tracer:   trace.NewMiddleware(),
	}

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Warn("Failed parsing templates", log.FieldError, err)
	}
	s.templates = t

	s.Handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(s.tracer.Middleware)
	r.Use(log.Middleware(s.logger))
	r.Use(log.RequestIDMiddleware(trace.RequestIDFromRequest))
	r.Use(log.AccessLog(s.detector.ExtractClientIP))
	r.Use(s.detector.Middleware)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(s.limiter.Middleware(s.detector.ExtractClientIP, s.handleRateLimited))

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/projects/{id}/report", s.handleReportPage)

	r.Route("/api/projects", func(r chi.Router) {
		r.Get("/", s.handleListProjects)
		r.Post("/", s.handleCreateProject)
		r.Post("/import", s.handleImportProject)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetProject)
			r.Delete("/", s.handleDeleteProject)
			r.Get("/report", s.handleReport)
			r.Get("/reconciliation", s.handleReconciliation)

			r.Post("/milestones", s.handleCreateMilestone)
			r.Post("/line-items", s.handleCreateLineItem)
			r.Post("/materials", s.handleCreateMaterial)
			r.Post("/payments", s.handleCreatePayment)
			r.Delete("/{kind}/{itemID}", s.handleDeleteEntity)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusNotFound, errorResponse{Error: "route not found", Code: "not_found"})
	})
	return r
}

// Shutdown stops the rate limiter and gracefully shuts the server down.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	writeJSON(w, r, http.StatusTooManyRequests, errorResponse{
		Error: "rate limit exceeded, please try again later",
		Code:  "rate_limited",
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	m := s.tracer.GetMetrics()
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":              "ready",
		"requests":            m.TotalRequests,
		"rate_limited":        s.limiter.Rejected(),
		"suspicious_requests": s.detector.SuspiciousRequests(),
	})
}

var templateFuncs = template.FuncMap{
	"indent": func(depth int) int { return depth * 20 },
	"status": func(c core.Classification) string {
		switch c {
		case core.Over:
			return "Over-billed"
		case core.Under:
			return "Under-billed"
		default:
			return "Billed in full"
		}
	},
}
