// Package server is the local HTTP API over the case repository and the
// capture workflow.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/elparko/CaseTracker/internal/casebook"
	"github.com/elparko/CaseTracker/internal/metrics"
	"github.com/elparko/CaseTracker/internal/workflow"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// maxUpload bounds uploaded recordings.
const maxUpload = 100 << 20

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures a Server.
type Options struct {
	// AllowedOrigins are the browser origins permitted by CORS.
	AllowedOrigins []string
	// Workflow supplies the gateways and audio store for capture endpoints.
	// Its Cases field is replaced by the service.
	Workflow workflow.Deps
	// Checks are pinged by /healthz, keyed by service name.
	Checks  map[string]Pinger
	Metrics *metrics.Collector
	Log     *zap.Logger
}

// Server routes HTTP requests to the case service.
type Server struct {
	svc      *casebook.Service
	opts     Options
	validate *requestValidator
	log      *zap.Logger
}

// New creates a server over svc.
func New(svc *casebook.Service, opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	opts.Workflow.Cases = svc
	if opts.Workflow.Log == nil {
		opts.Workflow.Log = log.Named("workflow")
	}
	return &Server{
		svc:      svc,
		opts:     opts,
		validate: newRequestValidator(),
		log:      log,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.requestLogger)
	if s.opts.Metrics != nil {
		r.Use(s.opts.Metrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.health)
	if s.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/cases", func(r chi.Router) {
			r.Get("/", s.listCases)
			r.Post("/", s.createCase)
			r.Post("/upload-audio", s.uploadAudio)
			r.Get("/{caseID}", s.getCase)
			r.Put("/{caseID}", s.updateCase)
			r.Delete("/{caseID}", s.deleteCase)
			r.Delete("/{caseID}/tags", s.removeTags)
		})
		r.Get("/search", s.search)
		r.Get("/tags", s.listTags)
		r.Get("/tags/suggest", s.suggestTags)
		r.Get("/analytics/summary", s.analyticsSummary)
		r.Post("/transcribe-only", s.transcribeOnly)
		r.Post("/analyze-transcription", s.analyzeTranscription)
	})

	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.log.Info("http server stopped")
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", chimiddleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) newSession() *workflow.Session {
	return workflow.NewSession(s.opts.Workflow)
}
