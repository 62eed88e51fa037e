package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/sealgate/internal/logging"
	"github.com/aretw0/sealgate/pkg/audit"
	"github.com/aretw0/sealgate/pkg/auth"
	"github.com/aretw0/sealgate/pkg/domain"
	"github.com/aretw0/sealgate/pkg/observability"
	"github.com/aretw0/sealgate/pkg/ports"
	"github.com/aretw0/sealgate/pkg/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// routePrefixes maps URL prefixes onto the container mode they serve.
var routePrefixes = map[string]domain.Kind{
	"containers":         domain.KindAttached,
	"hashcodecontainers": domain.KindHashcode,
	"asiccontainers":     domain.KindAsic,
}

// Server exposes the workflow service over HTTP.
type Server struct {
	authn     *auth.Authenticator
	sessions  *session.Service
	trail     *audit.Trail
	metrics   *observability.Metrics
	validator *requestValidator
	maxBody   int64
	logger    *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithTrail enables request auditing.
func WithTrail(trail *audit.Trail) Option {
	return func(s *Server) {
		s.trail = trail
	}
}

// WithMetrics records request metrics and serves /metrics.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = metrics
	}
}

// WithMaxBodyBytes bounds request bodies. Defaults to auth.DefaultMaxBodyBytes.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		s.maxBody = n
	}
}

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewHandler creates the HTTP handler. Every container route requires a
// valid HMAC signature; /health, /metrics and /openapi.yaml do not.
func NewHandler(authn *auth.Authenticator, sessions *session.Service, opts ...Option) (http.Handler, error) {
	validator, err := newRequestValidator()
	if err != nil {
		return nil, err
	}
	s := &Server{
		authn:     authn,
		sessions:  sessions,
		trail:     audit.NewTrail(nil),
		metrics:   observability.NewMetrics(),
		validator: validator,
		maxBody:   auth.DefaultMaxBodyBytes,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/health", s.health)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		_, _ = w.Write(rawSpec)
	})
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(swaggerHTML))
	})

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(s.validate)
		for prefix, kind := range routePrefixes {
			h := containerHandlers{s: s, kind: kind}
			r.Route("/"+prefix, func(r chi.Router) {
				r.Post("/", h.create)
				r.Get("/{containerId}", h.get)
				r.Delete("/{containerId}", h.remove)
				r.Post("/{containerId}/remotesigning", h.startSigning)
				r.Put("/{containerId}/remotesigning/{signatureId}", h.finishSigning)
				r.Get("/{containerId}/signatures/{signatureId}/status", h.status)
				r.Put("/{containerId}/finalize", h.finalize)
			})
		}
	})

	return r, nil
}

// HealthResponse reports store reachability next to the session count.
// A zero count alone cannot tell an idle store from a disconnected one.
type HealthResponse struct {
	Status   string `json:"status"`
	Sessions int64  `json:"sessions"`
	Store    string `json:"store"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "UP", Store: "UP"}
	store := s.sessions.Store()

	var err error
	if p, ok := store.(ports.Pinger); ok {
		err = p.Ping(ctx)
	}
	if err == nil {
		resp.Sessions, err = store.Size(ctx)
	}
	if err != nil {
		s.logger.Warn("Health check failed", "err", err)
		resp.Status, resp.Store = "DOWN", "DOWN"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListenAndServe runs handler on addr until ctx is done, then shuts down gracefully.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

const swaggerHTML = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Sealgate API Documentation</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js" crossorigin></script>
<script>
    window.onload = () => {
    window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui',
    });
    };
</script>
</body>
</html>
`
