package http

import (
	"net/http"
	"time"

	"github.com/aretw0/sealgate/pkg/audit"
	"github.com/aretw0/sealgate/pkg/auth"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// observe opens the audit handle and records request metrics. The end hook
// runs on every exit path, including panics, which are re-raised afterwards.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		length := r.ContentLength
		if length < 0 {
			length = 0
		}
		ctx, h := s.trail.OnRequestStart(r.Context(), audit.RequestInfo{
			RequestID:     middleware.GetReqID(r.Context()),
			Method:        r.Method,
			URI:           r.URL.RequestURI(),
			PayloadLength: length,
			ServiceUUID:   r.Header.Get(auth.HeaderServiceUUID),
		})

		defer func() {
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			rec := recover()
			if rec != nil {
				status = http.StatusInternalServerError
				h.SetError(CodeInternal, "Internal server error")
			}
			s.trail.OnRequestEnd(h, status)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			s.metrics.ObserveRequest(r.Method, route, status, time.Since(start))

			if rec != nil {
				panic(rec)
			}
		}()

		next.ServeHTTP(ww, r.WithContext(ctx))
	})
}

// authenticate verifies the HMAC headers and stores the caller identity in
// the request context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, _ := audit.FromContext(r.Context())
		var span *audit.Span
		if h != nil {
			span = h.Begin(audit.EventAuthentication)
		}

		identity, _, err := s.authn.AuthenticateHTTP(r, s.maxBody)
		s.metrics.ObserveAuth(err)
		if err != nil {
			_, _, msg := classify(err)
			span.Fail(audit.ErrorCodeAuthentication, msg)
			s.writeError(w, r, err)
			return
		}
		span.End()
		if h != nil {
			h.SetIdentity(identity)
		}

		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
	})
}

// validate rejects requests that do not match the OpenAPI document.
func (s *Server) validate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.validator.validate(r); err != nil {
			s.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}
