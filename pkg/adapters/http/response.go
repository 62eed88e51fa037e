package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aretw0/sealgate/pkg/audit"
	"github.com/aretw0/sealgate/pkg/domain"
)

// Error codes returned in the errorCode field.
const (
	CodeAuthorization     = "AUTHORIZATION_ERROR"
	CodeNotFound          = "RESOURCE_NOT_FOUND"
	CodeRequestValidation = "REQUEST_VALIDATION_EXCEPTION"
	CodeInternal          = "INTERNAL_SERVER_ERROR"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// ResultResponse acknowledges operations without a payload.
type ResultResponse struct {
	Result string `json:"result"`
}

var resultOK = ResultResponse{Result: "OK"}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Response encode failed", "err", err)
	}
}

// classify maps an error onto status, code and client-facing message.
func classify(err error) (int, string, string) {
	var (
		authErr *domain.AuthenticationError
		invalid *domain.InvalidRequestError
	)
	switch {
	case errors.As(err, &authErr):
		return http.StatusUnauthorized, CodeAuthorization, authMessage(authErr.Reason)
	case errors.As(err, &invalid):
		return http.StatusBadRequest, CodeRequestValidation, invalid.Detail
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, CodeNotFound, err.Error()
	}
	return http.StatusInternalServerError, CodeInternal, "Internal server error"
}

func authMessage(reason domain.AuthReason) string {
	switch reason {
	case domain.ReasonMalformedRequest:
		return "Malformed authentication headers"
	case domain.ReasonUnknownIdentity:
		return "Unknown or inactive service"
	case domain.ReasonBadSignature:
		return "Invalid signature"
	case domain.ReasonExpired:
		return "Request timestamp expired"
	}
	return "Authentication failed"
}

// writeError renders err and annotates the request's audit handle.
// Expected client failures are logged at Info, everything else at Error.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := classify(err)
	if h, ok := audit.FromContext(r.Context()); ok {
		h.SetError(code, msg)
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "method", r.Method, "uri", r.URL.RequestURI(), "err", err)
	} else {
		s.logger.Info("Request rejected", "method", r.Method, "uri", r.URL.RequestURI(), "status", status, "err", err)
	}
	writeJSON(w, status, ErrorResponse{ErrorCode: code, ErrorMessage: msg})
}
