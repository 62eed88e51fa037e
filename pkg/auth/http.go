package auth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aretw0/sealgate/pkg/domain"
)

// Wire names of the authentication headers.
const (
	HeaderServiceUUID = "X-Authorization-ServiceUuid"
	HeaderTimestamp   = "X-Authorization-Timestamp"
	HeaderSignature   = "X-Authorization-Signature"
	HeaderAlgorithm   = "X-Authorization-Hmac-Algorithm"
)

// DefaultMaxBodyBytes bounds the payload read for signature verification.
const DefaultMaxBodyBytes int64 = 32 << 20

// FromHTTPRequest extracts the signed material of r. The body is read in full
// and replaced so downstream handlers can read it again.
func FromHTTPRequest(r *http.Request, maxBody int64) (SignedRequest, error) {
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	var payload []byte
	if r.Body != nil && r.Body != http.NoBody {
		data, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
		if err != nil {
			return SignedRequest{}, domain.NewAuthError(domain.ReasonMalformedRequest, "unreadable body: %v", err)
		}
		_ = r.Body.Close()
		if int64(len(data)) > maxBody {
			return SignedRequest{}, domain.NewAuthError(domain.ReasonMalformedRequest, "body exceeds %d bytes", maxBody)
		}
		payload = data
		r.Body = io.NopCloser(bytes.NewReader(data))
	}

	// An absent header is resolved by the Authenticator's configured default.
	alg := Algorithm(r.Header.Get(HeaderAlgorithm))
	if alg != "" {
		if _, err := ParseAlgorithm(string(alg)); err != nil {
			return SignedRequest{}, domain.NewAuthError(domain.ReasonMalformedRequest, "%s", err.Error())
		}
	}

	return SignedRequest{
		ServiceUUID: r.Header.Get(HeaderServiceUUID),
		Timestamp:   r.Header.Get(HeaderTimestamp),
		Signature:   r.Header.Get(HeaderSignature),
		Algorithm:   alg,
		Method:      r.Method,
		URI:         r.URL.RequestURI(),
		Payload:     payload,
	}, nil
}

// AuthenticateHTTP extracts and verifies r in one step.
func (a *Authenticator) AuthenticateHTTP(r *http.Request, maxBody int64) (domain.AuthenticatedIdentity, int, error) {
	req, err := FromHTTPRequest(r, maxBody)
	if err != nil {
		return domain.AuthenticatedIdentity{}, 0, err
	}
	id, err := a.Authenticate(r.Context(), req)
	return id, len(req.Payload), err
}

// SignHTTPRequest sets the authentication headers on an outgoing request.
// The body, if any, is read and restored.
func SignHTTPRequest(r *http.Request, serviceUUID string, secret []byte, alg Algorithm, now time.Time) error {
	if serviceUUID == "" {
		return errors.New("service uuid is required")
	}
	var payload []byte
	if r.Body != nil && r.Body != http.NoBody {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return fmt.Errorf("failed to read request body: %w", err)
		}
		_ = r.Body.Close()
		payload = data
		r.Body = io.NopCloser(bytes.NewReader(data))
	}
	if alg == "" {
		alg = DefaultAlgorithm
	}

	req := SignedRequest{
		ServiceUUID: serviceUUID,
		Timestamp:   FormatTimestamp(now),
		Algorithm:   alg,
		Method:      r.Method,
		URI:         r.URL.RequestURI(),
		Payload:     payload,
	}
	r.Header.Set(HeaderServiceUUID, req.ServiceUUID)
	r.Header.Set(HeaderTimestamp, req.Timestamp)
	r.Header.Set(HeaderAlgorithm, string(alg))
	r.Header.Set(HeaderSignature, Sign(secret, req))
	return nil
}

type identityKey struct{}

// WithIdentity stores an authenticated identity in ctx.
func WithIdentity(ctx context.Context, id domain.AuthenticatedIdentity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity stored by WithIdentity.
func IdentityFromContext(ctx context.Context) (domain.AuthenticatedIdentity, bool) {
	id, ok := ctx.Value(identityKey{}).(domain.AuthenticatedIdentity)
	return id, ok
}
