package auth

import (
	"context"
	"crypto/hmac"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/sealgate/internal/logging"
	"github.com/aretw0/sealgate/pkg/domain"
	"github.com/aretw0/sealgate/pkg/ports"
)

// NoExpiration disables timestamp freshness checks. Intended for test and dev setups.
const NoExpiration time.Duration = -1

// Config holds the freshness bounds of the gate.
type Config struct {
	// ClockSkew is the tolerated distance between client and server clocks. Must be >= 0.
	ClockSkew time.Duration
	// MaxAge is the absolute age limit of a request, or NoExpiration.
	MaxAge time.Duration
	// Algorithm applies to requests that do not name one. Defaults to DefaultAlgorithm.
	Algorithm Algorithm
}

// Validate checks the configured bounds.
func (c Config) Validate() error {
	if c.ClockSkew < 0 {
		return fmt.Errorf("clock skew must be >= 0, got %s", c.ClockSkew)
	}
	if c.MaxAge < 0 && c.MaxAge != NoExpiration {
		return fmt.Errorf("max age must be >= 0 or NoExpiration, got %s", c.MaxAge)
	}
	if _, err := ParseAlgorithm(string(c.Algorithm)); err != nil {
		return err
	}
	return nil
}

// Authenticator verifies signed requests against an identity directory.
// It holds no per-request state and is safe for concurrent use.
type Authenticator struct {
	directory ports.IdentityDirectory
	config    Config
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures the Authenticator.
type Option func(*Authenticator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) {
		a.now = now
	}
}

// WithLogger configures a logger for rejected requests.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Authenticator) {
		a.logger = logger
	}
}

// NewAuthenticator creates a gate backed by the given directory.
func NewAuthenticator(directory ports.IdentityDirectory, config Config, opts ...Option) (*Authenticator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Algorithm == "" {
		config.Algorithm = DefaultAlgorithm
	}
	a := &Authenticator{
		directory: directory,
		config:    config,
		now:       time.Now,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Authenticate returns the caller's identity if the request is well formed,
// comes from an active identity, carries a matching signature, and is fresh.
func (a *Authenticator) Authenticate(ctx context.Context, req SignedRequest) (domain.AuthenticatedIdentity, error) {
	identity, err := a.authenticate(ctx, req)
	if err != nil {
		var authErr *domain.AuthenticationError
		if errors.As(err, &authErr) {
			a.logger.Info("Request rejected",
				"service_uuid", req.ServiceUUID,
				"reason", authErr.Reason,
				"detail", authErr.Detail,
			)
		}
		return domain.AuthenticatedIdentity{}, err
	}
	return identity, nil
}

func (a *Authenticator) authenticate(ctx context.Context, req SignedRequest) (domain.AuthenticatedIdentity, error) {
	var none domain.AuthenticatedIdentity

	// 1. Shape
	if req.ServiceUUID == "" {
		return none, domain.NewAuthError(domain.ReasonMalformedRequest, "missing %s header", HeaderServiceUUID)
	}
	if req.Signature == "" {
		return none, domain.NewAuthError(domain.ReasonMalformedRequest, "missing %s header", HeaderSignature)
	}
	declared, err := base64.StdEncoding.DecodeString(req.Signature)
	if err != nil {
		return none, domain.NewAuthError(domain.ReasonMalformedRequest, "signature is not base64")
	}
	issuedAt, err := parseTimestamp(req.Timestamp)
	if err != nil {
		return none, domain.NewAuthError(domain.ReasonMalformedRequest, "%s", err.Error())
	}
	if req.Algorithm == "" {
		req.Algorithm = a.config.Algorithm
	}
	if _, err := ParseAlgorithm(string(req.Algorithm)); err != nil {
		return none, domain.NewAuthError(domain.ReasonMalformedRequest, "%s", err.Error())
	}

	// 2. Identity
	identity, err := a.directory.Lookup(ctx, req.ServiceUUID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return none, domain.NewAuthError(domain.ReasonUnknownIdentity, "service %s is not registered", req.ServiceUUID)
		}
		return none, domain.NewBackendError("identity lookup", err)
	}
	if !identity.Active {
		return none, domain.NewAuthError(domain.ReasonUnknownIdentity, "service %s is not active", req.ServiceUUID)
	}
	if len(identity.SigningSecret) == 0 {
		return none, domain.NewAuthError(domain.ReasonUnknownIdentity, "service %s has no signing secret", req.ServiceUUID)
	}

	// 3. Signature
	expected := ComputeSignature(identity.SigningSecret, req)
	if !hmac.Equal(expected, declared) {
		return none, domain.NewAuthError(domain.ReasonBadSignature, "provided and calculated signatures do not match")
	}

	// 4. Freshness
	if err := a.checkFreshness(issuedAt); err != nil {
		return none, err
	}

	return identity.Authenticated(), nil
}

func (a *Authenticator) checkFreshness(issuedAt time.Time) error {
	if a.config.MaxAge == NoExpiration {
		return nil
	}
	age := a.now().Sub(issuedAt)
	if age < -a.config.ClockSkew {
		return domain.NewAuthError(domain.ReasonExpired, "timestamp too far in future")
	}
	if age > a.config.ClockSkew {
		return domain.NewAuthError(domain.ReasonExpired, "timestamp outside clock skew")
	}
	if age > a.config.MaxAge {
		return domain.NewAuthError(domain.ReasonExpired, "timestamp too far in past")
	}
	return nil
}
