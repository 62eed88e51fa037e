package auth_test

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/sealgate/pkg/adapters/memory"
	"github.com/aretw0/sealgate/pkg/auth"
	"github.com/aretw0/sealgate/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	serverNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	testCfg   = auth.Config{ClockSkew: 2 * time.Minute, MaxAge: time.Minute}
)

func newGate(t *testing.T, cfg auth.Config, ids ...domain.ServiceIdentity) *auth.Authenticator {
	t.Helper()
	if len(ids) == 0 {
		ids = []domain.ServiceIdentity{
			{UUID: "svc-1", ServiceName: "svc", ClientName: "tenant", SigningSecret: domain.Secret("k1"), Active: true},
			{UUID: "svc-off", ServiceName: "off", SigningSecret: domain.Secret("k2"), Active: false},
		}
	}
	gate, err := auth.NewAuthenticator(memory.NewDirectory(ids...), cfg, auth.WithClock(func() time.Time { return serverNow }))
	require.NoError(t, err)
	return gate
}

func signed(serviceUUID string, secret []byte, ts time.Time, payload string) auth.SignedRequest {
	req := auth.SignedRequest{
		ServiceUUID: serviceUUID,
		Timestamp:   auth.FormatTimestamp(ts),
		Algorithm:   auth.HmacSHA256,
		Method:      http.MethodPost,
		URI:         "/hashcodecontainers",
		Payload:     []byte(payload),
	}
	req.Signature = auth.Sign(secret, req)
	return req
}

func TestAuthenticate_Success(t *testing.T) {
	gate := newGate(t, testCfg)

	id, err := gate.Authenticate(context.Background(), signed("svc-1", []byte("k1"), serverNow, `{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, "svc-1", id.ServiceUUID)
	assert.Equal(t, "tenant", id.ClientName)
}

func TestAuthenticate_EachConditionAlone(t *testing.T) {
	gate := newGate(t, testCfg)

	tests := []struct {
		name   string
		mutate func(r *auth.SignedRequest)
		reason domain.AuthReason
	}{
		{"missing identifier", func(r *auth.SignedRequest) { r.ServiceUUID = "" }, domain.ReasonMalformedRequest},
		{"missing signature", func(r *auth.SignedRequest) { r.Signature = "" }, domain.ReasonMalformedRequest},
		{"signature not base64", func(r *auth.SignedRequest) { r.Signature = "%%%" }, domain.ReasonMalformedRequest},
		{"missing timestamp", func(r *auth.SignedRequest) { r.Timestamp = "" }, domain.ReasonMalformedRequest},
		{"timestamp not numeric", func(r *auth.SignedRequest) { r.Timestamp = "17e9" }, domain.ReasonMalformedRequest},
		{"unknown algorithm", func(r *auth.SignedRequest) { r.Algorithm = "HmacMD5" }, domain.ReasonMalformedRequest},
		{"unknown identity", func(r *auth.SignedRequest) {
			*r = signed("svc-404", []byte("k1"), serverNow, "")
		}, domain.ReasonUnknownIdentity},
		{"inactive identity", func(r *auth.SignedRequest) {
			*r = signed("svc-off", []byte("k2"), serverNow, "")
		}, domain.ReasonUnknownIdentity},
		{"payload altered", func(r *auth.SignedRequest) { r.Payload[0] ^= 0x01 }, domain.ReasonBadSignature},
		{"uri altered", func(r *auth.SignedRequest) { r.URI += "?x=1" }, domain.ReasonBadSignature},
		{"wrong secret", func(r *auth.SignedRequest) {
			*r = signed("svc-1", []byte("k2"), serverNow, "{}")
		}, domain.ReasonBadSignature},
		{"older than max age", func(r *auth.SignedRequest) {
			*r = signed("svc-1", []byte("k1"), serverNow.Add(-testCfg.MaxAge-time.Millisecond), "{}")
		}, domain.ReasonExpired},
		{"beyond skew in future", func(r *auth.SignedRequest) {
			*r = signed("svc-1", []byte("k1"), serverNow.Add(testCfg.ClockSkew+time.Millisecond), "{}")
		}, domain.ReasonExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := signed("svc-1", []byte("k1"), serverNow, "{}")
			tt.mutate(&req)

			_, err := gate.Authenticate(context.Background(), req)
			require.Error(t, err)
			assert.True(t, domain.IsAuthReason(err, tt.reason), "want %s, got %v", tt.reason, err)
		})
	}
}

func TestAuthenticate_SkewBoundWithinMaxAge(t *testing.T) {
	// Age is inside MaxAge but outside skew.
	gate := newGate(t, auth.Config{ClockSkew: 10 * time.Second, MaxAge: time.Hour})

	_, err := gate.Authenticate(context.Background(), signed("svc-1", []byte("k1"), serverNow.Add(-11*time.Second), ""))
	assert.True(t, domain.IsAuthReason(err, domain.ReasonExpired))

	_, err = gate.Authenticate(context.Background(), signed("svc-1", []byte("k1"), serverNow.Add(-9*time.Second), ""))
	assert.NoError(t, err)
}

func TestAuthenticate_NoExpiration(t *testing.T) {
	gate := newGate(t, auth.Config{ClockSkew: 0, MaxAge: auth.NoExpiration})

	_, err := gate.Authenticate(context.Background(), signed("svc-1", []byte("k1"), serverNow.Add(-72*time.Hour), ""))
	assert.NoError(t, err)
}

func TestAuthenticate_NearMatchSignature(t *testing.T) {
	gate := newGate(t, testCfg)
	req := signed("svc-1", []byte("k1"), serverNow, "payload")

	raw, err := base64.StdEncoding.DecodeString(req.Signature)
	require.NoError(t, err)

	for _, pos := range []int{0, len(raw) / 2, len(raw) - 1} {
		near := append([]byte(nil), raw...)
		near[pos] ^= 0x80
		r := req
		r.Signature = base64.StdEncoding.EncodeToString(near)
		_, err := gate.Authenticate(context.Background(), r)
		assert.True(t, domain.IsAuthReason(err, domain.ReasonBadSignature), "byte %d", pos)
	}

	truncated := req
	truncated.Signature = base64.StdEncoding.EncodeToString(raw[:len(raw)-1])
	_, err = gate.Authenticate(context.Background(), truncated)
	assert.True(t, domain.IsAuthReason(err, domain.ReasonBadSignature))

	_, err = gate.Authenticate(context.Background(), req)
	assert.NoError(t, err)
}

func TestAuthenticate_Algorithms(t *testing.T) {
	gate := newGate(t, testCfg)
	for _, alg := range []auth.Algorithm{auth.HmacSHA256, auth.HmacSHA384, auth.HmacSHA512} {
		t.Run(string(alg), func(t *testing.T) {
			req := signed("svc-1", []byte("k1"), serverNow, "x")
			req.Algorithm = alg
			req.Signature = auth.Sign([]byte("k1"), req)

			_, err := gate.Authenticate(context.Background(), req)
			assert.NoError(t, err)

			// A signature computed with another digest never verifies.
			other := req
			other.Algorithm = auth.HmacSHA512
			if alg == auth.HmacSHA512 {
				other.Algorithm = auth.HmacSHA256
			}
			req.Signature = auth.Sign([]byte("k1"), other)
			_, err = gate.Authenticate(context.Background(), req)
			assert.True(t, domain.IsAuthReason(err, domain.ReasonBadSignature))
		})
	}
}

func TestNewAuthenticator_RejectsNegativeSkew(t *testing.T) {
	_, err := auth.NewAuthenticator(memory.NewDirectory(), auth.Config{ClockSkew: -time.Second})
	assert.Error(t, err)

	_, err = auth.NewAuthenticator(memory.NewDirectory(), auth.Config{MaxAge: -5 * time.Second})
	assert.Error(t, err)
}

func TestCanonicalBytes(t *testing.T) {
	req := auth.SignedRequest{
		ServiceUUID: "svc-1",
		Timestamp:   "1760788800000",
		Method:      "GET",
		URI:         "/containers/c1?x=1",
		Payload:     []byte("{}"),
	}
	assert.Equal(t, "svc-1:1760788800000:GET:/containers/c1?x=1:{}", string(req.CanonicalBytes()))
}

// failingDirectory simulates an unreachable identity backend.
type failingDirectory struct{}

func (failingDirectory) Lookup(context.Context, string) (domain.ServiceIdentity, error) {
	return domain.ServiceIdentity{}, errors.New("connection refused")
}

func TestAuthenticate_DirectoryOutageIsTechnical(t *testing.T) {
	gate, err := auth.NewAuthenticator(failingDirectory{}, testCfg, auth.WithClock(func() time.Time { return serverNow }))
	require.NoError(t, err)

	_, err = gate.Authenticate(context.Background(), signed("svc-1", []byte("k1"), serverNow, ""))
	assert.True(t, domain.IsTechnical(err, domain.BackendFailure))
}

func TestHTTPRoundTrip(t *testing.T) {
	gate := newGate(t, testCfg)

	body := `{"dataFiles":[]}`
	req := httptest.NewRequest(http.MethodPost, "/hashcodecontainers?lang=en", strings.NewReader(body))
	require.NoError(t, auth.SignHTTPRequest(req, "svc-1", []byte("k1"), auth.HmacSHA384, serverNow))
	assert.Equal(t, "HmacSHA384", req.Header.Get(auth.HeaderAlgorithm))

	id, n, err := gate.AuthenticateHTTP(req, 0)
	require.NoError(t, err)
	assert.Equal(t, "svc-1", id.ServiceUUID)
	assert.Equal(t, len(body), n)

	// The body stays readable for the handler.
	rest, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Equal(t, body, string(rest))
}

func TestFromHTTPRequest_BodyLimit(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/containers", strings.NewReader(strings.Repeat("a", 11)))
	_, err := auth.FromHTTPRequest(req, 10)
	assert.True(t, domain.IsAuthReason(err, domain.ReasonMalformedRequest))
}

// MockDirectory counts lookups reaching the backing directory.
type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) Lookup(ctx context.Context, serviceUUID string) (domain.ServiceIdentity, error) {
	args := m.Called(ctx, serviceUUID)
	return args.Get(0).(domain.ServiceIdentity), args.Error(1)
}

func TestCachedDirectory(t *testing.T) {
	backing := new(MockDirectory)
	backing.On("Lookup", mock.Anything, "svc-1").
		Return(domain.ServiceIdentity{UUID: "svc-1", Active: true}, nil).Once()
	backing.On("Lookup", mock.Anything, "svc-404").
		Return(domain.ServiceIdentity{}, domain.ErrIdentityNotFound).Twice()

	cached := auth.NewCachedDirectory(backing, 16, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		id, err := cached.Lookup(ctx, "svc-1")
		require.NoError(t, err)
		assert.Equal(t, "svc-1", id.UUID)
	}
	assert.Equal(t, 1, cached.Len())

	for i := 0; i < 2; i++ {
		_, err := cached.Lookup(ctx, "svc-404")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	}

	backing.AssertExpectations(t)
}

func TestCachedDirectory_Invalidate(t *testing.T) {
	backing := new(MockDirectory)
	backing.On("Lookup", mock.Anything, "svc-1").
		Return(domain.ServiceIdentity{UUID: "svc-1", Active: true}, nil).Twice()

	cached := auth.NewCachedDirectory(backing, 16, time.Minute)
	_, _ = cached.Lookup(context.Background(), "svc-1")
	cached.Invalidate("svc-1")
	_, _ = cached.Lookup(context.Background(), "svc-1")

	backing.AssertExpectations(t)
}

func TestAuthenticate_ConfiguredDefaultAlgorithm(t *testing.T) {
	cfg := testCfg
	cfg.Algorithm = auth.HmacSHA512
	gate := newGate(t, cfg)

	req := signed("svc-1", []byte("k1"), serverNow, "x")
	req.Algorithm = auth.HmacSHA512
	req.Signature = auth.Sign([]byte("k1"), req)
	req.Algorithm = "" // header absent

	_, err := gate.Authenticate(context.Background(), req)
	assert.NoError(t, err)

	_, err = auth.NewAuthenticator(memory.NewDirectory(), auth.Config{Algorithm: "HmacMD5"})
	assert.Error(t, err)
}
