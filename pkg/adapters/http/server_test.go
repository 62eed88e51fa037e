package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aretw0/sealgate/pkg/adapters/memory"
	"github.com/aretw0/sealgate/pkg/adapters/signer"
	httpadapter "github.com/aretw0/sealgate/pkg/adapters/http"
	"github.com/aretw0/sealgate/pkg/audit"
	"github.com/aretw0/sealgate/pkg/auth"
	"github.com/aretw0/sealgate/pkg/domain"
	"github.com/aretw0/sealgate/pkg/observability"
	"github.com/aretw0/sealgate/pkg/ports"
	"github.com/aretw0/sealgate/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	serviceA = domain.ServiceIdentity{
		UUID:          "a7fd7728-a3ea-4975-bfab-f240a67e894f",
		ClientName:    "client1",
		ServiceName:   "test_service",
		SigningSecret: domain.Secret("746573745365637265744b6579303031"),
		Active:        true,
	}
	serviceB = domain.ServiceIdentity{
		UUID:          "824dcfe9-5c26-4d76-829a-e6630f434746",
		ClientName:    "client2",
		ServiceName:   "other_service",
		SigningSecret: domain.Secret("746573745365637265744b6579303032"),
		Active:        true,
	}
)

type fixture struct {
	t       *testing.T
	handler http.Handler
	sink    *audit.ChannelSink
	store   ports.SessionStore
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	store  ports.SessionStore
	signer ports.Signer
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	digest, err := signer.NewDigest(signer.SHA256)
	require.NoError(t, err)
	cfg := fixtureConfig{store: memory.NewStore(), signer: digest}
	for _, opt := range opts {
		opt(&cfg)
	}

	authn, err := auth.NewAuthenticator(memory.NewDirectory(serviceA, serviceB), auth.Config{ClockSkew: time.Minute, MaxAge: time.Minute})
	require.NoError(t, err)

	sink := audit.NewChannelSink(256)
	trail := audit.NewTrail(audit.NewDispatcher(audit.Config{Enabled: true, BufferSize: 256}, sink))
	t.Cleanup(trail.Close)

	handler, err := httpadapter.NewHandler(authn, session.NewService(cfg.store, cfg.signer),
		httpadapter.WithTrail(trail),
		httpadapter.WithMetrics(observability.NewMetrics()),
	)
	require.NoError(t, err)

	return &fixture{t: t, handler: handler, sink: sink, store: cfg.store}
}

func (f *fixture) request(id domain.ServiceIdentity, method, path string, body any) *httptest.ResponseRecorder {
	f.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(f.t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if id.UUID != "" {
		require.NoError(f.t, auth.SignHTTPRequest(req, id.UUID, id.SigningSecret, auth.HmacSHA256, time.Now()))
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (f *fixture) events(n int) []audit.Event {
	f.t.Helper()
	out := make([]audit.Event, 0, n)
	for len(out) < n {
		select {
		case e := <-f.sink.Events():
			out = append(out, e)
		case <-time.After(2 * time.Second):
			f.t.Fatalf("received %d of %d audit events", len(out), n)
		}
	}
	return out
}

var hashcodeBody = map[string]any{
	"dataFiles": []map[string]any{{
		"fileName":       "test.txt",
		"fileSize":       10,
		"fileHashSha256": "K7gNU3sdo+OL0wNhqoVWhr3g6s1xYv72ol/pe/Unols=",
	}},
}

func TestServer_HashcodeWorkflow(t *testing.T) {
	f := newFixture(t)

	rec := f.request(serviceA, http.MethodPost, "/hashcodecontainers", hashcodeBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	id := decode[httpadapter.CreateResponse](t, rec).ContainerID
	require.NotEmpty(t, id)

	rec = f.request(serviceA, http.MethodPost, "/hashcodecontainers/"+id+"/remotesigning",
		httpadapter.StartSigningRequest{SigningCertificate: []byte("certificate"), SignatureProfile: "LT"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	started := decode[httpadapter.StartSigningResponse](t, rec)
	assert.NotEmpty(t, started.DataToSign)
	assert.Equal(t, signer.SHA256, started.DigestAlgorithm)

	rec = f.request(serviceA, http.MethodGet, "/hashcodecontainers/"+id+"/signatures/"+started.GeneratedSignatureID+"/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StatusOutstanding, decode[domain.ProcessingStatus](t, rec).Status)

	rec = f.request(serviceA, http.MethodPut, "/hashcodecontainers/"+id+"/remotesigning/"+started.GeneratedSignatureID,
		httpadapter.FinishSigningRequest{SignatureValue: []byte("signature")})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.request(serviceA, http.MethodGet, "/hashcodecontainers/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[httpadapter.SessionSummary](t, rec)
	assert.Equal(t, domain.PhaseSignatureAttached, summary.Phase)
	assert.Equal(t, domain.KindHashcode, summary.Kind)
	assert.Equal(t, []string{"test.txt"}, summary.DataFiles)
	require.Len(t, summary.Signatures, 1)

	rec = f.request(serviceA, http.MethodPut, "/hashcodecontainers/"+id+"/finalize", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.request(serviceA, http.MethodDelete, "/hashcodecontainers/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", decode[httpadapter.ResultResponse](t, rec).Result)

	rec = f.request(serviceA, http.MethodGet, "/hashcodecontainers/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, httpadapter.CodeNotFound, decode[httpadapter.ErrorResponse](t, rec).ErrorCode)
}

func TestServer_AttachedAndAsicCreate(t *testing.T) {
	f := newFixture(t)

	rec := f.request(serviceA, http.MethodPost, "/containers", map[string]any{
		"containerName": "test.asice",
		"dataFiles":     []map[string]any{{"fileName": "a.txt", "fileContent": "YWxwaGE="}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	id := decode[httpadapter.CreateResponse](t, rec).ContainerID

	rec = f.request(serviceA, http.MethodGet, "/containers/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test.asice", decode[httpadapter.SessionSummary](t, rec).ContainerName)

	rec = f.request(serviceA, http.MethodPost, "/asiccontainers", map[string]any{
		"containerName": "test.asics",
		"container":     "UEsDBA==",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestServer_AuthenticationFailures(t *testing.T) {
	f := newFixture(t)

	t.Run("Missing headers", func(t *testing.T) {
		rec := f.request(domain.ServiceIdentity{}, http.MethodPost, "/hashcodecontainers", hashcodeBody)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, httpadapter.CodeAuthorization, decode[httpadapter.ErrorResponse](t, rec).ErrorCode)
	})

	t.Run("Wrong secret", func(t *testing.T) {
		forged := serviceA
		forged.SigningSecret = domain.Secret("not-the-secret")
		rec := f.request(forged, http.MethodPost, "/hashcodecontainers", hashcodeBody)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Invalid signature", decode[httpadapter.ErrorResponse](t, rec).ErrorMessage)
	})

	t.Run("Unknown service", func(t *testing.T) {
		ghost := serviceA
		ghost.UUID = "00000000-0000-0000-0000-000000000000"
		rec := f.request(ghost, http.MethodGet, "/containers/x", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("Tampered body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/hashcodecontainers", bytes.NewReader([]byte(`{"dataFiles":[]}`)))
		require.NoError(t, auth.SignHTTPRequest(req, serviceA.UUID, serviceA.SigningSecret, auth.HmacSHA256, time.Now()))
		req.Body = io.NopCloser(bytes.NewReader([]byte(`{"dataFiles":[{}]}`)))
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestServer_AuditsAuthenticationFailure(t *testing.T) {
	f := newFixture(t)
	forged := serviceA
	forged.SigningSecret = domain.Secret("nope")

	rec := f.request(forged, http.MethodGet, "/containers/abc", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	events := f.events(4)
	assert.Equal(t, audit.EventRequest, events[0].Name)
	assert.Equal(t, audit.EventAuthentication, events[1].Name)
	assert.Equal(t, audit.EventException, events[2].Type)
	assert.Equal(t, audit.ErrorCodeAuthentication, events[2].ErrorCode)
	assert.Equal(t, http.StatusUnauthorized, events[3].StatusCode)
	assert.Equal(t, httpadapter.CodeAuthorization, events[3].ErrorCode)
	for _, e := range events {
		assert.Equal(t, serviceA.UUID, e.ServiceUUID)
		assert.Empty(t, e.ClientName)
	}
}

func TestServer_AuditsAuthenticatedRequest(t *testing.T) {
	f := newFixture(t)
	rec := f.request(serviceA, http.MethodPost, "/hashcodecontainers", hashcodeBody)
	require.Equal(t, http.StatusOK, rec.Code)

	events := f.events(4)
	end := events[3]
	assert.Equal(t, audit.EventFinish, end.Type)
	assert.Equal(t, http.StatusOK, end.StatusCode)
	uri, _ := end.Params.Get("request_uri")
	assert.Equal(t, "/hashcodecontainers", uri)
	for _, e := range events {
		assert.Equal(t, serviceA.ClientName, e.ClientName)
		assert.Equal(t, events[0].RequestID, e.RequestID)
	}
	length, _ := events[0].Params.Get("request_length")
	assert.NotEqual(t, "0", length)
}

func TestServer_TenantIsolation(t *testing.T) {
	f := newFixture(t)
	rec := f.request(serviceA, http.MethodPost, "/hashcodecontainers", hashcodeBody)
	require.Equal(t, http.StatusOK, rec.Code)
	id := decode[httpadapter.CreateResponse](t, rec).ContainerID

	rec = f.request(serviceB, http.MethodGet, "/hashcodecontainers/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.request(serviceB, http.MethodDelete, "/hashcodecontainers/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.request(serviceA, http.MethodGet, "/hashcodecontainers/"+id, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_RequestValidation(t *testing.T) {
	f := newFixture(t)

	rec := f.request(serviceA, http.MethodPost, "/hashcodecontainers", map[string]any{"dataFiles": []any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, httpadapter.CodeRequestValidation, decode[httpadapter.ErrorResponse](t, rec).ErrorCode)

	rec = f.request(serviceA, http.MethodPost, "/asiccontainers", map[string]any{"containerName": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.request(serviceA, http.MethodPost, "/hashcodecontainers/x/remotesigning", map[string]any{"signatureProfile": "UNKNOWN"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_WrongVariantIsTechnical(t *testing.T) {
	f := newFixture(t)
	rec := f.request(serviceA, http.MethodPost, "/hashcodecontainers", hashcodeBody)
	require.Equal(t, http.StatusOK, rec.Code)
	id := decode[httpadapter.CreateResponse](t, rec).ContainerID

	rec = f.request(serviceA, http.MethodGet, "/containers/"+id, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, httpadapter.CodeInternal, decode[httpadapter.ErrorResponse](t, rec).ErrorCode)
}

func TestServer_OutOfOrderFinalize(t *testing.T) {
	f := newFixture(t)
	rec := f.request(serviceA, http.MethodPost, "/hashcodecontainers", hashcodeBody)
	id := decode[httpadapter.CreateResponse](t, rec).ContainerID

	rec = f.request(serviceA, http.MethodPut, "/hashcodecontainers/"+id+"/finalize", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_SmartIDSigningIsPending(t *testing.T) {
	f := newFixture(t)
	rec := f.request(serviceA, http.MethodPost, "/hashcodecontainers", hashcodeBody)
	id := decode[httpadapter.CreateResponse](t, rec).ContainerID

	rec = f.request(serviceA, http.MethodPost, "/hashcodecontainers/"+id+"/remotesigning",
		httpadapter.StartSigningRequest{SigningType: domain.SigningSmartID, SignatureProfile: "LT"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sigID := decode[httpadapter.StartSigningResponse](t, rec).GeneratedSignatureID

	rec = f.request(serviceA, http.MethodGet, "/hashcodecontainers/"+id+"/signatures/"+sigID+"/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[domain.ProcessingStatus](t, rec)
	assert.Equal(t, domain.StatusOutstanding, st.Status)
	assert.Equal(t, 1, st.ProcessingCounter)

	rec = f.request(serviceA, http.MethodGet, "/hashcodecontainers/"+id, nil)
	assert.Equal(t, domain.PhaseSignaturePending, decode[httpadapter.SessionSummary](t, rec).Phase)
}

func TestStartSigningRequest_MobileShapeOnWire(t *testing.T) {
	data, err := json.Marshal(httpadapter.StartSigningRequest{SignatureProfile: "LT"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"signatureProfile":"LT"}`, string(data))

	f := newFixture(t)
	rec := f.request(serviceA, http.MethodPost, "/hashcodecontainers", hashcodeBody)
	id := decode[httpadapter.CreateResponse](t, rec).ContainerID

	rec = f.request(serviceA, http.MethodPost, "/hashcodecontainers/"+id+"/remotesigning",
		httpadapter.StartSigningRequest{SigningType: domain.SigningMobileID, SignatureProfile: "LT"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Without a type the request is REMOTE and needs a certificate.
	rec = f.request(serviceA, http.MethodPost, "/hashcodecontainers/"+id+"/remotesigning",
		httpadapter.StartSigningRequest{SignatureProfile: "LT"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, httpadapter.CodeRequestValidation, decode[httpadapter.ErrorResponse](t, rec).ErrorCode)
}

// downStore fails every connectivity probe.
type downStore struct {
	*memory.Store
}

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

func TestServer_Health(t *testing.T) {
	f := newFixture(t)
	f.request(serviceA, http.MethodPost, "/hashcodecontainers", hashcodeBody)

	rec := f.request(domain.ServiceIdentity{}, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[httpadapter.HealthResponse](t, rec)
	assert.Equal(t, "UP", health.Status)
	assert.Equal(t, int64(1), health.Sessions)

	down := newFixture(t, func(c *fixtureConfig) { c.store = downStore{memory.NewStore()} })
	rec = down.request(domain.ServiceIdentity{}, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "DOWN", decode[httpadapter.HealthResponse](t, rec).Store)
}

func TestServer_PublicEndpoints(t *testing.T) {
	f := newFixture(t)
	f.request(serviceA, http.MethodGet, "/containers/none", nil)

	rec := f.request(domain.ServiceIdentity{}, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sealgate_auth_results_total")
	assert.Contains(t, rec.Body.String(), "sealgate_http_request_duration_seconds")

	rec = f.request(domain.ServiceIdentity{}, http.MethodGet, "/openapi.yaml", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, httpadapter.Spec(), rec.Body.Bytes())
}

// panicSigner simulates a crashing signing backend.
type panicSigner struct{}

func (panicSigner) PrepareDataToSign(context.Context, *domain.Session, ports.SigningRequest) (ports.DataToSign, error) {
	panic("signer crashed")
}

func (panicSigner) AttachSignature(context.Context, *domain.Session, domain.SignatureSession, []byte) (domain.SignatureRecord, error) {
	panic("signer crashed")
}

func TestServer_PanicStillEndsAudit(t *testing.T) {
	f := newFixture(t, func(c *fixtureConfig) { c.signer = panicSigner{} })
	rec := f.request(serviceA, http.MethodPost, "/hashcodecontainers", hashcodeBody)
	require.Equal(t, http.StatusOK, rec.Code)
	id := decode[httpadapter.CreateResponse](t, rec).ContainerID
	f.events(4)

	rec = f.request(serviceA, http.MethodPost, "/hashcodecontainers/"+id+"/remotesigning",
		httpadapter.StartSigningRequest{SigningCertificate: []byte("c"), SignatureProfile: "LT"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	events := f.events(4)
	assert.Equal(t, http.StatusInternalServerError, events[3].StatusCode)
	assert.Equal(t, audit.EventException, events[3].Type)
}
