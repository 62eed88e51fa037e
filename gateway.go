package sealgate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aretw0/sealgate/internal/adapters/file"
	"github.com/aretw0/sealgate/internal/config"
	"github.com/aretw0/sealgate/internal/logging"
	"github.com/aretw0/sealgate/internal/secrets"
	httpadapter "github.com/aretw0/sealgate/pkg/adapters/http"
	"github.com/aretw0/sealgate/pkg/adapters/memory"
	"github.com/aretw0/sealgate/pkg/adapters/postgres"
	redisadapter "github.com/aretw0/sealgate/pkg/adapters/redis"
	"github.com/aretw0/sealgate/pkg/adapters/signer"
	"github.com/aretw0/sealgate/pkg/audit"
	"github.com/aretw0/sealgate/pkg/auth"
	"github.com/aretw0/sealgate/pkg/observability"
	"github.com/aretw0/sealgate/pkg/persistence/middleware"
	"github.com/aretw0/sealgate/pkg/ports"
	"github.com/aretw0/sealgate/pkg/session"
	backend "github.com/redis/go-redis/v9"
)

const defaultRedisAddr = "localhost:6379"

// Config is the full gateway configuration.
type Config = config.Config

// DefaultConfig returns development defaults.
func DefaultConfig() Config { return config.Default() }

// LoadConfig reads a YAML or JSON file over the defaults and applies
// SEALGATE_* environment overrides. An empty path reads only the environment.
func LoadConfig(path string) (Config, error) {
	return config.Load(path, os.LookupEnv)
}

// Gateway is a fully wired sealgate instance: authentication gate, session
// service, audit trail and HTTP surface built from one Config.
type Gateway struct {
	Config        config.Config
	Authenticator *auth.Authenticator
	Sessions      *session.Service
	Trail         *audit.Trail
	Metrics       *observability.Metrics
	Handler       http.Handler

	logger    *slog.Logger
	directory ports.IdentityDirectory
	store     ports.SessionStore
	signer    ports.Signer
	redis     backend.UniversalClient
	sink      audit.Sink
	now       func() time.Time
	closers   []func() error
}

// Option defines a functional option for configuring the Gateway.
type Option func(*Gateway)

// WithLogger sets the structured logger. Defaults to one built from Config.Log.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithDirectory injects an identity directory, bypassing directory.driver.
func WithDirectory(d ports.IdentityDirectory) Option {
	return func(g *Gateway) {
		g.directory = d
	}
}

// WithStore injects the base session store, bypassing session.store.
// Store middlewares are still applied.
func WithStore(s ports.SessionStore) Option {
	return func(g *Gateway) {
		g.store = s
	}
}

// WithSigner injects a signing backend instead of the digest signer.
func WithSigner(s ports.Signer) Option {
	return func(g *Gateway) {
		g.signer = s
	}
}

// WithRedisClient reuses an existing client for the redis store and locks.
func WithRedisClient(c backend.UniversalClient) Option {
	return func(g *Gateway) {
		g.redis = c
	}
}

// WithAuditSink overrides the sink selected by audit.sink.
func WithAuditSink(s audit.Sink) Option {
	return func(g *Gateway) {
		g.sink = s
	}
}

// WithClock overrides the time source of the gate, the sessions and the trail.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		g.now = now
	}
}

// NewLogger builds the process logger described by cfg.
func NewLogger(cfg config.LogConfig) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if cfg.Format == "json" {
		return logging.NewJSON(os.Stderr, level), nil
	}
	return logging.New(level), nil
}

// New wires a Gateway. ctx bounds startup work such as fetching keys from Vault.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	g := &Gateway{Config: cfg, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		logger, err := NewLogger(cfg.Log)
		if err != nil {
			return nil, err
		}
		g.logger = logger
	}

	if err := g.wire(ctx); err != nil {
		_ = g.Close()
		return nil, err
	}
	g.logger.Info("Gateway ready",
		"version", strings.TrimSpace(Version),
		"store", cfg.Session.Store,
		"directory", cfg.Directory.Driver,
		"encrypt", cfg.Session.Encrypt,
	)
	return g, nil
}

func (g *Gateway) wire(ctx context.Context) error {
	cfg := g.Config
	g.Metrics = observability.NewMetrics()

	var sealer *secrets.Sealer
	if cfg.Secrets.Enabled() {
		src, err := cfg.Secrets.KeySource()
		if err != nil {
			return err
		}
		if sealer, err = secrets.Load(ctx, src); err != nil {
			return fmt.Errorf("load sealing keys: %w", err)
		}
	}

	directory, err := g.buildDirectory(sealer)
	if err != nil {
		return err
	}
	if cfg.Auth.IdentityCache.TTL > 0 {
		directory = auth.NewCachedDirectory(directory, cfg.Auth.IdentityCache.Size, cfg.Auth.IdentityCache.TTL)
	}

	g.Authenticator, err = auth.NewAuthenticator(directory, auth.Config{
		ClockSkew: cfg.Auth.HMAC.ClockSkew,
		MaxAge:    cfg.Auth.HMAC.Expiration,
		Algorithm: auth.Algorithm(cfg.Auth.HMAC.Algorithm),
	}, auth.WithClock(g.now), auth.WithLogger(g.logger))
	if err != nil {
		return err
	}

	base, locker, err := g.buildStore()
	if err != nil {
		return err
	}
	mws := []middleware.Middleware{middleware.NewMetricsMiddleware(g.Metrics)}
	if cfg.Session.Encrypt {
		mws = append(mws, middleware.NewEncryptionMiddleware(sealer))
	}
	store := middleware.Chain(base, mws...)
	g.Metrics.RegisterSessionGauge(store.Size)

	if g.signer == nil {
		if g.signer, err = signer.NewDigest(cfg.Signer.Digest); err != nil {
			return err
		}
	}

	sessOpts := []session.Option{
		session.WithCacheVersion(cfg.Session.CacheVersion),
		session.WithClock(g.now),
		session.WithLogger(g.logger),
	}
	switch {
	case locker != nil:
		sessOpts = append(sessOpts, session.WithLocker(locker))
	case cfg.Session.SerializeSameKey:
		sessOpts = append(sessOpts, session.WithSerializedKeys())
	}
	g.Sessions = session.NewService(store, g.signer, sessOpts...)

	g.Trail = audit.NewTrail(audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled && cfg.Audit.Sink != config.SinkNone,
		BufferSize: cfg.Audit.Buffer,
		DropIfFull: cfg.Audit.DropIfFull,
	}, g.auditSink()), audit.WithClock(g.now), audit.WithLogger(g.logger))
	g.closers = append(g.closers, func() error { g.Trail.Close(); return nil })
	g.Metrics.RegisterAuditDropped(g.Trail.Dropped)

	g.Handler, err = httpadapter.NewHandler(g.Authenticator, g.Sessions,
		httpadapter.WithTrail(g.Trail),
		httpadapter.WithMetrics(g.Metrics),
		httpadapter.WithMaxBodyBytes(cfg.HTTP.MaxBodyBytes),
		httpadapter.WithLogger(g.logger),
	)
	return err
}

func (g *Gateway) buildDirectory(sealer *secrets.Sealer) (ports.IdentityDirectory, error) {
	if g.directory != nil {
		return g.directory, nil
	}
	cfg := g.Config.Directory
	switch cfg.Driver {
	case config.DirectoryPostgres:
		db, err := postgres.Open(cfg.DSN)
		if err != nil {
			return nil, err
		}
		dir := postgres.New(db, sealer)
		g.closers = append(g.closers, dir.Close)
		return dir, nil
	default:
		dir := memory.NewDirectory()
		for _, s := range cfg.Services {
			dir.Register(s.Identity())
		}
		return dir, nil
	}
}

// buildStore returns the base store and, when same-key transitions are
// serialized across replicas, a redis-backed locker.
func (g *Gateway) buildStore() (ports.SessionStore, ports.KeyLocker, error) {
	cfg := g.Config.Session
	if g.store != nil {
		return g.store, nil, nil
	}
	switch cfg.Store {
	case config.StoreRedis:
		client := g.redis
		if client == nil {
			addrs := cfg.Redis.Addrs
			if len(addrs) == 0 {
				addrs = []string{defaultRedisAddr}
			}
			client = backend.NewUniversalClient(&backend.UniversalOptions{
				Addrs:    addrs,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			g.closers = append(g.closers, client.Close)
		}
		store := redisadapter.NewFromClient(client,
			redisadapter.WithTTL(cfg.TTL),
			redisadapter.WithPrefix(cfg.Redis.Prefix+"session:"),
			redisadapter.WithClock(g.now),
		)
		var locker ports.KeyLocker
		if cfg.SerializeSameKey {
			locker = redisadapter.NewLocker(client, cfg.Redis.Prefix)
		}
		return store, locker, nil
	case config.StoreFile:
		return file.New(cfg.File.Path, cfg.TTL), nil, nil
	case config.StoreMemory:
		return memory.NewStore(memory.WithTTL(cfg.TTL), memory.WithClock(g.now)), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown session store %q", cfg.Store)
}

func (g *Gateway) auditSink() audit.Sink {
	if g.sink != nil {
		return g.sink
	}
	switch g.Config.Audit.Sink {
	case config.SinkJSON:
		return audit.NewJSONWriterSink(os.Stdout)
	case config.SinkNone:
		return audit.NoOpSink{}
	default:
		return audit.NewLogSink(g.logger)
	}
}

// Serve runs the HTTP surface on Config.HTTP.Addr until ctx is done.
func (g *Gateway) Serve(ctx context.Context) error {
	return httpadapter.ListenAndServe(ctx, g.Config.HTTP.Addr, g.Handler, g.logger)
}

// Close flushes the audit trail and releases backend connections.
func (g *Gateway) Close() error {
	var errs []error
	for i := len(g.closers) - 1; i >= 0; i-- {
		if err := g.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	g.closers = nil
	return errors.Join(errs...)
}
