package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/aretw0/sealgate/internal/logging"
	"github.com/aretw0/sealgate/internal/secrets"
	"github.com/aretw0/sealgate/pkg/auth"
	"github.com/aretw0/sealgate/pkg/domain"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces environment overrides: auth.hmac.clock_skew is read
// from SEALGATE_AUTH_HMAC_CLOCK_SKEW.
const EnvPrefix = "SEALGATE_"

// Store drivers.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreFile   = "file"
)

// Directory drivers.
const (
	DirectoryStatic   = "static"
	DirectoryPostgres = "postgres"
)

// Audit sinks.
const (
	SinkLog  = "log"
	SinkJSON = "json"
	SinkNone = "none"
)

type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Secrets   SecretsConfig   `mapstructure:"secrets"`
	Session   SessionConfig   `mapstructure:"session"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Signer    SignerConfig    `mapstructure:"signer"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text | json
}

type HTTPConfig struct {
	Addr         string `mapstructure:"addr"`
	MaxBodyBytes int64  `mapstructure:"max_body_bytes"`
}

type AuthConfig struct {
	HMAC          HMACConfig          `mapstructure:"hmac"`
	IdentityCache IdentityCacheConfig `mapstructure:"identity_cache"`
}

type HMACConfig struct {
	Algorithm string `mapstructure:"algorithm"`
	// ClockSkew bounds |now - timestamp|, so it also caps the age of past requests.
	ClockSkew time.Duration `mapstructure:"clock_skew"`
	// Expiration is the max request age and only tightens the past bound when
	// smaller than ClockSkew. -1 disables every freshness check, skew included.
	Expiration time.Duration `mapstructure:"expiration"`
}

// IdentityCacheConfig bounds the identity lookup cache. A zero TTL disables it.
type IdentityCacheConfig struct {
	TTL  time.Duration `mapstructure:"ttl"`
	Size int           `mapstructure:"size"`
}

type SecretsConfig struct {
	Key          string      `mapstructure:"key"`
	FallbackKeys []string    `mapstructure:"fallback_keys"`
	Vault        VaultConfig `mapstructure:"vault"`
}

type VaultConfig struct {
	Address string `mapstructure:"address"`
	Token   string `mapstructure:"token"`
	Mount   string `mapstructure:"mount"`
	Path    string `mapstructure:"path"`
	Field   string `mapstructure:"field"`
}

// Enabled reports whether any sealing key source is configured.
func (s SecretsConfig) Enabled() bool {
	return s.Key != "" || s.Vault.Address != ""
}

// KeySource returns the configured source of sealing keys.
func (s SecretsConfig) KeySource() (secrets.KeySource, error) {
	if s.Vault.Address != "" {
		return secrets.NewVaultKeys(secrets.VaultConfig{
			Address: s.Vault.Address,
			Token:   s.Vault.Token,
			Mount:   s.Vault.Mount,
			Path:    s.Vault.Path,
			Field:   s.Vault.Field,
		})
	}
	if s.Key == "" {
		return nil, errors.New("no secrets key configured")
	}
	return secrets.StaticKeys{Active: s.Key, Fallback: s.FallbackKeys}, nil
}

type SessionConfig struct {
	Store            string        `mapstructure:"store"`
	TTL              time.Duration `mapstructure:"ttl"`
	CacheVersion     string        `mapstructure:"cache_version"`
	Encrypt          bool          `mapstructure:"encrypt"`
	SerializeSameKey bool          `mapstructure:"serialize_same_key"`
	Redis            RedisConfig   `mapstructure:"redis"`
	File             FileConfig    `mapstructure:"file"`
}

type RedisConfig struct {
	Addrs    []string `mapstructure:"addrs"` // defaults to localhost:6379
	Password string   `mapstructure:"password"`
	DB       int      `mapstructure:"db"`
	Prefix   string   `mapstructure:"prefix"`
}

type FileConfig struct {
	Path string `mapstructure:"path"`
}

type DirectoryConfig struct {
	Driver   string         `mapstructure:"driver"`
	DSN      string         `mapstructure:"dsn"`
	Services []ServiceEntry `mapstructure:"services"`
}

// ServiceEntry is a statically configured caller.
type ServiceEntry struct {
	UUID        string   `mapstructure:"uuid"`
	ClientName  string   `mapstructure:"client_name"`
	ClientUUID  string   `mapstructure:"client_uuid"`
	ServiceName string   `mapstructure:"service_name"`
	ServiceType string   `mapstructure:"service_type"`
	Secret      string   `mapstructure:"secret"`
	Inactive    bool     `mapstructure:"inactive"`
	Roles       []string `mapstructure:"roles"`
}

// Identity converts the entry to a directory record.
func (e ServiceEntry) Identity() domain.ServiceIdentity {
	st := domain.ServiceType(strings.ToUpper(e.ServiceType))
	if st == "" {
		st = domain.ServiceTypeREST
	}
	return domain.ServiceIdentity{
		UUID:          e.UUID,
		ClientName:    e.ClientName,
		ClientUUID:    e.ClientUUID,
		ServiceName:   e.ServiceName,
		ServiceType:   st,
		SigningSecret: domain.Secret(e.Secret),
		Active:        !e.Inactive,
		Roles:         e.Roles,
	}
}

type AuditConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Buffer     int    `mapstructure:"buffer"`
	DropIfFull bool   `mapstructure:"drop_if_full"`
	Sink       string `mapstructure:"sink"`
}

type SignerConfig struct {
	Digest string `mapstructure:"digest"`
}

// Default returns a configuration suitable for local development.
func Default() Config {
	return Config{
		Log:  LogConfig{Level: "info", Format: "text"},
		HTTP: HTTPConfig{Addr: ":8080", MaxBodyBytes: auth.DefaultMaxBodyBytes},
		Auth: AuthConfig{
			HMAC: HMACConfig{
				Algorithm:  string(auth.DefaultAlgorithm),
				ClockSkew:  2 * time.Minute,
				Expiration: time.Minute,
			},
			IdentityCache: IdentityCacheConfig{TTL: time.Minute, Size: 1024},
		},
		Secrets: SecretsConfig{Vault: VaultConfig{Mount: "secret", Field: "key"}},
		Session: SessionConfig{
			Store:        StoreMemory,
			TTL:          time.Hour,
			CacheVersion: domain.DefaultCacheVersion,
			Redis:        RedisConfig{Prefix: "sealgate:"},
			File:         FileConfig{Path: ".sealgate/sessions"},
		},
		Directory: DirectoryConfig{Driver: DirectoryStatic},
		Audit:     AuditConfig{Enabled: true, Buffer: 1024, Sink: SinkLog},
		Signer:    SignerConfig{Digest: "SHA256"},
	}
}

// Load reads path (YAML, or JSON by extension) over Default and applies
// environment overrides from lookup. An empty path skips the file.
func Load(path string, lookup func(string) (string, bool)) (Config, error) {
	raw := map[string]any{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if strings.ToLower(filepath.Ext(path)) == ".json" {
			err = json.Unmarshal(data, &raw)
		} else {
			err = yaml.Unmarshal(data, &raw)
		}
		if err != nil {
			return Config{}, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	applyEnv(raw, lookup)

	cfg := Default()
	if err := decode(raw, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(raw map[string]any, out *Config) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			noExpirationHook,
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// noExpirationHook accepts the literal "-1" for durations.
func noExpirationHook(from, to reflect.Type, data any) (any, error) {
	if to != durationType || from.Kind() != reflect.String {
		return data, nil
	}
	if strings.TrimSpace(data.(string)) == "-1" {
		return auth.NoExpiration, nil
	}
	return data, nil
}

// applyEnv writes every set SEALGATE_* variable into raw at its dotted path.
func applyEnv(raw map[string]any, lookup func(string) (string, bool)) {
	for _, path := range leafPaths(reflect.TypeOf(Config{}), "") {
		val, ok := lookup(EnvName(path))
		if !ok {
			continue
		}
		setPath(raw, strings.Split(path, "."), val)
	}
}

// EnvName returns the environment variable overriding a dotted config path.
func EnvName(path string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(path, ".", "_"))
}

// leafPaths lists scalar and scalar-slice keys; slices of structs have no env form.
func leafPaths(t reflect.Type, prefix string) []string {
	var paths []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		path := tag
		if prefix != "" {
			path = prefix + "." + tag
		}
		switch {
		case f.Type.Kind() == reflect.Struct:
			paths = append(paths, leafPaths(f.Type, path)...)
		case f.Type.Kind() == reflect.Slice && f.Type.Elem().Kind() == reflect.Struct:
		default:
			paths = append(paths, path)
		}
	}
	return paths
}

func setPath(m map[string]any, parts []string, val string) {
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[p] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = val
}

// Validate checks values that would otherwise fail late at wiring time.
func (c Config) Validate() error {
	var errs []error

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}

	hmacCfg := auth.Config{
		ClockSkew: c.Auth.HMAC.ClockSkew,
		MaxAge:    c.Auth.HMAC.Expiration,
		Algorithm: auth.Algorithm(c.Auth.HMAC.Algorithm),
	}
	if err := hmacCfg.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("auth.hmac: %w", err))
	}
	if c.Auth.IdentityCache.TTL < 0 {
		errs = append(errs, errors.New("auth.identity_cache.ttl must be >= 0"))
	}

	if c.Secrets.Key != "" {
		if _, err := secrets.DecodeKey(c.Secrets.Key); err != nil {
			errs = append(errs, fmt.Errorf("secrets.key: %w", err))
		}
	}
	for i, k := range c.Secrets.FallbackKeys {
		if _, err := secrets.DecodeKey(k); err != nil {
			errs = append(errs, fmt.Errorf("secrets.fallback_keys[%d]: %w", i, err))
		}
	}
	if c.Secrets.Vault.Address != "" && c.Secrets.Vault.Path == "" {
		errs = append(errs, errors.New("secrets.vault.path is required with secrets.vault.address"))
	}

	switch c.Session.Store {
	case StoreMemory:
	case StoreRedis:
	case StoreFile:
		if c.Session.File.Path == "" {
			errs = append(errs, errors.New("session.file.path is required for the file store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown session.store %q", c.Session.Store))
	}
	if c.Session.TTL < 0 {
		errs = append(errs, errors.New("session.ttl must be >= 0"))
	}
	if c.Session.CacheVersion == "" || strings.Contains(c.Session.CacheVersion, "_") {
		errs = append(errs, fmt.Errorf("session.cache_version must be non-empty and contain no '_', got %q", c.Session.CacheVersion))
	}
	if c.Session.Encrypt && !c.Secrets.Enabled() {
		errs = append(errs, errors.New("session.encrypt requires secrets.key or secrets.vault"))
	}

	switch c.Directory.Driver {
	case DirectoryStatic:
		seen := make(map[string]bool, len(c.Directory.Services))
		for i, s := range c.Directory.Services {
			if s.UUID == "" || s.Secret == "" {
				errs = append(errs, fmt.Errorf("directory.services[%d]: uuid and secret are required", i))
			}
			if seen[s.UUID] {
				errs = append(errs, fmt.Errorf("directory.services[%d]: duplicate uuid %s", i, s.UUID))
			}
			seen[s.UUID] = true
		}
	case DirectoryPostgres:
		if c.Directory.DSN == "" {
			errs = append(errs, errors.New("directory.dsn is required for the postgres driver"))
		}
		if !c.Secrets.Enabled() {
			errs = append(errs, errors.New("the postgres directory requires secrets.key or secrets.vault"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown directory.driver %q", c.Directory.Driver))
	}

	if c.Audit.Buffer < 0 {
		errs = append(errs, errors.New("audit.buffer must be >= 0"))
	}
	switch c.Audit.Sink {
	case SinkLog, SinkJSON, SinkNone:
	default:
		errs = append(errs, fmt.Errorf("unknown audit.sink %q", c.Audit.Sink))
	}

	switch strings.ToUpper(c.Signer.Digest) {
	case "SHA256", "SHA384", "SHA512":
	default:
		errs = append(errs, fmt.Errorf("unknown signer.digest %q", c.Signer.Digest))
	}

	return errors.Join(errs...)
}
