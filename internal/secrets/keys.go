package secrets

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
)

// KeySource yields the active key and the fallback keys for a Sealer.
type KeySource interface {
	Keys(ctx context.Context) (active []byte, fallback [][]byte, err error)
}

// DecodeKey accepts a base64 or hex encoded 32-byte key.
func DecodeKey(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if k, err := base64.StdEncoding.DecodeString(encoded); err == nil && len(k) == KeySize {
		return k, nil
	}
	if k, err := hex.DecodeString(encoded); err == nil && len(k) == KeySize {
		return k, nil
	}
	return nil, fmt.Errorf("key must be %d bytes encoded as base64 or hex", KeySize)
}

// StaticKeys reads keys from configuration values.
type StaticKeys struct {
	Active   string
	Fallback []string
}

// Keys decodes the configured values.
func (s StaticKeys) Keys(ctx context.Context) ([]byte, [][]byte, error) {
	active, err := DecodeKey(s.Active)
	if err != nil {
		return nil, nil, fmt.Errorf("active key: %w", err)
	}
	var fallback [][]byte
	for i, f := range s.Fallback {
		k, err := DecodeKey(f)
		if err != nil {
			return nil, nil, fmt.Errorf("fallback key %d: %w", i, err)
		}
		fallback = append(fallback, k)
	}
	return active, fallback, nil
}

// VaultKeys reads keys from a Vault KV v2 secret.
type VaultKeys struct {
	client         *api.Client
	mountPath      string
	dataPath       string
	field          string
	fallbackFields []string
}

// VaultConfig locates the key material in Vault.
type VaultConfig struct {
	Address        string
	Token          string
	Mount          string
	Path           string
	Field          string
	FallbackFields []string
}

// NewVaultKeys creates a Vault-backed key source.
func NewVaultKeys(cfg VaultConfig) (*VaultKeys, error) {
	config := api.DefaultConfig()
	config.Address = cfg.Address
	config.HttpClient = &http.Client{Timeout: 30 * time.Second}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}

	field := cfg.Field
	if field == "" {
		field = "key"
	}
	mount := cfg.Mount
	if mount == "" {
		mount = "secret"
	}

	return &VaultKeys{
		client:         client,
		mountPath:      strings.Trim(mount, "/"),
		dataPath:       strings.Trim(cfg.Path, "/"),
		field:          field,
		fallbackFields: cfg.FallbackFields,
	}, nil
}

// Keys fetches the secret and decodes the configured fields.
func (v *VaultKeys) Keys(ctx context.Context) ([]byte, [][]byte, error) {
	path := fmt.Sprintf("%s/data/%s", v.mountPath, v.dataPath)

	secret, err := v.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s from Vault: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, nil, fmt.Errorf("no secret at %s", path)
	}
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, nil, fmt.Errorf("invalid KV v2 data format at %s", path)
	}

	read := func(field string) ([]byte, error) {
		raw, ok := data[field].(string)
		if !ok {
			return nil, fmt.Errorf("field %q missing at %s", field, path)
		}
		return DecodeKey(raw)
	}

	active, err := read(v.field)
	if err != nil {
		return nil, nil, err
	}
	var fallback [][]byte
	for _, f := range v.fallbackFields {
		k, err := read(f)
		if err != nil {
			return nil, nil, err
		}
		fallback = append(fallback, k)
	}
	return active, fallback, nil
}

// Load builds a Sealer from a key source.
func Load(ctx context.Context, src KeySource) (*Sealer, error) {
	active, fallback, err := src.Keys(ctx)
	if err != nil {
		return nil, err
	}
	return NewSealer(active, fallback...)
}
