package domain

import (
	"encoding/json"
	"log/slog"
)

// ServiceType distinguishes direct REST callers from proxying services.
type ServiceType string

const (
	ServiceTypeREST  ServiceType = "REST"
	ServiceTypeProxy ServiceType = "PROXY"
)

// Secret is a symmetric signing key. Its textual forms are always redacted.
type Secret []byte

const redacted = "[REDACTED]"

func (s Secret) String() string { return redacted }

// LogValue keeps secrets out of structured logs.
func (s Secret) LogValue() slog.Value { return slog.StringValue(redacted) }

// MarshalJSON keeps secrets out of serialized payloads.
func (s Secret) MarshalJSON() ([]byte, error) { return json.Marshal(redacted) }

// RelyingParty identifies the service towards a mobile signing provider.
type RelyingParty struct {
	Name string `json:"name,omitempty" yaml:"name"`
	UUID string `json:"uuid,omitempty" yaml:"uuid"`
}

// ServiceIdentity is a registered caller as resolved by the identity directory.
type ServiceIdentity struct {
	UUID          string
	ClientName    string
	ClientUUID    string
	ServiceName   string
	ServiceType   ServiceType
	SigningSecret Secret
	SmartID       RelyingParty
	MobileID      RelyingParty
	Active        bool
	Roles         []string
}

// Authenticated strips the secret and returns the identity that scopes downstream work.
func (s ServiceIdentity) Authenticated() AuthenticatedIdentity {
	roles := make([]string, len(s.Roles))
	copy(roles, s.Roles)
	return AuthenticatedIdentity{
		ServiceUUID: s.UUID,
		ServiceName: s.ServiceName,
		ClientName:  s.ClientName,
		ClientUUID:  s.ClientUUID,
		ServiceType: s.ServiceType,
		SmartID:     s.SmartID,
		MobileID:    s.MobileID,
		Roles:       roles,
	}
}

// AuthenticatedIdentity is the result of a successful authentication.
// It is passed explicitly to every session store operation.
type AuthenticatedIdentity struct {
	ServiceUUID string       `json:"serviceUuid"`
	ServiceName string       `json:"serviceName"`
	ClientName  string       `json:"clientName"`
	ClientUUID  string       `json:"clientUuid,omitempty"`
	ServiceType ServiceType  `json:"serviceType,omitempty"`
	SmartID     RelyingParty `json:"smartId,omitempty"`
	MobileID    RelyingParty `json:"mobileId,omitempty"`
	Roles       []string     `json:"roles,omitempty"`
}

// HasRole reports whether the identity carries the given role.
func (a AuthenticatedIdentity) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}
