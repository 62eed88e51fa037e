package domain

import "strings"

// DefaultCacheVersion prefixes session keys unless configured otherwise.
const DefaultCacheVersion = "1"

// SessionKey addresses one container session inside one identity's namespace.
// It can only be built from an AuthenticatedIdentity, so a caller never
// addresses another tenant's sessions.
type SessionKey struct {
	Version     string
	ServiceUUID string
	ContainerID string
}

// NewSessionKey builds the key for containerID under the identity's namespace.
func NewSessionKey(version string, owner AuthenticatedIdentity, containerID string) SessionKey {
	if version == "" {
		version = DefaultCacheVersion
	}
	return SessionKey{
		Version:     version,
		ServiceUUID: owner.ServiceUUID,
		ContainerID: containerID,
	}
}

// String renders the joined form "<version>_<serviceUUID>_<containerID>".
func (k SessionKey) String() string {
	return strings.Join([]string{k.Version, k.ServiceUUID, k.ContainerID}, "_")
}

// Valid reports whether every component of the key is present.
func (k SessionKey) Valid() bool {
	return k.Version != "" && k.ServiceUUID != "" && k.ContainerID != ""
}
