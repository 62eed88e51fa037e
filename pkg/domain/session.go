package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind is the variant tag of a Session. It is fixed at creation.
type Kind string

const (
	KindAttached Kind = "ATTACHED"
	KindHashcode Kind = "HASHCODE"
	KindAsic     Kind = "ASIC"
)

// Phase is the workflow position of a container session.
type Phase string

const (
	PhaseCreated           Phase = "CREATED"
	PhaseDataPrepared      Phase = "DATA_PREPARED"
	PhaseSignaturePending  Phase = "SIGNATURE_PENDING"
	PhaseSignatureAttached Phase = "SIGNATURE_ATTACHED"
	PhaseFinalized         Phase = "FINALIZED"
)

// transitions lists the phases reachable from each phase.
var transitions = map[Phase][]Phase{
	PhaseCreated:           {PhaseDataPrepared},
	PhaseDataPrepared:      {PhaseDataPrepared, PhaseSignaturePending, PhaseSignatureAttached, PhaseFinalized},
	PhaseSignaturePending:  {PhaseSignaturePending, PhaseSignatureAttached},
	PhaseSignatureAttached: {PhaseSignaturePending, PhaseSignatureAttached, PhaseFinalized},
	PhaseFinalized:         nil,
}

// CanTransition reports whether the workflow allows moving from one phase to another.
func CanTransition(from, to Phase) bool {
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// Variant is the mode-specific payload of a Session.
// The set of implementations is closed to this package.
type Variant interface {
	Kind() Kind
	cloneVariant() Variant
}

// DataFile is a file carried inside an attached container.
type DataFile struct {
	FileName string `json:"fileName"`
	Content  []byte `json:"fileContent"`
}

// HashcodeDataFile describes a file by its digests only.
type HashcodeDataFile struct {
	FileName       string `json:"fileName"`
	FileSize       int64  `json:"fileSize"`
	FileHashSha256 string `json:"fileHashSha256,omitempty"`
	FileHashSha512 string `json:"fileHashSha512,omitempty"`
}

// AttachedContainer carries the raw container bytes together with its files.
type AttachedContainer struct {
	ContainerName string     `json:"containerName"`
	Container     []byte     `json:"container,omitempty"`
	DataFiles     []DataFile `json:"dataFiles,omitempty"`
}

func (*AttachedContainer) Kind() Kind { return KindAttached }

func (a *AttachedContainer) cloneVariant() Variant {
	out := &AttachedContainer{
		ContainerName: a.ContainerName,
		Container:     cloneBytes(a.Container),
	}
	if a.DataFiles != nil {
		out.DataFiles = make([]DataFile, len(a.DataFiles))
		for i, f := range a.DataFiles {
			out.DataFiles[i] = DataFile{FileName: f.FileName, Content: cloneBytes(f.Content)}
		}
	}
	return out
}

// DetachedHashcodeContainer only knows the digests of its data files.
type DetachedHashcodeContainer struct {
	DataFiles []HashcodeDataFile `json:"dataFiles"`
}

func (*DetachedHashcodeContainer) Kind() Kind { return KindHashcode }

func (h *DetachedHashcodeContainer) cloneVariant() Variant {
	out := &DetachedHashcodeContainer{}
	if h.DataFiles != nil {
		out.DataFiles = make([]HashcodeDataFile, len(h.DataFiles))
		copy(out.DataFiles, h.DataFiles)
	}
	return out
}

// AsicGenericContainer is an opaque container handled without format knowledge.
type AsicGenericContainer struct {
	ContainerName string `json:"containerName"`
	Container     []byte `json:"container"`
}

func (*AsicGenericContainer) Kind() Kind { return KindAsic }

func (a *AsicGenericContainer) cloneVariant() Variant {
	return &AsicGenericContainer{
		ContainerName: a.ContainerName,
		Container:     cloneBytes(a.Container),
	}
}

// Session is the durable state of one container's signing workflow.
// The payload is reachable only through AsVariant and the typed accessors.
type Session struct {
	ContainerID string
	Phase       Phase
	CreatedAt   time.Time
	UpdatedAt   time.Time

	ClientName  string
	ServiceName string
	ServiceUUID string

	Signatures          []SignatureRecord
	SignatureSessions   map[string]SignatureSession
	CertificateSessions map[string]CertificateSession

	variant Variant
}

// NewSession creates a session in the CREATED phase owned by the given identity.
func NewSession(containerID string, owner AuthenticatedIdentity, payload Variant, now time.Time) *Session {
	now = now.UTC()
	return &Session{
		ContainerID: containerID,
		Phase:       PhaseCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
		ClientName:  owner.ClientName,
		ServiceName: owner.ServiceName,
		ServiceUUID: owner.ServiceUUID,
		variant:     payload,
	}
}

// Kind returns the variant tag, or an empty Kind for a session without payload.
func (s *Session) Kind() Kind {
	if s == nil || s.variant == nil {
		return ""
	}
	return s.variant.Kind()
}

// Transition moves the session to the next phase if the workflow allows it.
func (s *Session) Transition(to Phase) error {
	if !CanTransition(s.Phase, to) {
		return &TechnicalError{
			Kind:   MalformedState,
			Detail: fmt.Sprintf("container %s cannot move from %s to %s", s.ContainerID, s.Phase, to),
		}
	}
	s.Phase = to
	return nil
}

// Clone returns a deep copy suitable for a mutate-then-put cycle.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.variant != nil {
		out.variant = s.variant.cloneVariant()
	}
	if s.Signatures != nil {
		out.Signatures = make([]SignatureRecord, len(s.Signatures))
		for i, sig := range s.Signatures {
			out.Signatures[i] = sig.clone()
		}
	}
	if s.SignatureSessions != nil {
		out.SignatureSessions = make(map[string]SignatureSession, len(s.SignatureSessions))
		for k, v := range s.SignatureSessions {
			out.SignatureSessions[k] = v.clone()
		}
	}
	if s.CertificateSessions != nil {
		out.CertificateSessions = make(map[string]CertificateSession, len(s.CertificateSessions))
		for k, v := range s.CertificateSessions {
			out.CertificateSessions[k] = v.clone()
		}
	}
	return &out
}

// AsVariant returns the typed payload of a session, or a WrongVariant
// TechnicalError when the stored tag differs from V.
func AsVariant[V Variant](s *Session) (V, error) {
	var zero V
	if s == nil || s.variant == nil {
		return zero, &TechnicalError{Kind: MalformedState, Detail: "session has no payload"}
	}
	v, ok := s.variant.(V)
	if !ok {
		return zero, &TechnicalError{
			Kind:   WrongVariant,
			Detail: fmt.Sprintf("container %s is %s, operation requires %s", s.ContainerID, s.variant.Kind(), zero.Kind()),
		}
	}
	return v, nil
}

// AttachedContainer returns the payload of an attached-container session.
func (s *Session) AttachedContainer() (*AttachedContainer, error) {
	return AsVariant[*AttachedContainer](s)
}

// HashcodeContainer returns the payload of a hashcode-container session.
func (s *Session) HashcodeContainer() (*DetachedHashcodeContainer, error) {
	return AsVariant[*DetachedHashcodeContainer](s)
}

// AsicContainer returns the payload of a generic ASiC session.
func (s *Session) AsicContainer() (*AsicGenericContainer, error) {
	return AsVariant[*AsicGenericContainer](s)
}

// sessionJSON is the wire form: common fields plus a tagged payload.
type sessionJSON struct {
	ContainerID         string                        `json:"containerId"`
	Kind                Kind                          `json:"kind"`
	Phase               Phase                         `json:"phase"`
	CreatedAt           time.Time                     `json:"createdAt"`
	UpdatedAt           time.Time                     `json:"updatedAt"`
	ClientName          string                        `json:"clientName,omitempty"`
	ServiceName         string                        `json:"serviceName,omitempty"`
	ServiceUUID         string                        `json:"serviceUuid"`
	Signatures          []SignatureRecord             `json:"signatures,omitempty"`
	SignatureSessions   map[string]SignatureSession   `json:"signatureSessions,omitempty"`
	CertificateSessions map[string]CertificateSession `json:"certificateSessions,omitempty"`
	Payload             json.RawMessage               `json:"payload"`
}

// MarshalJSON encodes the session with its variant tag.
func (s *Session) MarshalJSON() ([]byte, error) {
	if s.variant == nil {
		return nil, &TechnicalError{Kind: MalformedState, Detail: "session has no payload"}
	}
	payload, err := json.Marshal(s.variant)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", s.variant.Kind(), err)
	}
	return json.Marshal(sessionJSON{
		ContainerID:         s.ContainerID,
		Kind:                s.variant.Kind(),
		Phase:               s.Phase,
		CreatedAt:           s.CreatedAt,
		UpdatedAt:           s.UpdatedAt,
		ClientName:          s.ClientName,
		ServiceName:         s.ServiceName,
		ServiceUUID:         s.ServiceUUID,
		Signatures:          s.Signatures,
		SignatureSessions:   s.SignatureSessions,
		CertificateSessions: s.CertificateSessions,
		Payload:             payload,
	})
}

// UnmarshalJSON decodes a tagged session. Unknown tags are MalformedState.
func (s *Session) UnmarshalJSON(data []byte) error {
	var raw sessionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return &TechnicalError{Kind: MalformedState, Detail: "undecodable session", Err: err}
	}

	var payload Variant
	switch raw.Kind {
	case KindAttached:
		payload = &AttachedContainer{}
	case KindHashcode:
		payload = &DetachedHashcodeContainer{}
	case KindAsic:
		payload = &AsicGenericContainer{}
	default:
		return &TechnicalError{Kind: MalformedState, Detail: fmt.Sprintf("unknown session kind %q", raw.Kind)}
	}
	if err := json.Unmarshal(raw.Payload, payload); err != nil {
		return &TechnicalError{Kind: MalformedState, Detail: fmt.Sprintf("undecodable %s payload", raw.Kind), Err: err}
	}

	*s = Session{
		ContainerID:         raw.ContainerID,
		Phase:               raw.Phase,
		CreatedAt:           raw.CreatedAt,
		UpdatedAt:           raw.UpdatedAt,
		ClientName:          raw.ClientName,
		ServiceName:         raw.ServiceName,
		ServiceUUID:         raw.ServiceUUID,
		Signatures:          raw.Signatures,
		SignatureSessions:   raw.SignatureSessions,
		CertificateSessions: raw.CertificateSessions,
		variant:             payload,
	}
	return nil
}
