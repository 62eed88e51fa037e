package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aretw0/sealgate/pkg/auth"
	"github.com/aretw0/sealgate/pkg/domain"
	"github.com/aretw0/sealgate/pkg/ports"
	"github.com/go-chi/chi/v5"
)

// CreateResponse returns the id of a registered container.
type CreateResponse struct {
	ContainerID string `json:"containerId"`
}

// StartSigningRequest asks for data-to-sign for one signer. Unset fields are
// left off the wire; an empty SigningType means REMOTE.
type StartSigningRequest struct {
	SigningCertificate []byte             `json:"signingCertificate,omitempty"`
	SignatureProfile   string             `json:"signatureProfile,omitempty"`
	SigningType        domain.SigningType `json:"signingType,omitempty"`
}

// StartSigningResponse carries the data-to-sign and the id to finish it with.
type StartSigningResponse struct {
	GeneratedSignatureID string `json:"generatedSignatureId"`
	DataToSign           []byte `json:"dataToSign"`
	DigestAlgorithm      string `json:"digestAlgorithm"`
}

// FinishSigningRequest supplies the signature value.
type FinishSigningRequest struct {
	SignatureValue []byte `json:"signatureValue"`
}

// SignatureSummary describes a completed signature.
type SignatureSummary struct {
	ID               string             `json:"id"`
	SignatureProfile string             `json:"signatureProfile,omitempty"`
	SigningType      domain.SigningType `json:"signingType"`
	SignedAt         time.Time          `json:"signedAt"`
}

// SessionSummary is the client view of a container session.
type SessionSummary struct {
	ContainerID       string             `json:"containerId"`
	Kind              domain.Kind        `json:"kind"`
	Phase             domain.Phase       `json:"phase"`
	CreatedAt         time.Time          `json:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt"`
	ContainerName     string             `json:"containerName,omitempty"`
	DataFiles         []string           `json:"dataFiles,omitempty"`
	PendingSignatures []string           `json:"pendingSignatures,omitempty"`
	Signatures        []SignatureSummary `json:"signatures"`
}

func summarize(s *domain.Session) SessionSummary {
	out := SessionSummary{
		ContainerID: s.ContainerID,
		Kind:        s.Kind(),
		Phase:       s.Phase,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
		Signatures:  make([]SignatureSummary, 0, len(s.Signatures)),
	}
	switch s.Kind() {
	case domain.KindAttached:
		if c, err := s.AttachedContainer(); err == nil {
			out.ContainerName = c.ContainerName
			for _, f := range c.DataFiles {
				out.DataFiles = append(out.DataFiles, f.FileName)
			}
		}
	case domain.KindHashcode:
		if c, err := s.HashcodeContainer(); err == nil {
			for _, f := range c.DataFiles {
				out.DataFiles = append(out.DataFiles, f.FileName)
			}
		}
	case domain.KindAsic:
		if c, err := s.AsicContainer(); err == nil {
			out.ContainerName = c.ContainerName
		}
	}
	for id := range s.SignatureSessions {
		out.PendingSignatures = append(out.PendingSignatures, id)
	}
	for _, sig := range s.Signatures {
		out.Signatures = append(out.Signatures, SignatureSummary{
			ID:               sig.ID,
			SignatureProfile: sig.SignatureProfile,
			SigningType:      sig.SigningType,
			SignedAt:         sig.SignedAt,
		})
	}
	return out
}

// containerHandlers serves one URL prefix, bound to one container mode.
type containerHandlers struct {
	s    *Server
	kind domain.Kind
}

func (h containerHandlers) decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &domain.InvalidRequestError{Detail: "malformed JSON body", Err: err}
	}
	return nil
}

func (h containerHandlers) caller(r *http.Request) domain.AuthenticatedIdentity {
	// authenticate guarantees presence
	id, _ := auth.IdentityFromContext(r.Context())
	return id
}

func (h containerHandlers) newPayload() domain.Variant {
	switch h.kind {
	case domain.KindHashcode:
		return &domain.DetachedHashcodeContainer{}
	case domain.KindAsic:
		return &domain.AsicGenericContainer{}
	default:
		return &domain.AttachedContainer{}
	}
}

func (h containerHandlers) create(w http.ResponseWriter, r *http.Request) {
	payload := h.newPayload()
	if err := h.decode(r, payload); err != nil {
		h.s.writeError(w, r, err)
		return
	}
	created, err := h.s.sessions.Create(r.Context(), h.caller(r), payload)
	h.s.metrics.ObserveSessionOp("create", err)
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CreateResponse{ContainerID: created.ContainerID})
}

func (h containerHandlers) get(w http.ResponseWriter, r *http.Request) {
	sess, err := h.s.sessions.Get(r.Context(), h.caller(r), h.kind, chi.URLParam(r, "containerId"))
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summarize(sess))
}

func (h containerHandlers) remove(w http.ResponseWriter, r *http.Request) {
	err := h.s.sessions.Close(r.Context(), h.caller(r), h.kind, chi.URLParam(r, "containerId"))
	h.s.metrics.ObserveSessionOp("close", err)
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resultOK)
}

func (h containerHandlers) startSigning(w http.ResponseWriter, r *http.Request) {
	var body StartSigningRequest
	if err := h.decode(r, &body); err != nil {
		h.s.writeError(w, r, err)
		return
	}
	if body.SigningType == "" {
		body.SigningType = domain.SigningRemote
	}
	containerID := chi.URLParam(r, "containerId")
	caller := h.caller(r)

	sigID, dts, err := h.s.sessions.PrepareDataToSign(r.Context(), caller, h.kind, containerID, ports.SigningRequest{
		SigningCertificate: body.SigningCertificate,
		SignatureProfile:   body.SignatureProfile,
		SigningType:        body.SigningType,
	})
	h.s.metrics.ObserveSessionOp("prepare", err)
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}

	// Mobile signers sign out of band; the transaction is outstanding from now on.
	if body.SigningType != domain.SigningRemote {
		err = h.s.sessions.MarkSignaturePending(r.Context(), caller, h.kind, containerID, sigID, domain.ProcessingStatus{Status: domain.StatusOutstanding})
		h.s.metrics.ObserveSessionOp("pending", err)
		if err != nil {
			h.s.writeError(w, r, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, StartSigningResponse{
		GeneratedSignatureID: sigID,
		DataToSign:           dts.Data,
		DigestAlgorithm:      dts.DigestAlgorithm,
	})
}

func (h containerHandlers) finishSigning(w http.ResponseWriter, r *http.Request) {
	var body FinishSigningRequest
	if err := h.decode(r, &body); err != nil {
		h.s.writeError(w, r, err)
		return
	}
	_, err := h.s.sessions.AttachSignature(r.Context(), h.caller(r), h.kind,
		chi.URLParam(r, "containerId"), chi.URLParam(r, "signatureId"), body.SignatureValue)
	h.s.metrics.ObserveSessionOp("attach", err)
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resultOK)
}

func (h containerHandlers) status(w http.ResponseWriter, r *http.Request) {
	st, err := h.s.sessions.Status(r.Context(), h.caller(r), h.kind,
		chi.URLParam(r, "containerId"), chi.URLParam(r, "signatureId"))
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h containerHandlers) finalize(w http.ResponseWriter, r *http.Request) {
	_, err := h.s.sessions.Finalize(r.Context(), h.caller(r), h.kind, chi.URLParam(r, "containerId"))
	h.s.metrics.ObserveSessionOp("finalize", err)
	if err != nil {
		h.s.writeError(w, r, fmt.Errorf("finalize: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, resultOK)
}
