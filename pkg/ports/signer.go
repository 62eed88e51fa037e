package ports

import (
	"context"

	"github.com/aretw0/sealgate/pkg/domain"
)

// SigningRequest describes the signer for which data-to-sign is prepared.
type SigningRequest struct {
	SigningCertificate []byte
	SignatureProfile   string
	SigningType        domain.SigningType
}

// DataToSign is the buffer a signer must sign, plus the digest it was built with.
type DataToSign struct {
	Data            []byte
	DigestAlgorithm string
	DataFilesHash   string
}

// Signer builds signature input for a container and merges finished signatures
// into it. Container construction and signature validity are its concern only.
type Signer interface {
	// PrepareDataToSign computes the bytes the signer must sign for this session.
	PrepareDataToSign(ctx context.Context, session *domain.Session, req SigningRequest) (DataToSign, error)

	// AttachSignature merges a signature value into the session payload.
	// The session passed in is a private copy and may be mutated.
	AttachSignature(ctx context.Context, session *domain.Session, pending domain.SignatureSession, value []byte) (domain.SignatureRecord, error)
}
