// Package signer provides a development Signer that derives data-to-sign from
// container digests. It performs no cryptographic signature validation.
package signer

import (
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"hash"

	"github.com/aretw0/sealgate/pkg/domain"
	"github.com/aretw0/sealgate/pkg/ports"
)

// Digest algorithm names as reported to clients.
const (
	SHA256 = "SHA256"
	SHA384 = "SHA384"
	SHA512 = "SHA512"
)

// Digest is a stand-in for a real container signer.
type Digest struct {
	algorithm string
}

var _ ports.Signer = (*Digest)(nil)

// NewDigest creates a signer hashing with algorithm (SHA256 when empty).
func NewDigest(algorithm string) (*Digest, error) {
	if algorithm == "" {
		algorithm = SHA256
	}
	if _, err := newHash(algorithm); err != nil {
		return nil, err
	}
	return &Digest{algorithm: algorithm}, nil
}

func newHash(algorithm string) (hash.Hash, error) {
	switch algorithm {
	case SHA256:
		return sha256.New(), nil
	case SHA384:
		return sha512.New384(), nil
	case SHA512:
		return sha512.New(), nil
	}
	return nil, fmt.Errorf("unsupported digest algorithm %q", algorithm)
}

// PrepareDataToSign hashes the container content together with the signer's
// certificate and profile.
func (d *Digest) PrepareDataToSign(ctx context.Context, session *domain.Session, req ports.SigningRequest) (ports.DataToSign, error) {
	filesHash, err := dataFilesHash(session)
	if err != nil {
		return ports.DataToSign{}, err
	}

	h, _ := newHash(d.algorithm)
	h.Write([]byte(filesHash))
	h.Write(req.SigningCertificate)
	h.Write([]byte(req.SignatureProfile))

	return ports.DataToSign{
		Data:            h.Sum(nil),
		DigestAlgorithm: d.algorithm,
		DataFilesHash:   filesHash,
	}, nil
}

// AttachSignature accepts any non-empty value, provided the container did
// not change since its data-to-sign was prepared.
func (d *Digest) AttachSignature(ctx context.Context, session *domain.Session, pending domain.SignatureSession, value []byte) (domain.SignatureRecord, error) {
	if len(value) == 0 {
		return domain.SignatureRecord{}, domain.NewInvalidRequest("signature value is required")
	}
	current, err := dataFilesHash(session)
	if err != nil {
		return domain.SignatureRecord{}, err
	}
	if pending.DataFilesHash != "" && pending.DataFilesHash != current {
		return domain.SignatureRecord{}, domain.NewInvalidRequest("container data files changed after data to sign was prepared")
	}

	return domain.SignatureRecord{
		SignatureProfile:   pending.SignatureProfile,
		SigningType:        pending.SigningType,
		SigningCertificate: pending.SigningCertificate,
		Value:              append([]byte(nil), value...),
	}, nil
}

// dataFilesHash is a base64 SHA-256 over the variant's content.
func dataFilesHash(session *domain.Session) (string, error) {
	h := sha256.New()
	switch session.Kind() {
	case domain.KindAttached:
		c, err := session.AttachedContainer()
		if err != nil {
			return "", err
		}
		h.Write(c.Container)
		for _, f := range c.DataFiles {
			h.Write([]byte(f.FileName))
			h.Write(f.Content)
		}
	case domain.KindHashcode:
		c, err := session.HashcodeContainer()
		if err != nil {
			return "", err
		}
		for _, f := range c.DataFiles {
			fmt.Fprintf(h, "%s:%d:%s:%s;", f.FileName, f.FileSize, f.FileHashSha256, f.FileHashSha512)
		}
	case domain.KindAsic:
		c, err := session.AsicContainer()
		if err != nil {
			return "", err
		}
		h.Write(c.Container)
	default:
		return "", &domain.TechnicalError{Kind: domain.MalformedState, Detail: "session has no payload"}
	}
	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}
