package domain

import "time"

// SigningType tells how a signature value is going to be produced.
type SigningType string

const (
	SigningRemote   SigningType = "REMOTE"
	SigningMobileID SigningType = "MOBILE_ID"
	SigningSmartID  SigningType = "SMART_ID"
)

// Processing statuses reported while a signature is being produced.
const (
	StatusOutstanding = "OUTSTANDING_TRANSACTION"
	StatusSigned      = "SIGNATURE"
	StatusExpired     = "EXPIRED_TRANSACTION"
	StatusFailed      = "FAILED"
)

// StatusError describes why a signing transaction failed.
type StatusError struct {
	Code    string `json:"errorCode"`
	Message string `json:"errorMessage"`
}

// ProcessingStatus tracks polling of a signing transaction.
type ProcessingStatus struct {
	Status            string       `json:"status"`
	ProcessingCounter int          `json:"processingCounter"`
	Error             *StatusError `json:"statusError,omitempty"`
}

// SignatureSession holds the data-to-sign prepared for one signer until the
// signature value arrives.
type SignatureSession struct {
	DataToSign         []byte           `json:"dataToSign"`
	DigestAlgorithm    string           `json:"digestAlgorithm"`
	SignatureProfile   string           `json:"signatureProfile,omitempty"`
	SigningType        SigningType      `json:"signingType"`
	SigningCertificate []byte           `json:"signingCertificate,omitempty"`
	DataFilesHash      string           `json:"dataFilesHash,omitempty"`
	SessionCode        string           `json:"sessionCode,omitempty"`
	RelyingParty       *RelyingParty    `json:"relyingParty,omitempty"`
	Status             ProcessingStatus `json:"status"`
	CreatedAt          time.Time        `json:"createdAt"`
}

// CertificateSession holds a pending certificate choice for a mobile signer.
type CertificateSession struct {
	SessionCode    string           `json:"sessionCode"`
	DocumentNumber string           `json:"documentNumber,omitempty"`
	RelyingParty   *RelyingParty    `json:"relyingParty,omitempty"`
	Status         ProcessingStatus `json:"status"`
}

// SignatureRecord is a completed signature merged into the container.
type SignatureRecord struct {
	ID                 string      `json:"id"`
	SignatureProfile   string      `json:"signatureProfile,omitempty"`
	SigningType        SigningType `json:"signingType"`
	SigningCertificate []byte      `json:"signingCertificate,omitempty"`
	Value              []byte      `json:"value"`
	SignedAt           time.Time   `json:"signedAt"`
}

func (s SignatureSession) clone() SignatureSession {
	out := s
	out.DataToSign = cloneBytes(s.DataToSign)
	out.SigningCertificate = cloneBytes(s.SigningCertificate)
	out.RelyingParty = cloneRelyingParty(s.RelyingParty)
	out.Status = s.Status.clone()
	return out
}

func (c CertificateSession) clone() CertificateSession {
	out := c
	out.RelyingParty = cloneRelyingParty(c.RelyingParty)
	out.Status = c.Status.clone()
	return out
}

func (r SignatureRecord) clone() SignatureRecord {
	out := r
	out.SigningCertificate = cloneBytes(r.SigningCertificate)
	out.Value = cloneBytes(r.Value)
	return out
}

func (p ProcessingStatus) clone() ProcessingStatus {
	out := p
	if p.Error != nil {
		e := *p.Error
		out.Error = &e
	}
	return out
}

func cloneRelyingParty(rp *RelyingParty) *RelyingParty {
	if rp == nil {
		return nil
	}
	c := *rp
	return &c
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
