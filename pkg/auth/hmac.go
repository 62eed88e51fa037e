package auth

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"hash"
	"strconv"
	"time"
)

// Algorithm names a keyed-hash function as sent in the algorithm header.
type Algorithm string

const (
	HmacSHA256 Algorithm = "HmacSHA256"
	HmacSHA384 Algorithm = "HmacSHA384"
	HmacSHA512 Algorithm = "HmacSHA512"
)

// DefaultAlgorithm is used when a request does not declare one.
const DefaultAlgorithm = HmacSHA256

const delimiter = ":"

// ParseAlgorithm resolves a header value. An empty value selects DefaultAlgorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch Algorithm(name) {
	case "":
		return DefaultAlgorithm, nil
	case HmacSHA256, HmacSHA384, HmacSHA512:
		return Algorithm(name), nil
	}
	return "", fmt.Errorf("invalid HMAC algorithm: %q", name)
}

func (a Algorithm) newHash() func() hash.Hash {
	switch a {
	case HmacSHA384:
		return sha512.New384
	case HmacSHA512:
		return sha512.New
	default:
		return sha256.New
	}
}

// SignedRequest is the per-request material the gate verifies. It is never persisted.
type SignedRequest struct {
	ServiceUUID string
	Timestamp   string
	Signature   string
	Algorithm   Algorithm
	Method      string
	URI         string
	Payload     []byte
}

// CanonicalBytes returns "serviceUUID:timestamp:METHOD:uri:" followed by the raw payload.
func (r SignedRequest) CanonicalBytes() []byte {
	var buf bytes.Buffer
	buf.Grow(len(r.ServiceUUID) + len(r.Timestamp) + len(r.Method) + len(r.URI) + len(r.Payload) + 4)
	buf.WriteString(r.ServiceUUID)
	buf.WriteString(delimiter)
	buf.WriteString(r.Timestamp)
	buf.WriteString(delimiter)
	buf.WriteString(r.Method)
	buf.WriteString(delimiter)
	buf.WriteString(r.URI)
	buf.WriteString(delimiter)
	buf.Write(r.Payload)
	return buf.Bytes()
}

// ComputeSignature returns the raw keyed hash of the canonical bytes.
func ComputeSignature(secret []byte, r SignedRequest) []byte {
	alg := r.Algorithm
	if alg == "" {
		alg = DefaultAlgorithm
	}
	mac := hmac.New(alg.newHash(), secret)
	mac.Write(r.CanonicalBytes())
	return mac.Sum(nil)
}

// Sign returns the base64 signature a client sends for r.
func Sign(secret []byte, r SignedRequest) string {
	return base64.StdEncoding.EncodeToString(ComputeSignature(secret, r))
}

// FormatTimestamp renders t as epoch milliseconds.
func FormatTimestamp(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// parseTimestamp accepts only unsigned decimal epoch milliseconds.
func parseTimestamp(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, c := range raw {
		if c < '0' || c > '9' {
			return time.Time{}, fmt.Errorf("timestamp %q is not in epoch milliseconds format", raw)
		}
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q out of range", raw)
	}
	return time.UnixMilli(ms), nil
}
