package services

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Signer produces and checks PassimPay signatures. The signed contract is
//
//	platformId;body;secretKey
//
// hashed with HMAC-SHA256 keyed by the secret and hex encoded in lowercase.
type Signer struct {
	platformID string
	secret     []byte
}

func NewSigner(platformID, secret string) *Signer {
	return &Signer{
		platformID: platformID,
		secret:     []byte(secret),
	}
}

// Canonicalize serializes payload the way the gateway does: compact JSON with
// no HTML escaping and every "/" written as "\/". Field order is the
// declaration order of the payload struct, so payloads must be structs whose
// field order matches the gateway contract. Maps are encoded with sorted keys.
func Canonicalize(payload any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(payload); err != nil {
		return nil, fmt.Errorf("failed to serialize payload: %w", err)
	}

	out := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	return bytes.ReplaceAll(out, []byte("/"), []byte(`\/`)), nil
}

func (s *Signer) mac(body []byte) []byte {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(s.platformID))
	h.Write([]byte{';'})
	h.Write(body)
	h.Write([]byte{';'})
	h.Write(s.secret)
	return h.Sum(nil)
}

// Sign canonicalizes payload and signs the result.
func (s *Signer) Sign(payload any) (string, error) {
	body, err := Canonicalize(payload)
	if err != nil {
		return "", err
	}
	return s.SignRaw(body), nil
}

// SignRaw signs already serialized bytes verbatim.
func (s *Signer) SignRaw(body []byte) string {
	return hex.EncodeToString(s.mac(body))
}

// Configured reports whether a secret is set.
func (s *Signer) Configured() bool {
	return len(s.secret) > 0
}

// Verify reports whether candidate is the signature of body. The comparison
// runs in constant time. Without a secret nothing verifies.
func (s *Signer) Verify(body []byte, candidate string) bool {
	if !s.Configured() {
		return false
	}
	got, err := hex.DecodeString(strings.TrimSpace(candidate))
	if err != nil || len(got) == 0 {
		return false
	}
	return hmac.Equal(s.mac(body), got)
}

// VerifyPayload canonicalizes payload and verifies candidate against it.
func (s *Signer) VerifyPayload(payload any, candidate string) bool {
	body, err := Canonicalize(payload)
	if err != nil {
		return false
	}
	return s.Verify(body, candidate)
}
