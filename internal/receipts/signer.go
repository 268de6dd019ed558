package receipts

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// Signer signs receipt payloads with HMAC-SHA256.
type Signer struct {
	secret []byte
}

// NewSigner creates an HMAC signer. If secret is empty, signing is disabled
// and nil is returned.
func NewSigner(secret string) *Signer {
	if secret == "" {
		return nil
	}
	return &Signer{secret: []byte(secret)}
}

func (s *Signer) mac(payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	m := hmac.New(sha256.New, s.secret)
	m.Write(data)
	return hex.EncodeToString(m.Sum(nil)), nil
}

// Sign computes the HMAC of the canonical JSON of payload. A nil signer
// returns an empty signature.
func (s *Signer) Sign(payload any) (string, error) {
	if s == nil {
		return "", nil
	}
	return s.mac(payload)
}

// Verify checks signature against payload in constant time.
func (s *Signer) Verify(payload any, signature string) bool {
	if s == nil || signature == "" {
		return false
	}
	expected, err := s.mac(payload)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerificationCode is the short form of a signature printed on the PDF:
// the first 16 hex digits in groups of four.
func VerificationCode(signature string) string {
	if len(signature) < 16 {
		return ""
	}
	code := strings.ToUpper(signature[:16])
	return code[0:4] + "-" + code[4:8] + "-" + code[8:12] + "-" + code[12:16]
}
