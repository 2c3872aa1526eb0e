package service

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"savings-lockbox/internal/core/domain"
)

// LoginMessagePrefix starts every signed login challenge.
const LoginMessagePrefix = "lockbox-login"

// SignatureServiceImpl implements ports.SignatureService. Owner signatures
// are ed25519 over the owner's address, outgoing payloads use HMAC-SHA256.
type SignatureServiceImpl struct{}

// NewSignatureService creates a new SignatureServiceImpl.
func NewSignatureService() *SignatureServiceImpl {
	return &SignatureServiceImpl{}
}

// VerifyEd25519 reports whether signature is a valid signature of message by
// the key whose public half is addr.
func (s *SignatureServiceImpl) VerifyEd25519(addr domain.Address, message []byte, signature []byte) bool {
	if len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(addr.Bytes()), message, signature)
}

// Sign computes HMAC-SHA256 of payload using secretKey.
// Returns lowercase hex-encoded signature.
func (s *SignatureServiceImpl) Sign(secretKey string, payload string) string {
	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks if signature matches HMAC-SHA256(secretKey, payload).
// Uses constant-time comparison to prevent timing attacks.
func (s *SignatureServiceImpl) Verify(secretKey string, payload string, signature string) bool {
	expected := s.Sign(secretKey, payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// BuildLoginMessage constructs the login challenge an owner signs.
// Format: lockbox-login|ADDRESS|TIMESTAMP|NONCE
func BuildLoginMessage(addr domain.Address, timestamp int64, nonce string) string {
	return fmt.Sprintf("%s|%s|%d|%s", LoginMessagePrefix, addr.String(), timestamp, nonce)
}
