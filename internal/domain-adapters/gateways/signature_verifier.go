package gateways

import (
	"bytes"
	"fmt"

	"github.com/Amicidal/sigmachad-sub001/internal/domain/interfaces/gateways"
	"github.com/Amicidal/sigmachad-sub001/internal/external-adapters/gpg"
)

// signatureVerifier wraps the external GPG adapter to implement the domain
// SignatureVerifier gateway
type signatureVerifier struct {
	verifier *gpg.Verifier
}

var _ gateways.SignatureVerifier = (*signatureVerifier)(nil)

// NewSignatureVerifier creates a verifier trusting the keys in keyringPath
//
//nolint:revive // unexported-return: Intentionally returns concrete type for testability
func NewSignatureVerifier(keyringPath string) (*signatureVerifier, error) {
	v := gpg.NewVerifier()
	if err := v.ImportKeyFromFile(keyringPath); err != nil {
		return nil, fmt.Errorf("failed to import GPG keyring: %w", err)
	}
	return &signatureVerifier{verifier: v}, nil
}

// Verify checks a detached signature over data
func (s *signatureVerifier) Verify(data, signature []byte) error {
	if err := s.verifier.Verify(bytes.NewReader(data), signature); err != nil {
		return fmt.Errorf("GPG signature verification failed: %w", err)
	}
	return nil
}
