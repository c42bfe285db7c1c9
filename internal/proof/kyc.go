package proof

import (
	"context"
	"crypto/subtle"
)

// KYCRegistry exposes the attestation reference recorded when a subject
// passed KYC. verified is false for unknown or revoked subjects.
type KYCRegistry interface {
	KYCAttestation(ctx context.Context, subjectID string) (ref string, verified bool, err error)
}

// KYCVerifier accepts a proof when the subject is currently verified and
// the proof bytes carry its attestation reference.
type KYCVerifier struct {
	registry KYCRegistry
}

// NewKYCVerifier creates a KYCVerifier.
func NewKYCVerifier(r KYCRegistry) Verifier {
	return Guard(&KYCVerifier{registry: r})
}

// Verify implements Verifier.
func (k *KYCVerifier) Verify(ctx context.Context, subjectID string, proof []byte, _ Kind) (Verdict, error) {
	ref, verified, err := k.registry.KYCAttestation(ctx, subjectID)
	if err != nil {
		return Invalid, err
	}
	if !verified || ref == "" {
		return Invalid, nil
	}
	return Verdict(subtle.ConstantTimeCompare([]byte(ref), proof) == 1), nil
}
