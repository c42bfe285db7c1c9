package trustpool

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/PNWBNW/Proven-National-Worker/internal/ledger"
	"github.com/PNWBNW/Proven-National-Worker/internal/model"
)

// KYCRecord is the KYC state of a receiving identity.
type KYCRecord struct {
	ID          string     `json:"id"`
	Verified    bool       `json:"verified"`
	Attestation string     `json:"attestation"`
	VerifiedAt  time.Time  `json:"verified_at"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
}

func kycKey(id string) string { return ledger.PrefixKYC + id }

// VerifyKYC marks id as verified and issues a fresh attestation reference.
func (c *Custodian) VerifyKYC(ctx context.Context, id string) (*KYCRecord, error) {
	if id == "" {
		return nil, &model.ErrValidation{Msg: "kyc subject id is required"}
	}
	rec, err := ledger.Mutate(ctx, c.store, kycKey(id),
		func() (*KYCRecord, error) { return &KYCRecord{ID: id}, nil },
		func(r *KYCRecord) error {
			r.Verified = true
			r.Attestation = uuid.NewString()
			r.VerifiedAt = c.now()
			r.RevokedAt = nil
			return nil
		})
	if err != nil {
		return nil, err
	}
	c.emitter.Emit(ctx, model.Event{Type: model.EventKYCVerified, SubjectID: id})
	return rec, nil
}

// RevokeKYC clears verification for id.
func (c *Custodian) RevokeKYC(ctx context.Context, id string) error {
	_, err := ledger.Mutate(ctx, c.store, kycKey(id), ledger.NotFound[KYCRecord], func(r *KYCRecord) error {
		now := c.now()
		r.Verified = false
		r.Attestation = ""
		r.RevokedAt = &now
		return nil
	})
	if err != nil {
		return err
	}
	c.emitter.Emit(ctx, model.Event{Type: model.EventKYCRevoked, SubjectID: id})
	return nil
}

// IsKYCVerified reports whether id is currently verified.
func (c *Custodian) IsKYCVerified(ctx context.Context, id string) (bool, error) {
	_, ok, err := c.KYCAttestation(ctx, id)
	return ok, err
}

// KYCAttestation implements proof.KYCRegistry.
func (c *Custodian) KYCAttestation(ctx context.Context, id string) (string, bool, error) {
	rec, err := ledger.Get[KYCRecord](ctx, c.store, kycKey(id))
	if errors.Is(err, model.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return rec.Attestation, rec.Verified, nil
}
