// Package workers registers worker identities.
package workers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/PNWBNW/Proven-National-Worker/internal/events"
	"github.com/PNWBNW/Proven-National-Worker/internal/ledger"
	"github.com/PNWBNW/Proven-National-Worker/internal/model"
	"github.com/PNWBNW/Proven-National-Worker/internal/proof"
)

// Registry stores workers whose identity and KYC proofs verified.
type Registry struct {
	store    *ledger.Store
	verifier proof.Verifier
	emitter  events.Emitter
	logger   *zap.Logger
	now      func() time.Time
}

// NewRegistry creates a Registry.
func NewRegistry(store *ledger.Store, v proof.Verifier, emitter events.Emitter, logger *zap.Logger) *Registry {
	return &Registry{
		store:    store,
		verifier: proof.Guard(v),
		emitter:  emitter,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func key(id string) string { return ledger.PrefixWorker + id }

// Register verifies both proofs and records w as verified.
func (r *Registry) Register(ctx context.Context, w model.Worker, identityProof, kycProof []byte) (*model.Worker, error) {
	w.ID = strings.TrimSpace(w.ID)
	if w.ID == "" {
		return nil, &model.ErrValidation{Msg: "worker id is required"}
	}
	if !w.Type.Valid() {
		return nil, &model.ErrValidation{Msg: fmt.Sprintf("invalid worker type %d", w.Type)}
	}

	for _, check := range []struct {
		kind  proof.Kind
		bytes []byte
	}{
		{proof.KindIdentity, identityProof},
		{proof.KindKYC, kycProof},
	} {
		verdict, err := r.verifier.Verify(ctx, w.ID, check.bytes, check.kind)
		if err != nil {
			return nil, fmt.Errorf("verify %s proof: %w", check.kind, err)
		}
		if verdict != proof.Valid {
			return nil, fmt.Errorf("%w: %s proof rejected", model.ErrProofInvalid, check.kind)
		}
	}

	out, err := ledger.Mutate(ctx, r.store, key(w.ID),
		func() (*model.Worker, error) { return &model.Worker{}, nil },
		func(stored *model.Worker) error {
			if stored.ID != "" {
				return &model.ErrValidation{Msg: fmt.Sprintf("worker %s is already registered", w.ID)}
			}
			*stored = w
			stored.Verified = true
			stored.RegisteredAt = r.now()
			return nil
		})
	if err != nil {
		return nil, err
	}

	r.logger.Info("worker registered", zap.String("worker_id", out.ID), zap.Stringer("type", out.Type))
	r.emitter.Emit(ctx, model.Event{
		Type:      model.EventWorkerRegistered,
		SubjectID: out.ID,
		Detail:    map[string]string{"type": out.Type.String(), "industry": out.Industry},
	})
	return out, nil
}

// Get returns a registered worker.
func (r *Registry) Get(ctx context.Context, id string) (*model.Worker, error) {
	return ledger.Get[model.Worker](ctx, r.store, key(id))
}

// IsVerified reports whether id is a verified worker. Unknown ids are not.
func (r *Registry) IsVerified(ctx context.Context, id string) (bool, error) {
	w, err := r.Get(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return w.Verified, nil
}

// List returns every registered worker.
func (r *Registry) List(ctx context.Context) ([]*model.Worker, error) {
	return ledger.List[model.Worker](ctx, r.store, ledger.PrefixWorker)
}
