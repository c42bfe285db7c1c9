// Package proof defines the verification capability consumed by the
// settlement core and its production implementations.
//
// The core never looks inside proof bytes. It asks a Verifier for a
// Verdict and branches on it. Every verifier built by this package is
// wrapped in Guard, which refuses empty subjects and empty proofs before
// any kind-specific check runs.
package proof

import (
	"context"
	"fmt"
)

// Kind selects the statement a proof is checked against.
type Kind string

const (
	KindIdentity        Kind = "identity"
	KindKYC             Kind = "kyc"
	KindMerkleInclusion Kind = "merkle_inclusion"
	KindZKEligibility   Kind = "zk_eligibility"
)

// Verdict is the result of a verification.
type Verdict bool

const (
	Invalid Verdict = false
	Valid   Verdict = true
)

func (v Verdict) String() string {
	if v {
		return "valid"
	}
	return "invalid"
}

// Verifier checks a proof for a subject. A returned error means the
// verifier could not reach a verdict (storage failure), never that the
// proof is bad.
type Verifier interface {
	Verify(ctx context.Context, subjectID string, proof []byte, kind Kind) (Verdict, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, subjectID string, proof []byte, kind Kind) (Verdict, error)

// Verify implements Verifier.
func (f VerifierFunc) Verify(ctx context.Context, subjectID string, proof []byte, kind Kind) (Verdict, error) {
	return f(ctx, subjectID, proof, kind)
}

type guard struct{ next Verifier }

// Guard wraps v so empty subjects and empty proofs are Invalid without
// consulting v.
func Guard(v Verifier) Verifier {
	if g, ok := v.(guard); ok {
		return g
	}
	return guard{next: v}
}

func (g guard) Verify(ctx context.Context, subjectID string, proof []byte, kind Kind) (Verdict, error) {
	if subjectID == "" || len(proof) == 0 {
		return Invalid, nil
	}
	return g.next.Verify(ctx, subjectID, proof, kind)
}

// AlwaysValid returns Valid for every non-empty input. It exists for tests
// and local development; settlementd refuses it unless explicitly allowed.
func AlwaysValid() Verifier {
	return Guard(VerifierFunc(func(context.Context, string, []byte, Kind) (Verdict, error) {
		return Valid, nil
	}))
}

// Router dispatches to a verifier per kind. Unregistered kinds are Invalid.
type Router struct {
	byKind map[Kind]Verifier
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{byKind: make(map[Kind]Verifier)}
}

// Handle registers v for kind, replacing any previous registration.
func (r *Router) Handle(kind Kind, v Verifier) *Router {
	r.byKind[kind] = Guard(v)
	return r
}

// Kinds lists the registered kinds.
func (r *Router) Kinds() []Kind {
	out := make([]Kind, 0, len(r.byKind))
	for k := range r.byKind {
		out = append(out, k)
	}
	return out
}

// Verify implements Verifier.
func (r *Router) Verify(ctx context.Context, subjectID string, proof []byte, kind Kind) (Verdict, error) {
	if subjectID == "" || len(proof) == 0 {
		return Invalid, nil
	}
	v, ok := r.byKind[kind]
	if !ok {
		return Invalid, nil
	}
	verdict, err := v.Verify(ctx, subjectID, proof, kind)
	if err != nil {
		return Invalid, fmt.Errorf("verify %s: %w", kind, err)
	}
	return verdict, nil
}
