package audit

import "context"

// Log is the append-only audit trail. Entries are never mutated.
type Log interface {
	// Append chains rec onto the current tip.
	Append(ctx context.Context, rec Record) (*Entry, error)

	// Get returns the entry at the given zero-based index.
	Get(ctx context.Context, index int) (*Entry, error)

	// Range returns up to limit entries starting at index from.
	Range(ctx context.Context, from, limit int) ([]*Entry, error)

	// Len returns the total number of entries including genesis.
	Len(ctx context.Context) (int, error)

	// Verify walks the chain and checks hash consistency.
	Verify(ctx context.Context) error

	// Root returns the hash of the most recent entry.
	Root(ctx context.Context) (string, error)
}

// Actions recorded in the log besides domain event types.
const (
	ActionGenesis  = "genesis"
	ActionDecision = "decision"
)

// SystemActor is recorded on entries the engine writes on its own behalf.
const SystemActor = "pnw-system"

type actorKey struct{}

// WithActor tags ctx with the operator on whose behalf entries are written.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor set by WithActor, or SystemActor.
func ActorFrom(ctx context.Context) string {
	if a, ok := ctx.Value(actorKey{}).(string); ok && a != "" {
		return a
	}
	return SystemActor
}
