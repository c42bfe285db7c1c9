package ledger

import "context"

// Storage is a durable key-value store, crash-consistent per key.
// Get returns model.ErrNotFound when the key is absent.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Item is a key/value pair returned by Scan.
type Item struct {
	Key   string
	Value []byte
}

// Scanner is implemented by backends that can list keys under a prefix.
// Results are ordered by key.
type Scanner interface {
	Scan(ctx context.Context, prefix string) ([]Item, error)
}

// UpdateFunc receives the current value of a key (found=false when absent)
// and returns the value to store. It may be invoked more than once by
// optimistic backends and must not have side effects.
type UpdateFunc func(old []byte, found bool) ([]byte, error)

// Updater is implemented by backends that can run a read-modify-write on
// one key atomically across processes.
type Updater interface {
	Update(ctx context.Context, key string, fn UpdateFunc) error
}
