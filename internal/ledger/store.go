package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/PNWBNW/Proven-National-Worker/internal/model"
)

// Key prefixes for each record family.
const (
	PrefixEmployer   = "employer/"
	PrefixTrustPool  = "pool/"
	PrefixPayroll    = "payroll/"
	PrefixKYC        = "kyc/"
	PrefixCommitment = "commitment/"
	PrefixWorker     = "worker/"
	PrefixApproval   = "approval/"
)

// Store is the typed view over a Storage backend. It owns every
// persistent record; callers only hold copies for one operation.
type Store struct {
	backend Storage
	locks   *Locker
}

// NewStore wraps a backend with per-key locking.
func NewStore(backend Storage) *Store {
	return &Store{backend: backend, locks: NewLocker()}
}

// Backend returns the underlying Storage.
func (s *Store) Backend() Storage { return s.backend }

// Update runs fn as an atomic read-modify-write on key. The in-process
// per-key lock is always taken; backends implementing Updater extend the
// guarantee across processes.
func (s *Store) Update(ctx context.Context, key string, fn UpdateFunc) error {
	unlock := s.locks.Lock(key)
	defer unlock()

	if u, ok := s.backend.(Updater); ok {
		return u.Update(ctx, key, fn)
	}

	old, err := s.backend.Get(ctx, key)
	found := true
	if errors.Is(err, model.ErrNotFound) {
		found = false
	} else if err != nil {
		return err
	}
	value, err := fn(old, found)
	if err != nil {
		return err
	}
	return s.backend.Put(ctx, key, value)
}

// Scan lists records under prefix. Backends without Scanner support
// return an error.
func (s *Store) Scan(ctx context.Context, prefix string) ([]Item, error) {
	sc, ok := s.backend.(Scanner)
	if !ok {
		return nil, fmt.Errorf("storage backend %T cannot scan", s.backend)
	}
	return sc.Scan(ctx, prefix)
}

// Get loads and decodes the record at key into a new T.
func Get[T any](ctx context.Context, s *Store, key string) (*T, error) {
	raw, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return decode[T](key, raw)
}

// Put encodes v and stores it at key.
func Put[T any](ctx context.Context, s *Store, key string, v *T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.backend.Put(ctx, key, raw)
}

// Mutate decodes the record at key, applies fn and writes the result back
// atomically. When the key is absent, missing supplies the initial value
// or an error such as model.ErrNotFound. The returned value is a copy of
// what was stored.
func Mutate[T any](ctx context.Context, s *Store, key string, missing func() (*T, error), fn func(*T) error) (*T, error) {
	var out *T
	err := s.Update(ctx, key, func(old []byte, found bool) ([]byte, error) {
		var (
			v   *T
			err error
		)
		if found {
			v, err = decode[T](key, old)
		} else {
			v, err = missing()
		}
		if err != nil {
			return nil, err
		}
		if err := fn(v); err != nil {
			return nil, err
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
		out = v
		return raw, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// List decodes every record under prefix.
func List[T any](ctx context.Context, s *Store, prefix string) ([]*T, error) {
	items, err := s.Scan(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(items))
	for _, it := range items {
		v, err := decode[T](it.Key, it.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func decode[T any](key string, raw []byte) (*T, error) {
	v := new(T)
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", model.ErrCorrupt, key, err)
	}
	return v, nil
}

// NotFound is a Mutate missing func that refuses to create the record.
func NotFound[T any]() (*T, error) { return nil, model.ErrNotFound }
