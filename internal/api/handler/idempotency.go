package handler

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/PNWBNW/Proven-National-Worker/internal/identity"
)

// IdempotencyHeader carries the client-chosen key for a retried POST.
const IdempotencyHeader = "Idempotency-Key"

// StoredResponse is a response saved for replay.
type StoredResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// IdempotencyStore persists responses by scoped key.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*StoredResponse, bool, error)
	Save(ctx context.Context, key string, resp StoredResponse) error
}

// MemoryIdempotencyStore keeps responses in process memory until ttl passes.
type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryIdem
}

type memoryIdem struct {
	resp    StoredResponse
	expires time.Time
}

// NewMemoryIdempotencyStore creates a MemoryIdempotencyStore.
func NewMemoryIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{ttl: ttl, entries: make(map[string]memoryIdem)}
}

func (s *MemoryIdempotencyStore) Get(_ context.Context, key string) (*StoredResponse, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(e.expires) {
		delete(s.entries, key)
		return nil, false, nil
	}
	resp := e.resp
	return &resp, true, nil
}

func (s *MemoryIdempotencyStore) Save(_ context.Context, key string, resp StoredResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryIdem{resp: resp, expires: time.Now().Add(s.ttl)}
	return nil
}

// RedisIdempotencyStore shares saved responses across replicas.
type RedisIdempotencyStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisIdempotencyStore creates a RedisIdempotencyStore.
func NewRedisIdempotencyStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisIdempotencyStore) Get(ctx context.Context, key string) (*StoredResponse, bool, error) {
	raw, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var resp StoredResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, false, err
	}
	return &resp, true, nil
}

func (s *RedisIdempotencyStore) Save(ctx context.Context, key string, resp StoredResponse) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	// The first response wins if two retries race.
	return s.client.SetNX(ctx, s.prefix+key, raw, s.ttl).Err()
}

// scope identifies the caller. The middleware runs ahead of route auth, so
// an unverified bearer token is hashed rather than trusted.
func scope(c *gin.Context) string {
	if claims := identity.ClaimsFromCtx(c); claims != nil {
		return claims.OperatorID
	}
	if authz := c.GetHeader("Authorization"); authz != "" {
		sum := sha256.Sum256([]byte(authz))
		return hex.EncodeToString(sum[:8])
	}
	return "anonymous"
}

type capturingWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *capturingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *capturingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency replays the saved response of a POST that carries an
// Idempotency-Key already seen for the same operator and route. Server
// errors are not saved so the client can retry them.
func Idempotency(store IdempotencyStore, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		idemKey := c.GetHeader(IdempotencyHeader)
		if c.Request.Method != http.MethodPost || idemKey == "" {
			c.Next()
			return
		}

		key := scope(c) + "|" + c.FullPath() + "|" + c.Request.URL.Path + "|" + idemKey

		saved, found, err := store.Get(c.Request.Context(), key)
		if err != nil {
			logger.Warn("idempotency lookup failed", zap.Error(err))
		}
		if found {
			c.Header("Idempotent-Replay", "true")
			c.Data(saved.Status, "application/json; charset=utf-8", saved.Body)
			c.Abort()
			return
		}

		w := &capturingWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		status := w.Status()
		if status >= http.StatusInternalServerError || w.body.Len() == 0 {
			return
		}
		resp := StoredResponse{Status: status, Body: json.RawMessage(w.body.Bytes())}
		if err := store.Save(context.WithoutCancel(c.Request.Context()), key, resp); err != nil {
			logger.Warn("idempotency save failed", zap.Error(err))
		}
	}
}
