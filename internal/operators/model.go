package operators

import (
	"time"

	"github.com/google/uuid"

	"github.com/PNWBNW/Proven-National-Worker/internal/identity"
)

// Operator is a person or system allowed to call privileged endpoints.
type Operator struct {
	ID           uuid.UUID     `json:"id"         db:"id"`
	Name         string        `json:"name"       db:"name"`
	Role         identity.Role `json:"role"       db:"role"`
	PasswordHash string        `json:"-"          db:"password_hash"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
}
