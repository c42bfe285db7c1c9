package operators_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/PNWBNW/Proven-National-Worker/internal/identity"
	"github.com/PNWBNW/Proven-National-Worker/internal/operators"
)

var ctx = context.Background()

func newService() *operators.Service {
	return operators.NewService(operators.NewMemoryRepository(), zap.NewNop())
}

func TestCreateAndLogin(t *testing.T) {
	svc := newService()
	op, err := svc.Create(ctx, "revenue", "correct horse battery", identity.RoleGovernment)
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery", op.PasswordHash, "password stored in clear")

	got, err := svc.Login(ctx, "revenue", "correct horse battery")
	require.NoError(t, err, "Login")
	assert.Equal(t, identity.RoleGovernment, got.Role)
}

func TestLogin_invalid(t *testing.T) {
	svc := newService()
	_, _ = svc.Create(ctx, "revenue", "correct horse battery", identity.RoleGovernment)

	_, err := svc.Login(ctx, "revenue", "wrong password!!")
	assert.ErrorIs(t, err, operators.ErrInvalidCredentials, "wrong password")
	_, err = svc.Login(ctx, "nobody", "correct horse battery")
	assert.ErrorIs(t, err, operators.ErrInvalidCredentials, "unknown operator")
}

func TestCreate_validation(t *testing.T) {
	svc := newService()
	_, err := svc.Create(ctx, "a", "short", identity.RoleAdmin)
	assert.Error(t, err, "short password")
	_, err = svc.Create(ctx, "a", "long enough password", identity.Role("king"))
	assert.Error(t, err, "unknown role")
	_, _ = svc.Create(ctx, "dup", "long enough password", identity.RoleAdmin)
	_, err = svc.Create(ctx, "dup", "long enough password", identity.RoleAdmin)
	assert.ErrorIs(t, err, operators.ErrDuplicateName)
}

func TestEnsureBootstrapAdmin_idempotent(t *testing.T) {
	svc := newService()
	require.NoError(t, svc.EnsureBootstrapAdmin(ctx, "root", "bootstrap password"))
	require.NoError(t, svc.EnsureBootstrapAdmin(ctx, "root", "a different password"))
	_, err := svc.Login(ctx, "root", "bootstrap password")
	assert.NoError(t, err, "original admin password should still work")
}
