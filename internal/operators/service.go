package operators

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/PNWBNW/Proven-National-Worker/internal/identity"
	"github.com/PNWBNW/Proven-National-Worker/internal/model"
)

// ErrInvalidCredentials is returned by Login for any unknown name or wrong
// password, without distinguishing the two.
var ErrInvalidCredentials = errors.New("invalid credentials")

// operatorRepo is the storage interface consumed by Service.
type operatorRepo interface {
	Create(ctx context.Context, op *Operator) error
	GetByName(ctx context.Context, name string) (*Operator, error)
}

// Service manages operator accounts and password login.
type Service struct {
	repo   operatorRepo
	logger *zap.Logger
}

// NewService creates a new Service.
func NewService(repo operatorRepo, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Create registers a new operator with a bcrypt-hashed password.
func (s *Service) Create(ctx context.Context, name, password string, role identity.Role) (*Operator, error) {
	if name == "" || password == "" {
		return nil, &model.ErrValidation{Msg: "name and password are required"}
	}
	if len(password) < 12 {
		return nil, &model.ErrValidation{Msg: "password must be at least 12 characters"}
	}
	if _, err := identity.ParseRole(string(role)); err != nil {
		return nil, &model.ErrValidation{Msg: err.Error()}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	op := &Operator{Name: name, Role: role, PasswordHash: string(hash)}
	if err := s.repo.Create(ctx, op); err != nil {
		return nil, err
	}

	s.logger.Info("operator created", zap.String("name", name), zap.String("role", string(role)))
	return op, nil
}

// Login verifies name/password credentials and returns the operator.
func (s *Service) Login(ctx context.Context, name, password string) (*Operator, error) {
	op, err := s.repo.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup operator: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return op, nil
}

// EnsureBootstrapAdmin creates the configured admin operator on first start.
// An existing operator of that name is left untouched.
func (s *Service) EnsureBootstrapAdmin(ctx context.Context, name, password string) error {
	if name == "" || password == "" {
		return nil
	}
	_, err := s.repo.GetByName(ctx, name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	_, err = s.Create(ctx, name, password, identity.RoleAdmin)
	if errors.Is(err, ErrDuplicateName) {
		return nil
	}
	return err
}
