// Package compliance tracks employer tax standing and payroll funding.
//
// Compliance is a sticky flag: any recorded tax payment sets it, and
// nothing in this package derives it from the paid total. Operations on an
// unknown employer create a zeroed account instead of failing.
package compliance

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/PNWBNW/Proven-National-Worker/internal/events"
	"github.com/PNWBNW/Proven-National-Worker/internal/ledger"
	"github.com/PNWBNW/Proven-National-Worker/internal/model"
)

// Defaults used when Config leaves a value zero.
const (
	DefaultPenalty   int64 = 5000
	DefaultThreshold int64 = 10000
)

// Config holds the tunable amounts.
type Config struct {
	// Penalty is subtracted from TaxesPaid by EnforcePenalty.
	Penalty int64
	// Threshold is informational only; see Standing.
	Threshold int64
}

// PenaltyResult reports what EnforcePenalty did.
type PenaltyResult struct {
	Applied   bool   `json:"applied"`
	Amount    int64  `json:"amount"`
	TaxesPaid int64  `json:"taxes_paid"`
	Message   string `json:"message"`
}

// Standing is a read-only view of an account against the threshold.
type Standing struct {
	Account        model.EmployerAccount `json:"account"`
	Threshold      int64                 `json:"threshold"`
	MeetsThreshold bool                  `json:"meets_threshold"`
}

// Gate is the compliance component.
type Gate struct {
	store   *ledger.Store
	emitter events.Emitter
	logger  *zap.Logger
	cfg     Config
	now     func() time.Time
}

// NewGate creates a Gate.
func NewGate(store *ledger.Store, emitter events.Emitter, logger *zap.Logger, cfg Config) *Gate {
	if cfg.Penalty <= 0 {
		cfg.Penalty = DefaultPenalty
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	return &Gate{
		store:   store,
		emitter: emitter,
		logger:  logger,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func key(employerID string) string { return ledger.PrefixEmployer + employerID }

func (g *Gate) zeroed(employerID string) func() (*model.EmployerAccount, error) {
	return func() (*model.EmployerAccount, error) {
		return &model.EmployerAccount{ID: employerID}, nil
	}
}

func validID(employerID string) error {
	if employerID == "" {
		return &model.ErrValidation{Msg: "employer id is required"}
	}
	return nil
}

// RecordTaxPayment adds amount to the employer's paid taxes, marks it
// compliant and returns the new total.
func (g *Gate) RecordTaxPayment(ctx context.Context, employerID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, model.ErrInvalidAmount
	}
	if err := validID(employerID); err != nil {
		return 0, err
	}

	acct, err := ledger.Mutate(ctx, g.store, key(employerID), g.zeroed(employerID), func(a *model.EmployerAccount) error {
		a.TaxesPaid += amount
		a.Compliant = true
		a.UpdatedAt = g.now()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("record tax payment: %w", err)
	}

	g.logger.Debug("tax payment recorded", zap.String("employer_id", employerID), zap.Int64("amount", amount))
	g.emitter.Emit(ctx, model.Event{
		Type:      model.EventTaxPaymentRecorded,
		SubjectID: employerID,
		Amount:    uint64(amount),
		Detail:    map[string]string{"taxes_paid": strconv.FormatInt(acct.TaxesPaid, 10)},
	})
	return acct.TaxesPaid, nil
}

// CheckCompliance returns the stored flag; unknown employers are not
// compliant.
func (g *Gate) CheckCompliance(ctx context.Context, employerID string) (bool, error) {
	acct, err := ledger.Get[model.EmployerAccount](ctx, g.store, key(employerID))
	if errors.Is(err, model.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return acct.Compliant, nil
}

// EnforcePenalty debits the configured penalty from a non-compliant
// employer. TaxesPaid may go negative. Compliant employers are untouched.
func (g *Gate) EnforcePenalty(ctx context.Context, employerID string) (PenaltyResult, error) {
	if err := validID(employerID); err != nil {
		return PenaltyResult{}, err
	}

	var res PenaltyResult
	acct, err := ledger.Mutate(ctx, g.store, key(employerID), g.zeroed(employerID), func(a *model.EmployerAccount) error {
		if a.Compliant {
			res = PenaltyResult{Message: "no penalty applied"}
			return nil
		}
		a.TaxesPaid -= g.cfg.Penalty
		a.UpdatedAt = g.now()
		res = PenaltyResult{Applied: true, Amount: g.cfg.Penalty, Message: "penalty applied"}
		return nil
	})
	if err != nil {
		return PenaltyResult{}, fmt.Errorf("enforce penalty: %w", err)
	}
	res.TaxesPaid = acct.TaxesPaid

	if res.Applied {
		g.logger.Info("penalty enforced",
			zap.String("employer_id", employerID),
			zap.Int64("penalty", res.Amount),
			zap.Int64("taxes_paid", acct.TaxesPaid),
		)
		g.emitter.Emit(ctx, model.Event{
			Type:      model.EventPenaltyEnforced,
			SubjectID: employerID,
			Amount:    uint64(res.Amount),
			Detail:    map[string]string{"taxes_paid": strconv.FormatInt(acct.TaxesPaid, 10)},
		})
	}
	return res, nil
}

// UpdatePayrollFunding overwrites the employer's available payroll funds.
func (g *Gate) UpdatePayrollFunding(ctx context.Context, employerID string, funds uint64) error {
	if err := validID(employerID); err != nil {
		return err
	}
	_, err := ledger.Mutate(ctx, g.store, key(employerID), g.zeroed(employerID), func(a *model.EmployerAccount) error {
		a.PayrollFunds = funds
		a.UpdatedAt = g.now()
		return nil
	})
	if err != nil {
		return fmt.Errorf("update payroll funding: %w", err)
	}
	return nil
}

// DebitPayrollFunds subtracts amount from the employer's payroll funds,
// failing with ErrInsufficientBalance when they do not cover it.
func (g *Gate) DebitPayrollFunds(ctx context.Context, employerID string, amount uint64) error {
	_, err := ledger.Mutate(ctx, g.store, key(employerID), g.zeroed(employerID), func(a *model.EmployerAccount) error {
		if a.PayrollFunds < amount {
			return model.ErrInsufficientBalance
		}
		a.PayrollFunds -= amount
		a.UpdatedAt = g.now()
		return nil
	})
	return err
}

// Account returns the employer's account, creating a zeroed one if absent.
func (g *Gate) Account(ctx context.Context, employerID string) (*model.EmployerAccount, error) {
	if err := validID(employerID); err != nil {
		return nil, err
	}
	acct, err := ledger.Get[model.EmployerAccount](ctx, g.store, key(employerID))
	if errors.Is(err, model.ErrNotFound) {
		return ledger.Mutate(ctx, g.store, key(employerID), g.zeroed(employerID), func(a *model.EmployerAccount) error {
			if a.UpdatedAt.IsZero() {
				a.UpdatedAt = g.now()
			}
			return nil
		})
	}
	return acct, err
}

// Standing reports whether paid taxes reach the configured threshold. The
// answer never changes the compliance flag.
func (g *Gate) Standing(ctx context.Context, employerID string) (*Standing, error) {
	acct, err := g.Account(ctx, employerID)
	if err != nil {
		return nil, err
	}
	return &Standing{
		Account:        *acct,
		Threshold:      g.cfg.Threshold,
		MeetsThreshold: acct.TaxesPaid >= g.cfg.Threshold,
	}, nil
}
