// Package promo implements the promo code lifecycle: issuance, validation
// against a target program, and at-most-once redemption.
package promo

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// CodeType categorizes a promo code's ownership and scope rules.
type CodeType string

const (
	// TypePersonal is a code issued to a single user.
	TypePersonal CodeType = "personal"
	// TypeBundle is a code auto-issued after a qualifying purchase, excluded
	// from reapplication to the purchased program.
	TypeBundle CodeType = "bundle"
	// TypeStaffAccess is a staff-issued code, usually general and often
	// scoped to a program allow-list.
	TypeStaffAccess CodeType = "staff_access"
)

// DiscountType selects between a fixed amount and a percentage discount.
type DiscountType string

const (
	// DiscountAmount is a fixed discount in currency units.
	DiscountAmount DiscountType = "amount"
	// DiscountPercent is a percentage discount in [0, 100].
	DiscountPercent DiscountType = "percent"
)

var (
	// ErrNotFound is returned when no code matches a lookup.
	ErrNotFound = errors.New("promo code not found")
	// ErrCodeExists is returned by Store.Insert on a code collision.
	ErrCodeExists = errors.New("promo code already exists")
	// ErrAlreadyUsed is returned when a code has been redeemed.
	ErrAlreadyUsed = errors.New("promo code already used")
	// ErrExpired is returned when a code is past its expiry deadline.
	ErrExpired = errors.New("promo code expired")
	// ErrDeactivated is returned when a code was manually deactivated.
	ErrDeactivated = errors.New("promo code deactivated")
	// ErrOwnershipMismatch is returned when a non-general code is presented
	// by a user other than its owner.
	ErrOwnershipMismatch = errors.New("promo code belongs to another user")
	// ErrGenerationExhausted is returned when code generation keeps colliding
	// past the retry bound.
	ErrGenerationExhausted = errors.New("promo code generation exhausted")
	// ErrRedemptionLost is returned when the redemption compare-and-set fails
	// and the current code state no longer explains why.
	ErrRedemptionLost = errors.New("concurrent redemption lost")
)

// ProgramExcludedError indicates a code's deny-list blocks the target program.
type ProgramExcludedError struct {
	ProgramID string
}

func (e *ProgramExcludedError) Error() string {
	return fmt.Sprintf("promo code cannot be applied to program %s", e.ProgramID)
}

// ProgramNotAllowedError indicates the target program is outside the code's
// allow-list.
type ProgramNotAllowedError struct {
	ProgramID string
}

func (e *ProgramNotAllowedError) Error() string {
	return fmt.Sprintf("promo code is not valid for program %s", e.ProgramID)
}

// Discount is a tagged variant fixed at construction: either a fixed amount
// or a percentage, never both, never neither.
type Discount struct {
	Type  DiscountType
	Value decimal.Decimal
}

// AmountDiscount builds a fixed-amount discount.
func AmountDiscount(value decimal.Decimal) Discount {
	return Discount{Type: DiscountAmount, Value: value}
}

// PercentDiscount builds a percentage discount. Values outside [0, 100] are
// rejected.
func PercentDiscount(value decimal.Decimal) (Discount, error) {
	if value.IsNegative() || value.GreaterThan(decimal.NewFromInt(100)) {
		return Discount{}, errors.Errorf("discount percent %s out of range [0, 100]", value)
	}
	return Discount{Type: DiscountPercent, Value: value}, nil
}

// PromoCode is the aggregate owned by the promo code store. Code tokens are
// stored upper-case; lookups normalize case.
type PromoCode struct {
	ID       string
	Code     string
	Type     CodeType
	Discount Discount

	// OwnerID is set for personal and bundle codes; empty for general
	// staff codes.
	OwnerID   string
	IsGeneral bool

	// AllowedProgramIDs, when non-empty, restricts the code to the listed
	// programs. ExcludedProgramID denies a single program (bundle codes use
	// it to block re-discounting the purchase that earned the code).
	AllowedProgramIDs []string
	ExcludedProgramID string

	IsActive bool

	// Redemption record: written exactly once, never reverted.
	IsUsed           bool
	UsedAt           *time.Time
	UsedForProgramID string

	ExpiresAt *time.Time
	CreatedAt time.Time
}

// IsExpired reports whether the code is past its expiry deadline.
func (c *PromoCode) IsExpired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}

// IsValid reports whether the code is active, unused and unexpired.
func (c *PromoCode) IsValid(now time.Time) bool {
	return c.IsActive && !c.IsUsed && !c.IsExpired(now)
}

// CanBeUsedForProgram checks the code against the target program and returns
// the first failing reason. The check order is fixed: deactivated, already
// used, expired, program excluded, program not in allow-list.
func (c *PromoCode) CanBeUsedForProgram(programID string, now time.Time) error {
	if !c.IsActive {
		return ErrDeactivated
	}
	if c.IsUsed {
		return ErrAlreadyUsed
	}
	if c.IsExpired(now) {
		return ErrExpired
	}
	if c.ExcludedProgramID != "" && c.ExcludedProgramID == programID {
		return &ProgramExcludedError{ProgramID: programID}
	}
	if len(c.AllowedProgramIDs) > 0 {
		for _, id := range c.AllowedProgramIDs {
			if id == programID {
				return nil
			}
		}
		return &ProgramNotAllowedError{ProgramID: programID}
	}
	return nil
}

// Store owns promo code persistence. Only MarkUsed mutates lifecycle state,
// and only the redemption field group.
type Store interface {
	// FindByCode looks up a code by its token, case-insensitively.
	// Returns ErrNotFound when absent.
	FindByCode(ctx context.Context, code string) (*PromoCode, error)

	// GetByID looks up a code by its ID. Returns ErrNotFound when absent.
	GetByID(ctx context.Context, id string) (*PromoCode, error)

	// Insert persists a freshly issued code. Returns ErrCodeExists when the
	// token collides with an existing code.
	Insert(ctx context.Context, code *PromoCode) error

	// MarkUsed atomically sets the redemption record, conditioned on the code
	// being unused. Returns false when the condition did not hold, so two
	// concurrent redemptions race and exactly one wins.
	MarkUsed(ctx context.Context, id, programID string, usedAt time.Time) (bool, error)
}
