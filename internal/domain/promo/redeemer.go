package promo

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Redeemer marks codes used against a program purchase. Validation is
// advisory; redemption is the authoritative check, invoked only after an
// external purchase-completion event.
type Redeemer struct {
	store Store
	now   func() time.Time
}

// NewRedeemer creates a Redeemer backed by the given store.
func NewRedeemer(store Store) *Redeemer {
	return &Redeemer{store: store, now: time.Now}
}

// Redeem re-runs the full applicability check and then flips the redemption
// record via the store's compare-and-set. State may have changed between
// validation and purchase completion, so every failure here is a hard error
// the caller must react to.
//
// When two redemptions race, the compare-and-set lets exactly one through;
// the loser observes ErrAlreadyUsed.
func (r *Redeemer) Redeem(ctx context.Context, codeID, programID string) (*PromoCode, error) {
	pc, err := r.store.GetByID(ctx, codeID)
	if err != nil {
		return nil, err
	}

	usedAt := r.now()
	if err := pc.CanBeUsedForProgram(programID, usedAt); err != nil {
		return nil, err
	}

	ok, err := r.store.MarkUsed(ctx, codeID, programID, usedAt)
	if err != nil {
		return nil, errors.Wrap(err, "mark used")
	}
	if !ok {
		return nil, r.lostReason(ctx, codeID)
	}

	pc.IsUsed = true
	pc.UsedAt = &usedAt
	pc.UsedForProgramID = programID
	return pc, nil
}

// lostReason explains a failed compare-and-set from the code's current state.
// The common case is a concurrent redemption that won the race.
func (r *Redeemer) lostReason(ctx context.Context, codeID string) error {
	pc, err := r.store.GetByID(ctx, codeID)
	if err != nil {
		return ErrRedemptionLost
	}
	switch {
	case pc.IsUsed:
		return ErrAlreadyUsed
	case !pc.IsActive:
		return ErrDeactivated
	case pc.IsExpired(r.now()):
		return ErrExpired
	default:
		return ErrRedemptionLost
	}
}
