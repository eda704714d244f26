package promo

import (
	"context"
	"crypto/rand"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/gatherly/promo-engine/internal/domain/bundle"
)

// Code tokens are 8 chars from an alphabet without 0/O/1/I to keep them
// readable when typed from an email.
const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 8

	// maxGenerateAttempts bounds the collision-retry loop on issuance.
	maxGenerateAttempts = 5
)

// ErrBundleIssuanceDisabled is returned when bundle issuance is switched off
// in the bundle discount config. Purchase flows treat it as "no code granted".
var ErrBundleIssuanceDisabled = errors.New("bundle code issuance disabled")

// BundlePolicy supplies the current bundle discount config.
type BundlePolicy interface {
	Get(ctx context.Context) (*bundle.Config, error)
}

// IssueRequest describes a staff or personal code to create. The token is
// generated; everything else comes from the caller.
type IssueRequest struct {
	Type              CodeType
	Discount          Discount
	OwnerID           string
	IsGeneral         bool
	AllowedProgramIDs []string
	ExpiresAt         *time.Time
}

// Issuer creates promo codes, retrying token generation on collisions.
type Issuer struct {
	store   Store
	policy  BundlePolicy
	now     func() time.Time
	newCode func() string
}

// NewIssuer creates an Issuer backed by the given store and bundle policy.
func NewIssuer(store Store, policy BundlePolicy) *Issuer {
	return &Issuer{
		store:   store,
		policy:  policy,
		now:     time.Now,
		newCode: generateCode,
	}
}

// Issue creates a code per the request. Token generation retries on store
// collisions up to maxGenerateAttempts, then fails with
// ErrGenerationExhausted.
func (i *Issuer) Issue(ctx context.Context, req IssueRequest) (*PromoCode, error) {
	pc := &PromoCode{
		ID:                uuid.New().String(),
		Type:              req.Type,
		Discount:          req.Discount,
		OwnerID:           req.OwnerID,
		IsGeneral:         req.IsGeneral,
		AllowedProgramIDs: req.AllowedProgramIDs,
		IsActive:          true,
		ExpiresAt:         req.ExpiresAt,
		CreatedAt:         i.now(),
	}
	return i.insertWithRetry(ctx, pc)
}

// IssueBundleCode creates the post-purchase bundle code for a user. The
// discount amount and expiry window come from the bundle discount config; the
// purchased program goes on the deny-list so the code cannot re-discount it.
func (i *Issuer) IssueBundleCode(ctx context.Context, ownerID, purchasedProgramID string) (*PromoCode, error) {
	cfg, err := i.policy.Get(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load bundle config")
	}
	if !cfg.Enabled {
		return nil, ErrBundleIssuanceDisabled
	}

	now := i.now()
	expiresAt := now.AddDate(0, 0, cfg.ExpiryDays)

	pc := &PromoCode{
		ID:                uuid.New().String(),
		Type:              TypeBundle,
		Discount:          AmountDiscount(cfg.DiscountAmount),
		OwnerID:           ownerID,
		ExcludedProgramID: purchasedProgramID,
		IsActive:          true,
		ExpiresAt:         &expiresAt,
		CreatedAt:         now,
	}
	return i.insertWithRetry(ctx, pc)
}

func (i *Issuer) insertWithRetry(ctx context.Context, pc *PromoCode) (*PromoCode, error) {
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		pc.Code = i.newCode()
		err := i.store.Insert(ctx, pc)
		if err == nil {
			return pc, nil
		}
		if !errors.Is(err, ErrCodeExists) {
			return nil, errors.Wrap(err, "insert promo code")
		}
	}
	return nil, ErrGenerationExhausted
}

// generateCode draws a random token from the code alphabet.
func generateCode() string {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms.
		panic(err)
	}

	var b strings.Builder
	b.Grow(codeLength)
	for _, c := range buf {
		b.WriteByte(codeAlphabet[int(c)%len(codeAlphabet)])
	}
	return b.String()
}
