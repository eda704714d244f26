package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/gatherly/promo-engine/internal/domain/promo"
)

const (
	promoCodeColumns = `id, code, type, discount_amount, discount_percent, owner_id,
		is_general, allowed_program_ids, excluded_program_id, is_active,
		is_used, used_at, used_for_program_id, expires_at, created_at`

	findPromoCodeByCodeSQL = `SELECT ` + promoCodeColumns + `
		FROM promo_codes WHERE code = UPPER($1)`

	getPromoCodeByIDSQL = `SELECT ` + promoCodeColumns + `
		FROM promo_codes WHERE id = $1`

	insertPromoCodeSQL = `INSERT INTO promo_codes (id, code, type, discount_amount,
		discount_percent, owner_id, is_general, allowed_program_ids,
		excluded_program_id, is_active, expires_at, created_at)
		VALUES ($1, UPPER($2), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	// Compare-and-set: the WHERE clause on is_used closes the race between
	// concurrent redemptions.
	markPromoCodeUsedSQL = `UPDATE promo_codes
		SET is_used = TRUE, used_at = $2, used_for_program_id = $3
		WHERE id = $1 AND is_used = FALSE`
)

const uniqueViolationCode = "23505"

var _ promo.Store = (*PromoStore)(nil)

// PromoStore implements promo.Store backed by PostgreSQL.
type PromoStore struct {
	pool *pgxpool.Pool
}

// NewPromoStore returns a PromoStore that uses the given pool.
func NewPromoStore(pool *pgxpool.Pool) *PromoStore {
	return &PromoStore{pool: pool}
}

// FindByCode looks up a code by its token, case-insensitively.
// Returns promo.ErrNotFound when absent.
func (s *PromoStore) FindByCode(ctx context.Context, code string) (*promo.PromoCode, error) {
	rows, err := s.pool.Query(ctx, findPromoCodeByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding promo code %q: %w", code, err)
	}

	pc, err := pgx.CollectExactlyOneRow(rows, scanPromoCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promo.ErrNotFound
		}
		return nil, fmt.Errorf("finding promo code %q: %w", code, err)
	}
	return &pc, nil
}

// GetByID looks up a code by its ID. Returns promo.ErrNotFound when absent.
func (s *PromoStore) GetByID(ctx context.Context, id string) (*promo.PromoCode, error) {
	rows, err := s.pool.Query(ctx, getPromoCodeByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting promo code %q: %w", id, err)
	}

	pc, err := pgx.CollectExactlyOneRow(rows, scanPromoCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promo.ErrNotFound
		}
		return nil, fmt.Errorf("getting promo code %q: %w", id, err)
	}
	return &pc, nil
}

// Insert persists a new code. A unique violation on the code column maps to
// promo.ErrCodeExists so the issuer can retry generation.
func (s *PromoStore) Insert(ctx context.Context, pc *promo.PromoCode) error {
	var amount, percent *decimal.Decimal
	switch pc.Discount.Type {
	case promo.DiscountAmount:
		amount = &pc.Discount.Value
	case promo.DiscountPercent:
		percent = &pc.Discount.Value
	}

	_, err := s.pool.Exec(ctx, insertPromoCodeSQL,
		pc.ID, pc.Code, string(pc.Type), amount, percent,
		nullable(pc.OwnerID), pc.IsGeneral, pc.AllowedProgramIDs,
		nullable(pc.ExcludedProgramID), pc.IsActive, pc.ExpiresAt, pc.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return promo.ErrCodeExists
		}
		return fmt.Errorf("inserting promo code %q: %w", pc.Code, err)
	}
	return nil
}

// MarkUsed performs the conditional redemption update. It reports false when
// the code was not in the unused state, which the redeemer maps to the
// appropriate failure.
func (s *PromoStore) MarkUsed(ctx context.Context, id, programID string, usedAt time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, markPromoCodeUsedSQL, id, usedAt, programID)
	if err != nil {
		return false, fmt.Errorf("marking promo code %q used: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanPromoCode(row pgx.CollectableRow) (promo.PromoCode, error) {
	var (
		pc        promo.PromoCode
		codeType  string
		amount    *decimal.Decimal
		percent   *decimal.Decimal
		ownerID   *string
		excluded  *string
		usedForID *string
	)
	err := row.Scan(
		&pc.ID, &pc.Code, &codeType, &amount, &percent, &ownerID,
		&pc.IsGeneral, &pc.AllowedProgramIDs, &excluded, &pc.IsActive,
		&pc.IsUsed, &pc.UsedAt, &usedForID, &pc.ExpiresAt, &pc.CreatedAt,
	)
	if err != nil {
		return promo.PromoCode{}, err
	}

	pc.Type = promo.CodeType(codeType)
	switch {
	case amount != nil:
		pc.Discount = promo.Discount{Type: promo.DiscountAmount, Value: *amount}
	case percent != nil:
		pc.Discount = promo.Discount{Type: promo.DiscountPercent, Value: *percent}
	}
	if ownerID != nil {
		pc.OwnerID = *ownerID
	}
	if excluded != nil {
		pc.ExcludedProgramID = *excluded
	}
	if usedForID != nil {
		pc.UsedForProgramID = *usedForID
	}
	return pc, nil
}

// nullable maps an empty string to SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
