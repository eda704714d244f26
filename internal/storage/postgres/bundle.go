package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatherly/promo-engine/internal/domain/bundle"
)

const (
	getBundleConfigSQL = `SELECT enabled, discount_amount, expiry_days, updated_by, updated_at
		FROM bundle_discount_config WHERE id = 1`

	// Single-row upsert; last writer wins by design.
	saveBundleConfigSQL = `INSERT INTO bundle_discount_config
		(id, enabled, discount_amount, expiry_days, updated_by, updated_at)
		VALUES (1, $1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			discount_amount = EXCLUDED.discount_amount,
			expiry_days = EXCLUDED.expiry_days,
			updated_by = EXCLUDED.updated_by,
			updated_at = EXCLUDED.updated_at`
)

var _ bundle.Store = (*BundleConfigStore)(nil)

// BundleConfigStore persists the singleton bundle discount config row.
type BundleConfigStore struct {
	pool *pgxpool.Pool
}

// NewBundleConfigStore returns a BundleConfigStore that uses the given pool.
func NewBundleConfigStore(pool *pgxpool.Pool) *BundleConfigStore {
	return &BundleConfigStore{pool: pool}
}

// Get returns the stored config, or nil when the row has never been written.
func (s *BundleConfigStore) Get(ctx context.Context) (*bundle.Config, error) {
	rows, err := s.pool.Query(ctx, getBundleConfigSQL)
	if err != nil {
		return nil, fmt.Errorf("loading bundle config: %w", err)
	}

	cfg, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (bundle.Config, error) {
		var c bundle.Config
		err := row.Scan(&c.Enabled, &c.DiscountAmount, &c.ExpiryDays, &c.UpdatedBy, &c.UpdatedAt)
		return c, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading bundle config: %w", err)
	}
	return &cfg, nil
}

// Save upserts the config row.
func (s *BundleConfigStore) Save(ctx context.Context, cfg *bundle.Config) error {
	_, err := s.pool.Exec(ctx, saveBundleConfigSQL,
		cfg.Enabled, cfg.DiscountAmount, cfg.ExpiryDays, cfg.UpdatedBy, cfg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving bundle config: %w", err)
	}
	return nil
}
