package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatherly/promo-engine/internal/domain/program"
)

const (
	findProgramsByIDsSQL = `SELECT id, title, is_free, mentor_ids
		FROM programs WHERE id = ANY($1)`

	findCompletedPurchaseSQL = `SELECT id, user_id, program_id, status, created_at
		FROM purchases
		WHERE user_id = $1 AND program_id = $2 AND status = 'completed'
		LIMIT 1`
)

var _ program.Registry = (*ProgramRegistry)(nil)

// ProgramRegistry implements program.Registry over the platform-owned
// programs and purchases tables. Read-only.
type ProgramRegistry struct {
	pool *pgxpool.Pool
}

// NewProgramRegistry returns a ProgramRegistry that uses the given pool.
func NewProgramRegistry(pool *pgxpool.Pool) *ProgramRegistry {
	return &ProgramRegistry{pool: pool}
}

// FindByIDs returns the programs matching the given IDs; missing IDs are
// simply absent from the result.
func (r *ProgramRegistry) FindByIDs(ctx context.Context, ids []string) ([]program.Program, error) {
	rows, err := r.pool.Query(ctx, findProgramsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("finding programs: %w", err)
	}

	programs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (program.Program, error) {
		var p program.Program
		err := row.Scan(&p.ID, &p.Title, &p.IsFree, &p.MentorIDs)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("finding programs: %w", err)
	}
	return programs, nil
}

// FindCompletedPurchase returns the user's completed purchase for the
// program, or nil when none exists.
func (r *ProgramRegistry) FindCompletedPurchase(ctx context.Context, userID, programID string) (*program.Purchase, error) {
	rows, err := r.pool.Query(ctx, findCompletedPurchaseSQL, userID, programID)
	if err != nil {
		return nil, fmt.Errorf("finding purchase: %w", err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (program.Purchase, error) {
		var p program.Purchase
		err := row.Scan(&p.ID, &p.UserID, &p.ProgramID, &p.Status, &p.CreatedAt)
		return p, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding purchase: %w", err)
	}
	return &p, nil
}
