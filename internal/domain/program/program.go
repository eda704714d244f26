// Package program exposes read models for the program/purchase registry.
// The registry is owned by the registration platform; this engine only
// consumes it.
package program

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a referenced program does not exist.
var ErrNotFound = errors.New("program not found")

// PurchaseCompleted is the purchase status that grants program entitlement.
const PurchaseCompleted = "completed"

// Program is a paid or free program that events and promo codes reference.
type Program struct {
	ID        string
	Title     string
	IsFree    bool
	MentorIDs []string
}

// HasMentor reports whether the given user is on the program's mentor roster.
func (p *Program) HasMentor(userID string) bool {
	for _, id := range p.MentorIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Purchase records a user's purchase of a program. Only purchases with
// status PurchaseCompleted denote entitlement.
type Purchase struct {
	ID        string
	UserID    string
	ProgramID string
	Status    string
	CreatedAt time.Time
}

// Registry provides read-only access to programs and purchases.
type Registry interface {
	// FindByIDs returns the programs matching the given IDs. Missing IDs are
	// skipped, not reported as errors.
	FindByIDs(ctx context.Context, ids []string) ([]Program, error)

	// FindCompletedPurchase returns the user's completed purchase for the
	// program, or nil when none exists.
	FindCompletedPurchase(ctx context.Context, userID, programID string) (*Purchase, error)
}
