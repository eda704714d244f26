// Package access guards event writes: every co-organizer of an event must be
// entitled to each of the event's paid programs.
package access

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"

	"github.com/gatherly/promo-engine/internal/domain/program"
)

// Organizer identifies an event co-organizer.
type Organizer struct {
	UserID string
	Name   string
}

// Result is the gate's verdict. Unauthorized lists the organizers entitled to
// none of the paid programs in the set.
type Result struct {
	Valid        bool
	Unauthorized []Organizer
}

// UnauthorizedOrganizersError is the hard failure for the event-save path,
// carrying the structured roster so callers can render a precise message.
type UnauthorizedOrganizersError struct {
	Organizers []Organizer
}

func (e *UnauthorizedOrganizersError) Error() string {
	names := make([]string, len(e.Organizers))
	for i, o := range e.Organizers {
		names[i] = o.Name
	}
	return fmt.Sprintf("organizers not authorized for paid programs: %s", strings.Join(names, ", "))
}

// Gate checks organizer entitlement against the program/purchase registry.
// It is role-agnostic: admin bypass happens at the call site, never here.
type Gate struct {
	programs program.Registry
}

// NewGate creates a Gate backed by the given registry.
func NewGate(programs program.Registry) *Gate {
	return &Gate{programs: programs}
}

// Check evaluates the organizers against the programs. It passes trivially
// when either input is empty or every referenced program is free. Otherwise
// an organizer is entitled as soon as one paid program in the set lists them
// as a mentor or records their completed purchase.
func (g *Gate) Check(ctx context.Context, organizers []Organizer, programIDs []string) (*Result, error) {
	if len(organizers) == 0 || len(programIDs) == 0 {
		return &Result{Valid: true}, nil
	}

	fetched, err := g.programs.FindByIDs(ctx, programIDs)
	if err != nil {
		return nil, errors.Wrap(err, "fetch programs")
	}

	paid := make([]program.Program, 0, len(fetched))
	for _, p := range fetched {
		if !p.IsFree {
			paid = append(paid, p)
		}
	}
	if len(paid) == 0 {
		return &Result{Valid: true}, nil
	}

	var unauthorized []Organizer
	for _, org := range organizers {
		ok, err := g.entitled(ctx, org.UserID, paid)
		if err != nil {
			return nil, err
		}
		if !ok {
			unauthorized = append(unauthorized, org)
		}
	}

	if len(unauthorized) > 0 {
		return &Result{Valid: false, Unauthorized: unauthorized}, nil
	}
	return &Result{Valid: true}, nil
}

// Enforce runs Check and converts a failing result into the hard
// *UnauthorizedOrganizersError, for callers saving an event.
func (g *Gate) Enforce(ctx context.Context, organizers []Organizer, programIDs []string) error {
	res, err := g.Check(ctx, organizers, programIDs)
	if err != nil {
		return err
	}
	if !res.Valid {
		return &UnauthorizedOrganizersError{Organizers: res.Unauthorized}
	}
	return nil
}

// entitled scans the paid programs until one grants access via mentor roster
// or completed purchase, short-circuiting on the first match.
func (g *Gate) entitled(ctx context.Context, userID string, paid []program.Program) (bool, error) {
	for i := range paid {
		if paid[i].HasMentor(userID) {
			return true, nil
		}
		purchase, err := g.programs.FindCompletedPurchase(ctx, userID, paid[i].ID)
		if err != nil {
			return false, errors.Wrapf(err, "lookup purchase for user %s", userID)
		}
		if purchase != nil {
			return true, nil
		}
	}
	return false, nil
}
