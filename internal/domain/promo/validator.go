package promo

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"

	"github.com/gatherly/promo-engine/internal/domain/program"
)

// Verdict is the outcome of validating a code against a program. A failing
// verdict is a normal response, not an error: callers render the message
// as-is.
type Verdict struct {
	Valid    bool
	Message  string
	Discount *Discount
}

// Verdict messages. Not-found and deactivated share one string so a
// deactivated code is indistinguishable from a nonexistent one.
const (
	msgInvalid      = "Invalid promo code"
	msgAlreadyUsed  = "This promo code has already been used"
	msgExpired      = "This promo code has expired"
	msgWrongOwner   = "This promo code belongs to another user"
	msgCodeAccepted = "Promo code applied"
)

// Validator decides whether a code is usable for a program by a requester.
type Validator interface {
	Validate(ctx context.Context, code, programID, requesterID string) (*Verdict, error)
}

// Engine implements Validator against the promo code store and the program
// registry. It is a pure read: no state changes, safe under concurrent calls
// on the same code.
type Engine struct {
	store    Store
	programs program.Registry
	now      func() time.Time
}

// NewEngine creates a validation Engine.
func NewEngine(store Store, programs program.Registry) *Engine {
	return &Engine{store: store, programs: programs, now: time.Now}
}

// Validate checks the code against the target program and requester.
// Everything about the code itself is reported as a soft verdict; only
// infrastructure failures and an unknown program become hard errors.
//
// Precedence, first match wins: not found, deactivated, already used,
// expired, program excluded, program not in allow-list, ownership mismatch.
func (e *Engine) Validate(ctx context.Context, code, programID, requesterID string) (*Verdict, error) {
	if code == "" {
		return &Verdict{Valid: false, Message: msgInvalid}, nil
	}

	found, err := e.programs.FindByIDs(ctx, []string{programID})
	if err != nil {
		return nil, errors.Wrap(err, "lookup program")
	}
	if len(found) == 0 {
		return nil, program.ErrNotFound
	}

	pc, err := e.store.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return &Verdict{Valid: false, Message: msgInvalid}, nil
		}
		return nil, errors.Wrap(err, "lookup promo code")
	}

	if err := pc.CanBeUsedForProgram(programID, e.now()); err != nil {
		return &Verdict{Valid: false, Message: verdictMessage(err)}, nil
	}

	// Ownership is checked only after program applicability, and skipped
	// entirely for general codes.
	if !pc.IsGeneral && pc.OwnerID != requesterID {
		return &Verdict{Valid: false, Message: msgWrongOwner}, nil
	}

	d := pc.Discount
	return &Verdict{Valid: true, Message: msgCodeAccepted, Discount: &d}, nil
}

// verdictMessage maps an applicability failure to its user-facing message.
func verdictMessage(err error) string {
	var excluded *ProgramExcludedError
	var notAllowed *ProgramNotAllowedError

	switch {
	case errors.Is(err, ErrDeactivated):
		return msgInvalid
	case errors.Is(err, ErrAlreadyUsed):
		return msgAlreadyUsed
	case errors.Is(err, ErrExpired):
		return msgExpired
	case errors.As(err, &excluded):
		return fmt.Sprintf("This promo code cannot be applied to program %s", excluded.ProgramID)
	case errors.As(err, &notAllowed):
		return "This promo code is not valid for this program"
	default:
		return msgInvalid
	}
}
