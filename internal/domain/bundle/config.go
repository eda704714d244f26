// Package bundle holds the process-wide discount policy for auto-issued
// bundle codes.
package bundle

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Bounds for admin-supplied config values.
var (
	minDiscountAmount = decimal.NewFromInt(1000)
	maxDiscountAmount = decimal.NewFromInt(20000)
)

const (
	minExpiryDays = 7
	maxExpiryDays = 365

	defaultDiscountAmount = 5000
	defaultExpiryDays     = 30
)

// Config governs bundle code issuance: whether it happens at all, the fixed
// discount granted, and how long issued codes stay redeemable.
type Config struct {
	Enabled        bool
	DiscountAmount decimal.Decimal
	ExpiryDays     int
	UpdatedBy      string
	UpdatedAt      time.Time
}

// DefaultConfig returns the config created lazily on first read.
func DefaultConfig() *Config {
	return &Config{
		Enabled:        true,
		DiscountAmount: decimal.NewFromInt(defaultDiscountAmount),
		ExpiryDays:     defaultExpiryDays,
	}
}

// ValidationError reports an out-of-range config field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid bundle config: %s %s", e.Field, e.Reason)
}

// Store persists the singleton config row. Get returns nil when the row has
// never been written.
type Store interface {
	Get(ctx context.Context) (*Config, error)
	Save(ctx context.Context, cfg *Config) error
}

// Policy exposes the config to the engine and to the admin update path.
// Concurrent updates are last-writer-wins: two admins racing on Update may
// silently overwrite each other. There is no row versioning; this is a known,
// accepted limitation.
type Policy struct {
	store Store
	now   func() time.Time
}

// NewPolicy creates a Policy backed by the given store.
func NewPolicy(store Store) *Policy {
	return &Policy{store: store, now: time.Now}
}

// Get returns the current config, creating and persisting defaults on first
// read.
func (p *Policy) Get(ctx context.Context) (*Config, error) {
	cfg, err := p.store.Get(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load bundle config")
	}
	if cfg != nil {
		return cfg, nil
	}

	cfg = DefaultConfig()
	cfg.UpdatedAt = p.now()
	if err := p.store.Save(ctx, cfg); err != nil {
		return nil, errors.Wrap(err, "persist default bundle config")
	}
	return cfg, nil
}

// Update validates bounds and persists the new config. Out-of-range input is
// rejected with a *ValidationError naming the offending field, and the stored
// config stays unchanged.
func (p *Policy) Update(ctx context.Context, cfg Config, editorID string) (*Config, error) {
	if cfg.DiscountAmount.LessThan(minDiscountAmount) || cfg.DiscountAmount.GreaterThan(maxDiscountAmount) {
		return nil, &ValidationError{
			Field:  "discountAmount",
			Reason: fmt.Sprintf("must be between %s and %s", minDiscountAmount, maxDiscountAmount),
		}
	}
	if cfg.ExpiryDays < minExpiryDays || cfg.ExpiryDays > maxExpiryDays {
		return nil, &ValidationError{
			Field:  "expiryDays",
			Reason: fmt.Sprintf("must be between %d and %d", minExpiryDays, maxExpiryDays),
		}
	}

	cfg.UpdatedBy = editorID
	cfg.UpdatedAt = p.now()
	if err := p.store.Save(ctx, &cfg); err != nil {
		return nil, errors.Wrap(err, "persist bundle config")
	}
	return &cfg, nil
}
