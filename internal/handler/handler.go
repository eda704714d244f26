// Package handler exposes the promo engine over an internal, API-key
// authenticated HTTP surface. Decision logic lives in the domain packages;
// this layer only frames requests and responses.
package handler

import (
	"net/http"

	"github.com/gatherly/promo-engine/internal/domain/access"
	"github.com/gatherly/promo-engine/internal/domain/bundle"
	"github.com/gatherly/promo-engine/internal/domain/promo"
)

// Handler wires the engine's operations to HTTP routes.
type Handler struct {
	validator promo.Validator
	redeemer  *promo.Redeemer
	issuer    *promo.Issuer
	policy    *bundle.Policy
	gate      *access.Gate
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	validator promo.Validator,
	redeemer *promo.Redeemer,
	issuer *promo.Issuer,
	policy *bundle.Policy,
	gate *access.Gate,
) *Handler {
	return &Handler{
		validator: validator,
		redeemer:  redeemer,
		issuer:    issuer,
		policy:    policy,
		gate:      gate,
	}
}

// Register mounts all API routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/promo/validate", h.ValidateCode)
	mux.HandleFunc("POST /api/promo/redeem", h.RedeemCode)
	mux.HandleFunc("POST /api/promo/codes", h.IssueCode)
	mux.HandleFunc("POST /api/promo/bundle", h.IssueBundleCode)
	mux.HandleFunc("GET /api/bundle-config", h.GetBundleConfig)
	mux.HandleFunc("PUT /api/bundle-config", h.UpdateBundleConfig)
	mux.HandleFunc("POST /api/access/check", h.CheckOrganizerAccess)
}
