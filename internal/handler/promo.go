package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/gatherly/promo-engine/internal/domain/program"
	"github.com/gatherly/promo-engine/internal/domain/promo"
)

// ValidateCode runs the validation engine. A failing code is still a 200:
// the verdict itself says why.
func (h *Handler) ValidateCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code      string
		ProgramID string
		UserID    string
	}
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			req.Code, err = d.Str()
		case "programId":
			req.ProgramID, err = d.Str()
		case "userId":
			req.UserID, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}

	verdict, err := h.validator.Validate(r.Context(), req.Code, req.ProgramID, req.UserID)
	if err != nil {
		if errors.Is(err, program.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "program not found")
			return
		}
		writeInternalError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		encodeVerdict(e, verdict)
	})
}

// RedeemCode marks a code used for a program after purchase completion.
// Failures here are hard: the caller must react (e.g. refund decision).
func (h *Handler) RedeemCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CodeID    string
		ProgramID string
	}
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "codeId":
			req.CodeID, err = d.Str()
		case "programId":
			req.ProgramID, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}

	code, err := h.redeemer.Redeem(r.Context(), req.CodeID, req.ProgramID)
	if err != nil {
		writeRedeemError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		encodePromoCode(e, code)
	})
}

// IssueCode creates a staff or personal code from an admin request.
func (h *Handler) IssueCode(w http.ResponseWriter, r *http.Request) {
	var (
		req       promo.IssueRequest
		amount    *decimal.Decimal
		percent   *decimal.Decimal
		expiresAt *time.Time
	)
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "type":
			var s string
			s, err = d.Str()
			req.Type = promo.CodeType(s)
		case "discountAmount":
			var v decimal.Decimal
			v, err = decodeDecimal(d)
			amount = &v
		case "discountPercent":
			var v decimal.Decimal
			v, err = decodeDecimal(d)
			percent = &v
		case "ownerId":
			req.OwnerID, err = d.Str()
		case "isGeneral":
			req.IsGeneral, err = d.Bool()
		case "allowedProgramIds":
			req.AllowedProgramIDs, err = decodeStrings(d)
		case "expiresAt":
			var t time.Time
			t, err = decodeTime(d)
			expiresAt = &t
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}

	switch {
	case amount != nil && percent != nil:
		writeError(w, r, http.StatusBadRequest, "set exactly one of discountAmount and discountPercent")
		return
	case amount != nil:
		req.Discount = promo.AmountDiscount(*amount)
	case percent != nil:
		req.Discount, err = promo.PercentDiscount(*percent)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	default:
		writeError(w, r, http.StatusBadRequest, "set exactly one of discountAmount and discountPercent")
		return
	}
	req.ExpiresAt = expiresAt

	code, err := h.issuer.Issue(r.Context(), req)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, func(e *jx.Encoder) {
		encodePromoCode(e, code)
	})
}

// IssueBundleCode creates the post-purchase bundle code for a user, governed
// by the bundle discount config.
func (h *Handler) IssueBundleCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    string
		ProgramID string
	}
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "userId":
			req.UserID, err = d.Str()
		case "programId":
			req.ProgramID, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}

	code, err := h.issuer.IssueBundleCode(r.Context(), req.UserID, req.ProgramID)
	if err != nil {
		if errors.Is(err, promo.ErrBundleIssuanceDisabled) {
			writeError(w, r, http.StatusConflict, "bundle code issuance is disabled")
			return
		}
		writeInternalError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, func(e *jx.Encoder) {
		encodePromoCode(e, code)
	})
}

func writeRedeemError(w http.ResponseWriter, r *http.Request, err error) {
	var excluded *promo.ProgramExcludedError
	var notAllowed *promo.ProgramNotAllowedError

	switch {
	case errors.Is(err, promo.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "promo code not found")
	case errors.Is(err, promo.ErrAlreadyUsed),
		errors.Is(err, promo.ErrExpired),
		errors.Is(err, promo.ErrDeactivated),
		errors.Is(err, promo.ErrRedemptionLost):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.As(err, &excluded), errors.As(err, &notAllowed):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	default:
		writeInternalError(w, r, err)
	}
}

func encodeVerdict(e *jx.Encoder, v *promo.Verdict) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("valid", func(e *jx.Encoder) { e.Bool(v.Valid) })
		e.Field("message", func(e *jx.Encoder) { e.Str(v.Message) })
		if v.Discount != nil {
			e.Field("discount", func(e *jx.Encoder) {
				encodeDiscount(e, *v.Discount)
			})
		}
	})
}

func encodeDiscount(e *jx.Encoder, d promo.Discount) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("type", func(e *jx.Encoder) { e.Str(string(d.Type)) })
		e.Field("value", func(e *jx.Encoder) { e.Num(jx.Num(d.Value.String())) })
	})
}

func encodePromoCode(e *jx.Encoder, c *promo.PromoCode) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(c.ID) })
		e.Field("code", func(e *jx.Encoder) { e.Str(c.Code) })
		e.Field("type", func(e *jx.Encoder) { e.Str(string(c.Type)) })
		e.Field("discount", func(e *jx.Encoder) { encodeDiscount(e, c.Discount) })
		if c.OwnerID != "" {
			e.Field("ownerId", func(e *jx.Encoder) { e.Str(c.OwnerID) })
		}
		e.Field("isGeneral", func(e *jx.Encoder) { e.Bool(c.IsGeneral) })
		if len(c.AllowedProgramIDs) > 0 {
			e.Field("allowedProgramIds", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, id := range c.AllowedProgramIDs {
						e.Str(id)
					}
				})
			})
		}
		if c.ExcludedProgramID != "" {
			e.Field("excludedProgramId", func(e *jx.Encoder) { e.Str(c.ExcludedProgramID) })
		}
		e.Field("isActive", func(e *jx.Encoder) { e.Bool(c.IsActive) })
		e.Field("isUsed", func(e *jx.Encoder) { e.Bool(c.IsUsed) })
		if c.UsedAt != nil {
			e.Field("usedAt", func(e *jx.Encoder) { e.Str(c.UsedAt.Format(time.RFC3339)) })
		}
		if c.UsedForProgramID != "" {
			e.Field("usedForProgramId", func(e *jx.Encoder) { e.Str(c.UsedForProgramID) })
		}
		if c.ExpiresAt != nil {
			e.Field("expiresAt", func(e *jx.Encoder) { e.Str(c.ExpiresAt.Format(time.RFC3339)) })
		}
	})
}
