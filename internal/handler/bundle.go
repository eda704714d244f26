package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/gatherly/promo-engine/internal/domain/bundle"
)

// GetBundleConfig returns the current bundle discount config, creating
// defaults on first read.
func (h *Handler) GetBundleConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.policy.Get(r.Context())
	if err != nil {
		writeInternalError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		encodeBundleConfig(e, cfg)
	})
}

// UpdateBundleConfig is the privileged update path. Out-of-range values are
// rejected with a 400 naming the offending field; the stored config stays
// unchanged.
func (h *Handler) UpdateBundleConfig(w http.ResponseWriter, r *http.Request) {
	var (
		cfg      bundle.Config
		editorID string
	)
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "enabled":
			cfg.Enabled, err = d.Bool()
		case "discountAmount":
			cfg.DiscountAmount, err = decodeDecimal(d)
		case "expiryDays":
			cfg.ExpiryDays, err = d.Int()
		case "editorId":
			editorID, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}

	updated, err := h.policy.Update(r.Context(), cfg, editorID)
	if err != nil {
		var vErr *bundle.ValidationError
		if errors.As(err, &vErr) {
			writeError(w, r, http.StatusBadRequest, vErr.Error())
			return
		}
		writeInternalError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		encodeBundleConfig(e, updated)
	})
}

func encodeBundleConfig(e *jx.Encoder, cfg *bundle.Config) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("enabled", func(e *jx.Encoder) { e.Bool(cfg.Enabled) })
		e.Field("discountAmount", func(e *jx.Encoder) { e.Num(jx.Num(cfg.DiscountAmount.String())) })
		e.Field("expiryDays", func(e *jx.Encoder) { e.Int(cfg.ExpiryDays) })
		if cfg.UpdatedBy != "" {
			e.Field("updatedBy", func(e *jx.Encoder) { e.Str(cfg.UpdatedBy) })
		}
		e.Field("updatedAt", func(e *jx.Encoder) { e.Str(cfg.UpdatedAt.Format(time.RFC3339)) })
	})
}
