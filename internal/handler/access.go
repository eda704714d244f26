package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/gatherly/promo-engine/internal/domain/access"
)

// CheckOrganizerAccess runs the co-organizer program-access gate. An
// unauthorized roster is a 403 carrying the structured list; admin-role
// bypass is the caller's concern, not the gate's.
func (h *Handler) CheckOrganizerAccess(w http.ResponseWriter, r *http.Request) {
	var (
		organizers []access.Organizer
		programIDs []string
	)
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "organizers":
			err = d.Arr(func(d *jx.Decoder) error {
				var org access.Organizer
				if err := d.Obj(func(d *jx.Decoder, key string) error {
					var err error
					switch key {
					case "userId":
						org.UserID, err = d.Str()
					case "name":
						org.Name, err = d.Str()
					default:
						err = d.Skip()
					}
					return err
				}); err != nil {
					return err
				}
				organizers = append(organizers, org)
				return nil
			})
		case "programIds":
			programIDs, err = decodeStrings(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}

	res, err := h.gate.Check(r.Context(), organizers, programIDs)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}

	status := http.StatusOK
	if !res.Valid {
		status = http.StatusForbidden
	}
	writeJSON(w, r, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("valid", func(e *jx.Encoder) { e.Bool(res.Valid) })
			e.Field("unauthorized", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, org := range res.Unauthorized {
						e.Obj(func(e *jx.Encoder) {
							e.Field("userId", func(e *jx.Encoder) { e.Str(org.UserID) })
							e.Field("name", func(e *jx.Encoder) { e.Str(org.Name) })
						})
					}
				})
			})
		})
	})
}
