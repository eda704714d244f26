package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatherly/promo-engine/internal/domain/access"
	"github.com/gatherly/promo-engine/internal/domain/bundle"
	"github.com/gatherly/promo-engine/internal/domain/program"
	"github.com/gatherly/promo-engine/internal/domain/promo"
)

// --- In-memory fakes ---

type fakePromoStore struct {
	byCode map[string]*promo.PromoCode
	byID   map[string]*promo.PromoCode
}

func newFakePromoStore(codes ...*promo.PromoCode) *fakePromoStore {
	s := &fakePromoStore{byCode: map[string]*promo.PromoCode{}, byID: map[string]*promo.PromoCode{}}
	for _, c := range codes {
		s.byCode[c.Code] = c
		s.byID[c.ID] = c
	}
	return s
}

func (s *fakePromoStore) FindByCode(_ context.Context, code string) (*promo.PromoCode, error) {
	c, ok := s.byCode[code]
	if !ok {
		return nil, promo.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *fakePromoStore) GetByID(_ context.Context, id string) (*promo.PromoCode, error) {
	c, ok := s.byID[id]
	if !ok {
		return nil, promo.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *fakePromoStore) Insert(_ context.Context, c *promo.PromoCode) error {
	if _, exists := s.byCode[c.Code]; exists {
		return promo.ErrCodeExists
	}
	cp := *c
	s.byCode[c.Code] = &cp
	s.byID[c.ID] = &cp
	return nil
}

func (s *fakePromoStore) MarkUsed(_ context.Context, id, programID string, usedAt time.Time) (bool, error) {
	c, ok := s.byID[id]
	if !ok || c.IsUsed {
		return false, nil
	}
	c.IsUsed = true
	c.UsedAt = &usedAt
	c.UsedForProgramID = programID
	return true, nil
}

type fakeRegistry struct {
	programs  map[string]program.Program
	purchases map[string]bool
}

func newFakeRegistry(programs ...program.Program) *fakeRegistry {
	r := &fakeRegistry{programs: map[string]program.Program{}, purchases: map[string]bool{}}
	for _, p := range programs {
		r.programs[p.ID] = p
	}
	return r
}

func (r *fakeRegistry) FindByIDs(_ context.Context, ids []string) ([]program.Program, error) {
	var out []program.Program
	for _, id := range ids {
		if p, ok := r.programs[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakeRegistry) FindCompletedPurchase(_ context.Context, userID, programID string) (*program.Purchase, error) {
	if !r.purchases[userID+"/"+programID] {
		return nil, nil
	}
	return &program.Purchase{UserID: userID, ProgramID: programID, Status: program.PurchaseCompleted}, nil
}

type fakeBundleStore struct {
	cfg *bundle.Config
}

func (s *fakeBundleStore) Get(context.Context) (*bundle.Config, error) {
	if s.cfg == nil {
		return nil, nil
	}
	cp := *s.cfg
	return &cp, nil
}

func (s *fakeBundleStore) Save(_ context.Context, cfg *bundle.Config) error {
	cp := *cfg
	s.cfg = &cp
	return nil
}

// --- Harness ---

type fixture struct {
	store    *fakePromoStore
	registry *fakeRegistry
	bundles  *fakeBundleStore
	mux      *http.ServeMux
}

func newFixture(t *testing.T, codes ...*promo.PromoCode) *fixture {
	t.Helper()

	f := &fixture{
		store: newFakePromoStore(codes...),
		registry: newFakeRegistry(
			program.Program{ID: "p1", Title: "Go Bootcamp"},
			program.Program{ID: "p2", Title: "System Design"},
			program.Program{ID: "free1", Title: "Intro Webinar", IsFree: true},
		),
		bundles: &fakeBundleStore{},
		mux:     http.NewServeMux(),
	}

	policy := bundle.NewPolicy(f.bundles)
	h := NewHandler(
		promo.NewEngine(f.store, f.registry),
		promo.NewRedeemer(f.store),
		promo.NewIssuer(f.store, policy),
		policy,
		access.NewGate(f.registry),
	)
	h.Register(f.mux)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func generalCode(code string, percent int64) *promo.PromoCode {
	d, _ := promo.PercentDiscount(decimal.NewFromInt(percent))
	return &promo.PromoCode{
		ID: "id-" + code, Code: code, Type: promo.TypeStaffAccess,
		Discount: d, IsGeneral: true, IsActive: true,
	}
}

// --- Tests ---

func TestValidateCode(t *testing.T) {
	f := newFixture(t, generalCode("SAVE20", 20))

	t.Run("valid code", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/promo/validate",
			`{"code": "SAVE20", "programId": "p1", "userId": "alice"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeResponse(t, rec)
		assert.Equal(t, true, body["valid"])
		discount := body["discount"].(map[string]any)
		assert.Equal(t, "percent", discount["type"])
		assert.Equal(t, float64(20), discount["value"])
	})

	t.Run("unknown code is a soft failure", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/promo/validate",
			`{"code": "NOSUCH", "programId": "p1", "userId": "alice"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeResponse(t, rec)
		assert.Equal(t, false, body["valid"])
		assert.Equal(t, "Invalid promo code", body["message"])
		assert.NotContains(t, body, "discount")
	})

	t.Run("unknown program", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/promo/validate",
			`{"code": "SAVE20", "programId": "ghost", "userId": "alice"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/promo/validate", `{"code": `)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRedeemCode(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		f := newFixture(t, generalCode("SAVE20", 20))

		rec := f.do(t, http.MethodPost, "/api/promo/redeem",
			`{"codeId": "id-SAVE20", "programId": "p1"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeResponse(t, rec)
		assert.Equal(t, true, body["isUsed"])
		assert.Equal(t, "p1", body["usedForProgramId"])
	})

	t.Run("second redemption conflicts", func(t *testing.T) {
		f := newFixture(t, generalCode("SAVE20", 20))

		first := f.do(t, http.MethodPost, "/api/promo/redeem",
			`{"codeId": "id-SAVE20", "programId": "p1"}`)
		require.Equal(t, http.StatusOK, first.Code)

		second := f.do(t, http.MethodPost, "/api/promo/redeem",
			`{"codeId": "id-SAVE20", "programId": "p2"}`)
		assert.Equal(t, http.StatusConflict, second.Code)
	})

	t.Run("unknown code", func(t *testing.T) {
		f := newFixture(t)

		rec := f.do(t, http.MethodPost, "/api/promo/redeem",
			`{"codeId": "nope", "programId": "p1"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("excluded program", func(t *testing.T) {
		f := newFixture(t, &promo.PromoCode{
			ID: "b1", Code: "BUNDLE", Type: promo.TypeBundle, IsActive: true,
			OwnerID: "alice", ExcludedProgramID: "p1",
			Discount: promo.AmountDiscount(decimal.NewFromInt(5000)),
		})

		rec := f.do(t, http.MethodPost, "/api/promo/redeem",
			`{"codeId": "b1", "programId": "p1"}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestIssueCode(t *testing.T) {
	f := newFixture(t)

	t.Run("percent code", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/promo/codes",
			`{"type": "staff_access", "discountPercent": 100, "isGeneral": true}`)
		require.Equal(t, http.StatusCreated, rec.Code)

		body := decodeResponse(t, rec)
		code := body["code"].(string)
		assert.Len(t, code, 8)
		assert.Equal(t, true, body["isGeneral"])
	})

	t.Run("amount code with allow-list", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/promo/codes",
			`{"type": "personal", "discountAmount": 1500, "ownerId": "alice", "allowedProgramIds": ["p1"]}`)
		require.Equal(t, http.StatusCreated, rec.Code)

		body := decodeResponse(t, rec)
		assert.Equal(t, "alice", body["ownerId"])
		assert.Equal(t, []any{"p1"}, body["allowedProgramIds"])
	})

	t.Run("both discounts rejected", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/promo/codes",
			`{"type": "personal", "discountAmount": 1500, "discountPercent": 20}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("no discount rejected", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/promo/codes", `{"type": "personal"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("percent above 100 rejected", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/promo/codes",
			`{"type": "personal", "discountPercent": 150}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestIssueBundleCode(t *testing.T) {
	t.Run("issues with config defaults", func(t *testing.T) {
		f := newFixture(t)

		rec := f.do(t, http.MethodPost, "/api/promo/bundle",
			`{"userId": "alice", "programId": "p1"}`)
		require.Equal(t, http.StatusCreated, rec.Code)

		body := decodeResponse(t, rec)
		assert.Equal(t, "bundle", body["type"])
		assert.Equal(t, "alice", body["ownerId"])
		assert.Equal(t, "p1", body["excludedProgramId"])
		discount := body["discount"].(map[string]any)
		assert.Equal(t, "amount", discount["type"])
		assert.Equal(t, float64(5000), discount["value"])
	})

	t.Run("disabled issuance conflicts", func(t *testing.T) {
		f := newFixture(t)
		f.bundles.cfg = &bundle.Config{
			Enabled:        false,
			DiscountAmount: decimal.NewFromInt(5000),
			ExpiryDays:     30,
		}

		rec := f.do(t, http.MethodPost, "/api/promo/bundle",
			`{"userId": "alice", "programId": "p1"}`)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestBundleConfig(t *testing.T) {
	t.Run("get creates defaults", func(t *testing.T) {
		f := newFixture(t)

		rec := f.do(t, http.MethodGet, "/api/bundle-config", "")
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeResponse(t, rec)
		assert.Equal(t, true, body["enabled"])
		assert.Equal(t, float64(5000), body["discountAmount"])
		assert.Equal(t, float64(30), body["expiryDays"])
	})

	t.Run("update", func(t *testing.T) {
		f := newFixture(t)

		rec := f.do(t, http.MethodPut, "/api/bundle-config",
			`{"enabled": false, "discountAmount": 10000, "expiryDays": 90, "editorId": "admin-1"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeResponse(t, rec)
		assert.Equal(t, false, body["enabled"])
		assert.Equal(t, float64(10000), body["discountAmount"])
		assert.Equal(t, "admin-1", body["updatedBy"])
	})

	t.Run("out-of-range update names the field", func(t *testing.T) {
		f := newFixture(t)

		rec := f.do(t, http.MethodPut, "/api/bundle-config",
			`{"enabled": true, "discountAmount": 500, "expiryDays": 30, "editorId": "admin-1"}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)

		body := decodeResponse(t, rec)
		assert.Contains(t, body["message"], "discountAmount")
	})
}

func TestCheckOrganizerAccess(t *testing.T) {
	f := newFixture(t)
	f.registry.purchases["alice/p1"] = true

	t.Run("entitled roster", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/access/check",
			`{"organizers": [{"userId": "alice", "name": "Alice"}], "programIds": ["p1"]}`)
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeResponse(t, rec)
		assert.Equal(t, true, body["valid"])
	})

	t.Run("unauthorized roster", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/access/check",
			`{"organizers": [{"userId": "alice", "name": "Alice"}, {"userId": "bob", "name": "Bob"}], "programIds": ["p1"]}`)
		require.Equal(t, http.StatusForbidden, rec.Code)

		body := decodeResponse(t, rec)
		assert.Equal(t, false, body["valid"])
		unauthorized := body["unauthorized"].([]any)
		require.Len(t, unauthorized, 1)
		assert.Equal(t, "bob", unauthorized[0].(map[string]any)["userId"])
	})

	t.Run("free programs pass", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/access/check",
			`{"organizers": [{"userId": "bob", "name": "Bob"}], "programIds": ["free1"]}`)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
