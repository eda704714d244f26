//go:build integration

package integration

import (
	"net/http"
	"strings"
	"testing"
)

func TestBundleConfig_DefaultsOnFirstRead(t *testing.T) {
	resp := doGet(t, "/api/bundle-config")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	cfg := decodeJSON[bundleConfigResponse](t, resp)
	if !cfg.Enabled {
		t.Fatal("expected issuance enabled by default")
	}
	if cfg.DiscountAmount != 5000 || cfg.ExpiryDays != 30 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestBundleConfig_UpdateRoundTrip(t *testing.T) {
	resp := doJSON(t, http.MethodPut, "/api/bundle-config", map[string]any{
		"enabled":        true,
		"discountAmount": 7500,
		"expiryDays":     60,
		"editorId":       "admin-integration",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	updated := decodeJSON[bundleConfigResponse](t, resp)
	resp.Body.Close()

	if updated.DiscountAmount != 7500 || updated.ExpiryDays != 60 || updated.UpdatedBy != "admin-integration" {
		t.Fatalf("unexpected updated config: %+v", updated)
	}

	// A fresh read serves the new values.
	resp = doGet(t, "/api/bundle-config")
	got := decodeJSON[bundleConfigResponse](t, resp)
	resp.Body.Close()

	if got.DiscountAmount != 7500 || got.ExpiryDays != 60 {
		t.Fatalf("update not persisted: %+v", got)
	}

	// Restore defaults for other tests.
	resp = doJSON(t, http.MethodPut, "/api/bundle-config", map[string]any{
		"enabled":        true,
		"discountAmount": 5000,
		"expiryDays":     30,
		"editorId":       "admin-integration",
	})
	resp.Body.Close()
}

func TestBundleConfig_RejectsOutOfRange(t *testing.T) {
	resp := doJSON(t, http.MethodPut, "/api/bundle-config", map[string]any{
		"enabled":        true,
		"discountAmount": 500,
		"expiryDays":     30,
		"editorId":       "admin-integration",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	body := decodeJSON[errorResponse](t, resp)
	if !strings.Contains(body.Message, "discountAmount") {
		t.Fatalf("error does not name the field: %q", body.Message)
	}

	// The stored config must be unchanged.
	getResp := doGet(t, "/api/bundle-config")
	defer getResp.Body.Close()

	cfg := decodeJSON[bundleConfigResponse](t, getResp)
	if cfg.DiscountAmount == 500 {
		t.Fatal("rejected update was persisted")
	}
}
