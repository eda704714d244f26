package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func probe(t *testing.T, endpoint http.HandlerFunc) (int, probeResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	endpoint(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	var resp probeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func TestHealth_ReadyGate(t *testing.T) {
	h := New()

	code, resp := probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unavailable", resp.Status)

	h.SetReady(true)
	code, resp = probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", resp.Status)

	h.SetReady(false)
	code, _ = probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestHealth_FailureThreshold(t *testing.T) {
	h := New()
	h.SetReady(true)

	failing := errors.New("connection refused")
	h.AddReadinessCheck("db", time.Second, func(context.Context) error {
		return failing
	})

	c := h.readiness[0]

	// Below the failure threshold the check keeps reporting healthy.
	for range defaultFailureThreshold - 1 {
		c.run(context.Background())
	}
	code, _ := probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, code)

	c.run(context.Background())
	code, resp := probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "connection refused", resp.Checks["db"])

	// A single success recovers it.
	c.fn = func(context.Context) error { return nil }
	c.run(context.Background())
	code, resp = probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", resp.Checks["db"])
}

func TestHealth_LivenessIndependentOfReadyGate(t *testing.T) {
	h := New()
	h.AddLivenessCheck("goroutines", time.Second, func(context.Context) error { return nil })

	// Ready gate is down but liveness still passes.
	code, resp := probe(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", resp.Checks["goroutines"])
}

func TestHealth_StartStop(t *testing.T) {
	h := New()
	h.SetReady(true)

	ran := make(chan struct{}, 16)
	h.AddReadinessCheck("probe", time.Second, func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	})

	h.Start(context.Background(), 10*time.Millisecond)
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("check never ran")
	}
	h.Stop()

	code, _ := probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, code)
}
