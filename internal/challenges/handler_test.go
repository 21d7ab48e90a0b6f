package challenges

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"propdesk/internal/auth"
	"propdesk/internal/plans"
	"propdesk/internal/types"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// asUser stands in for the bearer middleware: X-User names the caller and
// X-Role optionally makes them an admin.
func asUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get("X-User"); id != "" {
			p := auth.Principal{UserID: id, Role: types.UserRole(r.Header.Get("X-Role"))}
			r = r.WithContext(auth.WithPrincipal(r.Context(), p))
		}
		next.ServeHTTP(w, r)
	})
}

func newTestRouter(f fixture) http.Handler {
	h := NewHandler(f.svc, plans.Default(), zap.NewNop())
	r := chi.NewRouter()
	r.Use(asUser)
	r.Post("/v1/trades/open", h.OpenTrade)
	r.Post("/v1/trades/close", h.CloseTrade)
	r.Post("/v1/challenges/evaluate", h.Evaluate)
	r.Get("/v1/challenges", h.List)
	r.Get("/v1/challenges/{id}", h.Get)
	r.Get("/v1/challenges/{id}/trades", h.ListTrades)
	r.Patch("/v1/challenges/{id}", h.Update)
	r.Get("/v1/plans", h.Plans)
	r.Post("/v1/internal/challenges", h.Issue)
	r.Post("/v1/internal/challenges/reset-daily", h.ResetDaily)
	return r
}

func do(t *testing.T, h http.Handler, method, path, user, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User", user)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func TestHandlerTradeFlow(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	r := newTestRouter(f)

	code, body := do(t, r, http.MethodPost, "/v1/internal/challenges", "", `{"ownerId":"alice","planId":"pro","displayName":"Alice"}`)
	require.Equal(t, http.StatusCreated, code)
	challengeID := body["challenge"].(map[string]any)["id"].(string)

	code, body = do(t, r, http.MethodPost, "/v1/trades/open", "alice",
		`{"challengeId":"`+challengeID+`","symbol":"eurusd","side":"buy","quantity":10,"price":"100"}`)
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, true, body["success"])
	trade := body["trade"].(map[string]any)
	assert.Equal(t, "EURUSD", trade["symbol"])
	assert.Equal(t, "open", trade["status"])
	assert.Equal(t, "9000", body["challenge"].(map[string]any)["current_balance"])

	code, body = do(t, r, http.MethodPost, "/v1/trades/close", "alice", `{"tradeId":"`+trade["id"].(string)+`","exitPrice":110}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "100", body["trade"].(map[string]any)["pnl"])
	assert.Equal(t, "10100", body["challenge"].(map[string]any)["current_balance"])
	assert.Equal(t, "1", body["challenge"].(map[string]any)["total_pnl_pct"])
	ev := body["evaluation"].(map[string]any)
	assert.Equal(t, "active", ev["status"])
	assert.Nil(t, ev["failureReason"])

	code, body = do(t, r, http.MethodPost, "/v1/trades/close", "alice", `{"tradeId":"`+trade["id"].(string)+`","exitPrice":120}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "trade is already closed", body["error"])
	assert.Equal(t, false, body["success"])

	code, body = do(t, r, http.MethodPost, "/v1/challenges/evaluate", "alice", `{"challengeId":"`+challengeID+`"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, challengeID, body["challengeId"])
	assert.Equal(t, false, body["rulesViolated"])
	assert.Equal(t, "1", body["metrics"].(map[string]any)["totalPnlPct"])
}

func TestHandlerErrors(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	r := newTestRouter(f)
	c := f.create(t, "alice", types.PlanStarter)

	tests := []struct {
		name     string
		method   string
		path     string
		user     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"no identity", http.MethodPost, "/v1/trades/open", "", `{}`, http.StatusUnauthorized, "unauthorized"},
		{"malformed", http.MethodPost, "/v1/trades/open", "alice", `{"challengeId":`, http.StatusBadRequest, "invalid request"},
		{"missing fields", http.MethodPost, "/v1/trades/open", "alice", `{"symbol":"X","side":"buy"}`, http.StatusBadRequest, "missing required fields: challengeId, quantity, price"},
		{"zero quantity", http.MethodPost, "/v1/trades/open", "alice", `{"challengeId":"` + c.ID + `","symbol":"X","side":"buy","quantity":0,"price":1}`, http.StatusBadRequest, "quantity must be positive"},
		{"unknown challenge", http.MethodPost, "/v1/trades/open", "alice", `{"challengeId":"nope","symbol":"X","side":"buy","quantity":1,"price":1}`, http.StatusNotFound, "challenge not found"},
		{"someone else's challenge", http.MethodPost, "/v1/trades/open", "bob", `{"challengeId":"` + c.ID + `","symbol":"X","side":"buy","quantity":1,"price":1}`, http.StatusNotFound, "challenge not found"},
		{"insufficient", http.MethodPost, "/v1/trades/open", "alice", `{"challengeId":"` + c.ID + `","symbol":"X","side":"buy","quantity":1,"price":5000.01}`, http.StatusBadRequest, "insufficient balance"},
		{"close missing fields", http.MethodPost, "/v1/trades/close", "alice", `{}`, http.StatusBadRequest, "missing required fields: tradeId, exitPrice"},
		{"close unknown", http.MethodPost, "/v1/trades/close", "alice", `{"tradeId":"nope","exitPrice":1}`, http.StatusNotFound, "trade not found"},
		{"evaluate missing id", http.MethodPost, "/v1/challenges/evaluate", "alice", `{}`, http.StatusBadRequest, "challengeId is required"},
		{"evaluate unknown", http.MethodPost, "/v1/challenges/evaluate", "alice", `{"challengeId":"nope"}`, http.StatusNotFound, "challenge not found"},
		{"get hidden", http.MethodGet, "/v1/challenges/" + c.ID, "bob", "", http.StatusNotFound, "challenge not found"},
		{"patch disallowed field", http.MethodPatch, "/v1/challenges/" + c.ID, "alice", `{"current_balance":"1000000"}`, http.StatusBadRequest, "invalid request: only displayName can be updated"},
		{"issue bad plan", http.MethodPost, "/v1/internal/challenges", "", `{"ownerId":"alice","planId":"gold"}`, http.StatusBadRequest, "invalid plan type"},
	}

	for _, tt := range tests {
		code, body := do(t, r, tt.method, tt.path, tt.user, tt.body)
		assert.Equal(t, tt.wantCode, code, tt.name)
		assert.Equal(t, tt.wantErr, body["error"], tt.name)
		assert.Equal(t, false, body["success"], tt.name)
	}
}

func TestHandlerInactiveChallengeConflict(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	r := newTestRouter(f)
	c := f.create(t, "alice", types.PlanStarter)
	tr := f.open(t, alice, c.ID, types.TradeSideBuy, "10", "100")

	code, body := do(t, r, http.MethodPost, "/v1/trades/close", "alice", `{"tradeId":"`+tr.ID+`","exitPrice":"70"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "failed", body["challenge"].(map[string]any)["status"])
	assert.Equal(t, "Max Daily Loss Exceeded: -6.00% (Limit: -5%)", body["challenge"].(map[string]any)["failure_reason"])

	code, body = do(t, r, http.MethodPost, "/v1/trades/open", "alice", `{"challengeId":"`+c.ID+`","symbol":"X","side":"buy","quantity":1,"price":1}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "challenge is not active (status: failed)", body["error"])

	code, _ = do(t, r, http.MethodPost, "/v1/challenges/evaluate", "alice", `{"challengeId":"`+c.ID+`"}`)
	assert.Equal(t, http.StatusConflict, code)
}

func TestHandlerReadEndpoints(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	r := newTestRouter(f)
	c := f.create(t, "alice", types.PlanPro)
	f.create(t, "bob", types.PlanPro)
	f.open(t, alice, c.ID, types.TradeSideSell, "1", "10")

	req := httptest.NewRequest(http.MethodGet, "/v1/challenges", nil)
	req.Header.Set("X-User", "alice")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, c.ID, list[0]["id"])

	req = httptest.NewRequest(http.MethodGet, "/v1/challenges/"+c.ID+"/trades", nil)
	req.Header.Set("X-User", "alice")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var trades []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trades))
	require.Len(t, trades, 1)
	assert.Equal(t, "sell", trades[0]["side"])

	code, body := do(t, r, http.MethodPatch, "/v1/challenges/"+c.ID, "alice", `{"displayName":"Night Desk"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Night Desk", body["display_name"])

	req = httptest.NewRequest(http.MethodGet, "/v1/plans", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var catalog []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &catalog))
	require.Len(t, catalog, 3)
	assert.Equal(t, "starter", catalog[0]["id"])

	code, body = do(t, r, http.MethodPost, "/v1/internal/challenges/reset-daily", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), body["reset"])
	assert.Equal(t, true, body["success"])
}
