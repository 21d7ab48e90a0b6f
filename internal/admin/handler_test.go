package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"propdesk/internal/auth"
	"propdesk/internal/challenges"
	"propdesk/internal/plans"
	"propdesk/internal/store"
	"propdesk/internal/store/memory"
	"propdesk/internal/types"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func withRole(role types.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := auth.WithPrincipal(r.Context(), auth.Principal{UserID: "ops", Role: role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func newTestRouter(svc *challenges.Service, role types.UserRole) http.Handler {
	h := NewHandler(svc, zap.NewNop())
	r := chi.NewRouter()
	if role != "" {
		r.Use(withRole(role))
	}
	r.Route("/v1/admin", func(r chi.Router) {
		r.Use(RequireAdmin)
		r.Get("/challenges", h.ListChallenges)
		r.Delete("/challenges/{id}", h.DeleteChallenge)
		r.Post("/leaderboard/seed", h.SeedLeaderboard)
		r.Post("/challenges/reset-daily", h.ResetDaily)
	})
	return r
}

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestRequireAdmin(t *testing.T) {
	t.Parallel()

	svc := challenges.NewService(memory.New(), plans.Default(), nil, zap.NewNop())

	rec := serve(newTestRouter(svc, ""), http.MethodGet, "/v1/admin/challenges")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(newTestRouter(svc, types.RoleUser), http.MethodGet, "/v1/admin/challenges")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"admin access required","success":false}`, rec.Body.String())

	rec = serve(newTestRouter(svc, types.RoleAdmin), http.MethodGet, "/v1/admin/challenges")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSeedListDelete(t *testing.T) {
	t.Parallel()

	st := memory.New()
	svc := challenges.NewService(st, plans.Default(), nil, zap.NewNop())
	r := newTestRouter(svc, types.RoleAdmin)

	rec := serve(r, http.MethodPost, "/v1/admin/leaderboard/seed")
	require.Equal(t, http.StatusOK, rec.Code)
	var seeded struct {
		Created int `json:"created"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &seeded))
	assert.Equal(t, 5, seeded.Created)

	rec = serve(r, http.MethodGet, "/v1/admin/challenges?status=passed")
	require.Equal(t, http.StatusOK, rec.Code)
	var passed []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &passed))
	assert.Len(t, passed, 3)

	rec = serve(r, http.MethodGet, "/v1/admin/challenges?owner=karim.tazi@gmail.com")
	require.Equal(t, http.StatusOK, rec.Code)
	var karim []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &karim))
	require.Len(t, karim, 1)
	id := karim[0]["id"].(string)

	rec = serve(r, http.MethodDelete, "/v1/admin/challenges/"+id)
	require.Equal(t, http.StatusOK, rec.Code)
	_, err := st.GetChallenge(context.Background(), id)
	assert.ErrorIs(t, err, store.ErrNotFound)

	rec = serve(r, http.MethodDelete, "/v1/admin/challenges/"+id)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(r, http.MethodGet, "/v1/admin/challenges?status=paused")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResetDaily(t *testing.T) {
	t.Parallel()

	st := memory.New()
	svc := challenges.NewService(st, plans.Default(), nil, zap.NewNop())
	_, err := svc.SeedDemo(context.Background())
	require.NoError(t, err)

	rec := serve(newTestRouter(svc, types.RoleAdmin), http.MethodPost, "/v1/admin/challenges/reset-daily")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"reset":2,"failed":0}`, rec.Body.String())

	amina, err := st.ListChallenges(context.Background(), store.Filter{OwnerID: "amina.moussa@gmail.com"})
	require.NoError(t, err)
	require.Len(t, amina, 1)
	assert.True(t, decimal.NewFromInt(10850).Equal(amina[0].DailyStartBalance), "got %s", amina[0].DailyStartBalance)
	assert.True(t, amina[0].DailyPnL.IsZero())
}
