// Package admin is the operator surface: listing and deleting challenges,
// seeding the demo leaderboard and forcing the daily reset.
package admin

import (
	"net/http"

	"propdesk/internal/apperr"
	"propdesk/internal/auth"
	"propdesk/internal/challenges"
	"propdesk/internal/httputil"
	"propdesk/internal/store"
	"propdesk/internal/types"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Handler struct {
	svc *challenges.Service
	log *zap.Logger
}

func NewHandler(svc *challenges.Service, log *zap.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// RequireAdmin lets through callers whose token carries the admin role. It
// must run after the bearer middleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.FromContext(r.Context())
		if !ok {
			httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
			return
		}
		if !p.IsAdmin() {
			httputil.WriteJSON(w, http.StatusForbidden, httputil.ErrorResponse{Error: "admin access required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if apperr.KindOf(err) == apperr.KindInternal {
		h.log.Error("admin request failed", zap.Error(err))
	}
	httputil.WriteRequestError(w, r, err)
}

func (h *Handler) ListChallenges(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	q := r.URL.Query()
	list, err := h.svc.List(r.Context(), p, store.Filter{
		OwnerID: q.Get("owner"),
		Status:  types.ChallengeStatus(q.Get("status")),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) DeleteChallenge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	p, _ := auth.FromContext(r.Context())
	h.log.Info("challenge deleted by admin", zap.String("challenge_id", id), zap.String("admin", p.UserID))
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Challenge deleted successfully",
	})
}

func (h *Handler) SeedLeaderboard(w http.ResponseWriter, r *http.Request) {
	created, err := h.svc.SeedDemo(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"created":    len(created),
		"challenges": created,
	})
}

func (h *Handler) ResetDaily(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.ResetAllDaily(r.Context())
	if err != nil {
		h.log.Error("daily reset incomplete", zap.Error(err))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"success": err == nil,
		"reset":   sum.Reset,
		"failed":  sum.Failed,
	})
}
