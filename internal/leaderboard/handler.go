package leaderboard

import (
	"net/http"

	"propdesk/internal/httputil"

	"go.uber.org/zap"
)

type Handler struct {
	svc *Service
	log *zap.Logger
}

func NewHandler(svc *Service, log *zap.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.Top(r.Context())
	if err != nil {
		h.log.Error("leaderboard failed", zap.Error(err))
		httputil.WriteRequestError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entries)
}
