package auth

import (
	"net/http"

	"propdesk/internal/httputil"
)

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

// Me echoes the identity carried by the bearer token.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := FromContext(r.Context())
	if !ok {
		httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}
