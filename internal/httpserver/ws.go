package httpserver

import (
	"net/http"
	"strings"

	"propdesk/internal/auth"
	"propdesk/internal/events"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSHandler streams the caller's challenge events. Admins see every
// challenge.
type WSHandler struct {
	bus      *events.Bus
	authSvc  *auth.Service
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(bus *events.Bus, authSvc *auth.Service, origin string, log *zap.Logger) *WSHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WSHandler{
		bus:     bus,
		authSvc: authSvc,
		log:     log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return allowOrigin(r, origin) },
		},
	}
}

func allowOrigin(r *http.Request, origin string) bool {
	if origin == "*" {
		return true
	}
	reqOrigin := r.Header.Get("Origin")
	if reqOrigin == "" {
		return true
	}
	// localhost and 127.0.0.1 are interchangeable in development
	if strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1") {
		if strings.Contains(reqOrigin, "localhost") || strings.Contains(reqOrigin, "127.0.0.1") {
			return true
		}
	}
	return strings.EqualFold(reqOrigin, origin)
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// browsers cannot set headers on a websocket handshake
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	p, err := h.authSvc.ParseToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	// subscribe before the handshake completes so nothing published after
	// the client sees the upgrade is missed
	sub := h.bus.Subscribe()
	defer h.bus.Unsubscribe(sub)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	h.log.Debug("ws connected", zap.String("user_id", p.UserID))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	for {
		select {
		case evt, ok := <-sub:
			if !ok {
				return
			}
			if !p.IsAdmin() && evt.OwnerID != p.UserID {
				continue
			}
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-done:
			h.log.Debug("ws disconnected", zap.String("user_id", p.UserID))
			return
		}
	}
}
