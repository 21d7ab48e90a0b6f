package httpserver

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"propdesk/internal/admin"
	"propdesk/internal/auth"
	"propdesk/internal/challenges"
	"propdesk/internal/health"
	"propdesk/internal/leaderboard"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type RouterDeps struct {
	ChallengesHandler  *challenges.Handler
	LeaderboardHandler *leaderboard.Handler
	AdminHandler       *admin.Handler
	AuthHandler        *auth.Handler
	HealthHandler      *health.Handler
	AuthService        *auth.Service
	InternalToken      string
	WSHandler          http.Handler
	Logger             *zap.Logger
	RequestTimeout     time.Duration
	RateLimit          *RateLimiter
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	// Only set it when a proxy in front of the server overwrites them.
	TrustProxy bool
	UIDist     string
}

func NewRouter(d RouterDeps) http.Handler {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if d.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)

	// CORS
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				origin = "*"
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Internal-Token")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Use(SecurityHeaders)
	if d.RateLimit != nil {
		r.Use(d.RateLimit.Middleware)
	}

	r.Get("/health", d.HealthHandler.Live)
	r.Get("/health/ready", d.HealthHandler.Ready)
	r.With(InternalAuth(d.InternalToken)).Get("/health/full", d.HealthHandler.Full)

	r.Route("/v1", func(r chi.Router) {
		// long-lived, stays outside the request timeout
		if d.WSHandler != nil {
			r.Get("/ws", d.WSHandler.ServeHTTP)
		}

		r.Group(func(r chi.Router) {
			if d.RequestTimeout > 0 {
				r.Use(middleware.Timeout(d.RequestTimeout))
			}
			r.Get("/leaderboard", d.LeaderboardHandler.Get)
			r.Get("/plans", d.ChallengesHandler.Plans)

			r.Group(func(r chi.Router) {
				r.Use(WithAuth(d.AuthService))
				r.Get("/me", d.AuthHandler.Me)
				r.Post("/trades/open", d.ChallengesHandler.OpenTrade)
				r.Post("/trades/close", d.ChallengesHandler.CloseTrade)
				r.Post("/challenges/evaluate", d.ChallengesHandler.Evaluate)
				r.Get("/challenges", d.ChallengesHandler.List)
				r.Get("/challenges/{id}", d.ChallengesHandler.Get)
				r.Get("/challenges/{id}/trades", d.ChallengesHandler.ListTrades)
				r.Patch("/challenges/{id}", d.ChallengesHandler.Update)

				r.Route("/admin", func(r chi.Router) {
					r.Use(admin.RequireAdmin)
					r.Get("/challenges", d.AdminHandler.ListChallenges)
					r.Delete("/challenges/{id}", d.AdminHandler.DeleteChallenge)
					r.Post("/challenges/reset-daily", d.AdminHandler.ResetDaily)
					r.Post("/leaderboard/seed", d.AdminHandler.SeedLeaderboard)
				})
			})

			r.Route("/internal", func(r chi.Router) {
				r.Use(InternalAuth(d.InternalToken))
				r.Post("/challenges", d.ChallengesHandler.Issue)
				r.Post("/challenges/reset-daily", d.ChallengesHandler.ResetDaily)
			})
		})
	})
	if d.UIDist != "" {
		r.NotFound(spaHandler(d.UIDist).ServeHTTP)
	}
	return r
}

func spaHandler(dir string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if path == "/" {
			path = "/index.html"
		}
		full := filepath.Join(dir, filepath.Clean("/"+path))
		if info, err := os.Stat(full); err == nil && !info.IsDir() {
			http.ServeFile(w, r, full)
			return
		}
		index := filepath.Join(dir, "index.html")
		if _, err := os.Stat(index); err != nil {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, index)
	})
}
