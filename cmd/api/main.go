package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"propdesk/internal/admin"
	"propdesk/internal/app"
	"propdesk/internal/auth"
	"propdesk/internal/challenges"
	"propdesk/internal/config"
	"propdesk/internal/health"
	"propdesk/internal/httpserver"
	"propdesk/internal/leaderboard"
	"propdesk/internal/logging"
	"propdesk/internal/scheduler"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.Production())
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()
	if err := run(cfg, logger); err != nil {
		logger.Fatal("api stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	if cfg.UIDist != "" {
		if _, err := os.Stat(cfg.UIDist); err != nil {
			return err
		}
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.DailyResetCron != "" {
		runner := scheduler.New(logger.Named("scheduler"), ctx, 5*time.Minute)
		if _, err := runner.Add("daily_reset", cfg.DailyResetCron, func(ctx context.Context) error {
			_, err := a.Challenges.ResetAllDaily(ctx)
			return err
		}); err != nil {
			return err
		}
		runner.Start()
		defer runner.Stop()
	}

	router := httpserver.NewRouter(httpserver.RouterDeps{
		ChallengesHandler:  challenges.NewHandler(a.Challenges, a.Plans, logger.Named("http")),
		LeaderboardHandler: leaderboard.NewHandler(leaderboard.NewService(a.Store), logger.Named("http")),
		AdminHandler:       admin.NewHandler(a.Challenges, logger.Named("admin")),
		AuthHandler:        auth.NewHandler(),
		HealthHandler:      health.NewHandler(a.Store, cfg.StoreDriver, time.Now()),
		AuthService:        a.Auth,
		InternalToken:      cfg.InternalToken,
		WSHandler:          httpserver.NewWSHandler(a.Bus, a.Auth, cfg.WebSocketOrigin, logger.Named("ws")),
		Logger:             logger.Named("http"),
		RequestTimeout:     cfg.RequestTimeout,
		RateLimit:          httpserver.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		TrustProxy:         cfg.TrustProxy,
		UIDist:             cfg.UIDist,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("server listening",
		zap.String("addr", cfg.HTTPAddr),
		zap.String("mode", cfg.Mode),
		zap.String("store", cfg.StoreDriver))
	if cfg.UIDist != "" {
		logger.Info("serving ui", zap.String("dir", cfg.UIDist))
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
