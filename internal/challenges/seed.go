package challenges

import (
	"context"

	"propdesk/internal/accounts"
	"propdesk/internal/model"
	"propdesk/internal/store"
	"propdesk/internal/types"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type demoTrader struct {
	email, name string
	plan        types.PlanType
	status      types.ChallengeStatus

	current, dailyStart, dailyPnL, dailyPct, totalPnL, totalPct string
	trades, wins                                                int
}

var demoTraders = []demoTrader{
	{"youssef.alami@gmail.com", "Youssef Alami", types.PlanElite, types.ChallengeStatusPassed, "23200", "22800", "400", "1.75", "3200", "16", 34, 24},
	{"fatima.benali@gmail.com", "Fatima Benali", types.PlanPro, types.ChallengeStatusPassed, "11450", "11200", "250", "2.23", "1450", "14.5", 28, 19},
	{"omar.khalil@gmail.com", "Omar Khalil", types.PlanStarter, types.ChallengeStatusPassed, "5620", "5580", "40", "0.72", "620", "12.4", 22, 16},
	{"amina.moussa@gmail.com", "Amina Moussa", types.PlanPro, types.ChallengeStatusActive, "10850", "10700", "150", "1.4", "850", "8.5", 18, 12},
	{"karim.tazi@gmail.com", "Karim Tazi", types.PlanElite, types.ChallengeStatusActive, "21200", "21000", "200", "0.95", "1200", "6", 15, 10},
}

// SeedDemo replaces the demo traders' challenges with a fixed set so the
// leaderboard has something to show. It returns the challenges it created.
func (s *Service) SeedDemo(ctx context.Context) ([]model.Challenge, error) {
	removed := 0
	for _, dt := range demoTraders {
		existing, err := s.store.ListChallenges(ctx, store.Filter{OwnerID: dt.email})
		if err != nil {
			return nil, err
		}
		for _, c := range existing {
			if err := s.store.DeleteChallenge(ctx, c.ID); err != nil {
				return nil, notFound(err, errChallengeNotFound)
			}
			removed++
		}
	}

	now := s.now()
	created := make([]model.Challenge, 0, len(demoTraders))
	for _, dt := range demoTraders {
		plan, err := s.plans.Get(dt.plan)
		if err != nil {
			return nil, err
		}
		c := accounts.New(s.newID(), dt.email, dt.name, plan, now)
		c.CurrentBalance = decimal.RequireFromString(dt.current)
		c.Equity = c.CurrentBalance
		c.DailyStartBalance = decimal.RequireFromString(dt.dailyStart)
		c.DailyPnL = decimal.RequireFromString(dt.dailyPnL)
		c.DailyPnLPct = decimal.RequireFromString(dt.dailyPct)
		c.TotalPnL = decimal.RequireFromString(dt.totalPnL)
		c.TotalPnLPct = decimal.RequireFromString(dt.totalPct)
		c.Status = dt.status
		c.TotalTrades = dt.trades
		c.WinningTrades = dt.wins
		if err := s.store.CreateChallenge(ctx, c); err != nil {
			return nil, err
		}
		created = append(created, c)
	}
	s.log.Info("demo leaderboard seeded", zap.Int("removed", removed), zap.Int("created", len(created)))
	return created, nil
}
