// Package leaderboard ranks passed challenges by total P&L percentage.
package leaderboard

import (
	"context"
	"sort"
	"strings"

	"propdesk/internal/accounts"
	"propdesk/internal/model"
	"propdesk/internal/store"
	"propdesk/internal/types"

	"github.com/shopspring/decimal"
)

const Size = 10

type Entry struct {
	Rank            int             `json:"rank"`
	Name            string          `json:"name"`
	PlanType        types.PlanType  `json:"planType"`
	StartingBalance decimal.Decimal `json:"startingBalance"`
	CurrentBalance  decimal.Decimal `json:"currentBalance"`
	TotalPnL        decimal.Decimal `json:"totalPnl"`
	TotalPnLPct     decimal.Decimal `json:"totalPnlPct"`
	TotalTrades     int             `json:"totalTrades"`
	WinningTrades   int             `json:"winningTrades"`
	WinRate         decimal.Decimal `json:"winRate"`
}

// Key identifies a trader on the board: the display name when set, otherwise
// the owner id.
func Key(c model.Challenge) string {
	if name := strings.TrimSpace(c.DisplayName); name != "" {
		return name
	}
	return c.OwnerID
}

// Build keeps the best passed challenge per key and returns at most Size
// entries ordered by total P&L percentage, highest first.
func Build(challenges []model.Challenge) []Entry {
	best := make(map[string]model.Challenge)
	for _, c := range challenges {
		if c.Status != types.ChallengeStatusPassed {
			continue
		}
		k := Key(c)
		if cur, ok := best[k]; ok && !c.TotalPnLPct.GreaterThan(cur.TotalPnLPct) {
			continue
		}
		best[k] = c
	}

	keys := make([]string, 0, len(best))
	for k := range best {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := best[keys[i]].TotalPnLPct, best[keys[j]].TotalPnLPct
		if !a.Equal(b) {
			return a.GreaterThan(b)
		}
		return keys[i] < keys[j]
	})
	if len(keys) > Size {
		keys = keys[:Size]
	}

	out := make([]Entry, 0, len(keys))
	for i, k := range keys {
		c := best[k]
		out = append(out, Entry{
			Rank:            i + 1,
			Name:            k,
			PlanType:        c.PlanType,
			StartingBalance: c.StartingBalance,
			CurrentBalance:  c.CurrentBalance,
			TotalPnL:        c.TotalPnL,
			TotalPnLPct:     c.TotalPnLPct,
			TotalTrades:     c.TotalTrades,
			WinningTrades:   c.WinningTrades,
			WinRate:         accounts.Pct(decimal.NewFromInt(int64(c.WinningTrades)), decimal.NewFromInt(int64(c.TotalTrades))).Round(2),
		})
	}
	return out
}

type Lister interface {
	ListChallenges(ctx context.Context, f store.Filter) ([]model.Challenge, error)
}

type Service struct {
	challenges Lister
}

func NewService(challenges Lister) *Service {
	return &Service{challenges: challenges}
}

func (s *Service) Top(ctx context.Context) ([]Entry, error) {
	passed, err := s.challenges.ListChallenges(ctx, store.Filter{Status: types.ChallengeStatusPassed})
	if err != nil {
		return nil, err
	}
	return Build(passed), nil
}
