// Package accounts owns a challenge account's balance and performance
// aggregates: it reserves trade cost on open and folds settlements back in on
// close.
package accounts

import (
	"strings"
	"time"

	"propdesk/internal/apperr"
	"propdesk/internal/model"
	"propdesk/internal/plans"
	"propdesk/internal/types"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

var ErrInsufficientBalance = apperr.New(apperr.KindInsufficientBalance, "insufficient balance")

const maxDisplayNameRunes = 64

// New returns an active challenge seeded from plan, with every balance equal
// to the plan's starting balance and zeroed P&L.
func New(id, ownerID, displayName string, plan plans.Plan, now time.Time) model.Challenge {
	start := plan.StartingBalance
	return model.Challenge{
		ID:                id,
		OwnerID:           ownerID,
		DisplayName:       strings.TrimSpace(displayName),
		PlanType:          plan.ID,
		StartingBalance:   start,
		CurrentBalance:    start,
		Equity:            start,
		DailyStartBalance: start,
		DailyPnL:          decimal.Zero,
		DailyPnLPct:       decimal.Zero,
		TotalPnL:          decimal.Zero,
		TotalPnLPct:       decimal.Zero,
		MaxDailyLossPct:   plan.MaxDailyLossPct,
		MaxTotalLossPct:   plan.MaxTotalLossPct,
		ProfitTargetPct:   plan.ProfitTargetPct,
		Status:            types.ChallengeStatusActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// Reserve debits the cost of a new position. The account is left untouched
// when the balance does not cover it.
func Reserve(acc *model.Challenge, cost decimal.Decimal, now time.Time) error {
	if cost.GreaterThan(acc.CurrentBalance) {
		return ErrInsufficientBalance
	}
	acc.CurrentBalance = acc.CurrentBalance.Sub(cost)
	acc.Equity = acc.CurrentBalance
	acc.TotalTrades++
	acc.LastTradeDate = timePtr(now)
	acc.UpdatedAt = now
	return nil
}

// Settle returns the reserved cost plus the realised P&L to the balance and
// recomputes the aggregates.
func Settle(acc *model.Challenge, s model.Settlement, now time.Time) {
	acc.CurrentBalance = acc.CurrentBalance.Add(s.Cost).Add(s.PnL)
	acc.Equity = acc.CurrentBalance
	acc.TotalPnL = acc.TotalPnL.Add(s.PnL)
	acc.TotalPnLPct = Pct(acc.TotalPnL, acc.StartingBalance)
	acc.DailyPnL = acc.DailyPnL.Add(s.PnL)
	acc.DailyPnLPct = Pct(acc.DailyPnL, acc.DailyStartBalance)
	if s.PnL.IsPositive() {
		acc.WinningTrades++
	}
	acc.LastTradeDate = timePtr(now)
	acc.UpdatedAt = now
}

// ResetDaily starts a new trading day. The day opens at realised equity
// (starting balance plus total P&L) so cost reserved by open positions does not
// count as a loss.
func ResetDaily(acc *model.Challenge, now time.Time) bool {
	if acc.Status != types.ChallengeStatusActive {
		return false
	}
	acc.DailyStartBalance = acc.StartingBalance.Add(acc.TotalPnL)
	acc.DailyPnL = decimal.Zero
	acc.DailyPnLPct = decimal.Zero
	acc.UpdatedAt = now
	return true
}

// Pct is part/base*100, defined as zero when base is zero. It is the single
// formula used for every reported P&L percentage.
func Pct(part, base decimal.Decimal) decimal.Decimal {
	if base.IsZero() {
		return decimal.Zero
	}
	return part.Div(base).Mul(hundred)
}

// Update lists the only fields a client may change on a challenge.
type Update struct {
	DisplayName *string `json:"displayName"`
}

func ApplyUpdate(acc *model.Challenge, u Update, now time.Time) error {
	if u.DisplayName == nil {
		return apperr.Validation("nothing to update")
	}
	name := strings.TrimSpace(*u.DisplayName)
	if len([]rune(name)) > maxDisplayNameRunes {
		return apperr.Validation("display name is too long (max 64 chars)")
	}
	acc.DisplayName = name
	acc.UpdatedAt = now
	return nil
}

type Metrics struct {
	TotalPnLPct     decimal.Decimal `json:"totalPnlPct"`
	DailyPnLPct     decimal.Decimal `json:"dailyPnlPct"`
	CurrentBalance  decimal.Decimal `json:"currentBalance"`
	StartingBalance decimal.Decimal `json:"startingBalance"`
}

func MetricsOf(acc model.Challenge) Metrics {
	return Metrics{
		TotalPnLPct:     acc.TotalPnLPct,
		DailyPnLPct:     acc.DailyPnLPct,
		CurrentBalance:  acc.CurrentBalance,
		StartingBalance: acc.StartingBalance,
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
