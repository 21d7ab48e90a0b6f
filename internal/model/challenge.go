package model

import (
	"time"

	"propdesk/internal/types"

	"github.com/shopspring/decimal"
)

type Challenge struct {
	ID                string                `json:"id"`
	OwnerID           string                `json:"owner_id"`
	DisplayName       string                `json:"display_name,omitempty"`
	PlanType          types.PlanType        `json:"plan_type"`
	StartingBalance   decimal.Decimal       `json:"starting_balance"`
	CurrentBalance    decimal.Decimal       `json:"current_balance"`
	Equity            decimal.Decimal       `json:"equity"`
	DailyStartBalance decimal.Decimal       `json:"daily_start_balance"`
	DailyPnL          decimal.Decimal       `json:"daily_pnl"`
	DailyPnLPct       decimal.Decimal       `json:"daily_pnl_pct"`
	TotalPnL          decimal.Decimal       `json:"total_pnl"`
	TotalPnLPct       decimal.Decimal       `json:"total_pnl_pct"`
	MaxDailyLossPct   decimal.Decimal       `json:"max_daily_loss_pct"`
	MaxTotalLossPct   decimal.Decimal       `json:"max_total_loss_pct"`
	ProfitTargetPct   decimal.Decimal       `json:"profit_target_pct"`
	Status            types.ChallengeStatus `json:"status"`
	FailureReason     string                `json:"failure_reason,omitempty"`
	TotalTrades       int                   `json:"total_trades"`
	WinningTrades     int                   `json:"winning_trades"`
	LastTradeDate     *time.Time            `json:"last_trade_date,omitempty"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
}

// Settlement is what closing a trade hands back to its challenge: the cost
// reserved at open and the realised P&L.
type Settlement struct {
	Cost decimal.Decimal `json:"cost"`
	PnL  decimal.Decimal `json:"pnl"`
}
