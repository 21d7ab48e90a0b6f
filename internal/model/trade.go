package model

import (
	"time"

	"propdesk/internal/types"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places kept for quantities, prices and
// money. Stored amounts must stay below MaxAmount.
const Scale = 8

var MaxAmount = decimal.New(1, 12)

type Trade struct {
	ID          string            `json:"id"`
	ChallengeID string            `json:"challenge_id"`
	Symbol      string            `json:"symbol"`
	Side        types.TradeSide   `json:"side"`
	Quantity    decimal.Decimal   `json:"quantity"`
	EntryPrice  decimal.Decimal   `json:"entry_price"`
	ExitPrice   *decimal.Decimal  `json:"exit_price"`
	PnL         decimal.Decimal   `json:"pnl"`
	PnLPct      decimal.Decimal   `json:"pnl_pct"`
	Status      types.TradeStatus `json:"status"`
	OpenTime    time.Time         `json:"open_time"`
	CloseTime   *time.Time        `json:"close_time,omitempty"`
}

// Cost is the amount reserved when the trade opened, rounded to Scale.
func (t Trade) Cost() decimal.Decimal {
	return t.Quantity.Mul(t.EntryPrice).Round(Scale)
}
