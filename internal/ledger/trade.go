// Package ledger owns individual trade records: opening a position against a
// challenge account and closing it into a settlement.
package ledger

import (
	"strings"
	"time"

	"propdesk/internal/accounts"
	"propdesk/internal/apperr"
	"propdesk/internal/lifecycle"
	"propdesk/internal/model"
	"propdesk/internal/types"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

var ErrAlreadyClosed = apperr.New(apperr.KindAlreadyClosed, "trade is already closed")

type OpenInput struct {
	TradeID  string
	Symbol   string
	Side     types.TradeSide
	Quantity decimal.Decimal
	Price    decimal.Decimal
}

func (in OpenInput) normalize() OpenInput {
	in.Symbol = strings.ToUpper(strings.TrimSpace(in.Symbol))
	in.Side = types.TradeSide(strings.ToLower(strings.TrimSpace(string(in.Side))))
	return in
}

// Validate reports the first malformed field, if any.
func (in OpenInput) Validate() error {
	return in.normalize().validate()
}

func (in OpenInput) validate() error {
	if in.Symbol == "" {
		return apperr.Validation("symbol is required")
	}
	if !in.Side.Valid() {
		return apperr.Validation("side must be buy or sell")
	}
	if err := checkAmount("quantity", in.Quantity); err != nil {
		return err
	}
	if err := checkAmount("price", in.Price); err != nil {
		return err
	}
	if !in.Quantity.Mul(in.Price).Round(model.Scale).IsPositive() {
		return apperr.Validation("trade value rounds to zero")
	}
	return nil
}

// checkAmount enforces what the ledger can store exactly: positive, at most
// model.Scale decimal places and below model.MaxAmount.
func checkAmount(field string, v decimal.Decimal) error {
	switch {
	case !v.IsPositive():
		return apperr.Newf(apperr.KindValidation, "%s must be positive", field)
	case !v.Equal(v.Truncate(model.Scale)):
		return apperr.Newf(apperr.KindValidation, "%s must have at most %d decimal places", field, model.Scale)
	case v.GreaterThanOrEqual(model.MaxAmount):
		return apperr.Newf(apperr.KindValidation, "%s must be less than %s", field, model.MaxAmount)
	}
	return nil
}

// Open reserves quantity*price from acc and returns the new open trade. acc is
// only modified when the trade is accepted.
func Open(acc *model.Challenge, in OpenInput, now time.Time) (model.Trade, error) {
	in = in.normalize()
	if err := in.validate(); err != nil {
		return model.Trade{}, err
	}
	if err := lifecycle.RequireActive(acc.Status); err != nil {
		return model.Trade{}, err
	}
	tr := model.Trade{
		ID:          in.TradeID,
		ChallengeID: acc.ID,
		Symbol:      in.Symbol,
		Side:        in.Side,
		Quantity:    in.Quantity,
		EntryPrice:  in.Price,
		PnL:         decimal.Zero,
		PnLPct:      decimal.Zero,
		Status:      types.TradeStatusOpen,
		OpenTime:    now,
	}
	if err := accounts.Reserve(acc, tr.Cost(), now); err != nil {
		return model.Trade{}, err
	}
	return tr, nil
}

// Close realises t at exit and returns the delta its challenge must settle.
func Close(t *model.Trade, exit decimal.Decimal, now time.Time) (model.Settlement, error) {
	if t.Status != types.TradeStatusOpen {
		return model.Settlement{}, ErrAlreadyClosed
	}
	if err := checkAmount("exitPrice", exit); err != nil {
		return model.Settlement{}, err
	}
	pnl, pct := PnL(t.Side, t.EntryPrice, exit, t.Quantity)
	if pnl.Abs().GreaterThanOrEqual(model.MaxAmount) {
		return model.Settlement{}, apperr.Validation("exitPrice is out of range for this trade")
	}
	exitPrice := exit
	closeTime := now
	t.ExitPrice = &exitPrice
	t.PnL = pnl
	t.PnLPct = pct
	t.CloseTime = &closeTime
	t.Status = types.TradeStatusClosed
	return model.Settlement{Cost: t.Cost(), PnL: pnl}, nil
}

// PnL returns the realised profit, rounded to model.Scale, and its percentage
// of the entry price. The percentage is zero when entry is zero.
func PnL(side types.TradeSide, entry, exit, qty decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	diff := exit.Sub(entry)
	if side == types.TradeSideSell {
		diff = entry.Sub(exit)
	}
	pnl := diff.Mul(qty).Round(model.Scale)
	if entry.IsZero() {
		return pnl, decimal.Zero
	}
	return pnl, diff.Div(entry).Mul(hundred)
}
