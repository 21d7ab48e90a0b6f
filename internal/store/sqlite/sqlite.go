// Package sqlite is a single-file store for small deployments and local
// development. Decimals and timestamps are stored as text.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"propdesk/internal/model"
	"propdesk/internal/store"
	"propdesk/internal/types"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

var _ store.Store = (*Store)(nil)

//go:embed schema.sql
var schema string

// Fixed width so text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const challengeColumns = `id, owner_id, display_name, plan_type, starting_balance, current_balance, equity,
	daily_start_balance, daily_pnl, daily_pnl_pct, total_pnl, total_pnl_pct, max_daily_loss_pct,
	max_total_loss_pct, profit_target_pct, status, failure_reason, total_trades, winning_trades,
	last_trade_date, created_at, updated_at`

const tradeColumns = `id, challenge_id, symbol, side, quantity, entry_price, exit_price, pnl, pnl_pct, status,
	open_time, close_time`

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema. Use
// ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	// One connection serialises every unit of work and keeps a :memory:
	// database alive for the lifetime of the store.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	if _, err := db.Exec("pragma foreign_keys = on"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) CreateChallenge(ctx context.Context, c model.Challenge) error {
	_, err := s.db.ExecContext(ctx, `insert into challenges (`+challengeColumns+`)
		values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.OwnerID, c.DisplayName, string(c.PlanType), c.StartingBalance.String(), c.CurrentBalance.String(),
		c.Equity.String(), c.DailyStartBalance.String(), c.DailyPnL.String(), c.DailyPnLPct.String(),
		c.TotalPnL.String(), c.TotalPnLPct.String(), c.MaxDailyLossPct.String(), c.MaxTotalLossPct.String(),
		c.ProfitTargetPct.String(), string(c.Status), c.FailureReason, c.TotalTrades, c.WinningTrades,
		formatTimePtr(c.LastTradeDate), formatTime(c.CreatedAt), formatTime(c.UpdatedAt))
	return err
}

func (s *Store) GetChallenge(ctx context.Context, id string) (model.Challenge, error) {
	return getChallenge(ctx, s.db, id)
}

func getChallenge(ctx context.Context, q queryer, id string) (model.Challenge, error) {
	c, err := scanChallenge(q.QueryRowContext(ctx, "select "+challengeColumns+" from challenges where id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Challenge{}, store.ErrNotFound
	}
	return c, err
}

func (s *Store) ListChallenges(ctx context.Context, f store.Filter) ([]model.Challenge, error) {
	rows, err := s.db.QueryContext(ctx, `select `+challengeColumns+` from challenges
		where (? = '' or owner_id = ?) and (? = '' or status = ?)
		order by created_at desc, id asc`, f.OwnerID, f.OwnerID, string(f.Status), string(f.Status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Challenge, 0)
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) DeleteChallenge(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "delete from challenges where id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetTrade(ctx context.Context, id string) (model.Trade, error) {
	t, err := scanTrade(s.db.QueryRowContext(ctx, "select "+tradeColumns+" from trades where id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Trade{}, store.ErrNotFound
	}
	return t, err
}

func (s *Store) ListTrades(ctx context.Context, challengeID string) ([]model.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `select `+tradeColumns+` from trades
		where challenge_id = ? order by open_time desc, id asc`, challengeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Trade, 0)
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) UpdateChallenge(ctx context.Context, id string, fn store.UpdateFunc) (model.Challenge, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Challenge{}, err
	}
	defer tx.Rollback()

	c, err := getChallenge(ctx, tx, id)
	if err != nil {
		return model.Challenge{}, err
	}
	if err := fn(ctx, &sqliteTx{tx: tx, challengeID: c.ID}, &c); err != nil {
		return model.Challenge{}, err
	}
	_, err = tx.ExecContext(ctx, `update challenges set display_name = ?, current_balance = ?, equity = ?,
		daily_start_balance = ?, daily_pnl = ?, daily_pnl_pct = ?, total_pnl = ?, total_pnl_pct = ?,
		status = ?, failure_reason = ?, total_trades = ?, winning_trades = ?, last_trade_date = ?, updated_at = ?
		where id = ?`,
		c.DisplayName, c.CurrentBalance.String(), c.Equity.String(), c.DailyStartBalance.String(),
		c.DailyPnL.String(), c.DailyPnLPct.String(), c.TotalPnL.String(), c.TotalPnLPct.String(),
		string(c.Status), c.FailureReason, c.TotalTrades, c.WinningTrades, formatTimePtr(c.LastTradeDate),
		formatTime(c.UpdatedAt), c.ID)
	if err != nil {
		return model.Challenge{}, err
	}
	if err := ctx.Err(); err != nil {
		return model.Challenge{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Challenge{}, err
	}
	return c, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

type sqliteTx struct {
	tx          *sql.Tx
	challengeID string
}

func (t *sqliteTx) Trade(ctx context.Context, id string) (model.Trade, error) {
	tr, err := scanTrade(t.tx.QueryRowContext(ctx, "select "+tradeColumns+" from trades where id = ? and challenge_id = ?", id, t.challengeID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Trade{}, store.ErrNotFound
	}
	return tr, err
}

func (t *sqliteTx) InsertTrade(ctx context.Context, tr model.Trade) error {
	_, err := t.tx.ExecContext(ctx, `insert into trades (`+tradeColumns+`)
		values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tr.ID, t.challengeID, tr.Symbol, string(tr.Side), tr.Quantity.String(), tr.EntryPrice.String(),
		formatDecimalPtr(tr.ExitPrice), tr.PnL.String(), tr.PnLPct.String(), string(tr.Status),
		formatTime(tr.OpenTime), formatTimePtr(tr.CloseTime))
	return err
}

func (t *sqliteTx) SaveTrade(ctx context.Context, tr model.Trade) error {
	res, err := t.tx.ExecContext(ctx, `update trades set exit_price = ?, pnl = ?, pnl_pct = ?, status = ?, close_time = ?
		where id = ? and challenge_id = ?`,
		formatDecimalPtr(tr.ExitPrice), tr.PnL.String(), tr.PnLPct.String(), string(tr.Status),
		formatTimePtr(tr.CloseTime), tr.ID, t.challengeID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChallenge(row scanner) (model.Challenge, error) {
	var c model.Challenge
	var plan, status, created, updated string
	var lastTrade sql.NullString
	err := row.Scan(&c.ID, &c.OwnerID, &c.DisplayName, &plan, &c.StartingBalance, &c.CurrentBalance, &c.Equity,
		&c.DailyStartBalance, &c.DailyPnL, &c.DailyPnLPct, &c.TotalPnL, &c.TotalPnLPct, &c.MaxDailyLossPct,
		&c.MaxTotalLossPct, &c.ProfitTargetPct, &status, &c.FailureReason, &c.TotalTrades, &c.WinningTrades,
		&lastTrade, &created, &updated)
	if err != nil {
		return model.Challenge{}, err
	}
	c.PlanType = types.PlanType(plan)
	c.Status = types.ChallengeStatus(status)
	if c.CreatedAt, err = parseTime(created); err != nil {
		return model.Challenge{}, err
	}
	if c.UpdatedAt, err = parseTime(updated); err != nil {
		return model.Challenge{}, err
	}
	if c.LastTradeDate, err = parseTimePtr(lastTrade); err != nil {
		return model.Challenge{}, err
	}
	return c, nil
}

func scanTrade(row scanner) (model.Trade, error) {
	var t model.Trade
	var side, status, opened string
	var exit decimal.NullDecimal
	var closed sql.NullString
	err := row.Scan(&t.ID, &t.ChallengeID, &t.Symbol, &side, &t.Quantity, &t.EntryPrice, &exit, &t.PnL,
		&t.PnLPct, &status, &opened, &closed)
	if err != nil {
		return model.Trade{}, err
	}
	t.Side = types.TradeSide(side)
	t.Status = types.TradeStatus(status)
	if exit.Valid {
		v := exit.Decimal
		t.ExitPrice = &v
	}
	if t.OpenTime, err = parseTime(opened); err != nil {
		return model.Trade{}, err
	}
	if t.CloseTime, err = parseTimePtr(closed); err != nil {
		return model.Trade{}, err
	}
	return t, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func formatDecimalPtr(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
