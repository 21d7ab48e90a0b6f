// Package postgres is the production store, built on a pgx pool and the
// schema in internal/db/migrations.
package postgres

import (
	"context"
	"errors"

	"propdesk/internal/model"
	"propdesk/internal/store"
	"propdesk/internal/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ store.Store = (*Store)(nil)

const challengeColumns = `id, owner_id, display_name, plan_type, starting_balance, current_balance, equity,
	daily_start_balance, daily_pnl, daily_pnl_pct, total_pnl, total_pnl_pct, max_daily_loss_pct,
	max_total_loss_pct, profit_target_pct, status, failure_reason, total_trades, winning_trades,
	last_trade_date, created_at, updated_at`

const tradeColumns = `id, challenge_id, symbol, side, quantity, entry_price, exit_price, pnl, pnl_pct, status,
	open_time, close_time`

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) CreateChallenge(ctx context.Context, c model.Challenge) error {
	_, err := s.pool.Exec(ctx, `insert into challenges (`+challengeColumns+`)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		c.ID, c.OwnerID, c.DisplayName, string(c.PlanType), c.StartingBalance, c.CurrentBalance, c.Equity,
		c.DailyStartBalance, c.DailyPnL, c.DailyPnLPct, c.TotalPnL, c.TotalPnLPct, c.MaxDailyLossPct,
		c.MaxTotalLossPct, c.ProfitTargetPct, string(c.Status), c.FailureReason, c.TotalTrades, c.WinningTrades,
		c.LastTradeDate, c.CreatedAt, c.UpdatedAt)
	return err
}

func (s *Store) GetChallenge(ctx context.Context, id string) (model.Challenge, error) {
	return getChallenge(ctx, s.pool, id, false)
}

func getChallenge(ctx context.Context, q querier, id string, forUpdate bool) (model.Challenge, error) {
	if !validID(id) {
		return model.Challenge{}, store.ErrNotFound
	}
	sql := "select " + challengeColumns + " from challenges where id = $1"
	if forUpdate {
		sql += " for update"
	}
	c, err := scanChallenge(q.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Challenge{}, store.ErrNotFound
	}
	return c, err
}

func (s *Store) ListChallenges(ctx context.Context, f store.Filter) ([]model.Challenge, error) {
	rows, err := s.pool.Query(ctx, `select `+challengeColumns+` from challenges
		where ($1 = '' or owner_id = $1) and ($2 = '' or status = $2)
		order by created_at desc, id asc`, f.OwnerID, string(f.Status))
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
	if !validID(id) {
		return store.ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, "delete from challenges where id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetTrade(ctx context.Context, id string) (model.Trade, error) {
	if !validID(id) {
		return model.Trade{}, store.ErrNotFound
	}
	t, err := scanTrade(s.pool.QueryRow(ctx, "select "+tradeColumns+" from trades where id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Trade{}, store.ErrNotFound
	}
	return t, err
}

func (s *Store) ListTrades(ctx context.Context, challengeID string) ([]model.Trade, error) {
	if !validID(challengeID) {
		return []model.Trade{}, nil
	}
	rows, err := s.pool.Query(ctx, `select `+tradeColumns+` from trades
		where challenge_id = $1 order by open_time desc, id asc`, challengeID)
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
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Challenge{}, err
	}
	defer tx.Rollback(ctx)

	c, err := getChallenge(ctx, tx, id, true)
	if err != nil {
		return model.Challenge{}, err
	}
	if err := fn(ctx, &pgTx{tx: tx, challengeID: c.ID}, &c); err != nil {
		return model.Challenge{}, err
	}
	_, err = tx.Exec(ctx, `update challenges set display_name = $2, current_balance = $3, equity = $4,
		daily_start_balance = $5, daily_pnl = $6, daily_pnl_pct = $7, total_pnl = $8, total_pnl_pct = $9,
		status = $10, failure_reason = $11, total_trades = $12, winning_trades = $13, last_trade_date = $14,
		updated_at = $15
		where id = $1`,
		c.ID, c.DisplayName, c.CurrentBalance, c.Equity, c.DailyStartBalance, c.DailyPnL, c.DailyPnLPct,
		c.TotalPnL, c.TotalPnLPct, string(c.Status), c.FailureReason, c.TotalTrades, c.WinningTrades,
		c.LastTradeDate, c.UpdatedAt)
	if err != nil {
		return model.Challenge{}, err
	}
	if err := ctx.Err(); err != nil {
		return model.Challenge{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Challenge{}, err
	}
	return c, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

type pgTx struct {
	tx          pgx.Tx
	challengeID string
}

func (t *pgTx) Trade(ctx context.Context, id string) (model.Trade, error) {
	if !validID(id) {
		return model.Trade{}, store.ErrNotFound
	}
	tr, err := scanTrade(t.tx.QueryRow(ctx, "select "+tradeColumns+" from trades where id = $1 and challenge_id = $2 for update", id, t.challengeID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Trade{}, store.ErrNotFound
	}
	return tr, err
}

func (t *pgTx) InsertTrade(ctx context.Context, tr model.Trade) error {
	_, err := t.tx.Exec(ctx, `insert into trades (`+tradeColumns+`)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		tr.ID, t.challengeID, tr.Symbol, string(tr.Side), tr.Quantity, tr.EntryPrice, tr.ExitPrice, tr.PnL,
		tr.PnLPct, string(tr.Status), tr.OpenTime, tr.CloseTime)
	return err
}

func (t *pgTx) SaveTrade(ctx context.Context, tr model.Trade) error {
	tag, err := t.tx.Exec(ctx, `update trades set exit_price = $3, pnl = $4, pnl_pct = $5, status = $6, close_time = $7
		where id = $1 and challenge_id = $2`,
		tr.ID, t.challengeID, tr.ExitPrice, tr.PnL, tr.PnLPct, string(tr.Status), tr.CloseTime)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// validID reports whether id can be compared against a uuid column. Anything
// else cannot match a row.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func scanChallenge(row pgx.Row) (model.Challenge, error) {
	var c model.Challenge
	var plan, status string
	err := row.Scan(&c.ID, &c.OwnerID, &c.DisplayName, &plan, &c.StartingBalance, &c.CurrentBalance, &c.Equity,
		&c.DailyStartBalance, &c.DailyPnL, &c.DailyPnLPct, &c.TotalPnL, &c.TotalPnLPct, &c.MaxDailyLossPct,
		&c.MaxTotalLossPct, &c.ProfitTargetPct, &status, &c.FailureReason, &c.TotalTrades, &c.WinningTrades,
		&c.LastTradeDate, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return model.Challenge{}, err
	}
	c.PlanType = types.PlanType(plan)
	c.Status = types.ChallengeStatus(status)
	return c, nil
}

func scanTrade(row pgx.Row) (model.Trade, error) {
	var t model.Trade
	var side, status string
	err := row.Scan(&t.ID, &t.ChallengeID, &t.Symbol, &side, &t.Quantity, &t.EntryPrice, &t.ExitPrice, &t.PnL,
		&t.PnLPct, &status, &t.OpenTime, &t.CloseTime)
	if err != nil {
		return model.Trade{}, err
	}
	t.Side = types.TradeSide(side)
	t.Status = types.TradeStatus(status)
	return t, nil
}
