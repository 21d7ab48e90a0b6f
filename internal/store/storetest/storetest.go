// Package storetest is the behaviour every store.Store implementation must
// share. Backends call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"propdesk/internal/model"
	"propdesk/internal/store"
	"propdesk/internal/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) store.Store

var base = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

func Run(t *testing.T, newStore Factory) {
	t.Run("CreateGet", func(t *testing.T) { testCreateGet(t, newStore(t)) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("ListFilter", func(t *testing.T) { testListFilter(t, newStore(t)) })
	t.Run("UpdateCommits", func(t *testing.T) { testUpdateCommits(t, newStore(t)) })
	t.Run("UpdateRollsBack", func(t *testing.T) { testUpdateRollsBack(t, newStore(t)) })
	t.Run("UpdateCanceled", func(t *testing.T) { testUpdateCanceled(t, newStore(t)) })
	t.Run("UpdateMissing", func(t *testing.T) { testUpdateMissing(t, newStore(t)) })
	t.Run("TradeScopedToChallenge", func(t *testing.T) { testTradeScoped(t, newStore(t)) })
	t.Run("ListTradesOrder", func(t *testing.T) { testListTradesOrder(t, newStore(t)) })
	t.Run("DeleteCascades", func(t *testing.T) { testDeleteCascades(t, newStore(t)) })
	t.Run("ConcurrentUpdates", func(t *testing.T) { testConcurrentUpdates(t, newStore(t)) })
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func Challenge(owner string, status types.ChallengeStatus, created time.Time) model.Challenge {
	return model.Challenge{
		ID:                uuid.NewString(),
		OwnerID:           owner,
		PlanType:          types.PlanPro,
		StartingBalance:   d("10000"),
		CurrentBalance:    d("10000"),
		Equity:            d("10000"),
		DailyStartBalance: d("10000"),
		DailyPnL:          decimal.Zero,
		DailyPnLPct:       decimal.Zero,
		TotalPnL:          decimal.Zero,
		TotalPnLPct:       decimal.Zero,
		MaxDailyLossPct:   d("5"),
		MaxTotalLossPct:   d("10"),
		ProfitTargetPct:   d("10"),
		Status:            status,
		CreatedAt:         created,
		UpdatedAt:         created,
	}
}

func trade(challengeID string, opened time.Time) model.Trade {
	return model.Trade{
		ID:          uuid.NewString(),
		ChallengeID: challengeID,
		Symbol:      "EURUSD",
		Side:        types.TradeSideBuy,
		Quantity:    d("10"),
		EntryPrice:  d("100"),
		PnL:         decimal.Zero,
		PnLPct:      decimal.Zero,
		Status:      types.TradeStatusOpen,
		OpenTime:    opened,
	}
}

func AssertChallenge(t *testing.T, want, got model.Challenge) {
	t.Helper()
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.OwnerID, got.OwnerID)
	assert.Equal(t, want.DisplayName, got.DisplayName)
	assert.Equal(t, want.PlanType, got.PlanType)
	assert.Equal(t, want.Status, got.Status)
	assert.Equal(t, want.FailureReason, got.FailureReason)
	assert.Equal(t, want.TotalTrades, got.TotalTrades)
	assert.Equal(t, want.WinningTrades, got.WinningTrades)
	for _, f := range []struct {
		name      string
		want, got decimal.Decimal
	}{
		{"starting_balance", want.StartingBalance, got.StartingBalance},
		{"current_balance", want.CurrentBalance, got.CurrentBalance},
		{"equity", want.Equity, got.Equity},
		{"daily_start_balance", want.DailyStartBalance, got.DailyStartBalance},
		{"daily_pnl", want.DailyPnL, got.DailyPnL},
		{"daily_pnl_pct", want.DailyPnLPct, got.DailyPnLPct},
		{"total_pnl", want.TotalPnL, got.TotalPnL},
		{"total_pnl_pct", want.TotalPnLPct, got.TotalPnLPct},
		{"max_daily_loss_pct", want.MaxDailyLossPct, got.MaxDailyLossPct},
		{"max_total_loss_pct", want.MaxTotalLossPct, got.MaxTotalLossPct},
		{"profit_target_pct", want.ProfitTargetPct, got.ProfitTargetPct},
	} {
		assert.True(t, f.want.Equal(f.got), "%s: want %s, got %s", f.name, f.want, f.got)
	}
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt), "created_at")
	assert.True(t, want.UpdatedAt.Equal(got.UpdatedAt), "updated_at")
	if want.LastTradeDate == nil {
		assert.Nil(t, got.LastTradeDate)
	} else if assert.NotNil(t, got.LastTradeDate) {
		assert.True(t, want.LastTradeDate.Equal(*got.LastTradeDate), "last_trade_date")
	}
}

func testCreateGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	c := Challenge("owner-1", types.ChallengeStatusActive, base)
	c.DisplayName = "Desk One"
	last := base.Add(time.Hour)
	c.LastTradeDate = &last
	require.NoError(t, s.CreateChallenge(ctx, c))

	got, err := s.GetChallenge(ctx, c.ID)
	require.NoError(t, err)
	AssertChallenge(t, c, got)

	assert.Error(t, s.CreateChallenge(ctx, c), "duplicate id")
}

func testGetMissing(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.GetChallenge(ctx, uuid.NewString())
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetTrade(ctx, uuid.NewString())
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.DeleteChallenge(ctx, uuid.NewString()), store.ErrNotFound)
}

func testListFilter(t *testing.T, s store.Store) {
	ctx := context.Background()
	a1 := Challenge("alice", types.ChallengeStatusActive, base)
	a2 := Challenge("alice", types.ChallengeStatusPassed, base.Add(time.Minute))
	b1 := Challenge("bob", types.ChallengeStatusPassed, base.Add(2*time.Minute))
	for _, c := range []model.Challenge{a1, a2, b1} {
		require.NoError(t, s.CreateChallenge(ctx, c))
	}

	all, err := s.ListChallenges(ctx, store.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{b1.ID, a2.ID, a1.ID}, ids(all))

	alice, err := s.ListChallenges(ctx, store.Filter{OwnerID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, []string{a2.ID, a1.ID}, ids(alice))

	passed, err := s.ListChallenges(ctx, store.Filter{Status: types.ChallengeStatusPassed})
	require.NoError(t, err)
	assert.Equal(t, []string{b1.ID, a2.ID}, ids(passed))

	none, err := s.ListChallenges(ctx, store.Filter{OwnerID: "carol"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testUpdateCommits(t *testing.T, s store.Store) {
	ctx := context.Background()
	c := Challenge("owner-1", types.ChallengeStatusActive, base)
	require.NoError(t, s.CreateChallenge(ctx, c))

	tr := trade(c.ID, base.Add(time.Minute))
	updated, err := s.UpdateChallenge(ctx, c.ID, func(ctx context.Context, tx store.Tx, acc *model.Challenge) error {
		acc.CurrentBalance = d("9000")
		acc.Equity = d("9000")
		acc.TotalTrades = 1
		return tx.InsertTrade(ctx, tr)
	})
	require.NoError(t, err)
	assert.True(t, d("9000").Equal(updated.CurrentBalance))

	got, err := s.GetChallenge(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, d("9000").Equal(got.CurrentBalance))
	assert.Equal(t, 1, got.TotalTrades)

	_, err = s.UpdateChallenge(ctx, c.ID, func(ctx context.Context, tx store.Tx, acc *model.Challenge) error {
		open, err := tx.Trade(ctx, tr.ID)
		if err != nil {
			return err
		}
		exit := d("110")
		closed := base.Add(time.Hour)
		open.ExitPrice = &exit
		open.CloseTime = &closed
		open.PnL = d("100")
		open.PnLPct = d("10")
		open.Status = types.TradeStatusClosed
		acc.CurrentBalance = d("10100")
		acc.Status = types.ChallengeStatusFailed
		acc.FailureReason = "Max Daily Loss Exceeded: -6.00% (Limit: -5%)"
		return tx.SaveTrade(ctx, open)
	})
	require.NoError(t, err)

	gotTrade, err := s.GetTrade(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TradeStatusClosed, gotTrade.Status)
	require.NotNil(t, gotTrade.ExitPrice)
	assert.True(t, d("110").Equal(*gotTrade.ExitPrice))
	require.NotNil(t, gotTrade.CloseTime)
	assert.True(t, base.Add(time.Hour).Equal(*gotTrade.CloseTime))
	assert.True(t, d("100").Equal(gotTrade.PnL))
	assert.Equal(t, "EURUSD", gotTrade.Symbol)
	assert.Equal(t, c.ID, gotTrade.ChallengeID)

	got, err = s.GetChallenge(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ChallengeStatusFailed, got.Status)
	assert.Equal(t, "Max Daily Loss Exceeded: -6.00% (Limit: -5%)", got.FailureReason)
}

func testUpdateRollsBack(t *testing.T, s store.Store) {
	ctx := context.Background()
	c := Challenge("owner-1", types.ChallengeStatusActive, base)
	require.NoError(t, s.CreateChallenge(ctx, c))

	boom := errors.New("boom")
	tr := trade(c.ID, base)
	_, err := s.UpdateChallenge(ctx, c.ID, func(ctx context.Context, tx store.Tx, acc *model.Challenge) error {
		acc.CurrentBalance = d("1")
		if err := tx.InsertTrade(ctx, tr); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetChallenge(ctx, c.ID)
	require.NoError(t, err)
	AssertChallenge(t, c, got)
	_, err = s.GetTrade(ctx, tr.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testUpdateCanceled(t *testing.T, s store.Store) {
	c := Challenge("owner-1", types.ChallengeStatusActive, base)
	require.NoError(t, s.CreateChallenge(context.Background(), c))

	ctx, cancel := context.WithCancel(context.Background())
	tr := trade(c.ID, base)
	_, err := s.UpdateChallenge(ctx, c.ID, func(ctx context.Context, tx store.Tx, acc *model.Challenge) error {
		acc.CurrentBalance = d("1")
		if err := tx.InsertTrade(ctx, tr); err != nil {
			return err
		}
		cancel()
		return nil
	})
	assert.Error(t, err)

	got, err := s.GetChallenge(context.Background(), c.ID)
	require.NoError(t, err)
	assert.True(t, d("10000").Equal(got.CurrentBalance))
	_, err = s.GetTrade(context.Background(), tr.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testUpdateMissing(t *testing.T, s store.Store) {
	called := false
	_, err := s.UpdateChallenge(context.Background(), uuid.NewString(), func(ctx context.Context, tx store.Tx, acc *model.Challenge) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.False(t, called)
}

func testTradeScoped(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := Challenge("alice", types.ChallengeStatusActive, base)
	b := Challenge("bob", types.ChallengeStatusActive, base)
	require.NoError(t, s.CreateChallenge(ctx, a))
	require.NoError(t, s.CreateChallenge(ctx, b))

	tr := trade(a.ID, base)
	_, err := s.UpdateChallenge(ctx, a.ID, func(ctx context.Context, tx store.Tx, acc *model.Challenge) error {
		return tx.InsertTrade(ctx, tr)
	})
	require.NoError(t, err)

	_, err = s.UpdateChallenge(ctx, b.ID, func(ctx context.Context, tx store.Tx, acc *model.Challenge) error {
		_, err := tx.Trade(ctx, tr.ID)
		return err
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testListTradesOrder(t *testing.T, s store.Store) {
	ctx := context.Background()
	c := Challenge("owner-1", types.ChallengeStatusActive, base)
	require.NoError(t, s.CreateChallenge(ctx, c))

	var want []string
	_, err := s.UpdateChallenge(ctx, c.ID, func(ctx context.Context, tx store.Tx, acc *model.Challenge) error {
		for i := 0; i < 3; i++ {
			tr := trade(c.ID, base.Add(time.Duration(i)*time.Minute))
			tr.Symbol = fmt.Sprintf("SYM%d", i)
			if err := tx.InsertTrade(ctx, tr); err != nil {
				return err
			}
			want = append([]string{tr.ID}, want...)
		}
		return nil
	})
	require.NoError(t, err)

	got, err := s.ListTrades(ctx, c.ID)
	require.NoError(t, err)
	gotIDs := make([]string, 0, len(got))
	for _, tr := range got {
		gotIDs = append(gotIDs, tr.ID)
	}
	assert.Equal(t, want, gotIDs)

	empty, err := s.ListTrades(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testDeleteCascades(t *testing.T, s store.Store) {
	ctx := context.Background()
	c := Challenge("owner-1", types.ChallengeStatusActive, base)
	keep := Challenge("owner-1", types.ChallengeStatusActive, base)
	require.NoError(t, s.CreateChallenge(ctx, c))
	require.NoError(t, s.CreateChallenge(ctx, keep))

	tr := trade(c.ID, base)
	kept := trade(keep.ID, base)
	_, err := s.UpdateChallenge(ctx, c.ID, func(ctx context.Context, tx store.Tx, acc *model.Challenge) error {
		return tx.InsertTrade(ctx, tr)
	})
	require.NoError(t, err)
	_, err = s.UpdateChallenge(ctx, keep.ID, func(ctx context.Context, tx store.Tx, acc *model.Challenge) error {
		return tx.InsertTrade(ctx, kept)
	})
	require.NoError(t, err)

	require.NoError(t, s.DeleteChallenge(ctx, c.ID))

	_, err = s.GetChallenge(ctx, c.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetTrade(ctx, tr.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetTrade(ctx, kept.ID)
	assert.NoError(t, err)
}

func testConcurrentUpdates(t *testing.T, s store.Store) {
	ctx := context.Background()
	c := Challenge("owner-1", types.ChallengeStatusActive, base)
	require.NoError(t, s.CreateChallenge(ctx, c))

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.UpdateChallenge(ctx, c.ID, func(ctx context.Context, tx store.Tx, acc *model.Challenge) error {
				acc.TotalTrades++
				acc.CurrentBalance = acc.CurrentBalance.Sub(decimal.NewFromInt(10))
				return nil
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.GetChallenge(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, workers, got.TotalTrades)
	assert.True(t, d("9840").Equal(got.CurrentBalance), "got %s", got.CurrentBalance)
}

func ids(cs []model.Challenge) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.ID)
	}
	return out
}
