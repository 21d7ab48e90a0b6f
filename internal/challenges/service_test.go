package challenges

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"propdesk/internal/accounts"
	"propdesk/internal/apperr"
	"propdesk/internal/auth"
	"propdesk/internal/events"
	"propdesk/internal/leaderboard"
	"propdesk/internal/ledger"
	"propdesk/internal/lifecycle"
	"propdesk/internal/model"
	"propdesk/internal/plans"
	"propdesk/internal/store"
	"propdesk/internal/store/memory"
	"propdesk/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	alice = auth.Principal{UserID: "alice", Role: types.RoleUser}
	bob   = auth.Principal{UserID: "bob", Role: types.RoleUser}
	admin = auth.Principal{UserID: "ops", Role: types.RoleAdmin}
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(evt events.Event) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	svc   *Service
	store *memory.Store
	pub   *recorder
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	st := memory.New()
	pub := &recorder{}
	clock := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	var seq int64
	svc := NewService(st, plans.Default(), pub, zap.NewNop(),
		WithClock(func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			clock = clock.Add(time.Second)
			return clock
		}),
		WithIDs(func() string { return fmt.Sprintf("id-%03d", atomic.AddInt64(&seq, 1)) }),
	)
	return fixture{svc: svc, store: st, pub: pub}
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDec(t *testing.T, want string, got decimal.Decimal, field string) {
	t.Helper()
	assert.True(t, d(want).Equal(got), "%s: want %s, got %s", field, want, got)
}

func (f fixture) create(t *testing.T, owner string, plan types.PlanType) model.Challenge {
	t.Helper()
	c, err := f.svc.Create(context.Background(), CreateInput{OwnerID: owner, PlanID: plan})
	require.NoError(t, err)
	return c
}

func (f fixture) open(t *testing.T, p auth.Principal, challengeID string, side types.TradeSide, qty, price string) model.Trade {
	t.Helper()
	res, err := f.svc.OpenTrade(context.Background(), p, OpenTradeInput{
		ChallengeID: challengeID, Symbol: "EURUSD", Side: side, Quantity: d(qty), Price: d(price),
	})
	require.NoError(t, err)
	return res.Trade
}

func TestCreate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	c, err := f.svc.Create(context.Background(), CreateInput{OwnerID: " alice ", PlanID: "Elite", DisplayName: "  Alice A  "})
	require.NoError(t, err)
	assert.Equal(t, "alice", c.OwnerID)
	assert.Equal(t, "Alice A", c.DisplayName)
	assert.Equal(t, types.PlanElite, c.PlanType)
	assert.Equal(t, types.ChallengeStatusActive, c.Status)
	assertDec(t, "20000", c.CurrentBalance, "current")
	assertDec(t, "20000", c.DailyStartBalance, "daily start")

	stored, err := f.store.GetChallenge(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, stored.ID)

	_, err = f.svc.Create(context.Background(), CreateInput{OwnerID: "alice", PlanID: "platinum"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = f.svc.Create(context.Background(), CreateInput{PlanID: types.PlanPro})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = f.svc.Create(context.Background(), CreateInput{OwnerID: "alice", PlanID: types.PlanPro, DisplayName: strings.Repeat("x", 65)})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestOpenCloseScenario(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	c := f.create(t, "alice", types.PlanPro)

	opened, err := f.svc.OpenTrade(ctx, alice, OpenTradeInput{ChallengeID: c.ID, Symbol: "aapl", Side: types.TradeSideBuy, Quantity: d("10"), Price: d("100")})
	require.NoError(t, err)
	assert.True(t, opened.Success)
	assert.Equal(t, "AAPL", opened.Trade.Symbol)
	assertDec(t, "9000", opened.Challenge.CurrentBalance, "balance after open")
	assert.Equal(t, 1, opened.Challenge.TotalTrades)

	closed, err := f.svc.CloseTrade(ctx, alice, opened.Trade.ID, d("110"))
	require.NoError(t, err)
	assert.True(t, closed.Success)
	assert.Equal(t, types.TradeStatusClosed, closed.Trade.Status)
	assertDec(t, "100", closed.Trade.PnL, "pnl")
	assertDec(t, "10", closed.Trade.PnLPct, "pnl_pct")
	assertDec(t, "10100", closed.Challenge.CurrentBalance, "balance")
	assertDec(t, "10100", closed.Challenge.Equity, "equity")
	assertDec(t, "100", closed.Challenge.TotalPnL, "total_pnl")
	assertDec(t, "1", closed.Challenge.TotalPnLPct, "total_pnl_pct")
	assert.Equal(t, 1, closed.Challenge.WinningTrades)
	assert.Equal(t, types.ChallengeStatusActive, closed.Evaluation.Status)
	assert.Nil(t, closed.Evaluation.FailureReason)
	assert.False(t, closed.Evaluation.RulesViolated)

	stored, err := f.store.GetTrade(ctx, opened.Trade.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TradeStatusClosed, stored.Status)

	assert.Equal(t, []string{events.TypeTradeOpened, events.TypeTradeClosed}, f.pub.types())
}

func TestOpenTradeErrorOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	c := f.create(t, "alice", types.PlanStarter)

	tests := []struct {
		name     string
		p        auth.Principal
		in       OpenTradeInput
		wantKind apperr.Kind
	}{
		{"validation before lookup", alice, OpenTradeInput{ChallengeID: "missing", Symbol: "X", Side: types.TradeSideBuy, Quantity: d("0"), Price: d("1")}, apperr.KindValidation},
		{"bad side", alice, OpenTradeInput{ChallengeID: c.ID, Symbol: "X", Side: "long", Quantity: d("1"), Price: d("1")}, apperr.KindValidation},
		{"unknown challenge", alice, OpenTradeInput{ChallengeID: "missing", Symbol: "X", Side: types.TradeSideBuy, Quantity: d("1"), Price: d("1")}, apperr.KindNotFound},
		{"not the owner", bob, OpenTradeInput{ChallengeID: c.ID, Symbol: "X", Side: types.TradeSideBuy, Quantity: d("1"), Price: d("1")}, apperr.KindNotFound},
		{"insufficient", alice, OpenTradeInput{ChallengeID: c.ID, Symbol: "X", Side: types.TradeSideSell, Quantity: d("51"), Price: d("100")}, apperr.KindInsufficientBalance},
	}
	for _, tt := range tests {
		_, err := f.svc.OpenTrade(ctx, tt.p, tt.in)
		assert.Equal(t, tt.wantKind, apperr.KindOf(err), tt.name)
	}

	got, err := f.store.GetChallenge(ctx, c.ID)
	require.NoError(t, err)
	assertDec(t, "5000", got.CurrentBalance, "balance untouched")
	assert.Zero(t, got.TotalTrades)
	trades, err := f.store.ListTrades(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, trades)
	assert.Empty(t, f.pub.types())
}

func TestAdminActsOnAnyChallenge(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	c := f.create(t, "alice", types.PlanPro)
	tr := f.open(t, admin, c.ID, types.TradeSideBuy, "1", "50")

	_, err := f.svc.CloseTrade(context.Background(), bob, tr.ID, d("55"))
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	res, err := f.svc.CloseTrade(context.Background(), admin, tr.ID, d("55"))
	require.NoError(t, err)
	assertDec(t, "5", res.Trade.PnL, "pnl")

	_, err = f.svc.Get(context.Background(), bob, c.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	got, err := f.svc.Get(context.Background(), admin, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.OwnerID)
}

func TestCloseTwice(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	c := f.create(t, "alice", types.PlanPro)
	tr := f.open(t, alice, c.ID, types.TradeSideSell, "2", "100")

	first, err := f.svc.CloseTrade(ctx, alice, tr.ID, d("90"))
	require.NoError(t, err)
	assertDec(t, "20", first.Trade.PnL, "pnl")

	for _, exit := range []string{"90", "80", "0"} {
		_, err = f.svc.CloseTrade(ctx, alice, tr.ID, d(exit))
		assert.ErrorIs(t, err, ledger.ErrAlreadyClosed)
	}

	got, err := f.store.GetChallenge(ctx, c.ID)
	require.NoError(t, err)
	assertDec(t, "10020", got.CurrentBalance, "settled exactly once")

	_, err = f.svc.CloseTrade(ctx, alice, "no-such-trade", d("1"))
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestCloseRejectsNonPositiveExit(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	c := f.create(t, "alice", types.PlanPro)
	tr := f.open(t, alice, c.ID, types.TradeSideBuy, "1", "10")

	_, err := f.svc.CloseTrade(context.Background(), alice, tr.ID, d("-1"))
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	stored, err := f.store.GetTrade(context.Background(), tr.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TradeStatusOpen, stored.Status)
}

func TestDailyLossFailsChallenge(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	c := f.create(t, "alice", types.PlanPro)
	loser := f.open(t, alice, c.ID, types.TradeSideBuy, "100", "50")
	other := f.open(t, alice, c.ID, types.TradeSideBuy, "10", "50")

	res, err := f.svc.CloseTrade(ctx, alice, loser.ID, d("44"))
	require.NoError(t, err)
	assertDec(t, "-600", res.Trade.PnL, "pnl")
	assert.Equal(t, types.ChallengeStatusFailed, res.Challenge.Status)
	assert.Equal(t, "Max Daily Loss Exceeded: -6.00% (Limit: -5%)", res.Challenge.FailureReason)
	require.NotNil(t, res.Evaluation.FailureReason)
	assert.Equal(t, res.Challenge.FailureReason, *res.Evaluation.FailureReason)
	assert.True(t, res.Evaluation.RulesViolated)
	assert.False(t, res.Evaluation.TargetAchieved)
	assertDec(t, "-6", res.Evaluation.Metrics.DailyPnLPct, "daily pct")

	_, err = f.svc.OpenTrade(ctx, alice, OpenTradeInput{ChallengeID: c.ID, Symbol: "X", Side: types.TradeSideBuy, Quantity: d("1"), Price: d("1")})
	assert.ErrorIs(t, err, lifecycle.ErrInvalidState)
	_, err = f.svc.CloseTrade(ctx, alice, other.ID, d("60"))
	assert.ErrorIs(t, err, lifecycle.ErrInvalidState)
	_, err = f.svc.Evaluate(ctx, alice, c.ID)
	assert.ErrorIs(t, err, lifecycle.ErrInvalidState)

	stillOpen, err := f.store.GetTrade(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TradeStatusOpen, stillOpen.Status)

	assert.Contains(t, f.pub.types(), events.TypeChallengeStatus)
}

func TestDailyLossAccumulatesAcrossCloses(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	c := f.create(t, "alice", types.PlanPro)
	first := f.open(t, alice, c.ID, types.TradeSideBuy, "50", "60")
	second := f.open(t, alice, c.ID, types.TradeSideBuy, "50", "60")

	res, err := f.svc.CloseTrade(ctx, alice, first.ID, d("54"))
	require.NoError(t, err)
	assertDec(t, "-300", res.Trade.PnL, "first pnl")
	assertDec(t, "-3", res.Challenge.DailyPnLPct, "daily pct after first")
	assert.Equal(t, types.ChallengeStatusActive, res.Challenge.Status)

	res, err = f.svc.CloseTrade(ctx, alice, second.ID, d("54"))
	require.NoError(t, err)
	assertDec(t, "-600", res.Challenge.DailyPnL, "daily pnl")
	assertDec(t, "-6", res.Challenge.DailyPnLPct, "daily pct after second")
	assert.Equal(t, types.ChallengeStatusFailed, res.Challenge.Status)
	assert.Equal(t, "Max Daily Loss Exceeded: -6.00% (Limit: -5%)", res.Challenge.FailureReason)
}

func TestProfitTargetPasses(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	c := f.create(t, "alice", types.PlanStarter)
	tr := f.open(t, alice, c.ID, types.TradeSideBuy, "50", "100")

	res, err := f.svc.CloseTrade(context.Background(), alice, tr.ID, d("110"))
	require.NoError(t, err)
	assertDec(t, "500", res.Trade.PnL, "pnl")
	assertDec(t, "10", res.Challenge.TotalPnLPct, "total pct")
	assert.Equal(t, types.ChallengeStatusPassed, res.Challenge.Status)
	assert.Empty(t, res.Challenge.FailureReason)
	assert.True(t, res.Evaluation.TargetAchieved)

	board, err := leaderboard.NewService(f.store).Top(context.Background())
	require.NoError(t, err)
	require.Len(t, board, 1)
	assert.Equal(t, "alice", board[0].Name)
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	c := f.create(t, "alice", types.PlanPro)

	ev, err := f.svc.Evaluate(ctx, alice, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, ev.ChallengeID)
	assert.Equal(t, types.ChallengeStatusActive, ev.Status)
	assert.Nil(t, ev.FailureReason)
	assertDec(t, "10000", ev.Metrics.StartingBalance, "starting")

	_, err = f.svc.Evaluate(ctx, bob, c.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = f.svc.Evaluate(ctx, alice, "missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	// Aggregates changed outside a close are picked up by an explicit evaluation.
	_, err = f.store.UpdateChallenge(ctx, c.ID, func(ctx context.Context, tx store.Tx, acc *model.Challenge) error {
		acc.TotalPnL = d("-1000")
		acc.TotalPnLPct = d("-10")
		return nil
	})
	require.NoError(t, err)
	ev, err = f.svc.Evaluate(ctx, alice, c.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ChallengeStatusFailed, ev.Status)
	require.NotNil(t, ev.FailureReason)
	assert.Equal(t, "Max Total Loss Exceeded: -10.00% (Limit: -10%)", *ev.FailureReason)

	got, err := f.store.GetChallenge(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ChallengeStatusFailed, got.Status)
}

func TestUpdateDisplayName(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	c := f.create(t, "alice", types.PlanPro)

	name := "  Desk A "
	got, err := f.svc.Update(ctx, alice, c.ID, accounts.Update{DisplayName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Desk A", got.DisplayName)
	assertDec(t, "10000", got.CurrentBalance, "balance")

	_, err = f.svc.Update(ctx, bob, c.ID, accounts.Update{DisplayName: &name})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = f.svc.Update(ctx, alice, c.ID, accounts.Update{})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestListScopesToOwner(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "alice", types.PlanPro)
	f.create(t, "alice", types.PlanStarter)
	f.create(t, "bob", types.PlanElite)

	mine, err := f.svc.List(ctx, alice, store.Filter{OwnerID: "bob"})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	all, err := f.svc.List(ctx, admin, store.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	bobs, err := f.svc.List(ctx, admin, store.Filter{OwnerID: "bob"})
	require.NoError(t, err)
	assert.Len(t, bobs, 1)

	_, err = f.svc.List(ctx, alice, store.Filter{Status: "paused"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestResetAllDaily(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	c := f.create(t, "alice", types.PlanPro)
	held := f.open(t, alice, c.ID, types.TradeSideBuy, "10", "100")
	loss := f.open(t, alice, c.ID, types.TradeSideBuy, "10", "100")
	_, err := f.svc.CloseTrade(ctx, alice, loss.ID, d("70"))
	require.NoError(t, err)

	failed := f.create(t, "bob", types.PlanStarter)
	_, err = f.store.UpdateChallenge(ctx, failed.ID, func(ctx context.Context, tx store.Tx, acc *model.Challenge) error {
		acc.DailyPnL = d("-300")
		return lifecycle.Transition(acc, types.ChallengeStatusFailed, "manual", time.Now())
	})
	require.NoError(t, err)

	sum, err := f.svc.ResetAllDaily(ctx)
	require.NoError(t, err)
	assert.Equal(t, ResetSummary{Reset: 1}, sum)

	got, err := f.store.GetChallenge(ctx, c.ID)
	require.NoError(t, err)
	assertDec(t, "9700", got.DailyStartBalance, "daily start")
	assertDec(t, "0", got.DailyPnL, "daily pnl")
	assertDec(t, "8700", got.CurrentBalance, "open cost stays reserved")

	res, err := f.svc.CloseTrade(ctx, alice, held.ID, d("90.3"))
	require.NoError(t, err)
	assertDec(t, "-97", res.Challenge.DailyPnL, "daily pnl")
	assertDec(t, "-1", res.Challenge.DailyPnLPct, "daily pct")

	untouched, err := f.store.GetChallenge(ctx, failed.ID)
	require.NoError(t, err)
	assertDec(t, "-300", untouched.DailyPnL, "failed challenge not reset")
}

func TestDeleteCascades(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	c := f.create(t, "alice", types.PlanPro)
	tr := f.open(t, alice, c.ID, types.TradeSideBuy, "1", "1")

	require.NoError(t, f.svc.Delete(ctx, c.ID))
	_, err := f.store.GetTrade(ctx, tr.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.True(t, apperr.Is(f.svc.Delete(ctx, c.ID), apperr.KindNotFound))
}

func TestSeedDemoIsRepeatable(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "alice", types.PlanPro)

	for i := 0; i < 2; i++ {
		created, err := f.svc.SeedDemo(ctx)
		require.NoError(t, err)
		require.Len(t, created, 5)
	}

	all, err := f.store.ListChallenges(ctx, store.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 6)

	board, err := leaderboard.NewService(f.store).Top(ctx)
	require.NoError(t, err)
	require.Len(t, board, 3)
	assert.Equal(t, "Youssef Alami", board[0].Name)
	assert.Equal(t, "Fatima Benali", board[1].Name)
	assert.Equal(t, "Omar Khalil", board[2].Name)
	assertDec(t, "12.4", board[2].TotalPnLPct, "omar pct")
}

func TestConcurrentOpensNeverOverdraw(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	c := f.create(t, "alice", types.PlanPro)

	const attempts = 20
	var wg sync.WaitGroup
	var ok, insufficient int64
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.OpenTrade(context.Background(), alice, OpenTradeInput{
				ChallengeID: c.ID, Symbol: "BTCUSD", Side: types.TradeSideBuy, Quantity: d("6"), Price: d("100"),
			})
			switch {
			case err == nil:
				atomic.AddInt64(&ok, 1)
			case apperr.Is(err, apperr.KindInsufficientBalance):
				atomic.AddInt64(&insufficient, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 16, ok)
	assert.EqualValues(t, 4, insufficient)
	got, err := f.store.GetChallenge(context.Background(), c.ID)
	require.NoError(t, err)
	assertDec(t, "400", got.CurrentBalance, "balance")
	assert.Equal(t, 16, got.TotalTrades)
}
