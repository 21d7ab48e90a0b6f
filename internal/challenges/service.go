// Package challenges runs the engine operations against the store: issuing
// challenges, opening and closing trades, explicit evaluation, the daily
// reset and the allow-listed update.
package challenges

import (
	"context"
	"errors"
	"strings"
	"time"

	"propdesk/internal/accounts"
	"propdesk/internal/apperr"
	"propdesk/internal/auth"
	"propdesk/internal/events"
	"propdesk/internal/ledger"
	"propdesk/internal/lifecycle"
	"propdesk/internal/model"
	"propdesk/internal/plans"
	"propdesk/internal/rules"
	"propdesk/internal/store"
	"propdesk/internal/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Service struct {
	store  store.Store
	plans  *plans.Catalog
	events events.Publisher
	log    *zap.Logger
	now    func() time.Time
	newID  func() string
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDs(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

func NewService(st store.Store, catalog *plans.Catalog, pub events.Publisher, log *zap.Logger, opts ...Option) *Service {
	if pub == nil {
		pub = events.Discard{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		store:  st,
		plans:  catalog,
		events: pub,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateInput struct {
	OwnerID     string         `json:"ownerId"`
	PlanID      types.PlanType `json:"planId"`
	DisplayName string         `json:"displayName"`
}

type OpenTradeInput struct {
	ChallengeID string
	Symbol      string
	Side        types.TradeSide
	Quantity    decimal.Decimal
	Price       decimal.Decimal
}

type OpenResult struct {
	Success   bool            `json:"success"`
	Trade     model.Trade     `json:"trade"`
	Challenge model.Challenge `json:"challenge"`
}

type CloseResult struct {
	Success    bool            `json:"success"`
	Trade      model.Trade     `json:"trade"`
	Challenge  model.Challenge `json:"challenge"`
	Evaluation Evaluation      `json:"evaluation"`
}

type Evaluation struct {
	Success        bool                  `json:"success"`
	ChallengeID    string                `json:"challengeId"`
	Status         types.ChallengeStatus `json:"status"`
	Metrics        accounts.Metrics      `json:"metrics"`
	FailureReason  *string               `json:"failureReason"`
	RulesViolated  bool                  `json:"rulesViolated"`
	TargetAchieved bool                  `json:"targetAchieved"`
}

func evaluationOf(challengeID string, d rules.Decision) Evaluation {
	ev := Evaluation{
		Success:        true,
		ChallengeID:    challengeID,
		Status:         d.Status,
		Metrics:        d.Metrics,
		RulesViolated:  d.RulesViolated(),
		TargetAchieved: d.TargetAchieved(),
	}
	if d.FailureReason != "" {
		reason := d.FailureReason
		ev.FailureReason = &reason
	}
	return ev
}

var (
	errChallengeNotFound = apperr.NotFound("challenge not found")
	errTradeNotFound     = apperr.NotFound("trade not found")
)

// visible hides challenges the caller does not own. Admins see everything.
func visible(p auth.Principal, c model.Challenge) bool {
	return p.IsAdmin() || c.OwnerID == p.UserID
}

func notFound(err, nf error) error {
	if errors.Is(err, store.ErrNotFound) {
		return nf
	}
	return err
}

func (s *Service) Create(ctx context.Context, in CreateInput) (model.Challenge, error) {
	owner := strings.TrimSpace(in.OwnerID)
	if owner == "" {
		return model.Challenge{}, apperr.Validation("ownerId is required")
	}
	plan, err := s.plans.Get(in.PlanID)
	if err != nil {
		return model.Challenge{}, err
	}
	now := s.now()
	c := accounts.New(s.newID(), owner, "", plan, now)
	if in.DisplayName != "" {
		name := in.DisplayName
		if err := accounts.ApplyUpdate(&c, accounts.Update{DisplayName: &name}, now); err != nil {
			return model.Challenge{}, err
		}
	}
	if err := s.store.CreateChallenge(ctx, c); err != nil {
		return model.Challenge{}, err
	}
	s.log.Info("challenge issued",
		zap.String("challenge_id", c.ID),
		zap.String("owner_id", c.OwnerID),
		zap.String("plan", string(c.PlanType)))
	return c, nil
}

func (s *Service) Get(ctx context.Context, p auth.Principal, id string) (model.Challenge, error) {
	c, err := s.store.GetChallenge(ctx, id)
	if err != nil {
		return model.Challenge{}, notFound(err, errChallengeNotFound)
	}
	if !visible(p, c) {
		return model.Challenge{}, errChallengeNotFound
	}
	return c, nil
}

// List returns the caller's challenges. Admins may filter by any owner.
func (s *Service) List(ctx context.Context, p auth.Principal, f store.Filter) ([]model.Challenge, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.Validation("invalid status filter")
	}
	if !p.IsAdmin() {
		f.OwnerID = p.UserID
	}
	return s.store.ListChallenges(ctx, f)
}

func (s *Service) ListTrades(ctx context.Context, p auth.Principal, challengeID string) ([]model.Trade, error) {
	if _, err := s.Get(ctx, p, challengeID); err != nil {
		return nil, err
	}
	return s.store.ListTrades(ctx, challengeID)
}

func (s *Service) OpenTrade(ctx context.Context, p auth.Principal, in OpenTradeInput) (OpenResult, error) {
	req := ledger.OpenInput{
		TradeID:  s.newID(),
		Symbol:   in.Symbol,
		Side:     in.Side,
		Quantity: in.Quantity,
		Price:    in.Price,
	}
	if err := req.Validate(); err != nil {
		return OpenResult{}, err
	}

	var tr model.Trade
	c, err := s.store.UpdateChallenge(ctx, in.ChallengeID, func(ctx context.Context, tx store.Tx, c *model.Challenge) error {
		if !visible(p, *c) {
			return errChallengeNotFound
		}
		var err error
		tr, err = ledger.Open(c, req, s.now())
		if err != nil {
			return err
		}
		return tx.InsertTrade(ctx, tr)
	})
	if err != nil {
		return OpenResult{}, notFound(err, errChallengeNotFound)
	}

	s.log.Info("trade opened",
		zap.String("challenge_id", c.ID),
		zap.String("trade_id", tr.ID),
		zap.String("symbol", tr.Symbol),
		zap.String("side", string(tr.Side)),
		zap.String("cost", tr.Cost().String()))
	s.publish(events.TypeTradeOpened, c, tr)
	return OpenResult{Success: true, Trade: tr, Challenge: c}, nil
}

// CloseTrade settles a trade and evaluates its challenge in one unit of work.
func (s *Service) CloseTrade(ctx context.Context, p auth.Principal, tradeID string, exit decimal.Decimal) (CloseResult, error) {
	existing, err := s.store.GetTrade(ctx, tradeID)
	if err != nil {
		return CloseResult{}, notFound(err, errTradeNotFound)
	}

	var (
		tr       model.Trade
		decision rules.Decision
	)
	c, err := s.store.UpdateChallenge(ctx, existing.ChallengeID, func(ctx context.Context, tx store.Tx, c *model.Challenge) error {
		if !visible(p, *c) {
			return errTradeNotFound
		}
		var err error
		if tr, err = tx.Trade(ctx, tradeID); err != nil {
			return err
		}
		now := s.now()
		settlement, err := ledger.Close(&tr, exit, now)
		if err != nil {
			return err
		}
		if err := lifecycle.RequireActive(c.Status); err != nil {
			return err
		}
		accounts.Settle(c, settlement, now)
		if decision, err = rules.Apply(c, now); err != nil {
			return err
		}
		return tx.SaveTrade(ctx, tr)
	})
	if err != nil {
		return CloseResult{}, notFound(err, errTradeNotFound)
	}

	s.log.Info("trade closed",
		zap.String("challenge_id", c.ID),
		zap.String("trade_id", tr.ID),
		zap.String("pnl", tr.PnL.String()),
		zap.String("status", string(c.Status)))
	s.publish(events.TypeTradeClosed, c, tr)
	if decision.Changed() {
		s.statusChanged(c)
	}
	return CloseResult{Success: true, Trade: tr, Challenge: c, Evaluation: evaluationOf(c.ID, decision)}, nil
}

// Evaluate re-runs the rules on an active challenge and persists any
// resulting transition.
func (s *Service) Evaluate(ctx context.Context, p auth.Principal, challengeID string) (Evaluation, error) {
	var decision rules.Decision
	c, err := s.store.UpdateChallenge(ctx, challengeID, func(ctx context.Context, tx store.Tx, c *model.Challenge) error {
		if !visible(p, *c) {
			return errChallengeNotFound
		}
		var err error
		decision, err = rules.Apply(c, s.now())
		return err
	})
	if err != nil {
		return Evaluation{}, notFound(err, errChallengeNotFound)
	}
	if decision.Changed() {
		s.statusChanged(c)
	}
	return evaluationOf(c.ID, decision), nil
}

func (s *Service) Update(ctx context.Context, p auth.Principal, id string, u accounts.Update) (model.Challenge, error) {
	c, err := s.store.UpdateChallenge(ctx, id, func(ctx context.Context, tx store.Tx, c *model.Challenge) error {
		if !visible(p, *c) {
			return errChallengeNotFound
		}
		return accounts.ApplyUpdate(c, u, s.now())
	})
	if err != nil {
		return model.Challenge{}, notFound(err, errChallengeNotFound)
	}
	return c, nil
}

// Delete removes a challenge and its trades.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteChallenge(ctx, id); err != nil {
		return notFound(err, errChallengeNotFound)
	}
	s.log.Info("challenge deleted", zap.String("challenge_id", id))
	return nil
}

// ResetDaily opens a new trading day on one challenge. It reports false when
// the challenge is not active.
func (s *Service) ResetDaily(ctx context.Context, id string) (bool, error) {
	var reset bool
	c, err := s.store.UpdateChallenge(ctx, id, func(ctx context.Context, tx store.Tx, c *model.Challenge) error {
		reset = accounts.ResetDaily(c, s.now())
		return nil
	})
	if err != nil {
		return false, notFound(err, errChallengeNotFound)
	}
	if reset {
		s.events.Publish(events.Event{
			Type:        events.TypeDailyReset,
			OwnerID:     c.OwnerID,
			ChallengeID: c.ID,
			Data:        accounts.MetricsOf(c),
			At:          s.now(),
		})
	}
	return reset, nil
}

type ResetSummary struct {
	Reset  int `json:"reset"`
	Failed int `json:"failed"`
}

// ResetAllDaily resets every active challenge. Challenges are independent, so
// one failure does not stop the rest; all failures are returned joined.
func (s *Service) ResetAllDaily(ctx context.Context) (ResetSummary, error) {
	active, err := s.store.ListChallenges(ctx, store.Filter{Status: types.ChallengeStatusActive})
	if err != nil {
		return ResetSummary{}, err
	}
	var sum ResetSummary
	var errs []error
	for _, c := range active {
		ok, err := s.ResetDaily(ctx, c.ID)
		switch {
		case err != nil:
			sum.Failed++
			errs = append(errs, err)
			s.log.Warn("daily reset failed", zap.String("challenge_id", c.ID), zap.Error(err))
		case ok:
			sum.Reset++
		}
	}
	s.log.Info("daily reset done", zap.Int("reset", sum.Reset), zap.Int("failed", sum.Failed))
	return sum, errors.Join(errs...)
}

func (s *Service) publish(kind string, c model.Challenge, tr model.Trade) {
	s.events.Publish(events.Event{
		Type:        kind,
		OwnerID:     c.OwnerID,
		ChallengeID: c.ID,
		Data:        map[string]any{"trade": tr, "challenge": c},
		At:          s.now(),
	})
}

func (s *Service) statusChanged(c model.Challenge) {
	s.log.Info("challenge status changed",
		zap.String("challenge_id", c.ID),
		zap.String("status", string(c.Status)),
		zap.String("reason", c.FailureReason))
	s.events.Publish(events.Event{
		Type:        events.TypeChallengeStatus,
		OwnerID:     c.OwnerID,
		ChallengeID: c.ID,
		Data:        map[string]any{"status": c.Status, "failure_reason": c.FailureReason},
		At:          s.now(),
	})
}
