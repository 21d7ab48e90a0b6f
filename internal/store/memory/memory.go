// Package memory is an in-process store used by tests and by the development
// server when no database is configured.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"propdesk/internal/model"
	"propdesk/internal/store"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	mu         sync.RWMutex
	challenges map[string]model.Challenge
	trades     map[string]model.Trade

	locksMu sync.Mutex
	locks   map[string]chan struct{}
}

func New() *Store {
	return &Store{
		challenges: make(map[string]model.Challenge),
		trades:     make(map[string]model.Trade),
		locks:      make(map[string]chan struct{}),
	}
}

// lock takes the per-challenge lock, giving up when ctx is done.
func (s *Store) lock(ctx context.Context, id string) (func(), error) {
	s.locksMu.Lock()
	ch, ok := s.locks[id]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[id] = ch
	}
	s.locksMu.Unlock()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// forget drops the lock of a challenge that no longer exists. Callers still
// waiting on the old channel find the challenge gone once they get it.
func (s *Store) forget(id string) {
	s.locksMu.Lock()
	delete(s.locks, id)
	s.locksMu.Unlock()
}

// Locks reports how many per-challenge locks are held in memory.
func (s *Store) Locks() int {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	return len(s.locks)
}

func (s *Store) CreateChallenge(ctx context.Context, c model.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.challenges[c.ID]; ok {
		return fmt.Errorf("challenge %s already exists", c.ID)
	}
	s.challenges[c.ID] = c
	return nil
}

func (s *Store) GetChallenge(ctx context.Context, id string) (model.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.challenges[id]
	if !ok {
		return model.Challenge{}, store.ErrNotFound
	}
	return c, nil
}

func (s *Store) ListChallenges(ctx context.Context, f store.Filter) ([]model.Challenge, error) {
	s.mu.RLock()
	out := make([]model.Challenge, 0, len(s.challenges))
	for _, c := range s.challenges {
		if f.OwnerID != "" && c.OwnerID != f.OwnerID {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		out = append(out, c)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) DeleteChallenge(ctx context.Context, id string) error {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()
	defer s.forget(id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.challenges[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.challenges, id)
	for tid, t := range s.trades {
		if t.ChallengeID == id {
			delete(s.trades, tid)
		}
	}
	return nil
}

func (s *Store) GetTrade(ctx context.Context, id string) (model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trades[id]
	if !ok {
		return model.Trade{}, store.ErrNotFound
	}
	return t, nil
}

func (s *Store) ListTrades(ctx context.Context, challengeID string) ([]model.Trade, error) {
	s.mu.RLock()
	out := make([]model.Trade, 0)
	for _, t := range s.trades {
		if t.ChallengeID == challengeID {
			out = append(out, t)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].OpenTime.Equal(out[j].OpenTime) {
			return out[i].OpenTime.After(out[j].OpenTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) UpdateChallenge(ctx context.Context, id string, fn store.UpdateFunc) (model.Challenge, error) {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return model.Challenge{}, err
	}
	defer unlock()

	c, err := s.GetChallenge(ctx, id)
	if err != nil {
		s.forget(id)
		return model.Challenge{}, err
	}
	tx := &memTx{store: s, challengeID: id, staged: make(map[string]model.Trade)}
	if err := fn(ctx, tx, &c); err != nil {
		return model.Challenge{}, err
	}
	if err := ctx.Err(); err != nil {
		return model.Challenge{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[id] = c
	for tid, t := range tx.staged {
		s.trades[tid] = t
	}
	return c, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Close() error {
	return nil
}

// memTx stages trade writes until the surrounding update commits.
type memTx struct {
	store       *Store
	challengeID string
	staged      map[string]model.Trade
}

func (tx *memTx) Trade(ctx context.Context, id string) (model.Trade, error) {
	if t, ok := tx.staged[id]; ok {
		return t, nil
	}
	t, err := tx.store.GetTrade(ctx, id)
	if err != nil {
		return model.Trade{}, err
	}
	if t.ChallengeID != tx.challengeID {
		return model.Trade{}, store.ErrNotFound
	}
	return t, nil
}

func (tx *memTx) InsertTrade(ctx context.Context, t model.Trade) error {
	if _, ok := tx.staged[t.ID]; ok {
		return fmt.Errorf("trade %s already exists", t.ID)
	}
	if _, err := tx.store.GetTrade(ctx, t.ID); err == nil {
		return fmt.Errorf("trade %s already exists", t.ID)
	}
	t.ChallengeID = tx.challengeID
	tx.staged[t.ID] = t
	return nil
}

func (tx *memTx) SaveTrade(ctx context.Context, t model.Trade) error {
	if _, err := tx.Trade(ctx, t.ID); err != nil {
		return err
	}
	t.ChallengeID = tx.challengeID
	tx.staged[t.ID] = t
	return nil
}
