// Package store defines the persistence contract for challenges and their
// trades. Implementations live in the postgres, sqlite and memory
// subpackages and share the conformance suite in storetest.
package store

import (
	"context"
	"errors"

	"propdesk/internal/model"
	"propdesk/internal/types"
)

var ErrNotFound = errors.New("not found")

type Filter struct {
	OwnerID string
	Status  types.ChallengeStatus
}

// UpdateFunc mutates c while the challenge is held exclusively. Returning an
// error discards every change made through c and tx.
type UpdateFunc func(ctx context.Context, tx Tx, c *model.Challenge) error

type Store interface {
	CreateChallenge(ctx context.Context, c model.Challenge) error
	GetChallenge(ctx context.Context, id string) (model.Challenge, error)
	// ListChallenges returns matches newest first.
	ListChallenges(ctx context.Context, f Filter) ([]model.Challenge, error)
	// DeleteChallenge removes the challenge and all of its trades.
	DeleteChallenge(ctx context.Context, id string) error

	GetTrade(ctx context.Context, id string) (model.Trade, error)
	// ListTrades returns a challenge's trades, most recently opened first.
	ListTrades(ctx context.Context, challengeID string) ([]model.Trade, error)

	// UpdateChallenge runs fn as one unit of work on challenge id and returns
	// the committed challenge. Nothing is persisted unless fn returns nil and
	// ctx is still live.
	UpdateChallenge(ctx context.Context, id string, fn UpdateFunc) (model.Challenge, error)

	Ping(ctx context.Context) error
	Close() error
}

// Tx is the view of trades available inside UpdateChallenge. Every method is
// scoped to the challenge being updated.
type Tx interface {
	// Trade loads a trade of this challenge for update.
	Trade(ctx context.Context, id string) (model.Trade, error)
	InsertTrade(ctx context.Context, t model.Trade) error
	SaveTrade(ctx context.Context, t model.Trade) error
}
