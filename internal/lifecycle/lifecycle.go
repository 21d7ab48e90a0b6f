// Package lifecycle is the challenge state machine: active is the only
// non-terminal state and the only edges are active->passed and active->failed.
package lifecycle

import (
	"fmt"
	"time"

	"propdesk/internal/apperr"
	"propdesk/internal/model"
	"propdesk/internal/types"
)

var ErrInvalidState = apperr.New(apperr.KindInvalidState, "challenge is not active")

func RequireActive(status types.ChallengeStatus) error {
	if status != types.ChallengeStatusActive {
		return &apperr.Error{
			Kind:    apperr.KindInvalidState,
			Message: fmt.Sprintf("challenge is not active (status: %s)", status),
			Err:     ErrInvalidState,
		}
	}
	return nil
}

func CanTransition(from, to types.ChallengeStatus) bool {
	if from != types.ChallengeStatusActive {
		return false
	}
	return to == types.ChallengeStatusPassed || to == types.ChallengeStatusFailed
}

// Transition moves acc into a terminal state. reason is kept only for failed.
func Transition(acc *model.Challenge, to types.ChallengeStatus, reason string, now time.Time) error {
	if !CanTransition(acc.Status, to) {
		return &apperr.Error{
			Kind:    apperr.KindInvalidState,
			Message: fmt.Sprintf("cannot move challenge from %s to %s", acc.Status, to),
			Err:     ErrInvalidState,
		}
	}
	acc.Status = to
	if to == types.ChallengeStatusFailed {
		acc.FailureReason = reason
	} else {
		acc.FailureReason = ""
	}
	acc.UpdatedAt = now
	return nil
}
