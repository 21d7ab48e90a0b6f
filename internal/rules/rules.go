// Package rules decides whether an active challenge has passed, failed or is
// still running, based on its P&L percentages and plan limits.
package rules

import (
	"fmt"
	"time"

	"propdesk/internal/accounts"
	"propdesk/internal/lifecycle"
	"propdesk/internal/model"
	"propdesk/internal/types"
)

type Decision struct {
	Status        types.ChallengeStatus
	FailureReason string
	Metrics       accounts.Metrics
}

func (d Decision) Changed() bool        { return d.Status != types.ChallengeStatusActive }
func (d Decision) RulesViolated() bool  { return d.Status == types.ChallengeStatusFailed }
func (d Decision) TargetAchieved() bool { return d.Status == types.ChallengeStatusPassed }

// Evaluate runs the daily loss, total loss and profit target checks in that
// order. A later rule overwrites an earlier one, so hitting the profit target
// passes the challenge even if a loss limit was also breached in the same pass.
func Evaluate(acc model.Challenge) Decision {
	d := Decision{Status: types.ChallengeStatusActive, Metrics: accounts.MetricsOf(acc)}

	if acc.DailyPnLPct.LessThanOrEqual(acc.MaxDailyLossPct.Neg()) {
		d.Status = types.ChallengeStatusFailed
		d.FailureReason = fmt.Sprintf("Max Daily Loss Exceeded: %s%% (Limit: -%s%%)",
			acc.DailyPnLPct.StringFixed(2), acc.MaxDailyLossPct.String())
	}
	if acc.TotalPnLPct.LessThanOrEqual(acc.MaxTotalLossPct.Neg()) {
		d.Status = types.ChallengeStatusFailed
		d.FailureReason = fmt.Sprintf("Max Total Loss Exceeded: %s%% (Limit: -%s%%)",
			acc.TotalPnLPct.StringFixed(2), acc.MaxTotalLossPct.String())
	}
	if acc.TotalPnLPct.GreaterThanOrEqual(acc.ProfitTargetPct) {
		d.Status = types.ChallengeStatusPassed
		d.FailureReason = ""
	}
	return d
}

// Apply evaluates acc and moves it to the decided terminal state. The account
// is not touched when no rule fired.
func Apply(acc *model.Challenge, now time.Time) (Decision, error) {
	if err := lifecycle.RequireActive(acc.Status); err != nil {
		return Decision{}, err
	}
	d := Evaluate(*acc)
	if !d.Changed() {
		return d, nil
	}
	if err := lifecycle.Transition(acc, d.Status, d.FailureReason, now); err != nil {
		return Decision{}, err
	}
	return d, nil
}
