package types

type TradeSide string

type TradeStatus string

type ChallengeStatus string

type PlanType string

type UserRole string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

const (
	TradeStatusOpen   TradeStatus = "open"
	TradeStatusClosed TradeStatus = "closed"
)

const (
	ChallengeStatusActive ChallengeStatus = "active"
	ChallengeStatusPassed ChallengeStatus = "passed"
	ChallengeStatusFailed ChallengeStatus = "failed"
)

const (
	PlanStarter PlanType = "starter"
	PlanPro     PlanType = "pro"
	PlanElite   PlanType = "elite"
)

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

func (s TradeSide) Valid() bool {
	return s == TradeSideBuy || s == TradeSideSell
}

func (s ChallengeStatus) Valid() bool {
	switch s {
	case ChallengeStatusActive, ChallengeStatusPassed, ChallengeStatusFailed:
		return true
	}
	return false
}

func (s ChallengeStatus) Terminal() bool {
	return s == ChallengeStatusPassed || s == ChallengeStatusFailed
}
