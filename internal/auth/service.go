// Package auth verifies the bearer tokens minted by the identity service and
// carries the caller's identity through request contexts.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"propdesk/internal/types"

	"github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	Role  types.UserRole `json:"role,omitempty"`
	Email string         `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller.
type Principal struct {
	UserID string         `json:"userId"`
	Role   types.UserRole `json:"role"`
	Email  string         `json:"email,omitempty"`
}

func (p Principal) IsAdmin() bool {
	return p.Role == types.RoleAdmin
}

type Service struct {
	issuer string
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewService(issuer string, secret []byte, ttl time.Duration) *Service {
	return &Service{issuer: issuer, secret: secret, ttl: ttl, now: time.Now}
}

// Sign mints a token the way the identity service does. It backs the operator
// CLI and tests.
func (s *Service) Sign(userID string, role types.UserRole, email string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("user id required")
	}
	now := s.now().UTC()
	claims := Claims{
		Role:  role,
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.secret)
}

func (s *Service) ParseToken(token string) (Principal, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return Principal{}, err
	}
	if !parsed.Valid {
		return Principal{}, errors.New("invalid token")
	}
	if claims.Issuer != s.issuer {
		return Principal{}, errors.New("invalid issuer")
	}
	if claims.Subject == "" {
		return Principal{}, errors.New("invalid subject")
	}
	role := claims.Role
	if role != types.RoleAdmin {
		role = types.RoleUser
	}
	return Principal{UserID: claims.Subject, Role: role, Email: claims.Email}, nil
}

type ctxKey string

const principalKey ctxKey = "principal"

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}
