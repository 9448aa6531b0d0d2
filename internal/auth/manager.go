// Package auth issues and verifies short-lived session tokens for the
// observer channel. Browsers cannot set headers on websocket dials, so the
// token travels as a query parameter on the upgrade request.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrExpiredToken = errors.New("auth: token expired")
)

// clockSkewLeeway absorbs small clock drift between issuer and verifier.
const clockSkewLeeway = 30 * time.Second

type Manager struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewManager(secret, issuer string, ttl time.Duration) (*Manager, error) {
	if secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Manager{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
	}, nil
}

// IssueSessionToken mints a token for one observer session and returns the
// token and its session id.
func (m *Manager) IssueSessionToken(now time.Time) (token, sessionID string, err error) {
	sessionID = uuid.NewString()

	claims := jwt.RegisteredClaims{
		ID:        sessionID,
		Issuer:    m.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", "", fmt.Errorf("signing session token: %w", err)
	}
	return token, sessionID, nil
}

// VerifySessionToken checks the token and returns its session id.
func (m *Manager) VerifySessionToken(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(
		token,
		&jwt.RegisteredClaims{},
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
			}
			return m.secret, nil
		},
		jwt.WithLeeway(clockSkewLeeway),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid || claims.ID == "" {
		return "", ErrInvalidToken
	}
	if m.issuer != "" && claims.Issuer != m.issuer {
		return "", ErrInvalidToken
	}
	return claims.ID, nil
}
