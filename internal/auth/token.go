// Package auth issues and validates the bearer tokens the service accepts
// (identity tokens minted by the identity provider) and hands out (session
// access tokens consumed by the media transport).
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"collab/api/internal/rbac"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	identityAudience = "collab-api"
	sessionAudience  = "collab-session"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

// IdentityClaims identify the acting user. Subject carries the user id.
type IdentityClaims struct {
	TenantID string `json:"tid"`
	jwt.RegisteredClaims
}

// SessionClaims grant a participant access to a live session's transport.
// Subject carries the user id.
type SessionClaims struct {
	SessionID string    `json:"sid"`
	TenantID  string    `json:"tid"`
	Role      rbac.Role `json:"role"`
	jwt.RegisteredClaims
}

func (c SessionClaims) UserID() string {
	return c.Subject
}

// IssueIdentityToken mints an identity token the way the identity provider
// does. Production tokens come from the provider; this is for local
// development (cmd/devtoken) and tests.
func IssueIdentityToken(secret []byte, tenantID, userID string, ttl time.Duration) (string, error) {
	if tenantID == "" || userID == "" {
		return "", fmt.Errorf("issue identity token: tenant and user are required")
	}
	now := time.Now()
	claims := IdentityClaims{
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Audience:  jwt.ClaimStrings{identityAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return sign(secret, claims)
}

// ParseIdentityToken returns the tenant and user carried by token.
func ParseIdentityToken(secret []byte, token string) (tenantID, userID string, err error) {
	var claims IdentityClaims
	if err := parse(secret, token, identityAudience, &claims); err != nil {
		return "", "", err
	}
	if strings.TrimSpace(claims.TenantID) == "" || strings.TrimSpace(claims.Subject) == "" {
		return "", "", ErrInvalidToken
	}
	return claims.TenantID, claims.Subject, nil
}

func IssueSessionToken(secret []byte, sessionID, tenantID, userID string, role rbac.Role, issuedAt time.Time, ttl time.Duration) (string, error) {
	if sessionID == "" || userID == "" {
		return "", fmt.Errorf("issue session token: session and user are required")
	}
	claims := SessionClaims{
		SessionID: sessionID,
		TenantID:  tenantID,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Audience:  jwt.ClaimStrings{sessionAudience},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	}
	return sign(secret, claims)
}

func ParseSessionToken(secret []byte, token string) (SessionClaims, error) {
	var claims SessionClaims
	if err := parse(secret, token, sessionAudience, &claims); err != nil {
		return SessionClaims{}, err
	}
	if claims.SessionID == "" || claims.Subject == "" || claims.IssuedAt == nil {
		return SessionClaims{}, ErrInvalidToken
	}
	if _, err := rbac.ParseRole(string(claims.Role)); err != nil {
		return SessionClaims{}, ErrInvalidToken
	}
	return claims, nil
}

func sign(secret []byte, claims jwt.Claims) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("sign token: empty secret")
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func parse(secret []byte, token, audience string, claims jwt.Claims) error {
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ErrExpiredToken
	}
	if err != nil {
		return ErrInvalidToken
	}
	return nil
}
