package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var (
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenMalformed = errors.New("token malformed")
	ErrWrongTokenType = errors.New("wrong token type")
)

// TokenIssuer signs and verifies the two bearer token classes. Access and
// refresh tokens use independent secrets, so compromising one class does not
// let an attacker forge the other.
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	refreshTTL    time.Duration
}

func NewTokenIssuer(accessSecret, refreshSecret string, refreshTTL time.Duration) (*TokenIssuer, error) {
	accessSecret = strings.TrimSpace(accessSecret)
	refreshSecret = strings.TrimSpace(refreshSecret)

	if accessSecret == "" {
		return nil, errors.New("access token secret is required")
	}
	if refreshSecret == "" {
		return nil, errors.New("refresh token secret is required")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("access and refresh token secrets must differ")
	}
	if refreshTTL <= 0 {
		return nil, errors.New("refresh token ttl must be positive")
	}

	return &TokenIssuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		refreshTTL:    refreshTTL,
	}, nil
}

func (t *TokenIssuer) IssueAccess(userID string, ttl time.Duration) (string, error) {
	return t.issue(userID, TokenTypeAccess, ttl, t.accessSecret)
}

func (t *TokenIssuer) IssueRefresh(userID string) (string, error) {
	return t.issue(userID, TokenTypeRefresh, t.refreshTTL, t.refreshSecret)
}

func (t *TokenIssuer) issue(userID, tokenType string, ttl time.Duration, secret []byte) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub": userID,
		"typ": tokenType,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	encoded, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", tokenType, err)
	}

	return encoded, nil
}

// Verify validates signature and expiry with the secret of the expected
// class and returns the subject. A token of the other class fails with
// ErrWrongTokenType rather than a generic signature error.
func (t *TokenIssuer) Verify(tokenStr, expectedType string) (string, error) {
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return "", ErrTokenMalformed
	}

	secret, other := t.accessSecret, t.refreshSecret
	if expectedType == TokenTypeRefresh {
		secret, other = t.refreshSecret, t.accessSecret
	}

	claims, err := parseClaims(tokenStr, secret)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		// A valid token of the other class fails the signature check
		// here. Surface that as a type mismatch, not as garbage.
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			if otherClaims, otherErr := parseClaims(tokenStr, other); otherErr == nil {
				if typ, _ := otherClaims["typ"].(string); typ != expectedType {
					return "", ErrWrongTokenType
				}
			}
		}
		return "", ErrTokenMalformed
	}

	if typ, _ := claims["typ"].(string); typ != expectedType {
		return "", ErrWrongTokenType
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", ErrTokenMalformed
	}

	return sub, nil
}

func parseClaims(tokenStr string, secret []byte) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenUnverifiable
	}

	return claims, nil
}
