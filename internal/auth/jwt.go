package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	BearerPrefix = "Bearer "
)

// TokenAuthEngine authenticates requests carrying an HS256-signed bearer
// token and issues such tokens for authenticated subjects.
type TokenAuthEngine struct {
	secretKey []byte
	validity  time.Duration
}

// NewTokenAuthEngine creates a TokenAuthEngine signing and verifying tokens
// with the given secret. Issued tokens expire after validity.
func NewTokenAuthEngine(secretKey []byte, validity time.Duration) *TokenAuthEngine {
	return &TokenAuthEngine{
		secretKey: secretKey,
		validity:  validity,
	}
}

// IssueToken signs a token for the given subject.
func (e *TokenAuthEngine) IssueToken(subject string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(e.validity)),
	})

	return token.SignedString(e.secretKey)
}

// AuthenticateRequest checks the Authorization header for a valid bearer
// token. It returns the token's subject as the request identity, or nil when
// the header is missing, malformed, expired, or signed with the wrong key.
func (e *TokenAuthEngine) AuthenticateRequest(ctx context.Context, rq *http.Request) (*Identity, error) {
	header := rq.Header.Get("Authorization")
	if !strings.HasPrefix(header, BearerPrefix) {
		return nil, nil
	}

	raw := strings.TrimSpace(header[len(BearerPrefix):])

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return e.secretKey, nil
	})
	if err != nil || !token.Valid || claims.Subject == "" {
		return nil, nil
	}

	return &Identity{Subject: claims.Subject}, nil
}
