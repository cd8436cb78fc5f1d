package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/toko-wenjoy/internal/common"
)

// Tokens issues and verifies the HS256 bearer tokens storefront backends use
// to call the checkout API.
type Tokens struct {
	Secret    []byte
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	Now       func() time.Time
}

// Issue signs a token for subject valid for ttl.
func (t Tokens) Issue(subject string, ttl time.Duration) (string, error) {
	if len(t.Secret) == 0 {
		return "", errors.New("auth: secret not configured")
	}
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("auth: subject is required")
	}
	now := t.now()
	builder := jwt.NewBuilder().
		Subject(subject).
		IssuedAt(now).
		NotBefore(now).
		Expiration(now.Add(ttl))
	if t.Issuer != "" {
		builder = builder.Issuer(t.Issuer)
	}
	if t.Audience != "" {
		builder = builder.Audience([]string{t.Audience})
	}
	tok, err := builder.Build()
	if err != nil {
		return "", fmt.Errorf("auth: build token: %w", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, t.Secret))
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return string(signed), nil
}

// Verify checks signature, algorithm, issuer, audience and expiry and returns the subject.
func (t Tokens) Verify(raw string) (string, error) {
	if len(t.Secret) == 0 {
		return "", common.NewAppError("AUTH_NOT_CONFIGURED", "authentication unavailable", http.StatusInternalServerError, nil)
	}
	options := []jwt.ParseOption{
		jwt.WithKey(jwa.HS256, t.Secret),
		jwt.WithValidate(true),
		jwt.WithClock(jwt.ClockFunc(t.now)),
	}
	if t.ClockSkew > 0 {
		options = append(options, jwt.WithAcceptableSkew(t.ClockSkew))
	}
	if t.Issuer != "" {
		options = append(options, jwt.WithIssuer(t.Issuer))
	}
	if t.Audience != "" {
		options = append(options, jwt.WithAudience(t.Audience))
	}
	tok, err := jwt.Parse([]byte(raw), options...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired()) {
			return "", common.NewAppError("TOKEN_EXPIRED", "token expired", http.StatusUnauthorized, err)
		}
		return "", common.NewAppError("UNAUTHORIZED", "missing or invalid token", http.StatusUnauthorized, err)
	}
	subject := strings.TrimSpace(tok.Subject())
	if subject == "" {
		return "", common.NewAppError("UNAUTHORIZED", "token has no subject", http.StatusUnauthorized, nil)
	}
	return subject, nil
}

func (t Tokens) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}
