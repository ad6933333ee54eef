package linking

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/launchkit/pkg/token"
)

// DefaultTokenTTL is the lifetime of a linking token.
const DefaultTokenTTL = 15 * time.Minute

// Claims is the payload of a linking token.
type Claims struct {
	ID             string    `json:"jti"`
	Email          string    `json:"email"`
	Provider       string    `json:"provider"`
	ExistingUserID string    `json:"existing_user_id"`
	NewUserID      string    `json:"new_user_id"`
	ExpiresAt      time.Time `json:"exp"`
}

// ExpiredAt implements token.Expirer.
func (c Claims) ExpiredAt(now time.Time) bool {
	return c.ExpiresAt.IsZero() || !now.Before(c.ExpiresAt)
}

// TokenStore records consumed token ids. MarkUsed must be atomic: it
// returns false when id was already marked.
type TokenStore interface {
	MarkUsed(ctx context.Context, id string, ttl time.Duration) (bool, error)
}

// Tokens issues and verifies linking tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	store  TokenStore
	now    func() time.Time
}

type TokensOption func(*Tokens)

func WithTTL(ttl time.Duration) TokensOption {
	return func(t *Tokens) {
		if ttl > 0 {
			t.ttl = ttl
		}
	}
}

func WithTokenClock(now func() time.Time) TokensOption {
	return func(t *Tokens) {
		if now != nil {
			t.now = now
		}
	}
}

func NewTokens(secret []byte, store TokenStore, opts ...TokensOption) (*Tokens, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	if store == nil {
		store = NewMemoryStore(0)
	}
	t := &Tokens{secret: secret, ttl: DefaultTokenTTL, store: store, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Issue signs c with a fresh id and expiry.
func (t *Tokens) Issue(_ context.Context, c Claims) (string, error) {
	c.ID = uuid.NewString()
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	c.ExpiresAt = t.now().Add(t.ttl).UTC()
	return token.GenerateToken(c, t.secret)
}

// Verify checks signature, expiry and that the token was issued for the
// email and provider pair. It does not consume the token.
func (t *Tokens) Verify(tok, email, provider string) (Claims, error) {
	c, err := token.ParseTokenAt[Claims](tok, t.secret, t.now())
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, errors.Join(ErrInvalidToken, err)
	}
	if c.ID == "" {
		return Claims{}, ErrInvalidToken
	}
	if !strings.EqualFold(c.Email, strings.TrimSpace(email)) || !strings.EqualFold(c.Provider, strings.TrimSpace(provider)) {
		return Claims{}, ErrTokenMismatch
	}
	return c, nil
}

// Consume verifies the token and marks it used. A second Consume of the
// same token fails with ErrTokenAlreadyUsed.
func (t *Tokens) Consume(ctx context.Context, tok, email, provider string) (Claims, error) {
	c, err := t.Verify(tok, email, provider)
	if err != nil {
		return Claims{}, err
	}
	ttl := c.ExpiresAt.Sub(t.now())
	if ttl < time.Second {
		ttl = time.Second
	}
	fresh, err := t.store.MarkUsed(ctx, c.ID, ttl)
	if err != nil {
		return Claims{}, err
	}
	if !fresh {
		return Claims{}, ErrTokenAlreadyUsed
	}
	return c, nil
}
