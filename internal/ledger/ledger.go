// Package ledger issues and consumes the single-use tokens that bind a
// WebAuthn challenge to one in-flight ceremony.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/uebergang/gateway/internal/models"
	"github.com/uebergang/gateway/internal/storage"
)

var (
	ErrNotFound        = storage.ErrNotFound
	ErrExpired         = storage.ErrExpired
	ErrAlreadyConsumed = storage.ErrAlreadyConsumed
)

// DefaultTTL bounds a ceremony when the WebAuthn layer does not supply its
// own expiry. Matches the 300000 ms timeout communicated to the browser.
const DefaultTTL = 5 * time.Minute

type Ledger struct {
	store storage.StateStore
}

func New(store storage.StateStore) *Ledger {
	return &Ledger{store: store}
}

// Issue stamps the ceremony with a fresh opaque token and expiry and
// persists it. Tokens are UUIDv7 so they carry no guessable structure and
// sort by issue time. The challenge entropy itself lives inside the
// ceremony's WebAuthn session data.
func (l *Ledger) Issue(ctx context.Context, ceremony *models.Ceremony, ttl time.Duration) (string, error) {
	token, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ceremony.Token = token.String()
	ceremony.ExpiresAt = time.Now().Add(ttl)

	if err := l.store.PutCeremony(ctx, ceremony); err != nil {
		return "", fmt.Errorf("failed to store ceremony: %w", err)
	}
	return ceremony.Token, nil
}

// Consume atomically redeems a token. Exactly one concurrent caller gets
// the ceremony back; replays fail with ErrAlreadyConsumed and stale tokens
// with ErrExpired. There is no way back from any of those outcomes: a
// failed verification needs a fresh ceremony.
func (l *Ledger) Consume(ctx context.Context, token string) (*models.Ceremony, error) {
	return l.store.ConsumeCeremony(ctx, token)
}
