// Package session mints and validates the browser sessions behind the
// gateway cookie.
package session

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/uebergang/gateway/internal/models"
	"github.com/uebergang/gateway/internal/storage"
)

const (
	// CookieName is shared with the proxy tier, which strips the cookie
	// before forwarding requests upstream.
	CookieName = "__ug_sess"

	// RedirectParam carries the cookie value across origins when a signin
	// redirect lands on a protected backend host.
	RedirectParam = "_ubergang_session"

	cookieExpiry = 10 * 365 * 24 * time.Hour

	idLength     = 12
	secretLength = 12
	alphabet     = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var ErrInvalidSession = errors.New("invalid session")

// Issuer mints opaque id:secret sessions backed by the state store. The
// secret never leaves the cookie value; lookups by id alone (session lists,
// admin revocation) go through Reuse.
type Issuer struct {
	store storage.StateStore
}

func NewIssuer(store storage.StateStore) *Issuer {
	return &Issuer{store: store}
}

func randomToken(length int) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate token: %w", err)
		}
		out[i] = alphabet[n.Int64()]
	}
	return string(out), nil
}

// Mint creates and persists a session for the user. userAgent and
// remoteAddr describe the device the session belongs to, which may be a
// different device than the one completing the ceremony (cross-device
// signin).
func (i *Issuer) Mint(ctx context.Context, userID, userAgent, remoteAddr string) (*models.Session, error) {
	id, err := randomToken(idLength)
	if err != nil {
		return nil, err
	}
	secret, err := randomToken(secretLength)
	if err != nil {
		return nil, err
	}

	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		remoteAddr = host
	}

	now := time.Now()
	session := &models.Session{
		ID:         id,
		Secret:     secret,
		UserID:     userID,
		UserAgent:  userAgent,
		RemoteAddr: remoteAddr,
		CreatedAt:  now,
		AccessedAt: now,
	}
	if err := i.store.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return session, nil
}

// Encode renders the cookie value for a session.
func Encode(session *models.Session) string {
	return session.ID + ":" + session.Secret
}

// Cookie builds the long-lived session cookie from an encoded value.
func Cookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:    CookieName,
		Value:   value,
		Path:    "/",
		Expires: time.Now().Add(cookieExpiry),
		Secure:  true,
	}
}

// Authenticate resolves an id:secret cookie value to its session. The
// secret comparison is constant time.
func (i *Issuer) Authenticate(ctx context.Context, value string) (*models.Session, error) {
	id, secret, ok := strings.Cut(value, ":")
	if !ok {
		return nil, ErrInvalidSession
	}

	session, err := i.store.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(session.Secret), []byte(secret)) != 1 {
		return nil, ErrInvalidSession
	}

	session.AccessedAt = time.Now()
	if err := i.store.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to touch session: %w", err)
	}
	return session, nil
}

// Reuse loads a session by id without checking the secret. Only for
// server-side references (credential bookkeeping, admin views), never for
// authenticating a request.
func (i *Issuer) Reuse(ctx context.Context, id string) (*models.Session, error) {
	session, err := i.store.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, err
	}
	return session, nil
}

// Revoke deletes a session. Revoking an unknown session is not an error.
func (i *Issuer) Revoke(ctx context.Context, id string) error {
	return i.store.DeleteSession(ctx, id)
}

// RevokeAll deletes every session belonging to the user.
func (i *Issuer) RevokeAll(ctx context.Context, userID string) error {
	return i.store.DeleteUserSessions(ctx, userID)
}

// List returns the user's sessions.
func (i *Issuer) List(ctx context.Context, userID string) ([]*models.Session, error) {
	return i.store.ListSessions(ctx, userID)
}

// DecorateRedirect appends the session value to a redirect target so the
// destination host can set its own copy of the cookie. Invalid targets are
// returned unchanged.
func DecorateRedirect(target, value string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	q.Set(RedirectParam, value)
	u.RawQuery = q.Encode()
	return u.String()
}
