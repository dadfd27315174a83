// Package signin implements the cross-device PIN signin flow: a device
// without credentials requests a PIN, an already signed-in device confirms
// it with an assertion, and the requesting device picks up its session by
// polling.
package signin

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/uebergang/gateway/internal/auth"
	"github.com/uebergang/gateway/internal/models"
	"github.com/uebergang/gateway/internal/session"
	"github.com/uebergang/gateway/internal/storage"
)

const (
	// RequestTTL bounds how long a pending PIN request stays confirmable.
	RequestTTL = 5 * time.Minute

	// RecoveryTTL bounds admin-issued recovery links. Recovery requests are
	// born confirmed; the link holder just has to poll before this runs out.
	RecoveryTTL = 7 * 24 * time.Hour

	pinAttempts = 10
)

var (
	ErrUnknownEmail   = errors.New("unknown email")
	ErrInvalidToken   = errors.New("unknown signin request")
	ErrExpiredRequest = errors.New("signin request expired")
	ErrInvalidPin     = errors.New("invalid pin")
)

type Manager struct {
	store     storage.StateStore
	directory storage.Directory
	engine    *auth.Engine
	sessions  *session.Issuer
	adminFqdn string
}

func NewManager(store storage.StateStore, directory storage.Directory, engine *auth.Engine, sessions *session.Issuer, adminFqdn string) *Manager {
	return &Manager{
		store:     store,
		directory: directory,
		engine:    engine,
		sessions:  sessions,
		adminFqdn: adminFqdn,
	}
}

func (m *Manager) confirmURL() string {
	return "https://" + m.adminFqdn + "/confirm/"
}

func randomPin() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("failed to generate pin: %w", err)
	}
	return fmt.Sprintf("%06d", n), nil
}

// Create starts a PIN signin for the device identified by userAgent and ip.
// The PIN is unique among pending requests; on a collision a fresh one is
// drawn.
func (m *Manager) Create(ctx context.Context, email, userAgent, ip string) (*models.SigninRequest, error) {
	user, err := m.directory.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, ErrUnknownEmail
	}

	now := time.Now()
	for attempt := 0; attempt < pinAttempts; attempt++ {
		pin, err := randomPin()
		if err != nil {
			return nil, err
		}

		req := &models.SigninRequest{
			ID:        uuid.New().String(),
			Pin:       pin,
			UserID:    user.ID,
			UserAgent: userAgent,
			IP:        ip,
			CreatedAt: now,
			ExpiresAt: now.Add(RequestTTL),
		}
		err = m.store.PutSigninRequest(ctx, req)
		if errors.Is(err, storage.ErrPinInUse) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return req, nil
	}
	return nil, errors.New("failed to allocate a free pin")
}

// Pending describes a request still waiting for confirmation: what the
// polling device should display.
type Pending struct {
	Pin        string
	ConfirmURL string
	QRCodeURL  string
}

// PollResult is either pending or done. When done, Cookie holds the
// encoded session value minted for the polling device.
type PollResult struct {
	Pending *Pending
	Cookie  string
}

// Poll reports the state of a signin request. Once the request is
// confirmed the first poll attaches a session; later polls see the same
// one. userAgent and ip describe the polling device and end up on the
// minted session for recovery requests, which carry no cookie of their
// own yet.
func (m *Manager) Poll(ctx context.Context, id, userAgent, ip string) (*PollResult, error) {
	req, err := m.store.GetSigninRequest(ctx, id)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if req.Expired(time.Now()) {
		return nil, ErrExpiredRequest
	}

	if !req.Confirmed {
		png, err := qrcode.Encode(m.confirmURL()+req.Pin, qrcode.Low, 256)
		if err != nil {
			return nil, fmt.Errorf("failed to render qr code: %w", err)
		}
		return &PollResult{Pending: &Pending{
			Pin:        req.Pin,
			ConfirmURL: m.confirmURL(),
			QRCodeURL:  "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		}}, nil
	}

	if req.Cookie != "" {
		return &PollResult{Cookie: req.Cookie}, nil
	}

	// Confirmed but no session yet: a recovery request. The first poller
	// wins the session; a concurrent loser throws its mint away and takes
	// the winner's.
	sess, err := m.sessions.Mint(ctx, req.UserID, userAgent, ip)
	if err != nil {
		return nil, err
	}
	value := session.Encode(sess)

	err = m.store.AttachSigninCookie(ctx, id, value)
	if errors.Is(err, storage.ErrAlreadyConfirmed) {
		if rerr := m.sessions.Revoke(ctx, sess.ID); rerr != nil {
			slog.Warn("Failed to revoke losing session", "session", sess.ID, "error", rerr)
		}
		req, err = m.store.GetSigninRequest(ctx, id)
		if err != nil || req.Cookie == "" {
			return nil, ErrInvalidToken
		}
		return &PollResult{Cookie: req.Cookie}, nil
	}
	if err != nil {
		return nil, err
	}
	return &PollResult{Cookie: value}, nil
}

// QueryResult describes a signin request to the confirming device. For a
// still-pending request it carries a fresh assertion bound to that
// request, which Confirm later expects back.
type QueryResult struct {
	Request   *models.SigninRequest
	Token     string
	Assertion *protocol.CredentialAssertion
}

// QueryByPin looks up a pending request by PIN on behalf of a signed-in
// user. Only the user's own requests are visible; anything else reads as
// an invalid PIN.
func (m *Manager) QueryByPin(ctx context.Context, user *models.User, sessionID, pin string) (*QueryResult, error) {
	clean := strings.TrimSpace(pin)
	clean = strings.ReplaceAll(clean, "-", "")
	clean = strings.ReplaceAll(clean, " ", "")

	req, err := m.store.GetSigninRequestByPin(ctx, clean)
	if err != nil {
		return nil, ErrInvalidPin
	}
	if req.UserID != user.ID {
		return nil, ErrInvalidPin
	}

	result := &QueryResult{Request: req}
	if !req.Confirmed {
		token, assertion, err := m.engine.StartAssertion(ctx, user, func(c *models.Ceremony) {
			c.Purpose = models.CeremonyConfirm
			c.SigninRequestID = req.ID
			c.SessionID = sessionID
		})
		if err != nil {
			return nil, err
		}
		result.Token = token
		result.Assertion = assertion
	}
	return result, nil
}

// Confirm validates the confirming device's assertion and flips the
// request to confirmed, minting the session the requesting device will
// pick up. The ceremony must have been issued by QueryByPin to the same
// user and browser session. Exactly one confirmation wins; a concurrent
// loser's session is revoked again.
func (m *Manager) Confirm(ctx context.Context, user *models.User, sessionID, token string, cred *models.AssertionCredential) error {
	verified, ceremony, waCred, err := m.engine.VerifyAssertion(ctx, token, cred)
	if err != nil {
		return err
	}
	if ceremony.Purpose != models.CeremonyConfirm ||
		ceremony.SessionID != sessionID ||
		verified.ID != user.ID {
		return auth.ErrInvalidEnrollment
	}

	if err := m.engine.RecordAssertion(ctx, verified.ID, waCred, sessionID); err != nil {
		slog.Warn("Failed to record assertion", "user", verified.ID, "error", err)
	}

	req, err := m.store.GetSigninRequest(ctx, ceremony.SigninRequestID)
	if err != nil {
		return ErrInvalidToken
	}
	if req.Expired(time.Now()) {
		return ErrExpiredRequest
	}

	// The session belongs to the requesting device, so it gets the
	// user agent and address recorded when the request was created.
	sess, err := m.sessions.Mint(ctx, req.UserID, req.UserAgent, req.IP)
	if err != nil {
		return err
	}

	err = m.store.ConfirmSigninRequest(ctx, req.ID, session.Encode(sess))
	if err != nil {
		if rerr := m.sessions.Revoke(ctx, sess.ID); rerr != nil {
			slog.Warn("Failed to revoke losing session", "session", sess.ID, "error", rerr)
		}
		if errors.Is(err, storage.ErrAlreadyConfirmed) {
			return auth.ErrInvalidEnrollment
		}
		return err
	}
	return nil
}

// CreateRecovery issues a pre-confirmed signin request for a user who lost
// all their credentials. The returned URL goes to the user out of band;
// opening it polls the request and picks up a fresh session.
func (m *Manager) CreateRecovery(ctx context.Context, userID string) (*models.SigninRequest, string, error) {
	if _, err := m.directory.GetUser(ctx, userID); err != nil {
		return nil, "", err
	}

	now := time.Now()
	req := &models.SigninRequest{
		ID:        uuid.New().String(),
		UserID:    userID,
		Confirmed: true,
		CreatedAt: now,
		ExpiresAt: now.Add(RecoveryTTL),
	}
	if err := m.store.PutSigninRequest(ctx, req); err != nil {
		return nil, "", err
	}

	return req, "https://" + m.adminFqdn + "/signin/" + req.ID, nil
}
