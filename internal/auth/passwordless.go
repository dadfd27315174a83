package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/golang-jwt/jwt/v5"

	"github.com/uebergang/gateway/internal/models"
)

// PasswordlessTimeout is how long the browser gets to produce a
// discoverable-credential assertion.
const PasswordlessTimeout = 5 * time.Minute

// errNotPasswordless signals that a token is a ledger token, not a signed
// stateless one.
var errNotPasswordless = errors.New("not a passwordless token")

// StartPasswordlessAssertion issues a challenge for a usernameless signin,
// where the user is only learned from the authenticator's userHandle. No
// server-side state is kept; the challenge rides inside a signed token the
// client must echo back.
func (e *Engine) StartPasswordlessAssertion() (string, protocol.URLEncodedBase64, error) {
	challenge, err := protocol.CreateChallenge()
	if err != nil {
		return "", nil, fmt.Errorf("failed to create challenge: %w", err)
	}

	claims := jwt.RegisteredClaims{
		Subject:   base64.RawURLEncoding.EncodeToString(challenge),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(PasswordlessTimeout)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(e.passwordlessSecret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, challenge, nil
}

// passwordlessCeremony reconstructs ceremony state from a signed stateless
// token. The user is taken from the assertion's userHandle, which
// ValidateLogin later checks against the resolved user.
func (e *Engine) passwordlessCeremony(token string, cred *models.AssertionCredential) (*models.Ceremony, error) {
	if strings.Count(token, ".") != 2 {
		return nil, errNotPasswordless
	}

	claims := jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return e.passwordlessSecret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrChallengeExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrChallengeMismatch, err)
	}

	userHandle, err := base64.RawURLEncoding.DecodeString(cred.Response.UserHandle)
	if err != nil || len(userHandle) == 0 {
		return nil, fmt.Errorf("%w: missing user handle", ErrUserHandleMismatch)
	}

	return &models.Ceremony{
		Purpose: models.CeremonyAssert,
		UserID:  string(userHandle),
		Data: &webauthn.SessionData{
			Challenge:        claims.Subject,
			UserID:           userHandle,
			Expires:          claims.ExpiresAt.Time,
			UserVerification: protocol.VerificationRequired,
		},
	}, nil
}
