// Package auth implements the WebAuthn ceremony engine: it starts
// assertion and attestation ceremonies, binds them to single-use ledger
// tokens and validates the browser's responses against stored credentials.
package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"

	"github.com/uebergang/gateway/internal/ledger"
	"github.com/uebergang/gateway/internal/models"
	"github.com/uebergang/gateway/internal/storage"
)

var (
	ErrChallengeExpired   = errors.New("challenge expired")
	ErrChallengeMismatch  = errors.New("challenge mismatch")
	ErrSignatureInvalid   = errors.New("signature invalid")
	ErrCredentialUnknown  = errors.New("credential unknown")
	ErrUserHandleMismatch = errors.New("user handle mismatch")
	ErrAttestationInvalid = errors.New("attestation invalid")
	ErrInvalidEnrollment  = errors.New("invalid enrollment")
)

type Engine struct {
	webAuthn  *webauthn.WebAuthn
	directory storage.Directory
	ledger    *ledger.Ledger

	// passwordlessSecret signs the stateless tokens of the discoverable
	// signin flow.
	passwordlessSecret []byte
}

func NewEngine(webAuthn *webauthn.WebAuthn, directory storage.Directory, led *ledger.Ledger, passwordlessSecret []byte) *Engine {
	return &Engine{
		webAuthn:           webAuthn,
		directory:          directory,
		ledger:             led,
		passwordlessSecret: passwordlessSecret,
	}
}

func (e *Engine) RPID() string {
	return e.webAuthn.Config.RPID
}

// StartAssertion begins a signin assertion for a known user. The browser
// gets allowCredentials populated from the user's registered credentials;
// the session data goes into the ledger under a fresh single-use token.
// bind stamps flow metadata (purpose, signin-request binding) onto the
// ceremony before it is stored.
func (e *Engine) StartAssertion(ctx context.Context, user *models.User, bind func(c *models.Ceremony)) (string, *protocol.CredentialAssertion, error) {
	options, sessionData, err := e.webAuthn.BeginLogin(user)
	if err != nil {
		return "", nil, fmt.Errorf("failed to begin assertion: %w", err)
	}

	ceremony := &models.Ceremony{
		Purpose: models.CeremonyAssert,
		UserID:  user.ID,
		Data:    sessionData,
	}
	bind(ceremony)

	token, err := e.ledger.Issue(ctx, ceremony, time.Until(sessionData.Expires))
	if err != nil {
		return "", nil, err
	}
	return token, options, nil
}

// VerifyAssertion consumes the token and validates the browser's assertion
// response against the issued challenge and the user's stored credentials.
// Issuing a new assertion never revokes earlier outstanding ones; each
// ceremony stands alone.
func (e *Engine) VerifyAssertion(ctx context.Context, token string, cred *models.AssertionCredential) (*models.User, *models.Ceremony, *webauthn.Credential, error) {
	ceremony, err := e.passwordlessCeremony(token, cred)
	if errors.Is(err, errNotPasswordless) {
		ceremony, err = e.ledger.Consume(ctx, token)
		if err != nil {
			return nil, nil, nil, consumeError(err)
		}
	} else if err != nil {
		return nil, nil, nil, err
	}

	user, err := e.directory.GetUser(ctx, ceremony.UserID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: user %s", ErrCredentialUnknown, ceremony.UserID)
	}

	parsed, err := parseAssertionCredential(cred)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	waCred, err := e.webAuthn.ValidateLogin(user, *ceremony.Data, parsed)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	if waCred.Authenticator.CloneWarning {
		// Counter regression. Flagged and persisted, not a hard failure.
		slog.Warn("Authenticator clone warning", "user", user.ID,
			"credential", models.CredentialShortID(waCred.ID))
	}

	return user, ceremony, waCred, nil
}

// RecordAssertion updates the stored credential's bookkeeping after a
// successful assertion: last-used timestamp, signature counter, clone flag
// and the session that used it.
func (e *Engine) RecordAssertion(ctx context.Context, userID string, waCred *webauthn.Credential, sessionID string) error {
	return e.directory.UpdateUser(ctx, userID, func(old *models.User) (*models.User, error) {
		if old == nil {
			return nil, ErrCredentialUnknown
		}
		stored := old.FindCredential(waCred.ID)
		if stored == nil {
			return nil, ErrCredentialUnknown
		}

		stored.LastUsedAt = time.Now()
		stored.WebAuthn.Authenticator.SignCount = waCred.Authenticator.SignCount
		stored.WebAuthn.Authenticator.CloneWarning = waCred.Authenticator.CloneWarning
		if sessionID != "" && !contains(stored.UsedBySessionIDs, sessionID) {
			stored.UsedBySessionIDs = append(stored.UsedBySessionIDs, sessionID)
		}
		return old, nil
	})
}

// StartAttestation begins credential enrollment for an authenticated user.
// The user's existing credential ids go into excludeCredentials so the same
// authenticator cannot be registered twice.
func (e *Engine) StartAttestation(ctx context.Context, user *models.User, sessionID string) (string, *protocol.CredentialCreation, error) {
	options, sessionData, err := e.webAuthn.BeginRegistration(user,
		webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			RequireResidentKey: protocol.ResidentKeyRequired(),
			ResidentKey:        protocol.ResidentKeyRequirementRequired,
			UserVerification:   protocol.VerificationRequired,
		}),
		webauthn.WithExclusions(user.CredentialDescriptors()),
	)
	if err != nil {
		return "", nil, fmt.Errorf("failed to begin attestation: %w", err)
	}

	ceremony := &models.Ceremony{
		Purpose:   models.CeremonyEnroll,
		UserID:    user.ID,
		SessionID: sessionID,
		Data:      sessionData,
	}

	token, err := e.ledger.Issue(ctx, ceremony, time.Until(sessionData.Expires))
	if err != nil {
		return "", nil, err
	}
	return token, options, nil
}

// VerifyAttestation consumes the enrollment token, validates the
// attestation response and appends the resulting credential to the user.
// The session binding must match the session that started the enrollment.
func (e *Engine) VerifyAttestation(ctx context.Context, token, sessionID string, resp *models.AttestationResponse) (*models.Credential, error) {
	ceremony, err := e.ledger.Consume(ctx, token)
	if err != nil {
		return nil, consumeError(err)
	}
	if ceremony.Purpose != models.CeremonyEnroll || ceremony.SessionID != sessionID {
		return nil, ErrInvalidEnrollment
	}

	user, err := e.directory.GetUser(ctx, ceremony.UserID)
	if err != nil {
		return nil, ErrInvalidEnrollment
	}

	parsed, err := parseAttestationResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAttestationInvalid, err)
	}

	waCred, err := e.webAuthn.CreateCredential(user, *ceremony.Data, parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAttestationInvalid, err)
	}

	now := time.Now()
	credential := &models.Credential{
		ID:                 models.CredentialShortID(waCred.ID),
		Name:               models.DefaultCredentialName,
		AAGUID:             formatAAGUID(waCred.Authenticator.AAGUID),
		Transports:         transportStrings(waCred.Transport),
		CreatedAt:          now,
		LastUsedAt:         now,
		CreatedBySessionID: sessionID,
		UsedBySessionIDs:   []string{sessionID},
		WebAuthn:           *waCred,
	}

	err = e.directory.UpdateUser(ctx, user.ID, func(old *models.User) (*models.User, error) {
		if old == nil {
			return nil, errors.New("user deleted during enrollment")
		}
		for _, existing := range old.Credentials {
			if existing.ID == credential.ID {
				return nil, errors.New("credential already registered")
			}
		}
		old.Credentials = append(old.Credentials, *credential)
		old.UpdatedAt = now
		return old, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnrollment, err)
	}

	return credential, nil
}

func consumeError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrExpired):
		return ErrChallengeExpired
	case errors.Is(err, ledger.ErrAlreadyConsumed), errors.Is(err, ledger.ErrNotFound):
		return ErrChallengeMismatch
	default:
		return err
	}
}

// parseAssertionCredential converts the wire representation (base64url
// strings) into go-webauthn's parsed assertion type.
func parseAssertionCredential(cred *models.AssertionCredential) (*protocol.ParsedCredentialAssertionData, error) {
	rawID, err := base64.RawURLEncoding.DecodeString(cred.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid credential id: %w", err)
	}

	car := protocol.CredentialAssertionResponse{}
	car.ID = cred.ID
	car.RawID = rawID
	car.Type = "public-key"
	car.AssertionResponse.ClientDataJSON, _ = base64.RawURLEncoding.DecodeString(cred.Response.ClientDataJSON)
	car.AssertionResponse.AuthenticatorData, _ = base64.RawURLEncoding.DecodeString(cred.Response.AuthenticatorData)
	car.AssertionResponse.Signature, _ = base64.RawURLEncoding.DecodeString(cred.Response.Signature)
	car.AssertionResponse.UserHandle, _ = base64.RawURLEncoding.DecodeString(cred.Response.UserHandle)

	return car.Parse()
}

func parseAttestationResponse(resp *models.AttestationResponse) (*protocol.ParsedCredentialCreationData, error) {
	rawID, err := base64.RawURLEncoding.DecodeString(resp.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid credential id: %w", err)
	}

	ccr := protocol.CredentialCreationResponse{}
	ccr.ID = resp.ID
	ccr.RawID = rawID
	ccr.Type = "public-key"
	ccr.AttestationResponse.ClientDataJSON, _ = base64.RawURLEncoding.DecodeString(resp.ClientDataJSON)
	ccr.AttestationResponse.AttestationObject, _ = base64.RawURLEncoding.DecodeString(resp.AttestationObject)
	ccr.AttestationResponse.Transports = resp.Transports

	return ccr.Parse()
}

func formatAAGUID(aaguid []byte) string {
	id, err := uuid.FromBytes(aaguid)
	if err != nil {
		return base64.RawURLEncoding.EncodeToString(aaguid)
	}
	return id.String()
}

func transportStrings(transports []protocol.AuthenticatorTransport) []string {
	out := make([]string, 0, len(transports))
	for _, t := range transports {
		out = append(out, string(t))
	}
	return out
}

func contains(haystack []string, needle string) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}
