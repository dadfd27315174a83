package auth

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/descope/virtualwebauthn"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uebergang/gateway/internal/ledger"
	"github.com/uebergang/gateway/internal/models"
	"github.com/uebergang/gateway/internal/storage"
)

const (
	testRPID   = "example.com"
	testOrigin = "https://example.com"
)

var testRP = virtualwebauthn.RelyingParty{
	Name:   "Example",
	ID:     testRPID,
	Origin: testOrigin,
}

func newTestEngine(t *testing.T) (*Engine, *storage.MemoryDirectory) {
	t.Helper()

	webAuthn, err := webauthn.New(&webauthn.Config{
		RPDisplayName: "Example",
		RPID:          testRPID,
		RPOrigins:     []string{testOrigin},
	})
	require.NoError(t, err)

	directory := storage.NewMemoryDirectory()
	store := storage.NewMemoryStateStore()
	return NewEngine(webAuthn, directory, ledger.New(store), []byte("test-secret")), directory
}

func createTestUser(t *testing.T, directory *storage.MemoryDirectory, id, email string) *models.User {
	t.Helper()

	ctx := context.Background()
	err := directory.UpdateUser(ctx, id, func(old *models.User) (*models.User, error) {
		now := time.Now()
		return &models.User{
			ID:          id,
			Email:       email,
			DisplayName: email,
			CreatedAt:   now,
			UpdatedAt:   now,
		}, nil
	})
	require.NoError(t, err)

	user, err := directory.GetUser(ctx, id)
	require.NoError(t, err)
	return user
}

func attestationWire(t *testing.T, raw string) *models.AttestationResponse {
	t.Helper()

	var parsed struct {
		ID       string `json:"id"`
		Response struct {
			AttestationObject string   `json:"attestationObject"`
			ClientDataJSON    string   `json:"clientDataJSON"`
			Transports        []string `json:"transports"`
		} `json:"response"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &parsed))
	return &models.AttestationResponse{
		ID:                parsed.ID,
		AttestationObject: parsed.Response.AttestationObject,
		ClientDataJSON:    parsed.Response.ClientDataJSON,
		Transports:        parsed.Response.Transports,
	}
}

func assertionWire(t *testing.T, raw string) *models.AssertionCredential {
	t.Helper()

	var cred models.AssertionCredential
	require.NoError(t, json.Unmarshal([]byte(raw), &cred))
	return &cred
}

// enrollTestCredential walks a full attestation ceremony and returns the
// stored credential.
func enrollTestCredential(t *testing.T, e *Engine, user *models.User, sessionID string,
	authenticator *virtualwebauthn.Authenticator, cred virtualwebauthn.Credential) *models.Credential {
	t.Helper()

	ctx := context.Background()
	token, options, err := e.StartAttestation(ctx, user, sessionID)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	optionsJSON, err := json.Marshal(options.Response)
	require.NoError(t, err)
	parsed, err := virtualwebauthn.ParseAttestationOptions(string(optionsJSON))
	require.NoError(t, err)

	raw := virtualwebauthn.CreateAttestationResponse(testRP, *authenticator, cred, *parsed)
	credential, err := e.VerifyAttestation(ctx, token, sessionID, attestationWire(t, raw))
	require.NoError(t, err)

	authenticator.AddCredential(cred)
	return credential
}

func TestEnrollCreatesCredential(t *testing.T) {
	ctx := context.Background()
	engine, directory := newTestEngine(t)
	user := createTestUser(t, directory, "user-1", "alice@example.com")

	authenticator := virtualwebauthn.NewAuthenticator()
	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	credential := enrollTestCredential(t, engine, user, "sess-1", &authenticator, cred)
	assert.Equal(t, models.DefaultCredentialName, credential.Name)
	assert.Equal(t, "sess-1", credential.CreatedBySessionID)
	assert.Equal(t, []string{"sess-1"}, credential.UsedBySessionIDs)
	assert.NotEmpty(t, credential.ID)

	stored, err := directory.GetUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, stored.Credentials, 1)
	assert.Equal(t, credential.ID, stored.Credentials[0].ID)
}

func TestEnrollTokenIsSingleUse(t *testing.T) {
	ctx := context.Background()
	engine, directory := newTestEngine(t)
	user := createTestUser(t, directory, "user-1", "alice@example.com")

	authenticator := virtualwebauthn.NewAuthenticator()
	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	token, options, err := engine.StartAttestation(ctx, user, "sess-1")
	require.NoError(t, err)

	optionsJSON, err := json.Marshal(options.Response)
	require.NoError(t, err)
	parsed, err := virtualwebauthn.ParseAttestationOptions(string(optionsJSON))
	require.NoError(t, err)
	raw := virtualwebauthn.CreateAttestationResponse(testRP, authenticator, cred, *parsed)
	wire := attestationWire(t, raw)

	_, err = engine.VerifyAttestation(ctx, token, "sess-1", wire)
	require.NoError(t, err)

	// Replaying the token must fail even with a valid response.
	_, err = engine.VerifyAttestation(ctx, token, "sess-1", wire)
	assert.ErrorIs(t, err, ErrChallengeMismatch)
}

func TestVerifyAttestationChecksSessionBinding(t *testing.T) {
	ctx := context.Background()
	engine, directory := newTestEngine(t)
	user := createTestUser(t, directory, "user-1", "alice@example.com")

	authenticator := virtualwebauthn.NewAuthenticator()
	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	token, options, err := engine.StartAttestation(ctx, user, "sess-1")
	require.NoError(t, err)

	optionsJSON, err := json.Marshal(options.Response)
	require.NoError(t, err)
	parsed, err := virtualwebauthn.ParseAttestationOptions(string(optionsJSON))
	require.NoError(t, err)
	raw := virtualwebauthn.CreateAttestationResponse(testRP, authenticator, cred, *parsed)

	_, err = engine.VerifyAttestation(ctx, token, "another-session", attestationWire(t, raw))
	assert.ErrorIs(t, err, ErrInvalidEnrollment)
}

func TestAssertionRoundTrip(t *testing.T) {
	ctx := context.Background()
	engine, directory := newTestEngine(t)
	user := createTestUser(t, directory, "user-1", "alice@example.com")

	authenticator := virtualwebauthn.NewAuthenticator()
	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	enrollTestCredential(t, engine, user, "sess-1", &authenticator, cred)

	user, err := directory.GetUser(ctx, "user-1")
	require.NoError(t, err)

	token, assertion, err := engine.StartAssertion(ctx, user, func(c *models.Ceremony) {})
	require.NoError(t, err)
	require.Len(t, assertion.Response.AllowedCredentials, 1)

	optionsJSON, err := json.Marshal(assertion.Response)
	require.NoError(t, err)
	parsed, err := virtualwebauthn.ParseAssertionOptions(string(optionsJSON))
	require.NoError(t, err)

	raw := virtualwebauthn.CreateAssertionResponse(testRP, authenticator, cred, *parsed)
	verified, ceremony, waCred, err := engine.VerifyAssertion(ctx, token, assertionWire(t, raw))
	require.NoError(t, err)
	assert.Equal(t, "user-1", verified.ID)
	assert.Equal(t, models.CeremonyAssert, ceremony.Purpose)

	require.NoError(t, engine.RecordAssertion(ctx, verified.ID, waCred, "sess-2"))
	stored, err := directory.GetUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, stored.Credentials, 1)
	assert.Contains(t, stored.Credentials[0].UsedBySessionIDs, "sess-2")
	assert.False(t, stored.Credentials[0].LastUsedAt.IsZero())
}

func TestAssertionTokenIsSingleUse(t *testing.T) {
	ctx := context.Background()
	engine, directory := newTestEngine(t)
	user := createTestUser(t, directory, "user-1", "alice@example.com")

	authenticator := virtualwebauthn.NewAuthenticator()
	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	enrollTestCredential(t, engine, user, "sess-1", &authenticator, cred)

	user, err := directory.GetUser(ctx, "user-1")
	require.NoError(t, err)

	token, assertion, err := engine.StartAssertion(ctx, user, func(c *models.Ceremony) {})
	require.NoError(t, err)

	optionsJSON, err := json.Marshal(assertion.Response)
	require.NoError(t, err)
	parsed, err := virtualwebauthn.ParseAssertionOptions(string(optionsJSON))
	require.NoError(t, err)
	raw := virtualwebauthn.CreateAssertionResponse(testRP, authenticator, cred, *parsed)
	wire := assertionWire(t, raw)

	_, _, _, err = engine.VerifyAssertion(ctx, token, wire)
	require.NoError(t, err)

	_, _, _, err = engine.VerifyAssertion(ctx, token, wire)
	assert.ErrorIs(t, err, ErrChallengeMismatch)
}

func TestVerifyAssertionUnknownToken(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)

	cred := &models.AssertionCredential{}
	_, _, _, err := engine.VerifyAssertion(ctx, "bogus-token", cred)
	assert.ErrorIs(t, err, ErrChallengeMismatch)
}

func TestPasswordlessAssertion(t *testing.T) {
	ctx := context.Background()
	engine, directory := newTestEngine(t)
	user := createTestUser(t, directory, "user-1", "alice@example.com")

	authenticator := virtualwebauthn.NewAuthenticator()
	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	enrollTestCredential(t, engine, user, "sess-1", &authenticator, cred)

	token, challenge, err := engine.StartPasswordlessAssertion()
	require.NoError(t, err)
	require.NotEmpty(t, challenge)

	// The assertion options are rebuilt from the signed token alone.
	optionsJSON, err := json.Marshal(protocol.PublicKeyCredentialRequestOptions{
		Challenge:        challenge,
		RelyingPartyID:   testRPID,
		UserVerification: protocol.VerificationRequired,
	})
	require.NoError(t, err)
	parsed, err := virtualwebauthn.ParseAssertionOptions(string(optionsJSON))
	require.NoError(t, err)

	discoverable := virtualwebauthn.NewAuthenticatorWithOptions(virtualwebauthn.AuthenticatorOptions{
		UserHandle: []byte("user-1"),
	})
	discoverable.AddCredential(cred)

	raw := virtualwebauthn.CreateAssertionResponse(testRP, discoverable, cred, *parsed)
	verified, ceremony, _, err := engine.VerifyAssertion(ctx, token, assertionWire(t, raw))
	require.NoError(t, err)
	assert.Equal(t, "user-1", verified.ID)
	assert.Equal(t, models.CeremonyAssert, ceremony.Purpose)
}

func TestPasswordlessUnknownUserHandle(t *testing.T) {
	ctx := context.Background()
	engine, directory := newTestEngine(t)
	user := createTestUser(t, directory, "user-1", "alice@example.com")

	authenticator := virtualwebauthn.NewAuthenticator()
	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	enrollTestCredential(t, engine, user, "sess-1", &authenticator, cred)

	token, challenge, err := engine.StartPasswordlessAssertion()
	require.NoError(t, err)

	optionsJSON, err := json.Marshal(protocol.PublicKeyCredentialRequestOptions{
		Challenge:        challenge,
		RelyingPartyID:   testRPID,
		UserVerification: protocol.VerificationRequired,
	})
	require.NoError(t, err)
	parsed, err := virtualwebauthn.ParseAssertionOptions(string(optionsJSON))
	require.NoError(t, err)

	discoverable := virtualwebauthn.NewAuthenticatorWithOptions(virtualwebauthn.AuthenticatorOptions{
		UserHandle: []byte("ghost-user"),
	})
	discoverable.AddCredential(cred)

	raw := virtualwebauthn.CreateAssertionResponse(testRP, discoverable, cred, *parsed)
	_, _, _, err = engine.VerifyAssertion(ctx, token, assertionWire(t, raw))
	assert.ErrorIs(t, err, ErrCredentialUnknown)
}
