package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/descope/virtualwebauthn"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uebergang/gateway/internal/auth"
	"github.com/uebergang/gateway/internal/ledger"
	"github.com/uebergang/gateway/internal/models"
	"github.com/uebergang/gateway/internal/session"
	"github.com/uebergang/gateway/internal/signin"
	"github.com/uebergang/gateway/internal/storage"
)

var testRP = virtualwebauthn.RelyingParty{
	Name:   "Example",
	ID:     "example.com",
	Origin: "https://example.com",
}

type apiEnv struct {
	ts        *httptest.Server
	directory *storage.MemoryDirectory
	engine    *auth.Engine
	sessions  *session.Issuer
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	webAuthn, err := webauthn.New(&webauthn.Config{
		RPDisplayName: "Example",
		RPID:          testRP.ID,
		RPOrigins:     []string{testRP.Origin},
	})
	require.NoError(t, err)

	store := storage.NewMemoryStateStore()
	directory := storage.NewMemoryDirectory()
	engine := auth.NewEngine(webAuthn, directory, ledger.New(store), []byte("test-secret"))
	sessions := session.NewIssuer(store)
	manager := signin.NewManager(store, directory, engine, sessions, "admin.example.com")

	mux := http.NewServeMux()
	NewServer(directory, sessions, engine, manager).Routes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return &apiEnv{ts: ts, directory: directory, engine: engine, sessions: sessions}
}

// do sends a JSON request. cookie is the raw session value, or "" for an
// anonymous request. out is decoded from the response body when non-nil.
func (e *apiEnv) do(t *testing.T, method, path, cookie string, body, out any) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: session.CookieName, Value: cookie})
	}

	resp, err := e.ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func (e *apiEnv) createUser(t *testing.T, id, email string, admin bool) *models.User {
	t.Helper()

	ctx := context.Background()
	err := e.directory.UpdateUser(ctx, id, func(old *models.User) (*models.User, error) {
		now := time.Now()
		return &models.User{
			ID:          id,
			Email:       email,
			DisplayName: email,
			IsAdmin:     admin,
			CreatedAt:   now,
			UpdatedAt:   now,
		}, nil
	})
	require.NoError(t, err)

	user, err := e.directory.GetUser(ctx, id)
	require.NoError(t, err)
	return user
}

func (e *apiEnv) mintSession(t *testing.T, userID string) (string, *models.Session) {
	t.Helper()

	sess, err := e.sessions.Mint(context.Background(), userID, "test-ua", "203.0.113.1")
	require.NoError(t, err)
	return session.Encode(sess), sess
}

// enrollCredential registers a credential through the engine directly so
// flow tests can sign assertions.
func (e *apiEnv) enrollCredential(t *testing.T, userID string) (*virtualwebauthn.Authenticator, virtualwebauthn.Credential) {
	t.Helper()

	ctx := context.Background()
	user, err := e.directory.GetUser(ctx, userID)
	require.NoError(t, err)

	token, options, err := e.engine.StartAttestation(ctx, user, "enroll-sess")
	require.NoError(t, err)

	optionsJSON, err := json.Marshal(options.Response)
	require.NoError(t, err)
	parsed, err := virtualwebauthn.ParseAttestationOptions(string(optionsJSON))
	require.NoError(t, err)

	authenticator := virtualwebauthn.NewAuthenticator()
	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	raw := virtualwebauthn.CreateAttestationResponse(testRP, authenticator, cred, *parsed)
	_, err = e.engine.VerifyAttestation(ctx, token, "enroll-sess", attestationWire(t, raw))
	require.NoError(t, err)

	authenticator.AddCredential(cred)
	return &authenticator, cred
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

// signWire signs wire-format assertion options and returns the credential
// the webauthn endpoints expect back.
func signWire(t *testing.T, authenticator *virtualwebauthn.Authenticator,
	cred virtualwebauthn.Credential, request AssertionRequest) models.AssertionCredential {
	t.Helper()

	optionsJSON, err := json.Marshal(request)
	require.NoError(t, err)
	parsed, err := virtualwebauthn.ParseAssertionOptions(string(optionsJSON))
	require.NoError(t, err)

	raw := virtualwebauthn.CreateAssertionResponse(testRP, *authenticator, cred, *parsed)
	var out models.AssertionCredential
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	return out
}

// cookieValue extracts the session value from a serialized Set-Cookie line.
func cookieValue(t *testing.T, setCookie string) string {
	t.Helper()

	require.True(t, strings.HasPrefix(setCookie, session.CookieName+"="))
	value := strings.TrimPrefix(setCookie, session.CookieName+"=")
	if i := strings.Index(value, ";"); i >= 0 {
		value = value[:i]
	}
	return value
}

func TestHealthEndpoint(t *testing.T) {
	env := newAPIEnv(t)

	var out map[string]string
	resp := env.do(t, http.MethodGet, "/health", "", nil, &out)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", out["status"])
}

func TestRequireSessionCookie(t *testing.T) {
	env := newAPIEnv(t)

	resp := env.do(t, http.MethodGet, "/api/user/me", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/user/me", "bogus:cookie", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSigninStartShape(t *testing.T) {
	env := newAPIEnv(t)

	var out StartSigninResponse
	resp := env.do(t, http.MethodGet, "/api/signin/start", "", nil, &out)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, strings.Count(out.Token, "."))
	assert.NotEmpty(t, out.AssertionRequest.Challenge)
	assert.Equal(t, "example.com", out.AssertionRequest.RPID)
	assert.Equal(t, "required", out.AssertionRequest.UserVerification)
	assert.Empty(t, out.AssertionRequest.AllowCredentials)
}

func TestSigninEmailErrors(t *testing.T) {
	env := newAPIEnv(t)
	env.createUser(t, "user-1", "alice@example.com", false)

	// Unknown and empty emails answer identically.
	var out SigninEmailResponse
	env.do(t, http.MethodPost, "/api/signin/email", "", SigninEmailRequest{Email: "nobody@example.com"}, &out)
	require.NotNil(t, out.Error)
	assert.True(t, out.Error.WrongEmail)

	out = SigninEmailResponse{}
	env.do(t, http.MethodPost, "/api/signin/email", "", SigninEmailRequest{}, &out)
	require.NotNil(t, out.Error)
	assert.True(t, out.Error.WrongEmail)

	// A known user without credentials is told to use another device.
	out = SigninEmailResponse{}
	env.do(t, http.MethodPost, "/api/signin/email", "", SigninEmailRequest{Email: "alice@example.com"}, &out)
	require.NotNil(t, out.Error)
	assert.True(t, out.Error.NoCredentials)
}

func TestSigninEmailWebauthnFlow(t *testing.T) {
	env := newAPIEnv(t)
	env.createUser(t, "user-1", "alice@example.com", false)
	authenticator, cred := env.enrollCredential(t, "user-1")

	var started SigninEmailResponse
	env.do(t, http.MethodPost, "/api/signin/email", "", SigninEmailRequest{Email: "alice@example.com"}, &started)
	require.NotNil(t, started.Success)
	require.Len(t, started.Success.AssertionRequest.AllowCredentials, 1)

	signed := signWire(t, authenticator, cred, started.Success.AssertionRequest)
	var finished SigninWebauthnResponse
	env.do(t, http.MethodPost, "/api/signin/webauthn", "", SigninWebauthnRequest{
		Token:      started.Success.Token,
		Credential: signed,
		Redirect:   "https://app.example.com/dashboard",
	}, &finished)
	require.NotNil(t, finished.Success)

	value := cookieValue(t, finished.Success.Cookie)
	sess, err := env.sessions.Authenticate(context.Background(), value)
	require.NoError(t, err)
	assert.Equal(t, "user-1", sess.UserID)

	// The redirect carries the session value for the destination host.
	u, err := url.Parse(finished.Success.Redirect)
	require.NoError(t, err)
	assert.Equal(t, "app.example.com", u.Host)
	assert.Equal(t, value, u.Query().Get(session.RedirectParam))

	// The credential's bookkeeping picked up the session.
	user, err := env.directory.GetUser(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, user.Credentials, 1)
	assert.Contains(t, user.Credentials[0].UsedBySessionIDs, sess.ID)
}

func TestUsernamelessSigninFlow(t *testing.T) {
	env := newAPIEnv(t)
	env.createUser(t, "user-1", "alice@example.com", false)
	_, cred := env.enrollCredential(t, "user-1")

	var started StartSigninResponse
	env.do(t, http.MethodGet, "/api/signin/start", "", nil, &started)

	discoverable := virtualwebauthn.NewAuthenticatorWithOptions(virtualwebauthn.AuthenticatorOptions{
		UserHandle: []byte("user-1"),
	})
	discoverable.AddCredential(cred)

	signed := signWire(t, &discoverable, cred, started.AssertionRequest)
	var finished SigninWebauthnResponse
	env.do(t, http.MethodPost, "/api/signin/webauthn", "", SigninWebauthnRequest{
		Token:      started.Token,
		Credential: signed,
	}, &finished)
	require.NotNil(t, finished.Success)

	sess, err := env.sessions.Authenticate(context.Background(), cookieValue(t, finished.Success.Cookie))
	require.NoError(t, err)
	assert.Equal(t, "user-1", sess.UserID)
}

func TestSigninWebauthnRejectsGarbage(t *testing.T) {
	env := newAPIEnv(t)

	var out SigninWebauthnResponse
	env.do(t, http.MethodPost, "/api/signin/webauthn", "", SigninWebauthnRequest{
		Token: "unknown-token",
	}, &out)
	require.NotNil(t, out.Error)
	assert.True(t, out.Error.InternalError)
}

func TestEnrollFlow(t *testing.T) {
	env := newAPIEnv(t)
	env.createUser(t, "user-1", "alice@example.com", false)
	cookie, _ := env.mintSession(t, "user-1")

	var started StartEnrollResponse
	resp := env.do(t, http.MethodPost, "/api/enroll/start", cookie, StartEnrollRequest{}, &started)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, started.EnrollRequest)
	assert.Equal(t, "example.com", started.EnrollRequest.Options.RP.ID)
	assert.NotEmpty(t, started.EnrollRequest.Options.Challenge)
	assert.Equal(t, "required", started.EnrollRequest.Options.AuthenticatorSelection.ResidentKey)

	optionsJSON, err := json.Marshal(started.EnrollRequest.Options)
	require.NoError(t, err)
	parsed, err := virtualwebauthn.ParseAttestationOptions(string(optionsJSON))
	require.NoError(t, err)

	authenticator := virtualwebauthn.NewAuthenticator()
	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	raw := virtualwebauthn.CreateAttestationResponse(testRP, authenticator, cred, *parsed)

	var finished FinishEnrollResponse
	env.do(t, http.MethodPost, "/api/enroll/finish", cookie, FinishEnrollRequest{
		Token:               started.EnrollRequest.Token,
		AttestationResponse: *attestationWire(t, raw),
	}, &finished)
	require.NotNil(t, finished.Credential)
	assert.Equal(t, models.DefaultCredentialName, finished.Credential.Name)

	var me UserInfo
	env.do(t, http.MethodGet, "/api/user/me", cookie, nil, &me)
	require.Len(t, me.Credentials, 1)
	assert.Equal(t, finished.Credential.ID, me.Credentials[0].ID)
}

func TestEnrollFinishBadToken(t *testing.T) {
	env := newAPIEnv(t)
	env.createUser(t, "user-1", "alice@example.com", false)
	cookie, _ := env.mintSession(t, "user-1")

	var out FinishEnrollResponse
	env.do(t, http.MethodPost, "/api/enroll/finish", cookie, FinishEnrollRequest{
		Token: "unknown-token",
	}, &out)
	require.NotNil(t, out.Error)
	assert.True(t, out.Error.InvalidEnrollment)
}

func TestPinRequestAndPoll(t *testing.T) {
	env := newAPIEnv(t)
	env.createUser(t, "user-1", "alice@example.com", false)

	var created RequestSigninPinResponse
	env.do(t, http.MethodPost, "/api/signin/pin/request", "", RequestSigninPinRequest{
		Email:     "alice@example.com",
		UserAgent: "requestor-ua",
	}, &created)
	require.NotEmpty(t, created.ID)

	var polled PollSigninPinResponse
	env.do(t, http.MethodPost, "/api/signin/pin/poll", "", PollSigninPinRequest{Id: created.ID}, &polled)
	require.NotNil(t, polled.Pending)
	assert.Regexp(t, regexp.MustCompile(`^\d{6}$`), polled.Pending.Pin)
	assert.Equal(t, "https://admin.example.com/confirm/", polled.Pending.ConfirmUrl)
	assert.True(t, strings.HasPrefix(polled.Pending.QrCodeUrl, "data:image/png;base64,"))

	var unknown PollSigninPinResponse
	env.do(t, http.MethodPost, "/api/signin/pin/poll", "", PollSigninPinRequest{Id: "no-such-id"}, &unknown)
	require.NotNil(t, unknown.Error)
	assert.True(t, unknown.Error.InvalidToken)

	var badEmail RequestSigninPinResponse
	env.do(t, http.MethodPost, "/api/signin/pin/request", "", RequestSigninPinRequest{
		Email: "nobody@example.com",
	}, &badEmail)
	require.NotNil(t, badEmail.Error)
	assert.True(t, badEmail.Error.InvalidEmail)
}

func TestPinQueryAndConfirm(t *testing.T) {
	env := newAPIEnv(t)
	env.createUser(t, "user-1", "alice@example.com", false)
	authenticator, cred := env.enrollCredential(t, "user-1")
	cookie, _ := env.mintSession(t, "user-1")

	var created RequestSigninPinResponse
	env.do(t, http.MethodPost, "/api/signin/pin/request", "", RequestSigninPinRequest{
		Email:     "alice@example.com",
		UserAgent: "requestor-ua",
	}, &created)
	require.NotEmpty(t, created.ID)

	var polled PollSigninPinResponse
	env.do(t, http.MethodPost, "/api/signin/pin/poll", "", PollSigninPinRequest{Id: created.ID}, &polled)
	require.NotNil(t, polled.Pending)

	var queried QuerySigninPinResponse
	env.do(t, http.MethodPost, "/api/signin/pin/query", cookie, QuerySigninPinRequest{Pin: polled.Pending.Pin}, &queried)
	require.Nil(t, queried.Error)
	assert.Equal(t, created.ID, queried.ID)
	assert.Equal(t, "requestor-ua", queried.RequestorUserAgent)
	require.NotNil(t, queried.AssertionRequest)

	signed := signWire(t, authenticator, cred, *queried.AssertionRequest)
	var confirmed ConfirmSigninPinResponse
	env.do(t, http.MethodPost, "/api/signin/pin/confirm", cookie, ConfirmSigninPinRequest{
		Token:      queried.Token,
		Credential: signed,
	}, &confirmed)
	require.Nil(t, confirmed.Error)

	// The requesting device picks up its session on the next poll.
	var done PollSigninPinResponse
	env.do(t, http.MethodPost, "/api/signin/pin/poll", "", PollSigninPinRequest{Id: created.ID}, &done)
	require.NotNil(t, done.Success)

	sess, err := env.sessions.Authenticate(context.Background(), cookieValue(t, done.Success.Cookie))
	require.NoError(t, err)
	assert.Equal(t, "user-1", sess.UserID)

	// Querying an unknown pin reads as invalid.
	var badPin QuerySigninPinResponse
	env.do(t, http.MethodPost, "/api/signin/pin/query", cookie, QuerySigninPinRequest{Pin: "000000"}, &badPin)
	require.NotNil(t, badPin.Error)
	assert.True(t, badPin.Error.InvalidPin)
}

func TestUserAdminCRUD(t *testing.T) {
	env := newAPIEnv(t)
	env.createUser(t, "admin-1", "admin@example.com", true)
	cookie, _ := env.mintSession(t, "admin-1")

	var created CreateUserResponse
	resp := env.do(t, http.MethodPost, "/api/user", cookie, CreateUserRequest{Email: "bob@example.com"}, &created)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, created.ID)

	// Duplicate emails are rejected.
	resp = env.do(t, http.MethodPost, "/api/user", cookie, CreateUserRequest{Email: "bob@example.com"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var users ListUsersResponse
	env.do(t, http.MethodGet, "/api/user", cookie, nil, &users)
	assert.Len(t, users.Users, 2)

	var fetched UserInfo
	env.do(t, http.MethodGet, "/api/user/"+created.ID, cookie, nil, &fetched)
	assert.Equal(t, "bob@example.com", fetched.Email)
	assert.Nil(t, fetched.CurrentSession)

	name := "Bob"
	admin := true
	resp = env.do(t, http.MethodPost, "/api/user/"+created.ID, cookie, UpdateUserRequest{
		DisplayName: &name,
		Admin:       &admin,
	}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	env.do(t, http.MethodGet, "/api/user/"+created.ID, cookie, nil, &fetched)
	assert.Equal(t, "Bob", fetched.DisplayName)
	assert.True(t, fetched.IsAdmin)

	var recovery UserRecoverResponse
	env.do(t, http.MethodPost, "/api/user/"+created.ID+"/recover", cookie, nil, &recovery)
	assert.True(t, strings.HasPrefix(recovery.RecoveryUrl, "https://admin.example.com/signin/"))

	// Admins cannot delete themselves.
	resp = env.do(t, http.MethodDelete, "/api/user/admin-1", cookie, nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/api/user/"+created.ID, cookie, nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/user/"+created.ID, cookie, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUserAuthorization(t *testing.T) {
	env := newAPIEnv(t)
	env.createUser(t, "user-1", "alice@example.com", false)
	env.createUser(t, "user-2", "bob@example.com", false)
	cookie, sess := env.mintSession(t, "user-1")

	// Non-admins cannot list or manage other users.
	resp := env.do(t, http.MethodGet, "/api/user", cookie, nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/user", cookie, CreateUserRequest{Email: "eve@example.com"}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	name := "Hacked"
	resp = env.do(t, http.MethodPost, "/api/user/user-2", cookie, UpdateUserRequest{DisplayName: &name}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/api/user/user-2", cookie, nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/user/user-2/recover", cookie, nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// They can read other users and rename themselves.
	var other UserInfo
	resp = env.do(t, http.MethodGet, "/api/user/user-2", cookie, nil, &other)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "bob@example.com", other.Email)

	resp = env.do(t, http.MethodPost, "/api/user/user-1", cookie, UpdateUserRequest{DisplayName: &name}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// But not grant themselves privileges.
	admin := true
	resp = env.do(t, http.MethodPost, "/api/user/user-1", cookie, UpdateUserRequest{Admin: &admin}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	hosts := []string{"everything.example.com"}
	resp = env.do(t, http.MethodPost, "/api/user/user-1", cookie, UpdateUserRequest{AllowedHosts: &hosts}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// "me" resolves to the caller and carries the current session.
	var me UserInfo
	env.do(t, http.MethodGet, "/api/user/me", cookie, nil, &me)
	assert.Equal(t, "user-1", me.ID)
	require.NotNil(t, me.CurrentSession)
	assert.Equal(t, sess.ID, me.CurrentSession.ID)
}

func TestCredentialRenameAndDelete(t *testing.T) {
	env := newAPIEnv(t)
	env.createUser(t, "user-1", "alice@example.com", false)
	env.enrollCredential(t, "user-1")
	cookie, _ := env.mintSession(t, "user-1")

	var me UserInfo
	env.do(t, http.MethodGet, "/api/user/me", cookie, nil, &me)
	require.Len(t, me.Credentials, 1)
	credID := me.Credentials[0].ID

	name := "Work laptop"
	resp := env.do(t, http.MethodPost, "/api/credential/"+credID, cookie, UpdateCredentialRequest{Name: &name}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	env.do(t, http.MethodGet, "/api/user/me", cookie, nil, &me)
	assert.Equal(t, "Work laptop", me.Credentials[0].Name)

	resp = env.do(t, http.MethodPost, "/api/credential/no-such-cred", cookie, UpdateCredentialRequest{Name: &name}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/api/credential/"+credID, cookie, nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	env.do(t, http.MethodGet, "/api/user/me", cookie, nil, &me)
	assert.Empty(t, me.Credentials)
}

func TestSessionDeleteAuthorization(t *testing.T) {
	env := newAPIEnv(t)
	env.createUser(t, "user-1", "alice@example.com", false)
	env.createUser(t, "user-2", "bob@example.com", false)
	env.createUser(t, "admin-1", "admin@example.com", true)

	aliceCookie, aliceSess := env.mintSession(t, "user-1")
	bobCookie, _ := env.mintSession(t, "user-2")
	_, aliceOther := env.mintSession(t, "user-1")

	// Another user may not revoke Alice's session.
	resp := env.do(t, http.MethodDelete, "/api/session/"+aliceOther.ID, bobCookie, nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Alice revokes her own.
	resp = env.do(t, http.MethodDelete, "/api/session/"+aliceOther.ID, aliceCookie, nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/api/session/no-such-session", aliceCookie, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Admins may revoke anyone's.
	adminCookie, _ := env.mintSession(t, "admin-1")
	resp = env.do(t, http.MethodDelete, "/api/session/"+aliceSess.ID, adminCookie, nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestBackendCRUD(t *testing.T) {
	env := newAPIEnv(t)
	env.createUser(t, "admin-1", "admin@example.com", true)
	env.createUser(t, "user-1", "alice@example.com", false)
	adminCookie, _ := env.mintSession(t, "admin-1")
	userCookie, _ := env.mintSession(t, "user-1")

	// The whole backend surface is admin only.
	resp := env.do(t, http.MethodGet, "/api/backend", userCookie, nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	upstream := "http://10.0.0.5:8080"
	level := models.AccessLevelPublic
	headers := []BackendHeaderInfo{{Name: "X-Frame-Options", Value: "DENY"}}
	resp = env.do(t, http.MethodPost, "/api/backend/App.Example.Com", adminCookie, UpdateBackendRequest{
		UpstreamUrl: &upstream,
		AccessLevel: &level,
		Headers:     &headers,
	}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// The FQDN is normalized to lower case.
	var fetched BackendInfo
	resp = env.do(t, http.MethodGet, "/api/backend/app.example.com", adminCookie, nil, &fetched)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "app.example.com", fetched.Fqdn)
	assert.Equal(t, upstream, fetched.UpstreamUrl)
	assert.Equal(t, models.AccessLevelPublic, fetched.AccessLevel)
	require.Len(t, fetched.Headers, 1)
	assert.Equal(t, "X-Frame-Options", fetched.Headers[0].Name)

	bad := "SECRET"
	resp = env.do(t, http.MethodPost, "/api/backend/app.example.com", adminCookie, UpdateBackendRequest{
		AccessLevel: &bad,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var list ListBackendsResponse
	env.do(t, http.MethodGet, "/api/backend", adminCookie, nil, &list)
	assert.Len(t, list.Backends, 1)

	resp = env.do(t, http.MethodDelete, "/api/backend/app.example.com", adminCookie, nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/backend/app.example.com", adminCookie, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMqttEndpoints(t *testing.T) {
	env := newAPIEnv(t)
	env.createUser(t, "admin-1", "admin@example.com", true)
	cookie, _ := env.mintSession(t, "admin-1")

	publish := []string{"sensors/#"}
	resp := env.do(t, http.MethodPost, "/api/mqtt-profile/telemetry", cookie, UpdateMqttProfileRequest{
		AllowPublish: &publish,
	}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var profile MqttProfileInfo
	env.do(t, http.MethodGet, "/api/mqtt-profile/telemetry", cookie, nil, &profile)
	assert.Equal(t, "telemetry", profile.Id)
	assert.Equal(t, publish, profile.AllowPublish)
	assert.Empty(t, profile.AllowSubscribe)

	profileID := "telemetry"
	password := "hunter2"
	values := map[string]string{"location": "attic"}
	resp = env.do(t, http.MethodPost, "/api/mqtt-client/sensor-1", cookie, UpdateMqttClientRequest{
		ProfileId: &profileID,
		Password:  &password,
		Values:    &values,
	}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var client MqttClientInfo
	env.do(t, http.MethodGet, "/api/mqtt-client/sensor-1", cookie, nil, &client)
	assert.Equal(t, "telemetry", client.ProfileId)
	assert.Equal(t, "attic", client.Values["location"])

	var clients ListMqttClientsResponse
	env.do(t, http.MethodGet, "/api/mqtt-client", cookie, nil, &clients)
	assert.Len(t, clients.MqttClients, 1)

	resp = env.do(t, http.MethodDelete, "/api/mqtt-client/sensor-1", cookie, nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = env.do(t, http.MethodDelete, "/api/mqtt-profile/telemetry", cookie, nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/mqtt-profile/telemetry", cookie, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
