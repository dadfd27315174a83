package models

import (
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
)

type CeremonyPurpose string

const (
	// CeremonyAssert is a signin assertion started by email lookup or the
	// discoverable flow.
	CeremonyAssert CeremonyPurpose = "assert"
	// CeremonyConfirm is an assertion confirming a cross-device signin
	// request on an already-authenticated device.
	CeremonyConfirm CeremonyPurpose = "assert-confirm"
	// CeremonyEnroll is an attestation registering a new credential.
	CeremonyEnroll CeremonyPurpose = "enroll"
)

// Ceremony is one in-flight WebAuthn ceremony: an issued challenge plus the
// flow metadata binding it to a signin, confirmation or enrollment attempt.
// The token is single-use; consumption is atomic.
type Ceremony struct {
	Token   string          `json:"token"`
	Purpose CeremonyPurpose `json:"purpose"`
	UserID  string          `json:"userId,omitempty"`

	// SessionID binds enroll and confirm ceremonies to the session that
	// started them.
	SessionID string `json:"sessionId,omitempty"`
	// SigninRequestID binds confirm ceremonies to the signin request they
	// will complete.
	SigninRequestID string `json:"signinRequestId,omitempty"`

	Data      *webauthn.SessionData `json:"data"`
	ExpiresAt time.Time             `json:"expiresAt"`
	Consumed  bool                  `json:"consumed"`
}
