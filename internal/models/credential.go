package models

import (
	"crypto/sha256"
	"encoding/base64"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
)

// DefaultCredentialName is given to newly enrolled passkeys until the owner
// renames them.
const DefaultCredentialName = "Unnamed passkey"

// Credential is a registered WebAuthn public-key credential. The short ID is
// derived from the raw credential id and is what the API exposes; the raw id
// and key material live in the embedded webauthn.Credential.
type Credential struct {
	ID                 string              `json:"id"`
	Name               string              `json:"name"`
	AAGUID             string              `json:"aaguid"`
	Transports         []string            `json:"transports"`
	CreatedAt          time.Time           `json:"createdAt"`
	LastUsedAt         time.Time           `json:"lastUsedAt"`
	CreatedBySessionID string              `json:"createdBySessionId"`
	UsedBySessionIDs   []string            `json:"usedBySessionIds"`
	WebAuthn           webauthn.Credential `json:"webauthn"`
}

// CredentialShortID is the 144-bit truncated SHA-256 hash of the raw
// credential id, base64url encoded.
func CredentialShortID(credentialID []byte) string {
	hash := sha256.Sum256(credentialID)
	return base64.RawURLEncoding.EncodeToString(hash[0:18])
}
