package models

import (
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// User is a directory account. Credentials are embedded in the user
// document; sessions live in the state store and are cascaded on delete.
type User struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	DisplayName  string       `json:"displayName"`
	IsAdmin      bool         `json:"isAdmin"`
	AllowedHosts []string     `json:"allowedHosts"`
	Credentials  []Credential `json:"credentials"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

func (u *User) WebAuthnID() []byte {
	return []byte(u.ID)
}

func (u *User) WebAuthnName() string {
	return u.Email
}

func (u *User) WebAuthnDisplayName() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Email
}

func (u *User) WebAuthnCredentials() []webauthn.Credential {
	creds := make([]webauthn.Credential, 0, len(u.Credentials))
	for _, c := range u.Credentials {
		creds = append(creds, c.WebAuthn)
	}
	return creds
}

// CredentialDescriptors lists the user's registered credential ids, used to
// populate excludeCredentials during enrollment.
func (u *User) CredentialDescriptors() []protocol.CredentialDescriptor {
	descriptors := make([]protocol.CredentialDescriptor, 0, len(u.Credentials))
	for _, c := range u.Credentials {
		descriptors = append(descriptors, c.WebAuthn.Descriptor())
	}
	return descriptors
}

// FindCredential returns the embedded credential matching the raw WebAuthn
// credential id, or nil.
func (u *User) FindCredential(credentialID []byte) *Credential {
	for i := range u.Credentials {
		if string(u.Credentials[i].WebAuthn.ID) == string(credentialID) {
			return &u.Credentials[i]
		}
	}
	return nil
}
