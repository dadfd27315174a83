package models

// Wire representations of browser WebAuthn responses. All binary fields are
// base64url without padding, matching the WebAuthn JSON serialization the
// admin console uses.

type AssertionResponse struct {
	AuthenticatorData string `json:"authenticatorData"`
	ClientDataJSON    string `json:"clientDataJson"`
	Signature         string `json:"signature"`
	UserHandle        string `json:"userHandle"`
	Type              string `json:"type"`
}

type AssertionCredential struct {
	ID                      string            `json:"id"`
	AuthenticatorAttachment string            `json:"authenticatorAttachment"`
	Response                AssertionResponse `json:"response"`
}

type AttestationResponse struct {
	ID                string   `json:"id"`
	AttestationObject string   `json:"attestationObject"`
	ClientDataJSON    string   `json:"clientDataJson"`
	Transports        []string `json:"transports"`
}
