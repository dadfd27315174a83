package models

import "time"

// Backend access levels.
const (
	AccessLevelNormal = "NORMAL"
	AccessLevelPublic = "PUBLIC"
)

type BackendHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Backend is a reverse-proxy upstream keyed by its public FQDN. The proxy
// engine itself is an external collaborator; this record is its
// configuration.
type Backend struct {
	Fqdn        string          `json:"fqdn"`
	UpstreamURL string          `json:"upstreamUrl"`
	Headers     []BackendHeader `json:"headers"`
	AccessLevel string          `json:"accessLevel"`
	JsScript    string          `json:"jsScript"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}
