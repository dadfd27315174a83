package models

import "time"

// SigninRequest is a pending cross-device signin attempt. A browser without
// a local credential creates one and polls it by id; a second,
// already-authenticated device looks it up by PIN, inspects the requestor
// metadata and confirms it with an assertion. Exactly one confirmation may
// succeed; the minted cookie value is attached so later polls observe it.
type SigninRequest struct {
	ID        string `json:"id"`
	Pin       string `json:"pin"`
	UserID    string `json:"userId"`
	UserAgent string `json:"userAgent"`
	IP        string `json:"ip"`

	Confirmed bool `json:"confirmed"`
	// Cookie is the encoded session cookie value, set when the request is
	// confirmed. A recovery request may be pre-confirmed with no cookie; the
	// poller then mints its own session on first successful poll.
	Cookie string `json:"cookie,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (r *SigninRequest) Expired(now time.Time) bool {
	return r.ExpiresAt.Before(now)
}
