package models

import "time"

// Session is a signed-in browser. The secret is the bearer half of the
// cookie; the id alone is safe to expose in listings.
type Session struct {
	ID         string    `json:"id"`
	Secret     string    `json:"secret"`
	UserID     string    `json:"userId"`
	UserAgent  string    `json:"userAgent"`
	RemoteAddr string    `json:"remoteAddr"`
	CreatedAt  time.Time `json:"createdAt"`
	AccessedAt time.Time `json:"accessedAt"`
}
