package models

import "time"

// UserSession is the logged-in user's view of themselves, derived from
// the session token plus the profile refresh endpoint.
type UserSession struct {
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Bio       string    `json:"bio"`
	Image     string    `json:"image"`
	ExpiresAt time.Time `json:"expires_at"`
}
