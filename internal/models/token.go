package models

import (
	"time"

	"github.com/google/uuid"
)

// Minimal identity payload embedded in both access and refresh tokens
type Claim struct {
	SubjectID uuid.UUID
	Role      string
}

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// Token pair issued by the auth service
// Refresh is zero when a refresh call was collapsed into a recent rotation
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}

// Rotated reports whether the pair carries a newly issued refresh token
func (p TokenPair) Rotated() bool {
	return p.Refresh.Value != ""
}

// Recent-issuance marker: the access token issued by the latest rotation of a subject
// and the hash of the refresh token that rotation replaced
type Issuance struct {
	Access         IssuedToken
	SupersededHash string
}

// Per subject session states
type SessionState string

const (
	StateAnonymous     SessionState = "anonymous"
	StateAuthenticated SessionState = "authenticated"
	StateRefreshing    SessionState = "refreshing"
	StateExpired       SessionState = "expired"
	StateRevoked       SessionState = "revoked"
)
