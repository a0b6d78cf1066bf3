package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser    = "user"
	RoleCreator = "creator"
	RoleAdmin   = "admin"
)

type User struct {
	ID             uuid.UUID
	CreatedAt      time.Time
	Username       string
	Email          *string
	HashedPassword *string // nil for users created through an oauth provider
	Role           string
	OAuthProvider  *string
	OAuthSubject   *string
}

// Claim returns the identity embedded in issued tokens
func (u User) Claim() Claim {
	return Claim{SubjectID: u.ID, Role: u.Role}
}

// Identity confirmed by an external oauth provider
type OAuthIdentity struct {
	Provider string
	Subject  string
	Email    string
	Name     string
}

// Pending authorization request, kept until the provider redirects back
type OAuthState struct {
	Provider string `json:"provider"`
	Nonce    string `json:"nonce"`
	Verifier string `json:"verifier"`
}
