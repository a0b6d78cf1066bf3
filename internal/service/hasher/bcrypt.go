package hasher

import (
	"crypto/sha256"

	"golang.org/x/crypto/bcrypt"
)

// Default hasher used for user passwords and refresh tokens
var Default = Bcrypt{}

// Bcrypt hasher
// Input is sha256 pre-hashed, so values longer than bcrypt's 72 byte limit (e.g. JWT refresh tokens) are fine
type Bcrypt struct {
	// Zero means bcrypt.DefaultCost
	Cost int
}

func (h Bcrypt) Hash(value string) (string, error) {
	sum := sha256.Sum256([]byte(value))
	hash, err := bcrypt.GenerateFromPassword(sum[:], h.cost())
	return string(hash), err
}

// Compare known hashed value with the provided one
// Returns nil on match
func (h Bcrypt) Compare(hashed string, value string) error {
	sum := sha256.Sum256([]byte(value))
	return bcrypt.CompareHashAndPassword([]byte(hashed), sum[:])
}

func (h Bcrypt) cost() int {
	if h.Cost == 0 {
		return bcrypt.DefaultCost
	}
	return h.Cost
}
