package apperrors

import (
	"errors"
)

var (
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Token codec results. Both are internal: callers outside the auth service
	// only ever see ErrUnauthorized
	ErrTokenMalformed = errors.New("token is malformed")
	ErrTokenExpired   = errors.New("token is expired")

	// Refresh token is invalid, expired or superseded by rotation
	ErrUnauthorized = errors.New("unauthorized")

	ErrCredentialNotFound = errors.New("credential not found")
	ErrIssuanceNotFound   = errors.New("recent issuance not found")

	// Cache or hashing backend unreachable
	ErrInternal = errors.New("internal error")

	ErrOAuthStateInvalid = errors.New("oauth state is invalid")
	ErrProviderUnknown   = errors.New("oauth provider unknown")
)
