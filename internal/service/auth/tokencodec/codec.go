package tokencodec

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nkiryanov/vidsession/internal/apperrors"
	"github.com/nkiryanov/vidsession/internal/models"
)

const (
	defaultSigningMethod = "HS256"
)

type Claims struct {
	jwt.RegisteredClaims
	UserID uuid.UUID `json:"uid"`
	Role   string    `json:"role,omitempty"`
}

// Codec config with sensible defaults
type Config struct {
	// Secret key to sign tokens
	// Required to be set
	SecretKey string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set than default is used
	Alg string

	// Lifetime of issued tokens
	// Required to be set
	TTL time.Duration

	// Clock. time.Now if not set
	Now func() time.Time
}

// Codec issues and verifies signed expiring tokens of one kind (access or refresh)
// It does no I/O
type Codec struct {
	key []byte
	alg jwt.SigningMethod
	ttl time.Duration
	now func() time.Time
}

func New(cfg Config) (*Codec, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("token ttl must be positive")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}
	alg, ok := jwt.GetSigningMethod(cfg.Alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("signing method %q is not supported, use one of HS256, HS384, HS512", cfg.Alg)
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Codec{
		key: []byte(cfg.SecretKey),
		alg: alg,
		ttl: cfg.TTL,
		now: cfg.Now,
	}, nil
}

func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Issue signs a token embedding the claim; it expires after the codec TTL
func (c *Codec) Issue(claim models.Claim) (models.IssuedToken, error) {
	now := c.now().Truncate(time.Second)
	expiresAt := now.Add(c.ttl)

	token := jwt.NewWithClaims(
		c.alg,
		Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(expiresAt),
			},
			UserID: claim.SubjectID,
			Role:   claim.Role,
		},
	)

	signed, err := token.SignedString(c.key)
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while signing token. Err: %w", err)
	}

	return models.IssuedToken{Value: signed, ExpiresAt: expiresAt}, nil
}

// Verify checks signature and expiry and returns the embedded claim
// Returns apperrors.ErrTokenExpired if the token is past expiry and apperrors.ErrTokenMalformed on any other problem
func (c *Codec) Verify(token string) (models.Claim, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (any, error) { return c.key, nil },
		jwt.WithValidMethods([]string{c.alg.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)

	switch {
	case err == nil && claims.UserID != uuid.Nil:
		return models.Claim{SubjectID: claims.UserID, Role: claims.Role}, nil
	case err == nil:
		return models.Claim{}, fmt.Errorf("token has no subject: %w", apperrors.ErrTokenMalformed)
	case errors.Is(err, jwt.ErrTokenExpired):
		return models.Claim{}, fmt.Errorf("error while validating token: %w", apperrors.ErrTokenExpired)
	default:
		return models.Claim{}, fmt.Errorf("error while parsing token. Err: %v: %w", err, apperrors.ErrTokenMalformed)
	}
}

// Decode checks the signature only and returns the embedded claim even if the token is expired
func (c *Codec) Decode(token string) (models.Claim, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (any, error) { return c.key, nil },
		jwt.WithValidMethods([]string{c.alg.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return models.Claim{}, fmt.Errorf("error while parsing token. Err: %v: %w", err, apperrors.ErrTokenMalformed)
	}
	if claims.UserID == uuid.Nil {
		return models.Claim{}, fmt.Errorf("token has no subject: %w", apperrors.ErrTokenMalformed)
	}

	return models.Claim{SubjectID: claims.UserID, Role: claims.Role}, nil
}
