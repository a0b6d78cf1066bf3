package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/vidsession/internal/apperrors"
	"github.com/nkiryanov/vidsession/internal/logger"
	"github.com/nkiryanov/vidsession/internal/models"
)

// Logout results. Logout never fails, these are the only possible outcomes
const (
	LogoutNoSession = "No active session"
	LogoutInvalid   = "Invalid session"
	LogoutOK        = "Logged out successfully"
)

type tokenCodec interface {
	Issue(claim models.Claim) (models.IssuedToken, error)
	Verify(token string) (models.Claim, error)
	Decode(token string) (models.Claim, error)
	TTL() time.Duration
}

type credentialStore interface {
	Put(ctx context.Context, subjectID uuid.UUID, refreshToken string, ttl time.Duration) (replaced string, err error)
	Get(ctx context.Context, subjectID uuid.UUID) (string, error)
	Matches(ctx context.Context, subjectID uuid.UUID, candidate string) (bool, error)
	Delete(ctx context.Context, subjectID uuid.UUID) error
	MarkIssuance(ctx context.Context, subjectID uuid.UUID, issuance models.Issuance, ttl time.Duration) error
	RecentIssuance(ctx context.Context, subjectID uuid.UUID) (models.Issuance, error)
	Superseded(issuance models.Issuance, candidate string) bool
}

type userService interface {
	CreateUser(ctx context.Context, username string, password string, email *string) (models.User, error)
	VerifyPassword(ctx context.Context, username string, password string) (models.User, error)
	FindOrCreateOAuthUser(ctx context.Context, identity models.OAuthIdentity) (models.User, error)
}

type Config struct {
	// How long a rotation collapses concurrent refresh calls into one
	// Zero means access token TTL. Must not exceed it
	IssuanceWindow time.Duration

	// Clock. time.Now if not set
	Now func() time.Time
}

// Result of authenticating an inbound request
type Authentication struct {
	Claim models.Claim
	State models.SessionState

	// Set when the request was authenticated by a transparent refresh
	Refreshed *models.TokenPair
}

// Authenticated reports whether the request carries a usable identity
func (a Authentication) Authenticated() bool {
	return a.State == models.StateAuthenticated
}

// Session coordinator: login, logout, refresh with rotation and de-duplication
type AuthService struct {
	access      tokenCodec
	refresh     tokenCodec
	credentials credentialStore
	users       userService

	window time.Duration
	now    func() time.Time
	logger logger.Logger
}

func NewService(cfg Config, access tokenCodec, refresh tokenCodec, credentials credentialStore, users userService, l logger.Logger) (*AuthService, error) {
	if access == nil || refresh == nil || credentials == nil || users == nil {
		return nil, errors.New("codecs, credential store and user service must not be nil")
	}

	window := cfg.IssuanceWindow
	switch {
	case window == 0:
		window = access.TTL()
	case window < 0 || window > access.TTL():
		return nil, fmt.Errorf("issuance window %s must be positive and not exceed access token ttl %s", window, access.TTL())
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &AuthService{
		access:      access,
		refresh:     refresh,
		credentials: credentials,
		users:       users,
		window:      window,
		now:         cfg.Now,
		logger:      l,
	}, nil
}

func (s *AuthService) RefreshTTL() time.Duration {
	return s.refresh.TTL()
}

func (s *AuthService) Register(ctx context.Context, username string, password string, email *string) (models.TokenPair, error) {
	user, err := s.users.CreateUser(ctx, username, password, email)
	if err != nil {
		return models.TokenPair{}, err
	}

	return s.login(ctx, user.Claim())
}

// Login with username and password
// Returns apperrors.ErrInvalidCredentials if user absent or password mismatch
func (s *AuthService) Login(ctx context.Context, username string, password string) (models.TokenPair, error) {
	user, err := s.users.VerifyPassword(ctx, username, password)
	if err != nil {
		return models.TokenPair{}, err
	}

	return s.login(ctx, user.Claim())
}

// LoginWithIdentity logs in the user confirmed by an oauth provider, creating it on first login
func (s *AuthService) LoginWithIdentity(ctx context.Context, identity models.OAuthIdentity) (models.TokenPair, error) {
	user, err := s.users.FindOrCreateOAuthUser(ctx, identity)
	if err != nil {
		return models.TokenPair{}, err
	}

	return s.login(ctx, user.Claim())
}

func (s *AuthService) login(ctx context.Context, claim models.Claim) (models.TokenPair, error) {
	// Superseded hash is not kept: tokens of a previous session must not be deduplicated into this one
	pair, _, err := s.issuePair(ctx, claim)
	if err != nil {
		return pair, err
	}

	s.markIssuance(ctx, claim.SubjectID, models.Issuance{Access: pair.Access})
	s.transition(claim.SubjectID, models.StateAuthenticated)

	return pair, nil
}

// Refresh exchanges a refresh token for a new pair
// If the subject rotated within the issuance window, the access token of that rotation is returned
// and the pair carries no refresh token
// Any failure except store errors on write is apperrors.ErrUnauthorized
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (models.TokenPair, error) {
	_, pair, err := s.doRefresh(ctx, refreshToken)
	return pair, err
}

func (s *AuthService) doRefresh(ctx context.Context, refreshToken string) (models.Claim, models.TokenPair, error) {
	claim, err := s.refresh.Verify(refreshToken)
	if err != nil {
		s.logger.Debug("refresh token rejected", "error", err)
		return claim, models.TokenPair{}, apperrors.ErrUnauthorized
	}

	matched, err := s.credentials.Matches(ctx, claim.SubjectID, refreshToken)
	if err != nil {
		s.logger.Warn("credential store failed on match", "subject", claim.SubjectID, "error", err)
		return claim, models.TokenPair{}, apperrors.ErrUnauthorized
	}

	if access, ok := s.recentIssuance(ctx, claim.SubjectID, refreshToken, matched); ok {
		s.logger.Debug("refresh collapsed into recent rotation", "subject", claim.SubjectID)
		s.transition(claim.SubjectID, models.StateAuthenticated)
		return claim, models.TokenPair{Access: access}, nil
	}

	if !matched {
		s.transition(claim.SubjectID, models.StateRevoked)
		return claim, models.TokenPair{}, apperrors.ErrUnauthorized
	}

	s.transition(claim.SubjectID, models.StateRefreshing)

	pair, replaced, err := s.issuePair(ctx, claim)
	if err != nil {
		return claim, pair, err
	}

	s.markIssuance(ctx, claim.SubjectID, models.Issuance{Access: pair.Access, SupersededHash: replaced})
	s.transition(claim.SubjectID, models.StateAuthenticated)

	return claim, pair, nil
}

// recentIssuance returns access token of a rotation made within the issuance window
// if the presented refresh token is either current or the one that rotation replaced
func (s *AuthService) recentIssuance(ctx context.Context, subjectID uuid.UUID, refreshToken string, matched bool) (models.IssuedToken, bool) {
	issuance, err := s.credentials.RecentIssuance(ctx, subjectID)
	switch {
	case errors.Is(err, apperrors.ErrIssuanceNotFound):
		return models.IssuedToken{}, false
	case err != nil:
		s.logger.Warn("credential store failed on recent issuance", "subject", subjectID, "error", err)
		return models.IssuedToken{}, false
	}

	if !issuance.Access.ExpiresAt.After(s.now()) {
		return models.IssuedToken{}, false
	}

	if matched {
		return issuance.Access, true
	}

	if !s.credentials.Superseded(issuance, refreshToken) {
		return models.IssuedToken{}, false
	}

	// Logout removes the record and ends the grace of the replaced token
	if _, err := s.credentials.Get(ctx, subjectID); err != nil {
		return models.IssuedToken{}, false
	}

	return issuance.Access, true
}

// issuePair signs new tokens and stores refresh one, replacing previous
// Returns the hash of the replaced refresh token
func (s *AuthService) issuePair(ctx context.Context, claim models.Claim) (models.TokenPair, string, error) {
	var pair models.TokenPair

	access, err := s.access.Issue(claim)
	if err != nil {
		return pair, "", fmt.Errorf("access token could not be issued: %w", err)
	}

	refresh, err := s.refresh.Issue(claim)
	if err != nil {
		return pair, "", fmt.Errorf("refresh token could not be issued: %w", err)
	}

	replaced, err := s.credentials.Put(ctx, claim.SubjectID, refresh.Value, s.refresh.TTL())
	if err != nil {
		s.logger.Error("credential store failed on put", "subject", claim.SubjectID, "error", err)
		return pair, "", fmt.Errorf("%w: %w", apperrors.ErrInternal, err)
	}

	pair.Access = access
	pair.Refresh = refresh

	return pair, replaced, nil
}

// markIssuance is best effort: without the marker concurrent refreshes may rotate twice
func (s *AuthService) markIssuance(ctx context.Context, subjectID uuid.UUID, issuance models.Issuance) {
	ttl := min(s.window, issuance.Access.ExpiresAt.Sub(s.now()))
	if ttl <= 0 {
		return
	}

	if err := s.credentials.MarkIssuance(ctx, subjectID, issuance, ttl); err != nil {
		s.logger.Warn("credential store failed on mark issuance", "subject", subjectID, "error", err)
	}
}

// Logout revokes the session of the refresh token owner
// It never fails, the returned message describes the outcome
func (s *AuthService) Logout(ctx context.Context, refreshToken string) string {
	if refreshToken == "" {
		return LogoutNoSession
	}

	claim, err := s.refresh.Decode(refreshToken)
	if err != nil {
		s.logger.Debug("logout with undecodable token", "error", err)
		return LogoutInvalid
	}

	if err := s.credentials.Delete(ctx, claim.SubjectID); err != nil {
		s.logger.Warn("credential store failed on delete", "subject", claim.SubjectID, "error", err)
	}
	s.transition(claim.SubjectID, models.StateRevoked)

	return LogoutOK
}

// Authenticate resolves identity of an inbound request
// Expired or absent access token is refreshed once if refresh token is present
// Malformed access token is never refreshed
func (s *AuthService) Authenticate(ctx context.Context, accessToken string, refreshToken string) Authentication {
	if accessToken != "" {
		claim, err := s.access.Verify(accessToken)
		switch {
		case err == nil:
			return Authentication{Claim: claim, State: models.StateAuthenticated}
		case !errors.Is(err, apperrors.ErrTokenExpired):
			s.logger.Debug("access token rejected", "error", err)
			return Authentication{State: models.StateAnonymous}
		}

		if refreshToken == "" {
			return Authentication{State: models.StateExpired}
		}
	}

	if refreshToken == "" {
		return Authentication{State: models.StateAnonymous}
	}

	claim, pair, err := s.doRefresh(ctx, refreshToken)
	if err != nil {
		return Authentication{State: models.StateRevoked}
	}

	return Authentication{Claim: claim, State: models.StateAuthenticated, Refreshed: &pair}
}

func (s *AuthService) transition(subjectID uuid.UUID, state models.SessionState) {
	s.logger.Debug("session state changed", "subject", subjectID, "state", state)
}
