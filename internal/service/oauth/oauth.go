package oauth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/nkiryanov/vidsession/internal/apperrors"
	"github.com/nkiryanov/vidsession/internal/models"
)

const (
	ProviderGoogle = "google"
	GoogleIssuer   = "https://accounts.google.com"

	defaultStateTTL = 10 * time.Minute
)

type stateStore interface {
	Save(ctx context.Context, state string, pending models.OAuthState, ttl time.Duration) error
	Take(ctx context.Context, state string) (models.OAuthState, error)
}

// OpenID Connect provider: authorization code flow plus id_token verifier
type Provider struct {
	name     string
	config   *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

func NewProvider(name string, config *oauth2.Config, verifier *oidc.IDTokenVerifier) *Provider {
	return &Provider{name: name, config: config, verifier: verifier}
}

type ProviderConfig struct {
	Name         string
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Discover reads provider configuration from its issuer discovery document
func Discover(ctx context.Context, cfg ProviderConfig) (*Provider, error) {
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover oidc provider %s: %w", cfg.Name, err)
	}

	config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  cfg.RedirectURL,
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})

	return NewProvider(cfg.Name, config, verifier), nil
}

func (p *Provider) Name() string {
	return p.name
}

// Social login over registered providers
type Service struct {
	providers map[string]*Provider
	states    stateStore
	stateTTL  time.Duration
}

func NewService(states stateStore, providers ...*Provider) *Service {
	registry := make(map[string]*Provider, len(providers))
	for _, p := range providers {
		registry[p.name] = p
	}

	return &Service{providers: registry, states: states, stateTTL: defaultStateTTL}
}

func (s *Service) provider(name string) (*Provider, error) {
	p, ok := s.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrProviderUnknown, name)
	}
	return p, nil
}

// AuthCodeURL starts authorization: remembers state, nonce and PKCE verifier and returns provider URL to redirect to
func (s *Service) AuthCodeURL(ctx context.Context, providerName string) (string, error) {
	p, err := s.provider(providerName)
	if err != nil {
		return "", err
	}

	state := rand.Text()
	pending := models.OAuthState{
		Provider: p.name,
		Nonce:    rand.Text(),
		Verifier: oauth2.GenerateVerifier(),
	}

	if err := s.states.Save(ctx, state, pending, s.stateTTL); err != nil {
		return "", fmt.Errorf("failed to save oauth state: %w", err)
	}

	return p.config.AuthCodeURL(
		state,
		oidc.Nonce(pending.Nonce),
		oauth2.S256ChallengeOption(pending.Verifier),
	), nil
}

// Exchange completes authorization and returns identity confirmed by the provider
// State is accepted once. Unknown state returns apperrors.ErrOAuthStateInvalid
func (s *Service) Exchange(ctx context.Context, providerName string, state string, code string) (models.OAuthIdentity, error) {
	var identity models.OAuthIdentity

	p, err := s.provider(providerName)
	if err != nil {
		return identity, err
	}

	pending, err := s.states.Take(ctx, state)
	if err != nil {
		return identity, err
	}
	if pending.Provider != p.name {
		return identity, fmt.Errorf("%w: state issued for other provider", apperrors.ErrOAuthStateInvalid)
	}

	token, err := p.config.Exchange(ctx, code, oauth2.VerifierOption(pending.Verifier))
	if err != nil {
		return identity, fmt.Errorf("token exchange failed: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return identity, errors.New("no id_token in token response")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return identity, fmt.Errorf("id_token verification failed: %w", err)
	}
	if idToken.Nonce != pending.Nonce {
		return identity, errors.New("id_token nonce mismatch")
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return identity, fmt.Errorf("failed to extract id_token claims: %w", err)
	}

	identity = models.OAuthIdentity{
		Provider: p.name,
		Subject:  idToken.Subject,
		Name:     claims.Name,
	}
	// Unverified email is never attached to an account
	if claims.EmailVerified {
		identity.Email = claims.Email
	}

	return identity, nil
}
