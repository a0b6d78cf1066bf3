package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"

	"github.com/nkiryanov/vidsession/internal/apperrors"
	"github.com/nkiryanov/vidsession/internal/logger"
)

const (
	// Equal to the server issuance window
	DefaultCooldown = 30 * time.Minute

	defaultTimeout = 10 * time.Second
)

type Config struct {
	// Server address, e.g. http://localhost:8000
	// Required to be set
	BaseURL string

	// How long refreshes are suppressed after the token was replaced
	// DefaultCooldown if zero
	Cooldown time.Duration

	// Keeps the refresh cookie. New in-memory jar if not set
	Jar http.CookieJar

	// Used for every round trip. http.DefaultTransport if not set
	Base http.RoundTripper

	// Timeout of a single call
	Timeout time.Duration

	// Clock. time.Now if not set
	Now func() time.Time

	Logger logger.Logger
}

// API client: keeps access token in memory and the refresh token in a cookie jar
type Client struct {
	baseURL string
	cache   *TokenCache
	logger  logger.Logger

	// Session calls: only the cookie jar, no token handling
	session *http.Client

	// API calls: authorized and transparently refreshed
	api       *http.Client
	transport *Transport
}

type Profile struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    *string   `json:"email"`
	Role     string    `json:"role"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base url must not be empty")
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		cfg.Jar = jar
	}
	if cfg.Base == nil {
		cfg.Base = http.DefaultTransport
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoOpLogger()
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		cache:   &TokenCache{},
		logger:  cfg.Logger,
		session: &http.Client{Jar: cfg.Jar, Transport: cfg.Base, Timeout: cfg.Timeout},
	}
	c.transport = &Transport{
		base:     cfg.Base,
		cache:    c.cache,
		refresh:  c.refresh,
		cooldown: cfg.Cooldown,
		timeout:  cfg.Timeout,
		now:      cfg.Now,
	}
	c.api = &http.Client{Jar: cfg.Jar, Transport: c.transport, Timeout: cfg.Timeout}

	return c, nil
}

// Tokens gives read access to the cached access token
func (c *Client) Tokens() *TokenCache {
	return c.cache
}

// Register creates account and starts session
// Returns apperrors.ErrUserAlreadyExists if login is taken
func (c *Client) Register(ctx context.Context, login string, password string) error {
	return c.startSession(ctx, "/api/auth/register", login, password)
}

// Login starts session
// Returns apperrors.ErrInvalidCredentials on wrong login or password
func (c *Client) Login(ctx context.Context, login string, password string) error {
	return c.startSession(ctx, "/api/auth/login", login, password)
}

func (c *Client) startSession(ctx context.Context, path string, login string, password string) error {
	body, err := json.Marshal(map[string]string{"login": login, "password": password})
	if err != nil {
		return err
	}

	resp, err := c.post(ctx, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close() // nolint:errcheck

	switch resp.StatusCode {
	case http.StatusOK:
		token, err := decodeAccessToken(resp)
		if err != nil {
			return err
		}
		c.cache.set(token, c.transport.now())
		return nil
	case http.StatusUnauthorized:
		return apperrors.ErrInvalidCredentials
	case http.StatusConflict:
		return apperrors.ErrUserAlreadyExists
	default:
		return unexpected(resp)
	}
}

// Restore re-establishes the session from the refresh cookie if no token is cached
// Reports whether the client is authenticated afterwards
func (c *Client) Restore(ctx context.Context) (bool, error) {
	if c.cache.Token() != "" {
		return true, nil
	}

	_, err := c.transport.renew(ctx, "")
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, apperrors.ErrUnauthorized):
		c.logger.Debug("No session to restore")
		return false, nil
	default:
		return false, err
	}
}

// Logout ends the session and forgets tokens
func (c *Client) Logout(ctx context.Context) (string, error) {
	resp, err := c.post(ctx, "/api/auth/logout", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close() // nolint:errcheck

	c.cache.clear()

	var data messageResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return data.Message, nil
}

// Me returns the profile of the authenticated user
// Returns apperrors.ErrUnauthorized if session could not be refreshed
func (c *Client) Me(ctx context.Context) (Profile, error) {
	var p Profile

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/user/me", nil)
	if err != nil {
		return p, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.Do(req)
	if err != nil {
		return p, err
	}
	defer resp.Body.Close() // nolint:errcheck

	switch resp.StatusCode {
	case http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
			return p, fmt.Errorf("failed to decode response: %w", err)
		}
		return p, nil
	case http.StatusUnauthorized:
		return p, apperrors.ErrUnauthorized
	default:
		return p, unexpected(resp)
	}
}

// Do sends authorized request, refreshing the session once on 401
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.api.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	return resp, nil
}

// refresh exchanges the refresh cookie for a new access token
func (c *Client) refresh(ctx context.Context) (string, error) {
	resp, err := c.post(ctx, "/api/auth/refresh", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close() // nolint:errcheck

	switch resp.StatusCode {
	case http.StatusOK:
		c.logger.Debug("Access token refreshed")
		return decodeAccessToken(resp)
	case http.StatusUnauthorized:
		return "", apperrors.ErrUnauthorized
	default:
		return "", unexpected(resp)
	}
}

func (c *Client) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.session.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	return resp, nil
}

func decodeAccessToken(resp *http.Response) (string, error) {
	var data struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if data.AccessToken == "" {
		return "", errors.New("no access token in response")
	}
	return data.AccessToken, nil
}

func unexpected(resp *http.Response) error {
	var data messageResponse
	_ = json.NewDecoder(resp.Body).Decode(&data)
	return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, data.Message)
}
