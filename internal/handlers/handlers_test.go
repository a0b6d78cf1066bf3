package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nkiryanov/vidsession/internal/logger"
	"github.com/nkiryanov/vidsession/internal/models"
	"github.com/nkiryanov/vidsession/internal/repository/postgres"
	"github.com/nkiryanov/vidsession/internal/repository/redis"
	"github.com/nkiryanov/vidsession/internal/service/auth"
	"github.com/nkiryanov/vidsession/internal/service/auth/tokencodec"
	"github.com/nkiryanov/vidsession/internal/service/hasher"
	"github.com/nkiryanov/vidsession/internal/service/user"
	"github.com/nkiryanov/vidsession/internal/testutil"
)

const (
	testAccessTTL  = 30 * time.Minute
	testRefreshTTL = 30 * 24 * time.Hour
	testFrontend   = "http://localhost:3000/"
)

// Server wired as in production, except clock and fakes for external providers
type testServer struct {
	URL   string
	auth  *auth.AuthService
	users *user.UserService
	clock *testutil.Clock
	redis testutil.RedisServer
}

// advance moves token clock and redis clock together
func (s *testServer) advance(d time.Duration) {
	s.clock.Advance(d)
	s.redis.Mini.FastForward(d)
}

type startOption func(*startOptions)

type startOptions struct {
	oauth oauthService
}

func withOAuth(o oauthService) startOption {
	return func(opts *startOptions) { opts.oauth = o }
}

func startServer(t *testing.T, db postgres.DBTX, opts ...startOption) *testServer {
	t.Helper()

	options := startOptions{oauth: fakeOAuth{}}
	for _, o := range opts {
		o(&options)
	}

	clock := testutil.NewClock(time.Now().UTC().Truncate(time.Second))
	rs := testutil.StartRedis(t)
	testHasher := hasher.Bcrypt{Cost: bcrypt.MinCost}

	access, err := tokencodec.New(tokencodec.Config{SecretKey: "access-secret", TTL: testAccessTTL, Now: clock.Now})
	require.NoError(t, err)
	refresh, err := tokencodec.New(tokencodec.Config{SecretKey: "refresh-secret", TTL: testRefreshTTL, Now: clock.Now})
	require.NoError(t, err)

	users := user.NewService(testHasher, postgres.NewStorage(db))
	credentials := redis.NewCredentialStore(rs.Client, testHasher, time.Second)

	authService, err := auth.NewService(auth.Config{Now: clock.Now}, access, refresh, credentials, users, logger.NewNoOpLogger())
	require.NoError(t, err, "auth service should be created without errors")

	transport := auth.NewTransport(auth.TransportConfig{RefreshTTL: testRefreshTTL})

	h := NewRouter(RouterConfig{FrontendURL: testFrontend}, authService, transport, options.oauth, users, logger.NewNoOpLogger())
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return &testServer{URL: srv.URL, auth: authService, users: users, clock: clock, redis: rs}
}

type requestOption func(*http.Request)

func withAccess(token string) requestOption {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withRefresh(token string) requestOption {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "refresh_token", Value: token}) }
}

func withOAuthState(state string) requestOption {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: state}) }
}

// doRequest sends request without following redirects and returns response with read body
func doRequest(t *testing.T, method string, url string, body string, opts ...requestOption) (*http.Response, string) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(t.Context(), method, url, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, o := range opts {
		o(req)
	}

	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	resp, err := client.Do(req)
	require.NoError(t, err, "should make request to test server")
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "should read response body")
	defer resp.Body.Close() // nolint:errcheck

	return resp, string(data)
}

func refreshCookie(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()
	return responseCookie(resp, "refresh_token")
}

func responseCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// OAuth service that does not leave the process
type fakeOAuth struct {
	identity models.OAuthIdentity
	err      error
}

func (f fakeOAuth) AuthCodeURL(_ context.Context, provider string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "https://provider.test/auth?provider=" + provider + "&state=state-" + provider, nil
}

func (f fakeOAuth) Exchange(_ context.Context, provider string, state string, code string) (models.OAuthIdentity, error) {
	if f.err != nil {
		return models.OAuthIdentity{}, f.err
	}
	identity := f.identity
	identity.Provider = provider
	return identity, nil
}
