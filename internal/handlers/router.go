package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/vidsession/internal/handlers/middleware"
	"github.com/nkiryanov/vidsession/internal/logger"
	"github.com/nkiryanov/vidsession/internal/models"
	"github.com/nkiryanov/vidsession/internal/service/auth"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

type RouterConfig struct {
	// Where the browser lands after a social login
	FrontendURL string

	// Send oauth state cookie over https only
	CookieSecure bool
}

func NewRouter(
	cfg RouterConfig,
	authService authService,
	transport tokenTransport,
	oauthService oauthService,
	userService userService,
	logger logger.Logger,
) http.Handler {
	apiauth := http.NewServeMux()

	apiauth.Handle("POST /register", handleRegister(authService, transport, logger))
	apiauth.Handle("POST /login", handleLogin(authService, transport, logger))
	apiauth.Handle("POST /refresh", handleRefresh(authService, transport, logger))
	apiauth.Handle("POST /logout", handleLogout(authService, transport))
	apiauth.Handle("GET /oauth/{provider}", handleOAuthStart(oauthService, cfg.CookieSecure, logger))
	apiauth.Handle("GET /oauth/{provider}/callback", handleOAuthCallback(oauthService, authService, transport, cfg.FrontendURL, cfg.CookieSecure, logger))

	// Auth endpoints manage the session themselves and never refresh it as a side effect
	apiuser := http.NewServeMux()
	apiuser.Handle("GET /me", middleware.RequireAuth(handleUserMe(userService, logger)))

	root := http.NewServeMux()
	root.Handle("/api/auth/", http.StripPrefix("/api/auth", apiauth))
	root.Handle("/api/user/", http.StripPrefix("/api/user", chain(apiuser,
		middleware.AuthMiddleware(authService, transport),
	)))

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

type authService interface {
	// Register user with username and password and start a session
	// Has to return apperrors.ErrUserAlreadyExists if user already exists
	Register(ctx context.Context, username string, password string, email *string) (models.TokenPair, error)

	// Login user with username and password
	// Has to return apperrors.ErrInvalidCredentials on unknown user or wrong password
	Login(ctx context.Context, username string, password string) (models.TokenPair, error)

	// Login user confirmed by an oauth provider
	LoginWithIdentity(ctx context.Context, identity models.OAuthIdentity) (models.TokenPair, error)

	// Refresh tokens using refresh token
	// Has to return apperrors.ErrUnauthorized for any invalid, expired or superseded token
	// and apperrors.ErrInternal when the credential store is unavailable
	Refresh(ctx context.Context, refresh string) (models.TokenPair, error)

	// Logout never fails, returns message for the client
	Logout(ctx context.Context, refresh string) string

	// Authenticate inbound request tokens, refreshing the session transparently if needed
	Authenticate(ctx context.Context, access string, refresh string) auth.Authentication
}

type tokenTransport interface {
	SetTokens(w http.ResponseWriter, pair models.TokenPair)
	SetRefreshed(w http.ResponseWriter, pair models.TokenPair)
	ClearRefresh(w http.ResponseWriter)

	AccessToken(r *http.Request) string
	RefreshToken(r *http.Request) string
}

type oauthService interface {
	// Has to return apperrors.ErrProviderUnknown if provider not registered
	AuthCodeURL(ctx context.Context, provider string) (string, error)
	Exchange(ctx context.Context, provider string, state string, code string) (models.OAuthIdentity, error)
}

type userService interface {
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
}
