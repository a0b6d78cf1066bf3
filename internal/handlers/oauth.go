package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/nkiryanov/vidsession/internal/apperrors"
	"github.com/nkiryanov/vidsession/internal/handlers/render"
	"github.com/nkiryanov/vidsession/internal/logger"
)

const (
	oauthStateCookie = "oauth_state"
	oauthStatePath   = "/api/auth/oauth"
	oauthStateMaxAge = 10 * time.Minute
)

// The callback is accepted only from the browser that started the login
func setOAuthState(w http.ResponseWriter, state string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     oauthStatePath,
		MaxAge:   int(oauthStateMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearOAuthState(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Path:     oauthStatePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func stateMatchesBrowser(r *http.Request, state string) bool {
	cookie, err := r.Cookie(oauthStateCookie)
	if err != nil || cookie.Value == "" || state == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) == 1
}

func handleOAuthStart(oauthService oauthService, cookieSecure bool, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authURL, err := oauthService.AuthCodeURL(r.Context(), r.PathValue("provider"))

		switch {
		case err == nil:
			u, err := url.Parse(authURL)
			if err != nil || u.Query().Get("state") == "" {
				l.Error("OAuth provider url has no state", "url", authURL, "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			setOAuthState(w, u.Query().Get("state"), cookieSecure)
			http.Redirect(w, r, authURL, http.StatusFound)
		case errors.Is(err, apperrors.ErrProviderUnknown):
			render.ServiceError(w, "Provider not found", http.StatusNotFound)
		default:
			l.Error("Failed to start oauth login", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleOAuthCallback(
	oauthService oauthService,
	authService authService,
	transport tokenTransport,
	frontendURL string,
	cookieSecure bool,
	l logger.Logger,
) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		provider := r.PathValue("provider")
		q := r.URL.Query()

		// State is single use whatever the outcome
		clearOAuthState(w, cookieSecure)

		if e := q.Get("error"); e != "" {
			l.Info("OAuth login declined by provider", "provider", provider, "reason", e)
			render.ServiceError(w, "Authentication failed", http.StatusUnauthorized)
			return
		}

		if !stateMatchesBrowser(r, q.Get("state")) {
			l.Warn("OAuth callback state does not belong to this browser", "provider", provider)
			render.ServiceError(w, "Authentication failed", http.StatusUnauthorized)
			return
		}

		identity, err := oauthService.Exchange(r.Context(), provider, q.Get("state"), q.Get("code"))
		if err != nil {
			l.Warn("OAuth exchange failed", "provider", provider, "error", err)
			render.ServiceError(w, "Authentication failed", http.StatusUnauthorized)
			return
		}

		pair, err := authService.LoginWithIdentity(r.Context(), identity)
		if err != nil {
			l.Error("Failed to login oauth user", "provider", provider, "error", err)
			render.ServiceError(w, "Authentication failed", http.StatusUnauthorized)
			return
		}

		transport.SetTokens(w, pair)
		http.Redirect(w, r, frontendURL, http.StatusFound)
	})
}
