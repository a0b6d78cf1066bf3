package middleware

import (
	"context"
	"net/http"

	"github.com/nkiryanov/vidsession/internal/handlers/render"
	"github.com/nkiryanov/vidsession/internal/handlers/userctx"
	"github.com/nkiryanov/vidsession/internal/models"
	"github.com/nkiryanov/vidsession/internal/service/auth"
)

type authenticator interface {
	Authenticate(ctx context.Context, accessToken string, refreshToken string) auth.Authentication
}

type tokenTransport interface {
	AccessToken(r *http.Request) string
	RefreshToken(r *http.Request) string
	SetRefreshed(w http.ResponseWriter, pair models.TokenPair)
}

// AuthMiddleware resolves request identity and puts it to the context
// Expired access token is refreshed once with the refresh cookie, new access token is sent in side-channel header
// Request is never rejected here, see RequireAuth
func AuthMiddleware(a authenticator, t tokenTransport) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := a.Authenticate(r.Context(), t.AccessToken(r), t.RefreshToken(r))
			if !res.Authenticated() {
				next.ServeHTTP(w, r)
				return
			}

			if res.Refreshed != nil {
				t.SetRefreshed(w, *res.Refreshed)
			}

			next.ServeHTTP(w, r.WithContext(userctx.New(r.Context(), res.Claim)))
		})
	}
}

// RequireAuth rejects requests without identity in the context
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := userctx.FromContext(r.Context()); !ok {
			render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
