package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/nkiryanov/vidsession/internal/models"
)

const (
	defaultAccessHeaderName  = "Authorization"
	defaultAccessAuthScheme  = "Bearer"
	defaultRefreshCookieName = "refresh_token"
	defaultRefreshCookiePath = "/"

	// Response header carrying access token issued by a transparent refresh
	RefreshedTokenHeader = "X-Refreshed-Token"
)

type TransportConfig struct {
	// Header and auth scheme carrying access token. Default "Authorization: Bearer <token>"
	AccessHeaderName string
	AccessAuthScheme string

	// Cookie carrying refresh token. Default "refresh_token" on "/"
	RefreshCookieName string
	RefreshCookiePath string

	// Send refresh cookie over https only
	CookieSecure bool

	// Max age of refresh cookie. Should match refresh token TTL
	RefreshTTL time.Duration
}

// Transport carries access token in a header and refresh token in an http-only cookie
// Refresh token is never written anywhere a script could read it
type Transport struct {
	accessHeaderName  string
	accessAuthScheme  string
	refreshCookieName string
	refreshCookiePath string
	cookieSecure      bool
	refreshTTL        time.Duration
}

func NewTransport(cfg TransportConfig) *Transport {
	setDefault := func(field *string, def string) {
		if *field == "" {
			*field = def
		}
	}
	setDefault(&cfg.AccessHeaderName, defaultAccessHeaderName)
	setDefault(&cfg.AccessAuthScheme, defaultAccessAuthScheme)
	setDefault(&cfg.RefreshCookieName, defaultRefreshCookieName)
	setDefault(&cfg.RefreshCookiePath, defaultRefreshCookiePath)

	return &Transport{
		accessHeaderName:  cfg.AccessHeaderName,
		accessAuthScheme:  cfg.AccessAuthScheme,
		refreshCookieName: cfg.RefreshCookieName,
		refreshCookiePath: cfg.RefreshCookiePath,
		cookieSecure:      cfg.CookieSecure,
		refreshTTL:        cfg.RefreshTTL,
	}
}

// SetTokens writes access token to the access header and refresh token, if the pair has one, to the cookie
func (t *Transport) SetTokens(w http.ResponseWriter, pair models.TokenPair) {
	w.Header().Set(t.accessHeaderName, t.accessAuthScheme+" "+pair.Access.Value)
	t.setRefreshCookie(w, pair)
}

// SetRefreshed writes access token issued by a transparent refresh to the side-channel header
func (t *Transport) SetRefreshed(w http.ResponseWriter, pair models.TokenPair) {
	w.Header().Set(RefreshedTokenHeader, pair.Access.Value)
	w.Header().Add("Access-Control-Expose-Headers", RefreshedTokenHeader)
	t.setRefreshCookie(w, pair)
}

func (t *Transport) setRefreshCookie(w http.ResponseWriter, pair models.TokenPair) {
	if !pair.Rotated() {
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     t.refreshCookieName,
		Value:    pair.Refresh.Value,
		Path:     t.refreshCookiePath,
		MaxAge:   int(t.refreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   t.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearRefresh tells the client to drop refresh cookie
func (t *Transport) ClearRefresh(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     t.refreshCookieName,
		Value:    "",
		Path:     t.refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   t.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// AccessToken returns access token from request header or empty string
func (t *Transport) AccessToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get(t.accessHeaderName), " ")
	if !ok || !strings.EqualFold(scheme, t.accessAuthScheme) {
		return ""
	}
	return strings.TrimSpace(token)
}

// RefreshToken returns refresh token from request cookie or empty string
func (t *Transport) RefreshToken(r *http.Request) string {
	cookie, err := r.Cookie(t.refreshCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// SetAccessToken puts access token to outgoing request
func (t *Transport) SetAccessToken(r *http.Request, access string) {
	r.Header.Set(t.accessHeaderName, t.accessAuthScheme+" "+access)
}
