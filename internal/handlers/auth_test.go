package handlers

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/vidsession/internal/service/auth"
	"github.com/nkiryanov/vidsession/internal/testutil"
)

func Test_AuthHandlers(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgres(t)

	withServer := func(t *testing.T, fn func(srv *testServer)) {
		pg.InTx(t, func(tx pgx.Tx) {
			fn(startServer(t, tx))
		})
	}

	// register returns access token and refresh cookie
	register := func(t *testing.T, srv *testServer, login string) (string, *http.Cookie) {
		resp, body := doRequest(t, http.MethodPost, srv.URL+"/api/auth/register", `{"login": "`+login+`", "password": "StrongEnoughPassword"}`)
		require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)

		var data struct {
			AccessToken string `json:"accessToken"`
		}
		require.NoError(t, json.Unmarshal([]byte(body), &data))
		cookie := refreshCookie(t, resp)
		require.NotNil(t, cookie)

		return data.AccessToken, cookie
	}

	t.Run("register ok", func(t *testing.T) {
		withServer(t, func(srv *testServer) {
			data := `{"login": "nk", "password": "StrongEnoughPassword", "email": "nk@example.com"}`

			resp, body := doRequest(t, http.MethodPost, srv.URL+"/api/auth/register", data)

			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)
			var got struct {
				Message     string `json:"message"`
				AccessToken string `json:"accessToken"`
			}
			require.NoError(t, json.Unmarshal([]byte(body), &got))
			require.Equal(t, "User registered successfully", got.Message)
			require.NotEmpty(t, got.AccessToken)
			require.Equal(t, "Bearer "+got.AccessToken, resp.Header.Get("Authorization"))

			require.Len(t, resp.Cookies(), 1)
			cookie := resp.Cookies()[0]
			require.Equal(t, "refresh_token", cookie.Name)
			require.True(t, cookie.HttpOnly, "refresh cookie should be HttpOnly")
			require.Equal(t, "/", cookie.Path, "refresh cookie should be available on / path")
			require.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
			require.Equal(t, int(testRefreshTTL.Seconds()), cookie.MaxAge, "max age should be refresh TTL")
			require.NotEmpty(t, cookie.Value, "refresh cookie should not be empty")

			u, err := srv.users.VerifyPassword(t.Context(), "nk", "StrongEnoughPassword")
			require.NoError(t, err, "user should be stored")
			require.Equal(t, "nk@example.com", *u.Email)
		})
	})

	t.Run("register user exists", func(t *testing.T) {
		withServer(t, func(srv *testServer) {
			register(t, srv, "nk")

			resp, body := doRequest(t, http.MethodPost, srv.URL+"/api/auth/register", `{"login": "nk", "password": "OtherStrongPassword"}`)

			require.Equalf(t, http.StatusConflict, resp.StatusCode, "not expected code. Body: %s", body)
			require.JSONEq(t, `
				{
					"error": "service_error",
					"message": "User already exists"
				}`, body)
			require.Empty(t, resp.Cookies())
		})
	})

	t.Run("register invalid request", func(t *testing.T) {
		withServer(t, func(srv *testServer) {
			data := `{"login": "n k", "password": "short", "email": "not-an-email"}`

			resp, body := doRequest(t, http.MethodPost, srv.URL+"/api/auth/register", data)

			require.Equalf(t, http.StatusBadRequest, resp.StatusCode, "not expected code. Body: %s", body)
			require.JSONEq(t, `
				{
					"error": "validation_failed",
					"message": "Request validation failed",
					"fields": {
						"login": "Only latin letters, digits and '.', '_', '-' are allowed",
						"password": "Value is too short (minimum 8)",
						"email": "Invalid email address"
					}
				}`, body)
		})
	})

	t.Run("login ok", func(t *testing.T) {
		withServer(t, func(srv *testServer) {
			register(t, srv, "nk")

			resp, body := doRequest(t, http.MethodPost, srv.URL+"/api/auth/login", `{"login": "nk", "password": "StrongEnoughPassword"}`)

			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)
			require.Contains(t, body, `"message":"User logged in successfully"`)
			require.Contains(t, resp.Header.Get("Authorization"), "Bearer ")
			require.NotNil(t, refreshCookie(t, resp))
		})
	})

	t.Run("login failed", func(t *testing.T) {
		withServer(t, func(srv *testServer) {
			register(t, srv, "nk")

			for _, data := range []string{
				`{"login": "nk", "password": "WrongPassword"}`,
				`{"login": "unknown", "password": "StrongEnoughPassword"}`,
			} {
				resp, body := doRequest(t, http.MethodPost, srv.URL+"/api/auth/login", data)

				require.Equalf(t, http.StatusUnauthorized, resp.StatusCode, "not expected code. Body: %s", body)
				require.JSONEq(t, `
					{
						"error": "service_error",
						"message": "Invalid credentials"
					}`, body)
				require.Empty(t, resp.Cookies(), "no cookies should be set on login error")
				require.NotContains(t, resp.Header, "Authorization", "Authorization header should not be set")
			}
		})
	})

	t.Run("refresh within issuance window keeps cookie", func(t *testing.T) {
		withServer(t, func(srv *testServer) {
			access, cookie := register(t, srv, "nk")

			resp, body := doRequest(t, http.MethodPost, srv.URL+"/api/auth/refresh", "", withRefresh(cookie.Value))

			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)
			require.JSONEq(t, `{"accessToken": "`+access+`"}`, body)
			require.Nil(t, refreshCookie(t, resp), "refresh token must not be rotated twice")
		})
	})

	t.Run("refresh rotates", func(t *testing.T) {
		withServer(t, func(srv *testServer) {
			_, cookie := register(t, srv, "nk")
			srv.advance(testAccessTTL + time.Minute)

			resp, body := doRequest(t, http.MethodPost, srv.URL+"/api/auth/refresh", "", withRefresh(cookie.Value))

			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)
			require.Contains(t, body, "accessToken")
			rotated := refreshCookie(t, resp)
			require.NotNil(t, rotated)
			require.NotEqual(t, cookie.Value, rotated.Value)

			// Rotated token is accepted, previous one is revoked after the window
			srv.advance(testAccessTTL + time.Minute)
			resp, _ = doRequest(t, http.MethodPost, srv.URL+"/api/auth/refresh", "", withRefresh(cookie.Value))
			require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

			resp, _ = doRequest(t, http.MethodPost, srv.URL+"/api/auth/refresh", "", withRefresh(rotated.Value))
			require.Equal(t, http.StatusOK, resp.StatusCode)
		})
	})

	t.Run("refresh unauthorized", func(t *testing.T) {
		withServer(t, func(srv *testServer) {
			tests := []struct {
				name string
				opts []requestOption
			}{
				{name: "no cookie"},
				{name: "garbage", opts: []requestOption{withRefresh("garbage")}},
			}

			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					resp, body := doRequest(t, http.MethodPost, srv.URL+"/api/auth/refresh", "", tt.opts...)

					require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
					require.JSONEq(t, `
						{
							"error": "service_error",
							"message": "Unauthorized"
						}`, body)
				})
			}
		})
	})

	t.Run("logout", func(t *testing.T) {
		withServer(t, func(srv *testServer) {
			_, cookie := register(t, srv, "nk")

			resp, body := doRequest(t, http.MethodPost, srv.URL+"/api/auth/logout", "", withRefresh(cookie.Value))

			require.Equal(t, http.StatusOK, resp.StatusCode)
			require.JSONEq(t, `{"message": "Logged out successfully"}`, body)
			cleared := refreshCookie(t, resp)
			require.NotNil(t, cleared)
			require.Empty(t, cleared.Value)
			require.Less(t, cleared.MaxAge, 0)

			resp, _ = doRequest(t, http.MethodPost, srv.URL+"/api/auth/refresh", "", withRefresh(cookie.Value))
			require.Equal(t, http.StatusUnauthorized, resp.StatusCode, "refresh must fail after logout")
		})
	})

	t.Run("logout never fails", func(t *testing.T) {
		withServer(t, func(srv *testServer) {
			resp, body := doRequest(t, http.MethodPost, srv.URL+"/api/auth/logout", "")
			require.Equal(t, http.StatusOK, resp.StatusCode)
			require.JSONEq(t, `{"message": "No active session"}`, body)

			resp, body = doRequest(t, http.MethodPost, srv.URL+"/api/auth/logout", "", withRefresh("garbage"))
			require.Equal(t, http.StatusOK, resp.StatusCode)
			require.JSONEq(t, `{"message": "Invalid session"}`, body)
		})
	})

	t.Run("auth endpoints never refresh session on the side", func(t *testing.T) {
		withServer(t, func(srv *testServer) {
			register(t, srv, "nk")
			_, otherCookie := register(t, srv, "other")
			srv.advance(testAccessTTL + time.Minute)

			// Login with a stale cookie of another user must not rotate that session
			resp, body := doRequest(t, http.MethodPost, srv.URL+"/api/auth/login", `{"login": "nk", "password": "StrongEnoughPassword"}`, withRefresh(otherCookie.Value))
			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)
			require.Empty(t, resp.Header.Get(auth.RefreshedTokenHeader))
			require.Len(t, resp.Cookies(), 1, "only the session of the logged in user")
			cookie := refreshCookie(t, resp)
			require.NotNil(t, cookie)

			// Logout with only the cookie, long after the last rotation
			resp, body = doRequest(t, http.MethodPost, srv.URL+"/api/auth/logout", "", withRefresh(otherCookie.Value))
			require.Equal(t, http.StatusOK, resp.StatusCode)
			require.JSONEq(t, `{"message": "Logged out successfully"}`, body)
			require.Empty(t, resp.Header.Get(auth.RefreshedTokenHeader), "logout must not hand out a new session")
			require.Len(t, resp.Cookies(), 1)
			require.Less(t, refreshCookie(t, resp).MaxAge, 0)

			resp, _ = doRequest(t, http.MethodGet, srv.URL+"/api/user/me", "", withRefresh(otherCookie.Value))
			require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

			// Refresh rotates exactly once, in the handler
			srv.advance(testAccessTTL + time.Minute)
			resp, _ = doRequest(t, http.MethodPost, srv.URL+"/api/auth/refresh", "", withRefresh(cookie.Value))
			require.Equal(t, http.StatusOK, resp.StatusCode)
			require.Empty(t, resp.Header.Get(auth.RefreshedTokenHeader))
			require.Len(t, resp.Cookies(), 1)
		})
	})
}
