package handlers

import (
	"errors"
	"net/http"

	"github.com/nkiryanov/vidsession/internal/apperrors"
	"github.com/nkiryanov/vidsession/internal/handlers/render"
	"github.com/nkiryanov/vidsession/internal/logger"
)

type tokenResponse struct {
	Message     string `json:"message,omitempty"`
	AccessToken string `json:"accessToken"`
}

func handleRegister(authService authService, transport tokenTransport, l logger.Logger) http.Handler {
	type request struct {
		Login    string  `json:"login" validate:"required,min=2,max=150,login"`
		Password string  `json:"password" validate:"required,min=8,max=72"`
		Email    *string `json:"email" validate:"omitempty,email"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		pair, err := authService.Register(r.Context(), data.Login, data.Password, data.Email)

		switch {
		case err == nil:
			transport.SetTokens(w, pair)
			render.JSON(w, tokenResponse{Message: "User registered successfully", AccessToken: pair.Access.Value})
		case errors.Is(err, apperrors.ErrUserAlreadyExists):
			render.ServiceError(w, "User already exists", http.StatusConflict)
		default:
			l.Error("Failed to register user", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleLogin(authService authService, transport tokenTransport, l logger.Logger) http.Handler {
	type request struct {
		Login    string `json:"login" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		pair, err := authService.Login(r.Context(), data.Login, data.Password)

		switch {
		case err == nil:
			transport.SetTokens(w, pair)
			render.JSON(w, tokenResponse{Message: "User logged in successfully", AccessToken: pair.Access.Value})
		case errors.Is(err, apperrors.ErrInvalidCredentials):
			render.ServiceError(w, "Invalid credentials", http.StatusUnauthorized)
		default:
			l.Error("Failed to login user", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleRefresh(authService authService, transport tokenTransport, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refresh := transport.RefreshToken(r)
		if refresh == "" {
			render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		pair, err := authService.Refresh(r.Context(), refresh)

		switch {
		case err == nil:
			// Cookie is rewritten only when the refresh token was rotated
			transport.SetTokens(w, pair)
			render.JSON(w, tokenResponse{AccessToken: pair.Access.Value})
		case errors.Is(err, apperrors.ErrUnauthorized):
			render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
		default:
			l.Error("Failed to refresh tokens", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleLogout(authService authService, transport tokenTransport) http.Handler {
	type response struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		message := authService.Logout(r.Context(), transport.RefreshToken(r))

		transport.ClearRefresh(w)
		render.JSON(w, response{Message: message})
	})
}
