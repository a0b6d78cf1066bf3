package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/vidsession/internal/apperrors"
	"github.com/nkiryanov/vidsession/internal/handlers/render"
	"github.com/nkiryanov/vidsession/internal/handlers/userctx"
	"github.com/nkiryanov/vidsession/internal/logger"
)

func handleUserMe(userService userService, l logger.Logger) http.Handler {
	type response struct {
		ID       uuid.UUID `json:"id"`
		Username string    `json:"username"`
		Email    *string   `json:"email"`
		Role     string    `json:"role"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claim, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		user, err := userService.GetUserByID(r.Context(), claim.SubjectID)

		switch {
		case err == nil:
			render.JSON(w, response{ID: user.ID, Username: user.Username, Email: user.Email, Role: user.Role})
		case errors.Is(err, apperrors.ErrUserNotFound):
			render.ServiceError(w, "User not found", http.StatusNotFound)
		default:
			l.Error("Failed to get user", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}
