package userctx

import (
	"context"

	"github.com/nkiryanov/vidsession/internal/models"
)

type ctxKey string

const claimKey ctxKey = "claim"

// Create a new context with the authenticated identity
func New(ctx context.Context, c models.Claim) context.Context {
	return context.WithValue(ctx, claimKey, c)
}

// Extract the authenticated identity from the context
func FromContext(ctx context.Context) (models.Claim, bool) {
	c, ok := ctx.Value(claimKey).(models.Claim)
	return c, ok
}
