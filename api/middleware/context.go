package middleware

import (
	"context"

	pkgauth "github.com/angelmondragon/quotedesk-backend/pkg/auth"
)

type contextKey string

const ctxIdentity contextKey = "identity"

// IdentityFromContext returns the caller identity seeded by Auth. The zero
// Identity means the request was not authenticated.
func IdentityFromContext(ctx context.Context) pkgauth.Identity {
	if ctx == nil {
		return pkgauth.Identity{}
	}
	if v, ok := ctx.Value(ctxIdentity).(pkgauth.Identity); ok {
		return v
	}
	return pkgauth.Identity{}
}

func ActorIDFromContext(ctx context.Context) string {
	return IdentityFromContext(ctx).ActorID
}

// WithIdentity injects the caller identity into the context.
func WithIdentity(ctx context.Context, identity pkgauth.Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxIdentity, identity)
}
