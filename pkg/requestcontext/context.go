// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware sets these values and the capsule service reads them, so services
// never import net/http. Tests inject the same values directly:
//
//	ctx = requestcontext.WithIdentity(ctx, caller)
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"

	id "timevault/pkg/domain"
)

type (
	identityKey    struct{}
	clientIPKey    struct{}
	userAgentKey   struct{}
	clientKey      struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Identity retrieves the authenticated caller. Returns the nil identity if not set.
func Identity(ctx context.Context) id.Identity {
	if identity, ok := ctx.Value(identityKey{}).(id.Identity); ok {
		return identity
	}
	return id.NilIdentity
}

// WithIdentity injects the authenticated caller into the context.
func WithIdentity(ctx context.Context, identity id.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey{}).(string); ok {
		return ip
	}
	return ""
}

// UserAgent retrieves the raw User-Agent from the context.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(userAgentKey{}).(string); ok {
		return ua
	}
	return ""
}

// Client retrieves the short client label ("Firefox 120 / Linux") derived
// from the User-Agent.
func Client(ctx context.Context) string {
	if c, ok := ctx.Value(clientKey{}).(string); ok {
		return c
	}
	return ""
}

// WithClientMetadata injects client IP, User-Agent and the derived client label.
func WithClientMetadata(ctx context.Context, clientIP, userAgent, client string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey{}, clientIP)
	ctx = context.WithValue(ctx, userAgentKey{}, userAgent)
	ctx = context.WithValue(ctx, clientKey{}, client)
	return ctx
}

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (relay worker, CLI).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context. Every ledger timestamp of a
// request derives from this single value.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
