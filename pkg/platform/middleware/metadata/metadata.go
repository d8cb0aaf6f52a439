package metadata

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"timevault/pkg/requestcontext"
)

// ClientMetadata extracts the client IP and User-Agent, derives a short client
// label from the User-Agent and stores all three in the request context.
// Capsule events carry the label so downstream consumers can tell which client
// performed a mutation.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua := r.Header.Get("User-Agent")
		ctx := requestcontext.WithClientMetadata(r.Context(), ClientIPFromRequest(r), ua, ClientLabel(ua))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientLabel renders a User-Agent as "<browser> <version> / <os>".
// Bots are prefixed with "bot:". Unparseable input yields "".
func ClientLabel(userAgent string) string {
	if strings.TrimSpace(userAgent) == "" {
		return ""
	}
	ua := useragent.New(userAgent)
	name, version := ua.Browser()
	if name == "" {
		return ""
	}

	label := name
	if version != "" {
		label += " " + version
	}
	if osName := ua.OSInfo().Name; osName != "" {
		label += " / " + osName
	}
	if ua.Bot() {
		label = "bot:" + label
	}
	return label
}

// ClientIPFromRequest extracts the real client IP from the request, handling proxies and load balancers.
func ClientIPFromRequest(r *http.Request) string {
	// First hop of X-Forwarded-For is the original client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// RemoteAddr is "ip:port" or "[::1]:port".
	if addr := r.RemoteAddr; addr != "" {
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return addr[:idx]
		}
		return addr
	}

	return "unknown"
}
