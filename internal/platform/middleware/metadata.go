package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"auditgov/pkg/requestcontext"
)

// ClientMetadata records the client IP, raw User-Agent and its parsed
// family for the audit-context record.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent := r.Header.Get("User-Agent")
		ctx := requestcontext.WithClientMetadata(r.Context(), ClientIPFromRequest(r), userAgent)
		ctx = requestcontext.WithUserAgentFamily(ctx, UserAgentFamily(userAgent))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIPFromRequest prefers the first X-Forwarded-For hop, then
// X-Real-IP, then the connection address.
func ClientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// UserAgentFamily renders "Browser Version", or the bare product for
// non-browser clients such as curl.
func UserAgentFamily(raw string) string {
	if raw == "" {
		return ""
	}
	ua := useragent.New(raw)
	if ua.Bot() {
		return "bot"
	}
	name, version := ua.Browser()
	if name == "" {
		return "unknown"
	}
	if major, _, _ := strings.Cut(version, "."); major != "" {
		return name + " " + major
	}
	return name
}
