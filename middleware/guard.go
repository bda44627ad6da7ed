package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	campusAuth "github.com/MrEthical07/campusAuth"
	"github.com/MrEthical07/campusAuth/model"
)

type principalContextKey struct{}

// WithPrincipal stores p on ctx.
func WithPrincipal(ctx context.Context, p model.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (model.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(model.Principal)
	return p, ok
}

// RequireAuth validates the bearer access token and stores the principal on
// the request context. The client IP is attached as well so engine calls
// made by the handler can audit it.
func RequireAuth(engine *campusAuth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				WriteError(w, campusAuth.ErrTokenInvalid)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				WriteError(w, campusAuth.ErrTokenInvalid)
				return
			}

			p, err := engine.ValidateAccess(r.Context(), token)
			if err != nil {
				WriteError(w, campusAuth.ErrTokenInvalid)
				return
			}

			ctx := WithPrincipal(r.Context(), p)
			ctx = campusAuth.WithClientIP(ctx, ClientIP(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

// ClientIP returns the host part of r.RemoteAddr. Forwarded headers are not
// trusted here; put a proxy-aware middleware in front when needed.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
