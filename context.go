package campusAuth

import "context"

type clientIPContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. Operations that take
// an explicit ip argument fall back to it when the argument is empty.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// ClientIPFromContext returns the IP stored by WithClientIP, if any.
func ClientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func resolveIP(ctx context.Context, ip string) string {
	if ip != "" {
		return ip
	}
	return ClientIPFromContext(ctx)
}
