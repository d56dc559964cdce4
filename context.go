package keygate

import "context"

type clientIPContextKey struct{}
type actorIDContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx for audit logging.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithActorID attaches the acting identity's id to ctx so administrative
// key and account operations are attributable in the audit stream.
func WithActorID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, actorIDContextKey{}, id)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func actorIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(actorIDContextKey{}).(string)
	return id
}
