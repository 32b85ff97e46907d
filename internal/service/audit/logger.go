package audit

import "context"

// Client identifies where a request came from.
type Client struct {
	IP        string
	UserAgent string
}

type clientKey struct{}

// WithClient attaches the caller's address to ctx so that audit entries
// written further down the call chain carry it.
func WithClient(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, clientKey{}, Client{IP: ip, UserAgent: userAgent})
}

func clientFrom(ctx context.Context) (Client, bool) {
	c, ok := ctx.Value(clientKey{}).(Client)
	return c, ok
}
