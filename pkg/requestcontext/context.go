// Package requestcontext carries request-scoped values past the HTTP layer.
// Middleware writes them; services and audit enrichment read them without
// importing net/http.
package requestcontext

import (
	"context"
	"time"
)

type key int

const (
	keyClientIP key = iota
	keyUserAgent
	keyRequestID
	keyRequestTime
)

func stringValue(ctx context.Context, k key) string {
	v, _ := ctx.Value(k).(string)
	return v
}

func ClientIP(ctx context.Context) string { return stringValue(ctx, keyClientIP) }
func UserAgent(ctx context.Context) string { return stringValue(ctx, keyUserAgent) }
func RequestID(ctx context.Context) string { return stringValue(ctx, keyRequestID) }

func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, keyClientIP, clientIP)
	return context.WithValue(ctx, keyUserAgent, userAgent)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, keyRequestID, requestID)
}

// Now returns the time the request was received, so every record written for
// one request carries the same instant. Outside a request it is the wall clock.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(keyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, keyRequestTime, t)
}
