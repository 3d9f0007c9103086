package testutil

import (
	"context"
	"net/http"
	"time"

	"certify/pkg/requestcontext"
)

// WithBearer sets an Authorization header the way an admin client would.
func WithBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

// AtTime pins the request-scoped clock, as the requesttime middleware would.
func AtTime(ctx context.Context, t time.Time) context.Context {
	return requestcontext.WithTime(ctx, t)
}
