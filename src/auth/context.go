package auth

import (
	"context"
)

type contextKey string

const CallerKey contextKey = "caller"

// Caller is the authenticated API client behind a request.
type Caller struct {
	ID    string
	Token string
}

func GetCallerFromContext(ctx context.Context) (*Caller, bool) {
	caller, ok := ctx.Value(CallerKey).(*Caller)
	return caller, ok
}

func WithCaller(ctx context.Context, caller *Caller) context.Context {
	return context.WithValue(ctx, CallerKey, caller)
}
