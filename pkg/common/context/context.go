package context

import (
	"context"
)

// IsCanceled returns true if the context has been canceled
func IsCanceled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// Detached returns a context that carries the values of parent but is never
// canceled with it.
func Detached(parent context.Context) context.Context {
	return context.WithoutCancel(parent)
}
