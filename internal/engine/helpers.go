package engine

import (
	"context"
	"time"

	"github.com/edgevdb/core/internal/corerr"
)

func corerrLengthMismatch(a, b int) error {
	return corerr.NewInvalidArgument("vector length mismatch: %d vs %d", a, b)
}

// withRequestTimeout bounds ctx by d (spec.md §6's request_timeout_ms),
// unless ctx already carries an earlier deadline or d is non-positive.
func withRequestTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
