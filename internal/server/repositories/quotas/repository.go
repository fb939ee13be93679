// Package quotas declares the storage contract for per-period unit usage.
package quotas

import (
	"context"
	"time"
)

type Repository interface {
	// Consume takes one unit for owner in period if fewer than limit are used,
	// returning the new usage. limit < 0 means unlimited. When nothing is
	// left it returns common.ErrQuotaExceeded and changes nothing.
	Consume(ctx context.Context, owner string, period time.Time, limit int) (int, error)
	// Used returns units consumed so far; zero when nothing was recorded.
	Used(ctx context.Context, owner string, period time.Time) (int, error)
}
