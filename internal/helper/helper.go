package helper

import (
	"context"
	"time"
)

// CheckDeadline returns the context error early when the caller's deadline
// already expired, so repositories can bail out before touching the database.
func CheckDeadline(ctx context.Context) error {
	if deadline, ok := ctx.Deadline(); ok && time.Now().After(deadline) {
		return context.DeadlineExceeded
	}
	return ctx.Err()
}
