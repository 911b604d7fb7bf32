package services

import (
	"context"
	"runtime/debug"

	"github.com/dpup/prefab/errors"
	"github.com/dpup/prefab/logging"
)

// recoverPanic logs a recovered panic with a trimmed stack. It must be
// deferred directly.
func recoverPanic(ctx context.Context, msg string) {
	if r := recover(); r != nil {
		err, _ := errors.ParseStack(debug.Stack())
		skipFrames := 3
		numFrames := 5
		logging.Errorw(ctx, msg, "error", r, "error.stack_trace", err.MinimalStack(skipFrames, numFrames))
	}
}
