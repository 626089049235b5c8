package buildtracker

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// CommandTimeout bounds the write transaction of every command
var CommandTimeout = 10 * time.Second

// runCommand runs fn unless ctx is already done and normalizes the returned
// error to a rich error.
func runCommand(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during "+name,
		)
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, CommandTimeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, name+" transaction failed")
	}

	return nil
}
