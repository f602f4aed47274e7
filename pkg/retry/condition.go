package retry

import (
	"context"
	"errors"
	"net"
	"syscall"
	"time"

	"github.com/jzx17/taskserve/pkg/types"
)

// IsTemporary reports whether err is an accept or I/O failure expected to
// clear without intervention: descriptor exhaustion, an aborted handshake
// or a timeout
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, net.ErrClosed) {
		return false
	}

	if errors.Is(err, syscall.EMFILE) ||
		errors.Is(err, syscall.ENFILE) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.ENOBUFS) ||
		errors.Is(err, syscall.ENOMEM) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, types.ErrTimeout)
}

// Sleep waits for d on clock, returning early with the context error when
// ctx is done first
func Sleep(ctx context.Context, clock types.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := types.OrRealClock(clock).NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
