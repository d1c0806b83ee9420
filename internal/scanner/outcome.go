package scanner

import (
	"context"
	"errors"
	"net"
	"syscall"
	"time"

	"github.com/woozymasta/mcscan/internal/models"
)

// ErrProbePanic marks a status exchange aborted by a panicking prober.
var ErrProbePanic = errors.New("status prober panicked")

// State classifies the connect attempt of one target.
type State int

const (
	// ConnectError covers every non-timeout failure except refusal (unreachable, reset, ...)
	ConnectError State = iota
	Open
	Closed
	TimedOut
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case Closed:
		return "closed"
	case TimedOut:
		return "timeout"
	default:
		return "error"
	}
}

// Result is the single outcome emitted for each scheduled target.
type Result struct {
	// Connect or protocol failure, nil when the target was probed successfully
	Err error

	// Parsed status, only set for Open targets whose exchange completed
	Status *models.Status

	Target  models.Target
	State   State
	Elapsed time.Duration
}

// classify maps a dial error to a connect state.
func classify(err error) State {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return TimedOut
	case errors.Is(err, syscall.ECONNREFUSED):
		return Closed
	default:
		return ConnectError
	}
}

// systemic reports a local resource failure that makes further scheduling pointless.
func systemic(err error) bool {
	return errors.Is(err, syscall.EMFILE) ||
		errors.Is(err, syscall.ENFILE) ||
		errors.Is(err, syscall.ENOBUFS) ||
		errors.Is(err, syscall.ENOMEM)
}
