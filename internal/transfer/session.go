package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chaz8081/motion-installer/internal/discovery"
	"github.com/chaz8081/motion-installer/internal/motion"
	"github.com/chaz8081/motion-installer/internal/registry"
)

// ErrTeardownTimeout reports a link that did not disconnect within the
// teardown budget. It is reported but never fatal.
var ErrTeardownTimeout = errors.New("transfer: link did not disconnect in time; replug the adapter")

// LinkError wraps a failure to open or drive an adapter.
type LinkError struct {
	Adapter string
	Op      string
	Err     error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("transfer: %s %s: %v", e.Adapter, e.Op, e.Err)
}

func (e *LinkError) Unwrap() error { return e.Err }

// Session uploads a list of commands through one adapter. Run returns when
// the upload finished, failed, or ctx was cancelled; the adapter is closed
// on every path.
type Session interface {
	Adapter() string
	Run(ctx context.Context) error
}

// SessionDeps are the shared collaborators a session is built with.
type SessionDeps struct {
	Commands    []motion.Command
	Registry    *registry.Registry
	Coordinator *discovery.Coordinator
	Reporter    *Reporter
}

// SessionFactory builds the session for one adapter.
type SessionFactory func(adapter string, deps SessionDeps) (Session, error)

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
