// Package wired uploads motion programs over a direct serial cable to the
// robot's control board. The link is reliable and ordered, so writes are
// paced but never acknowledged.
package wired

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/chaz8081/motion-installer/internal/registry"
	"github.com/chaz8081/motion-installer/internal/transfer"
)

// Session streams every program through one serial port.
type Session struct {
	adapter string
	port    io.WriteCloser
	deps    transfer.SessionDeps
	rep     *transfer.Reporter
	pacing  transfer.Pacing

	mu    sync.Mutex
	state registry.State
}

// NewSession builds a session writing to port. The session owns port and
// closes it when Run returns.
func NewSession(adapter string, port io.WriteCloser, deps transfer.SessionDeps, pacing transfer.Pacing) *Session {
	rep := deps.Reporter
	if rep == nil {
		rep = transfer.NewReporter(nil, adapter, len(deps.Commands))
	}
	return &Session{
		adapter: adapter,
		port:    port,
		deps:    deps,
		rep:     rep,
		pacing:  pacing,
	}
}

func (s *Session) Adapter() string { return s.adapter }

// State returns the link state: NotConnected, Connected while streaming,
// SendCompleted after a full upload.
func (s *Session) State() registry.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st registry.State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Run writes every program and returns. The port is closed on every path.
func (s *Session) Run(ctx context.Context) error {
	defer func() {
		if err := s.port.Close(); err != nil {
			slog.Warn("[WIRED] close port", "port", s.adapter, "error", err)
			s.rep.Error(&transfer.LinkError{Adapter: s.adapter, Op: "close", Err: err})
		}
	}()

	s.rep.Message("half-duplex communication started")
	s.setState(registry.Connected)
	s.rep.Message("robot connected")
	s.rep.Connected()
	slog.Info("[WIRED] streaming", "port", s.adapter, "programs", len(s.deps.Commands))

	if err := s.stream(ctx); err != nil {
		s.setState(registry.NotConnected)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.rep.Error(err)
		return err
	}

	s.rep.Message("communication finished")
	if err := transfer.Sleep(ctx, s.pacing.FinishPause); err != nil {
		s.setState(registry.NotConnected)
		return err
	}
	s.setState(registry.SendCompleted)
	s.rep.Finished(len(s.deps.Commands))
	return nil
}

func (s *Session) stream(ctx context.Context) error {
	p := s.pacing
	for i, cmd := range s.deps.Commands {
		frames, err := transfer.Plan(cmd.Wire)
		if err != nil {
			return fmt.Errorf("wired: program %q: %w", cmd.Name, err)
		}
		s.rep.Message("[%s] sending", cmd.Name)

		if err := s.write([]byte(transfer.Marker)); err != nil {
			return err
		}
		if err := s.write(frames.Header); err != nil {
			return err
		}
		if err := transfer.Sleep(ctx, p.WriteDelay); err != nil {
			return err
		}
		s.rep.Message("header written")
		if err := transfer.Sleep(ctx, p.HeaderPause); err != nil {
			return err
		}

		for gi, group := range frames.Groups {
			if err := s.write(group); err != nil {
				return err
			}
			if err := transfer.Sleep(ctx, p.WriteDelay); err != nil {
				return err
			}
			s.rep.Message("frame written [%d/%d]", gi+1, len(frames.Groups))
			if err := transfer.Sleep(ctx, p.GroupPause); err != nil {
				return err
			}
		}

		s.rep.Message("[%s] sent", cmd.Name)
		s.rep.ItemSent(cmd.Name, i+1)
		if err := transfer.Sleep(ctx, p.ProgramPause); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) write(b []byte) error {
	n, err := s.port.Write(b)
	if err == nil && n != len(b) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return &transfer.LinkError{Adapter: s.adapter, Op: "write", Err: err}
	}
	return nil
}

var _ transfer.Session = (*Session)(nil)
