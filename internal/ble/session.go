package ble

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chaz8081/motion-installer/internal/ble/bgapi"
	"github.com/chaz8081/motion-installer/internal/registry"
	"github.com/chaz8081/motion-installer/internal/transfer"
)

var errLinkLost = errors.New("ble: robot disconnected")

// SessionOptions configures a Session.
type SessionOptions struct {
	Pacing      transfer.Pacing
	Teardown    transfer.Teardown
	Conn        ConnParams
	Continuous  bool          // keep serving robots until cancelled
	Prelude     time.Duration // pause after each prelude command (default 10ms)
	RejectPause time.Duration // pause after dropping a non-robot peer (default 250ms)
	PassPause   time.Duration // pause between continuous passes (default 500ms)
}

// DefaultSessionOptions returns the timings the robot firmware was tuned
// against.
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		Pacing:      transfer.BLEPacing(),
		Teardown:    transfer.DefaultTeardown(),
		Conn:        DefaultConnParams(),
		Prelude:     10 * time.Millisecond,
		RejectPause: 250 * time.Millisecond,
		PassPause:   500 * time.Millisecond,
	}
}

// Session uploads programs to robots through one Radio. It implements
// transfer.Session and discovery.Connector.
//
// Link state below is owned by whichever goroutine is driving the radio:
// the discovery coordinator inside Connect, then the Run goroutine once
// Connect has returned.
type Session struct {
	adapter string
	radio   Radio
	deps    transfer.SessionDeps
	rep     *transfer.Reporter
	reg     *registry.Registry
	opts    SessionOptions

	state    registry.State
	peer     registry.Address
	claimed  bool
	conn     byte
	svcStart uint16
	svcEnd   uint16
	txHandle uint16
}

// NewSession builds a session for adapter. The session owns radio and
// closes it when Run returns.
func NewSession(adapter string, radio Radio, deps transfer.SessionDeps, opts SessionOptions) *Session {
	def := DefaultSessionOptions()
	if opts.Teardown.Bound() <= 0 {
		opts.Teardown = def.Teardown
	}
	if opts.Conn == (ConnParams{}) {
		opts.Conn = def.Conn
	}
	if deps.Registry == nil {
		deps.Registry = registry.New()
	}
	rep := deps.Reporter
	if rep == nil {
		rep = transfer.NewReporter(nil, adapter, len(deps.Commands))
	}
	return &Session{
		adapter: adapter,
		radio:   radio,
		deps:    deps,
		rep:     rep,
		reg:     deps.Registry,
		opts:    opts,
	}
}

func (s *Session) Adapter() string { return s.adapter }

// Run serves one robot, or robots until ctx is cancelled in continuous
// mode. The radio is closed on every path.
func (s *Session) Run(ctx context.Context) error {
	defer s.shutdown()

	for {
		err := s.pass(ctx)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err == nil:
		case !s.opts.Continuous || errors.Is(err, ErrRadioClosed):
			s.rep.Error(err)
			return err
		default:
			s.rep.Error(err)
			slog.Warn("[BLE] pass failed, continuing", "adapter", s.adapter, "error", err)
		}
		if !s.opts.Continuous {
			return nil
		}
		s.rep.Message("waiting for the next robot")
		if err := transfer.Sleep(ctx, s.opts.PassPause); err != nil {
			return err
		}
	}
}

// pass finds one robot, streams every program to it and disconnects.
func (s *Session) pass(ctx context.Context) error {
	if err := s.awaitConnection(ctx); err != nil {
		return err
	}
	s.rep.Message("robot connected")
	s.rep.Connected()

	err := s.stream(ctx)
	if err == nil {
		s.reg.SetState(s.peer, registry.SendCompleted)
		s.rep.Message("communication finished")
		s.rep.Finished(len(s.deps.Commands))
	}
	s.disconnect()
	return err
}

// awaitConnection hands the session to the discovery coordinator, which
// calls Connect when no other adapter is discovering.
func (s *Session) awaitConnection(ctx context.Context) error {
	if s.deps.Coordinator == nil {
		return s.Connect(ctx)
	}
	s.rep.Message("waiting for discovery")
	return <-s.deps.Coordinator.Submit(s.adapter, s)
}

// Connect runs discovery until a robot is connected and its TX
// characteristic located.
func (s *Session) Connect(ctx context.Context) error {
	s.resetLink()

	if err := s.ignoreRejected(s.radio.EndProcedure(ctx)); err != nil {
		return s.linkErr("end procedure", err)
	}
	if err := transfer.Sleep(ctx, s.opts.Prelude); err != nil {
		return err
	}
	if err := s.ignoreRejected(s.radio.Disconnect(ctx, 0)); err != nil {
		return s.linkErr("disconnect", err)
	}
	if err := transfer.Sleep(ctx, s.opts.Prelude); err != nil {
		return err
	}

	s.rep.Message("searching for robots")
	if err := s.discover(ctx); err != nil {
		return err
	}

	for s.state != registry.Connected {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-s.radio.Events():
			if !ok {
				return ErrRadioClosed
			}
			if err := s.handle(ctx, ev); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Session) resetLink() {
	s.state = registry.NotConnected
	s.peer = 0
	s.claimed = false
	s.conn = 0
	s.clearHandles()
}

func (s *Session) clearHandles() {
	s.svcStart, s.svcEnd, s.txHandle = 0, 0, 0
}

func (s *Session) discover(ctx context.Context) error {
	if err := s.radio.Discover(ctx, bgapi.DiscoverGeneric); err != nil {
		return s.linkErr("discover", err)
	}
	return nil
}

func (s *Session) handle(ctx context.Context, ev bgapi.Event) error {
	switch e := ev.(type) {
	case bgapi.ScanResponse:
		return s.onScanResponse(ctx, e)
	case bgapi.ConnectionStatus:
		return s.onConnectionStatus(ctx, e)
	case bgapi.Disconnected:
		return s.onDisconnected(ctx, e)
	case bgapi.GroupFound:
		if s.state == registry.ScanningServices && bytes.Equal(e.UUID, littleEndian(ControlServiceUUID)) {
			s.svcStart, s.svcEnd = e.Start, e.End
		}
	case bgapi.InformationFound:
		if s.state == registry.ScanningCharacteristics && bytes.Equal(e.UUID, littleEndian(TXCharacteristicUUID)) {
			s.txHandle = e.Handle
		}
	case bgapi.ProcedureCompleted:
		return s.onProcedureCompleted(ctx, e)
	}
	return nil
}

func (s *Session) onScanResponse(ctx context.Context, e bgapi.ScanResponse) error {
	// Robots advertise a public address.
	if s.state != registry.NotConnected || e.AddressType != bgapi.AddressPublic {
		return nil
	}
	addr := registry.AddressFromBytes(e.Sender[:])
	if !s.reg.TryClaim(addr) {
		return nil
	}
	s.state = registry.Connecting
	s.peer = addr
	s.claimed = true
	s.clearHandles()
	slog.Debug("[BLE] connecting", "adapter", s.adapter, "peer", addr, "rssi", e.RSSI)

	err := s.radio.ConnectDirect(ctx, e.Sender, e.AddressType, s.opts.Conn)
	if err == nil {
		return nil
	}
	if !isResultError(err) {
		return s.linkErr("connect", err)
	}
	slog.Warn("[BLE] connect rejected", "adapter", s.adapter, "peer", addr, "error", err)
	s.reg.SetState(addr, registry.NotConnected)
	s.state = registry.NotConnected
	return s.discover(ctx)
}

func (s *Session) onConnectionStatus(ctx context.Context, e bgapi.ConnectionStatus) error {
	addr := registry.AddressFromBytes(e.Address[:])
	if !e.Connected() {
		s.reg.SetState(addr, registry.NotConnected)
		s.state = registry.NotConnected
		return s.discover(ctx)
	}
	// Parameter updates repeat the status event on an open link.
	if s.state != registry.Connecting {
		return nil
	}
	s.reg.SetState(addr, registry.ScanningServices)
	s.state = registry.ScanningServices
	s.peer = addr
	s.conn = e.Connection
	s.rep.Message("[%s] connected, scanning services", addr)
	if err := s.radio.ReadByGroupType(ctx, e.Connection, 0x0001, 0xFFFF, PrimaryServiceType); err != nil {
		return s.linkErr("read services", err)
	}
	return nil
}

func (s *Session) onDisconnected(ctx context.Context, e bgapi.Disconnected) error {
	// A disconnect while Connecting belongs to a peer dropped earlier.
	if s.state != registry.ScanningServices && s.state != registry.ScanningCharacteristics {
		return nil
	}
	slog.Info("[BLE] link dropped during setup", "adapter", s.adapter, "peer", s.peer, "reason", e.Reason)
	s.reg.SetState(s.peer, registry.NotConnected)
	s.state = registry.NotConnected
	s.rep.Message("[%s] dropped the link, searching again", s.peer)
	return s.discover(ctx)
}

func (s *Session) onProcedureCompleted(ctx context.Context, e bgapi.ProcedureCompleted) error {
	switch s.state {
	case registry.ScanningServices:
		if s.svcEnd == 0 {
			return s.reject(ctx)
		}
		s.reg.SetState(s.peer, registry.ScanningCharacteristics)
		s.state = registry.ScanningCharacteristics
		s.rep.Message("control service found, scanning characteristics")
		if err := s.radio.FindInformation(ctx, e.Connection, s.svcStart, s.svcEnd); err != nil {
			return s.linkErr("find information", err)
		}
	case registry.ScanningCharacteristics:
		if s.txHandle == 0 {
			return s.reject(ctx)
		}
		s.reg.SetState(s.peer, registry.Connected)
		s.state = registry.Connected
		s.rep.Message("[%s] is a robot", s.peer)
	}
	return nil
}

// reject drops a peer that lacks the robot's service or characteristic and
// resumes discovery. The registry keeps the peer as NotTargetDevice so no
// adapter tries it again this run.
func (s *Session) reject(ctx context.Context) error {
	s.reg.SetState(s.peer, registry.NotTargetDevice)
	s.rep.Message("[%s] is not a robot", s.peer)
	if err := s.ignoreRejected(s.radio.Disconnect(ctx, s.conn)); err != nil {
		return s.linkErr("disconnect", err)
	}
	if err := transfer.Sleep(ctx, s.opts.RejectPause); err != nil {
		return err
	}
	s.state = registry.NotConnected
	s.clearHandles()
	if err := s.discover(ctx); err != nil {
		return err
	}
	s.rep.Message("searching again")
	return nil
}

// stream writes every program to the connected robot.
func (s *Session) stream(ctx context.Context) error {
	p := s.opts.Pacing
	if err := transfer.Sleep(ctx, p.SettleDelay); err != nil {
		return err
	}
	for i, cmd := range s.deps.Commands {
		frames, err := transfer.Plan(cmd.Wire)
		if err != nil {
			return fmt.Errorf("ble: program %q: %w", cmd.Name, err)
		}
		s.rep.Message("[%s] sending", cmd.Name)

		if err := s.write(ctx, []byte(transfer.Marker)); err != nil {
			return err
		}
		for _, chunk := range transfer.Chunk(frames.Header, transfer.BLEChunkLen) {
			if err := s.write(ctx, chunk); err != nil {
				return err
			}
		}
		s.rep.Message("header written")
		if err := transfer.Sleep(ctx, p.HeaderPause); err != nil {
			return err
		}

		for gi, group := range frames.Groups {
			for _, chunk := range transfer.Chunk(group, transfer.BLEChunkLen) {
				if err := s.write(ctx, chunk); err != nil {
					return err
				}
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
	return transfer.Sleep(ctx, p.FinishPause)
}

// write performs one acknowledged attribute write and waits WriteDelay.
func (s *Session) write(ctx context.Context, data []byte) error {
	if err := s.radio.AttributeWrite(ctx, s.conn, s.txHandle, data); err != nil {
		return s.linkErr("write", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-s.radio.Events():
			if !ok {
				return s.linkErr("write", ErrRadioClosed)
			}
			switch e := ev.(type) {
			case bgapi.ProcedureCompleted:
				if e.Result != 0 {
					return s.linkErr("write", bgapi.WriteError(e.Result))
				}
				return transfer.Sleep(ctx, s.opts.Pacing.WriteDelay)
			case bgapi.Disconnected:
				s.state = registry.NotConnected
				return s.linkErr("write", errLinkLost)
			}
		}
	}
}

// disconnect closes the robot link, waiting at most the teardown budget.
func (s *Session) disconnect() {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.Teardown.Bound())
	defer cancel()
	err := s.radio.Disconnect(ctx, s.conn)
	switch {
	case err == nil, isResultError(err), errors.Is(err, ErrRadioClosed):
	case errors.Is(err, context.DeadlineExceeded):
		slog.Warn("[BLE] disconnect timed out", "adapter", s.adapter, "peer", s.peer)
		s.rep.Error(transfer.ErrTeardownTimeout)
	default:
		slog.Warn("[BLE] disconnect failed", "adapter", s.adapter, "error", err)
		s.rep.Error(&transfer.LinkError{Adapter: s.adapter, Op: "disconnect", Err: err})
	}
	s.state = registry.NotConnected
}

// shutdown disconnects, releases the peer unless running continuously, and
// closes the radio.
func (s *Session) shutdown() {
	s.disconnect()
	if !s.opts.Continuous && s.claimed {
		s.reg.Remove(s.peer)
	}
	if err := s.radio.Close(); err != nil {
		slog.Warn("[BLE] close radio failed", "adapter", s.adapter, "error", err)
		s.rep.Error(&transfer.LinkError{Adapter: s.adapter, Op: "close", Err: err})
	}
	slog.Info("[BLE] session closed", "adapter", s.adapter)
}

func (s *Session) ignoreRejected(err error) error {
	if err != nil && isResultError(err) {
		slog.Debug("[BLE] command rejected", "adapter", s.adapter, "error", err)
		return nil
	}
	return err
}

func (s *Session) linkErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &transfer.LinkError{Adapter: s.adapter, Op: op, Err: err}
}
