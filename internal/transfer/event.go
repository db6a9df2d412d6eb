// Package transfer defines the per-adapter transfer session contract, the
// framing shared by every transport, and the runner that drives one session
// per adapter.
package transfer

import (
	"fmt"
	"log/slog"
	"sync"
)

// EventKind is one of the four observations a session reports.
type EventKind int

const (
	EventMessage EventKind = iota
	EventConnected
	EventItemSent
	EventFinished
)

func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventConnected:
		return "connected"
	case EventItemSent:
		return "item-sent"
	case EventFinished:
		return "finished"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is a progress report from a session. Err is set on messages that
// report a failure. Sent and Total count programs for this adapter.
type Event struct {
	Adapter string
	Kind    EventKind
	Message string
	Err     error
	Program string
	Sent    int
	Total   int
}

// Emitter is a bounded event queue. When the consumer falls behind, the
// oldest event is dropped so sessions never block on reporting.
type Emitter struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

// NewEmitter creates an emitter holding up to size undelivered events.
func NewEmitter(size int) *Emitter {
	if size <= 0 {
		size = 64
	}
	return &Emitter{ch: make(chan Event, size)}
}

// Events returns the channel consumers read from. It is closed by Close.
func (e *Emitter) Events() <-chan Event {
	return e.ch
}

// Emit queues ev. Events emitted after Close are discarded.
func (e *Emitter) Emit(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	for {
		select {
		case e.ch <- ev:
			return
		default:
		}
		select {
		case old := <-e.ch:
			slog.Warn("[EVENTS] queue full, dropping oldest event", "adapter", old.Adapter, "kind", old.Kind)
		default:
		}
	}
}

// Close closes the event channel.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}

// Reporter binds an emitter to one adapter.
type Reporter struct {
	Adapter string
	Total   int
	emitter *Emitter
}

// NewReporter returns a Reporter for adapter whose events carry total as
// the number of programs to send. A nil emitter discards every event.
func NewReporter(e *Emitter, adapter string, total int) *Reporter {
	return &Reporter{Adapter: adapter, Total: total, emitter: e}
}

func (r *Reporter) emit(ev Event) {
	ev.Adapter = r.Adapter
	ev.Total = r.Total
	if r.emitter != nil {
		r.emitter.Emit(ev)
	}
}

// Message reports a progress line.
func (r *Reporter) Message(format string, args ...any) {
	r.emit(Event{Kind: EventMessage, Message: fmt.Sprintf(format, args...)})
}

// Error reports a failure as a message carrying err.
func (r *Reporter) Error(err error) {
	r.emit(Event{Kind: EventMessage, Message: err.Error(), Err: err})
}

func (r *Reporter) Connected() {
	r.emit(Event{Kind: EventConnected})
}

func (r *Reporter) ItemSent(program string, sent int) {
	r.emit(Event{Kind: EventItemSent, Program: program, Sent: sent})
}

func (r *Reporter) Finished(sent int) {
	r.emit(Event{Kind: EventFinished, Sent: sent})
}
