package ble

import (
	"sync"

	"github.com/chaz8081/motion-installer/internal/ble/bgapi"
)

// eventQueue decouples a radio's receive path from the reader of Events.
// push never blocks, so a radio can keep delivering command responses
// while nobody is reading events.
type eventQueue struct {
	mu     sync.Mutex
	items  []bgapi.Event
	notify chan struct{}
	out    chan bgapi.Event
	done   chan struct{}
	once   sync.Once
}

func newEventQueue() *eventQueue {
	q := &eventQueue{
		notify: make(chan struct{}, 1),
		out:    make(chan bgapi.Event),
		done:   make(chan struct{}),
	}
	go q.pump()
	return q
}

func (q *eventQueue) events() <-chan bgapi.Event {
	return q.out
}

func (q *eventQueue) push(ev bgapi.Event) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// close stops delivery and closes the events channel. Queued events are
// discarded.
func (q *eventQueue) close() {
	q.once.Do(func() { close(q.done) })
}

func (q *eventQueue) pump() {
	defer close(q.out)
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.mu.Unlock()
			select {
			case <-q.notify:
				continue
			case <-q.done:
				return
			}
		}
		ev := q.items[0]
		q.items[0] = nil
		q.items = q.items[1:]
		q.mu.Unlock()

		select {
		case q.out <- ev:
		case <-q.done:
			return
		}
	}
}
