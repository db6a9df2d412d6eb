// Package registry tracks which BLE peers are being handled by which stage of
// connection setup. One Registry is shared by every adapter in a run so that
// two adapters never drive the same robot at once.
package registry

import (
	"fmt"
	"sync"
)

// Address is a 48-bit Bluetooth device address.
type Address uint64

// AddressFromBytes builds an Address from the little-endian byte order the
// radio reports. Inputs shorter than 6 bytes yield 0.
func AddressFromBytes(b []byte) Address {
	if len(b) < 6 {
		return 0
	}
	var a Address
	for i := 0; i < 6; i++ {
		a |= Address(b[i]) << (8 * i)
	}
	return a
}

// Bytes returns the address in little-endian order.
func (a Address) Bytes() [6]byte {
	var b [6]byte
	for i := range b {
		b[i] = byte(a >> (8 * i))
	}
	return b
}

func (a Address) String() string {
	b := a.Bytes()
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", b[5], b[4], b[3], b[2], b[1], b[0])
}

// State is a peer's position in connection setup.
type State int

const (
	NotConnected State = iota
	Connecting
	ScanningServices
	ScanningCharacteristics
	Connected
	SendCompleted
	NotTargetDevice
)

func (s State) String() string {
	switch s {
	case NotConnected:
		return "not-connected"
	case Connecting:
		return "connecting"
	case ScanningServices:
		return "scanning-services"
	case ScanningCharacteristics:
		return "scanning-characteristics"
	case Connected:
		return "connected"
	case SendCompleted:
		return "send-completed"
	case NotTargetDevice:
		return "not-target-device"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Registry maps peer addresses to their state. All methods hold mu for the
// whole read-modify-write.
type Registry struct {
	mu    sync.Mutex
	peers map[Address]State
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{peers: make(map[Address]State)}
}

// TryClaim marks addr as Connecting if it is unknown or NotConnected and
// reports whether the caller now owns it.
func (r *Registry) TryClaim(addr Address) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.peers[addr]; ok && st != NotConnected {
		return false
	}
	r.peers[addr] = Connecting
	return true
}

// SetState records st for addr, adding the peer if it is unknown.
func (r *Registry) SetState(addr Address, st State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[addr] = st
}

// Get returns the state of addr and whether the peer is known.
func (r *Registry) Get(addr Address) (State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.peers[addr]
	return st, ok
}

// Remove forgets addr so it can be claimed again.
func (r *Registry) Remove(addr Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, addr)
}

// Clear forgets every peer. Called at the start of a run.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.peers)
}

// Len returns the number of known peers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

// Snapshot returns a copy of the current peer states.
func (r *Registry) Snapshot() map[Address]State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[Address]State, len(r.peers))
	for a, st := range r.peers {
		out[a] = st
	}
	return out
}
