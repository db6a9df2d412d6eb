package ble

import (
	"context"
	"fmt"
	"sync"

	"github.com/chaz8081/motion-installer/internal/ble/bgapi"
)

// mockPeer is an advertiser the mock radio can hear.
type mockPeer struct {
	addr       [6]byte
	addrType   byte
	hasService bool
	hasTX      bool
	refusals   int // connection attempts answered without the connected flag
}

const mockTXHandle = 31

// mockRadio simulates a dongle in range of a fixed set of peers. Commands
// queue the events the real dongle would produce.
type mockRadio struct {
	mu          sync.Mutex
	peers       []mockPeer
	calls       []string
	writes      [][]byte
	connected   *mockPeer
	closed      bool
	writeResult uint16
	stallAfter  int // stop acknowledging writes after this many; 0 never stalls
	failDetach  error
	failClose   error
	events      chan bgapi.Event
}

func newMockRadio(peers ...mockPeer) *mockRadio {
	return &mockRadio{
		peers:  peers,
		events: make(chan bgapi.Event, 1024),
	}
}

func (m *mockRadio) record(call string) error {
	if m.closed {
		return ErrRadioClosed
	}
	m.calls = append(m.calls, call)
	return nil
}

func (m *mockRadio) push(ev bgapi.Event) {
	m.events <- ev
}

func (m *mockRadio) EndProcedure(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record("end_procedure")
}

func (m *mockRadio) Disconnect(ctx context.Context, conn byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("disconnect"); err != nil {
		return err
	}
	if m.failDetach != nil {
		return m.failDetach
	}
	if m.connected == nil {
		// The dongle rejects disconnecting an idle handle.
		return &bgapi.ResultError{Class: bgapi.ClassConnection, ID: 0, Result: 0x0186}
	}
	m.connected = nil
	m.push(bgapi.Disconnected{Connection: conn, Reason: 0x0216})
	return nil
}

func (m *mockRadio) Discover(ctx context.Context, mode byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("discover"); err != nil {
		return err
	}
	for _, p := range m.peers {
		m.push(bgapi.ScanResponse{RSSI: -50, Sender: p.addr, AddressType: p.addrType})
	}
	return nil
}

func (m *mockRadio) ConnectDirect(ctx context.Context, addr [6]byte, addrType byte, params ConnParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(fmt.Sprintf("connect %x %d/%d/%d/%d", addr, params.MinInterval, params.MaxInterval, params.Timeout, params.Latency)); err != nil {
		return err
	}
	for i := range m.peers {
		p := &m.peers[i]
		if p.addr != addr {
			continue
		}
		if p.refusals > 0 {
			p.refusals--
			m.push(bgapi.ConnectionStatus{Address: addr})
			return nil
		}
		m.connected = p
		m.push(bgapi.ConnectionStatus{Connection: 0, Flags: bgapi.FlagConnected | bgapi.FlagCompleted, Address: addr})
		return nil
	}
	return fmt.Errorf("mock: no peer %x", addr)
}

func (m *mockRadio) ReadByGroupType(ctx context.Context, conn byte, start, end uint16, uuid []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("read_by_group_type"); err != nil {
		return err
	}
	// Generic access service first, as real peripherals report it.
	m.push(bgapi.GroupFound{Connection: conn, Start: 1, End: 11, UUID: []byte{0x00, 0x18}})
	if m.connected != nil && m.connected.hasService {
		m.push(bgapi.GroupFound{Connection: conn, Start: 12, End: 40, UUID: littleEndian(ControlServiceUUID)})
	}
	m.push(bgapi.ProcedureCompleted{Connection: conn})
	return nil
}

func (m *mockRadio) FindInformation(ctx context.Context, conn byte, start, end uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(fmt.Sprintf("find_information %d-%d", start, end)); err != nil {
		return err
	}
	m.push(bgapi.InformationFound{Connection: conn, Handle: 28, UUID: []byte{0x03, 0x28}})
	if m.connected != nil && m.connected.hasTX {
		m.push(bgapi.InformationFound{Connection: conn, Handle: mockTXHandle, UUID: littleEndian(TXCharacteristicUUID)})
	}
	m.push(bgapi.ProcedureCompleted{Connection: conn})
	return nil
}

func (m *mockRadio) AttributeWrite(ctx context.Context, conn byte, handle uint16, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(fmt.Sprintf("write %d", handle)); err != nil {
		return err
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	m.writes = append(m.writes, cp)
	if m.stallAfter > 0 && len(m.writes) > m.stallAfter {
		return nil
	}
	m.push(bgapi.ProcedureCompleted{Connection: conn, Result: m.writeResult, Handle: handle})
	return nil
}

func (m *mockRadio) Events() <-chan bgapi.Event {
	return m.events
}

func (m *mockRadio) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.events)
	}
	return m.failClose
}

func (m *mockRadio) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockRadio) Writes() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.writes))
	copy(out, m.writes)
	return out
}

func (m *mockRadio) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *mockRadio) count(prefix string) int {
	n := 0
	for _, c := range m.Calls() {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}
