// Package bgapi encodes commands for, and decodes packets from, a Bluegiga
// BLE112/BLED112 dongle speaking the BGAPI serial protocol.
//
// Every packet is a 4-byte header followed by the payload:
//
//	byte 0: message type (0x00 command/response, 0x80 event) | technology<<3 | length bits 8-10
//	byte 1: length bits 0-7
//	byte 2: class
//	byte 3: method or event id
//
// Multi-byte integers are little-endian.
package bgapi

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	headerLen = 4
	// MaxPayload is the largest payload an 11-bit length can describe.
	MaxPayload = 0x07FF

	typeEvent = 0x80
	techMask  = 0x78
	lenMask   = 0x07
)

// Command and event classes.
const (
	ClassSystem     byte = 0
	ClassConnection byte = 3
	ClassATTClient  byte = 4
	ClassGAP        byte = 6
)

// Packet is one BGAPI message with its header decoded.
type Packet struct {
	Event   bool
	Class   byte
	ID      byte
	Payload []byte
}

// Marshal returns the packet's wire encoding.
func (p Packet) Marshal() ([]byte, error) {
	if len(p.Payload) > MaxPayload {
		return nil, fmt.Errorf("bgapi: payload of %d bytes exceeds %d", len(p.Payload), MaxPayload)
	}
	n := len(p.Payload)
	b0 := byte(n>>8) & lenMask
	if p.Event {
		b0 |= typeEvent
	}
	buf := make([]byte, 0, headerLen+n)
	buf = append(buf, b0, byte(n), p.Class, p.ID)
	buf = append(buf, p.Payload...)
	return buf, nil
}

func (p Packet) String() string {
	kind := "rsp"
	if p.Event {
		kind = "evt"
	}
	return fmt.Sprintf("%s %d/%d (%d bytes)", kind, p.Class, p.ID, len(p.Payload))
}

// Parser reassembles packets from a serial byte stream. Bytes that cannot
// start a BLE packet are skipped. The zero value is ready to use.
type Parser struct {
	buf []byte
}

// Feed appends data to the parser and returns every packet completed by it.
func (p *Parser) Feed(data []byte) []Packet {
	p.buf = append(p.buf, data...)
	var out []Packet
	for {
		// Resynchronise on a plausible header byte.
		for len(p.buf) > 0 && p.buf[0]&techMask != 0 {
			p.buf = p.buf[1:]
		}
		if len(p.buf) < headerLen {
			break
		}
		n := int(p.buf[0]&lenMask)<<8 | int(p.buf[1])
		if len(p.buf) < headerLen+n {
			break
		}
		payload := make([]byte, n)
		copy(payload, p.buf[headerLen:headerLen+n])
		out = append(out, Packet{
			Event:   p.buf[0]&typeEvent != 0,
			Class:   p.buf[2],
			ID:      p.buf[3],
			Payload: payload,
		})
		p.buf = p.buf[headerLen+n:]
	}
	if len(p.buf) == 0 {
		p.buf = nil
	}
	return out
}

// Buffered returns the number of bytes held for an incomplete packet.
func (p *Parser) Buffered() int {
	return len(p.buf)
}

// Reset discards any partial packet.
func (p *Parser) Reset() {
	p.buf = nil
}

var errShort = errors.New("bgapi: truncated payload")

// reader walks a payload, remembering the first short read.
type reader struct {
	b   []byte
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.b) < n {
		r.err = errShort
		return nil
	}
	v := r.b[:n]
	r.b = r.b[n:]
	return v
}

func (r *reader) u8() byte {
	if v := r.take(1); v != nil {
		return v[0]
	}
	return 0
}

func (r *reader) u16() uint16 {
	if v := r.take(2); v != nil {
		return binary.LittleEndian.Uint16(v)
	}
	return 0
}

func (r *reader) addr() [6]byte {
	var a [6]byte
	if v := r.take(6); v != nil {
		copy(a[:], v)
	}
	return a
}

// array reads a uint8-length-prefixed byte array.
func (r *reader) array() []byte {
	n := int(r.u8())
	v := r.take(n)
	if v == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, v)
	return out
}
