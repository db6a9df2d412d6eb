// Package ble uploads motion programs to robots over Bluetooth Low Energy.
// A Session finds a robot through a Radio, connects, locates the robot's
// TX characteristic and streams the programs to it with acknowledged
// writes.
package ble

import (
	"context"
	"errors"
	"slices"

	"github.com/chaz8081/motion-installer/internal/ble/bgapi"
)

// Robot UUIDs, big-endian as written. Radios report UUIDs little-endian.
var (
	ControlServiceUUID   = [16]byte{0xE1, 0xF4, 0x04, 0x69, 0xCF, 0xE1, 0x43, 0xC1, 0x83, 0x8D, 0xDD, 0xBC, 0x9D, 0xAF, 0xDD, 0xE6}
	TXCharacteristicUUID = [16]byte{0xF9, 0x0E, 0x9C, 0xFE, 0x7E, 0x05, 0x44, 0xA5, 0x9D, 0x75, 0xF1, 0x36, 0x44, 0xD6, 0xF6, 0x45}
)

// PrimaryServiceType is the GATT primary service declaration (0x2800),
// little-endian.
var PrimaryServiceType = []byte{0x00, 0x28}

// ErrRadioClosed is returned by commands issued after the radio closed.
var ErrRadioClosed = errors.New("ble: radio closed")

// ConnParams are the link parameters requested when connecting.
type ConnParams struct {
	MinInterval uint16 // 1.25 ms units
	MaxInterval uint16 // 1.25 ms units
	Timeout     uint16 // 10 ms units
	Latency     uint16
}

// DefaultConnParams returns the parameters the robot firmware expects.
func DefaultConnParams() ConnParams {
	return ConnParams{MinInterval: 60, MaxInterval: 76, Timeout: 100, Latency: 0}
}

// Radio is a BLE central with the BGAPI command set. Every command blocks
// until the radio answers it and at most one command is outstanding at a
// time. A rejected command returns a *bgapi.ResultError.
//
// Asynchronous results arrive on Events, which is closed when the radio
// closes. Only one goroutine reads Events at a time.
type Radio interface {
	EndProcedure(ctx context.Context) error
	Disconnect(ctx context.Context, conn byte) error
	Discover(ctx context.Context, mode byte) error
	ConnectDirect(ctx context.Context, addr [6]byte, addrType byte, params ConnParams) error
	ReadByGroupType(ctx context.Context, conn byte, start, end uint16, uuid []byte) error
	FindInformation(ctx context.Context, conn byte, start, end uint16) error
	AttributeWrite(ctx context.Context, conn byte, handle uint16, data []byte) error
	Events() <-chan bgapi.Event
	Close() error
}

// littleEndian returns u byte-reversed, as radios report it.
func littleEndian(u [16]byte) []byte {
	b := slices.Clone(u[:])
	slices.Reverse(b)
	return b
}

func isResultError(err error) bool {
	var re *bgapi.ResultError
	return errors.As(err, &re)
}
