package transfer

import (
	"errors"
	"fmt"
	"time"

	"github.com/chaz8081/motion-installer/internal/motion"
)

// Marker precedes every wire command on the link.
const Marker = "#IN"

// GroupLen is the size of one body group; one group carries one frame.
const GroupLen = motion.FrameLen

// BLEChunkLen is the largest attribute write the robot accepts.
const BLEChunkLen = 20

var ErrFraming = errors.New("transfer: wire command is not a header plus whole frame groups")

// Frames is a wire command split for transmission.
type Frames struct {
	Header []byte
	Groups [][]byte
}

// Plan splits wire into its 30-byte header and 100-byte groups.
func Plan(wire []byte) (Frames, error) {
	if len(wire) < motion.HeaderLen {
		return Frames{}, fmt.Errorf("%w: %d bytes, header needs %d", ErrFraming, len(wire), motion.HeaderLen)
	}
	body := wire[motion.HeaderLen:]
	if len(body)%GroupLen != 0 {
		return Frames{}, fmt.Errorf("%w: body of %d bytes", ErrFraming, len(body))
	}
	f := Frames{Header: wire[:motion.HeaderLen]}
	for off := 0; off < len(body); off += GroupLen {
		f.Groups = append(f.Groups, body[off:off+GroupLen])
	}
	return f, nil
}

// Chunk splits b into pieces of at most size bytes. Returns nil for empty
// input or a non-positive size.
func Chunk(b []byte, size int) [][]byte {
	if len(b) == 0 || size <= 0 {
		return nil
	}
	var chunks [][]byte
	for len(b) > 0 {
		n := min(size, len(b))
		chunks = append(chunks, b[:n])
		b = b[n:]
	}
	return chunks
}

// Pacing holds the fixed delays the firmware needs between writes.
type Pacing struct {
	WriteDelay   time.Duration `yaml:"write_delay"`   // after every write
	HeaderPause  time.Duration `yaml:"header_pause"`  // after the header
	GroupPause   time.Duration `yaml:"group_pause"`   // after each 100-byte group
	ProgramPause time.Duration `yaml:"program_pause"` // between programs
	FinishPause  time.Duration `yaml:"finish_pause"`  // before reporting finished
	SettleDelay  time.Duration `yaml:"settle_delay"`  // after connecting, before the first write
}

// BLEPacing returns the delays used over the BLE dongle.
func BLEPacing() Pacing {
	return Pacing{
		WriteDelay:   10 * time.Millisecond,
		HeaderPause:  50 * time.Millisecond,
		GroupPause:   50 * time.Millisecond,
		ProgramPause: 500 * time.Millisecond,
		SettleDelay:  100 * time.Millisecond,
	}
}

// WiredPacing returns the delays used over a direct serial link.
func WiredPacing() Pacing {
	return Pacing{
		WriteDelay:   10 * time.Millisecond,
		HeaderPause:  50 * time.Millisecond,
		GroupPause:   20 * time.Millisecond,
		ProgramPause: 200 * time.Millisecond,
		FinishPause:  100 * time.Millisecond,
	}
}

// Teardown bounds how long a session waits for its link to go idle when
// disconnecting.
type Teardown struct {
	Retries  int           `yaml:"retries"`
	Interval time.Duration `yaml:"interval"`
}

// DefaultTeardown waits up to 50 polls of 1ms for a link to close.
func DefaultTeardown() Teardown {
	return Teardown{Retries: 50, Interval: time.Millisecond}
}

// Bound returns the total wait budget.
func (t Teardown) Bound() time.Duration {
	if t.Retries <= 0 || t.Interval <= 0 {
		return 0
	}
	return time.Duration(t.Retries) * t.Interval
}
