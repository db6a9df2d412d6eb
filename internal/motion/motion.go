// Package motion holds the motion program model and the encoder that turns a
// program into the ASCII-hex wire command understood by the robot firmware.
package motion

// Wire layout widths, in ASCII characters.
const (
	NameWidth       = 20
	HeaderLen       = 30  // slot + name + function + 2 params + frame count
	FrameLen        = 100 // time + MaxJoints joint values
	MaxJoints       = 24
	ParamCount      = 2
	CanonicalJoints = 18
)

// Program is one authored motion slot, already parsed from its file.
type Program struct {
	Slot   int
	Name   string
	Config Config
	Frames []Frame
}

// Config is the motion's "extra" block: a function code and its parameters.
type Config struct {
	Function int
	Params   []Param
}

// Param is one id/value config parameter.
type Param struct {
	ID    int
	Value int
}

// Frame is one timed keyframe.
type Frame struct {
	ID     int
	Time   int // milliseconds
	Joints []Joint
}

// Joint is one id/value joint target.
type Joint struct {
	ID    int
	Value int
}

// Command is an encoded program ready to be streamed. It is never modified
// after Encode returns it.
type Command struct {
	Slot    int
	Name    string
	Wire    []byte
	Display string
}

// Len returns the wire command length in bytes.
func (c Command) Len() int { return len(c.Wire) }

// JointNames returns the physical joints in canonical order. The index of a
// name is its joint number on the robot.
func JointNames() []string {
	return []string{
		"left_shoulder_pitch",
		"left_thigh_yaw",
		"left_shoulder_roll",
		"left_elbow_roll",
		"left_thigh_roll",
		"left_thigh_pitch",
		"left_knee_pitch",
		"left_foot_pitch",
		"left_foot_roll",
		"right_shoulder_pitch",
		"right_thigh_yaw",
		"right_shoulder_roll",
		"right_elbow_roll",
		"right_thigh_roll",
		"right_thigh_pitch",
		"right_knee_pitch",
		"right_foot_pitch",
		"right_foot_roll",
	}
}

// jointSlots maps each of the MaxJoints wire slots to a canonical joint
// number, or -1 for slots with no physical joint.
var jointSlots = [MaxJoints]int{0, 1, 2, 3, 4, 5, 6, 7, 8, -1, -1, -1, 9, 10, 11, 12, 13, 14, 15, 16, 17, -1, -1, -1}

// SlotJoint returns the canonical joint number for a wire slot.
func SlotJoint(slot int) (int, bool) {
	if slot < 0 || slot >= MaxJoints || jointSlots[slot] < 0 {
		return 0, false
	}
	return jointSlots[slot], true
}
