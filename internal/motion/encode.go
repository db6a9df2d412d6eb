package motion

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Encode converts a program into its wire command. Every frame fills one
// full group of MaxJoints slots. It is pure and
// deterministic: frames, config params and joints are emitted in ascending
// id order regardless of the order they were authored in, and p itself is
// left untouched.
func Encode(p Program) (Command, error) {
	fail := func(field string, err error) (Command, error) {
		return Command{}, &EncodeError{Program: p.Name, Field: field, Err: err}
	}

	if err := checkByte(p.Slot); err != nil {
		return fail("slot", err)
	}
	if !validName(p.Name) {
		return fail("name", ErrName)
	}
	if len(p.Config.Params) != ParamCount {
		return fail("config.params", fmt.Errorf("%w (got %d)", ErrParamCount, len(p.Config.Params)))
	}
	if err := checkByte(p.Config.Function); err != nil {
		return fail("config.function", err)
	}
	params := slices.Clone(p.Config.Params)
	slices.SortStableFunc(params, func(a, b Param) int { return a.ID - b.ID })
	for i, prm := range params {
		if err := checkByte(prm.Value); err != nil {
			return fail(fmt.Sprintf("config.params[id=%d]", params[i].ID), err)
		}
	}
	if err := checkByte(len(p.Frames)); err != nil {
		return fail("frames", err)
	}

	frames := slices.Clone(p.Frames)
	slices.SortStableFunc(frames, func(a, b Frame) int { return a.ID - b.ID })

	var wire, display strings.Builder
	wire.Grow(HeaderLen + len(frames)*FrameLen)

	fmt.Fprintf(&wire, "%02x%-20s%02x%02x%02x%02x",
		p.Slot, p.Name, p.Config.Function, params[0].Value, params[1].Value, len(frames))
	fmt.Fprintf(&display, "[slotNum : %02x] [name : %-20s] [config : %02x%02x%02x] [frameNum : %02x]",
		p.Slot, p.Name, p.Config.Function, params[0].Value, params[1].Value, len(frames))

	for _, f := range frames {
		field := fmt.Sprintf("frames[id=%d]", f.ID)
		if f.Time < 0 || f.Time > 0xffff {
			return fail(field+".time", ErrOutOfRange)
		}
		if len(f.Joints) > MaxJoints {
			return fail(field+".joints", fmt.Errorf("%w: %d joints, at most %d", ErrOutOfRange, len(f.Joints), MaxJoints))
		}
		for _, j := range f.Joints {
			if j.Value < -0x8000 || j.Value > 0x7fff {
				return fail(fmt.Sprintf("%s.joints[id=%d]", field, j.ID), ErrOutOfRange)
			}
		}

		fmt.Fprintf(&wire, "%04x", f.Time)
		fmt.Fprintf(&display, " [frame %d : %04x |", f.ID, f.Time)
		for _, v := range frameSlots(f.Joints) {
			fmt.Fprintf(&wire, "%04x", uint16(int16(v)))
			fmt.Fprintf(&display, " %04x", uint16(int16(v)))
		}
		display.WriteString("]")
	}

	return Command{
		Slot:    p.Slot,
		Name:    p.Name,
		Wire:    []byte(wire.String()),
		Display: display.String(),
	}, nil
}

// frameSlots lays a frame's joints out over the MaxJoints wire slots,
// sorted by id. A frame with one value per physical joint is spread
// through the slot table, leaving unmapped slots zero; any other frame
// fills the leading slots and the rest are zero.
func frameSlots(joints []Joint) [MaxJoints]int {
	sorted := slices.Clone(joints)
	slices.SortStableFunc(sorted, func(a, b Joint) int { return a.ID - b.ID })

	var slots [MaxJoints]int
	if len(sorted) == CanonicalJoints {
		for slot, n := range jointSlots {
			if n >= 0 {
				slots[slot] = sorted[n].Value
			}
		}
		return slots
	}
	for i, j := range sorted {
		slots[i] = j.Value
	}
	return slots
}

// EncodeAll encodes every program. A program that fails is left out and
// its error joined into the returned error, so the caller still gets every
// program that did encode.
func EncodeAll(programs []Program) ([]Command, error) {
	cmds := make([]Command, 0, len(programs))
	var errs []error
	for _, p := range programs {
		cmd, err := Encode(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		cmds = append(cmds, cmd)
	}
	return cmds, errors.Join(errs...)
}

func checkByte(v int) error {
	if v < 0 || v > 0xff {
		return fmt.Errorf("%w: %d not in 0..255", ErrOutOfRange, v)
	}
	return nil
}

func validName(name string) bool {
	if len(name) > NameWidth {
		return false
	}
	for i := 0; i < len(name); i++ {
		if name[i] < 0x20 || name[i] > 0x7e {
			return false
		}
	}
	return true
}
