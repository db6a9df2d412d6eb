package motion

import (
	"encoding/json"
	"io"
)

// JSONMotion is the JSON-flavored motion file.
type JSONMotion struct {
	Slot   int               `json:"slot"`
	Name   string            `json:"name"`
	Codes  []json.RawMessage `json:"codes"`
	Frames []JSONFrame       `json:"frames"`
}

type JSONFrame struct {
	TransitionTimeMS int          `json:"transition_time_ms"`
	Outputs          []JSONOutput `json:"outputs"`
}

// JSONOutput is one named joint target; Device is a name from JointNames.
type JSONOutput struct {
	Device string `json:"device"`
	Value  int    `json:"value"`
}

// DecodeJSON parses a JSON motion file.
func DecodeJSON(r io.Reader) (*JSONMotion, error) {
	var m JSONMotion
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Program maps the named outputs onto the wire joint slots. Slots without
// a physical joint, and joints the frame does not mention, are zero; outputs
// naming an unknown device are ignored. The JSON format carries no config
// block, so function and params are zero.
func (m *JSONMotion) Program() (Program, error) {
	names := JointNames()
	p := Program{
		Slot: m.Slot,
		Name: m.Name,
		Config: Config{
			Params: []Param{{ID: 0}, {ID: 1}},
		},
	}
	for i, f := range m.Frames {
		frame := Frame{ID: i, Time: f.TransitionTimeMS}
		for slot := 0; slot < MaxJoints; slot++ {
			j := Joint{ID: slot}
			if n, ok := SlotJoint(slot); ok {
				for _, out := range f.Outputs {
					if out.Device == names[n] {
						j.Value = out.Value
						break
					}
				}
			}
			frame.Joints = append(frame.Joints, j)
		}
		p.Frames = append(p.Frames, frame)
	}
	return p, nil
}
