package motion

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// MfxDocument is the XML-flavored motion file. Values are kept as the
// authored text; conversion to numbers happens in MfxMotion.Program.
type MfxDocument struct {
	XMLName xml.Name    `xml:"mfx"`
	Motions []MfxMotion `xml:"motion"`
}

type MfxMotion struct {
	ID       string     `xml:"id,attr"`
	Name     string     `xml:"name"`
	Extra    MfxExtra   `xml:"extra"`
	FrameNum string     `xml:"frameNum"`
	Frames   []MfxFrame `xml:"frame"`
}

type MfxExtra struct {
	Function string     `xml:"function"`
	Params   []MfxValue `xml:"param"`
}

type MfxFrame struct {
	ID     string     `xml:"id,attr"`
	Time   string     `xml:"time"`
	Joints []MfxValue `xml:"joint"`
}

// MfxValue is an id attribute with a text value, used for params and joints.
type MfxValue struct {
	ID    string `xml:"id,attr"`
	Value string `xml:",chardata"`
}

// DecodeMfx parses an XML motion file.
func DecodeMfx(r io.Reader) (*MfxDocument, error) {
	var doc MfxDocument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Programs converts every motion in the document. Motions that fail to
// convert are left out and their errors joined into the returned error.
func (d *MfxDocument) Programs() ([]Program, error) {
	programs := make([]Program, 0, len(d.Motions))
	var errs []error
	for _, m := range d.Motions {
		p, err := m.Program()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		programs = append(programs, p)
	}
	return programs, errors.Join(errs...)
}

// Program converts the authored text into a Program. Non-numeric text and a
// frameNum that disagrees with the frame list are reported as EncodeError.
func (m MfxMotion) Program() (Program, error) {
	var conv converter
	p := Program{
		Slot: conv.int("id", m.ID),
		Name: strings.TrimSpace(m.Name),
		Config: Config{
			Function: conv.int("extra.function", m.Extra.Function),
		},
	}
	for i, prm := range m.Extra.Params {
		p.Config.Params = append(p.Config.Params, Param{
			ID:    conv.int(fmt.Sprintf("extra.param[%d].id", i), prm.ID),
			Value: conv.int(fmt.Sprintf("extra.param[%d]", i), prm.Value),
		})
	}
	frameNum := conv.int("frameNum", m.FrameNum)
	for i, f := range m.Frames {
		frame := Frame{
			ID:   conv.int(fmt.Sprintf("frame[%d].id", i), f.ID),
			Time: conv.int(fmt.Sprintf("frame[%d].time", i), f.Time),
		}
		for k, j := range f.Joints {
			frame.Joints = append(frame.Joints, Joint{
				ID:    conv.int(fmt.Sprintf("frame[%d].joint[%d].id", i, k), j.ID),
				Value: conv.int(fmt.Sprintf("frame[%d].joint[%d]", i, k), j.Value),
			})
		}
		p.Frames = append(p.Frames, frame)
	}
	if conv.err != nil {
		conv.err.Program = p.Name
		return Program{}, conv.err
	}
	if frameNum != len(p.Frames) {
		return Program{}, &EncodeError{
			Program: p.Name,
			Field:   "frameNum",
			Err:     fmt.Errorf("%w: declares %d frames, file has %d", ErrOutOfRange, frameNum, len(p.Frames)),
		}
	}
	return p, nil
}

// converter records the first conversion failure so a motion can be
// converted in one pass.
type converter struct {
	err *EncodeError
}

func (c *converter) int(field, text string) int {
	if c.err != nil {
		return 0
	}
	v, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		c.err = &EncodeError{Field: field, Err: fmt.Errorf("%w: %q", ErrNotNumeric, text)}
		return 0
	}
	return v
}
