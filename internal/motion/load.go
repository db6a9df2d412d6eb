package motion

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadFile reads a motion file and converts it into programs. The file
// format is chosen by extension: .mfx/.xml or .json. For an .mfx file the
// motions that convert are returned alongside the errors of those that
// don't.
func LoadFile(path string) ([]Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &FileAccessError{Path: path, Err: err}
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".mfx", ".xml":
		doc, err := DecodeMfx(f)
		if err != nil {
			return nil, &ParseError{Path: path, Err: err}
		}
		return doc.Programs()
	case ".json":
		m, err := DecodeJSON(f)
		if err != nil {
			return nil, &ParseError{Path: path, Err: err}
		}
		p, err := m.Program()
		if err != nil {
			return nil, err
		}
		return []Program{p}, nil
	default:
		return nil, &ParseError{Path: path, Err: fmt.Errorf("unsupported extension %q (want .mfx or .json)", filepath.Ext(path))}
	}
}
