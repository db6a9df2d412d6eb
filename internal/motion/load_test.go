package motion

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testMfx = `<?xml version="1.0" encoding="utf-8"?>
<mfx>
  <motion id="3">
    <name>bow</name>
    <extra>
      <function>1</function>
      <param id="1">9</param>
      <param id="0">4</param>
    </extra>
    <frameNum>2</frameNum>
    <frame id="1">
      <time>200</time>
      <joint id="1">-2</joint>
      <joint id="0">2</joint>
    </frame>
    <frame id="0">
      <time>100</time>
      <joint id="0">1</joint>
      <joint id="1">-1</joint>
    </frame>
  </motion>
</mfx>`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadMfx(t *testing.T) {
	programs, err := LoadFile(writeFile(t, "bow.mfx", testMfx))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if len(programs) != 1 {
		t.Fatalf("got %d programs, want 1", len(programs))
	}

	cmd, err := Encode(programs[0])
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	want := "03" + "bow" + strings.Repeat(" ", 17) + "010409" + "02" +
		"0064" + "0001" + "ffff" + strings.Repeat("0000", MaxJoints-2) +
		"00c8" + "0002" + "fffe" + strings.Repeat("0000", MaxJoints-2)
	if string(cmd.Wire) != want {
		t.Errorf("wire =\n  got  %q\n  want %q", cmd.Wire, want)
	}
}

func TestMfxNonNumeric(t *testing.T) {
	content := strings.Replace(testMfx, "<time>200</time>", "<time>fast</time>", 1)
	_, err := LoadFile(writeFile(t, "bad.mfx", content))
	if !errors.Is(err, ErrNotNumeric) {
		t.Fatalf("LoadFile() error = %v, want ErrNotNumeric", err)
	}
	var encErr *EncodeError
	if !errors.As(err, &encErr) || encErr.Field != "frame[0].time" {
		t.Errorf("error = %#v, want field frame[0].time", err)
	}
}

func TestMfxFrameNumMismatch(t *testing.T) {
	content := strings.Replace(testMfx, "<frameNum>2</frameNum>", "<frameNum>3</frameNum>", 1)
	_, err := LoadFile(writeFile(t, "bad.mfx", content))
	if !errors.Is(err, ErrOutOfRange) {
		t.Errorf("LoadFile() error = %v, want ErrOutOfRange", err)
	}
}

func TestMfxMultipleMotions(t *testing.T) {
	content := strings.Replace(testMfx, "</mfx>", `<motion id="4"><name>b</name>
<extra><function>0</function><param id="0">0</param><param id="1">0</param></extra>
<frameNum>0</frameNum></motion></mfx>`, 1)
	programs, err := LoadFile(writeFile(t, "two.mfx", content))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if len(programs) != 2 || programs[1].Slot != 4 {
		t.Errorf("programs = %+v, want two with second slot 4", programs)
	}
}

func TestMfxKeepsGoodMotions(t *testing.T) {
	content := strings.Replace(testMfx, "</mfx>", `<motion id="4"><name>b</name>
<extra><function>x</function><param id="0">0</param><param id="1">0</param></extra>
<frameNum>0</frameNum></motion></mfx>`, 1)
	programs, err := LoadFile(writeFile(t, "mixed.mfx", content))
	if !errors.Is(err, ErrNotNumeric) {
		t.Errorf("LoadFile() error = %v, want ErrNotNumeric", err)
	}
	if len(programs) != 1 || programs[0].Name != "bow" {
		t.Errorf("programs = %+v, want only bow", programs)
	}
}

func TestLoadJSONJointMapping(t *testing.T) {
	content := `{
  "slot": 10,
  "name": "walk",
  "codes": [],
  "frames": [
    {
      "transition_time_ms": 300,
      "outputs": [
        {"device": "left_shoulder_pitch", "value": 100},
        {"device": "right_shoulder_pitch", "value": -100},
        {"device": "right_foot_roll", "value": 7},
        {"device": "tail", "value": 55}
      ]
    }
  ]
}`
	programs, err := LoadFile(writeFile(t, "walk.json", content))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	cmd, err := Encode(programs[0])
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if cmd.Len() != HeaderLen+FrameLen {
		t.Fatalf("Len() = %d, want %d", cmd.Len(), HeaderLen+FrameLen)
	}

	frame := string(cmd.Wire[HeaderLen:])
	joint := func(slot int) string { return frame[4+slot*4 : 8+slot*4] }

	if frame[:4] != "012c" {
		t.Errorf("time = %q, want 012c", frame[:4])
	}
	if joint(0) != "0064" {
		t.Errorf("slot 0 = %q, want 0064", joint(0))
	}
	if joint(12) != "ff9c" {
		t.Errorf("slot 12 = %q, want ff9c", joint(12))
	}
	if joint(20) != "0007" {
		t.Errorf("slot 20 = %q, want 0007", joint(20))
	}
	for _, slot := range []int{9, 10, 11, 21, 22, 23} {
		if joint(slot) != "0000" {
			t.Errorf("unmapped slot %d = %q, want 0000", slot, joint(slot))
		}
	}
	if got := string(cmd.Wire[26:30]); got != "0001" {
		t.Errorf("params+frameCount = %q, want 0001", got)
	}
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.mfx"))
	var accessErr *FileAccessError
	if !errors.As(err, &accessErr) {
		t.Errorf("missing file error = %T %v, want *FileAccessError", err, err)
	}

	_, err = LoadFile(writeFile(t, "broken.json", "{not json"))
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Errorf("broken JSON error = %T %v, want *ParseError", err, err)
	}

	_, err = LoadFile(writeFile(t, "motion.txt", "hello"))
	if !errors.As(err, &parseErr) {
		t.Errorf("unknown extension error = %T %v, want *ParseError", err, err)
	}
}

func TestSlotJoint(t *testing.T) {
	mapped := 0
	for slot := 0; slot < MaxJoints; slot++ {
		if _, ok := SlotJoint(slot); ok {
			mapped++
		}
	}
	if mapped != CanonicalJoints {
		t.Errorf("mapped slots = %d, want %d", mapped, CanonicalJoints)
	}
	if n, ok := SlotJoint(12); !ok || n != 9 {
		t.Errorf("SlotJoint(12) = %d, %v, want 9, true", n, ok)
	}
}
