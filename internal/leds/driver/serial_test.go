package driver

import (
	"bytes"
	"testing"
)

func TestEncodeFrame(t *testing.T) {
	out := encodeFrame(nil, []byte{1, 2, 3})
	want := []byte{0xA5, 0x5A, 0x03, 0x00, 1, 2, 3}
	if !bytes.Equal(out, want) {
		t.Errorf("encodeFrame = %v, want %v", out, want)
	}
}

func TestEncodeFrameEmpty(t *testing.T) {
	out := encodeFrame(nil, nil)
	want := []byte{0xA5, 0x5A, 0x00, 0x00}
	if !bytes.Equal(out, want) {
		t.Errorf("encodeFrame(empty) = %v, want %v", out, want)
	}
}

func TestNullDriverRecords(t *testing.T) {
	var n Null
	if err := n.Write([]byte{9, 8}); err != nil {
		t.Fatal(err)
	}
	if err := n.Write([]byte{7}); err != nil {
		t.Fatal(err)
	}
	if n.Frames != 2 {
		t.Errorf("Frames = %d, want 2", n.Frames)
	}
	if !bytes.Equal(n.Last, []byte{7}) {
		t.Errorf("Last = %v, want [7]", n.Last)
	}
}
