// Package driver ships rendered frames to the physical strip. The control
// loop treats a Driver as an opaque write(frame) primitive; the per-LED byte
// layout is already applied by the renderer.
package driver

// Driver writes finished output frames to the strip hardware.
type Driver interface {
	Write(frame []byte) error
	Close() error
}

// Null discards frames. Used in tests and when no output device is
// configured.
type Null struct {
	// Frames counts writes so tests can assert render cadence.
	Frames int
	// Last keeps the most recent frame.
	Last []byte
}

func (n *Null) Write(frame []byte) error {
	n.Frames++
	n.Last = append(n.Last[:0], frame...)
	return nil
}

func (n *Null) Close() error { return nil }
