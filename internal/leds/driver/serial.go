package driver

import (
	"encoding/binary"
	"fmt"
	"io"

	"go.bug.st/serial"
)

// Serial frame layout: two magic bytes, a little-endian payload length,
// then the raw output frame. The bridge microcontroller latches the strip
// on the end of each frame.
const (
	frameMagic0 = 0xA5
	frameMagic1 = 0x5A
	headerSize  = 4
)

// SerialDriver sends frames to a UART-attached strip bridge.
type SerialDriver struct {
	port io.WriteCloser
	buf  []byte
}

// OpenSerial opens the bridge device, e.g. /dev/ttyACM0 at 921600 baud.
func OpenSerial(device string, baud int) (*SerialDriver, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", device, err)
	}
	return &SerialDriver{port: port}, nil
}

func (d *SerialDriver) Write(frame []byte) error {
	if len(frame) > 0xFFFF {
		return fmt.Errorf("frame too large: %d bytes", len(frame))
	}
	d.buf = encodeFrame(d.buf[:0], frame)
	if _, err := d.port.Write(d.buf); err != nil {
		return fmt.Errorf("serial write: %w", err)
	}
	return nil
}

func (d *SerialDriver) Close() error {
	return d.port.Close()
}

// encodeFrame appends the wire encoding of frame to dst.
func encodeFrame(dst, frame []byte) []byte {
	var hdr [headerSize]byte
	hdr[0] = frameMagic0
	hdr[1] = frameMagic1
	binary.LittleEndian.PutUint16(hdr[2:], uint16(len(frame)))
	dst = append(dst, hdr[:]...)
	return append(dst, frame...)
}
