package canbus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Frame is a classical CAN frame: an 11-bit identifier and up to eight
// payload bytes. One logical bootloader command or one flash data chunk
// fits in a single frame.
type Frame struct {
	ID   uint32
	Len  uint8
	Data [8]byte
}

// Flag bits and masks of the SocketCAN can_id field.
const (
	maskSFF = 0x7FF
	flagEFF = 0x80000000
	flagRTR = 0x40000000
)

// NewFrame builds a standard data frame. Payloads longer than eight
// bytes are a programming error.
func NewFrame(id uint32, data []byte) Frame {
	if len(data) > 8 {
		panic(fmt.Sprintf("canbus: payload of %d bytes", len(data)))
	}
	f := Frame{ID: id & maskSFF, Len: uint8(len(data))}
	copy(f.Data[:], data)
	return f
}

// Payload returns the valid part of the data field.
func (f Frame) Payload() []byte {
	return f.Data[:f.Len]
}

func (f Frame) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%03X [%d]", f.ID, f.Len)
	for _, d := range f.Payload() {
		fmt.Fprintf(&b, " %02X", d)
	}
	return b.String()
}

// wireSize is the size of the Linux can_frame structure.
const wireSize = 16

// marshal encodes the frame into the SocketCAN can_frame layout:
// little-endian can_id at 0..3, dlc at 4, data at 8..15.
func (f Frame) marshal() []byte {
	buf := make([]byte, wireSize)
	binary.LittleEndian.PutUint32(buf[0:4], f.ID&maskSFF)
	buf[4] = f.Len
	copy(buf[8:], f.Data[:])
	return buf
}

func unmarshalFrame(buf []byte) (Frame, error) {
	if len(buf) < wireSize {
		return Frame{}, fmt.Errorf("canbus: short read of %d bytes", len(buf))
	}
	f := Frame{
		ID:  binary.LittleEndian.Uint32(buf[0:4]) & maskSFF,
		Len: buf[4],
	}
	if f.Len > 8 {
		return Frame{}, fmt.Errorf("canbus: invalid dlc %d", f.Len)
	}
	copy(f.Data[:], buf[8:16])
	return f, nil
}

// Bus is the transport seam the protocol layers talk through. Socket
// implements it against SocketCAN; tests substitute a scripted fake.
type Bus interface {
	Send(Frame) error
	// Receive blocks for the next filtered frame or until the timeout
	// elapses, in which case it returns ErrTimeout.
	Receive(timeout time.Duration) (Frame, error)
}

// ErrTimeout is returned by Receive when no frame arrived in time.
var ErrTimeout = errors.New("canbus: receive timeout")
