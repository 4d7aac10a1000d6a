//go:build linux

package canbus

import (
	"fmt"
	"time"

	"github.com/golang/glog"
	"golang.org/x/sys/unix"
)

// MinTxQueue is the minimum interface transmit queue length, in frames.
// The write phase issues bursts of data frames without per-frame
// acknowledgement; a shallow queue drops frames the bootloader never
// sees, so a short queue refuses the session up front.
const MinTxQueue = 500

// Socket is a CAN_RAW socket bound to a single network interface with a
// receive filter reduced to one identifier.
type Socket struct {
	fd    int
	name  string
	trace *Trace
}

// Open creates a raw CAN socket on the named interface, filtered to id.
// It fails when the interface transmit queue holds fewer than MinTxQueue
// frames.
func Open(ifname string, id uint32) (*Socket, error) {
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	s := &Socket{fd: fd, name: ifname}

	filter := []unix.CanFilter{{
		Id:   id & maskSFF,
		Mask: maskSFF | flagEFF | flagRTR,
	}}
	if err := unix.SetsockoptCanRawFilter(fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FILTER, filter); err != nil {
		s.Close()
		return nil, fmt.Errorf("set receive filter: %w", err)
	}

	ifr, err := unix.NewIfreq(ifname)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("interface name %q: %w", ifname, err)
	}
	if err := unix.IoctlIfreq(fd, unix.SIOCGIFTXQLEN, ifr); err != nil {
		s.Close()
		return nil, fmt.Errorf("SIOCGIFTXQLEN: %w", err)
	}
	if qlen := ifr.Uint32(); qlen < MinTxQueue {
		s.Close()
		return nil, fmt.Errorf("tx queue len %d of %s is too small, need at least %d", qlen, ifname, MinTxQueue)
	}
	if err := unix.IoctlIfreq(fd, unix.SIOCGIFINDEX, ifr); err != nil {
		s.Close()
		return nil, fmt.Errorf("SIOCGIFINDEX: %w", err)
	}

	sa := &unix.SockaddrCAN{Ifindex: int(int32(ifr.Uint32()))}
	if err := unix.Bind(fd, sa); err != nil {
		s.Close()
		return nil, fmt.Errorf("bind %s: %w", ifname, err)
	}
	glog.V(1).Infof("opened %s, filter id %03X", ifname, id)
	return s, nil
}

// SetTrace attaches a frame transcript. Pass nil to detach.
func (s *Socket) SetTrace(t *Trace) {
	s.trace = t
}

func (s *Socket) Send(f Frame) error {
	if _, err := unix.Write(s.fd, f.marshal()); err != nil {
		return fmt.Errorf("send on %s: %w", s.name, err)
	}
	s.trace.record("tx", f)
	return nil
}

func (s *Socket) Receive(timeout time.Duration) (Frame, error) {
	pfd := []unix.PollFd{{Fd: int32(s.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(pfd, int(timeout.Milliseconds()))
	if err != nil {
		return Frame{}, fmt.Errorf("poll on %s: %w", s.name, err)
	}
	if n == 0 {
		return Frame{}, ErrTimeout
	}
	buf := make([]byte, wireSize)
	if _, err := unix.Read(s.fd, buf); err != nil {
		return Frame{}, fmt.Errorf("read on %s: %w", s.name, err)
	}
	f, err := unmarshalFrame(buf)
	if err != nil {
		return Frame{}, err
	}
	s.trace.record("rx", f)
	return f, nil
}

func (s *Socket) Close() error {
	if s.fd < 0 {
		return nil
	}
	err := unix.Close(s.fd)
	s.fd = -1
	return err
}
