package bootproto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"
	"github.com/hashicorp/go-multierror"

	"github.com/peak-linux/pcanflash/pkg/canbus"
	"github.com/peak-linux/pcanflash/pkg/hw"
)

// Module is one discovered module, valid for the current session only.
type Module struct {
	Slot  uint8
	BusID uint32

	// HwID is the 10-bit hardware id from the announce reply.
	HwID uint16
	// Day, Month and Year are the BCD build date bytes.
	Day, Month, Year uint8
	Version          Version

	HwType    uint8
	FlashType uint8
	HwName    string
	FlashName string

	// TransferLen is the number of data bytes per flash data frame.
	// Zero when the module did not report one; the hardware profile
	// default applies then.
	TransferLen uint8
}

// PrintedHwID is the hardware id reduced to the eight bits the reports
// show.
func (m *Module) PrintedHwID() uint8 {
	return uint8(m.HwID)
}

func (m *Module) String() string {
	return fmt.Sprintf("module id %02d (ppcan hw id %d) date %02X.%02X.20%02X bootloader %s hardware %d (%s) flash type %d (%s)",
		m.Slot, m.PrintedHwID(), m.Day, m.Month, m.Year, m.Version,
		m.HwType, m.HwName, m.FlashType, m.FlashName)
}

func parseAnnounce(f canbus.Frame) (*Module, error) {
	if f.Len != 8 {
		return nil, fmt.Errorf("malformed announce reply % X", f.Payload())
	}
	slot := f.Data[2]
	if slot >= MaxModules {
		return nil, fmt.Errorf("announce reply for slot %d out of range", slot)
	}
	return &Module{
		Slot:    slot,
		BusID:   f.ID,
		HwID:    uint16(f.Data[0])<<2 | uint16(f.Data[1])>>6,
		Day:     f.Data[3],
		Month:   f.Data[4],
		Year:    f.Data[5],
		Version: Version(f.Data[6]),
	}, nil
}

// Discover broadcasts one announce frame, collects the per-slot replies
// until the bus goes quiet, and resolves every module's hardware and
// flash type through its status reply or, when the status carries the
// sentinel, the extended configuration exchange. Pairings outside the
// compatibility matrix are reported for every affected module and fail
// discovery.
func Discover(bus canbus.Bus, timeout time.Duration) (map[uint8]*Module, error) {
	if err := bus.Send(canbus.NewFrame(ID, []byte{byte(OpAnnounce)})); err != nil {
		return nil, fmt.Errorf("announce: %w", err)
	}

	found := make(map[uint8]*Module)
	for {
		f, err := bus.Receive(timeout)
		if errors.Is(err, canbus.ErrTimeout) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("announce replies: %w", err)
		}
		m, err := parseAnnounce(f)
		if err != nil {
			return nil, err
		}
		found[m.Slot] = m
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("no modules answered the announce broadcast")
	}

	var errs error
	for slot := uint8(0); slot < MaxModules; slot++ {
		m, ok := found[slot]
		if !ok {
			continue
		}
		st, err := GetStatus(bus, slot, timeout)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if st.NeedsExtendedConfig() {
			cfg, err := getExtendedConfig(bus, slot, timeout)
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("module %d: %w", slot, err))
				continue
			}
			m.HwType = cfg.Hardware.Type
			m.FlashType = cfg.Flash.Type
			m.HwName = cfg.Hardware.Name
			m.FlashName = cfg.Flash.Name
			m.TransferLen = cfg.TransferLen
		} else {
			m.HwType = st.HwType
			m.FlashType = st.FlashType
			m.HwName = hw.HardwareName(st.HwType)
			m.FlashName = hw.FlashName(st.FlashType)
		}
		if !hw.Compatible(m.HwType, m.FlashType) {
			errs = multierror.Append(errs, fmt.Errorf(
				"module %d: flash type %d (%s) does not match hardware %d (%s)",
				slot, m.FlashType, m.FlashName, m.HwType, m.HwName))
			continue
		}
		glog.V(1).Infof("resolved %s", m)
	}
	if errs != nil {
		return nil, errs
	}
	return found, nil
}

// extConfig is the JSON document streamed by the extended configuration
// exchange of modules whose status reply cannot describe them.
type extConfig struct {
	Hardware struct {
		Type uint8  `json:"type"`
		Name string `json:"name"`
	} `json:"hardware"`
	Flash struct {
		Type uint8  `json:"type"`
		Name string `json:"name"`
	} `json:"flash"`
	TransferLen uint8 `json:"transfer_len"`
}

// getExtendedConfig requests and reassembles the NUL-terminated JSON
// configuration document a module streams in sequence-numbered frames.
func getExtendedConfig(bus canbus.Bus, slot uint8, timeout time.Duration) (*extConfig, error) {
	if err := bus.Send(Command(OpConfig, slot)); err != nil {
		return nil, fmt.Errorf("config request: %w", err)
	}

	var raw []byte
	for seq := uint8(0); ; seq++ {
		f, err := bus.Receive(timeout)
		if err != nil {
			return nil, fmt.Errorf("config reply: %w", err)
		}
		if f.Len < 4 || Op(f.Data[0]) != OpConfig || f.Data[1] != slot {
			return nil, fmt.Errorf("malformed config reply % X", f.Payload())
		}
		if f.Data[2] != seq {
			return nil, fmt.Errorf("config reply out of sequence: got %d, expected %d", f.Data[2], seq)
		}
		chunk := f.Payload()[3:]
		if i := bytes.IndexByte(chunk, 0); i >= 0 {
			raw = append(raw, chunk[:i]...)
			break
		}
		raw = append(raw, chunk...)
	}

	var cfg extConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config document: %w", err)
	}
	return &cfg, nil
}
