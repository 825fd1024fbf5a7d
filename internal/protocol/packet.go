// Package protocol decodes the BGB link-cable protocol: the fixed
// 8-byte frames two emulators exchange over TCP to emulate a serial
// link cable.
//
// Frame layout (multi-byte fields little-endian):
//
//	byte 0     command
//	byte 1     b2
//	byte 2     b3
//	byte 3     b4
//	bytes 4-7  i1 (uint32)
//
// Decoding is observational only.  Nothing in this package alters or
// drops bytes; a decoded Packet always carries the original frame.
package protocol

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// FrameSize is the length of every protocol frame on the wire.
const FrameSize = 8

// ── Commands ─────────────────────────────────────────────────────────

// Command is the first byte of a frame.
type Command uint8

const (
	CmdVersion        Command = 1
	CmdJoypad         Command = 101
	CmdSync1          Command = 104
	CmdSync2          Command = 105
	CmdSync3          Command = 106
	CmdStatus         Command = 108
	CmdWantDisconnect Command = 109
)

// commandNames must stay byte-for-byte compatible with existing
// captures.
var commandNames = map[Command]string{
	CmdVersion:        "VERSION",
	CmdJoypad:         "JOYPAD",
	CmdSync1:          "SYNC1",
	CmdSync2:          "SYNC2",
	CmdSync3:          "SYNC3",
	CmdStatus:         "STATUS",
	CmdWantDisconnect: "WANTDISCONNECT",
}

// String returns the symbolic name, or UNKNOWN(n) for values outside
// the command table.
func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(c))
}

// Known reports whether c is in the command table.
func (c Command) Known() bool {
	_, ok := commandNames[c]
	return ok
}

// ── STATUS flags ─────────────────────────────────────────────────────

// StatusFlag is one bit of a STATUS frame's b2 field.
type StatusFlag uint8

const (
	StatusRunning          StatusFlag = 0x01
	StatusPaused           StatusFlag = 0x02
	StatusSupportReconnect StatusFlag = 0x04
)

// NoFlags is reported when a STATUS frame sets none of the known bits.
const NoFlags = "NONE"

// statusFlags is ordered; decoded flag lists follow this order.
var statusFlags = []struct {
	flag StatusFlag
	name string
}{
	{StatusRunning, "RUNNING"},
	{StatusPaused, "PAUSED"},
	{StatusSupportReconnect, "SUPPORT_RECONNECT"},
}

func (f StatusFlag) String() string {
	for _, sf := range statusFlags {
		if sf.flag == f {
			return sf.name
		}
	}
	return fmt.Sprintf("FLAG(0x%02X)", uint8(f))
}

// StatusFlagNames returns the names of the known flags set in mask.
// Unknown bits are ignored; an empty result is reported as [NoFlags].
func StatusFlagNames(mask uint8) []string {
	var names []string
	for _, sf := range statusFlags {
		if mask&uint8(sf.flag) != 0 {
			names = append(names, sf.name)
		}
	}
	if len(names) == 0 {
		return []string{NoFlags}
	}
	return names
}

// ── SYNC1 control / SYNC3 subtype ────────────────────────────────────

// Clock holds the serial clock bits of a SYNC1 control byte.
type Clock struct {
	Master      bool // bit 0
	HighSpeed   bool // bit 1
	DoubleSpeed bool // bit 2
}

// ClockFromControl extracts the clock bits from a SYNC1 control byte.
func ClockFromControl(control uint8) Clock {
	return Clock{
		Master:      control&0x01 != 0,
		HighSpeed:   control&0x02 != 0,
		DoubleSpeed: control&0x04 != 0,
	}
}

// Sync3Kind classifies a SYNC3 frame.
type Sync3Kind string

const (
	Sync3TimestampSync Sync3Kind = "timestamp_sync"
	Sync3Ack           Sync3Kind = "ack"
	Sync3Unknown       Sync3Kind = "unknown"
)

// ── Packet ───────────────────────────────────────────────────────────

// Packet is the decoded, read-only view of one frame.  The generic
// fields are always set.  The interpreted fields are only set for the
// commands that define them; a nil pointer, empty string or nil slice
// means "not applicable to this command".
type Packet struct {
	Command Command
	B2      uint8
	B3      uint8
	B4      uint8
	I1      uint32
	Raw     [FrameSize]byte

	Version   string    // VERSION: "major.minor.patch"
	Data      *uint8    // SYNC1, SYNC2
	Control   *uint8    // SYNC1, SYNC2
	Timestamp *uint32   // SYNC1, SYNC3 timestamp sync
	Clock     *Clock    // SYNC1
	Sync3     Sync3Kind // SYNC3
	Flags     []string  // STATUS
}

// Hex returns the original frame as lowercase hex.
func (p *Packet) Hex() string {
	return hex.EncodeToString(p.Raw[:])
}

// Name returns the command's symbolic name.
func (p *Packet) Name() string { return p.Command.String() }

// ShortFrameError is returned by [Decode] when fewer than [FrameSize]
// bytes are supplied.  It is descriptive, never fatal.
type ShortFrameError struct {
	Raw []byte
}

func (e *ShortFrameError) Error() string {
	return fmt.Sprintf("short packet: %d bytes", len(e.Raw))
}

// Len returns the number of bytes that were available.
func (e *ShortFrameError) Len() int { return len(e.Raw) }

// Hex returns the truncated bytes as lowercase hex.
func (e *ShortFrameError) Hex() string { return hex.EncodeToString(e.Raw) }

// Decode interprets the first [FrameSize] bytes of frame.  Any input of
// at least FrameSize bytes decodes successfully; shorter input yields a
// *ShortFrameError holding a copy of the bytes.
func Decode(frame []byte) (*Packet, error) {
	if len(frame) < FrameSize {
		raw := make([]byte, len(frame))
		copy(raw, frame)
		return nil, &ShortFrameError{Raw: raw}
	}

	p := &Packet{
		Command: Command(frame[0]),
		B2:      frame[1],
		B3:      frame[2],
		B4:      frame[3],
		I1:      binary.LittleEndian.Uint32(frame[4:8]),
	}
	copy(p.Raw[:], frame[:FrameSize])

	switch p.Command {
	case CmdVersion:
		p.Version = fmt.Sprintf("%d.%d.%d", p.B2, p.B3, p.B4)

	case CmdSync1:
		p.Data, p.Control = u8(p.B2), u8(p.B3)
		p.Timestamp = u32(p.I1)
		clk := ClockFromControl(p.B3)
		p.Clock = &clk

	case CmdSync2:
		p.Data, p.Control = u8(p.B2), u8(p.B3)

	case CmdSync3:
		switch {
		case p.B2 == 0 && p.I1 != 0:
			p.Sync3 = Sync3TimestampSync
			p.Timestamp = u32(p.I1)
		case p.B2 == 1:
			p.Sync3 = Sync3Ack
		default:
			p.Sync3 = Sync3Unknown
		}

	case CmdStatus:
		p.Flags = StatusFlagNames(p.B2)
	}

	return p, nil
}

func u8(v uint8) *uint8    { return &v }
func u32(v uint32) *uint32 { return &v }
