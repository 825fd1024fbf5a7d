package protocol

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Direction names the peer a byte stream originated from.
type Direction uint8

const (
	// Client is the stream from the accepted connection to the
	// upstream peer.
	Client Direction = iota
	// Server is the stream from the upstream peer back to the client.
	Server
)

func (d Direction) String() string {
	if d == Server {
		return "SERVER"
	}
	return "CLIENT"
}

// Arrow points toward the side that receives the frame.
func (d Direction) Arrow() string {
	if d == Server {
		return "<-"
	}
	return "->"
}

// TimeLayout is the wall-clock prefix of every trace line.
const TimeLayout = "15:04:05.000"

// Stamp renders t as the "[HH:MM:SS.mmm]" prefix shared by packet and
// event lines.
func Stamp(t time.Time) string {
	return "[" + t.Format(TimeLayout) + "]"
}

// FormatLine renders one decoded frame (or the error from [Decode]) as
// a single human-readable line without a trailing newline:
//
//	[15:04:05.000] SERVER <- SYNC1           data=0x01 ctrl=0x85 ts=49667669 MASTER  [6801850055def502]
func FormatLine(t time.Time, dir Direction, pkt *Packet, err error) string {
	if err != nil || pkt == nil {
		return formatError(t, dir, err)
	}

	details := Details(pkt)
	detail := ""
	if len(details) > 0 {
		detail = " " + strings.Join(details, " ")
	}
	return fmt.Sprintf("%s %-6s %s %-15s%s  [%s]",
		Stamp(t), dir, dir.Arrow(), pkt.Name(), detail, pkt.Hex())
}

// Details returns the "key=value" fragments for the interpreted fields
// present on pkt, in display order.  Absent fields contribute nothing.
func Details(pkt *Packet) []string {
	var out []string
	if pkt.Version != "" {
		out = append(out, "ver="+pkt.Version)
	}
	if pkt.Data != nil {
		out = append(out, fmt.Sprintf("data=0x%02X", *pkt.Data))
	}
	if pkt.Control != nil {
		out = append(out, fmt.Sprintf("ctrl=0x%02X", *pkt.Control))
	}
	if pkt.Timestamp != nil {
		out = append(out, fmt.Sprintf("ts=%d", *pkt.Timestamp))
	}
	if pkt.Clock != nil {
		if pkt.Clock.Master {
			out = append(out, "MASTER")
		} else {
			out = append(out, "SLAVE")
		}
	}
	if pkt.Sync3 != "" {
		out = append(out, "type="+string(pkt.Sync3))
	}
	if pkt.Flags != nil {
		out = append(out, "flags="+strings.Join(pkt.Flags, ","))
	}
	return out
}

func formatError(t time.Time, dir Direction, err error) string {
	var short *ShortFrameError
	if errors.As(err, &short) {
		return fmt.Sprintf("%s %-6s %s %-15s len=%d  [%s]",
			Stamp(t), dir, dir.Arrow(), "SHORT", short.Len(), short.Hex())
	}
	if err == nil {
		err = errors.New("no packet")
	}
	return fmt.Sprintf("%s %-6s %s %-15s %v",
		Stamp(t), dir, dir.Arrow(), "ERROR", err)
}
