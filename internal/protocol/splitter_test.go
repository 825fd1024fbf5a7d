package protocol

import (
	"bytes"
	"testing"
)

// stream is five valid frames taken from a bgb-to-bgb capture.
var stream = []string{
	"0101040000000000",
	"6c07000000000000",
	"6801850055def502",
	"6902800100000000",
	"6a01000000000000",
}

func joinedStream(t *testing.T) []byte {
	t.Helper()
	var out []byte
	for _, h := range stream {
		out = append(out, mustHex(t, h)...)
	}
	return out
}

func feedChunks(data []byte, size int) (frames []string, pending int) {
	var s Splitter
	for off := 0; off < len(data); off += size {
		end := off + size
		if end > len(data) {
			end = len(data)
		}
		s.Feed(data[off:end], func(frame []byte) {
			p, err := Decode(frame)
			frames = append(frames, FormatLine(testTime, Client, p, err))
		})
	}
	return frames, s.Pending()
}

func TestSplitter_ChunkBoundaries(t *testing.T) {
	data := joinedStream(t)
	want, _ := feedChunks(data, len(data))

	if len(want) != len(stream) {
		t.Fatalf("single chunk produced %d frames, want %d", len(want), len(stream))
	}

	for size := 1; size <= len(data); size++ {
		got, pending := feedChunks(data, size)
		if pending != 0 {
			t.Errorf("chunk %d: %d bytes left pending", size, pending)
		}
		if len(got) != len(want) {
			t.Fatalf("chunk %d: %d frames, want %d", size, len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("chunk %d frame %d:\n got %q\nwant %q", size, i, got[i], want[i])
			}
		}
	}
}

func TestSplitter_HoldsPartialFrame(t *testing.T) {
	var s Splitter
	var frames [][]byte
	emit := func(f []byte) { frames = append(frames, append([]byte(nil), f...)) }

	s.Feed([]byte{1, 2, 3}, emit)
	if len(frames) != 0 || s.Pending() != 3 {
		t.Fatalf("frames=%d pending=%d after 3 bytes", len(frames), s.Pending())
	}

	s.Feed([]byte{4, 5, 6, 7, 8, 9}, emit)
	if len(frames) != 1 || s.Pending() != 1 {
		t.Fatalf("frames=%d pending=%d after 9 bytes", len(frames), s.Pending())
	}
	if !bytes.Equal(frames[0], []byte{1, 2, 3, 4, 5, 6, 7, 8}) {
		t.Errorf("frame = %v", frames[0])
	}
}

func TestSplitter_Reset(t *testing.T) {
	var s Splitter
	s.Feed([]byte{1, 2, 3}, func([]byte) { t.Fatal("unexpected frame") })
	if n := s.Reset(); n != 3 {
		t.Errorf("Reset = %d, want 3", n)
	}
	if s.Pending() != 0 {
		t.Errorf("Pending = %d after Reset", s.Pending())
	}
}
