package tracelog

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// countingFile records how much data actually reached the "disk".
type countingFile struct {
	mu     sync.Mutex
	data   bytes.Buffer
	closes int
}

func (f *countingFile) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data.Write(p)
}

func (f *countingFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *countingFile) lines() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Count(f.data.String(), "\n")
}

func fixedNow() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 8_000_000, time.UTC) }

func TestSink_ConsoleIsImmediate(t *testing.T) {
	var console bytes.Buffer
	file := &countingFile{}
	s := New(&console, file, 128)

	s.Packet("one")
	s.Packet("two")

	if console.String() != "one\ntwo\n" {
		t.Errorf("console = %q", console.String())
	}
	if file.lines() != 0 {
		t.Errorf("file got %d lines before the flush threshold", file.lines())
	}
}

func TestSink_FlushEveryN(t *testing.T) {
	file := &countingFile{}
	s := New(nil, file, 4)

	for i := 0; i < 3; i++ {
		s.Packet(fmt.Sprintf("line %d", i))
	}
	if file.lines() != 0 {
		t.Fatalf("flushed early: %d lines", file.lines())
	}

	s.Packet("line 3")
	if file.lines() != 4 {
		t.Fatalf("file has %d lines after threshold, want 4", file.lines())
	}

	s.Packet("line 4")
	if file.lines() != 4 {
		t.Errorf("counter was not reset: %d lines", file.lines())
	}
}

func TestSink_EventFlushesImmediately(t *testing.T) {
	var console bytes.Buffer
	file := &countingFile{}
	s := New(&console, file, 128)
	s.Now = fixedNow

	s.Packet("packet")
	s.Eventf("Failed to connect to server: %s", "refused")

	if file.lines() != 2 {
		t.Fatalf("file has %d lines, want 2", file.lines())
	}
	want := "[05:06:07.008] Failed to connect to server: refused"
	if !strings.Contains(file.data.String(), want+"\n") {
		t.Errorf("file = %q, want event line %q", file.data.String(), want)
	}
	if !strings.HasSuffix(console.String(), want+"\n") {
		t.Errorf("console = %q", console.String())
	}
}

func TestSink_Sequence(t *testing.T) {
	s := New(nil, nil, 0)
	a := s.Packet("a")
	b := s.Event("b")
	c := s.Packet("c")
	if !(a < b && b < c) || s.Lines() != 3 {
		t.Errorf("sequence = %d %d %d (lines %d)", a, b, c, s.Lines())
	}
}

func TestSink_CloseOnce(t *testing.T) {
	file := &countingFile{}
	s := New(nil, file, 128)

	s.Packet("buffered")
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if file.closes != 1 {
		t.Errorf("file closed %d times, want 1", file.closes)
	}
	if file.lines() != 1 {
		t.Errorf("Close did not flush: %d lines", file.lines())
	}

	// Writes after Close still reach the console and do not panic.
	s.Packet("late")
	if file.lines() != 1 {
		t.Errorf("late line reached the closed file")
	}
}

func TestSink_ConcurrentWritersDoNotInterleave(t *testing.T) {
	var console bytes.Buffer
	file := &countingFile{}
	s := New(&console, file, 7)

	const writers, perWriter = 2, 500
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			line := strings.Repeat(fmt.Sprint(w), 64)
			for i := 0; i < perWriter; i++ {
				s.Packet(line)
			}
		}(w)
	}
	wg.Wait()
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	for _, out := range []string{console.String(), file.data.String()} {
		lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
		if len(lines) != writers*perWriter {
			t.Fatalf("got %d lines, want %d", len(lines), writers*perWriter)
		}
		for _, l := range lines {
			if l != strings.Repeat("0", 64) && l != strings.Repeat("1", 64) {
				t.Fatalf("interleaved line %q", l)
			}
		}
	}
}

func TestOpen_AppendsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.log")
	if err := os.WriteFile(path, []byte("previous\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Open(path, nil, 128)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if s.Path() != path {
		t.Errorf("Path = %q", s.Path())
	}
	s.Packet("next")
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "previous\nnext\n" {
		t.Errorf("file = %q", got)
	}
}

func TestOpen_BadPath(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "trace.log"), nil, 0)
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
}
