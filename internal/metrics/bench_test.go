package metrics

import (
	"testing"

	"bgbsniff/internal/protocol"
)

// BenchmarkCollector_Forwarded measures the per-read accounting cost on
// the forwarding hot path.
func BenchmarkCollector_Forwarded(b *testing.B) {
	c := New()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Forwarded(protocol.Client, 8)
		c.FrameDecoded(protocol.Client)
	}
}

// BenchmarkCollector_Snapshot measures the cost of taking a snapshot.
func BenchmarkCollector_Snapshot(b *testing.B) {
	c := New()
	c.SessionOpened()
	c.Forwarded(protocol.Server, 1024)
	c.RecordError("test")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.Snapshot()
	}
}

// BenchmarkNilCollector verifies nil-safe no-ops stay cheap.
func BenchmarkNilCollector(b *testing.B) {
	var c *Collector
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Forwarded(protocol.Client, 8)
		c.FrameDecoded(protocol.Client)
		c.RecordError("test")
	}
}
