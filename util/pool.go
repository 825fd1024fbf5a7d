package util

import "sync"

// ReadBufSize is the size of a forwarder's read buffer.  Link traffic
// is a trickle of 8-byte frames, so a small buffer never limits
// throughput.
const ReadBufSize = 4 * 1024

// bufPool recycles read buffers across sessions.
var bufPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, ReadBufSize)
		return &buf
	},
}

// GetBuf retrieves a read buffer.  Return it with [PutBuf].
func GetBuf() *[]byte {
	return bufPool.Get().(*[]byte)
}

// PutBuf returns a buffer to the pool.
func PutBuf(buf *[]byte) {
	if buf == nil || cap(*buf) < ReadBufSize {
		return
	}
	*buf = (*buf)[:ReadBufSize]
	bufPool.Put(buf)
}
