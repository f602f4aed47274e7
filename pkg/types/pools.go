// Package types provides object pools for performance optimization
package types

import (
	"bytes"
	"sync"
)

// maxPooledBufferSize caps the buffers returned to the pool so one huge
// header block does not pin memory forever
const maxPooledBufferSize = 64 << 10

// BufferPool manages bytes.Buffer pooling for response header rendering
type BufferPool struct {
	pool sync.Pool
}

// NewBufferPool creates a new buffer pool
func NewBufferPool() *BufferPool {
	return &BufferPool{
		pool: sync.Pool{
			New: func() interface{} {
				return new(bytes.Buffer)
			},
		},
	}
}

// Get retrieves an empty buffer from the pool or creates a new one
func (bp *BufferPool) Get() *bytes.Buffer {
	return bp.pool.Get().(*bytes.Buffer)
}

// Put returns a buffer to the pool after resetting it
func (bp *BufferPool) Put(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > maxPooledBufferSize {
		return
	}
	buf.Reset()
	bp.pool.Put(buf)
}

// Global pools for common usage
var (
	// HeaderBufferPool is shared by every task rendering a header block
	HeaderBufferPool = NewBufferPool()
)
