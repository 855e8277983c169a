package frame

import "sync"

// BufferPool recycles tile buffers between render passes.
// Buffers of each byte size get their own sync.Pool, since the tiles of
// a frame differ by at most one pixel and frame sizes repeat across
// progressive levels.
//
// Thread safety: BufferPool is safe for concurrent use.
type BufferPool struct {
	pools sync.Map // int -> *sync.Pool
}

// NewBufferPool creates an empty pool.
func NewBufferPool() *BufferPool {
	return &BufferPool{}
}

// Get returns a zeroed buffer of exactly size bytes.
func (p *BufferPool) Get(size int) []byte {
	if size <= 0 {
		return nil
	}
	bp := p.pool(size).Get().(*[]byte)
	buf := *bp
	clear(buf)
	return buf
}

// Put hands a buffer back for reuse. Nil and empty buffers are ignored.
// The caller must not touch buf afterwards.
func (p *BufferPool) Put(buf []byte) {
	if len(buf) == 0 {
		return
	}
	buf = buf[:cap(buf)]
	p.pool(len(buf)).Put(&buf)
}

func (p *BufferPool) pool(size int) *sync.Pool {
	if sp, ok := p.pools.Load(size); ok {
		return sp.(*sync.Pool)
	}
	newPool := &sync.Pool{
		New: func() any {
			b := make([]byte, size)
			return &b
		},
	}
	actual, _ := p.pools.LoadOrStore(size, newPool)
	return actual.(*sync.Pool)
}
