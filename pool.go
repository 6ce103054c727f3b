package kcp

import (
	"math/bits"
	"sync"
)

const (
	minBufferShift = 6  // 64 bytes
	maxBufferShift = 16 // 64 KiB
)

var (
	bufferPool []*sync.Pool
	segPool    *sync.Pool
)

func init() {
	bufferPool = make([]*sync.Pool, maxBufferShift-minBufferShift+1)
	for i := range bufferPool {
		size := 1 << (i + minBufferShift)
		bufferPool[i] = &sync.Pool{New: func() any {
			return make([]byte, size)
		}}
	}
	segPool = &sync.Pool{New: func() any {
		return &ISeg{}
	}}
}

// poolIndex returns the smallest class holding size bytes, or -1.
func poolIndex(size int) int {
	if size <= 1<<minBufferShift {
		return 0
	}
	if size > 1<<maxBufferShift {
		return -1
	}
	return bits.Len(uint(size-1)) - minBufferShift
}

func getSegFromPool() *ISeg {
	return segPool.Get().(*ISeg)
}

func putSegToPool(s *ISeg) {
	if s == nil {
		return
	}
	PutBufferToPool(s.data)
	s.Reset()
	segPool.Put(s)
}

// GetBufferFromPool returns a buffer of length size. Buffers larger than
// the biggest class are allocated directly.
func GetBufferFromPool(size int) []byte {
	if size <= 0 {
		return nil
	}
	i := poolIndex(size)
	if i < 0 {
		return make([]byte, size)
	}
	return bufferPool[i].Get().([]byte)[:size]
}

// PutBufferToPool recycles a buffer obtained from GetBufferFromPool,
// including the ones handed to an OutputFunc. Anything else is dropped.
func PutBufferToPool(buffer []byte) {
	c := cap(buffer)
	if c == 0 {
		return
	}
	i := poolIndex(c)
	if i < 0 || 1<<(i+minBufferShift) != c {
		return
	}
	bufferPool[i].Put(buffer[:c])
}
