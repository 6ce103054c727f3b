package kcp

import "testing"

func TestBufferPool(t *testing.T) {
	if b := GetBufferFromPool(0); b != nil {
		t.Errorf("size 0: got %d bytes", len(b))
	}
	for _, c := range []struct{ size, cap int }{
		{1, 64},
		{64, 64},
		{65, 128},
		{1376, 2048},
		{1400, 2048},
		{1 << maxBufferShift, 1 << maxBufferShift},
	} {
		b := GetBufferFromPool(c.size)
		if len(b) != c.size || cap(b) != c.cap {
			t.Errorf("size %d: len %d cap %d, want cap %d", c.size, len(b), cap(b), c.cap)
		}
		PutBufferToPool(b)
	}

	big := GetBufferFromPool(1<<maxBufferShift + 1)
	if len(big) != 1<<maxBufferShift+1 {
		t.Errorf("big: len %d", len(big))
	}
	PutBufferToPool(big)
	// foreign buffers are dropped, not pooled under the wrong class
	PutBufferToPool(make([]byte, 100))
	if b := GetBufferFromPool(100); cap(b) != 128 {
		t.Errorf("got cap %d", cap(b))
	}
}

func TestSegPoolReset(t *testing.T) {
	s := getSegFromPool()
	s.sn = 9
	s.data = GetBufferFromPool(10)
	putSegToPool(s)
	s = getSegFromPool()
	if s.sn != 0 || s.data != nil {
		t.Errorf("dirty segment from pool: %+v", s)
	}
}
