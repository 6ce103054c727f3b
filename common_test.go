package kcp

import "testing"

func TestItimediffWraparound(t *testing.T) {
	cases := []struct {
		later, earlier uint32
		want           int32
	}{
		{1, 0, 1},
		{0, 1, -1},
		{1, 0xfffffffe, 3},
		{0xfffffffe, 1, -3},
		{0, 0xffffffff, 1},
		{0x7fffffff, 0, 0x7fffffff},
		{5, 5, 0},
	}
	for _, c := range cases {
		if got := itimediff(c.later, c.earlier); got != c.want {
			t.Errorf("itimediff(%#x, %#x) = %d, want %d", c.later, c.earlier, got, c.want)
		}
	}
	// plain unsigned order would get this one wrong
	var older, newer uint32 = 0xfffffffe, 1
	if newer > older || itimediff(newer, older) <= 0 {
		t.Error("sn 1 must be later than 0xfffffffe")
	}
}

func TestBound(t *testing.T) {
	if got := bound(30, 10, 60000); got != 30 {
		t.Errorf("got %d", got)
	}
	if got := bound(30, 70000, 60000); got != 60000 {
		t.Errorf("got %d", got)
	}
	if got := bound(30, 300, 60000); got != 300 {
		t.Errorf("got %d", got)
	}
}
