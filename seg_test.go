package kcp

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
)

func TestSeg(t *testing.T) {
	mss := IKCP_MTU_DEF - IKCP_OVERHEAD
	for _, size := range []int{0, 1, 11, 255, 1024, mss - 1, mss} {
		data := bytes.Repeat([]byte{byte(size)}, size)
		seg := &ISeg{
			conv:     111,
			cmd:      IKCP_CMD_PUSH,
			frg:      255,
			wnd:      0xffff,
			ts:       100,
			sn:       0xfffffffe,
			una:      0xffffffff,
			xmit:     1,
			fastack:  1,
			resendts: 1000,
			data:     data,
		}
		wire := seg.Encode(nil)
		if len(wire) != IKCP_OVERHEAD+size {
			t.Fatalf("size %d: encoded %d bytes", size, len(wire))
		}
		seg1 := &ISeg{}
		n, err := seg1.Decode(wire)
		if err != nil {
			t.Fatalf("size %d: %v", size, err)
		}
		if n != len(wire) {
			t.Errorf("size %d: consumed %d of %d", size, n, len(wire))
		}
		if seg1.conv != seg.conv || seg1.cmd != seg.cmd || seg1.frg != seg.frg || seg1.wnd != seg.wnd ||
			seg1.ts != seg.ts || seg1.sn != seg.sn || seg1.una != seg.una {
			t.Errorf("size %d: header mismatch %+v != %+v", size, seg1, seg)
		}
		if !bytes.Equal(seg1.data, data) {
			t.Errorf("size %d: payload mismatch", size)
		}
		// bookkeeping never goes on the wire
		if seg1.xmit != 0 || seg1.fastack != 0 || seg1.resendts != 0 {
			t.Errorf("size %d: bookkeeping decoded: %+v", size, seg1)
		}
	}
}

func TestSegWireLayout(t *testing.T) {
	seg := &ISeg{conv: 0x01020304, cmd: IKCP_CMD_ACK, frg: 7, wnd: 0x0a0b, ts: 0x11121314, sn: 0x21222324, una: 0x31323334, data: []byte{0xee}}
	want := []byte{
		0x01, 0x02, 0x03, 0x04,
		82,
		7,
		0x0a, 0x0b,
		0x11, 0x12, 0x13, 0x14,
		0x21, 0x22, 0x23, 0x24,
		0x31, 0x32, 0x33, 0x34,
		0, 0, 0, 1,
		0xee,
	}
	if got := seg.Encode(nil); !bytes.Equal(got, want) {
		t.Fatalf("got % x\nwant % x", got, want)
	}
}

func TestSegDecodeTruncated(t *testing.T) {
	seg := &ISeg{conv: 1, cmd: IKCP_CMD_PUSH, data: []byte("hello world")}
	wire := seg.Encode(nil)

	var out ISeg
	if _, err := out.Decode(wire[:IKCP_OVERHEAD-1]); !errors.Is(err, ErrTruncated) {
		t.Errorf("short header: got %v", err)
	}
	if _, err := out.Decode(wire[:len(wire)-1]); !errors.Is(err, ErrTruncated) {
		t.Errorf("short payload: got %v", err)
	}
	// trailing bytes belong to the next segment
	n, err := out.Decode(append(wire, 1, 2, 3))
	if err != nil || n != len(wire) {
		t.Errorf("got n=%d err=%v", n, err)
	}
}
