package kcp

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

type ISeg struct {
	conv     uint32 // conversation id, must match on both ends
	cmd      uint32 // IKCP_CMD_*
	frg      uint32 // fragments left after this one, 0 ends a message
	wnd      uint32 // sender's free receive window
	ts       uint32 // send timestamp
	sn       uint32 // sequence number
	una      uint32 // every sn before this one has been received
	resendts uint32 // next resend deadline
	rto      int32
	fastack  uint32 // times skipped by a later ack
	xmit     uint32 // transmissions so far
	data     []byte
}

func validCmd(cmd uint32) bool {
	switch cmd {
	case IKCP_CMD_PUSH, IKCP_CMD_ACK, IKCP_CMD_WASK, IKCP_CMD_WINS:
		return true
	}
	return false
}

// encode appends the 24 byte header to dst.
func (seg *ISeg) encode(dst []byte) []byte {
	var h [IKCP_OVERHEAD]byte
	binary.BigEndian.PutUint32(h[0:4], seg.conv)
	h[4] = uint8(seg.cmd)
	h[5] = uint8(seg.frg)
	binary.BigEndian.PutUint16(h[6:8], uint16(seg.wnd))
	binary.BigEndian.PutUint32(h[8:12], seg.ts)
	binary.BigEndian.PutUint32(h[12:16], seg.sn)
	binary.BigEndian.PutUint32(h[16:20], seg.una)
	binary.BigEndian.PutUint32(h[20:24], uint32(len(seg.data)))
	return append(dst, h[:]...)
}

// Encode appends the header followed by the payload to dst.
func (seg *ISeg) Encode(dst []byte) []byte {
	dst = seg.encode(dst)
	return append(dst, seg.data...)
}

// decodeHeader reads the fixed header and returns the declared payload length.
// data must hold at least IKCP_OVERHEAD bytes.
func (seg *ISeg) decodeHeader(data []byte) (length uint32) {
	seg.conv = binary.BigEndian.Uint32(data[0:4])
	seg.cmd = uint32(data[4])
	seg.frg = uint32(data[5])
	seg.wnd = uint32(binary.BigEndian.Uint16(data[6:8]))
	seg.ts = binary.BigEndian.Uint32(data[8:12])
	seg.sn = binary.BigEndian.Uint32(data[12:16])
	seg.una = binary.BigEndian.Uint32(data[16:20])
	return binary.BigEndian.Uint32(data[20:24])
}

// Decode parses one segment from the front of data and returns how many bytes
// it occupied. The payload aliases data.
func (seg *ISeg) Decode(data []byte) (int, error) {
	if len(data) < IKCP_OVERHEAD {
		return 0, errors.Wrapf(ErrTruncated, "header needs %d bytes, have %d", IKCP_OVERHEAD, len(data))
	}
	length := seg.decodeHeader(data)
	if uint64(len(data)-IKCP_OVERHEAD) < uint64(length) {
		return 0, errors.Wrapf(ErrTruncated, "payload declares %d bytes, have %d", length, len(data)-IKCP_OVERHEAD)
	}
	seg.data = data[IKCP_OVERHEAD : IKCP_OVERHEAD+int(length)]
	return IKCP_OVERHEAD + int(length), nil
}

func (seg *ISeg) Reset() {
	*seg = ISeg{}
}
