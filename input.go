package kcp

import (
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

func (k *IKcp) shrinkBuf() {
	if front := k.snd_buf.Front(); front != nil {
		k.snd_una = front.Value.(*ISeg).sn
	} else {
		k.snd_una = k.snd_nxt
	}
}

// parseAck removes sn from snd_buf and counts a skip on every older entry.
func (k *IKcp) parseAck(sn uint32) {
	if itimediff(sn, k.snd_una) < 0 || itimediff(sn, k.snd_nxt) >= 0 {
		return
	}
	for e := k.snd_buf.Front(); e != nil; e = e.Next() {
		seg := e.Value.(*ISeg)
		if seg.sn == sn {
			k.snd_buf.Remove(e)
			putSegToPool(seg)
			break
		}
		if itimediff(sn, seg.sn) < 0 {
			break
		}
		seg.fastack++
	}
}

// parseUna drops every segment before una.
func (k *IKcp) parseUna(una uint32) {
	for e := k.snd_buf.Front(); e != nil; e = k.snd_buf.Front() {
		seg := e.Value.(*ISeg)
		if itimediff(una, seg.sn) <= 0 {
			break
		}
		k.snd_buf.Remove(e)
		putSegToPool(seg)
	}
}

func (k *IKcp) ackPush(sn, ts uint32) {
	k.acklist = append(k.acklist, ackItem{sn: sn, ts: ts})
}

// parseData files newseg into rcv_buf and promotes what became contiguous.
// It reports false when newseg was a duplicate or out of window.
func (k *IKcp) parseData(newseg *ISeg) bool {
	sn := newseg.sn
	if itimediff(sn, k.rcv_nxt+k.rcv_wnd) >= 0 || itimediff(sn, k.rcv_nxt) < 0 {
		putSegToPool(newseg)
		return false
	}

	// most arrivals are in order, scan from the tail
	var mark = k.rcv_buf.Back()
	repeat := false
	for ; mark != nil; mark = mark.Prev() {
		seg := mark.Value.(*ISeg)
		if seg.sn == sn {
			repeat = true
			break
		}
		if itimediff(sn, seg.sn) > 0 {
			break
		}
	}

	if repeat {
		putSegToPool(newseg)
	} else if mark == nil {
		k.rcv_buf.PushFront(newseg)
	} else {
		k.rcv_buf.InsertAfter(newseg, mark)
	}

	k.moveToRcvQueue()
	return !repeat
}

// Input processes one packet from the lower layer. On error the rest of the
// packet is dropped; the connection itself stays usable.
func (k *IKcp) Input(data []byte) error {
	prevUna := k.snd_una
	atomic.AddUint64(&DefaultSnmp.InPkts, 1)
	k.log(IKCP_LOG_INPUT, "input", zap.Int("bytes", len(data)))

	if len(data) < IKCP_OVERHEAD {
		atomic.AddUint64(&DefaultSnmp.InErrs, 1)
		return errors.Wrapf(ErrTruncated, "packet of %d bytes", len(data))
	}

	for len(data) >= IKCP_OVERHEAD {
		var hdr ISeg
		length := hdr.decodeHeader(data)
		if hdr.conv != k.conv {
			atomic.AddUint64(&DefaultSnmp.InErrs, 1)
			return errors.Wrapf(ErrConvMismatch, "got %d, want %d", hdr.conv, k.conv)
		}
		data = data[IKCP_OVERHEAD:]
		if uint64(len(data)) < uint64(length) {
			atomic.AddUint64(&DefaultSnmp.InErrs, 1)
			return errors.Wrapf(ErrTruncated, "sn %d declares %d bytes, have %d", hdr.sn, length, len(data))
		}
		if !validCmd(hdr.cmd) {
			atomic.AddUint64(&DefaultSnmp.InErrs, 1)
			return errors.Wrapf(ErrUnknownCommand, "cmd %d", hdr.cmd)
		}
		payload := data[:length]
		data = data[length:]
		atomic.AddUint64(&DefaultSnmp.InSegs, 1)

		k.rmt_wnd = hdr.wnd
		k.parseUna(hdr.una)
		k.shrinkBuf()

		switch hdr.cmd {
		case IKCP_CMD_ACK:
			if rtt := itimediff(k.current, hdr.ts); rtt >= 0 {
				k.updateAck(rtt)
			}
			k.parseAck(hdr.sn)
			k.shrinkBuf()
			k.log(IKCP_LOG_IN_ACK, "input ack",
				zap.Uint32("sn", hdr.sn),
				zap.Int32("rtt", itimediff(k.current, hdr.ts)),
				zap.Int32("rto", k.rx_rto))
		case IKCP_CMD_PUSH:
			k.log(IKCP_LOG_IN_DATA, "input psh", zap.Uint32("sn", hdr.sn), zap.Uint32("ts", hdr.ts))
			if itimediff(hdr.sn, k.rcv_nxt+k.rcv_wnd) < 0 {
				// acked even when repeated, the peer may have lost our ack
				k.ackPush(hdr.sn, hdr.ts)
				if itimediff(hdr.sn, k.rcv_nxt) >= 0 {
					seg := getSegFromPool()
					seg.conv = hdr.conv
					seg.cmd = hdr.cmd
					seg.frg = hdr.frg
					seg.wnd = hdr.wnd
					seg.ts = hdr.ts
					seg.sn = hdr.sn
					seg.una = hdr.una
					seg.data = GetBufferFromPool(len(payload))
					copy(seg.data, payload)
					if !k.parseData(seg) {
						atomic.AddUint64(&DefaultSnmp.RepeatSegs, 1)
					}
				} else {
					atomic.AddUint64(&DefaultSnmp.RepeatSegs, 1)
				}
			}
		case IKCP_CMD_WASK:
			// tell remote my window size in the next flush
			k.probe |= IKCP_ASK_TELL
			k.log(IKCP_LOG_IN_PROBE, "input probe")
		case IKCP_CMD_WINS:
			k.log(IKCP_LOG_IN_WINS, "input wins", zap.Uint32("wnd", hdr.wnd))
		}
	}
	if itimediff(k.snd_una, prevUna) > 0 {
		k.growCwnd()
	}
	return nil
}
