package kcp

import (
	"math"
	"sync/atomic"

	"go.uber.org/zap"
)

// Update advances the clock to current (milliseconds) and flushes when the
// interval has elapsed. Call it every 10ms-100ms, or at the time Check
// returns. It reports ErrDeadLink once a segment exhausted its retransmissions.
func (k *IKcp) Update(current uint32) error {
	k.current = current

	if !k.updated {
		k.updated = true
		k.ts_flush = k.current
	}

	slap := itimediff(k.current, k.ts_flush)

	// clock jumped, resync
	if slap >= 10000 || slap < -10000 {
		k.ts_flush = k.current
		slap = 0
	}

	if slap >= 0 {
		k.ts_flush += k.interval
		if itimediff(k.current, k.ts_flush) >= 0 {
			k.ts_flush = k.current + k.interval
		}
		k.Flush()
	}
	if k.dead {
		return ErrDeadLink
	}
	return nil
}

// Check returns when Update should be called next, assuming no Input or
// Send happens before then.
func (k *IKcp) Check(current uint32) uint32 {
	if !k.updated {
		return current
	}
	// overdue segments of a dead link are never resent
	if k.dead {
		return current + k.interval
	}
	tsFlush := k.ts_flush
	if d := itimediff(current, tsFlush); d >= 10000 || d < -10000 {
		tsFlush = current
	}
	if itimediff(current, tsFlush) >= 0 {
		return current
	}

	tmFlush := itimediff(tsFlush, current)
	tmPacket := int32(math.MaxInt32)
	for e := k.snd_buf.Front(); e != nil; e = e.Next() {
		diff := itimediff(e.Value.(*ISeg).resendts, current)
		if diff <= 0 {
			return current
		}
		tmPacket = min(tmPacket, diff)
	}

	minimal := uint32(min(tmPacket, tmFlush))
	if minimal >= k.interval {
		minimal = k.interval
	}
	return current + minimal
}

// emit hands the pending bytes to the output sink and returns buf emptied.
func (k *IKcp) emit(buf []byte) []byte {
	if len(buf) == 0 {
		return buf
	}
	if k.output != nil {
		out := GetBufferFromPool(len(buf))
		copy(out, buf)
		atomic.AddUint64(&DefaultSnmp.OutPkts, 1)
		k.log(IKCP_LOG_OUTPUT, "output", zap.Int("bytes", len(out)))
		k.output(out, k, k.user)
	}
	return buf[:0]
}

// Flush sends pending acks, probes and data. Nothing happens before the
// first Update.
func (k *IKcp) Flush() {
	if !k.updated {
		return
	}
	current := k.current
	buf := k.buffer[:0]
	mtu := int(k.mtu)
	change := 0
	lost := false

	seg := ISeg{
		conv: k.conv,
		cmd:  IKCP_CMD_ACK,
		wnd:  k.wndUnused(),
		una:  k.rcv_nxt,
	}

	// flush acknowledges
	for _, ack := range k.acklist {
		if len(buf)+IKCP_OVERHEAD > mtu {
			buf = k.emit(buf)
		}
		seg.sn, seg.ts = ack.sn, ack.ts
		buf = seg.encode(buf)
		atomic.AddUint64(&DefaultSnmp.OutSegs, 1)
		k.log(IKCP_LOG_OUT_ACK, "output ack", zap.Uint32("sn", ack.sn))
	}
	k.acklist = k.acklist[:0]

	// probe window size (if remote window size equals zero)
	if k.rmt_wnd == 0 {
		if k.probe_wait == 0 {
			k.probe_wait = IKCP_PROBE_INIT
			k.ts_probe = k.current + k.probe_wait
		} else if itimediff(k.current, k.ts_probe) >= 0 {
			if k.probe_wait < IKCP_PROBE_INIT {
				k.probe_wait = IKCP_PROBE_INIT
			}
			k.probe_wait += k.probe_wait / 2
			if k.probe_wait > IKCP_PROBE_LIMIT {
				k.probe_wait = IKCP_PROBE_LIMIT
			}
			k.ts_probe = k.current + k.probe_wait
			k.probe |= IKCP_ASK_SEND
		}
	} else {
		k.ts_probe = 0
		k.probe_wait = 0
	}

	seg.sn, seg.ts = 0, 0
	if k.probe&IKCP_ASK_SEND != 0 {
		seg.cmd = IKCP_CMD_WASK
		if len(buf)+IKCP_OVERHEAD > mtu {
			buf = k.emit(buf)
		}
		buf = seg.encode(buf)
		atomic.AddUint64(&DefaultSnmp.OutSegs, 1)
		k.log(IKCP_LOG_OUT_PROBE, "output probe", zap.Uint32("wait", k.probe_wait))
	}
	if k.probe&IKCP_ASK_TELL != 0 {
		seg.cmd = IKCP_CMD_WINS
		if len(buf)+IKCP_OVERHEAD > mtu {
			buf = k.emit(buf)
		}
		buf = seg.encode(buf)
		atomic.AddUint64(&DefaultSnmp.OutSegs, 1)
		k.log(IKCP_LOG_OUT_WINS, "output wins", zap.Uint32("wnd", seg.wnd))
	}
	k.probe = 0

	// calculate window size
	cwnd := min(k.snd_wnd, k.rmt_wnd)
	if !k.nocwnd {
		cwnd = min(k.cwnd, cwnd)
	}

	// move data from snd_queue to snd_buf
	for itimediff(k.snd_nxt, k.snd_una+cwnd) < 0 {
		front := k.snd_queue.Front()
		if front == nil {
			break
		}
		newseg := k.snd_queue.Remove(front).(*ISeg)
		newseg.conv = k.conv
		newseg.cmd = IKCP_CMD_PUSH
		newseg.wnd = seg.wnd
		newseg.ts = current
		newseg.sn = k.snd_nxt
		newseg.una = k.rcv_nxt
		newseg.resendts = current
		newseg.rto = k.rx_rto
		newseg.fastack = 0
		newseg.xmit = 0
		k.snd_buf.PushBack(newseg)
		k.snd_nxt++
	}

	rtomin := uint32(0)
	if !k.nodelay {
		rtomin = uint32(k.rx_rto >> 3)
	}

	// flush data segments
	var lostSegs, fastRetransSegs uint64
	for e := k.snd_buf.Front(); e != nil && !k.dead; e = e.Next() {
		segment := e.Value.(*ISeg)
		needsend := false
		if segment.xmit == 0 {
			needsend = true
			segment.xmit++
			segment.rto = k.rx_rto
			segment.resendts = current + uint32(segment.rto) + rtomin
		} else if itimediff(current, segment.resendts) >= 0 {
			needsend = true
			segment.xmit++
			k.xmit++
			if !k.nodelay {
				segment.rto += k.rx_rto
			} else {
				segment.rto += k.rx_rto / 2
			}
			segment.resendts = current + uint32(segment.rto)
			lost = true
			lostSegs++
		} else if k.fastresend > 0 && segment.fastack >= k.fastresend {
			if k.fastlimit <= 0 || int32(segment.xmit) <= k.fastlimit {
				needsend = true
				segment.xmit++
				segment.fastack = 0
				segment.resendts = current + uint32(segment.rto)
				change++
				fastRetransSegs++
			}
		}

		if !needsend {
			continue
		}
		segment.ts = current
		segment.wnd = seg.wnd
		segment.una = k.rcv_nxt

		if len(buf)+IKCP_OVERHEAD+len(segment.data) > mtu {
			buf = k.emit(buf)
		}
		buf = segment.Encode(buf)
		atomic.AddUint64(&DefaultSnmp.OutSegs, 1)
		k.log(IKCP_LOG_OUT_DATA, "output psh",
			zap.Uint32("sn", segment.sn),
			zap.Uint32("xmit", segment.xmit),
			zap.Int32("rto", segment.rto))

		if segment.xmit >= k.dead_link {
			k.dead = true
			atomic.AddUint64(&DefaultSnmp.DeadLinks, 1)
			k.logger.Warn("dead link",
				zap.Uint32("conv", k.conv),
				zap.Uint32("sn", segment.sn),
				zap.Uint32("xmit", segment.xmit))
		}
	}

	// flush remain segments
	buf = k.emit(buf)
	k.buffer = buf

	if sum := lostSegs + fastRetransSegs; sum > 0 {
		atomic.AddUint64(&DefaultSnmp.RetransSegs, sum)
		atomic.AddUint64(&DefaultSnmp.LostSegs, lostSegs)
		atomic.AddUint64(&DefaultSnmp.FastRetransSegs, fastRetransSegs)
	}

	// update ssthresh
	if change > 0 {
		k.onFastResend()
	}
	if lost {
		k.onLoss()
	}
	if k.cwnd < 1 {
		k.cwnd = 1
		k.incr = k.mss
	}
}
