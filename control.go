package kcp

// updateAck feeds one round-trip sample into the RTO estimator.
func (k *IKcp) updateAck(rtt int32) {
	if k.rx_srtt == 0 {
		k.rx_srtt = rtt
		k.rx_rttval = rtt / 2
	} else {
		delta := rtt - k.rx_srtt
		if delta < 0 {
			delta = -delta
		}
		k.rx_rttval = (3*k.rx_rttval + delta) / 4
		k.rx_srtt = (7*k.rx_srtt + rtt) / 8
		if k.rx_srtt < 1 {
			k.rx_srtt = 1
		}
	}
	rto := k.rx_srtt + max(1, 4*k.rx_rttval)
	k.rx_rto = bound(k.rx_minrto, rto, IKCP_RTO_MAX)
}

// growCwnd runs after an input call that moved snd_una forward.
func (k *IKcp) growCwnd() {
	if k.cwnd >= k.rmt_wnd {
		return
	}
	mss := k.mss
	if k.cwnd < k.ssthresh {
		// slow start
		k.cwnd++
		k.incr += mss
	} else {
		// congestion avoidance
		if k.incr < mss {
			k.incr = mss
		}
		k.incr += (mss*mss)/k.incr + (mss / 16)
		if (k.cwnd+1)*mss <= k.incr {
			k.cwnd++
		}
	}
	if k.cwnd > k.rmt_wnd {
		k.cwnd = k.rmt_wnd
		k.incr = k.rmt_wnd * mss
	}
}

// onFastResend shrinks the window after fast retransmissions without
// falling back to slow start.
func (k *IKcp) onFastResend() {
	inflight := k.snd_nxt - k.snd_una
	k.ssthresh = max(inflight/2, IKCP_THRESH_MIN)
	k.cwnd = k.ssthresh + k.fastresend
	k.incr = k.cwnd * k.mss
}

// onLoss is the multiplicative decrease after a retransmission timeout.
func (k *IKcp) onLoss() {
	k.ssthresh = max(k.cwnd/2, IKCP_THRESH_MIN)
	k.cwnd = 1
	k.incr = k.mss
}
