package kcp

import (
	"container/list"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	IKCP_RTO_NDL       = 30  // no delay min rto
	IKCP_RTO_MIN       = 100 // normal min rto
	IKCP_RTO_DEF       = 200
	IKCP_RTO_MAX       = 60000
	IKCP_CMD_PUSH      = 81 // cmd: push data
	IKCP_CMD_ACK       = 82 // cmd: ack
	IKCP_CMD_WASK      = 83 // cmd: window probe (ask)
	IKCP_CMD_WINS      = 84 // cmd: window size (tell)
	IKCP_ASK_SEND      = 1  // need to send IKCP_CMD_WASK
	IKCP_ASK_TELL      = 2  // need to send IKCP_CMD_WINS
	IKCP_WND_SND       = 32
	IKCP_WND_RCV       = 256 // must >= max fragment size
	IKCP_MTU_DEF       = 1400
	IKCP_MTU_MIN       = 50
	IKCP_ACK_FAST      = 3
	IKCP_INTERVAL      = 100
	IKCP_INTERVAL_MIN  = 10
	IKCP_INTERVAL_MAX  = 5000
	IKCP_OVERHEAD      = 24
	IKCP_DEADLINK      = 10
	IKCP_THRESH_INIT   = 2
	IKCP_THRESH_MIN    = 2
	IKCP_PROBE_INIT    = 7000   // 7 secs to probe window size
	IKCP_PROBE_LIMIT   = 120000 // up to 120 secs to probe window
	IKCP_FASTACK_LIMIT = 5      // max times to trigger fastack
	IKCP_FRG_MAX       = 255
)

// OutputFunc delivers one packet to the underlying channel. buf belongs to
// the callee once called; it may be returned with PutBufferToPool.
type OutputFunc func(buf []byte, kcp *IKcp, user any)

type ackItem struct {
	sn uint32
	ts uint32
}

// IKcp is a single conversation. It is not safe for concurrent use.
type IKcp struct {
	conv, mtu, mss                        uint32
	snd_una, snd_nxt, rcv_nxt             uint32
	ssthresh                              uint32
	rx_rttval, rx_srtt, rx_rto, rx_minrto int32
	snd_wnd, rcv_wnd, rmt_wnd, cwnd       uint32
	probe                                 uint32
	current, interval, ts_flush, xmit     uint32
	ts_probe, probe_wait                  uint32
	dead_link, incr                       uint32
	fastresend                            uint32 // 0 disables fast retransmit
	fastlimit                             int32
	nodelay, updated, nocwnd, stream      bool
	dead                                  bool

	snd_queue list.List
	rcv_queue list.List
	snd_buf   list.List
	rcv_buf   list.List
	acklist   []ackItem

	user    any
	buffer  []byte
	output  OutputFunc
	logmask KcpLogType
	logger  *zap.Logger
}

func NewIKcp(conv uint32, output OutputFunc, user any) *IKcp {
	kcp := &IKcp{}
	kcp.conv = conv
	kcp.user = user
	kcp.output = output
	kcp.snd_wnd = IKCP_WND_SND
	kcp.rcv_wnd = IKCP_WND_RCV
	kcp.rmt_wnd = IKCP_WND_RCV
	kcp.mtu = IKCP_MTU_DEF
	kcp.mss = kcp.mtu - IKCP_OVERHEAD
	kcp.cwnd = 1
	kcp.incr = kcp.mss
	kcp.buffer = make([]byte, 0, (kcp.mtu+IKCP_OVERHEAD)*3)
	kcp.rx_rto = IKCP_RTO_DEF
	kcp.rx_minrto = IKCP_RTO_MIN
	kcp.interval = IKCP_INTERVAL
	kcp.ts_flush = IKCP_INTERVAL
	kcp.ssthresh = IKCP_THRESH_INIT
	kcp.fastlimit = IKCP_FASTACK_LIMIT
	kcp.dead_link = IKCP_DEADLINK
	kcp.logmask = KcpLogType(atomic.LoadInt64(&KcpLogMask))
	kcp.logger = Logger()
	return kcp
}

// SetWndSize sets the maximum windows in segments, zero keeps the current value.
func (k *IKcp) SetWndSize(sndwnd, rcvwnd int) {
	if sndwnd > 0 {
		k.snd_wnd = uint32(sndwnd)
	}
	if rcvwnd > 0 { // must >= max fragment size
		k.rcv_wnd = uint32(bound(IKCP_FRG_MAX, rcvwnd, 0xffff))
	}
}

// NoDelay tunes latency. interval < 0 and resend < 0 keep the current value;
// resend == 0 turns fast retransmit off.
// Fastest: NoDelay(true, 20, 2, true).
func (k *IKcp) NoDelay(nodelay bool, interval, resend int, nc bool) {
	k.nodelay = nodelay
	if nodelay {
		k.rx_minrto = IKCP_RTO_NDL
	} else {
		k.rx_minrto = IKCP_RTO_MIN
	}
	if interval >= 0 {
		k.SetInterval(interval)
	}
	if resend >= 0 {
		k.fastresend = uint32(resend)
	}
	k.nocwnd = nc
}

func (k *IKcp) SetMtu(mtu int) error {
	if mtu < IKCP_MTU_MIN || mtu <= IKCP_OVERHEAD {
		return errors.Wrapf(ErrMtuInvalid, "mtu %d", mtu)
	}
	if mtu > 1<<maxBufferShift {
		return errors.Wrapf(ErrMtuInvalid, "mtu %d above %d", mtu, 1<<maxBufferShift)
	}
	k.mtu = uint32(mtu)
	k.mss = k.mtu - IKCP_OVERHEAD
	k.buffer = make([]byte, 0, (k.mtu+IKCP_OVERHEAD)*3)
	return nil
}

func (k *IKcp) SetInterval(interval int) {
	k.interval = uint32(bound(IKCP_INTERVAL_MIN, interval, IKCP_INTERVAL_MAX))
}

func (k *IKcp) SetStreamMode(stream bool) {
	k.stream = stream
}

// SetDeadLink sets how many transmissions of one segment mark the link dead.
func (k *IKcp) SetDeadLink(n int) {
	if n > 0 {
		k.dead_link = uint32(n)
	}
}

// SetFastLimit caps fast retransmissions per segment, <= 0 means no cap.
func (k *IKcp) SetFastLimit(n int) {
	k.fastlimit = int32(n)
}

func (k *IKcp) SetMinRTO(rto int) {
	if rto > 0 {
		k.rx_minrto = int32(min(rto, IKCP_RTO_MAX))
	}
}

func (k *IKcp) SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	k.logger = l
}

func (k *IKcp) SetLogMask(mask KcpLogType) {
	k.logmask = mask
}

func (k *IKcp) Conv() uint32 { return k.conv }
func (k *IKcp) Mtu() int     { return int(k.mtu) }
func (k *IKcp) Mss() int     { return int(k.mss) }
func (k *IKcp) RTO() int     { return int(k.rx_rto) }
func (k *IKcp) SRTT() int    { return int(k.rx_srtt) }
func (k *IKcp) Cwnd() int    { return int(k.cwnd) }
func (k *IKcp) IsDead() bool { return k.dead }
func (k *IKcp) User() any    { return k.user }

// WaitSnd returns how many segments are queued or in flight.
func (k *IKcp) WaitSnd() int {
	return k.snd_buf.Len() + k.snd_queue.Len()
}

func (k *IKcp) canlog(t KcpLogType) bool {
	return k.logmask&t != 0
}

func (k *IKcp) log(t KcpLogType, msg string, fields ...zap.Field) {
	if !k.canlog(t) {
		return
	}
	k.logger.Debug(msg, append(fields, zap.Uint32("conv", k.conv), zap.Stringer("type", t))...)
}

// Send queues one message. It is cut into at most IKCP_FRG_MAX fragments.
func (k *IKcp) Send(buffer []byte) error {
	if len(buffer) == 0 {
		return ErrInvalidInput
	}
	mss := int(k.mss)
	sent := len(buffer)

	// in streaming mode the head fills the previous segment (if possible)
	var old *ISeg
	extend := 0
	if k.stream {
		if back := k.snd_queue.Back(); back != nil {
			if seg := back.Value.(*ISeg); len(seg.data) < mss {
				old = seg
				extend = min(len(buffer), mss-len(seg.data))
			}
		}
	}

	rest := len(buffer) - extend
	count := 0
	if rest > 0 {
		count = (rest + mss - 1) / mss
	}
	// nothing is queued on failure
	if count > IKCP_FRG_MAX {
		return errors.Wrapf(ErrTooManyFragments, "%d bytes need %d fragments of %d", rest, count, mss)
	}

	if old != nil {
		data := GetBufferFromPool(len(old.data) + extend)
		n := copy(data, old.data)
		copy(data[n:], buffer[:extend])
		PutBufferToPool(old.data)
		old.data = data
		buffer = buffer[extend:]
	}

	for i := 0; i < count; i++ {
		size := min(len(buffer), mss)
		seg := getSegFromPool()
		seg.data = GetBufferFromPool(size)
		copy(seg.data, buffer[:size])
		if !k.stream {
			seg.frg = uint32(count - i - 1)
		}
		k.snd_queue.PushBack(seg)
		buffer = buffer[size:]
	}
	atomic.AddUint64(&DefaultSnmp.BytesSent, uint64(sent))
	k.log(IKCP_LOG_SEND, "send", zap.Int("bytes", sent), zap.Int("fragments", count))
	return nil
}

// PeekSize returns the size of the next complete message.
func (k *IKcp) PeekSize() (int, bool) {
	front := k.rcv_queue.Front()
	if front == nil {
		return 0, false
	}
	seg := front.Value.(*ISeg)
	if seg.frg == 0 {
		return len(seg.data), true
	}
	if uint32(k.rcv_queue.Len()) < seg.frg+1 {
		return 0, false
	}
	length := 0
	for e := front; e != nil; e = e.Next() {
		seg := e.Value.(*ISeg)
		length += len(seg.data)
		if seg.frg == 0 {
			break
		}
	}
	return length, true
}

// Recv copies the next message into buffer and returns its size.
func (k *IKcp) Recv(buffer []byte) (int, error) {
	if k.rcv_queue.Len() == 0 {
		return 0, ErrNoData
	}
	peeksize, ok := k.PeekSize()
	if !ok {
		return 0, ErrNotReady
	}
	if peeksize > len(buffer) {
		return 0, errors.Wrapf(ErrBufferTooSmall, "message is %d bytes, buffer %d", peeksize, len(buffer))
	}

	fastRecover := uint32(k.rcv_queue.Len()) >= k.rcv_wnd

	// merge fragment
	n := 0
	for e := k.rcv_queue.Front(); e != nil; {
		seg := e.Value.(*ISeg)
		next := e.Next()
		n += copy(buffer[n:], seg.data)
		fragment := seg.frg
		k.log(IKCP_LOG_RECV, "recv", zap.Uint32("sn", seg.sn))
		k.rcv_queue.Remove(e)
		putSegToPool(seg)
		if fragment == 0 {
			break
		}
		e = next
	}

	k.moveToRcvQueue()

	// fast recover: tell remote my window size in the next flush
	if uint32(k.rcv_queue.Len()) < k.rcv_wnd && fastRecover {
		k.probe |= IKCP_ASK_TELL
	}
	atomic.AddUint64(&DefaultSnmp.BytesReceived, uint64(n))
	return n, nil
}

// moveToRcvQueue promotes contiguous segments from rcv_buf to rcv_queue.
func (k *IKcp) moveToRcvQueue() {
	for e := k.rcv_buf.Front(); e != nil; e = k.rcv_buf.Front() {
		seg := e.Value.(*ISeg)
		if seg.sn != k.rcv_nxt || uint32(k.rcv_queue.Len()) >= k.rcv_wnd {
			break
		}
		k.rcv_buf.Remove(e)
		k.rcv_queue.PushBack(seg)
		k.rcv_nxt++
	}
}

func (k *IKcp) wndUnused() uint32 {
	if n := uint32(k.rcv_queue.Len()); n < k.rcv_wnd {
		return k.rcv_wnd - n
	}
	return 0
}
