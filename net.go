package kcp

import (
	"encoding/binary"
	"math/rand"
	"net"
	"os"
	"sync"
	"time"

	"github.com/armon/circbuf"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	acceptBacklog = 128
	mtuLimit      = 1 << maxBufferShift
)

var refTime = time.Now()

// currentMs is the engine clock for sessions.
func currentMs() uint32 { return uint32(time.Since(refTime) / time.Millisecond) }

// Listener accepts sessions on one UDP socket, one session per remote address.
type Listener struct {
	conn     net.PacketConn
	config   Config
	mu       sync.Mutex
	sessions map[string]*Conn
	accept   chan *Conn

	die       chan struct{}
	closeOnce sync.Once
	err       error
}

func Listen(network, address string) (*Listener, error) {
	return ListenWithConfig(network, address, DefaultConfig())
}

func ListenWithConfig(network, address string, config Config) (*Listener, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	addr, err := net.ResolveUDPAddr(network, address)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", address)
	}
	conn, err := net.ListenUDP(network, addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s", address)
	}
	if config.ReadBuffer > 0 {
		if err := conn.SetReadBuffer(config.ReadBuffer); err != nil {
			Warn("set read buffer", zap.Error(err))
		}
	}
	l := &Listener{
		conn:     conn,
		config:   config,
		sessions: map[string]*Conn{},
		accept:   make(chan *Conn, acceptBacklog),
		die:      make(chan struct{}),
	}
	go l.monitor()
	Info("listening", zap.Stringer("addr", conn.LocalAddr()))
	return l, nil
}

func (l *Listener) monitor() {
	buf := make([]byte, mtuLimit)
	for {
		n, from, err := l.conn.ReadFrom(buf)
		if err != nil {
			l.closeWithErr(err)
			return
		}
		if n < IKCP_OVERHEAD {
			continue
		}
		key := from.String()
		l.mu.Lock()
		s, ok := l.sessions[key]
		l.mu.Unlock()
		if !ok {
			if !validCmd(uint32(buf[4])) {
				continue
			}
			conv := binary.BigEndian.Uint32(buf[:4])
			s, err = newConn(conv, l.conn, from, l, l.config)
			if err != nil {
				Warn("new session", zap.Error(err), zap.Stringer("remote", from))
				continue
			}
			l.mu.Lock()
			l.sessions[key] = s
			l.mu.Unlock()
			s.input(buf[:n])
			select {
			case l.accept <- s:
				Debug("new session", zap.Uint32("conv", conv), zap.Stringer("remote", from))
			default:
				Warn("accept backlog full", zap.Stringer("remote", from))
				s.closeWithErr(net.ErrClosed)
			}
			continue
		}
		s.input(buf[:n])
	}
}

func (l *Listener) AcceptKCP() (*Conn, error) {
	select {
	case c := <-l.accept:
		return c, nil
	case <-l.die:
		return nil, l.err
	}
}

func (l *Listener) Accept() (net.Conn, error) {
	return l.AcceptKCP()
}

func (l *Listener) Addr() net.Addr {
	return l.conn.LocalAddr()
}

func (l *Listener) Close() error {
	l.closeWithErr(net.ErrClosed)
	return nil
}

func (l *Listener) closeWithErr(err error) {
	l.closeOnce.Do(func() {
		l.err = err
		close(l.die)
		l.conn.Close()

		l.mu.Lock()
		sessions := make([]*Conn, 0, len(l.sessions))
		for _, s := range l.sessions {
			sessions = append(sessions, s)
		}
		l.mu.Unlock()
		for _, s := range sessions {
			s.closeWithErr(net.ErrClosed)
		}
	})
}

func (l *Listener) remove(c *Conn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := c.remote.String()
	if l.sessions[key] == c {
		delete(l.sessions, key)
	}
}

// Conn is a reliable message session implementing net.Conn. Each Write is
// one message; Read returns one message, or as much of it as fits, with
// the rest kept for the following Reads.
type Conn struct {
	mu      sync.Mutex
	kcp     *IKcp
	conn    net.PacketConn
	remote  net.Addr
	l       *Listener // nil for dialed sessions, which own conn
	tail    *circbuf.Buffer // unread rest of the last message
	tailOff int
	recvBuf []byte
	err     error

	rdeadline time.Time
	wdeadline time.Time

	readEvent chan struct{}
	die       chan struct{}
	closeOnce sync.Once
}

func Dial(network, address string) (*Conn, error) {
	return DialWithConfig(network, address, DefaultConfig())
}

func DialWithConfig(network, address string, config Config) (*Conn, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	raddr, err := net.ResolveUDPAddr(network, address)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", address)
	}
	conn, err := net.ListenUDP(network, nil)
	if err != nil {
		return nil, errors.Wrap(err, "open udp socket")
	}
	c, err := newConn(rand.Uint32(), conn, raddr, nil, config)
	if err != nil {
		conn.Close()
		return nil, err
	}
	go c.readLoop()
	return c, nil
}

func newConn(conv uint32, conn net.PacketConn, remote net.Addr, l *Listener, config Config) (*Conn, error) {
	c := &Conn{
		conn:      conn,
		remote:    remote,
		l:         l,
		readEvent: make(chan struct{}, 1),
		die:       make(chan struct{}),
	}
	c.kcp = NewIKcp(conv, c.output, c)
	c.kcp.SetLogger(Logger().With(zap.Stringer("remote", remote)))
	if err := config.Apply(c.kcp); err != nil {
		return nil, err
	}
	go c.update()
	return c, nil
}

// output runs with c.mu held, from inside the engine.
func (c *Conn) output(buf []byte, _ *IKcp, _ any) {
	if _, err := c.conn.WriteTo(buf, c.remote); err != nil {
		Debug("write to", zap.Error(err), zap.Stringer("remote", c.remote))
	}
	PutBufferToPool(buf)
}

func (c *Conn) readLoop() {
	buf := make([]byte, mtuLimit)
	for {
		n, from, err := c.conn.ReadFrom(buf)
		if err != nil {
			c.closeWithErr(err)
			return
		}
		if from.String() != c.remote.String() {
			continue
		}
		c.input(buf[:n])
	}
}

func (c *Conn) input(data []byte) {
	c.mu.Lock()
	err := c.kcp.Input(data)
	_, ready := c.kcp.PeekSize()
	c.mu.Unlock()
	if err != nil {
		Debug("drop packet", zap.Error(err), zap.Stringer("remote", c.remote))
	}
	if ready {
		c.notifyRead()
	}
}

func (c *Conn) notifyRead() {
	select {
	case c.readEvent <- struct{}{}:
	default:
	}
}

func (c *Conn) update() {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
		case <-c.die:
			return
		}
		now := currentMs()
		c.mu.Lock()
		err := c.kcp.Update(now)
		next := c.kcp.Check(now)
		c.mu.Unlock()
		if err != nil {
			Warn("session closed", zap.Error(err), zap.Stringer("remote", c.remote))
			c.closeWithErr(err)
			return
		}
		timer.Reset(time.Duration(itimediff(next, now)) * time.Millisecond)
	}
}

func (c *Conn) Read(b []byte) (int, error) {
	for {
		c.mu.Lock()
		if n, ok := c.readTail(b); ok {
			c.mu.Unlock()
			return n, nil
		}
		if size, ok := c.kcp.PeekSize(); ok {
			n, err := c.recv(b, size)
			c.mu.Unlock()
			return n, err
		}
		if c.err != nil {
			err := c.err
			c.mu.Unlock()
			return 0, err
		}
		var timer *time.Timer
		var timeout <-chan time.Time
		if !c.rdeadline.IsZero() {
			d := time.Until(c.rdeadline)
			if d <= 0 {
				c.mu.Unlock()
				return 0, os.ErrDeadlineExceeded
			}
			timer = time.NewTimer(d)
			timeout = timer.C
		}
		c.mu.Unlock()

		select {
		case <-c.readEvent:
		case <-timeout:
		case <-c.die:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// recv pulls one message of size bytes; c.mu must be held.
func (c *Conn) recv(b []byte, size int) (int, error) {
	if size <= len(b) {
		return c.kcp.Recv(b)
	}
	if cap(c.recvBuf) < size {
		c.recvBuf = make([]byte, size)
	}
	n, err := c.kcp.Recv(c.recvBuf[:size])
	if err != nil {
		return 0, err
	}
	copied := copy(b, c.recvBuf[:n])
	// the peer's mss decides the message size, grow so the tail never wraps
	if rest := n - copied; c.tail == nil || c.tail.Size() < int64(rest) {
		tail, err := circbuf.NewBuffer(int64(max(rest, IKCP_FRG_MAX*c.kcp.Mss())))
		if err != nil {
			return copied, errors.Wrap(err, "message tail buffer")
		}
		c.tail = tail
	}
	c.tail.Reset()
	c.tailOff = 0
	if _, err := c.tail.Write(c.recvBuf[copied:n]); err != nil {
		return copied, errors.Wrap(err, "buffer message tail")
	}
	return copied, nil
}

// readTail serves b from the kept rest of a message; c.mu must be held.
func (c *Conn) readTail(b []byte) (int, bool) {
	if c.tail == nil {
		return 0, false
	}
	rest := c.tail.Bytes()[c.tailOff:]
	if len(rest) == 0 {
		return 0, false
	}
	n := copy(b, rest)
	c.tailOff += n
	if c.tailOff == len(c.tail.Bytes()) {
		c.tail.Reset()
		c.tailOff = 0
	}
	return n, true
}

// Write queues b for delivery. Writes larger than one message are split.
func (c *Conn) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	if !c.wdeadline.IsZero() && time.Now().After(c.wdeadline) {
		return 0, os.ErrDeadlineExceeded
	}
	limit := IKCP_FRG_MAX * c.kcp.Mss()
	n := 0
	for len(b) > 0 {
		chunk := b[:min(len(b), limit)]
		if err := c.kcp.Send(chunk); err != nil {
			return n, err
		}
		n += len(chunk)
		b = b[len(chunk):]
	}
	return n, nil
}

func (c *Conn) Close() error {
	c.closeWithErr(net.ErrClosed)
	return nil
}

func (c *Conn) closeWithErr(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.kcp.Flush()
		c.err = err
		c.mu.Unlock()
		close(c.die)
		if c.l != nil {
			c.l.remove(c)
		} else {
			c.conn.Close()
		}
	})
}

func (c *Conn) LocalAddr() net.Addr  { return c.conn.LocalAddr() }
func (c *Conn) RemoteAddr() net.Addr { return c.remote }
func (c *Conn) Conv() uint32         { return c.kcp.Conv() }

// WaitSnd reports segments not yet acknowledged by the peer.
func (c *Conn) WaitSnd() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kcp.WaitSnd()
}

func (c *Conn) SetDeadline(t time.Time) error {
	c.mu.Lock()
	c.rdeadline = t
	c.wdeadline = t
	c.mu.Unlock()
	c.notifyRead()
	return nil
}

func (c *Conn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	c.rdeadline = t
	c.mu.Unlock()
	c.notifyRead()
	return nil
}

func (c *Conn) SetWriteDeadline(t time.Time) error {
	c.mu.Lock()
	c.wdeadline = t
	c.mu.Unlock()
	return nil
}
