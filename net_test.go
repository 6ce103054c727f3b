package kcp

import (
	"bytes"
	"io"
	"net"
	"os"
	"testing"
	"time"

	"github.com/pkg/errors"
)

var (
	_ net.Conn     = (*Conn)(nil)
	_ net.Listener = (*Listener)(nil)
)

func echoServer(t *testing.T) *Listener {
	t.Helper()
	l, err := ListenWithConfig("udp", "127.0.0.1:0", FastestConfig())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	go func() {
		for {
			c, err := l.AcceptKCP()
			if err != nil {
				return
			}
			go func() {
				defer c.Close()
				buf := make([]byte, IKCP_FRG_MAX*IKCP_MTU_DEF)
				for {
					n, err := c.Read(buf)
					if err != nil {
						return
					}
					if _, err := c.Write(buf[:n]); err != nil {
						return
					}
				}
			}()
		}
	}()
	return l
}

func dial(t *testing.T, l *Listener) *Conn {
	t.Helper()
	c, err := DialWithConfig("udp", l.Addr().String(), FastestConfig())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestEcho(t *testing.T) {
	l := echoServer(t)
	c := dial(t, l)
	c.SetReadDeadline(time.Now().Add(5 * time.Second))

	buf := make([]byte, 64)
	for i := 0; i < 10; i++ {
		msg := []byte{'m', 's', 'g', byte('0' + i)}
		if _, err := c.Write(msg); err != nil {
			t.Fatal(err)
		}
		n, err := c.Read(buf)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(buf[:n], msg) {
			t.Fatalf("got %q, want %q", buf[:n], msg)
		}
	}
}

func TestLargeMessageSmallReads(t *testing.T) {
	l := echoServer(t)
	c := dial(t, l)
	c.SetReadDeadline(time.Now().Add(10 * time.Second))

	msg := pattern(100000)
	if _, err := c.Write(msg); err != nil {
		t.Fatal(err)
	}
	got := make([]byte, 0, len(msg))
	buf := make([]byte, 1000)
	for len(got) < len(msg) {
		n, err := c.Read(buf)
		if err != nil {
			t.Fatalf("after %d bytes: %v", len(got), err)
		}
		got = append(got, buf[:n]...)
	}
	if !bytes.Equal(got, msg) {
		t.Fatal("message corrupted")
	}
}

func TestPeerWithLargerMtu(t *testing.T) {
	l, err := ListenWithConfig("udp", "127.0.0.1:0", FastestConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	msg := pattern(IKCP_FRG_MAX * (IKCP_MTU_DEF - IKCP_OVERHEAD))
	go func() {
		s, err := l.AcceptKCP()
		if err != nil {
			return
		}
		s.Write(msg)
	}()

	config := FastestConfig()
	config.MTU = 200
	c, err := DialWithConfig("udp", l.Addr().String(), config)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	c.SetReadDeadline(time.Now().Add(10 * time.Second))
	if _, err := c.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}

	// the message is far larger than 255 local segments
	got := make([]byte, 0, len(msg))
	buf := make([]byte, 1000)
	for len(got) < len(msg) {
		n, err := c.Read(buf)
		if err != nil {
			t.Fatalf("after %d of %d bytes: %v", len(got), len(msg), err)
		}
		got = append(got, buf[:n]...)
	}
	if !bytes.Equal(got, msg) {
		t.Fatal("message corrupted")
	}
}

func TestReadDeadline(t *testing.T) {
	l := echoServer(t)
	c := dial(t, l)
	c.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	start := time.Now()
	if _, err := c.Read(make([]byte, 16)); !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Fatalf("got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("deadline fired late")
	}

	c.SetWriteDeadline(time.Now().Add(-time.Second))
	if _, err := c.Write([]byte("late")); !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Errorf("write: got %v", err)
	}
}

func TestCloseUnblocksRead(t *testing.T) {
	l := echoServer(t)
	c := dial(t, l)
	done := make(chan error, 1)
	go func() {
		_, err := c.Read(make([]byte, 16))
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	c.Close()
	select {
	case err := <-done:
		if !errors.Is(err, net.ErrClosed) {
			t.Errorf("got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("read still blocked after close")
	}
	if _, err := c.Write([]byte("x")); !errors.Is(err, net.ErrClosed) {
		t.Errorf("write after close: %v", err)
	}
}

func TestListenerClose(t *testing.T) {
	l := echoServer(t)
	c := dial(t, l)
	c.SetReadDeadline(time.Now().Add(5 * time.Second))
	c.Write([]byte("ping"))
	if _, err := io.ReadAtLeast(c, make([]byte, 16), 4); err != nil {
		t.Fatal(err)
	}
	l.Close()
	if _, err := l.Accept(); err == nil {
		t.Error("accept after close")
	}
}
