package kcp

import (
	"cmp"

	"github.com/pkg/errors"
)

// itimediff returns later-earlier as a signed 32-bit value, so that
// sequence numbers and timestamps compare correctly across wraparound.
func itimediff(later, earlier uint32) int32 {
	return int32(later - earlier)
}

func bound[T cmp.Ordered](lower, middle, upper T) T {
	return min(max(lower, middle), upper)
}

var (
	// send side
	ErrInvalidInput     = errors.New("kcp: empty send")
	ErrTooManyFragments = errors.New("kcp: too many fragments")

	// receive side, all recoverable
	ErrNoData         = errors.New("kcp: receive queue is empty")
	ErrNotReady       = errors.New("kcp: message not fully received")
	ErrBufferTooSmall = errors.New("kcp: buffer too small for message")

	// input side, the packet is dropped
	ErrConvMismatch   = errors.New("kcp: conversation id mismatch")
	ErrTruncated      = errors.New("kcp: truncated segment")
	ErrUnknownCommand = errors.New("kcp: unknown command")

	ErrDeadLink   = errors.New("kcp: dead link")
	ErrMtuInvalid = errors.New("kcp: mtu is invalid")
)
