package kcp

import (
	"fmt"
	"sync/atomic"
)

// Snmp holds process-wide protocol counters.
type Snmp struct {
	BytesSent       uint64 // payload bytes handed to Send
	BytesReceived   uint64 // payload bytes returned by Recv
	InPkts          uint64 // packets passed to Input
	OutPkts         uint64 // packets handed to the output sink
	InSegs          uint64
	OutSegs         uint64
	InErrs          uint64 // packets rejected by Input
	RepeatSegs      uint64 // duplicate PUSH segments
	RetransSegs     uint64 // all retransmissions
	FastRetransSegs uint64
	LostSegs        uint64 // timeouts
	DeadLinks       uint64
}

var DefaultSnmp = &Snmp{}

func (s *Snmp) Header() []string {
	return []string{
		"BytesSent",
		"BytesReceived",
		"InPkts",
		"OutPkts",
		"InSegs",
		"OutSegs",
		"InErrs",
		"RepeatSegs",
		"RetransSegs",
		"FastRetransSegs",
		"LostSegs",
		"DeadLinks",
	}
}

func (s *Snmp) ToSlice() []string {
	snmp := s.Copy()
	return []string{
		fmt.Sprint(snmp.BytesSent),
		fmt.Sprint(snmp.BytesReceived),
		fmt.Sprint(snmp.InPkts),
		fmt.Sprint(snmp.OutPkts),
		fmt.Sprint(snmp.InSegs),
		fmt.Sprint(snmp.OutSegs),
		fmt.Sprint(snmp.InErrs),
		fmt.Sprint(snmp.RepeatSegs),
		fmt.Sprint(snmp.RetransSegs),
		fmt.Sprint(snmp.FastRetransSegs),
		fmt.Sprint(snmp.LostSegs),
		fmt.Sprint(snmp.DeadLinks),
	}
}

// Copy takes an atomic snapshot.
func (s *Snmp) Copy() *Snmp {
	d := &Snmp{}
	d.BytesSent = atomic.LoadUint64(&s.BytesSent)
	d.BytesReceived = atomic.LoadUint64(&s.BytesReceived)
	d.InPkts = atomic.LoadUint64(&s.InPkts)
	d.OutPkts = atomic.LoadUint64(&s.OutPkts)
	d.InSegs = atomic.LoadUint64(&s.InSegs)
	d.OutSegs = atomic.LoadUint64(&s.OutSegs)
	d.InErrs = atomic.LoadUint64(&s.InErrs)
	d.RepeatSegs = atomic.LoadUint64(&s.RepeatSegs)
	d.RetransSegs = atomic.LoadUint64(&s.RetransSegs)
	d.FastRetransSegs = atomic.LoadUint64(&s.FastRetransSegs)
	d.LostSegs = atomic.LoadUint64(&s.LostSegs)
	d.DeadLinks = atomic.LoadUint64(&s.DeadLinks)
	return d
}

func (s *Snmp) Reset() {
	atomic.StoreUint64(&s.BytesSent, 0)
	atomic.StoreUint64(&s.BytesReceived, 0)
	atomic.StoreUint64(&s.InPkts, 0)
	atomic.StoreUint64(&s.OutPkts, 0)
	atomic.StoreUint64(&s.InSegs, 0)
	atomic.StoreUint64(&s.OutSegs, 0)
	atomic.StoreUint64(&s.InErrs, 0)
	atomic.StoreUint64(&s.RepeatSegs, 0)
	atomic.StoreUint64(&s.RetransSegs, 0)
	atomic.StoreUint64(&s.FastRetransSegs, 0)
	atomic.StoreUint64(&s.LostSegs, 0)
	atomic.StoreUint64(&s.DeadLinks, 0)
}
