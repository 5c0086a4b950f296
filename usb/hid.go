// USB HID ISR pipeline (C8)
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package usb

import (
	"sync/atomic"
	"unsafe"

	"github.com/kirakira-dev/kikios/arm64"
)

// KeyboardRingSize and MouseRingSize are the single-producer/single-
// consumer HID report ring capacities §3.4 mandates per device class —
// the mouse gets double the keyboard's, since its reports arrive at a
// higher rate and a dropped button edge is more noticeable than a
// dropped key repeat. Ordering relies on memory-barrier-ordered writes
// to head, not a lock (§5).
const (
	KeyboardRingSize = 16
	MouseRingSize    = 32
)

// ReportRing is the lock-free ring the ISR (writer) and the kernel
// thread (reader) share. Its capacity is fixed at construction by
// newReportRing; the zero value has no slots and must not be used
// directly.
type ReportRing struct {
	reports [][8]byte
	head    uint32
	tail    uint32
}

func newReportRing(size int) ReportRing {
	return ReportRing{reports: make([][8]byte, size)}
}

// Push is called only from the ISR context; it never blocks. When the
// ring is full the incoming report is dropped and the oldest unread
// report at tail is left intact (§3.4, §8).
func (r *ReportRing) Push(report []byte) {
	size := uint32(len(r.reports))
	head := r.head

	if head-atomic.LoadUint32(&r.tail) >= size {
		return
	}

	var buf [8]byte
	copy(buf[:], report)

	r.reports[head%size] = buf
	atomic.StoreUint32(&r.head, head+1)
}

// Pop is called only from the kernel thread. Returns ok=false when the
// ring is empty.
func (r *ReportRing) Pop() (report [8]byte, ok bool) {
	tail := r.tail

	if tail == atomic.LoadUint32(&r.head) {
		return report, false
	}

	report = r.reports[tail%uint32(len(r.reports))]
	atomic.StoreUint32(&r.tail, tail+1)

	return report, true
}

// watchdogTicks is how many 10ms timer ticks a pending transfer may run
// without progress before the watchdog force-restarts it (§4.8: 5
// ticks == 50ms).
const watchdogTicks = 5

// Poller drives one long-lived interrupt-IN channel (keyboard or
// mouse), per §4.8.
type Poller struct {
	Channel  *Channel
	DevAddr  uint8
	Endpoint EndpointDescriptor
	Route    Route
	CPU      *arm64.CPU

	Ring ReportRing

	buf []byte // 64-byte aligned DMA buffer

	pendingTicks int

	// Observability counters (§4.8).
	DataEvents   uint64
	NakCount     uint64
	NyetCount    uint64
	ErrorCount   uint64
	RestartCount uint64
	WatchdogKicks uint64
}

// NewPoller allocates the poller's 64-byte-aligned DMA buffer sized to
// the endpoint's max packet size, with a report ring of ringSize slots
// (KeyboardRingSize or MouseRingSize, per §3.4).
func NewPoller(ch *Channel, devAddr uint8, ep EndpointDescriptor, route Route, cpu *arm64.CPU, ringSize int) *Poller {
	size := int(ep.MaxPacketSize)
	if size == 0 {
		size = 8
	}

	// Over-allocate by 63 bytes to guarantee a 64-byte-aligned slice
	// start without a custom allocator; callers on real hardware should
	// instead draw this from the heap with an alignment-aware Malloc.
	raw := make([]byte, size+63)
	start := (uintptr(unsafe.Pointer(&raw[0])) + 63) &^ 63
	offset := int(start - uintptr(unsafe.Pointer(&raw[0])))

	return &Poller{
		Channel:  ch,
		DevAddr:  devAddr,
		Endpoint: ep,
		Route:    route,
		CPU:      cpu,
		Ring:     newReportRing(ringSize),
		buf:      raw[offset : offset+size],
	}
}

// Start configures HCCHAR and HCINTMSK and kicks off the first transfer
// (§4.8 "Start / restart").
func (p *Poller) Start() {
	p.Channel.ConfigureEndpoint(p.DevAddr, p.Endpoint.Number(), true, EPTypeInterrupt, p.Endpoint.MaxPacketSize, p.Route.LowSpeed)
	p.Channel.ConfigureSplit(p.Route.Split, p.Route.HubAddr, p.Route.HubPort, false)

	odd := p.Channel.core.FrameNum()&1 != 0
	p.Channel.SetOddFrame(odd)

	for i := range p.buf {
		p.buf[i] = 0
	}

	if p.CPU != nil {
		p.CPU.CleanInvalidate(uintptr(unsafe.Pointer(&p.buf[0])), len(p.buf))
	}

	pid := PIDData0
	if p.Channel.DataToggle == 1 {
		pid = PIDData1
	}

	p.Channel.Program(uint32(uintptr(unsafe.Pointer(&p.buf[0]))), len(p.buf), 1, pid, HIDIntMask)
	p.pendingTicks = 0
}

// HandleIRQ runs the §4.8 ISR body for one channel interrupt. It must
// not block or allocate.
func (p *Poller) HandleIRQ() {
	hcint := p.Channel.HCInt()
	p.Channel.ClearHCInt(hcint)

	switch {
	case hcint&HCIntXferCompl != 0:
		p.onDataComplete()
	case hcint&HCIntChHltd != 0:
		p.onHalted(hcint)
	}

	p.Start()
}

func (p *Poller) onDataComplete() {
	p.Channel.DataToggle ^= 1

	if p.CPU != nil {
		p.CPU.CleanInvalidate(uintptr(unsafe.Pointer(&p.buf[0])), len(p.buf))
	}

	p.Ring.Push(p.buf)
	p.DataEvents++
}

func (p *Poller) onHalted(hcint uint32) {
	if p.Route.Split {
		p.onHaltedSplit(hcint)
		return
	}

	switch {
	case hcint&HCIntAck != 0:
		p.onDataComplete()
	case hcint&HCIntNak != 0:
		// Idle — no data yet, nothing to do.
	case hcint&(HCIntStall|HCIntXactErr|HCIntBblErr) != 0:
		p.ErrorCount++
	}
}

func (p *Poller) onHaltedSplit(hcint uint32) {
	switch {
	case hcint&HCIntNyet != 0:
		p.NyetCount++

		if p.NyetCount >= MaxSplitNyetRetries {
			p.Channel.CompSplit = false
			p.NyetCount = 0
		}
	case hcint&HCIntNak != 0:
		p.Channel.CompSplit = false
		p.NakCount++
	case hcint&(HCIntXactErr|HCIntBblErr) != 0:
		p.ErrorCount++
	default:
		p.Channel.CompSplit = true
	}
}

// Tick is driven at 10ms from the platform timer tick. It implements
// the §4.8 watchdog: force-disable and restart a channel whose transfer
// has been pending 5 ticks without progress.
func (p *Poller) Tick() {
	p.pendingTicks++

	if p.pendingTicks < watchdogTicks {
		return
	}

	p.Channel.Halt()
	p.Channel.CompSplit = false
	p.NyetCount = 0
	p.RestartCount++
	p.WatchdogKicks++

	p.Start()
}
