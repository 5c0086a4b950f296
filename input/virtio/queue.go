// VirtIO split virtqueue for the input event queue (C12)
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package virtio

import "unsafe"

// QueueSize is the fixed descriptor count §4.12 specifies: 16
// descriptors, each permanently bound to one event buffer.
const QueueSize = 16

// descFlagWrite marks a descriptor as device-writable (the event
// buffers the device fills in).
const descFlagWrite = 1 << 1

// desc mirrors struct virtq_desc.
type desc struct {
	addr  uint64
	len   uint32
	flags uint16
	next  uint16
}

// avail mirrors struct virtq_avail for a 16-entry ring.
type avail struct {
	flags     uint16
	idx       uint16
	ring      [QueueSize]uint16
	usedEvent uint16
}

// usedElem/used mirror struct virtq_used for a 16-entry ring.
type usedElem struct {
	id  uint32
	len uint32
}

type used struct {
	flags      uint16
	idx        uint16
	ring       [QueueSize]usedElem
	availEvent uint16
}

// inputEventSize is sizeof(virtio_input_event_t){type,code,value}: two
// u16 fields and one u32 (§4.12).
const inputEventSize = 8

// EventQueue owns the descriptor table, rings and backing event
// buffers for one virtio-input device's eventq (queue 0).
type EventQueue struct {
	descs  []desc
	avail  *avail
	used   *used
	events [][inputEventSize]byte

	lastUsedIdx uint16
}

// NewEventQueue allocates 16 descriptors, an available ring and a used
// ring (aligned, contiguous — simulated here via Go-managed backing
// arrays, matching the teacher's dma.Region-backed VirtualQueue but
// without a dma package wired into this pre-runtime driver), each
// descriptor pointing at one event buffer with F_WRITE set.
func NewEventQueue() *EventQueue {
	q := &EventQueue{
		descs:  make([]desc, QueueSize),
		avail:  &avail{},
		used:   &used{},
		events: make([][inputEventSize]byte, QueueSize),
	}

	for i := 0; i < QueueSize; i++ {
		q.descs[i] = desc{
			addr:  uint64(uintptr(unsafe.Pointer(&q.events[i][0]))),
			len:   inputEventSize,
			flags: descFlagWrite,
		}
	}

	return q
}

// MakeAllAvailable publishes every descriptor to the available ring, so
// the device can fill all 16 buffers before the driver starts draining
// (§4.12).
func (q *EventQueue) MakeAllAvailable() {
	for i := 0; i < QueueSize; i++ {
		q.avail.ring[i] = uint16(i)
	}

	q.avail.idx = QueueSize
}

func (q *EventQueue) addresses() (descAddr, availAddr, usedAddr uintptr) {
	return uintptr(unsafe.Pointer(&q.descs[0])), uintptr(unsafe.Pointer(q.avail)), uintptr(unsafe.Pointer(q.used))
}

// Event holds one decoded virtio_input_event_t.
type Event struct {
	Type  uint16
	Code  uint16
	Value uint32
}

func decodeEvent(b [inputEventSize]byte) Event {
	return Event{
		Type:  uint16(b[0]) | uint16(b[1])<<8,
		Code:  uint16(b[2]) | uint16(b[3])<<8,
		Value: uint32(b[4]) | uint32(b[5])<<8 | uint32(b[6])<<16 | uint32(b[7])<<24,
	}
}

// Poll walks the used ring from lastUsedIdx forward, returning every
// newly completed event and re-publishing its descriptor to the
// available ring so the device can reuse the buffer.
func (q *EventQueue) Poll() []Event {
	var events []Event

	for q.lastUsedIdx != q.used.idx {
		elem := q.used.ring[q.lastUsedIdx%QueueSize]
		events = append(events, decodeEvent(q.events[elem.id]))

		q.avail.ring[q.avail.idx%QueueSize] = uint16(elem.id)
		q.avail.idx++

		q.lastUsedIdx++
	}

	return events
}
