// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package virtio

import "testing"

// pushUsed simulates the device completing descriptor id with the given
// event bytes, for tests that can't drive real virtio-mmio hardware.
func pushUsed(q *EventQueue, id uint32, ev Event) {
	q.events[id] = encodeEvent(ev)
	q.used.ring[q.used.idx%QueueSize] = usedElem{id: id, len: inputEventSize}
	q.used.idx++
}

func encodeEvent(ev Event) [inputEventSize]byte {
	var b [inputEventSize]byte
	b[0] = byte(ev.Type)
	b[1] = byte(ev.Type >> 8)
	b[2] = byte(ev.Code)
	b[3] = byte(ev.Code >> 8)
	b[4] = byte(ev.Value)
	b[5] = byte(ev.Value >> 8)
	b[6] = byte(ev.Value >> 16)
	b[7] = byte(ev.Value >> 24)
	return b
}

func TestEventQueuePollReturnsNewlyCompletedEvents(t *testing.T) {
	q := NewEventQueue()
	q.MakeAllAvailable()

	pushUsed(q, 0, Event{Type: evKey, Code: 30, Value: 1})
	pushUsed(q, 1, Event{Type: evKey, Code: 30, Value: 0})

	events := q.Poll()

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	if events[0].Code != 30 || events[0].Value != 1 {
		t.Errorf("unexpected first event: %+v", events[0])
	}

	if more := q.Poll(); len(more) != 0 {
		t.Fatalf("expected no more events after drain, got %v", more)
	}
}

func TestEventQueuePollRepublishesDescriptors(t *testing.T) {
	q := NewEventQueue()
	q.MakeAllAvailable()

	availBefore := q.avail.idx

	pushUsed(q, 3, Event{Type: evKey, Code: 1, Value: 1})
	q.Poll()

	if q.avail.idx != availBefore+1 {
		t.Fatalf("expected avail.idx to advance by 1, got %d -> %d", availBefore, q.avail.idx)
	}

	if q.avail.ring[(availBefore)%QueueSize] != 3 {
		t.Errorf("expected descriptor 3 republished, got %d", q.avail.ring[availBefore%QueueSize])
	}
}
