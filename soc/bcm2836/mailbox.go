// BCM2836 VideoCore mailbox
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package bcm2836

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/kirakira-dev/kikios/internal/reg"
)

// Mailbox property-tag channel, and the well-known tag IDs used by the
// SDHCI and framebuffer drivers (§4.9, §4.11).
const (
	ChPropertyTagsToVC = 8

	TagSetPowerState = 0x28001
	TagGetClockRate  = 0x30002
	TagAllocBuffer   = 0x40001
	TagSetPhysicalWH = 0x48003
	TagSetVirtualWH  = 0x48004
	TagSetDepth      = 0x48005
	TagSetVirtualOff = 0x48009
	TagGetPitch      = 0x40008

	DeviceSD = 0

	mailboxBase      = 0xB880
	mailboxReadReg   = mailboxBase + 0x00
	mailboxStatusReg = mailboxBase + 0x18
	mailboxWriteReg  = mailboxBase + 0x20
	mailboxFull      = 0x80000000
	mailboxEmpty     = 0x40000000
)

// mailboxScratch is a fixed, 16-byte aligned scratch buffer used to
// exchange property-tag messages with the VideoCore. It must live outside
// of the Go heap's normal bookkeeping since its address is handed to a
// non-cache-coherent peer; KikiOS runs with no MMU so the address handed
// to the VC is simply this array's own address with the VC alias bit set.
var mailboxScratch [256]byte

var mailboxMu sync.Mutex

// Tag is a single property-tag request/response pair.
type Tag struct {
	ID     uint32
	Buffer []byte
}

// Message is a VideoCore property-tag mailbox exchange.
type Message struct {
	Code uint32
	Tags []Tag
}

// Tag returns the response tag matching id, or nil.
func (m *Message) Tag(id uint32) *Tag {
	for i := range m.Tags {
		if m.Tags[i].ID&0x7fffffff == id&0x7fffffff {
			return &m.Tags[i]
		}
	}

	return nil
}

// Call exchanges message over channel, replacing message.Tags with the
// VideoCore's response.
func Call(channel int, message *Message) error {
	size := 8

	for _, tag := range message.Tags {
		size += 12 + int((uint32(len(tag.Buffer))+3)&^3)
	}

	size += 4

	if size > len(mailboxScratch) {
		return fmt.Errorf("bcm2836: mailbox message too large (%d bytes)", size)
	}

	buf := mailboxScratch[:size]

	binary.LittleEndian.PutUint32(buf[0:], uint32(size))
	binary.LittleEndian.PutUint32(buf[4:], 0)

	offset := 8
	for _, tag := range message.Tags {
		binary.LittleEndian.PutUint32(buf[offset:], tag.ID)
		binary.LittleEndian.PutUint32(buf[offset+4:], uint32(len(tag.Buffer)))
		binary.LittleEndian.PutUint32(buf[offset+8:], 0)
		copy(buf[offset+12:], tag.Buffer)
		offset += 12 + int((uint32(len(tag.Buffer))+3)&^3)
	}

	binary.LittleEndian.PutUint32(buf[offset:], 0)

	addr := uint32(uintptr(unsafe.Pointer(&mailboxScratch[0])))

	if err := exchange(channel, BusAddress(addr)); err != nil {
		return err
	}

	message.Tags = message.Tags[:0]
	message.Code = binary.LittleEndian.Uint32(buf[4:])
	offset = 8

	for offset < size {
		var tag Tag

		tag.ID = binary.LittleEndian.Uint32(buf[offset:])
		if tag.ID == 0 {
			break
		}

		n := binary.LittleEndian.Uint32(buf[offset+4:])
		if int(n) > size-offset {
			return fmt.Errorf("bcm2836: malformed mailbox response")
		}

		tag.Buffer = append([]byte(nil), buf[offset+12:offset+12+int(n)]...)
		message.Tags = append(message.Tags, tag)
		offset += 12 + int((n+3)&^3)
	}

	return nil
}

func exchange(channel int, addr uint32) error {
	mailboxMu.Lock()
	defer mailboxMu.Unlock()

	deadline := time.Now().Add(time.Second)

	for reg.Read(PeripheralAddress(mailboxStatusReg))&mailboxFull != 0 {
		if time.Now().After(deadline) {
			return fmt.Errorf("bcm2836: mailbox full")
		}
	}

	reg.Write(PeripheralAddress(mailboxWriteReg), uint32(channel&0xf)|(addr&0xfffffff0))

	deadline = time.Now().Add(time.Second)

	for {
		for reg.Read(PeripheralAddress(mailboxStatusReg))&mailboxEmpty != 0 {
			if time.Now().After(deadline) {
				return fmt.Errorf("bcm2836: mailbox response timeout")
			}
		}

		data := reg.Read(PeripheralAddress(mailboxReadReg))

		if int(data&0xf) == channel&0xf {
			return nil
		}
	}
}
