// USB control transfer engine and split-transaction state machine (C6)
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package usb

import (
	"errors"
	"time"
	"unsafe"

	"github.com/kirakira-dev/kikios/arm64"
)

var (
	ErrStall           = errors.New("usb: endpoint stalled")
	ErrBabble          = errors.New("usb: babble detected")
	ErrTransactionError = errors.New("usb: transaction error")
	ErrAHBError        = errors.New("usb: AHB error")
	ErrTransferTimeout = errors.New("usb: transfer timed out")
)

// SplitFrameWait and MaxSplitNyetRetries are the §4.6.1 constants.
const (
	SplitFrameWait      = 8
	MaxSplitNyetRetries = 50
)

// Route carries the split-routing information a transfer needs: either
// the enumeration context (address 0) or a table entry's recorded
// parent hub/port.
type Route struct {
	Split      bool
	HubAddr    uint8
	HubPort    uint8
	LowSpeed   bool
}

// Transfer drives one control transfer (SETUP, optional DATA, STATUS)
// over a single host channel, per §4.6. It is the CPU that owns the
// dma cache maintenance calls described there.
type Transfer struct {
	Channel *Channel
	CPU     *arm64.CPU
	DevAddr uint8
	EP0Size uint16
	Route   Route
}

// stageResult summarizes one low-level stage's outcome.
type stageResult struct {
	err error
}

// runStage programs and runs one packet exchange (§4.6 steps 1-7),
// polling for completion, and resolves the split state machine when
// the route requires it (§4.6.1).
func (t *Transfer) runStage(buf []byte, dir bool, pid int) error {
	t.Channel.Halt()

	for {
		t.Channel.ConfigureSplit(t.Route.Split, t.Route.HubAddr, t.Route.HubPort, t.Channel.CompSplit)
		t.Channel.ConfigureEndpoint(t.DevAddr, 0, dir, EPTypeControl, t.EP0Size, t.Route.LowSpeed)

		var dmaAddr uintptr
		if len(buf) > 0 {
			dmaAddr = uintptr(unsafe.Pointer(&buf[0]))

			if !dir && t.CPU != nil {
				t.CPU.Clean(dmaAddr, len(buf))
			}
		}

		packetCount := 1
		if t.EP0Size > 0 && len(buf) > 0 {
			packetCount = (len(buf) + int(t.EP0Size) - 1) / int(t.EP0Size)
			if packetCount == 0 {
				packetCount = 1
			}
		}

		t.Channel.Program(uint32(dmaAddr), len(buf), packetCount, pid, TransferIntMask)

		outcome, err := t.pollCompletion()

		if err != nil {
			return err
		}

		if outcome == outcomeRetry {
			continue
		}

		if dir && len(buf) > 0 && t.CPU != nil {
			t.CPU.CleanInvalidate(dmaAddr, len(buf))
		}

		return nil
	}
}

type stageOutcome int

const (
	outcomeDone stageOutcome = iota
	outcomeRetry
)

// pollCompletion implements the bounded polling plus split state
// machine of §4.6 / §4.6.1.
func (t *Transfer) pollCompletion() (stageOutcome, error) {
	deadline := time.Now().Add(5 * time.Second)

	for {
		if time.Now().After(deadline) {
			return outcomeDone, ErrTransferTimeout
		}

		hcint := t.Channel.HCInt()
		if hcint == 0 {
			time.Sleep(time.Microsecond)
			continue
		}

		t.Channel.ClearHCInt(hcint)

		if hcint&HCIntXferCompl != 0 {
			t.Channel.CompSplit = false
			return outcomeDone, nil
		}

		if hcint&HCIntChHltd == 0 {
			continue
		}

		if !t.Route.Split {
			return t.classifyDirect(hcint)
		}

		return t.classifySplit(hcint)
	}
}

func (t *Transfer) classifyDirect(hcint uint32) (stageOutcome, error) {
	switch {
	case hcint&HCIntStall != 0:
		return outcomeDone, ErrStall
	case hcint&HCIntBblErr != 0:
		return outcomeDone, ErrBabble
	case hcint&HCIntXactErr != 0:
		return outcomeDone, ErrTransactionError
	case hcint&HCIntAHBErr != 0:
		return outcomeDone, ErrAHBError
	case hcint&HCIntAck != 0:
		return outcomeDone, nil
	case hcint&HCIntNak != 0:
		return outcomeRetry, nil
	default:
		return outcomeRetry, nil
	}
}

// classifySplit implements the §4.6.1 state machine's transitions for
// whichever phase (start/complete split) the channel is currently in.
func (t *Transfer) classifySplit(hcint uint32) (stageOutcome, error) {
	if !t.Channel.CompSplit {
		// StartSplit phase.
		switch {
		case hcint&(HCIntAck|HCIntNyet) != 0:
			t.Channel.CompSplit = true
			t.waitMicroframes(SplitFrameWait)
			return outcomeRetry, nil
		case hcint&HCIntNak != 0:
			t.Channel.CompSplit = false
			return outcomeRetry, nil
		default:
			return t.classifyDirect(hcint)
		}
	}

	// CompleteSplit phase.
	switch {
	case hcint&HCIntAck != 0:
		t.Channel.CompSplit = false
		return outcomeDone, nil
	case hcint&HCIntNyet != 0:
		t.Channel.NyetCount++

		if t.Channel.NyetCount >= MaxSplitNyetRetries {
			t.Channel.CompSplit = false
			t.Channel.NyetCount = 0
			return outcomeRetry, nil
		}

		t.reenableForCompleteSplit()
		return outcomeRetry, nil
	case hcint&HCIntNak != 0:
		t.Channel.CompSplit = false
		return outcomeRetry, nil
	default:
		return t.classifyDirect(hcint)
	}
}

func (t *Transfer) waitMicroframes(n int) {
	// One microframe is 125us; §4.6.1 only specifies a lower bound.
	time.Sleep(time.Duration(n) * 125 * time.Microsecond)
}

// reenableForCompleteSplit flips ODDFRM to the current frame's parity
// before re-enabling the channel, as the DWC2 scheduler requires
// (§4.6.1).
func (t *Transfer) reenableForCompleteSplit() {
	odd := t.Channel.core.FrameNum()&1 != 0
	t.Channel.SetOddFrame(odd)
	t.Channel.setHCChar(t.Channel.hcchar() | hccharChEna)
}

// dataPID returns the PID to use for the DATA stage from the toggle
// tracked on the channel; Control sets that toggle to 1 after SETUP, so
// the DATA stage of every control transfer starts with DATA1.
func (t *Transfer) dataPID() int {
	if t.Channel.DataToggle == 0 {
		return PIDData0
	}

	return PIDData1
}

// Control executes one complete control transfer: SETUP, optional
// DATA, STATUS (§4.6). in selects the DATA stage direction; data may be
// nil for a zero-data-stage request.
func (t *Transfer) Control(setup SetupData, data []byte, in bool) error {
	setupBuf := setup.Bytes()

	if err := t.runStage(setupBuf, false, PIDSetup); err != nil {
		return err
	}

	t.Channel.DataToggle = 1

	if setup.Length > 0 && data != nil {
		if err := t.runStage(data, in, t.dataPID()); err != nil {
			return err
		}

		t.Channel.DataToggle ^= 1
	}

	// STATUS stage: zero-length, opposite direction of DATA, or IN if
	// there was no DATA stage.
	statusIn := !in
	if setup.Length == 0 {
		statusIn = true
	}

	return t.runStage(nil, statusIn, PIDData1)
}
