// Exception / panic display wiring (C13)
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package kernel

import (
	"fmt"
	"time"

	"github.com/kirakira-dev/kikios/arm64"
	"github.com/kirakira-dev/kikios/hal"
)

// WSODRenderer draws the White Screen of Death's fixed layout (§4.13):
// sad-mac bitmap, tombstone banner, two-column fault info, registers,
// truncated backtrace and EKG flatline. console.Console implements this;
// kernel never imports console directly to avoid a console->kernel (heap,
// kapi) import cycle.
type WSODRenderer interface {
	RenderPanic(lines []string)
}

// backtraceDepth and wsodBacktraceDepth are the two depths §4.13 asks
// for: up to 10 frames on serial, truncated to 3 on the framebuffer.
const (
	backtraceDepth     = 10
	wsodBacktraceDepth = 3
)

// Reporter renders a trapped exception to both the serial console and,
// if available, the framebuffer (§4.13).
type Reporter struct {
	CPU       *arm64.CPU
	Serial    hal.Serial
	FB        WSODRenderer
	Scheduler *Scheduler
	Clock     UptimeClock

	// InRAM reports whether a candidate frame pointer lies within a
	// known RAM range; required by Backtrace to bound the walk.
	InRAM func(uint64) bool
}

func (r *Reporter) currentProcessName() string {
	if r.Scheduler == nil {
		return "kernel"
	}

	p := r.Scheduler.Current()
	if p == nil {
		return "kernel"
	}

	return p.Name
}

func (r *Reporter) annotate(addr uint64) string {
	if r.Scheduler != nil {
		if p := r.Scheduler.Current(); p != nil && p.InLoadWindow(addr) {
			return fmt.Sprintf("(%s + %#x)", p.Name, addr-uint64(p.LoadBase))
		}
	}

	return fmt.Sprintf("(kernel + %#x)", addr)
}

func (r *Reporter) backtrace(info arm64.Info, depth int) []uint64 {
	if r.InRAM == nil || info.Frame == nil {
		return nil
	}

	return arm64.Backtrace(info.Frame.FP, depth, r.InRAM)
}

func (r *Reporter) putString(s string) {
	if r.Serial == nil {
		return
	}

	for i := 0; i < len(s); i++ {
		r.Serial.Putc(s[i])
	}
}

// SerialBanner builds the framed serial banner lines for info (§4.13),
// with no side effects — split out from Handle so it can be exercised
// without parking the core.
func (r *Reporter) SerialBanner(info arm64.Info) []string {
	proc := r.currentProcessName()
	uptime := r.Clock.Uptime()

	lines := []string{
		"================ EXCEPTION ================",
		fmt.Sprintf("kind:    %s", info.Kind),
		fmt.Sprintf("FAR:     %#016x", info.FAR),
		fmt.Sprintf("ELR:     %#016x", info.ELR),
		fmt.Sprintf("ESR:     %#016x", info.ESR),
		fmt.Sprintf("fault:   %s", arm64.FaultStatus(info.ESR)),
		fmt.Sprintf("access:  write=%v", arm64.IsWrite(info.ESR)),
		fmt.Sprintf("process: %s", proc),
		fmt.Sprintf("uptime:  %s", uptime),
	}

	if info.Frame != nil {
		lines = append(lines,
			fmt.Sprintf("x0-x7:   %016x %016x %016x %016x %016x %016x %016x %016x",
				info.Frame.X[0], info.Frame.X[1], info.Frame.X[2], info.Frame.X[3],
				info.Frame.X[4], info.Frame.X[5], info.Frame.X[6], info.Frame.X[7]),
			fmt.Sprintf("sp/fp/lr: %#016x %#016x %#016x", info.Frame.SP, info.Frame.FP, info.Frame.LR),
		)
	}

	bt := r.backtrace(info, backtraceDepth)

	lines = append(lines, "backtrace:")
	for _, addr := range bt {
		lines = append(lines, fmt.Sprintf("  %#016x %s", addr, r.annotate(addr)))
	}

	lines = append(lines, "=============================================")

	return lines
}

// WSODLines builds the truncated, framebuffer-sized summary (§4.13: a
// 3-frame backtrace rather than serial's 10).
func (r *Reporter) WSODLines(info arm64.Info) []string {
	proc := r.currentProcessName()
	uptime := r.Clock.Uptime()

	wsod := []string{
		fmt.Sprintf("%s", info.Kind),
		fmt.Sprintf("fault %#x  return %#x", info.FAR, info.ELR),
		fmt.Sprintf("%s  proc=%s  up=%s", arm64.FaultStatus(info.ESR), proc, uptime),
	}

	bt := r.backtrace(info, wsodBacktraceDepth)

	for _, addr := range bt {
		wsod = append(wsod, fmt.Sprintf("%#016x %s", addr, r.annotate(addr)))
	}

	return wsod
}

// Handle is the function installed as arm64.SyncHandler / SErrorHandler /
// FIQHandler at boot. It renders the framed serial banner, the WSOD (if a
// framebuffer is wired), then masks interrupts and parks the core
// forever.
func (r *Reporter) Handle(info arm64.Info) {
	for _, l := range r.SerialBanner(info) {
		r.putString(l)
		r.putString("\n")
	}

	if r.FB != nil {
		r.FB.RenderPanic(r.WSODLines(info))
	}

	r.Halt()
}

// Halt masks interrupts and parks the core forever. Split out from Handle
// so tests can exercise the rendering path without hanging.
func (r *Reporter) Halt() {
	if r.CPU != nil {
		r.CPU.DisableInterrupts()

		for {
			r.CPU.WaitInterrupt()
		}
	}

	for {
		time.Sleep(time.Hour)
	}
}
