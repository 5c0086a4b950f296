// White Screen of Death panic layout (§4.13)
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package console

// sadMac is a small ASCII-art stand-in for the classic sad-mac bitmap:
// a square face with X eyes and a frown, drawn with the console's own
// glyph font rather than a separate bitmap resource.
var sadMac = []string{
	" .--------. ",
	" |  X  X  | ",
	" |   ..   | ",
	" |  ----  | ",
	" '--------' ",
}

var tombstone = "*** KIKIOS HALTED ***"

const ekgWidth = 40

// ekgFrames are the frames of the flatline-with-a-blip waveform drawn
// along the bottom of the WSOD; RenderPanic draws frame 0 and each
// TickEKG call advances ekgPhase to the next one, giving the animated
// appearance without a second goroutine.
var ekgFrames = [2]string{
	"----------/\\----------------------------",
	"--------------/\\----------------------------",
}

// RenderPanic implements kernel.WSODRenderer: it draws the fixed WSOD
// layout using the already-formatted info lines the kernel's Reporter
// built (fault kind, FAR/ELR, fault status, process, uptime, registers,
// SP/FP/LR, and a 3-frame truncated backtrace — WSODLines truncates to
// that depth before calling here).
func (c *Console) RenderPanic(lines []string) {
	if c.hwScroll {
		c.FB.SetScrollOffset(0)
	}
	c.scrollOffset = 0

	c.SetColor(0x00000000, 0x00FFFFFF) // black on white
	c.Clear()

	row := 0

	for _, l := range sadMac {
		c.drawCentered(row, l)
		row++
	}

	row++
	c.drawCentered(row, tombstone)
	row += 2

	for _, l := range lines {
		if row >= c.rows-2 {
			break
		}

		c.SetCursor(row, 0)
		c.Puts(truncate(l, c.cols))
		row++
	}

	c.ekgPhase = 0
	c.drawEKG()
}

func (c *Console) drawCentered(row int, s string) {
	col := (c.cols - len(s)) / 2
	if col < 0 {
		col = 0
	}

	c.SetCursor(row, col)
	c.Puts(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n]
}

// drawEKG renders the current animation frame along the bottom row.
func (c *Console) drawEKG() {
	frame := ekgFrames[c.ekgPhase%len(ekgFrames)]
	c.SetCursor(c.rows-1, 0)
	c.Puts(truncate(frame, c.cols))
}

// TickEKG advances the flatline animation by one frame. Neither board
// package in this tree calls it, so the WSOD shows frame 0 unless a
// caller drives it from a timer tick.
func (c *Console) TickEKG() {
	c.ekgPhase++
	c.drawEKG()
}
