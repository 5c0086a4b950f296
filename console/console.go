// Framebuffer text console (C11)
// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package console implements the line-buffered glyph console §4.11
// describes: writes accumulate into a small cached-RAM scratch buffer
// and flush to the framebuffer a row at a time, hardware or software
// scroll, a blinking XOR cursor, and the White Screen of Death panic
// layout (§4.13) the kernel renders through via kernel.WSODRenderer.
package console

import (
	"fmt"
	"unsafe"

	"github.com/kirakira-dev/kikios/hal"
)

// LineBufWidth bounds the scratch buffer's column span in pixels; a
// framebuffer wider than this still works, since Init limits the text
// grid to LineBufWidth/FontWidth columns, and flushing happens per actual
// min_col/max_col span which is always <= Cols()*FontWidth.
const LineBufWidth = 1024

const tabStop = 8

// Console is a framebuffer-backed text terminal, built against the
// hal.Framebuffer and hal.DMA contracts so it runs unmodified on both
// board/qemu and board/pi.
type Console struct {
	FB  hal.Framebuffer
	DMA hal.DMA

	info hal.FramebufferInfo

	rows, cols     int
	cursorRow, col int
	fg, bg         uint32

	scrollOffset int
	hwScroll     bool

	cursorOn bool
	ekgPhase int

	// scratch is the LINE_BUF_WIDTH x FONT_HEIGHT line buffer (§4.11)
	// characters are rendered into before a row flush.
	scratch      [LineBufWidth * FontHeight]uint32
	scratchRow   int
	scratchMin   int
	scratchMax   int
	scratchDirty bool
}

// Init configures the framebuffer at width x height and derives the
// text grid from the glyph cell size.
func (c *Console) Init(width, height int) error {
	info, err := c.FB.Init(width, height)
	if err != nil {
		return err
	}

	c.info = info
	c.cols = width / FontWidth
	if c.cols > LineBufWidth/FontWidth {
		c.cols = LineBufWidth / FontWidth
	}
	c.rows = height / FontHeight
	c.fg = 0x00FFFFFF
	c.bg = 0x00000000
	c.hwScroll = c.FB.VirtualHeight() >= 2*height

	c.Clear()

	return nil
}

func (c *Console) Rows() int { return c.rows }
func (c *Console) Cols() int { return c.cols }

func (c *Console) SetColor(fg, bg uint32) {
	c.fg = fg & 0x00FFFFFF
	c.bg = bg & 0x00FFFFFF
}

// pixelAddr returns the framebuffer address of pixel (x, y) within the
// currently scrolled virtual origin.
func (c *Console) pixelAddr(x, yVirtual int) uintptr {
	return c.info.Base + uintptr(yVirtual)*uintptr(c.info.Pitch) + uintptr(x)*4
}

func (c *Console) writePixel(x, yVirtual int, v uint32) {
	p := (*uint32)(unsafe.Pointer(c.pixelAddr(x, yVirtual)))
	*p = v
}

// Clear fills the whole framebuffer with bg and resets cursor/scroll
// state to the top-left.
func (c *Console) Clear() {
	c.scrollOffset = 0
	c.ClearRegion(0, c.rows-1)

	c.cursorRow = 0
	c.col = 0
	c.scratchDirty = false

	if c.hwScroll {
		c.FB.SetScrollOffset(0)
	}
}

// ClearRegion fills rows row0..row1 inclusive with bg.
func (c *Console) ClearRegion(row0, row1 int) {
	if row0 < 0 {
		row0 = 0
	}
	if row1 >= c.rows {
		row1 = c.rows - 1
	}

	y0 := c.scrollOffset + row0*FontHeight
	height := (row1 - row0 + 1) * FontHeight
	width := c.cols * FontWidth

	if c.DMA != nil && c.DMA.Available() {
		c.DMA.Fill(c.pixelAddr(0, y0), c.bg, width*height*4)
		return
	}

	for y := y0; y < y0+height; y++ {
		for x := 0; x < width; x++ {
			c.writePixel(x, y, c.bg)
		}
	}
}

// ClearToEOL clears from the cursor's current column to the end of its
// row, at the cursor's row.
func (c *Console) ClearToEOL() {
	y0 := c.scrollOffset + c.cursorRow*FontHeight
	x0 := c.col * FontWidth
	width := (c.cols - c.col) * FontWidth

	if width <= 0 {
		return
	}

	if c.DMA != nil && c.DMA.Available() {
		for y := y0; y < y0+FontHeight; y++ {
			c.DMA.Fill(c.pixelAddr(x0, y), c.bg, width*4)
		}
		return
	}

	for y := y0; y < y0+FontHeight; y++ {
		for x := x0; x < x0+width; x++ {
			c.writePixel(x, y, c.bg)
		}
	}
}

func (c *Console) SetCursor(row, col int) {
	c.flushScratch()

	if row < 0 {
		row = 0
	}
	if row >= c.rows {
		row = c.rows - 1
	}
	if col < 0 {
		col = 0
	}
	if col >= c.cols {
		col = c.cols - 1
	}

	c.cursorRow = row
	c.col = col
}

// Puts writes every byte of s through Putc.
func (c *Console) Puts(s string) {
	for i := 0; i < len(s); i++ {
		c.Putc(s[i])
	}
}

// Putc handles the three control bytes §4.11 names and otherwise
// renders c into the line buffer, flushing and advancing as needed.
func (c *Console) Putc(b byte) {
	switch b {
	case '\r':
		c.flushScratch()
		c.col = 0
		return
	case '\n':
		c.newline()
		return
	case '\t':
		c.flushScratch()
		c.col = ((c.col / tabStop) + 1) * tabStop
		if c.col >= c.cols {
			c.newline()
		}
		return
	case '\b':
		c.flushScratch()
		if c.col > 0 {
			c.col--
		}
		return
	}

	if c.col >= c.cols {
		c.newline()
	}

	c.renderIntoScratch(b)
	c.col++

	if c.col >= c.cols {
		c.flushScratch()
	}
}

// renderIntoScratch draws glyph b into the LINE_BUF_WIDTH line buffer at
// the cursor's current row/col, flushing first if the cursor has moved
// to a different row than what's buffered.
func (c *Console) renderIntoScratch(b byte) {
	if c.scratchDirty && c.scratchRow != c.cursorRow {
		c.flushScratch()
	}

	freshRun := !c.scratchDirty

	c.scratchRow = c.cursorRow
	c.scratchDirty = true

	x0 := c.col * FontWidth

	if freshRun {
		c.scratchMin = x0
		c.scratchMax = x0 + FontWidth - 1
	} else {
		if x0 < c.scratchMin {
			c.scratchMin = x0
		}
		if x0+FontWidth-1 > c.scratchMax {
			c.scratchMax = x0 + FontWidth - 1
		}
	}

	glyph := Glyph(b)

	for row := 0; row < FontHeight; row++ {
		bits := glyph[row]
		for col := 0; col < FontWidth; col++ {
			v := c.bg
			if bits&(0x80>>uint(col)) != 0 {
				v = c.fg
			}
			c.scratch[row*LineBufWidth+x0+col] = v
		}
	}
}

// flushScratch copies the buffered (max_col-min_col+1) x FONT_HEIGHT
// rectangle to the framebuffer, via DMA copy_2d when available.
func (c *Console) flushScratch() {
	if !c.scratchDirty {
		return
	}

	width := c.scratchMax - c.scratchMin + 1
	y0 := c.scrollOffset + c.scratchRow*FontHeight

	if c.DMA != nil && c.DMA.Available() {
		srcRow := unsafe.Pointer(&c.scratch[c.scratchMin])
		c.DMA.Copy2D(c.pixelAddr(c.scratchMin, y0), c.info.Pitch, uintptr(srcRow), LineBufWidth*4, width*4, FontHeight)
	} else {
		for row := 0; row < FontHeight; row++ {
			for col := 0; col < width; col++ {
				c.writePixel(c.scratchMin+col, y0+row, c.scratch[row*LineBufWidth+c.scratchMin+col])
			}
		}
	}

	c.scratchDirty = false
	c.scratchMin = 0
	c.scratchMax = 0
}

// newline flushes, advances the cursor row, and scrolls if it ran off
// the bottom of the visible grid.
func (c *Console) newline() {
	c.flushScratch()
	c.col = 0
	c.cursorRow++

	if c.cursorRow >= c.rows {
		c.scroll()
		c.cursorRow = c.rows - 1
	}
}

// scroll implements §4.11's two scroll paths: hardware virtual-origin
// advance (wrapping back to the top of the virtual FB when it would run
// past virtual_height), or a software memmove-and-fill.
func (c *Console) scroll() {
	if c.hwScroll {
		vh := c.FB.VirtualHeight()

		next := c.scrollOffset + FontHeight
		if next > vh-c.rows*FontHeight {
			c.memmoveVisibleToTop()
			next = FontHeight
		}

		c.scrollOffset = next
		c.FB.SetScrollOffset(c.scrollOffset)
		c.clearBottomRow()
		return
	}

	c.softScroll()
}

func (c *Console) memmoveVisibleToTop() {
	width := c.cols * FontWidth
	height := c.rows * FontHeight

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := (*uint32)(unsafe.Pointer(c.pixelAddr(x, c.scrollOffset+y)))
			c.writePixel(x, y, *v)
		}
	}
}

func (c *Console) clearBottomRow() {
	y0 := c.scrollOffset + (c.rows-1)*FontHeight
	width := c.cols * FontWidth

	for y := y0; y < y0+FontHeight; y++ {
		for x := 0; x < width; x++ {
			c.writePixel(x, y, c.bg)
		}
	}
}

// softScroll shifts the whole visible framebuffer up by one text row
// and fills the newly revealed bottom row with bg, for platforms with
// no hardware virtual-scroll.
func (c *Console) softScroll() {
	width := c.cols * FontWidth
	height := c.rows * FontHeight

	for y := 0; y < height-FontHeight; y++ {
		for x := 0; x < width; x++ {
			v := (*uint32)(unsafe.Pointer(c.pixelAddr(x, y+FontHeight)))
			c.writePixel(x, y, *v)
		}
	}

	for y := height - FontHeight; y < height; y++ {
		for x := 0; x < width; x++ {
			c.writePixel(x, y, c.bg)
		}
	}
}

// Blink toggles the cursor cell by XORing fg/bg at the cursor's current
// cell. Neither board package calls it.
func (c *Console) Blink() {
	c.flushScratch()

	x0 := c.col * FontWidth
	y0 := c.scrollOffset + c.cursorRow*FontHeight

	for row := 0; row < FontHeight; row++ {
		for col := 0; col < FontWidth; col++ {
			p := (*uint32)(unsafe.Pointer(c.pixelAddr(x0+col, y0+row)))
			*p ^= (c.fg ^ c.bg)
		}
	}

	c.cursorOn = !c.cursorOn
}

// Printf formats like fmt.Sprintf and writes the result, for the
// kernel's own log lines.
func (c *Console) Printf(format string, args ...interface{}) {
	c.Puts(fmt.Sprintf(format, args...))
}
