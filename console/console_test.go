// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package console

import (
	"testing"
	"unsafe"

	"github.com/kirakira-dev/kikios/hal"
)

// fakeFB backs hal.Framebuffer with an ordinary Go byte slice, standing
// in for a linear pixel buffer — no real hardware is touched.
type fakeFB struct {
	buf           []byte
	width, height int
	virtualH      int
	scrollOffset  int
	hwScroll      bool
}

func newFakeFB(width, height int, hwScroll bool) *fakeFB {
	vh := height
	if hwScroll {
		vh = height * 2
	}

	return &fakeFB{
		buf:      make([]byte, width*4*vh),
		width:    width,
		height:   height,
		virtualH: vh,
		hwScroll: hwScroll,
	}
}

func (f *fakeFB) Init(width, height int) (hal.FramebufferInfo, error) {
	return hal.FramebufferInfo{
		Base:   uintptr(unsafe.Pointer(&f.buf[0])),
		Width:  width,
		Height: height,
		Pitch:  width * 4,
	}, nil
}

func (f *fakeFB) SetScrollOffset(y int) bool {
	if !f.hwScroll {
		return false
	}
	f.scrollOffset = y
	return true
}

func (f *fakeFB) VirtualHeight() int { return f.virtualH }

func newTestConsole(t *testing.T, hwScroll bool) (*Console, *fakeFB) {
	t.Helper()

	fb := newFakeFB(FontWidth*10, FontHeight*4, hwScroll)
	c := &Console{FB: fb}

	if err := c.Init(FontWidth*10, FontHeight*4); err != nil {
		t.Fatalf("Init: %v", err)
	}

	return c, fb
}

func pixelAt(c *Console, x, y int) uint32 {
	p := (*uint32)(unsafe.Pointer(c.pixelAddr(x, y)))
	return *p
}

func TestPutcRendersGlyphAndAdvancesColumn(t *testing.T) {
	c, _ := newTestConsole(t, false)

	c.SetColor(0x00FFFFFF, 0x00000000)
	c.Putc('A')
	c.flushScratch()

	if c.col != 1 {
		t.Fatalf("expected col 1 after one Putc, got %d", c.col)
	}

	glyph := Glyph('A')
	sawForeground := false

	for row := 0; row < FontHeight; row++ {
		for col := 0; col < FontWidth; col++ {
			want := c.bg
			if glyph[row]&(0x80>>uint(col)) != 0 {
				want = c.fg
				sawForeground = true
			}

			got := pixelAt(c, col, row)
			if got != want {
				t.Fatalf("pixel (%d,%d): got %#x want %#x", col, row, got, want)
			}
		}
	}

	if !sawForeground {
		t.Fatalf("glyph 'A' produced no foreground pixels")
	}
}

func TestNewlineResetsColumnAndAdvancesRow(t *testing.T) {
	c, _ := newTestConsole(t, false)

	c.Putc('X')
	c.Putc('\n')

	if c.col != 0 {
		t.Fatalf("expected col 0 after newline, got %d", c.col)
	}
	if c.cursorRow != 1 {
		t.Fatalf("expected row 1 after newline, got %d", c.cursorRow)
	}
}

func TestTabAdvancesToNextStop(t *testing.T) {
	c, _ := newTestConsole(t, false)

	c.Putc('\t')
	if c.col != 8 {
		t.Fatalf("expected col 8 after tab from col 0, got %d", c.col)
	}
}

func TestBackspaceMovesLeftWithoutErasing(t *testing.T) {
	c, _ := newTestConsole(t, false)

	c.Putc('A')
	c.Putc('B')
	c.flushScratch()

	before := pixelAt(c, 0, 0)

	c.Putc('\b')
	if c.col != 1 {
		t.Fatalf("expected col 1 after backspace from col 2, got %d", c.col)
	}

	after := pixelAt(c, 0, 0)
	if before != after {
		t.Fatalf("backspace must not erase: pixel changed from %#x to %#x", before, after)
	}
}

func TestSoftScrollShiftsContentUp(t *testing.T) {
	c, _ := newTestConsole(t, false)

	c.SetColor(0x00FFFFFF, 0x00000000)

	for row := 0; row < c.rows; row++ {
		c.SetCursor(row, 0)
		c.Putc(byte('0' + row))
	}
	c.flushScratch()

	var secondRowCell [FontHeight][FontWidth]uint32
	for y := 0; y < FontHeight; y++ {
		for x := 0; x < FontWidth; x++ {
			secondRowCell[y][x] = pixelAt(c, x, FontHeight+y)
		}
	}

	c.Putc('\n') // forces one more row than fits, triggering scroll

	// Row 0 ('0') and row 1 ('1') hold different glyphs, so after the
	// shift the top cell must now show exactly what row 1 held.
	for y := 0; y < FontHeight; y++ {
		for x := 0; x < FontWidth; x++ {
			if got := pixelAt(c, x, y); got != secondRowCell[y][x] {
				t.Fatalf("pixel (%d,%d) after scroll: got %#x want %#x (row 1's glyph)", x, y, got, secondRowCell[y][x])
			}
		}
	}

	bottomRow := pixelAt(c, 0, (c.rows-1)*FontHeight)
	if bottomRow != c.bg {
		t.Fatalf("expected bottom row cleared to bg after scroll, got %#x", bottomRow)
	}
}

func TestHardwareScrollAdvancesOffset(t *testing.T) {
	c, fb := newTestConsole(t, true)

	for row := 0; row <= c.rows; row++ {
		c.Putc('\n')
	}

	if fb.scrollOffset == 0 {
		t.Fatalf("expected hardware scroll offset to advance past 0")
	}
}

func TestBlinkTogglesCursorState(t *testing.T) {
	c, _ := newTestConsole(t, false)

	if c.cursorOn {
		t.Fatalf("expected cursor initially off")
	}

	c.Blink()
	if !c.cursorOn {
		t.Fatalf("expected cursor on after first blink")
	}

	c.Blink()
	if c.cursorOn {
		t.Fatalf("expected cursor off after second blink (restored)")
	}
}

func TestRenderPanicDrawsBlackOnWhite(t *testing.T) {
	c, _ := newTestConsole(t, false)

	lines := []string{"data abort", "FAR 0x1000", "ELR 0x2000"}

	c.RenderPanic(lines)

	if c.fg != 0 {
		t.Fatalf("expected WSOD foreground black, got %#x", c.fg)
	}
	if c.bg != 0x00FFFFFF {
		t.Fatalf("expected WSOD background white, got %#x", c.bg)
	}
}
