// Package escpos speaks the ESC/POS command protocol to network thermal
// printers: building command streams, reading real-time status and owning
// the TCP session a single print job runs on.
package escpos

import (
	"bytes"
)

const (
	esc = 0x1b
	gs  = 0x1d
	dle = 0x10
	eot = 0x04
	lf  = '\n'
)

// Alignment values for ESC a.
type Alignment byte

const (
	AlignLeft   Alignment = 0
	AlignCenter Alignment = 1
	AlignRight  Alignment = 2
)

// Font values for ESC M.
type Font byte

const (
	FontA Font = 0
	FontB Font = 1
)

// Cut modes for GS V.
type CutMode byte

const (
	FullCut    CutMode = 0
	PartialCut CutMode = 1
)

// MaxMagnification is the largest per-axis character scale GS ! accepts.
const MaxMagnification = 8

// Printer accumulates an ESC/POS command stream. Methods return the
// receiver so a layout reads top to bottom. Text is written as given; callers
// are responsible for encoding it to what the device accepts.
type Printer struct {
	buf bytes.Buffer
}

// NewPrinter returns a Printer whose stream starts with ESC @.
func NewPrinter() *Printer {
	p := &Printer{}
	return p.Init()
}

// Init resets the printer's formatting state.
func (p *Printer) Init() *Printer {
	p.buf.Write([]byte{esc, '@'})
	return p
}

func (p *Printer) Font(f Font) *Printer {
	p.buf.Write([]byte{esc, 'M', byte(f)})
	return p
}

func (p *Printer) Align(a Alignment) *Printer {
	p.buf.Write([]byte{esc, 'a', byte(a)})
	return p
}

// Size sets character magnification, 1 (normal) to 8 per axis. Values
// outside the range are clamped.
func (p *Printer) Size(width, height int) *Printer {
	w := clamp(width, 1, MaxMagnification) - 1
	h := clamp(height, 1, MaxMagnification) - 1
	p.buf.Write([]byte{gs, '!', byte(w<<4 | h)})
	return p
}

func (p *Printer) Bold(on bool) *Printer {
	var n byte
	if on {
		n = 1
	}
	p.buf.Write([]byte{esc, 'E', n})
	return p
}

// Text writes s followed by a line feed.
func (p *Printer) Text(s string) *Printer {
	p.buf.WriteString(s)
	p.buf.WriteByte(lf)
	return p
}

// Feed advances the paper n lines.
func (p *Printer) Feed(n int) *Printer {
	for i := 0; i < n; i++ {
		p.buf.WriteByte(lf)
	}
	return p
}

// Cut feeds n lines so the last printed line clears the blade, then cuts.
func (p *Printer) Cut(mode CutMode, feed int) *Printer {
	p.Feed(feed)
	p.buf.Write([]byte{gs, 'V', byte(mode)})
	return p
}

// Bytes returns the accumulated stream.
func (p *Printer) Bytes() []byte {
	return p.buf.Bytes()
}

// Len returns the number of buffered bytes.
func (p *Printer) Len() int {
	return p.buf.Len()
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
