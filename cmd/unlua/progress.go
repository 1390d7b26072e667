package main

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// progressLine reports indexing progress. On a terminal it redraws one
// status line in place; otherwise it prints a line every 10%.
type progressLine struct {
	w     io.Writer
	tty   bool
	width int

	lastStep int
	drawn    bool
}

func newProgressLine(f *os.File) *progressLine {
	p := &progressLine{w: f, lastStep: -1}
	fd := int(f.Fd())
	if term.IsTerminal(fd) {
		p.tty = true
		if w, _, err := term.GetSize(fd); err == nil {
			p.width = w
		}
	}
	return p
}

func (p *progressLine) Report(progress float64, text string) {
	if p.tty {
		line := fmt.Sprintf("[%5.1f%%] %s", progress, text)
		if p.width > 0 && len(line) >= p.width {
			line = line[:p.width-1]
		}
		fmt.Fprintf(p.w, "\r\033[K%s", line)
		p.drawn = true
		return
	}
	step := int(progress) / 10
	if step == p.lastStep {
		return
	}
	p.lastStep = step
	fmt.Fprintf(p.w, "[%3d%%] %s\n", int(progress), text)
}

// finish ends an in-place line so later output starts on a fresh line.
func (p *progressLine) finish() {
	if p.tty && p.drawn {
		fmt.Fprintln(p.w)
		p.drawn = false
	}
}
