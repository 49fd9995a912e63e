// Package display drives the optional status display. The console
// implementation renders the same lines an attached LCD would show.
package display

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Display is the clear/print/flush driver contract.
type Display interface {
	Clear()
	Print(line string)
	Flush() error
}

// Nop discards everything.
type Nop struct{}

func (Nop) Clear()       {}
func (Nop) Print(string) {}
func (Nop) Flush() error { return nil }

// Console buffers lines and writes them as one framed block on Flush.
type Console struct {
	mu    sync.Mutex
	w     io.Writer
	width int
	lines []string
}

// DefaultWidth is the character width of a 128px OLED in its 6px font.
const DefaultWidth = 21

// NewConsole returns a console display width characters wide; zero selects
// DefaultWidth.
func NewConsole(w io.Writer, width int) *Console {
	if width <= 0 {
		width = DefaultWidth
	}
	return &Console{w: w, width: width}
}

func (c *Console) Clear() {
	c.mu.Lock()
	c.lines = c.lines[:0]
	c.mu.Unlock()
}

// Print appends a line, cut to the display width.
func (c *Console) Print(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r := []rune(line); len(r) > c.width {
		line = string(r[:c.width])
	}
	c.lines = append(c.lines, line)
}

func (c *Console) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	border := "+" + strings.Repeat("-", c.width) + "+\n"
	var b strings.Builder
	b.WriteString(border)
	for _, l := range c.lines {
		fmt.Fprintf(&b, "|%-*s|\n", c.width, l)
	}
	b.WriteString(border)
	_, err := io.WriteString(c.w, b.String())
	return err
}
