// Package chardev supplies the character-device drivers spec §1 treats
// as external collaborators (PS/2 keyboard, serial logger): the core
// only calls ReadLine/Write. Grounded on the teacher's console_t stub
// (ufs/driver.go's Cons_read/Cons_write), made functional here since
// this repository has no real hardware to defer to for the echo and
// serial-write end-to-end scenarios (spec §8 scenarios 2 and 3).
package chardev

import (
	"bufio"
	"io"
	"strings"
	"sync"

	"crux/defs"
)

// Console_t reads lines from r and writes to w, standing in for the
// VGA/PS2 console pair.
type Console_t struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

// NewConsole wraps r/w as the console device.
func NewConsole(r io.Reader, w io.Writer) *Console_t {
	return &Console_t{in: bufio.NewReader(r), out: w}
}

// ReadLine blocks for one newline-terminated line, spec §5's "spin on
// the driver's keyboard buffer" collapsed to a single blocking read
// since this core has no hlt loop to poll from.
func (c *Console_t) ReadLine() (string, defs.Err_t) {
	c.mu.Lock()
	defer c.mu.Unlock()
	line, err := c.in.ReadString('\n')
	if err != nil && line == "" {
		return "", defs.EFAULT
	}
	return strings.TrimSuffix(line, "\n"), 0
}

// Write forwards s to the console's output.
func (c *Console_t) Write(s string) (int, defs.Err_t) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, err := io.WriteString(c.out, s)
	if err != nil {
		return n, defs.EFAULT
	}
	return n, 0
}

// Serial_t is a write-mostly line sink standing in for the UART.
type Serial_t struct {
	mu  sync.Mutex
	out io.Writer
}

// NewSerial wraps w as the serial device.
func NewSerial(w io.Writer) *Serial_t {
	return &Serial_t{out: w}
}

// ReadLine always fails: nothing drives the serial port's input side
// in this core.
func (s *Serial_t) ReadLine() (string, defs.Err_t) {
	return "", defs.ENOSYS
}

// Write forwards s to the serial sink.
func (s *Serial_t) Write(str string) (int, defs.Err_t) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := io.WriteString(s.out, str)
	if err != nil {
		return n, defs.EFAULT
	}
	return n, 0
}
