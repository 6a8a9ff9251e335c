package chardev

import (
	"bytes"
	"strings"
	"testing"
)

func TestConsoleReadLineTrimsNewline(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(strings.NewReader("hello\n"), &out)

	line, err := c.ReadLine()
	if err != 0 {
		t.Fatalf("ReadLine: err=%d", err)
	}
	if line != "hello" {
		t.Fatalf("got %q, want %q", line, "hello")
	}
}

func TestConsoleWrite(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(strings.NewReader(""), &out)

	n, err := c.Write("hello")
	if err != 0 || n != 5 {
		t.Fatalf("Write: n=%d err=%d", n, err)
	}
	if out.String() != "hello" {
		t.Fatalf("got %q, want %q", out.String(), "hello")
	}
}

func TestSerialReadLineFails(t *testing.T) {
	var out bytes.Buffer
	s := NewSerial(&out)
	if _, err := s.ReadLine(); err == 0 {
		t.Fatal("serial ReadLine should always fail")
	}
}

func TestSerialWrite(t *testing.T) {
	var out bytes.Buffer
	s := NewSerial(&out)
	if _, err := s.Write("hi"); err != 0 {
		t.Fatalf("Write: err=%d", err)
	}
	if out.String() != "hi" {
		t.Fatalf("got %q, want %q", out.String(), "hi")
	}
}
