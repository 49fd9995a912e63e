package display

import (
	"bytes"
	"strings"
	"testing"
)

func TestConsoleFlush(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, 10)
	c.Print("T 21.50C")
	c.Print("a line that is far too long")
	if err := c.Flush(); err != nil {
		t.Fatal(err)
	}
	want := "+----------+\n|T 21.50C  |\n|a line tha|\n+----------+\n"
	if buf.String() != want {
		t.Fatalf("got\n%s\nwant\n%s", buf.String(), want)
	}

	buf.Reset()
	c.Clear()
	_ = c.Flush()
	if strings.Count(buf.String(), "\n") != 2 {
		t.Fatalf("clear left lines: %q", buf.String())
	}
}
