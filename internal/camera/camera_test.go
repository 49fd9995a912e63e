package camera

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/secretengineer/GreenHouse-Tender-2/internal/logging"
)

type countingSource struct {
	frames [][]byte
	n      int
	after  func()
}

func (c *countingSource) Frame() ([]byte, error) {
	if c.n >= len(c.frames) {
		return nil, ErrNoFrames
	}
	f := c.frames[c.n]
	c.n++
	if c.n == len(c.frames) && c.after != nil {
		c.after()
	}
	return f, nil
}

func TestDirSourceCycles(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{"b.jpg": "B", "a.jpeg": "A", "notes.txt": "x"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	src := &DirSource{Dir: dir}
	var got []string
	for i := 0; i < 3; i++ {
		f, err := src.Frame()
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, string(f))
	}
	if want := []string{"A", "B", "A"}; got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
		t.Fatalf("frames=%v want %v", got, want)
	}

	empty := &DirSource{Dir: t.TempDir()}
	if _, err := empty.Frame(); !errors.Is(err, ErrNoFrames) {
		t.Fatalf("empty dir err=%v", err)
	}
}

func TestCapture(t *testing.T) {
	h := NewRouter(&countingSource{frames: [][]byte{[]byte("jpeg")}}, time.Millisecond, logging.Discard())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/capture", nil))
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/jpeg" || rec.Body.String() != "jpeg" {
		t.Fatalf("capture code=%d type=%q body=%q", rec.Code, rec.Header().Get("Content-Type"), rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/capture", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("exhausted source code=%d", rec.Code)
	}
}

func TestStreamMultipart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &countingSource{frames: [][]byte{[]byte("one"), []byte("two")}, after: cancel}
	h := NewRouter(src, time.Millisecond, logging.Discard())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stream", nil).WithContext(ctx)
	h.ServeHTTP(rec, req)

	mt, params, err := mime.ParseMediaType(rec.Header().Get("Content-Type"))
	if err != nil || mt != "multipart/x-mixed-replace" {
		t.Fatalf("content type %q err=%v", rec.Header().Get("Content-Type"), err)
	}
	mr := multipart.NewReader(bytes.NewReader(rec.Body.Bytes()), params["boundary"])
	var parts []string
	for {
		p, err := mr.NextPart()
		if err != nil {
			break
		}
		b, _ := io.ReadAll(p)
		parts = append(parts, string(b))
	}
	if len(parts) != 2 || parts[0] != "one" || parts[1] != "two" {
		t.Fatalf("parts=%q", parts)
	}
}
