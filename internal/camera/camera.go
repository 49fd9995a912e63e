// Package camera serves greenhouse camera frames over HTTP as an MJPEG
// stream and as single captures.
package camera

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
)

const boundary = "greenhouseframe"

// ErrNoFrames is returned by a source with nothing to serve.
var ErrNoFrames = errors.New("camera: no frames available")

// FrameSource yields JPEG-encoded frames.
type FrameSource interface {
	Frame() ([]byte, error)
}

// DirSource cycles through the .jpg/.jpeg files in a directory in name
// order, rescanning when it wraps so new captures are picked up.
type DirSource struct {
	Dir string

	mu    sync.Mutex
	files []string
	next  int
}

func (d *DirSource) Frame() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.next >= len(d.files) {
		if err := d.scan(); err != nil {
			return nil, err
		}
	}
	if len(d.files) == 0 {
		return nil, ErrNoFrames
	}
	name := d.files[d.next]
	d.next++
	return os.ReadFile(name)
}

func (d *DirSource) scan() error {
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		return fmt.Errorf("scan frames: %w", err)
	}
	d.files = d.files[:0]
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".jpg" && ext != ".jpeg") {
			continue
		}
		d.files = append(d.files, filepath.Join(d.Dir, e.Name()))
	}
	sort.Strings(d.files)
	d.next = 0
	return nil
}

// Server streams frames from a source.
type Server struct {
	src      FrameSource
	interval time.Duration
	log      *slog.Logger
}

// NewRouter returns the camera routes: /stream, /capture and /healthz.
func NewRouter(src FrameSource, interval time.Duration, log *slog.Logger) *mux.Router {
	s := &Server{src: src, interval: interval, log: log.With("component", "camera")}
	r := mux.NewRouter()
	r.HandleFunc("/stream", s.stream).Methods(http.MethodGet)
	r.HandleFunc("/capture", s.capture).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	return r
}

func (s *Server) capture(w http.ResponseWriter, r *http.Request) {
	frame, err := s.src.Frame()
	if err != nil {
		s.log.Warn("capture failed", "err", err)
		http.Error(w, "Camera capture failed", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(frame)))
	w.Write(frame)
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)
	w.Header().Set("Cache-Control", "no-cache")

	tick := time.NewTicker(s.interval)
	defer tick.Stop()
	defer fmt.Fprintf(w, "--%s--\r\n", boundary)
	frames := 0
	for {
		frame, err := s.src.Frame()
		if err != nil {
			s.log.Warn("stream ended", "err", err, "frames", frames)
			return
		}
		if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", boundary, len(frame)); err != nil {
			return
		}
		if _, err := w.Write(frame); err != nil {
			return
		}
		if _, err := w.Write([]byte("\r\n")); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
		frames++
		select {
		case <-r.Context().Done():
			s.log.Debug("stream client gone", "frames", frames)
			return
		case <-tick.C:
		}
	}
}
