// Package board talks to the sensor/relay board over its serial line.
//
// Protocol, one line per message:
//
//	-> read
//	<- {"temp":23.4,"humidity":51.2,"soil":2210,"ph":1790,"probe":21.06}
//	-> relay fan LOW
//	<- ok fan LOW
//
// A sensor the board could not read is sent as null or omitted. Relays are
// active-low: LOW energizes the coil.
package board

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/tarm/serial"

	"github.com/secretengineer/GreenHouse-Tender-2/internal/greenhouse"
)

// maxNoise bounds the non-JSON lines skipped while waiting for a reply.
const maxNoise = 8

// ErrNoAck is returned when a relay command is not acknowledged.
var ErrNoAck = errors.New("board did not acknowledge")

// ErrTimeout is returned when no complete line arrives within the port's
// read timeout.
var ErrTimeout = errors.New("board read timed out")

// Sample is one raw reading of every sensor. Missing values carry the
// driver sentinels: NaN for the DHT22, -1 for analog channels, -127 for the
// one-wire probe.
type Sample struct {
	AmbientTemp float64
	Humidity    float64
	Soil        float64
	PH          float64
	Probe       float64
}

// MissingSample is what a failed board read turns into.
func MissingSample() Sample {
	return Sample{
		AmbientTemp: math.NaN(),
		Humidity:    math.NaN(),
		Soil:        greenhouse.AnalogMissing,
		PH:          greenhouse.AnalogMissing,
		Probe:       greenhouse.ProbeDisconnected,
	}
}

type wireSample struct {
	Temp     *float64 `json:"temp"`
	Humidity *float64 `json:"humidity"`
	Soil     *float64 `json:"soil"`
	PH       *float64 `json:"ph"`
	Probe    *float64 `json:"probe"`
}

func (w wireSample) sample() Sample {
	s := MissingSample()
	if w.Temp != nil {
		s.AmbientTemp = *w.Temp
	}
	if w.Humidity != nil {
		s.Humidity = *w.Humidity
	}
	if w.Soil != nil {
		s.Soil = *w.Soil
	}
	if w.PH != nil {
		s.PH = *w.PH
	}
	if w.Probe != nil {
		s.Probe = *w.Probe
	}
	return s
}

// Serial is a board reached through a serial port.
type Serial struct {
	mu     sync.Mutex
	rw     io.ReadWriter
	reader *bufio.Reader
	closer io.Closer
	log    *slog.Logger
	// torn is set when a line was cut off by a timeout; the rest of it is
	// dropped when it shows up.
	torn bool
}

// Open opens the serial port at baud with the given read timeout.
func Open(name string, baud int, readTimeout time.Duration, log *slog.Logger) (*Serial, error) {
	port, err := serial.OpenPort(&serial.Config{Name: name, Baud: baud, ReadTimeout: readTimeout})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", name, err)
	}
	log.Info("serial port opened", "port", name, "baud", baud)
	b := NewSerial(port, log)
	b.closer = port
	return b, nil
}

// NewSerial wraps an already open stream.
func NewSerial(rw io.ReadWriter, log *slog.Logger) *Serial {
	return &Serial{rw: rw, reader: bufio.NewReader(rw), log: log.With("component", "board")}
}

// Sample asks the board for one reading of every sensor.
func (b *Serial) Sample() (Sample, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := io.WriteString(b.rw, "read\n"); err != nil {
		return MissingSample(), fmt.Errorf("write read request: %w", err)
	}
	for i := 0; i < maxNoise; i++ {
		line, err := b.readLine()
		if err != nil {
			return MissingSample(), fmt.Errorf("read sample: %w", err)
		}
		if !strings.HasPrefix(line, "{") {
			b.log.Debug("non-JSON line", "line", line)
			continue
		}
		var w wireSample
		if err := json.Unmarshal([]byte(line), &w); err != nil {
			return MissingSample(), fmt.Errorf("decode sample %q: %w", line, err)
		}
		return w.sample(), nil
	}
	return MissingSample(), fmt.Errorf("read sample: no JSON after %d lines", maxNoise)
}

// Drive switches one relay. on drives the line LOW.
func (b *Serial) Drive(a greenhouse.Actuator, on bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	level := Level(on)
	if _, err := fmt.Fprintf(b.rw, "relay %s %s\n", a, level); err != nil {
		return fmt.Errorf("write relay %s: %w", a, err)
	}
	for i := 0; i < maxNoise; i++ {
		line, err := b.readLine()
		if err != nil {
			return fmt.Errorf("relay %s: %w", a, err)
		}
		if strings.HasPrefix(line, "{") {
			continue
		}
		if strings.HasPrefix(line, "ok") {
			return nil
		}
		return fmt.Errorf("relay %s: %w: %q", a, ErrNoAck, line)
	}
	return fmt.Errorf("relay %s: %w", a, ErrNoAck)
}

// Close closes the underlying port if Open created it.
func (b *Serial) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer.Close()
}

func (b *Serial) readLine() (string, error) {
	for {
		line, err := b.reader.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return "", err
			}
			if line != "" {
				b.torn = true
				b.log.Debug("partial line dropped", "line", line)
			}
			return "", ErrTimeout
		}
		if b.torn {
			b.torn = false
			b.log.Debug("tail of partial line dropped", "line", line)
			continue
		}
		return strings.TrimSpace(line), nil
	}
}

// Level is the relay line level for a desired actuator state.
func Level(on bool) string {
	if on {
		return "LOW"
	}
	return "HIGH"
}
