package controller

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/secretengineer/GreenHouse-Tender-2/internal/board"
	"github.com/secretengineer/GreenHouse-Tender-2/internal/display"
	"github.com/secretengineer/GreenHouse-Tender-2/internal/greenhouse"
	"github.com/secretengineer/GreenHouse-Tender-2/internal/logging"
	"github.com/secretengineer/GreenHouse-Tender-2/internal/metrics"
	"github.com/secretengineer/GreenHouse-Tender-2/internal/supervisor"
	"github.com/secretengineer/GreenHouse-Tender-2/internal/telemetry"
)

type fixedBoard struct {
	sample board.Sample
	err    error
	calls  int
}

func (b *fixedBoard) Sample() (board.Sample, error) {
	b.calls++
	return b.sample, b.err
}

type relayLog struct {
	levels map[greenhouse.Actuator]bool
	writes int
	fail   bool
}

func (r *relayLog) Drive(a greenhouse.Actuator, on bool) error {
	if r.fail {
		return errors.New("board busy")
	}
	if r.levels == nil {
		r.levels = map[greenhouse.Actuator]bool{}
	}
	r.levels[a] = on
	r.writes++
	return nil
}

type sink struct {
	last   map[string]string
	topics []string
}

func (s *sink) Publish(topic, payload string) error {
	if s.last == nil {
		s.last = map[string]string{}
	}
	s.last[topic] = payload
	s.topics = append(s.topics, topic)
	return nil
}

type connector struct {
	err   error
	calls int
}

func (c *connector) EnsureConnected(context.Context) error {
	c.calls++
	return c.err
}

type resets struct{ n int }

func (r *resets) Reset() { r.n++ }

type rig struct {
	ctrl  *Controller
	board *fixedBoard
	relay *relayLog
	sink  *sink
	conn  *connector
	wd    *resets
	m     *metrics.Metrics
}

func newRig(queue int) *rig {
	r := &rig{
		board: &fixedBoard{sample: board.Sample{AmbientTemp: 24.5, Humidity: 61, Soil: 2047.5, PH: 2047.5, Probe: 22}},
		relay: &relayLog{},
		sink:  &sink{},
		conn:  &connector{},
		wd:    &resets{},
		m:     metrics.New(),
	}
	log := logging.Discard()
	r.ctrl = New(Deps{
		State:     greenhouse.NewState(),
		Connector: r.conn,
		Sensors:   r.board,
		Relays:    r.relay,
		Publisher: telemetry.NewPublisher(r.sink, r.m, log),
		Watchdog:  r.wd,
		Metrics:   r.m,
		Log:       log,
	}, time.Hour, queue)
	return r
}

func TestFanCommandReflectedInNextCycle(t *testing.T) {
	r := newRig(4)
	r.ctrl.HandleMessage(greenhouse.Fan.ControlTopic(), []byte("1"))

	if r.ctrl.State.Actuator(greenhouse.Fan).On {
		t.Fatal("state changed before the loop drained the command")
	}
	if _, ok := r.sink.last["greenhouse/status/fan"]; ok {
		t.Fatal("command acknowledged synchronously")
	}

	rep, err := r.ctrl.Cycle(context.Background())
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if !r.ctrl.State.Actuator(greenhouse.Fan).On {
		t.Fatal("fan not on after cycle")
	}
	if !r.relay.levels[greenhouse.Fan] {
		t.Fatal("fan relay not driven")
	}
	if got := r.sink.last["greenhouse/status/fan"]; got != "ON" {
		t.Fatalf("status/fan=%q want ON", got)
	}
	if rep.Published != 8 || rep.Invalid != 0 {
		t.Fatalf("report=%+v", rep)
	}
	if got := r.sink.last["greenhouse/soil/ph"]; got != "7.00" {
		t.Fatalf("ph=%q", got)
	}
	if r.wd.n != 1 {
		t.Fatalf("watchdog resets=%d", r.wd.n)
	}
	if got := testutil.ToFloat64(r.m.Commands.WithLabelValues("fan", "mqtt")); got != 1 {
		t.Fatalf("commands metric=%v", got)
	}
}

func TestHeaterOffPayload(t *testing.T) {
	r := newRig(4)
	r.ctrl.Apply(greenhouse.Command{Actuator: greenhouse.Heater, On: true, Source: "test"})
	r.ctrl.HandleMessage(greenhouse.Heater.ControlTopic(), []byte("off"))
	r.ctrl.DrainCommands()
	if r.ctrl.State.Actuator(greenhouse.Heater).On {
		t.Fatal("heater still on after \"off\"")
	}
	if r.relay.levels[greenhouse.Heater] {
		t.Fatal("heater relay still energized")
	}
}

func TestCommandsAppliedInOrder(t *testing.T) {
	r := newRig(8)
	for _, p := range []string{"ON", "OFF", "true", "0", "1"} {
		r.ctrl.HandleMessage(greenhouse.Vent.ControlTopic(), []byte(p))
	}
	if n := r.ctrl.DrainCommands(); n != 5 {
		t.Fatalf("drained %d", n)
	}
	if !r.ctrl.State.Actuator(greenhouse.Vent).On {
		t.Fatal("last command (1) should leave vent on")
	}
}

func TestQueueFullDrops(t *testing.T) {
	r := newRig(1)
	if !r.ctrl.Enqueue(greenhouse.Command{Actuator: greenhouse.Fan, On: true}) {
		t.Fatal("first enqueue dropped")
	}
	if r.ctrl.Enqueue(greenhouse.Command{Actuator: greenhouse.Fan, On: false}) {
		t.Fatal("enqueue on full queue succeeded")
	}
	if got := testutil.ToFloat64(r.m.CommandsDropped); got != 1 {
		t.Fatalf("dropped metric=%v", got)
	}
}

func TestUnknownControlTopicIgnored(t *testing.T) {
	r := newRig(2)
	r.ctrl.HandleMessage("greenhouse/control/pump", []byte("ON"))
	if n := r.ctrl.DrainCommands(); n != 0 {
		t.Fatalf("queued %d commands for unknown actuator", n)
	}
}

func TestRelayFailureRestoresState(t *testing.T) {
	r := newRig(2)
	r.relay.fail = true
	r.ctrl.Apply(greenhouse.Command{Actuator: greenhouse.Fan, On: true, Source: "mqtt"})
	if r.ctrl.State.Actuator(greenhouse.Fan).On {
		t.Fatal("state claims fan on although relay write failed")
	}
	if got := testutil.ToFloat64(r.m.RelayFailures.WithLabelValues("fan")); got != 1 {
		t.Fatalf("relay failure metric=%v", got)
	}
}

func TestBoardFailurePublishesOnlyStatus(t *testing.T) {
	r := newRig(2)
	r.board.err = errors.New("timeout")
	rep, err := r.ctrl.Cycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Invalid != greenhouse.NumKinds || rep.Published != greenhouse.NumActuators {
		t.Fatalf("report=%+v", rep)
	}
	for _, topic := range r.sink.topics {
		if !strings.HasPrefix(topic, greenhouse.StatusPrefix) {
			t.Fatalf("sensor topic %s published on board failure", topic)
		}
	}
}

func TestFatalConnectorSkipsCycle(t *testing.T) {
	r := newRig(2)
	r.conn.err = supervisor.ErrFatal
	_, err := r.ctrl.Cycle(context.Background())
	if !errors.Is(err, supervisor.ErrFatal) {
		t.Fatalf("err=%v", err)
	}
	if r.board.calls != 0 || len(r.sink.topics) != 0 || r.wd.n != 0 {
		t.Fatalf("work done after fatal: board=%d publishes=%d resets=%d", r.board.calls, len(r.sink.topics), r.wd.n)
	}
}

func TestRunStopsOnFatal(t *testing.T) {
	r := newRig(2)
	r.conn.err = supervisor.ErrFatal
	err := r.ctrl.Run(context.Background())
	if !errors.Is(err, supervisor.ErrFatal) {
		t.Fatalf("err=%v", err)
	}
	// startup drove all three relays off
	if r.relay.writes != greenhouse.NumActuators {
		t.Fatalf("startup relay writes=%d", r.relay.writes)
	}
}

func TestRunAppliesCommandsBetweenCycles(t *testing.T) {
	r := newRig(4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.ctrl.Run(ctx) }()

	r.ctrl.Enqueue(greenhouse.Command{Actuator: greenhouse.Heater, On: true, Source: "api"})
	deadline := time.Now().Add(2 * time.Second)
	for !r.ctrl.State.Actuator(greenhouse.Heater).On {
		if time.Now().After(deadline) {
			t.Fatal("command not applied between cycles")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("run err=%v", err)
	}
}

func TestAcquireMapsSample(t *testing.T) {
	b := &fixedBoard{sample: board.Sample{AmbientTemp: 1, Humidity: 2, Soil: 3, PH: 4, Probe: 5}}
	c := Acquire(b, logging.Discard())
	for i, k := range greenhouse.Kinds {
		if c[i].Kind != k || c[i].Raw != float64(i+1) {
			t.Fatalf("reading %d = %+v", i, c[i])
		}
	}
	b.err = errors.New("gone")
	c = Acquire(b, logging.Discard())
	if !math.IsNaN(c[0].Raw) || c[4].Raw != greenhouse.ProbeDisconnected {
		t.Fatalf("failed acquisition not sentinel: %+v", c)
	}
}

func TestDisplayRendered(t *testing.T) {
	r := newRig(2)
	var out strings.Builder
	r.ctrl.Display = display.NewConsole(&out, 0)
	r.board.sample.Probe = greenhouse.ProbeDisconnected
	r.ctrl.Apply(greenhouse.Command{Actuator: greenhouse.Heater, On: true, Source: "test"})
	if _, err := r.ctrl.Cycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	s := out.String()
	for _, want := range []string{"T 24.50°C H 61.00%", "Probe --", "|fan OFF vent OFF     |", "|heater ON            |"} {
		if !strings.Contains(s, want) {
			t.Fatalf("display output lacks %q:\n%s", want, s)
		}
	}
}

func TestWrap(t *testing.T) {
	got := wrap([]string{"fan OFF", "vent OFF", "heater OFF"}, display.DefaultWidth)
	if len(got) != 2 || got[0] != "fan OFF vent OFF" || got[1] != "heater OFF" {
		t.Fatalf("wrap=%q", got)
	}
	if got := wrap([]string{"fan ON", "vent ON"}, 40); len(got) != 1 {
		t.Fatalf("wide display wrapped: %q", got)
	}
}
