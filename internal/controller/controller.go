// Package controller runs the greenhouse control loop: connectivity check,
// command drain, sensor acquisition, validation, telemetry and display.
// Everything that touches relays or actuator state runs on the goroutine
// calling Run; MQTT and HTTP callbacks only enqueue commands.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/secretengineer/GreenHouse-Tender-2/internal/board"
	"github.com/secretengineer/GreenHouse-Tender-2/internal/display"
	"github.com/secretengineer/GreenHouse-Tender-2/internal/greenhouse"
	"github.com/secretengineer/GreenHouse-Tender-2/internal/metrics"
	"github.com/secretengineer/GreenHouse-Tender-2/internal/telemetry"
)

// SensorBoard takes one raw sample of every sensor.
type SensorBoard interface {
	Sample() (board.Sample, error)
}

// Relays drives the relay outputs.
type Relays interface {
	Drive(a greenhouse.Actuator, on bool) error
}

// Connector makes sure link and broker session are up.
type Connector interface {
	EnsureConnected(ctx context.Context) error
}

// Watchdog is reset once per completed cycle.
type Watchdog interface {
	Reset()
}

// Deps are the collaborators of a Controller. Display, Watchdog and
// Metrics are optional.
type Deps struct {
	State     *greenhouse.State
	Connector Connector
	Sensors   SensorBoard
	Relays    Relays
	Publisher *telemetry.Publisher
	Display   display.Display
	Watchdog  Watchdog
	Metrics   *metrics.Metrics
	Log       *slog.Logger
}

// Controller is the single control loop instance.
type Controller struct {
	Deps
	interval time.Duration
	commands chan greenhouse.Command
	now      func() time.Time
}

// New returns a controller cycling every interval with a command queue of
// queueSize entries.
func New(d Deps, interval time.Duration, queueSize int) *Controller {
	if d.Display == nil {
		d.Display = display.Nop{}
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}
	d.Log = d.Log.With("component", "controller")
	return &Controller{
		Deps:     d,
		interval: interval,
		commands: make(chan greenhouse.Command, queueSize),
		now:      time.Now,
	}
}

// Acquire samples the board once. A board error turns every reading into
// its sentinel; validation rejects them downstream.
func Acquire(b SensorBoard, log *slog.Logger) greenhouse.Cycle {
	s, err := b.Sample()
	if err != nil {
		log.Warn("sensor board read failed", "err", err)
		s = board.MissingSample()
	}
	return greenhouse.Cycle{
		greenhouse.NewReading(greenhouse.AmbientTemp, s.AmbientTemp),
		greenhouse.NewReading(greenhouse.Humidity, s.Humidity),
		greenhouse.NewReading(greenhouse.SoilMoisture, s.Soil),
		greenhouse.NewReading(greenhouse.PH, s.PH),
		greenhouse.NewReading(greenhouse.ProbeTemp, s.Probe),
	}
}

// Enqueue queues a command without blocking. It reports false when the
// queue is full and the command was dropped.
func (c *Controller) Enqueue(cmd greenhouse.Command) bool {
	select {
	case c.commands <- cmd:
		return true
	default:
		c.Log.Warn("command queue full, dropping", "actuator", cmd.Actuator, "on", cmd.On, "source", cmd.Source)
		if c.Metrics != nil {
			c.Metrics.CommandsDropped.Inc()
		}
		return false
	}
}

// HandleMessage is the MQTT delivery callback for greenhouse/control/#.
func (c *Controller) HandleMessage(topic string, payload []byte) {
	cmd, err := greenhouse.ParseCommand(topic, payload)
	if err != nil {
		c.Log.Warn("ignoring control message", "topic", topic, "err", err)
		return
	}
	c.Enqueue(cmd)
}

// Apply records the command and drives the relay. If the board rejects the
// write the previous state is restored so State keeps matching the output.
func (c *Controller) Apply(cmd greenhouse.Command) {
	prev := c.State.Actuator(cmd.Actuator).On
	c.State.SetActuator(cmd.Actuator, cmd.On)
	if err := c.Relays.Drive(cmd.Actuator, cmd.On); err != nil {
		c.State.SetActuator(cmd.Actuator, prev)
		c.Log.Error("relay write failed", "actuator", cmd.Actuator, "on", cmd.On, "err", err)
		if c.Metrics != nil {
			c.Metrics.RelayFailures.WithLabelValues(cmd.Actuator.String()).Inc()
		}
		return
	}
	c.Log.Info("actuator switched", "actuator", cmd.Actuator, "state", greenhouse.OnOff(cmd.On), "source", cmd.Source)
	if c.Metrics != nil {
		c.Metrics.Commands.WithLabelValues(cmd.Actuator.String(), cmd.Source).Inc()
		c.Metrics.ObserveActuator(c.State.Actuator(cmd.Actuator))
	}
}

// DrainCommands applies every queued command in arrival order.
func (c *Controller) DrainCommands() int {
	n := 0
	for {
		select {
		case cmd := <-c.commands:
			c.Apply(cmd)
			n++
		default:
			return n
		}
	}
}

// Cycle runs one iteration. It returns the connector's error (fatal or
// cancellation) without touching sensors or telemetry.
func (c *Controller) Cycle(ctx context.Context) (telemetry.Report, error) {
	if err := c.Connector.EnsureConnected(ctx); err != nil {
		return telemetry.Report{}, err
	}
	c.DrainCommands()

	readings := greenhouse.ValidateAll(Acquire(c.Sensors, c.Log))
	rep := c.Publisher.PublishCycle(readings, c.State.Actuators())
	c.State.RecordCycle(readings, c.now())
	c.render(readings)

	if c.Watchdog != nil {
		c.Watchdog.Reset()
	}
	if c.Metrics != nil {
		c.Metrics.Cycles.Inc()
	}
	c.Log.Debug("cycle done", "published", rep.Published, "failed", rep.Failed, "invalid", rep.Invalid)
	return rep, nil
}

// Run drives every relay off, then cycles until ctx ends or the connector
// reports a fatal error. Commands arriving between cycles are applied as
// soon as the loop sees them.
func (c *Controller) Run(ctx context.Context) error {
	c.AllOff()
	t := time.NewTicker(c.interval)
	defer t.Stop()

	if _, err := c.Cycle(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-c.commands:
			c.Apply(cmd)
		case <-t.C:
			if _, err := c.Cycle(ctx); err != nil {
				return err
			}
		}
	}
}

// AllOff de-energizes every relay. Used at startup and before a restart.
func (c *Controller) AllOff() {
	for _, a := range greenhouse.Actuators {
		c.Apply(greenhouse.Command{Actuator: a, On: false, Source: "init"})
	}
}

func (c *Controller) render(r greenhouse.Cycle) {
	val := func(rd greenhouse.Reading) string {
		if !rd.Valid {
			return "--"
		}
		return telemetry.FormatValue(rd.Value)
	}
	d := c.Display
	d.Clear()
	d.Print(fmt.Sprintf("T %s%s H %s%s", val(r[0]), r[0].Kind.Unit(), val(r[1]), r[1].Kind.Unit()))
	d.Print(fmt.Sprintf("Soil %s%% pH %s", val(r[2]), val(r[3])))
	d.Print(fmt.Sprintf("Probe %s%s", val(r[4]), r[4].Kind.Unit()))
	var parts []string
	for _, a := range c.State.Actuators() {
		parts = append(parts, a.Actuator.String()+" "+a.Label())
	}
	for _, line := range wrap(parts, display.DefaultWidth) {
		d.Print(line)
	}
	if err := d.Flush(); err != nil {
		c.Log.Warn("display flush failed", "err", err)
	}
}

// wrap joins words with spaces into lines no wider than width runes.
func wrap(words []string, width int) []string {
	var lines []string
	cur := ""
	for _, w := range words {
		switch {
		case cur == "":
			cur = w
		case utf8.RuneCountInString(cur)+1+utf8.RuneCountInString(w) <= width:
			cur += " " + w
		default:
			lines = append(lines, cur)
			cur = w
		}
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return lines
}
