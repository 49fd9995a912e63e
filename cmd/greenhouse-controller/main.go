// Command greenhouse-controller runs the greenhouse control loop: it reads
// the sensor board, publishes telemetry over MQTT, applies actuator
// commands and serves the local HTTP API.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/secretengineer/GreenHouse-Tender-2/internal/api"
	"github.com/secretengineer/GreenHouse-Tender-2/internal/board"
	"github.com/secretengineer/GreenHouse-Tender-2/internal/config"
	"github.com/secretengineer/GreenHouse-Tender-2/internal/controller"
	"github.com/secretengineer/GreenHouse-Tender-2/internal/display"
	"github.com/secretengineer/GreenHouse-Tender-2/internal/greenhouse"
	"github.com/secretengineer/GreenHouse-Tender-2/internal/link"
	"github.com/secretengineer/GreenHouse-Tender-2/internal/logging"
	"github.com/secretengineer/GreenHouse-Tender-2/internal/metrics"
	"github.com/secretengineer/GreenHouse-Tender-2/internal/mqttbus"
	"github.com/secretengineer/GreenHouse-Tender-2/internal/supervisor"
	"github.com/secretengineer/GreenHouse-Tender-2/internal/telemetry"
	"github.com/secretengineer/GreenHouse-Tender-2/internal/watchdog"
)

type sensorRelayBoard interface {
	controller.SensorBoard
	controller.Relays
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(2)
	}
	log := logging.New("greenhouse-controller", cfg.LogPath, cfg.LogLevel)

	b, closeBoard, err := openBoard(cfg, log)
	if err != nil {
		log.Error("sensor board unavailable", "port", cfg.SerialPort, "err", err)
		os.Exit(1)
	}
	defer closeBoard()

	m := metrics.New()
	state := greenhouse.NewState()

	bus := mqttbus.New(mqttbus.Options{
		BrokerURL:      cfg.BrokerURL,
		ClientID:       cfg.ClientID,
		ClientPrefix:   "greenhouse-controller",
		Username:       cfg.MQTTUser,
		Password:       cfg.MQTTPass,
		PublishTimeout: cfg.PublishTTL,
		StatusTopic:    greenhouse.ControllerStatusTopic,
	}, log)
	defer bus.Close()

	var ctrl *controller.Controller
	restarter := &supervisor.ProcessRestarter{
		Log: log,
		Before: func() {
			if ctrl != nil {
				ctrl.AllOff()
			}
		},
	}
	wd := watchdog.New(cfg.WatchdogTimeout, func() { restarter.Restart("watchdog expired") }, log)

	sup := supervisor.New(&link.Interfaces{}, bus, wd, restarter, supervisor.Policy{
		LinkAttempts:   cfg.LinkAttempts,
		LinkInterval:   cfg.LinkInterval,
		BrokerAttempts: cfg.BrokerAttempts,
		BrokerDelay:    cfg.BrokerDelay,
	}, log.With("component", "supervisor"))
	sup.Observer = m
	sup.OnPhase = func(p greenhouse.Phase) {
		state.SetPhase(p)
		m.ObservePhase(p)
	}

	var disp display.Display = display.Nop{}
	if cfg.Display == "console" {
		disp = display.NewConsole(os.Stdout, 0)
	}

	ctrl = controller.New(controller.Deps{
		State:     state,
		Connector: sup,
		Sensors:   b,
		Relays:    b,
		Publisher: telemetry.NewPublisher(bus, m, log),
		Display:   disp,
		Watchdog:  wd,
		Metrics:   m,
		Log:       log,
	}, cfg.CycleInterval, cfg.CommandQueue)
	bus.SetHandler(ctrl.HandleMessage)

	router := api.NewRouter(state, ctrl, m.Handler(), log)
	srv := &http.Server{
		Addr:              cfg.HTTPBind,
		Handler:           api.Wrap(router, os.Stdout),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("http server listening", "addr", cfg.HTTPBind)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wd.Arm()
	runErr := ctrl.Run(ctx)
	wd.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	switch {
	case errors.Is(runErr, supervisor.ErrFatal):
		restarter.Restart(runErr.Error())
	case runErr != nil && !errors.Is(runErr, context.Canceled):
		log.Error("control loop stopped", "err", runErr)
		ctrl.AllOff()
		os.Exit(1)
	default:
		log.Info("shutting down")
		ctrl.AllOff()
	}
}

// openBoard opens the serial board, or a simulated one when no port is
// configured.
func openBoard(cfg *config.Config, log *slog.Logger) (sensorRelayBoard, func(), error) {
	if cfg.SerialPort == "" {
		log.Warn("no serial port configured, using simulated board")
		return board.NewSimulated(time.Now().UnixNano()), func() {}, nil
	}
	s, err := board.Open(cfg.SerialPort, cfg.SerialBaud, cfg.SerialWait, log)
	if err != nil {
		return nil, nil, err
	}
	log.Info("serial port opened", "port", cfg.SerialPort, "baud", cfg.SerialBaud)
	return s, func() { s.Close() }, nil
}
