// Command greenhouse-sync records the greenhouse's MQTT telemetry in
// Postgres and raises threshold alerts.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/secretengineer/GreenHouse-Tender-2/internal/config"
	"github.com/secretengineer/GreenHouse-Tender-2/internal/greenhouse"
	"github.com/secretengineer/GreenHouse-Tender-2/internal/logging"
	"github.com/secretengineer/GreenHouse-Tender-2/internal/mqttbus"
	"github.com/secretengineer/GreenHouse-Tender-2/internal/recorder"
	"github.com/secretengineer/GreenHouse-Tender-2/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("greenhouse-sync", "", "info").Error("invalid configuration", "err", err)
		os.Exit(2)
	}
	log := logging.New("greenhouse-sync", cfg.LogPath, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	db, err := store.Open(openCtx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Error("database unavailable", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	log.Info("database ready")

	bus := mqttbus.New(mqttbus.Options{
		BrokerURL:      cfg.BrokerURL,
		ClientID:       cfg.ClientID,
		ClientPrefix:   "greenhouse-sync",
		Username:       cfg.MQTTUser,
		Password:       cfg.MQTTPass,
		PublishTimeout: cfg.PublishTTL,
	}, log)

	notifiers := recorder.Fanout{recorder.MQTTNotifier{Pub: bus}}
	if len(cfg.KafkaBrokers) > 0 {
		w := recorder.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer w.Close()
		notifiers = append(notifiers, recorder.KafkaNotifier{W: w, Log: log})
		log.Info("forwarding alerts to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}
	rec := recorder.New(db, notifiers, log)
	bus.SetHandler(rec.HandleMessage)

	if err := connect(ctx, bus, cfg); err != nil {
		log.Error("mqtt unavailable", "err", err)
		os.Exit(1)
	}
	defer bus.Close()

	router := mux.NewRouter()
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !bus.Connected() || db.Ping(r.Context()) != nil {
			http.Error(w, "MQTT Sync Degraded", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("MQTT Sync Running"))
	}).Methods(http.MethodGet)
	srv := &http.Server{
		Addr:              cfg.HTTPBind,
		Handler:           handlers.LoggingHandler(os.Stdout, handlers.RecoveryHandler()(router)),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
		}
	}()

	// Reconnect on loss; the session does not do it by itself.
	t := time.NewTicker(cfg.BrokerDelay)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = srv.Shutdown(shutdownCtx)
			cancel()
			return
		case <-t.C:
			if !bus.Connected() {
				if err := connect(ctx, bus, cfg); err != nil {
					log.Warn("reconnect failed", "err", err)
				}
			}
		}
	}
}

func connect(ctx context.Context, bus *mqttbus.Client, cfg *config.Config) error {
	var err error
	for i := 0; i < cfg.BrokerAttempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(cfg.BrokerDelay):
			}
		}
		if err = bus.Connect(); err != nil {
			continue
		}
		if err = bus.Subscribe(greenhouse.TopicRoot + "/#"); err == nil {
			return nil
		}
	}
	return err
}
