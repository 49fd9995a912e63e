// Command greenhouse-cam serves greenhouse camera frames over HTTP.
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

	"github.com/secretengineer/GreenHouse-Tender-2/internal/camera"
	"github.com/secretengineer/GreenHouse-Tender-2/internal/config"
	"github.com/secretengineer/GreenHouse-Tender-2/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("greenhouse-cam", "", "info").Error("invalid configuration", "err", err)
		os.Exit(2)
	}
	log := logging.New("greenhouse-cam", cfg.LogPath, cfg.LogLevel)

	router := camera.NewRouter(&camera.DirSource{Dir: cfg.FrameDir}, cfg.FrameInterval, log)
	srv := &http.Server{
		Addr:              cfg.HTTPBind,
		Handler:           handlers.LoggingHandler(os.Stdout, handlers.RecoveryHandler()(router)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("camera server listening", "addr", cfg.HTTPBind, "frames", cfg.FrameDir)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("http server failed", "err", err)
		os.Exit(1)
	}
}
