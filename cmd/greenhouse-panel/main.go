// Command greenhouse-panel is a desktop control panel for the greenhouse
// controller: live readings plus ON/OFF buttons for each actuator.
package main

import (
	"context"
	"fmt"
	"image/color"
	"log/slog"
	"os"
	"strings"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/widget"

	"github.com/secretengineer/GreenHouse-Tender-2/internal/config"
	"github.com/secretengineer/GreenHouse-Tender-2/internal/greenhouse"
	"github.com/secretengineer/GreenHouse-Tender-2/internal/logging"
	"github.com/secretengineer/GreenHouse-Tender-2/internal/panel"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("greenhouse-panel", "", "info").Error("invalid configuration", "err", err)
		os.Exit(2)
	}
	log := logging.New("greenhouse-panel", cfg.LogPath, cfg.LogLevel)
	createGUI(panel.NewClient(cfg.ControllerURL), cfg.PanelRefresh, log)
}

type actuatorRow struct {
	status  *canvas.Text
	on, off *widget.Button
}

func createGUI(client *panel.Client, refresh time.Duration, log *slog.Logger) {
	myApp := app.New()
	myWindow := myApp.NewWindow("Greenhouse Control Panel")
	myWindow.Resize(fyne.NewSize(480, 520))

	title := canvas.NewText("Greenhouse Control Panel", color.White)
	title.TextSize = 20
	title.TextStyle.Bold = true

	link := canvas.NewText("Controller: unknown", color.White)
	link.TextSize = 14

	readings := widget.NewLabel("Waiting for data...")

	rows := map[greenhouse.Actuator]*actuatorRow{}
	content := container.NewVBox(
		container.NewCenter(title),
		container.NewCenter(link),
		readings,
	)
	for _, a := range greenhouse.Actuators {
		row := &actuatorRow{status: canvas.NewText(a.String()+" is OFF", color.White)}
		row.status.TextSize = 14
		row.status.TextStyle.Bold = true
		send := func(on bool) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.Command(ctx, a, on); err != nil {
				log.Warn("command failed", "actuator", a, "err", err)
				row.status.Text = fmt.Sprintf("Error: %v", err)
			} else {
				row.status.Text = fmt.Sprintf("%s requested %s", a, greenhouse.OnOff(on))
			}
			row.status.Refresh()
		}
		row.on = widget.NewButton("Turn On", func() { send(true) })
		row.off = widget.NewButton("Turn Off", func() { send(false) })
		rows[a] = row
		content.Add(container.NewCenter(row.status))
		content.Add(container.NewHBox(
			layout.NewSpacer(),
			row.on,
			layout.NewSpacer(),
			row.off,
			layout.NewSpacer(),
		))
	}
	myWindow.SetContent(content)

	poll := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if d, err := client.SensorData(ctx); err == nil {
			readings.SetText(strings.Join(panel.FormatReadings(d), "\n"))
		} else {
			log.Debug("sensor data unavailable", "err", err)
		}
		st, err := client.Status(ctx)
		if err != nil {
			link.Text = "Controller: unreachable"
			link.Refresh()
			return
		}
		link.Text = "Controller: " + st.Connectivity
		link.Refresh()
		for a, row := range rows {
			label := st.Actuators[a.String()]
			row.status.Text = fmt.Sprintf("%s is %s", a, label)
			row.status.Refresh()
			if label == "ON" {
				row.on.Disable()
				row.off.Enable()
			} else {
				row.off.Disable()
				row.on.Enable()
			}
		}
	}
	go func() {
		poll()
		t := time.NewTicker(refresh)
		defer t.Stop()
		for range t.C {
			poll()
		}
	}()

	myWindow.ShowAndRun()
}
