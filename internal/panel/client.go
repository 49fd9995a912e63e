// Package panel is the control panel's client for the controller API.
package panel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/secretengineer/GreenHouse-Tender-2/internal/api"
	"github.com/secretengineer/GreenHouse-Tender-2/internal/greenhouse"
)

// Client talks to one controller.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient returns a client for baseURL with a short timeout.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 5 * time.Second},
	}
}

// SensorData fetches the latest cycle.
func (c *Client) SensorData(ctx context.Context) (api.SensorData, error) {
	var out api.SensorData
	err := c.get(ctx, "/sensor-data", &out)
	return out, err
}

// Status fetches connectivity and actuator states.
func (c *Client) Status(ctx context.Context) (api.Status, error) {
	var out api.Status
	err := c.get(ctx, "/status", &out)
	return out, err
}

// Command asks the controller to switch an actuator.
func (c *Client) Command(ctx context.Context, a greenhouse.Actuator, on bool) error {
	cmd := "off"
	if on {
		cmd = "on"
	}
	body, _ := json.Marshal(api.ControlRequest{Command: cmd})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/control/"+a.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP POST Error: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error [%d]: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP GET Error: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error [%d]: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// FormatReadings renders one line per reading for the panel.
func FormatReadings(d api.SensorData) []string {
	lines := make([]string, 0, len(d.Readings))
	for _, r := range d.Readings {
		if r.Value == nil {
			lines = append(lines, fmt.Sprintf("%s: --", r.Sensor))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %.2f %s", r.Sensor, *r.Value, r.Unit))
	}
	return lines
}
