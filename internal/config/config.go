// Package config loads runtime settings from the environment and an
// optional properties file. Settings are read once at startup.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the settings of every greenhouse program. Each binary reads
// the fields it needs.
type Config struct {
	// MQTT
	BrokerURL  string // tcp://host:1883
	ClientID   string // empty means greenhouse-<uuid>
	MQTTUser   string
	MQTTPass   string
	PublishTTL time.Duration // bound on waiting for a publish ack

	// Sensor/relay board
	SerialPort string // empty selects the simulated board
	SerialBaud int
	SerialWait time.Duration

	// Control loop
	CycleInterval   time.Duration
	LinkAttempts    int
	LinkInterval    time.Duration
	BrokerAttempts  int
	BrokerDelay     time.Duration
	WatchdogTimeout time.Duration
	CommandQueue    int
	Display         string // "", "none" or "console"

	// HTTP
	HTTPBind string

	// Logging
	LogPath  string
	LogLevel string

	// greenhouse-sync
	DatabaseURL  string
	KafkaBrokers []string
	KafkaTopic   string

	// greenhouse-cam
	FrameDir      string
	FrameInterval time.Duration

	// greenhouse-panel
	ControllerURL string
	PanelRefresh  time.Duration

	PropertiesPath string
}

// Load reads GREENHOUSE_PROPERTIES (if set) and the environment. Environment
// variables win over the properties file, which wins over defaults.
func Load() (*Config, error) {
	props := map[string]string{}
	path := os.Getenv("GREENHOUSE_PROPERTIES")
	if path != "" {
		p, err := loadProperties(path)
		if err != nil {
			return nil, err
		}
		props = p
	}
	return FromLookup(lookupFunc(props))
}

// FromLookup builds a Config from an arbitrary key source. Used by Load and
// by tests.
func FromLookup(get func(key string) (string, bool)) (*Config, error) {
	r := reader{get: get}
	cfg := &Config{
		BrokerURL:  r.str("MQTT_BROKER", "tcp://localhost:1883"),
		ClientID:   r.str("MQTT_CLIENT_ID", ""),
		MQTTUser:   r.str("MQTT_USER", ""),
		MQTTPass:   r.str("MQTT_PASS", ""),
		PublishTTL: r.duration("MQTT_PUBLISH_TIMEOUT", 2*time.Second),

		SerialPort: r.str("SERIAL_PORT", ""),
		SerialBaud: r.integer("SERIAL_BAUD", 115200),
		SerialWait: r.duration("SERIAL_TIMEOUT", 2*time.Second),

		CycleInterval:   r.duration("CYCLE_INTERVAL", 5*time.Second),
		LinkAttempts:    r.integer("LINK_ATTEMPTS", 30),
		LinkInterval:    r.duration("LINK_INTERVAL", 500*time.Millisecond),
		BrokerAttempts:  r.integer("BROKER_ATTEMPTS", 5),
		BrokerDelay:     r.duration("BROKER_DELAY", 5*time.Second),
		WatchdogTimeout: r.duration("WATCHDOG_TIMEOUT", 60*time.Second),
		CommandQueue:    r.integer("COMMAND_QUEUE", 16),
		Display:         r.str("DISPLAY_MODE", "none"),

		HTTPBind: r.str("HTTP_BIND", ":8080"),

		LogPath:  r.str("LOG_PATH", ""),
		LogLevel: r.str("LOG_LEVEL", "info"),

		DatabaseURL:  r.str("DATABASE_URL", "user=postgres dbname=greenhouse sslmode=disable"),
		KafkaBrokers: splitAndTrim(r.str("KAFKA_BROKERS", ""), ","),
		KafkaTopic:   r.str("KAFKA_ALERT_TOPIC", "greenhouse.alerts"),

		FrameDir:      r.str("FRAME_DIR", "./frames"),
		FrameInterval: r.duration("FRAME_INTERVAL", 200*time.Millisecond),

		ControllerURL: strings.TrimRight(r.str("CONTROLLER_URL", "http://localhost:8080"), "/"),
		PanelRefresh:  r.duration("PANEL_REFRESH", 5*time.Second),

		PropertiesPath: r.str("GREENHOUSE_PROPERTIES", ""),
	}
	if len(r.errs) > 0 {
		return nil, errors.Join(r.errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the control loop cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.BrokerURL == "" {
		errs = append(errs, errors.New("MQTT_BROKER is required"))
	}
	positive := []struct {
		name string
		ok   bool
	}{
		{"CYCLE_INTERVAL", c.CycleInterval > 0},
		{"LINK_ATTEMPTS", c.LinkAttempts > 0},
		{"LINK_INTERVAL", c.LinkInterval > 0},
		{"BROKER_ATTEMPTS", c.BrokerAttempts > 0},
		{"BROKER_DELAY", c.BrokerDelay > 0},
		{"WATCHDOG_TIMEOUT", c.WatchdogTimeout > 0},
		{"COMMAND_QUEUE", c.CommandQueue > 0},
		{"SERIAL_BAUD", c.SerialBaud > 0},
		{"MQTT_PUBLISH_TIMEOUT", c.PublishTTL > 0},
		{"FRAME_INTERVAL", c.FrameInterval > 0},
		{"PANEL_REFRESH", c.PanelRefresh > 0},
	}
	for _, p := range positive {
		if !p.ok {
			errs = append(errs, fmt.Errorf("%s must be positive", p.name))
		}
	}
	switch c.Display {
	case "", "none", "console":
	default:
		errs = append(errs, fmt.Errorf("DISPLAY_MODE %q not supported", c.Display))
	}
	return errors.Join(errs...)
}

func lookupFunc(props map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := props[key]
		return v, ok
	}
}

type reader struct {
	get  func(string) (string, bool)
	errs []error
}

func (r *reader) str(key, def string) string {
	if v, ok := r.get(key); ok {
		return strings.TrimSpace(v)
	}
	return def
}

func (r *reader) integer(key string, def int) int {
	v, ok := r.get(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return def
	}
	return n
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v, ok := r.get(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return def
	}
	return d
}

func loadProperties(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open properties file %s: %w", path, err)
	}
	defer f.Close()

	m := map[string]string{}
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		m[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("read properties file %s: %w", path, err)
	}
	return m, nil
}

func splitAndTrim(s, sep string) []string {
	var out []string
	for _, p := range strings.Split(s, sep) {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
