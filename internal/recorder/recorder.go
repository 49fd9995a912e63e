// Package recorder is the cloud-side consumer of the controller's
// telemetry. It stores every sensor value and actuator status it sees on
// greenhouse/# and raises alerts when a value crosses a configured
// threshold.
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/secretengineer/GreenHouse-Tender-2/internal/greenhouse"
)

// Store persists what the recorder sees.
type Store interface {
	InsertReading(ctx context.Context, key string, value float64, at time.Time) error
	UpsertStatus(ctx context.Context, device, state string, at time.Time) error
	Thresholds(ctx context.Context) (map[string]float64, error)
}

// Notifier delivers alerts.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// Alert is raised when a reading crosses <key>_high or <key>_low.
type Alert struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	Direction string    `json:"direction"` // "high" or "low"
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Value     float64   `json:"value"`
	Limit     float64   `json:"limit"`
	At        time.Time `json:"at"`
}

var sensorCategories = []string{"ambient", "soil", "thermo"}

// TopicKey turns greenhouse/ambient/temp into ambient_temp.
func TopicKey(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 {
		return ""
	}
	return strings.Join(parts[1:], "_")
}

// Recorder handles one message at a time. HandleMessage blocks on the store
// and the notifiers, so it is meant to run on mqttbus's dispatch goroutine.
type Recorder struct {
	store    Store
	notifier Notifier
	log      *slog.Logger
	now      func() time.Time
	timeout  time.Duration
}

// New returns a recorder. notifier may be nil.
func New(store Store, notifier Notifier, log *slog.Logger) *Recorder {
	return &Recorder{
		store:    store,
		notifier: notifier,
		log:      log.With("component", "recorder"),
		now:      time.Now,
		timeout:  5 * time.Second,
	}
}

// HandleMessage matches mqttbus.Handler.
func (r *Recorder) HandleMessage(topic string, payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.Record(ctx, topic, string(payload)); err != nil {
		r.log.Error("record failed", "topic", topic, "err", err)
	}
}

// Record stores one message. Topics other than sensor and status topics
// are ignored.
func (r *Recorder) Record(ctx context.Context, topic, value string) error {
	key := TopicKey(topic)
	at := r.now()
	switch {
	case isSensorTopic(topic):
		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			r.log.Warn("non-numeric reading skipped", "topic", topic, "value", value)
			return nil
		}
		if err := r.store.InsertReading(ctx, key, v, at); err != nil {
			return fmt.Errorf("store reading %s: %w", key, err)
		}
		return r.checkThresholds(ctx, key, v, value, at)
	case strings.HasPrefix(topic, greenhouse.StatusPrefix):
		device := strings.TrimPrefix(topic, greenhouse.StatusPrefix)
		if err := r.store.UpsertStatus(ctx, device, value, at); err != nil {
			return fmt.Errorf("store status %s: %w", device, err)
		}
		return nil
	}
	return nil
}

func (r *Recorder) checkThresholds(ctx context.Context, key string, v float64, raw string, at time.Time) error {
	settings, err := r.store.Thresholds(ctx)
	if err != nil {
		return fmt.Errorf("load thresholds: %w", err)
	}
	a, ok := Evaluate(key, v, raw, settings)
	if !ok {
		return nil
	}
	a.ID = uuid.NewString()
	a.At = at
	r.log.Warn("threshold crossed", "key", key, "value", v, "direction", a.Direction, "limit", a.Limit)
	if r.notifier == nil {
		return nil
	}
	if err := r.notifier.Notify(ctx, a); err != nil {
		return fmt.Errorf("notify %s: %w", a.Title, err)
	}
	return nil
}

// Evaluate checks v against <key>_high first, then <key>_low. raw is the
// value as received, used in the alert body.
func Evaluate(key string, v float64, raw string, settings map[string]float64) (Alert, bool) {
	label := strings.ReplaceAll(key, "_", " ")
	if hi, ok := settings[key+"_high"]; ok && v > hi {
		return Alert{
			Key: key, Direction: "high", Value: v, Limit: hi,
			Title: fmt.Sprintf("High %s Alert", label),
			Body:  fmt.Sprintf("%s is %s, above %s", label, raw, strconv.FormatFloat(hi, 'f', -1, 64)),
		}, true
	}
	if lo, ok := settings[key+"_low"]; ok && v < lo {
		return Alert{
			Key: key, Direction: "low", Value: v, Limit: lo,
			Title: fmt.Sprintf("Low %s Alert", label),
			Body:  fmt.Sprintf("%s is %s, below %s", label, raw, strconv.FormatFloat(lo, 'f', -1, 64)),
		}, true
	}
	return Alert{}, false
}

func isSensorTopic(topic string) bool {
	for _, c := range sensorCategories {
		if strings.HasPrefix(topic, greenhouse.TopicRoot+"/"+c+"/") {
			return true
		}
	}
	return false
}
