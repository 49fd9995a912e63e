// Package api is the controller's local HTTP interface: latest readings,
// actuator status, manual control and metrics.
package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/secretengineer/GreenHouse-Tender-2/internal/greenhouse"
)

// Enqueuer accepts manual commands; the control loop applies them.
type Enqueuer interface {
	Enqueue(cmd greenhouse.Command) bool
}

// SensorData is the body of GET /sensor-data.
type SensorData struct {
	Readings  []ReadingView `json:"readings"`
	LastCycle time.Time     `json:"last_cycle"`
	Cycles    uint64        `json:"cycles"`
}

// ReadingView is one reading as served over HTTP.
type ReadingView struct {
	Sensor string   `json:"sensor"`
	Topic  string   `json:"topic"`
	Value  *float64 `json:"value"`
	Unit   string   `json:"unit"`
	Valid  bool     `json:"valid"`
}

// Status is the body of GET /status.
type Status struct {
	Connectivity string            `json:"connectivity"`
	Actuators    map[string]string `json:"actuators"`
}

// ControlRequest is the body of POST /control/{actuator}.
type ControlRequest struct {
	Command string `json:"command"`
}

// Server holds the handlers' dependencies.
type Server struct {
	state   *greenhouse.State
	queue   Enqueuer
	metrics http.Handler
	log     *slog.Logger
}

// NewRouter builds the routes. metricsHandler may be nil.
func NewRouter(state *greenhouse.State, q Enqueuer, metricsHandler http.Handler, log *slog.Logger) *mux.Router {
	s := &Server{state: state, queue: q, metrics: metricsHandler, log: log.With("component", "api")}
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	r.HandleFunc("/sensor-data", s.sensorData).Methods(http.MethodGet)
	r.HandleFunc("/status", s.status).Methods(http.MethodGet)
	r.HandleFunc("/control/{actuator}", s.control).Methods(http.MethodPost)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler).Methods(http.MethodGet)
	}
	return r
}

// Wrap adds access logging and panic recovery.
func Wrap(h http.Handler, accessLog io.Writer) http.Handler {
	return handlers.LoggingHandler(accessLog, handlers.RecoveryHandler()(h))
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	snap := s.state.Snapshot()
	code := http.StatusOK
	if snap.Phase == greenhouse.Fatal {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": snap.Phase.String()})
}

func (s *Server) sensorData(w http.ResponseWriter, r *http.Request) {
	snap := s.state.Snapshot()
	if snap.Cycles == 0 {
		http.Error(w, "no data yet", http.StatusNotFound)
		return
	}
	out := SensorData{LastCycle: snap.LastCycle, Cycles: snap.Cycles}
	for _, rd := range snap.Readings {
		v := ReadingView{Sensor: rd.Kind.String(), Topic: rd.Kind.Topic(), Unit: rd.Kind.Unit(), Valid: rd.Valid}
		if rd.Valid {
			val := rd.Value
			v.Value = &val
		}
		out.Readings = append(out.Readings, v)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	snap := s.state.Snapshot()
	out := Status{Connectivity: snap.Phase.String(), Actuators: map[string]string{}}
	for _, a := range snap.Actuators {
		out.Actuators[a.Actuator.String()] = a.Label()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) control(w http.ResponseWriter, r *http.Request) {
	a, err := greenhouse.ParseActuator(mux.Vars(r)["actuator"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	var req ControlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	var on bool
	switch req.Command {
	case "on":
		on = true
	case "off":
	default:
		http.Error(w, "Use 'on' or 'off'", http.StatusBadRequest)
		return
	}
	if !s.queue.Enqueue(greenhouse.Command{Actuator: a, On: on, Source: "api"}) {
		http.Error(w, "command queue full", http.StatusServiceUnavailable)
		return
	}
	s.log.Info("manual command queued", "actuator", a, "state", greenhouse.OnOff(on), "remote", r.RemoteAddr)
	writeJSON(w, http.StatusAccepted, map[string]string{"actuator": a.String(), "requested": greenhouse.OnOff(on)})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
