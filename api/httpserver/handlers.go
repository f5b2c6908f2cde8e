package httpserver

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/covops/capturenet/sim"

	"github.com/go-chi/chi/v5"
)

// RunState describes where the simulation currently is.
type RunState string

const (
	StateIdle     RunState = "idle"
	StateRunning  RunState = "running"
	StateFinished RunState = "finished"
	StateFailed   RunState = "failed"
)

// StatusResponse is the body served under /status.
type StatusResponse struct {
	State  RunState       `json:"state"`
	Error  string         `json:"error,omitempty"`
	Report *sim.RunReport `json:"report,omitempty"`
}

// StatusHandler serves the outcome of the latest simulation run.
type StatusHandler struct {
	mu     sync.RWMutex
	state  RunState
	err    string
	report *sim.RunReport
}

// NewStatusHandler creates a handler with no run recorded yet.
func NewStatusHandler() *StatusHandler {
	return &StatusHandler{state: StateIdle}
}

// RegisterRoutes registers the status endpoints.
func (h *StatusHandler) RegisterRoutes(r chi.Router) {
	r.Get("/status", h.handleStatus)
	r.Get("/report", h.handleReport)
}

// SetRunning records that a run is in flight.
func (h *StatusHandler) SetRunning() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = StateRunning
	h.err = ""
	h.report = nil
}

// Publish records a finished run. A nil report with a non-nil error
// marks the run failed.
func (h *StatusHandler) Publish(report *sim.RunReport, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.report = report
	if err != nil {
		h.state = StateFailed
		h.err = err.Error()
		return
	}
	h.state = StateFinished
	h.err = ""
}

func (h *StatusHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	resp := StatusResponse{State: h.state, Error: h.err, Report: h.report}
	h.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(&resp)
}

func (h *StatusHandler) handleReport(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	report := h.report
	h.mu.RUnlock()

	if report == nil {
		http.Error(w, "no run recorded", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}
