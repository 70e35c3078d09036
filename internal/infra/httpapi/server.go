// internal/infra/httpapi/server.go
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"lead_notification_bot/internal/app"
	"lead_notification_bot/internal/domain/message"
	"lead_notification_bot/internal/infra/whatsapp"

	"github.com/sirupsen/logrus"
)

const dateLayout = "2006-01-02"

// Trigger controls the periodic cycle trigger.
type Trigger interface {
	Start()
	Stop()
}

// SessionController is the slice of the chat session the control surface
// needs: observable state and the reset operation.
type SessionController interface {
	State() whatsapp.State
	Reset(ctx context.Context) error
}

// Server is the JSON control surface consumed by the dashboard. It always
// answers from last known state; no handler blocks on recovery of the chat
// session or the lead source.
type Server struct {
	leads   *app.LeadService
	health  *app.HealthMonitor
	session SessionController
	trigger Trigger
	mainLog message.Store
	logger  *logrus.Logger

	httpServer *http.Server

	mu          sync.Mutex
	cycleCancel context.CancelFunc
}

func NewServer(
	addr string,
	leads *app.LeadService,
	health *app.HealthMonitor,
	session SessionController,
	trigger Trigger,
	mainLog message.Store,
	logger *logrus.Logger,
) *Server {
	s := &Server{
		leads:   leads,
		health:  health,
		session: session,
		trigger: trigger,
		mainLog: mainLog,
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/start", s.handleStart)
	mux.HandleFunc("/api/stop", s.handleStop)
	mux.HandleFunc("/api/reset-session", s.handleResetSession)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/analytics", s.handleAnalytics)
	mux.HandleFunc("/api/logs", s.handleLogs)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving the control API.
func (s *Server) ListenAndServe() error {
	s.logger.Infof("Control API listening on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	if s.leads.Processing() {
		writeJSON(w, http.StatusConflict, map[string]string{"status": "busy"})
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cycleCancel = cancel
	s.mu.Unlock()

	go func() {
		defer cancel()
		if err := s.leads.RunCycle(ctx); err != nil {
			s.logger.Errorf("Manually triggered cycle failed: %v", err)
		}
	}()
	s.trigger.Start()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	s.trigger.Stop()

	s.mu.Lock()
	if s.cycleCancel != nil {
		s.cycleCancel() // in-flight cycle finishes its current lead, then exits
		s.cycleCancel = nil
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	if err := s.session.Reset(r.Context()); err != nil {
		s.logger.Errorf("Session reset failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session":    string(s.session.State()),
		"processing": s.leads.Processing(),
		"health":     s.health.Snapshot(),
	})
}

// analyticsResponse aggregates log rows over a date range.
type analyticsResponse struct {
	From             string  `json:"from,omitempty"`
	To               string  `json:"to,omitempty"`
	Total            int     `json:"total"`
	Sent             int     `json:"sent"`
	Seen             int     `json:"seen"`
	Failed           int     `json:"failed"`
	Invalid          int     `json:"invalid"`
	AvgTimeToSeeSecs float64 `json:"avgTimeToSeeSecs"`
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	from, to, ok := parseRange(w, r)
	if !ok {
		return
	}

	entries, err := s.mainLog.Entries(from, to)
	if err != nil {
		s.logger.Errorf("Analytics log read failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "log read failed"})
		return
	}

	resp := analyticsResponse{From: r.URL.Query().Get("from"), To: r.URL.Query().Get("to")}
	var seenSecs int64
	for _, e := range entries {
		resp.Total++
		switch e.Status {
		case message.StatusSent:
			resp.Sent++
		case message.StatusSeen:
			resp.Seen++
			seenSecs += e.TimeToSeeSecs
		case message.StatusFailed:
			resp.Failed++
		case message.StatusInvalid:
			resp.Invalid++
		}
	}
	if resp.Seen > 0 {
		resp.AvgTimeToSeeSecs = float64(seenSecs) / float64(resp.Seen)
	}

	writeJSON(w, http.StatusOK, resp)
}

// logRow is the wire shape of one log entry.
type logRow struct {
	Phone         string `json:"phone"`
	Name          string `json:"name"`
	Timestamp     string `json:"timestamp"`
	Status        string `json:"status"`
	SeenTimestamp string `json:"seenTimestamp,omitempty"`
	TimeToSeeSecs int64  `json:"timeToSeeSecs,omitempty"`
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	from, to, ok := parseRange(w, r)
	if !ok {
		return
	}

	entries, err := s.mainLog.Entries(from, to)
	if err != nil {
		s.logger.Errorf("Log replay failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "log read failed"})
		return
	}

	rows := make([]logRow, 0, len(entries))
	for _, e := range entries {
		row := logRow{
			Phone:         e.Phone,
			Name:          e.Name,
			Timestamp:     e.Timestamp.Format(time.RFC3339),
			Status:        string(e.Status),
			TimeToSeeSecs: e.TimeToSeeSecs,
		}
		if !e.SeenTimestamp.IsZero() {
			row.SeenTimestamp = e.SeenTimestamp.Format(time.RFC3339)
		}
		rows = append(rows, row)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"rows": rows})
}

// parseRange reads optional from/to date query params (YYYY-MM-DD, to is
// inclusive through end of day). Reports and writes a 400 on bad input.
func parseRange(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	var from, to time.Time

	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid 'from' date, want YYYY-MM-DD"})
			return from, to, false
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid 'to' date, want YYYY-MM-DD"})
			return from, to, false
		}
		to = t.Add(24*time.Hour - time.Second)
	}
	return from, to, true
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
