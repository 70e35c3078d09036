// internal/app/health_service.go
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lead_notification_bot/internal/domain/message"

	"github.com/sirupsen/logrus"
)

const alertSendTimeout = 30 * time.Second

// HealthSnapshot is the point-in-time view served by the control surface.
type HealthSnapshot struct {
	Online                   bool      `json:"online"`
	OnlineSince              time.Time `json:"onlineSince,omitempty"`
	OfflineSince             time.Time `json:"offlineSince,omitempty"`
	LastFetchSuccess         time.Time `json:"lastFetchSuccess,omitempty"`
	LastSendSuccess          time.Time `json:"lastSendSuccess,omitempty"`
	ConsecutiveFetchFailures int       `json:"consecutiveFetchFailures"`
}

// HealthMonitor owns the process-wide health counters and turns state
// transitions into operator notifications. Alerts ride the same message
// sender as lead dispatch; an alert that fails to send is logged and
// otherwise ignored so monitoring can never take down the cycle.
type HealthMonitor struct {
	sender           message.Sender
	adminPhone       string
	failureThreshold int
	stalenessLimit   time.Duration
	logger           *logrus.Logger

	mu               sync.Mutex
	online           bool
	onlineSince      time.Time
	offlineSince     time.Time
	lastFetchSuccess time.Time
	lastSendSuccess  time.Time
	fetchFailures    int
	staleAlerted     bool
}

func NewHealthMonitor(sender message.Sender, adminPhone string, failureThreshold int, stalenessLimit time.Duration, logger *logrus.Logger) *HealthMonitor {
	if failureThreshold <= 0 {
		failureThreshold = 3
	}
	return &HealthMonitor{
		sender:           sender,
		adminPhone:       adminPhone,
		failureThreshold: failureThreshold,
		stalenessLimit:   stalenessLimit,
		logger:           logger,
	}
}

// RecordFetchSuccess resets the consecutive failure counter.
func (h *HealthMonitor) RecordFetchSuccess() {
	h.mu.Lock()
	h.lastFetchSuccess = time.Now()
	h.fetchFailures = 0
	h.staleAlerted = false
	h.mu.Unlock()
}

// RecordFetchFailure bumps the consecutive failure counter and alerts the
// operator exactly once when the threshold is crossed.
func (h *HealthMonitor) RecordFetchFailure(cause error) {
	h.mu.Lock()
	h.fetchFailures++
	count := h.fetchFailures
	h.mu.Unlock()

	h.logger.Warnf("Lead fetch failure #%d: %v", count, cause)
	if count == h.failureThreshold {
		h.alert(fmt.Sprintf("⚠️ Lead fetch has failed %d times in a row. Last error: %v", count, cause))
	}
}

// RecordSendSuccess stamps the last successful outbound send.
func (h *HealthMonitor) RecordSendSuccess() {
	h.mu.Lock()
	h.lastSendSuccess = time.Now()
	h.mu.Unlock()
}

// SetOnline marks the chat session ready. A recovery notice with the
// computed downtime goes out when this ends an observed outage.
func (h *HealthMonitor) SetOnline() {
	h.mu.Lock()
	if h.online {
		h.mu.Unlock()
		return
	}
	h.online = true
	h.onlineSince = time.Now()
	downSince := h.offlineSince
	h.mu.Unlock()

	h.logger.Info("Chat session is online.")
	if !downSince.IsZero() {
		downtime := time.Since(downSince).Round(time.Second)
		h.alert(fmt.Sprintf("✅ WhatsApp session recovered. Downtime: %s.", downtime))
	}
}

// SetOffline marks the chat session lost and alerts the operator.
func (h *HealthMonitor) SetOffline(cause string) {
	h.mu.Lock()
	if !h.online && !h.offlineSince.IsZero() {
		h.mu.Unlock()
		return
	}
	h.online = false
	h.offlineSince = time.Now()
	h.mu.Unlock()

	h.logger.Warnf("Chat session went offline: %s", cause)
	h.alert(fmt.Sprintf("🚨 WhatsApp session went offline: %s", cause))
}

// CheckStaleness alerts when the last successful fetch is older than the
// configured limit. Re-alerts only after a successful fetch resets the flag.
func (h *HealthMonitor) CheckStaleness() {
	if h.stalenessLimit <= 0 {
		return
	}

	h.mu.Lock()
	last := h.lastFetchSuccess
	alreadyAlerted := h.staleAlerted
	stale := !last.IsZero() && time.Since(last) > h.stalenessLimit
	if stale && !alreadyAlerted {
		h.staleAlerted = true
	}
	h.mu.Unlock()

	if stale && !alreadyAlerted {
		h.alert(fmt.Sprintf("⚠️ No successful lead fetch since %s (limit %s).",
			last.Format("2006-01-02 15:04:05"), h.stalenessLimit))
	}
}

// Snapshot returns the current counters for the control surface.
func (h *HealthMonitor) Snapshot() HealthSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return HealthSnapshot{
		Online:                   h.online,
		OnlineSince:              h.onlineSince,
		OfflineSince:             h.offlineSince,
		LastFetchSuccess:         h.lastFetchSuccess,
		LastSendSuccess:          h.lastSendSuccess,
		ConsecutiveFetchFailures: h.fetchFailures,
	}
}

func (h *HealthMonitor) alert(text string) {
	if h.adminPhone == "" {
		h.logger.Warn("Admin phone not configured; dropping alert: " + text)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), alertSendTimeout)
	defer cancel()

	if err := h.sender.SendText(ctx, h.adminPhone, text); err != nil {
		h.logger.Errorf("Failed to deliver operator alert: %v", err)
		return
	}
	h.logger.Infof("Operator alert sent: %s", text)
}
