// internal/app/lead_service.go
package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"lead_notification_bot/internal/domain/lead"
	"lead_notification_bot/internal/domain/message"
	"lead_notification_bot/internal/domain/phone"

	"github.com/sirupsen/logrus"
)

// CatalogPolicy selects when the catalog attachment goes out relative to the
// welcome message.
type CatalogPolicy string

const (
	CatalogAlways      CatalogPolicy = "always"      // bundle catalog with every welcome
	CatalogConditional CatalogPolicy = "conditional" // send catalog once the welcome is read
	CatalogNone        CatalogPolicy = "none"
)

// LeadServiceConfig carries the dispatch knobs.
type LeadServiceConfig struct {
	WelcomeTemplate   string // fmt template, lead name as the single %s
	CatalogFile       string
	CatalogCaption    string
	MessageDelay      time.Duration // inter-lead pause, rate limiting against provider bans
	TrackReadReceipts bool
	CatalogPolicy     CatalogPolicy
}

// LeadService orchestrates one processing cycle: fetch leads, diff against
// the log store, dispatch whatever is still missing and record the outcome.
// Only one cycle runs at a time process-wide; a trigger while one is in
// flight is a logged no-op.
type LeadService struct {
	source     lead.Source
	sender     message.Sender
	mainLog    message.Store
	catalogLog message.Store
	locks      *LockRegistry
	health     *HealthMonitor
	normalizer phone.Normalizer
	cfg        LeadServiceConfig
	logger     *logrus.Logger

	busy atomic.Bool
}

func NewLeadService(
	source lead.Source,
	sender message.Sender,
	mainLog message.Store,
	catalogLog message.Store,
	locks *LockRegistry,
	health *HealthMonitor,
	normalizer phone.Normalizer,
	cfg LeadServiceConfig,
	logger *logrus.Logger,
) *LeadService {
	if cfg.WelcomeTemplate == "" {
		cfg.WelcomeTemplate = "Hi %s! Thanks for your interest. How can we help you today?"
	}
	if cfg.CatalogPolicy == "" {
		cfg.CatalogPolicy = CatalogConditional
	}
	return &LeadService{
		source:     source,
		sender:     sender,
		mainLog:    mainLog,
		catalogLog: catalogLog,
		locks:      locks,
		health:     health,
		normalizer: normalizer,
		cfg:        cfg,
		logger:     logger,
	}
}

// Processing reports whether a cycle is currently in flight.
func (s *LeadService) Processing() bool {
	return s.busy.Load()
}

// RunCycle executes one full pass over the current lead list. Per-lead
// failures never abort the cycle; a fetch failure ends it early with zero
// leads processed.
func (s *LeadService) RunCycle(ctx context.Context) error {
	if !s.busy.CompareAndSwap(false, true) {
		s.logger.Info("Cycle trigger ignored: a cycle is already in flight.")
		return nil
	}
	defer s.busy.Store(false)

	s.logger.Info("Cycle started: fetching leads...")
	leads, err := s.source.Fetch(ctx)
	if err != nil {
		s.logger.Errorf("Cycle ended early, lead fetch failed: %v", err)
		s.health.RecordFetchFailure(err)
		return nil
	}
	s.health.RecordFetchSuccess()
	s.logger.Infof("Fetched %d leads.", len(leads))

	sentSet, err := s.mainLog.Phones(message.StatusSent, message.StatusSeen, message.StatusInvalid)
	if err != nil {
		s.logger.Errorf("Cycle ended early, could not load sent set: %v", err)
		return err
	}
	catalogSet, err := s.catalogLog.Phones(message.StatusSent)
	if err != nil {
		s.logger.Errorf("Cycle ended early, could not load catalog set: %v", err)
		return err
	}

	attempted := make(map[string]bool) // phones touched this cycle, success or not
	var sent, skipped, failed int

	for i, l := range leads {
		if ctx.Err() != nil {
			s.logger.Infof("Cycle cancelled after %d/%d leads.", i, len(leads))
			break
		}

		p := s.normalizer.Normalize(l.Phone)
		if p == "" {
			s.logger.Warnf("Lead %q has no usable phone (%q), skipping.", l.Name, l.Phone)
			skipped++
			continue
		}
		if sentSet[p] || attempted[p] {
			skipped++
			continue
		}
		if !s.locks.TryAcquire(p) {
			s.logger.Infof("Phone %s is locked by another dispatch, skipping.", p)
			skipped++
			continue
		}

		attempted[p] = true
		ok := s.dispatchLead(ctx, l, p, catalogSet)
		if ok {
			sentSet[p] = true
			sent++
		} else {
			failed++
		}

		if i < len(leads)-1 && s.cfg.MessageDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(s.cfg.MessageDelay):
			}
		}
	}

	s.logger.Infof("Cycle finished: %d sent, %d skipped, %d failed of %d leads.",
		sent, skipped, failed, len(leads))
	return nil
}

// dispatchLead sends the welcome (and catalog, per policy) to one lead and
// records the outcome. The dispatch lock is released on every exit path.
func (s *LeadService) dispatchLead(ctx context.Context, l lead.Lead, p string, catalogSet map[string]bool) bool {
	defer s.locks.Release(p)

	text := fmt.Sprintf(s.cfg.WelcomeTemplate, l.Name)
	now := time.Now()

	if err := s.sender.SendText(ctx, p, text); err != nil {
		status := message.ClassifyError(err)
		s.logger.Errorf("Send to %s (%s) failed with status %s: %v", p, l.Name, status, err)
		s.appendMain(message.Entry{Phone: p, Name: l.Name, Timestamp: now, Status: status})
		return false
	}

	s.logger.Infof("Welcome sent to %s (%s).", p, l.Name)
	s.health.RecordSendSuccess()
	s.appendMain(message.Entry{Phone: p, Name: l.Name, Timestamp: now, Status: message.StatusSent})

	if s.cfg.CatalogPolicy == CatalogAlways && !catalogSet[p] {
		if s.sendCatalog(ctx, p, l.Name) {
			catalogSet[p] = true
		}
	}
	return true
}

// HandleReadReceipt transitions the phone's Sent row to Seen and, under the
// conditional catalog policy, dispatches the catalog as the follow-up. Runs
// on the inbound event path, concurrent with cycles; the per-phone lock keeps
// the catalog send from racing an overlapping dispatch.
func (s *LeadService) HandleReadReceipt(ctx context.Context, rawPhone string) {
	if !s.cfg.TrackReadReceipts {
		return
	}

	p := s.normalizer.Normalize(rawPhone)
	if p == "" {
		return
	}

	name, ok, err := s.mainLog.TransitionToSeen(p)
	if err != nil {
		s.logger.Errorf("Seen transition for %s failed: %v", p, err)
		return
	}
	if !ok {
		return // no Sent row, or already transitioned
	}
	s.logger.Infof("Message to %s (%s) marked Seen.", p, name)

	if s.cfg.CatalogPolicy != CatalogConditional {
		return
	}

	catalogSet, err := s.catalogLog.Phones(message.StatusSent)
	if err != nil {
		s.logger.Errorf("Could not load catalog set for %s: %v", p, err)
		return
	}
	if catalogSet[p] {
		return
	}
	if !s.locks.TryAcquire(p) {
		s.logger.Infof("Phone %s is locked, deferring catalog send.", p)
		return
	}
	defer s.locks.Release(p)

	s.sendCatalog(ctx, p, name)
}

func (s *LeadService) sendCatalog(ctx context.Context, p, name string) bool {
	if err := s.sender.SendDocument(ctx, p, s.cfg.CatalogFile, s.cfg.CatalogCaption); err != nil {
		s.logger.Errorf("Catalog send to %s failed: %v", p, err)
		return false
	}
	s.logger.Infof("Catalog sent to %s (%s).", p, name)
	if err := s.catalogLog.Append(message.Entry{
		Phone: p, Name: name, Timestamp: time.Now(), Status: message.StatusSent,
	}); err != nil {
		s.logger.Errorf("Catalog log append for %s failed: %v", p, err)
	}
	return true
}

func (s *LeadService) appendMain(e message.Entry) {
	if err := s.mainLog.Append(e); err != nil {
		s.logger.Errorf("Main log append for %s failed: %v", e.Phone, err)
	}
}
