package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lead_notification_bot/internal/app"
	"lead_notification_bot/internal/domain/phone"
	"lead_notification_bot/internal/infra/config"
	"lead_notification_bot/internal/infra/httpapi"
	"lead_notification_bot/internal/infra/logger"
	"lead_notification_bot/internal/infra/msglog"
	"lead_notification_bot/internal/infra/scheduler"
	"lead_notification_bot/internal/infra/sheets"
	"lead_notification_bot/internal/infra/whatsapp"
)

func main() {
	fmt.Println("Lead Notification Bot starting...")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Could not load application configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg)
	log := logger.Get()
	log.Infof("Configuration loaded. LogLevel: %s, Environment: %s, Admin phone: %s",
		cfg.LogLevel, cfg.Environment, cfg.AdminPhone)

	ctx := context.Background()

	// Log stores (main + catalog, independent writer queues)
	mainLog := msglog.NewMainStore(cfg.LogFile, log)
	catalogLog := msglog.NewCatalogStore(cfg.CatalogLogFile, log)
	log.Info("Log stores initialized.")

	// Lead source (Google Sheets)
	leadSource, err := sheets.NewSource(ctx, cfg.GoogleCredentialsFile, cfg.SpreadsheetID, cfg.SheetRange, log)
	if err != nil {
		log.Fatalf("FATAL: Could not initialize lead source: %v", err)
	}
	log.Info("Lead source initialized.")

	// WhatsApp session + sender
	session, err := whatsapp.NewSession(ctx, cfg.SessionDBPath, log)
	if err != nil {
		log.Fatalf("FATAL: Could not initialize WhatsApp session: %v", err)
	}
	sender := whatsapp.NewSender(session, log)
	log.Info("WhatsApp session and sender initialized.")

	// Services
	normalizer := phone.Normalizer{CountryCode: cfg.DefaultCountryCode}
	health := app.NewHealthMonitor(sender, normalizer.Normalize(cfg.AdminPhone),
		cfg.FailureAlertThreshold, cfg.FetchStalenessLimit, log)
	leadService := app.NewLeadService(leadSource, sender, mainLog, catalogLog,
		app.NewLockRegistry(), health, normalizer,
		app.LeadServiceConfig{
			WelcomeTemplate:   cfg.WelcomeTemplate,
			CatalogFile:       cfg.CatalogFile,
			CatalogCaption:    cfg.CatalogCaption,
			MessageDelay:      cfg.MessageDelay,
			TrackReadReceipts: cfg.TrackReadReceipts,
			CatalogPolicy:     app.CatalogPolicy(cfg.CatalogPolicy),
		}, log)
	log.Info("Lead service and health monitor initialized.")

	// Session transitions feed the health monitor; read receipts feed the
	// lead service through a dedicated handler goroutine.
	session.OnTransition(health.SetOnline, health.SetOffline)
	receiptCtx, stopReceipts := context.WithCancel(ctx)
	go func() {
		for {
			select {
			case <-receiptCtx.Done():
				return
			case r := <-session.Receipts():
				leadService.HandleReadReceipt(receiptCtx, r.Phone)
			}
		}
	}()

	if err := session.Connect(ctx); err != nil {
		log.Fatalf("FATAL: Could not connect WhatsApp session: %v", err)
	}

	// Scheduler
	cycleScheduler := scheduler.NewCycleScheduler(leadService, health, log,
		cfg.CronSpecCycle, cfg.CronSpecHealthCheck)
	cycleScheduler.Start()

	// Control API
	apiServer := httpapi.NewServer(cfg.HTTPAddr, leadService, health, session,
		cycleScheduler, mainLog, log)
	go func() {
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Control API stopped: %v", err)
		}
	}()

	log.Info("Application setup complete. Scheduler and control API are running.")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down application...")
	cycleScheduler.Shutdown()
	stopReceipts()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Control API shutdown error: %v", err)
	}

	session.Disconnect()
	mainLog.Close()
	catalogLog.Close()
	log.Info("Application shut down gracefully.")
}
