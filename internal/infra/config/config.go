package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	// Lead source (Google Sheets)
	GoogleCredentialsFile string
	SpreadsheetID         string
	SheetRange            string

	// WhatsApp session
	SessionDBPath string
	AdminPhone    string

	// Persistence
	LogFile        string
	CatalogLogFile string

	// Dispatch
	DefaultCountryCode string
	WelcomeTemplate    string
	CatalogFile        string
	CatalogCaption     string
	MessageDelay       time.Duration
	TrackReadReceipts  bool
	CatalogPolicy      string

	// Scheduling & health
	CronSpecCycle         string
	CronSpecHealthCheck   string
	FetchStalenessLimit   time.Duration
	FailureAlertThreshold int

	// Control surface
	HTTPAddr string

	LogLevel    string
	Environment string
}

// Load reads configuration from environment variables and .env file (if present).
// Missing required values are the only fatal startup condition.
func Load() (*AppConfig, error) {
	// Attempt to load .env file. Errors are ignored if the file doesn't exist.
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}

	cfg.GoogleCredentialsFile = os.Getenv("GOOGLE_CREDENTIALS_FILE")
	if cfg.GoogleCredentialsFile == "" {
		return nil, fmt.Errorf("GOOGLE_CREDENTIALS_FILE is not set")
	}

	cfg.SpreadsheetID = os.Getenv("SPREADSHEET_ID")
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("SPREADSHEET_ID is not set")
	}

	cfg.SheetRange = os.Getenv("SHEET_RANGE")
	if cfg.SheetRange == "" {
		cfg.SheetRange = "Leads!A2:C"
	}

	cfg.AdminPhone = os.Getenv("ADMIN_PHONE")
	if cfg.AdminPhone == "" {
		return nil, fmt.Errorf("ADMIN_PHONE is not set")
	}

	cfg.SessionDBPath = envOrDefault("SESSION_DB_PATH", "session.db")
	cfg.LogFile = envOrDefault("LOG_FILE", "message_log.txt")
	cfg.CatalogLogFile = envOrDefault("CATALOG_LOG_FILE", "catalog_log.txt")

	cfg.DefaultCountryCode = envOrDefault("DEFAULT_COUNTRY_CODE", "91")
	cfg.WelcomeTemplate = envOrDefault("WELCOME_TEMPLATE",
		"Hi %s! Thanks for your interest. How can we help you today?")
	cfg.CatalogFile = os.Getenv("CATALOG_FILE")
	cfg.CatalogCaption = envOrDefault("CATALOG_CAPTION", "Here is our latest catalog.")

	var err error
	cfg.MessageDelay, err = parseDurationEnv("MESSAGE_DELAY", 8*time.Second)
	if err != nil {
		return nil, err
	}

	cfg.TrackReadReceipts, err = parseBoolEnv("TRACK_READ_RECEIPTS", true)
	if err != nil {
		return nil, err
	}

	cfg.CatalogPolicy = strings.ToLower(envOrDefault("CATALOG_POLICY", "conditional"))
	switch cfg.CatalogPolicy {
	case "always", "conditional", "none":
	default:
		return nil, fmt.Errorf("invalid CATALOG_POLICY %q (want always, conditional or none)", cfg.CatalogPolicy)
	}

	cfg.CronSpecCycle = envOrDefault("CRON_SPEC_CYCLE", "*/30 * * * *")
	cfg.CronSpecHealthCheck = envOrDefault("CRON_SPEC_HEALTH_CHECK", "*/10 * * * *")

	cfg.FetchStalenessLimit, err = parseDurationEnv("FETCH_STALENESS_LIMIT", 2*time.Hour)
	if err != nil {
		return nil, err
	}

	thresholdStr := envOrDefault("FAILURE_ALERT_THRESHOLD", "3")
	cfg.FailureAlertThreshold, err = strconv.Atoi(thresholdStr)
	if err != nil || cfg.FailureAlertThreshold <= 0 {
		return nil, fmt.Errorf("invalid FAILURE_ALERT_THRESHOLD: %q", thresholdStr)
	}

	cfg.HTTPAddr = envOrDefault("HTTP_ADDR", ":8080")

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info" // Default log level
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development" // Default environment
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseDurationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func parseBoolEnv(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
