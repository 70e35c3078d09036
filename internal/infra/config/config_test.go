package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("GOOGLE_CREDENTIALS_FILE", "creds.json")
	t.Setenv("SPREADSHEET_ID", "sheet-id")
	t.Setenv("ADMIN_PHONE", "919999999999")
}

func TestLoad_DefaultsApplied(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "Leads!A2:C", cfg.SheetRange)
	assert.Equal(t, "91", cfg.DefaultCountryCode)
	assert.Equal(t, 8*time.Second, cfg.MessageDelay)
	assert.Equal(t, "conditional", cfg.CatalogPolicy)
	assert.True(t, cfg.TrackReadReceipts)
	assert.Equal(t, 3, cfg.FailureAlertThreshold)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("GOOGLE_CREDENTIALS_FILE", "")
	t.Setenv("SPREADSHEET_ID", "")
	t.Setenv("ADMIN_PHONE", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GOOGLE_CREDENTIALS_FILE")
}

func TestLoad_InvalidCatalogPolicy(t *testing.T) {
	setRequired(t)
	t.Setenv("CATALOG_POLICY", "sometimes")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CATALOG_POLICY")
}

func TestLoad_InvalidDuration(t *testing.T) {
	setRequired(t)
	t.Setenv("MESSAGE_DELAY", "soon")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("MESSAGE_DELAY", "15s")
	t.Setenv("CATALOG_POLICY", "always")
	t.Setenv("TRACK_READ_RECEIPTS", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, cfg.MessageDelay)
	assert.Equal(t, "always", cfg.CatalogPolicy)
	assert.False(t, cfg.TrackReadReceipts)
}
