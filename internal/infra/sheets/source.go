// internal/infra/sheets/source.go
package sheets

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lead_notification_bot/internal/domain/lead"

	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// captureDateLayouts covers the formats the sheet's date column shows up in.
var captureDateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006",
}

// Source fetches lead rows from a Google Sheets range. Row shape is
// name, phone, optional capture date; malformed rows are skipped with a
// warning rather than failing the fetch.
type Source struct {
	svc           *sheets.Service
	spreadsheetID string
	readRange     string
	logger        *logrus.Logger
}

// NewSource creates a Sheets API client from a service-account credentials file.
func NewSource(ctx context.Context, credentialsFile, spreadsheetID, readRange string, logger *logrus.Logger) (*Source, error) {
	svc, err := sheets.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(sheets.SpreadsheetsReadonlyScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &Source{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		readRange:     readRange,
		logger:        logger,
	}, nil
}

// Fetch reads the configured range and maps rows to leads. API failures come
// back as a typed FetchError for the cycle to count, never as a panic or an
// untyped error.
func (s *Source) Fetch(ctx context.Context) ([]lead.Lead, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.readRange).Context(ctx).Do()
	if err != nil {
		return nil, &lead.FetchError{Op: "values.get", Err: err}
	}

	leads := make([]lead.Lead, 0, len(resp.Values))
	for i, row := range resp.Values {
		l, ok := parseRow(row)
		if !ok {
			s.logger.Warnf("Sheet row %d has no usable name/phone, skipping.", i+1)
			continue
		}
		leads = append(leads, l)
	}

	s.logger.Infof("Fetched %d lead rows from range %s.", len(leads), s.readRange)
	return leads, nil
}

func parseRow(row []interface{}) (lead.Lead, bool) {
	l := lead.Lead{}
	if len(row) > 0 {
		l.Name = strings.TrimSpace(fmt.Sprintf("%v", row[0]))
	}
	if len(row) > 1 {
		l.Phone = strings.TrimSpace(fmt.Sprintf("%v", row[1]))
	}
	if l.Name == "" || l.Phone == "" {
		return lead.Lead{}, false
	}

	if len(row) > 2 {
		raw := strings.TrimSpace(fmt.Sprintf("%v", row[2]))
		for _, layout := range captureDateLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				l.CapturedAt = t
				break
			}
		}
	}
	return l, true
}
