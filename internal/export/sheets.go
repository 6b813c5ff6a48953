// Package export appends logged sessions to a Google Sheets timesheet.
// Authentication uses a service account; the sheet name is prefixed with the
// current year so each year gets its own tab.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"tempo/internal/config"
	"tempo/internal/core"
	applog "tempo/internal/log"
)

// SessionWriter is the outbound port the sync worker writes through.
type SessionWriter interface {
	AppendSession(ctx context.Context, s core.Session) (rowRef string, err error)
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	loc           *time.Location
}

var _ SessionWriter = (*Client)(nil)

// New creates a Sheets client from the loaded configuration. The configured
// sheet name is prefixed with the current year unless it already carries one.
func New(ctx context.Context, cfg *config.Config, loc *time.Location) (*Client, error) {
	spreadsheetID := strings.TrimSpace(cfg.GoogleSpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	credentialsJSON, err := loadCredentials(cfg)
	if err != nil {
		return nil, err
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	base := strings.TrimSpace(cfg.GoogleSheetName)
	if base == "" {
		base = "Timesheet"
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     yearPrefixedName(base, time.Now().In(loc).Year()),
		loc:           loc,
	}, nil
}

// loadCredentials resolves service account JSON from inline config, a
// configured file, or the standard GOOGLE_APPLICATION_CREDENTIALS path.
func loadCredentials(cfg *config.Config) ([]byte, error) {
	if inline := strings.TrimSpace(cfg.GoogleCredentialsJSON); inline != "" {
		return []byte(inline), nil
	}
	file := strings.TrimSpace(cfg.GoogleCredentialsFile)
	if file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if file == "" {
		return nil, errors.New("missing service account credentials (set GOOGLE_CREDENTIALS_JSON, GOOGLE_CREDENTIALS_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return data, nil
}

// AppendSession writes one timesheet row: date, hours, project, task.
func (c *Client) AppendSession(ctx context.Context, s core.Session) (string, error) {
	if err := s.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	ts := s.Timestamp.In(c.loc)
	row := []any{ts.Format("2006-01-02"), s.Hours, s.DisplayProject(), s.Task}

	rng := fmt.Sprintf("%s!A:D", c.sheetName)
	vr := &gsheet.ValueRange{Values: [][]any{row}}

	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", c.sheetName, err)
	}

	ref := c.sheetName
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}

	slog.InfoContext(ctx, "Appended session to timesheet",
		applog.FieldSheetsRef, ref,
		applog.FieldProject, s.DisplayProject(),
		applog.FieldHours, s.Hours)

	return ref, nil
}

// yearPrefixedName prepends the year to base unless it already starts with a
// plausible one.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
