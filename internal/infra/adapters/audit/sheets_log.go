package audit

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"whatsapp-approval-relay/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.AuditLog = (*SheetsLog)(nil)

// SheetsLog appends one row per queue item to a Google Sheet and later fills
// in the outcome. Columns: timestamp, conversation, name, incoming text,
// suggested reply, status, final reply. The row reference handed back to
// callers is the sheet row number.
type SheetsLog struct {
	svc           *sheets.Service
	spreadsheetID string
	sheetName     string
}

func NewSheetsLog(ctx context.Context, credentialsFile, spreadsheetID, sheetName string) (*SheetsLog, error) {
	svc, err := sheets.NewService(ctx, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &SheetsLog{svc: svc, spreadsheetID: spreadsheetID, sheetName: sheetName}, nil
}

func (s *SheetsLog) AppendRow(ctx context.Context, e adapter.AuditEntry) (string, error) {
	values := &sheets.ValueRange{
		Values: [][]interface{}{{
			e.Timestamp.Format("2006-01-02 15:04:05"),
			e.ConversationID,
			e.DisplayName,
			e.Incoming,
			e.SuggestedReply,
			"Pending",
			"",
		}},
	}
	resp, err := s.svc.Spreadsheets.Values.
		Append(s.spreadsheetID, s.sheetName+"!A:G", values).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("sheets append: %w", err)
	}
	row, err := rowFromRange(resp.Updates.UpdatedRange)
	if err != nil {
		return "", err
	}
	return strconv.Itoa(row), nil
}

func (s *SheetsLog) UpdateStatus(ctx context.Context, rowRef, status, finalText string) error {
	row, err := strconv.Atoi(rowRef)
	if err != nil {
		return fmt.Errorf("bad row reference %q: %w", rowRef, err)
	}
	rng := fmt.Sprintf("%s!F%d:G%d", s.sheetName, row, row)
	values := &sheets.ValueRange{
		Values: [][]interface{}{{status, finalText}},
	}
	_, err = s.svc.Spreadsheets.Values.
		Update(s.spreadsheetID, rng, values).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("sheets update: %w", err)
	}
	return nil
}

// rowFromRange extracts the first row number from an A1 range like
// "Messages!A12:G12".
func rowFromRange(a1 string) (int, error) {
	idx := strings.Index(a1, "!")
	if idx >= 0 {
		a1 = a1[idx+1:]
	}
	cell := strings.Split(a1, ":")[0]
	digits := strings.TrimLeft(cell, "ABCDEFGHIJKLMNOPQRSTUVWXYZ")
	row, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("parse updated range %q: %w", a1, err)
	}
	return row, nil
}
