// Package google stores committed operations in a Google Sheets spreadsheet,
// one sheet per operation kind.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"bookingsync/internal/domain"
	"bookingsync/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

var _ domain.RemoteStore = (*SheetsStore)(nil)

// SheetsStore is a RemoteStore over the Sheets values API. Column A holds the
// natural key, B the payload and C the commit time.
type SheetsStore struct {
	service       *sheets.Service
	spreadsheetID string
	now           func() time.Time
}

// NewSheetsStore authenticates with a service account credentials file.
func NewSheetsStore(ctx context.Context, credentialsFile, spreadsheetID string) (*SheetsStore, error) {
	// Читаем файл учетных данных сервисного аккаунта
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}
	return NewSheetsStoreWithService(srv, spreadsheetID), nil
}

// NewSheetsStoreWithService wraps an already configured service.
func NewSheetsStoreWithService(srv *sheets.Service, spreadsheetID string) *SheetsStore {
	return &SheetsStore{
		service:       srv,
		spreadsheetID: spreadsheetID,
		now:           time.Now,
	}
}

// SheetName maps a kind to its sheet, e.g. booking -> Bookings.
func SheetName(kind models.Kind) string {
	k := string(kind)
	if k == "" {
		return ""
	}
	return strings.ToUpper(k[:1]) + k[1:] + "s"
}

// ExistingKeys reads the key column and returns the subset of keys present.
func (s *SheetsStore) ExistingKeys(ctx context.Context, kind models.Kind, keys []string) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	rangeData := SheetName(kind) + "!A:A"
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, rangeData).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rangeData, err)
	}

	present := make(map[string]struct{}, len(resp.Values))
	for _, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		present[cellString(row[0])] = struct{}{}
	}

	var found []string
	for _, k := range keys {
		if _, ok := present[k]; ok {
			found = append(found, k)
		}
	}
	return found, nil
}

// CommitBatch appends every op in one request, so the sheet either gains all
// rows or none.
func (s *SheetsStore) CommitBatch(ctx context.Context, kind models.Kind, ops []models.Operation) error {
	if len(ops) == 0 {
		return nil
	}
	committedAt := s.now().UTC().Format("2006-01-02 15:04:05")

	values := make([][]interface{}, 0, len(ops))
	for _, op := range ops {
		payload := "{}"
		if len(op.Payload) > 0 {
			payload = string(op.Payload)
		}
		values = append(values, []interface{}{op.NaturalKey, payload, committedAt})
	}

	rangeData := SheetName(kind) + "!A:C"
	_, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, rangeData, &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append %d rows to %s: %w", len(ops), rangeData, err)
	}
	return nil
}

// Ping reads the first cell of the bookings sheet.
func (s *SheetsStore) Ping(ctx context.Context) error {
	rangeData := SheetName(models.KindBooking) + "!A1"
	if _, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, rangeData).Context(ctx).Do(); err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// ServiceAccountEmail returns the client_email of a credentials file. The
// spreadsheet must be shared with this address.
func ServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}
	return creds.ClientEmail, nil
}

func cellString(v interface{}) string {
	switch c := v.(type) {
	case string:
		return c
	case float64:
		return fmt.Sprintf("%.0f", c)
	default:
		return fmt.Sprint(c)
	}
}
