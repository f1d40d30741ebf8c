package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"itinera/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	registerSheet = "Itineraries"
	lastColumn    = "J"
)

var registerHeaders = []interface{}{
	"ID", "Title", "Destination", "Start", "End", "Travelers", "Status", "Pending comments", "Share link", "Updated At",
}

var errRowNotFound = errors.New("itinerary row not found")

// SheetsService keeps the itinerary register sheet in sync: one row per
// itinerary keyed by the ID in column A.
type SheetsService struct {
	service       *sheets.Service
	spreadsheetID string
	publicBaseURL string
	rowCache      map[string]int
	cacheMu       sync.RWMutex
	logger        *zerolog.Logger
}

func NewSheetsService(ctx context.Context, credentialsFile, spreadsheetID, publicBaseURL string, logger *zerolog.Logger) (*SheetsService, error) {
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

	return newSheetsService(srv, spreadsheetID, publicBaseURL, logger), nil
}

func newSheetsService(srv *sheets.Service, spreadsheetID, publicBaseURL string, logger *zerolog.Logger) *SheetsService {
	l := logger.With().Str("component", "sheets").Logger()
	return &SheetsService{
		service:       srv,
		spreadsheetID: spreadsheetID,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		rowCache:      make(map[string]int),
		logger:        &l,
	}
}

// ServiceAccountEmail returns the account the spreadsheet must be shared with.
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

// TestConnection проверяет подключение к таблице
func (s *SheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, registerSheet+"!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// EnsureHeader writes the header row and formats it.
func (s *SheetsService) EnsureHeader(ctx context.Context) error {
	rangeData := fmt.Sprintf("%s!A1:%s1", registerSheet, lastColumn)
	_, err := s.service.Spreadsheets.Values.Update(s.spreadsheetID, rangeData, &sheets.ValueRange{
		Values: [][]interface{}{registerHeaders},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("unable to write header: %w", err)
	}

	sheetID, err := s.GetSheetIDByName(ctx, registerSheet)
	if err != nil {
		return err
	}

	requests := []*sheets.Request{
		{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    0,
					EndRowIndex:      1,
					StartColumnIndex: 0,
					EndColumnIndex:   int64(len(registerHeaders)),
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						HorizontalAlignment: "CENTER",
						TextFormat:          &sheets.TextFormat{Bold: true},
						BackgroundColor:     &sheets.Color{Red: 0.86, Green: 0.92, Blue: 0.97},
					},
				},
				Fields: "userEnteredFormat(backgroundColor,textFormat,horizontalAlignment)",
			},
		},
		{
			UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
				Properties: &sheets.SheetProperties{
					SheetId:        sheetID,
					GridProperties: &sheets.GridProperties{FrozenRowCount: 1},
				},
				Fields: "gridProperties.frozenRowCount",
			},
		},
	}

	_, err = s.service.Spreadsheets.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: requests,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("unable to format header: %w", err)
	}
	return nil
}

// GetSheetIDByName возвращает ID листа по его названию
func (s *SheetsService) GetSheetIDByName(ctx context.Context, sheetName string) (int64, error) {
	spreadsheet, err := s.service.Spreadsheets.Get(s.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("unable to get spreadsheet: %w", err)
	}

	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == sheetName {
			return sheet.Properties.SheetId, nil
		}
	}
	return 0, fmt.Errorf("sheet '%s' not found", sheetName)
}

// WarmUpCache populates the row index cache by reading the entire ID column.
func (s *SheetsService) WarmUpCache(ctx context.Context) error {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, registerSheet+"!A:A").Context(ctx).Do()
	if err != nil {
		return err
	}

	cache := make(map[string]int, len(resp.Values))
	for i, row := range resp.Values {
		if id := cellID(row); id != "" && i > 0 {
			cache[id] = i + 1
		}
	}

	s.cacheMu.Lock()
	s.rowCache = cache
	s.cacheMu.Unlock()
	return nil
}

// RunCacheRefresh warms the cache now and then every interval until ctx is
// done.
func (s *SheetsService) RunCacheRefresh(ctx context.Context, interval time.Duration) {
	refresh := func() {
		rctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := s.WarmUpCache(rctx); err != nil {
			s.logger.Warn().Err(err).Msg("Sheets cache refresh failed")
		}
	}

	refresh()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}

// UpsertItinerary updates the itinerary row or appends one if it is missing.
func (s *SheetsService) UpsertItinerary(ctx context.Context, it *models.Itinerary) error {
	if it == nil {
		return errors.New("itinerary is nil")
	}

	rowIdx, err := s.FindItineraryRow(ctx, it.ID)
	if errors.Is(err, errRowNotFound) {
		return s.appendItinerary(ctx, it)
	}
	if err != nil {
		return err
	}

	rangeData := fmt.Sprintf("%s!A%d:%s%d", registerSheet, rowIdx, lastColumn, rowIdx)
	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, rangeData, &sheets.ValueRange{
		Values: [][]interface{}{s.rowValues(it)},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

func (s *SheetsService) appendItinerary(ctx context.Context, it *models.Itinerary) error {
	resp, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, registerSheet+"!A:A", &sheets.ValueRange{
		Values: [][]interface{}{s.rowValues(it)},
	}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return err
	}

	if resp.Updates != nil {
		if row, ok := rangeStartRow(resp.Updates.UpdatedRange); ok {
			s.setCachedRow(it.ID, row)
		}
	}
	return nil
}

// DeleteItineraryRow clears the itinerary row. A missing row is not an error.
func (s *SheetsService) DeleteItineraryRow(ctx context.Context, itineraryID string) error {
	rowIdx, err := s.FindItineraryRow(ctx, itineraryID)
	if errors.Is(err, errRowNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	rangeData := fmt.Sprintf("%s!A%d:%s%d", registerSheet, rowIdx, lastColumn, rowIdx)
	_, err = s.service.Spreadsheets.Values.Clear(s.spreadsheetID, rangeData, &sheets.ClearValuesRequest{}).
		Context(ctx).
		Do()
	if err == nil {
		s.deleteCachedRow(itineraryID)
	}
	return err
}

// FindItineraryRow locates the 1-based row for id in column A, using the
// cache first.
func (s *SheetsService) FindItineraryRow(ctx context.Context, id string) (int, error) {
	if id == "" {
		return 0, errors.New("itinerary id is required")
	}

	if row, ok := s.getCachedRow(id); ok {
		return row, nil
	}

	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, registerSheet+"!A:A").Context(ctx).Do()
	if err != nil {
		return 0, err
	}

	for i, row := range resp.Values {
		if cellID(row) == id {
			rowIdx := i + 1 // Values are zero-based; sheet rows are 1-based
			s.setCachedRow(id, rowIdx)
			return rowIdx, nil
		}
	}
	return 0, errRowNotFound
}

func (s *SheetsService) rowValues(it *models.Itinerary) []interface{} {
	link := ""
	if it.ShareToken != "" && it.Status != models.StatusDraft {
		link = s.publicBaseURL + "/itinerary/" + it.ShareToken
	}
	return []interface{}{
		it.ID,
		it.Title,
		it.Destination,
		it.StartDate,
		it.EndDate,
		it.Travelers,
		it.Status,
		it.PendingComments(),
		link,
		it.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
}

// rangeStartRow extracts the first row number from an A1 range such as
// "Itineraries!A7:J7".
func rangeStartRow(a1 string) (int, bool) {
	if i := strings.LastIndex(a1, "!"); i >= 0 {
		a1 = a1[i+1:]
	}
	a1 = strings.TrimLeft(a1, "ABCDEFGHIJKLMNOPQRSTUVWXYZ")
	if i := strings.IndexByte(a1, ':'); i >= 0 {
		a1 = a1[:i]
	}
	row, err := strconv.Atoi(a1)
	if err != nil || row <= 0 {
		return 0, false
	}
	return row, true
}

func cellID(row []interface{}) string {
	if len(row) == 0 {
		return ""
	}
	switch v := row[0].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func (s *SheetsService) getCachedRow(id string) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *SheetsService) setCachedRow(id string, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[id] = row
}

func (s *SheetsService) deleteCachedRow(id string) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	delete(s.rowCache, id)
}

// ClearCache clears the row index cache.
func (s *SheetsService) ClearCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[string]int)
}
