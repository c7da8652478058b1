package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"leadsync/internal/models"
	"leadsync/internal/normalizer"
)

// maxScanRows bounds how far down a sheet the store reads when searching for
// rows. Operator sheets hold at most a few hundred leads per month.
const maxScanRows = 2000

type mappingEntry struct {
	mapping  *ColumnMapping
	loadedAt time.Time
}

// Store implements the lead store over the Sheets API. All writes are
// cell-addressed through a column mapping inferred from the live header row
// and cached per (spreadsheet, sheet). A structural error from the API drops
// the cached mapping and the operation is retried once against a fresh one.
type Store struct {
	api    API
	logger zerolog.Logger
	now    func() time.Time

	mu       sync.Mutex
	mappings map[string]*mappingEntry
}

func NewStore(api API, logger zerolog.Logger) *Store {
	return &Store{
		api:      api,
		logger:   logger.With().Str("component", "sheets").Logger(),
		now:      time.Now,
		mappings: make(map[string]*mappingEntry),
	}
}

func mappingKey(spreadsheetID, sheet string) string {
	return spreadsheetID + "|" + sheet
}

func (s *Store) mapping(ctx context.Context, spreadsheetID, sheet string) (*ColumnMapping, error) {
	key := mappingKey(spreadsheetID, sheet)

	s.mu.Lock()
	entry, ok := s.mappings[key]
	if ok && s.now().Sub(entry.loadedAt) < models.MappingCacheTTL {
		s.mu.Unlock()
		return entry.mapping, nil
	}
	s.mu.Unlock()

	rows, err := s.api.GetValues(ctx, spreadsheetID, fmt.Sprintf("'%s'!1:1", sheet))
	if err != nil {
		return nil, fmt.Errorf("read header row: %w", err)
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("%w: sheet %q has no header row", ErrStructuralMismatch, sheet)
	}

	m := buildMapping(rows[0])
	if missing := m.MissingRequired(); len(missing) > 0 {
		s.logger.Warn().
			Str("sheet", sheet).
			Strs("missing", missing).
			Msg("header is missing expected columns, writes will skip them")
	}

	s.mu.Lock()
	s.mappings[key] = &mappingEntry{mapping: m, loadedAt: s.now()}
	s.mu.Unlock()
	return m, nil
}

func (s *Store) dropMapping(spreadsheetID, sheet string) {
	s.mu.Lock()
	delete(s.mappings, mappingKey(spreadsheetID, sheet))
	s.mu.Unlock()
}

// InvalidateMapping drops every cached mapping for the tenant's spreadsheet.
func (s *Store) InvalidateMapping(tenant *models.Tenant) {
	prefix := tenant.SpreadsheetID + "|"
	s.mu.Lock()
	for key := range s.mappings {
		if strings.HasPrefix(key, prefix) {
			delete(s.mappings, key)
		}
	}
	s.mu.Unlock()
}

// currentSheet resolves the tab a write lands on. Auto-monthly tenants get
// the sheet for the current month in their timezone, created on first use.
func (s *Store) currentSheet(ctx context.Context, tenant *models.Tenant) (string, error) {
	if tenant.SheetMode == models.SheetModeFixed {
		if tenant.SheetName == "" {
			return "", fmt.Errorf("tenant %d has fixed sheet mode but no sheet name", tenant.ID)
		}
		return tenant.SheetName, nil
	}

	title := MonthlySheetTitle(s.now().In(tenant.Location()))
	if err := s.ensureMonthlySheet(ctx, tenant, title); err != nil {
		return "", err
	}
	return title, nil
}

// withMapping runs op against the cached mapping, refreshing it and retrying
// once when the API reports the sheet structure changed underneath us.
func (s *Store) withMapping(ctx context.Context, spreadsheetID, sheet string, op func(m *ColumnMapping) error) error {
	m, err := s.mapping(ctx, spreadsheetID, sheet)
	if err != nil {
		return err
	}
	err = op(m)
	if !errors.Is(err, ErrStructuralMismatch) {
		return err
	}

	s.logger.Warn().Str("sheet", sheet).Msg("structural mismatch, rebuilding column mapping")
	s.dropMapping(spreadsheetID, sheet)
	m, err = s.mapping(ctx, spreadsheetID, sheet)
	if err != nil {
		return err
	}
	return op(m)
}

// AppendLead writes a lead at the first empty row of the tenant's current
// sheet, touching only mapped columns.
func (s *Store) AppendLead(ctx context.Context, tenant *models.Tenant, lead *models.LeadRow) error {
	return s.appendLead(ctx, tenant, lead, true)
}

// appendLead is AppendLead with the name marker under the caller's control.
// Rollover carries hand-entered rows and must not tag them as automated.
func (s *Store) appendLead(ctx context.Context, tenant *models.Tenant, lead *models.LeadRow, markName bool) error {
	sheet, err := s.currentSheet(ctx, tenant)
	if err != nil {
		return err
	}

	return s.withMapping(ctx, tenant.SpreadsheetID, sheet, func(m *ColumnMapping) error {
		row, err := s.nextEmptyRow(ctx, tenant.SpreadsheetID, sheet, m)
		if err != nil {
			return err
		}

		updates := s.cellUpdates(sheet, row, m, lead.Fields, markName)
		if len(updates) == 0 {
			return fmt.Errorf("no lead field maps onto the header of sheet %q", sheet)
		}
		if err := s.api.BatchUpdateValues(ctx, tenant.SpreadsheetID, updates); err != nil {
			return err
		}

		if err := s.highlightRow(ctx, tenant.SpreadsheetID, sheet, row, m.width); err != nil {
			// The values are already in place, formatting is cosmetic.
			s.logger.Warn().Err(err).Str("sheet", sheet).Int("row", row).Msg("row highlight failed")
		}

		s.logger.Info().
			Int64("tenant_id", tenant.ID).
			Str("sheet", sheet).
			Int("row", row).
			Msg("lead appended")
		return nil
	})
}

// UpdateLead finds the row for phone on the current sheet, then on prior
// monthly sheets, and overwrites only the given logical fields.
func (s *Store) UpdateLead(ctx context.Context, tenant *models.Tenant, phone string, fields map[string]string) error {
	sheet, err := s.currentSheet(ctx, tenant)
	if err != nil {
		return err
	}

	candidates, err := s.searchOrder(ctx, tenant, sheet)
	if err != nil {
		return err
	}

	for _, candidate := range candidates {
		row, findErr := s.findRowByPhone(ctx, tenant.SpreadsheetID, candidate, phone)
		if errors.Is(findErr, ErrRowNotFound) {
			continue
		}
		if findErr != nil {
			return findErr
		}

		return s.withMapping(ctx, tenant.SpreadsheetID, candidate, func(m *ColumnMapping) error {
			updates := s.cellUpdates(candidate, row, m, fields, false)
			if len(updates) == 0 {
				return nil
			}
			if err := s.api.BatchUpdateValues(ctx, tenant.SpreadsheetID, updates); err != nil {
				return err
			}
			s.logger.Info().
				Int64("tenant_id", tenant.ID).
				Str("sheet", candidate).
				Int("row", row).
				Str("phone_tail", normalizer.PhoneTail(phone)).
				Msg("lead updated")
			return nil
		})
	}

	return fmt.Errorf("%w: phone tail %s", ErrRowNotFound, normalizer.PhoneTail(phone))
}

// searchOrder is the current sheet followed by older monthly sheets, newest
// first. Fixed-sheet tenants only ever have one place to look.
func (s *Store) searchOrder(ctx context.Context, tenant *models.Tenant, current string) ([]string, error) {
	if tenant.SheetMode == models.SheetModeFixed {
		return []string{current}, nil
	}

	titles, err := s.api.SheetTitles(ctx, tenant.SpreadsheetID)
	if err != nil {
		return nil, fmt.Errorf("list sheets: %w", err)
	}
	prior := priorMonthlySheets(titles, current)
	return append([]string{current}, prior...), nil
}

// cellUpdates builds addressed writes for the mapped subset of fields.
// Appends mark the name cell so operators can tell automated rows apart.
func (s *Store) cellUpdates(sheet string, row int, m *ColumnMapping, fields map[string]string, markName bool) []ValueUpdate {
	var updates []ValueUpdate
	for field, value := range fields {
		col, ok := m.Column(field)
		if !ok {
			continue
		}
		if field == models.FieldName && markName && value != "" {
			value += models.AutomationMarker
		}
		updates = append(updates, ValueUpdate{
			Range: fmt.Sprintf("'%s'!%s%d", sheet, col, row),
			Value: value,
		})
	}
	return updates
}

// nextEmptyRow scans the mapped name and phone columns for the first row with
// neither filled in. Hand-entered rows above it are never touched.
func (s *Store) nextEmptyRow(ctx context.Context, spreadsheetID, sheet string, m *ColumnMapping) (int, error) {
	rows, err := s.api.GetValues(ctx, spreadsheetID,
		fmt.Sprintf("'%s'!A2:%s%d", sheet, columnLetter(m.width-1), maxScanRows))
	if err != nil {
		return 0, fmt.Errorf("scan rows: %w", err)
	}

	for i, row := range rows {
		if cellAt(row, m, models.FieldName) == "" && cellAt(row, m, models.FieldPhone) == "" {
			return i + 2, nil
		}
	}
	return len(rows) + 2, nil
}

// findRowByPhone scans the phone column of sheet for a tail match.
func (s *Store) findRowByPhone(ctx context.Context, spreadsheetID, sheet, phone string) (int, error) {
	var row int
	err := s.withMapping(ctx, spreadsheetID, sheet, func(m *ColumnMapping) error {
		col, ok := m.Column(models.FieldPhone)
		if !ok {
			return fmt.Errorf("%w: sheet %q has no phone column", ErrRowNotFound, sheet)
		}
		values, err := s.api.GetValues(ctx, spreadsheetID,
			fmt.Sprintf("'%s'!%s2:%s%d", sheet, col, col, maxScanRows))
		if err != nil {
			return fmt.Errorf("scan phone column: %w", err)
		}
		for i, cells := range values {
			if len(cells) == 0 {
				continue
			}
			cell, _ := cells[0].(string)
			if cell != "" && normalizer.SamePhone(cell, phone) {
				row = i + 2
				return nil
			}
		}
		return ErrRowNotFound
	})
	return row, err
}

func cellAt(row []any, m *ColumnMapping, field string) string {
	idx, ok := m.columns[field]
	if !ok || idx >= len(row) {
		return ""
	}
	text, _ := row[idx].(string)
	return strings.TrimSpace(text)
}
