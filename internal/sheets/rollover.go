package sheets

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	gsheets "google.golang.org/api/sheets/v4"

	"leadsync/internal/models"
)

// Monthly sheets carry Portuguese titles like "Janeiro 2026".
var monthNames = []string{
	"Janeiro", "Fevereiro", "Março", "Abril", "Maio", "Junho",
	"Julho", "Agosto", "Setembro", "Outubro", "Novembro", "Dezembro",
}

// defaultHeaders seeds a brand-new spreadsheet that has no prior monthly
// sheet to copy a header from.
var defaultHeaders = []any{
	"Nome do Lead", "Telefone", "Canal", "Data do Contato",
	"Produto", "Status", "Fechamento", "Valor", "Comentários",
}

// MonthlySheetTitle names the sheet for the month containing t.
func MonthlySheetTitle(t time.Time) string {
	return fmt.Sprintf("%s %d", monthNames[t.Month()-1], t.Year())
}

// parseMonthlyTitle inverts MonthlySheetTitle. Non-monthly tabs return false.
func parseMonthlyTitle(title string) (time.Time, bool) {
	parts := strings.Fields(title)
	if len(parts) != 2 {
		return time.Time{}, false
	}
	year, err := strconv.Atoi(parts[1])
	if err != nil || year < 2000 || year > 2200 {
		return time.Time{}, false
	}
	for i, name := range monthNames {
		if strings.EqualFold(parts[0], name) {
			return time.Date(year, time.Month(i+1), 1, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// priorMonthlySheets filters titles down to monthly sheets older than
// current, newest first.
func priorMonthlySheets(titles []string, current string) []string {
	cutoff, ok := parseMonthlyTitle(current)
	if !ok {
		return nil
	}
	type dated struct {
		title string
		month time.Time
	}
	var prior []dated
	for _, title := range titles {
		month, ok := parseMonthlyTitle(title)
		if ok && month.Before(cutoff) {
			prior = append(prior, dated{title: title, month: month})
		}
	}
	sort.Slice(prior, func(i, j int) bool { return prior[i].month.After(prior[j].month) })

	out := make([]string, 0, len(prior))
	for _, p := range prior {
		out = append(out, p.title)
	}
	return out
}

// ensureMonthlySheet creates the sheet for title if missing, seeding its
// header from the newest prior monthly sheet and carrying open leads forward.
func (s *Store) ensureMonthlySheet(ctx context.Context, tenant *models.Tenant, title string) error {
	titles, err := s.api.SheetTitles(ctx, tenant.SpreadsheetID)
	if err != nil {
		return fmt.Errorf("list sheets: %w", err)
	}
	for _, existing := range titles {
		if existing == title {
			return nil
		}
	}

	newID, err := s.api.AddSheet(ctx, tenant.SpreadsheetID, title)
	if err != nil {
		return fmt.Errorf("create sheet %q: %w", title, err)
	}
	s.logger.Info().
		Int64("tenant_id", tenant.ID).
		Str("sheet", title).
		Msg("monthly sheet created")

	prior := priorMonthlySheets(titles, title)
	if len(prior) == 0 {
		return s.api.UpdateValues(ctx, tenant.SpreadsheetID,
			fmt.Sprintf("'%s'!A1", title), [][]any{defaultHeaders})
	}

	source := prior[0]
	if err := s.seedFromPrior(ctx, tenant, source, title, newID); err != nil {
		return err
	}
	return s.carryOpenLeads(ctx, tenant, source, title)
}

// seedFromPrior copies the header text and the first rows' formatting from
// the previous monthly sheet so the new tab looks like the operators' own.
func (s *Store) seedFromPrior(ctx context.Context, tenant *models.Tenant, source, target string, targetID int64) error {
	header, err := s.api.GetValues(ctx, tenant.SpreadsheetID, fmt.Sprintf("'%s'!1:1", source))
	if err != nil {
		return fmt.Errorf("read prior header: %w", err)
	}
	if len(header) == 0 || len(header[0]) == 0 {
		header = [][]any{defaultHeaders}
	}
	if err := s.api.UpdateValues(ctx, tenant.SpreadsheetID,
		fmt.Sprintf("'%s'!A1", target), header[:1]); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	sourceID, err := s.api.SheetID(ctx, tenant.SpreadsheetID, source)
	if err != nil {
		return fmt.Errorf("resolve prior sheet id: %w", err)
	}
	err = s.api.BatchUpdate(ctx, tenant.SpreadsheetID, []*gsheets.Request{{
		CopyPaste: &gsheets.CopyPasteRequest{
			Source: &gsheets.GridRange{
				SheetId:       sourceID,
				StartRowIndex: 0,
				EndRowIndex:   2,
			},
			Destination: &gsheets.GridRange{
				SheetId:       targetID,
				StartRowIndex: 0,
				EndRowIndex:   2,
			},
			PasteType: "PASTE_FORMAT",
		},
	}})
	if err != nil {
		// Formatting only, the sheet is already usable.
		s.logger.Warn().Err(err).Str("sheet", target).Msg("format copy failed")
	}
	return nil
}

// carryOpenLeads moves rows without a terminal status from the prior monthly
// sheet into the new one. Month-scoped fields (close date, sale value,
// comments) start the new month empty.
func (s *Store) carryOpenLeads(ctx context.Context, tenant *models.Tenant, source, target string) error {
	type carriedLead struct {
		lead      *models.LeadRow
		automated bool
	}
	var carried []carriedLead
	err := s.withMapping(ctx, tenant.SpreadsheetID, source, func(m *ColumnMapping) error {
		rows, err := s.api.GetValues(ctx, tenant.SpreadsheetID,
			fmt.Sprintf("'%s'!A2:%s%d", source, columnLetter(m.width-1), maxScanRows))
		if err != nil {
			return fmt.Errorf("read prior rows: %w", err)
		}
		carried = carried[:0]
		for _, row := range rows {
			name := cellAt(row, m, models.FieldName)
			phone := cellAt(row, m, models.FieldPhone)
			if name == "" && phone == "" {
				continue
			}
			if isTerminalStatus(cellAt(row, m, models.FieldStatus)) {
				continue
			}
			carried = append(carried, carriedLead{
				// Hand-entered rows stay unmarked when they move months.
				automated: strings.HasSuffix(name, models.AutomationMarker),
				lead: &models.LeadRow{Fields: map[string]string{
					models.FieldName:         strings.TrimSuffix(name, models.AutomationMarker),
					models.FieldPhone:        phone,
					models.FieldChannel:      cellAt(row, m, models.FieldChannel),
					models.FieldFirstContact: cellAt(row, m, models.FieldFirstContact),
					models.FieldProduct:      cellAt(row, m, models.FieldProduct),
					models.FieldStatus:       cellAt(row, m, models.FieldStatus),
					models.FieldCity:         cellAt(row, m, models.FieldCity),
				}},
			})
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, c := range carried {
		if err := s.appendLead(ctx, tenant, c.lead, c.automated); err != nil {
			return fmt.Errorf("carry lead forward: %w", err)
		}
	}
	if len(carried) > 0 {
		s.logger.Info().
			Int64("tenant_id", tenant.ID).
			Str("from", source).
			Str("to", target).
			Int("rows", len(carried)).
			Msg("open leads carried into new month")
	}
	return nil
}

func isTerminalStatus(status string) bool {
	folded := foldHeader(status)
	if folded == "" {
		return false
	}
	for _, terminal := range models.TerminalStatuses {
		if strings.Contains(folded, terminal) {
			return true
		}
	}
	return false
}
