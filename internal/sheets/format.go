package sheets

import (
	"context"
	"fmt"

	gsheets "google.golang.org/api/sheets/v4"
)

// automationFill is the light yellow tint applied to rows the system writes.
var automationFill = &gsheets.Color{Red: 1.0, Green: 0.976, Blue: 0.878}

// highlightRow tints a freshly appended row across the header width.
func (s *Store) highlightRow(ctx context.Context, spreadsheetID, sheet string, row, width int) error {
	sheetID, err := s.api.SheetID(ctx, spreadsheetID, sheet)
	if err != nil {
		return fmt.Errorf("resolve sheet id: %w", err)
	}
	return s.api.BatchUpdate(ctx, spreadsheetID, []*gsheets.Request{{
		RepeatCell: &gsheets.RepeatCellRequest{
			Range: &gsheets.GridRange{
				SheetId:          sheetID,
				StartRowIndex:    int64(row - 1),
				EndRowIndex:      int64(row),
				StartColumnIndex: 0,
				EndColumnIndex:   int64(width),
			},
			Cell: &gsheets.CellData{
				UserEnteredFormat: &gsheets.CellFormat{
					BackgroundColor: automationFill,
				},
			},
			Fields: "userEnteredFormat.backgroundColor",
		},
	}})
}
