// Package sheets implements the column-mapped tabular store on top of the
// Google Sheets API. The spreadsheet is hand-edited by the operators, so
// every write is cell-addressed through a mapping inferred from the live
// header row; positional writes are never used.
package sheets

import (
	"context"
	"errors"

	gsheets "google.golang.org/api/sheets/v4"
)

// ErrStructuralMismatch marks a 4xx from the API that signals the sheet
// structure changed underneath us (range or sheet gone). The store reacts by
// invalidating the cached column mapping and retrying.
var ErrStructuralMismatch = errors.New("sheet structure mismatch")

// ErrRowNotFound is returned when no row matches the phone being updated.
var ErrRowNotFound = errors.New("lead row not found")

// ValueUpdate addresses one cell (or small range) with its new value.
type ValueUpdate struct {
	Range string
	Value any
}

// API is the narrow Sheets surface the store needs. The production
// implementation is Client; tests script a fake.
type API interface {
	// GetValues reads a range in A1 notation.
	GetValues(ctx context.Context, spreadsheetID, readRange string) ([][]any, error)
	// UpdateValues overwrites a range with raw values.
	UpdateValues(ctx context.Context, spreadsheetID, writeRange string, values [][]any) error
	// BatchUpdateValues applies individually addressed cell writes in one call.
	BatchUpdateValues(ctx context.Context, spreadsheetID string, updates []ValueUpdate) error
	// SheetTitles lists the tab titles of a spreadsheet.
	SheetTitles(ctx context.Context, spreadsheetID string) ([]string, error)
	// SheetID resolves a tab title to its numeric sheet id.
	SheetID(ctx context.Context, spreadsheetID, title string) (int64, error)
	// AddSheet creates a new tab and returns its sheet id.
	AddSheet(ctx context.Context, spreadsheetID, title string) (int64, error)
	// BatchUpdate applies structural or formatting requests.
	BatchUpdate(ctx context.Context, spreadsheetID string, requests []*gsheets.Request) error
}
