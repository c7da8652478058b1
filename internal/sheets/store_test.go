package sheets

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gsheets "google.golang.org/api/sheets/v4"

	"leadsync/internal/models"
)

// fakeAPI keeps one grid per sheet title and answers the A1 ranges the store
// actually uses.
type fakeAPI struct {
	titles     []string
	ids        map[string]int64
	grids      map[string][][]any
	headerGets int

	// failWrites makes that many BatchUpdateValues calls fail structurally.
	failWrites int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		ids:   make(map[string]int64),
		grids: make(map[string][][]any),
	}
}

func (f *fakeAPI) addSheet(title string, rows ...[]any) {
	f.titles = append(f.titles, title)
	f.ids[title] = int64(len(f.titles))
	f.grids[title] = rows
}

func (f *fakeAPI) setCell(title string, row, col int, value any) {
	grid := f.grids[title]
	for len(grid) < row {
		grid = append(grid, nil)
	}
	line := grid[row-1]
	for len(line) <= col {
		line = append(line, "")
	}
	line[col] = value
	grid[row-1] = line
	f.grids[title] = grid
}

func (f *fakeAPI) cell(title string, row, col int) string {
	grid := f.grids[title]
	if row > len(grid) || col >= len(grid[row-1]) {
		return ""
	}
	text, _ := grid[row-1][col].(string)
	return text
}

// parseRange handles the forms the store emits: "'S'!1:1", "'S'!A1",
// "'S'!A2:I2000" and "'S'!B2:B2000".
func parseRange(ref string) (sheet string, r1, c1, r2, c2 int) {
	parts := strings.SplitN(ref, "!", 2)
	sheet = strings.Trim(parts[0], "'")
	bounds := strings.SplitN(parts[1], ":", 2)
	r1, c1 = parseRef(bounds[0])
	if len(bounds) == 2 {
		r2, c2 = parseRef(bounds[1])
	} else {
		r2, c2 = r1, c1
	}
	return
}

// parseRef returns the 1-based row and 0-based column, -1 when absent.
func parseRef(ref string) (row, col int) {
	letters := ""
	digits := ""
	for _, ch := range ref {
		if ch >= 'A' && ch <= 'Z' {
			letters += string(ch)
		} else {
			digits += string(ch)
		}
	}
	col = -1
	for _, ch := range letters {
		col = (col+1)*26 + int(ch-'A')
	}
	row = -1
	if digits != "" {
		row, _ = strconv.Atoi(digits)
	}
	return
}

func (f *fakeAPI) GetValues(_ context.Context, _ string, readRange string) ([][]any, error) {
	sheet, r1, c1, r2, c2 := parseRange(readRange)
	if r1 == 1 && c1 == -1 {
		f.headerGets++
	}
	grid, ok := f.grids[sheet]
	if !ok {
		return nil, fmt.Errorf("%w: unknown sheet %q", ErrStructuralMismatch, sheet)
	}

	if r1 < 1 {
		r1 = 1
	}
	if r2 < 1 || r2 > len(grid) {
		r2 = len(grid)
	}
	var out [][]any
	for r := r1; r <= r2; r++ {
		line := grid[r-1]
		lo, hi := c1, c2
		if lo < 0 {
			lo = 0
		}
		if hi < 0 || hi >= len(line) {
			hi = len(line) - 1
		}
		var cells []any
		for c := lo; c <= hi; c++ {
			cells = append(cells, line[c])
		}
		// Real API trims trailing empties.
		for len(cells) > 0 {
			text, _ := cells[len(cells)-1].(string)
			if text != "" {
				break
			}
			cells = cells[:len(cells)-1]
		}
		out = append(out, cells)
	}
	for len(out) > 0 && len(out[len(out)-1]) == 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (f *fakeAPI) UpdateValues(_ context.Context, _ string, writeRange string, values [][]any) error {
	sheet, r1, c1, _, _ := parseRange(writeRange)
	for dr, line := range values {
		for dc, v := range line {
			f.setCell(sheet, r1+dr, c1+dc, v)
		}
	}
	return nil
}

func (f *fakeAPI) BatchUpdateValues(_ context.Context, _ string, updates []ValueUpdate) error {
	if f.failWrites > 0 {
		f.failWrites--
		return fmt.Errorf("%w: range out of bounds", ErrStructuralMismatch)
	}
	for _, u := range updates {
		sheet, row, col, _, _ := parseRange(u.Range)
		f.setCell(sheet, row, col, u.Value)
	}
	return nil
}

func (f *fakeAPI) SheetTitles(_ context.Context, _ string) ([]string, error) {
	return append([]string(nil), f.titles...), nil
}

func (f *fakeAPI) SheetID(_ context.Context, _ string, title string) (int64, error) {
	id, ok := f.ids[title]
	if !ok {
		return -1, fmt.Errorf("%w: sheet %q not found", ErrStructuralMismatch, title)
	}
	return id, nil
}

func (f *fakeAPI) AddSheet(_ context.Context, _ string, title string) (int64, error) {
	f.addSheet(title)
	return f.ids[title], nil
}

func (f *fakeAPI) BatchUpdate(_ context.Context, _ string, _ []*gsheets.Request) error {
	return nil
}

func testStore(api API, now time.Time) *Store {
	s := NewStore(api, zerolog.Nop())
	s.now = func() time.Time { return now }
	return s
}

func fixedTenant() *models.Tenant {
	return &models.Tenant{
		ID:            1,
		Name:          "Clínica Sorriso",
		SpreadsheetID: "sheet-1",
		SheetMode:     models.SheetModeFixed,
		SheetName:     "Leads",
	}
}

func monthlyTenant() *models.Tenant {
	return &models.Tenant{
		ID:            2,
		Name:          "Clínica Vida",
		SpreadsheetID: "sheet-2",
		SheetMode:     models.SheetModeAutoMonthly,
		Timezone:      "America/Sao_Paulo",
	}
}

var testHeader = []any{"Nome do Lead", "Telefone", "Seg", "Ter", "Status", "Comentários"}

func TestAppendLeadWritesOnlyMappedColumns(t *testing.T) {
	api := newFakeAPI()
	api.addSheet("Leads", testHeader)
	store := testStore(api, time.Now())

	err := store.AppendLead(context.Background(), fixedTenant(), &models.LeadRow{Fields: map[string]string{
		models.FieldName:     "Maria Silva",
		models.FieldPhone:    "(11)99208-3378",
		models.FieldStatus:   "Fez Contato",
		models.FieldComments: "via campanha implante",
		models.FieldCity:     "São Paulo",
	}})
	require.NoError(t, err)

	assert.Equal(t, "Maria Silva"+models.AutomationMarker, api.cell("Leads", 2, 0))
	assert.Equal(t, "(11)99208-3378", api.cell("Leads", 2, 1))
	// Day-tracking columns are operator-owned and never written.
	assert.Equal(t, "", api.cell("Leads", 2, 2))
	assert.Equal(t, "", api.cell("Leads", 2, 3))
	assert.Equal(t, "Fez Contato", api.cell("Leads", 2, 4))
	assert.Equal(t, "via campanha implante", api.cell("Leads", 2, 5))
}

func TestAppendLeadLandsAfterHandEnteredRows(t *testing.T) {
	api := newFakeAPI()
	api.addSheet("Leads",
		testHeader,
		[]any{"João", "(11)98888-0001", "", "", "Em Negociação", ""},
		[]any{"Ana", "(11)98888-0002", "", "", "Fez Contato", ""},
	)
	store := testStore(api, time.Now())

	err := store.AppendLead(context.Background(), fixedTenant(), &models.LeadRow{Fields: map[string]string{
		models.FieldName:  "Novo Lead",
		models.FieldPhone: "(11)97777-0003",
	}})
	require.NoError(t, err)

	assert.Equal(t, "Novo Lead"+models.AutomationMarker, api.cell("Leads", 4, 0))
	// Existing rows are untouched.
	assert.Equal(t, "João", api.cell("Leads", 2, 0))
	assert.Equal(t, "Ana", api.cell("Leads", 3, 0))
}

func TestAppendLeadReusesCachedMapping(t *testing.T) {
	api := newFakeAPI()
	api.addSheet("Leads", testHeader)
	store := testStore(api, time.Now())

	for i := 0; i < 3; i++ {
		err := store.AppendLead(context.Background(), fixedTenant(), &models.LeadRow{Fields: map[string]string{
			models.FieldName:  fmt.Sprintf("Lead %d", i),
			models.FieldPhone: fmt.Sprintf("(11)97777-000%d", i),
		}})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, api.headerGets)
}

func TestUpdateLeadMatchesPhoneTail(t *testing.T) {
	api := newFakeAPI()
	api.addSheet("Leads",
		testHeader,
		[]any{"Maria Silva", "(11)99208-3378", "", "", "Fez Contato", ""},
	)
	store := testStore(api, time.Now())

	err := store.UpdateLead(context.Background(), fixedTenant(), "5511992083378", map[string]string{
		models.FieldStatus:   "Comprou",
		models.FieldComments: "fechou implante",
	})
	require.NoError(t, err)

	assert.Equal(t, "Comprou", api.cell("Leads", 2, 4))
	assert.Equal(t, "fechou implante", api.cell("Leads", 2, 5))
	// The name cell is not part of the update.
	assert.Equal(t, "Maria Silva", api.cell("Leads", 2, 0))
}

func TestUpdateLeadSearchesPriorMonthlySheets(t *testing.T) {
	now := time.Date(2026, time.August, 15, 12, 0, 0, 0, time.UTC)
	api := newFakeAPI()
	api.addSheet("Julho 2026",
		testHeader,
		[]any{"Maria Silva", "(11)99208-3378", "", "", "Em Negociação", ""},
	)
	api.addSheet("Agosto 2026", testHeader)
	store := testStore(api, now)

	err := store.UpdateLead(context.Background(), monthlyTenant(), "5511992083378", map[string]string{
		models.FieldStatus: "Comprou",
	})
	require.NoError(t, err)

	assert.Equal(t, "Comprou", api.cell("Julho 2026", 2, 4))
}

func TestUpdateLeadRowNotFound(t *testing.T) {
	api := newFakeAPI()
	api.addSheet("Leads", testHeader)
	store := testStore(api, time.Now())

	err := store.UpdateLead(context.Background(), fixedTenant(), "5511990000000", map[string]string{
		models.FieldStatus: "Comprou",
	})
	assert.ErrorIs(t, err, ErrRowNotFound)
}

func TestStructuralErrorRebuildsMappingAndRetries(t *testing.T) {
	api := newFakeAPI()
	api.addSheet("Leads", testHeader)
	store := testStore(api, time.Now())

	// Warm the cache, then an operator moves the status column.
	err := store.AppendLead(context.Background(), fixedTenant(), &models.LeadRow{Fields: map[string]string{
		models.FieldName:  "Primeiro",
		models.FieldPhone: "(11)97777-0001",
	}})
	require.NoError(t, err)

	api.grids["Leads"][0] = []any{"Nome do Lead", "Telefone", "Status", "Seg", "Ter", "Comentários"}
	api.failWrites = 1

	err = store.AppendLead(context.Background(), fixedTenant(), &models.LeadRow{Fields: map[string]string{
		models.FieldName:   "Segundo",
		models.FieldPhone:  "(11)97777-0002",
		models.FieldStatus: "Fez Contato",
	}})
	require.NoError(t, err)

	// The retry wrote status through the rebuilt mapping at column C.
	assert.Equal(t, "Fez Contato", api.cell("Leads", 3, 2))
	assert.Equal(t, 2, api.headerGets)
}

func TestMonthlyRolloverCreatesSheetAndCarriesOpenLeads(t *testing.T) {
	now := time.Date(2026, time.September, 1, 9, 0, 0, 0, time.UTC)
	api := newFakeAPI()
	api.addSheet("Agosto 2026",
		testHeader,
		[]any{"Fechada" + models.AutomationMarker, "(11)98888-0001", "", "", "Comprou", "fechou"},
		[]any{"Aberta", "(11)98888-0002", "", "", "Em Negociação", "ligar de novo"},
		[]any{"Robô" + models.AutomationMarker, "(11)98888-0004", "", "", "Fez Contato", ""},
	)
	store := testStore(api, now)

	err := store.AppendLead(context.Background(), monthlyTenant(), &models.LeadRow{Fields: map[string]string{
		models.FieldName:  "Setembro Lead",
		models.FieldPhone: "(11)98888-0003",
	}})
	require.NoError(t, err)

	require.Contains(t, api.grids, "Setembro 2026")

	// Header copied from the prior month.
	assert.Equal(t, "Nome do Lead", api.cell("Setembro 2026", 1, 0))

	// The hand-entered open lead moved over without gaining the marker and
	// with its comments left behind; the closed one stayed in August.
	assert.Equal(t, "Aberta", api.cell("Setembro 2026", 2, 0))
	assert.Equal(t, "(11)98888-0002", api.cell("Setembro 2026", 2, 1))
	assert.Equal(t, "Em Negociação", api.cell("Setembro 2026", 2, 4))
	assert.Equal(t, "", api.cell("Setembro 2026", 2, 5))

	// An automated open lead keeps its marker across months.
	assert.Equal(t, "Robô"+models.AutomationMarker, api.cell("Setembro 2026", 3, 0))

	assert.Equal(t, "Setembro Lead"+models.AutomationMarker, api.cell("Setembro 2026", 4, 0))

	for r := 2; r <= len(api.grids["Setembro 2026"]); r++ {
		assert.NotContains(t, api.cell("Setembro 2026", r, 0), "Fechada")
	}
}

func TestInvalidateMappingForcesHeaderReload(t *testing.T) {
	api := newFakeAPI()
	api.addSheet("Leads", testHeader)
	store := testStore(api, time.Now())
	tenant := fixedTenant()

	err := store.AppendLead(context.Background(), tenant, &models.LeadRow{Fields: map[string]string{
		models.FieldName:  "Lead",
		models.FieldPhone: "(11)97777-0001",
	}})
	require.NoError(t, err)
	require.Equal(t, 1, api.headerGets)

	store.InvalidateMapping(tenant)

	err = store.AppendLead(context.Background(), tenant, &models.LeadRow{Fields: map[string]string{
		models.FieldName:  "Outro",
		models.FieldPhone: "(11)97777-0002",
	}})
	require.NoError(t, err)
	assert.Equal(t, 2, api.headerGets)
}
