package sheets

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"leadsync/internal/models"
)

func TestFoldHeader(t *testing.T) {
	assert.Equal(t, "comentarios", foldHeader("  Comentários "))
	assert.Equal(t, "nome do lead", foldHeader("NOME   DO  LEAD"))
	assert.Equal(t, "situacao", foldHeader("Situação"))
	assert.Equal(t, "", foldHeader("   "))
}

func TestBuildMappingMatchesAliases(t *testing.T) {
	m := buildMapping([]any{"Nome do Lead", "Telefone", "Seg", "Ter", "Situação", "Comentários"})

	col, ok := m.Column(models.FieldName)
	assert.True(t, ok)
	assert.Equal(t, "A", col)

	col, ok = m.Column(models.FieldPhone)
	assert.True(t, ok)
	assert.Equal(t, "B", col)

	col, ok = m.Column(models.FieldStatus)
	assert.True(t, ok)
	assert.Equal(t, "E", col)

	col, ok = m.Column(models.FieldComments)
	assert.True(t, ok)
	assert.Equal(t, "F", col)

	// Day-tracking columns stay unmapped.
	assert.False(t, m.Has(models.FieldSaleValue))
	assert.Equal(t, 6, m.width)
}

func TestBuildMappingFirstDuplicateWins(t *testing.T) {
	m := buildMapping([]any{"Nome", "Cliente", "Telefone"})

	col, ok := m.Column(models.FieldName)
	assert.True(t, ok)
	assert.Equal(t, "A", col)
}

func TestMissingRequired(t *testing.T) {
	m := buildMapping([]any{"Nome do Lead", "Telefone"})
	assert.ElementsMatch(t, []string{models.FieldStatus, models.FieldComments}, m.MissingRequired())

	full := buildMapping([]any{"Nome", "Fone", "Status", "Obs"})
	assert.Empty(t, full.MissingRequired())
}

func TestColumnLetter(t *testing.T) {
	assert.Equal(t, "A", columnLetter(0))
	assert.Equal(t, "Z", columnLetter(25))
	assert.Equal(t, "AA", columnLetter(26))
	assert.Equal(t, "AZ", columnLetter(51))
	assert.Equal(t, "BA", columnLetter(52))
}

func TestMonthlySheetTitleRoundTrip(t *testing.T) {
	titles := []string{"Janeiro 2026", "Março 2026", "Dezembro 2025"}
	for _, title := range titles {
		month, ok := parseMonthlyTitle(title)
		assert.True(t, ok, title)
		assert.Equal(t, title, MonthlySheetTitle(month))
	}

	_, ok := parseMonthlyTitle("Config")
	assert.False(t, ok)
	_, ok = parseMonthlyTitle("Backup Janeiro")
	assert.False(t, ok)
}

func TestPriorMonthlySheets(t *testing.T) {
	titles := []string{"Config", "Junho 2026", "Agosto 2026", "Julho 2026", "Dezembro 2025"}
	prior := priorMonthlySheets(titles, "Agosto 2026")
	assert.Equal(t, []string{"Julho 2026", "Junho 2026", "Dezembro 2025"}, prior)
}
