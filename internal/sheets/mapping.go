package sheets

import (
	"strings"

	"leadsync/internal/models"
)

// ColumnMapping associates logical lead fields with the physical columns of
// one live header row. Column positions are owned by the operators and drift
// over time, so a mapping is only ever derived from the header, cached, and
// rebuilt on structural errors.
type ColumnMapping struct {
	// columns maps logical field name to zero-based column index.
	columns map[string]int
	// width is the number of header columns, used to bound row reads.
	width int
}

// headerAliases matches normalized header text to logical fields. Matching is
// exact after folding: lowercase, accents stripped, whitespace collapsed.
var headerAliases = map[string]string{
	"nome do lead": models.FieldName,
	"nome":         models.FieldName,
	"lead":         models.FieldName,
	"cliente":      models.FieldName,
	"paciente":     models.FieldName,

	"telefone": models.FieldPhone,
	"fone":     models.FieldPhone,
	"celular":  models.FieldPhone,

	"whatsapp":         models.FieldChannel,
	"canal":            models.FieldChannel,
	"canal de contato": models.FieldChannel,
	"origem":           models.FieldChannel,

	"data":             models.FieldFirstContact,
	"data do contato":  models.FieldFirstContact,
	"primeiro contato": models.FieldFirstContact,
	"data de entrada":  models.FieldFirstContact,

	"fechamento":         models.FieldCloseDate,
	"data fechamento":    models.FieldCloseDate,
	"data de fechamento": models.FieldCloseDate,

	"valor":          models.FieldSaleValue,
	"valor da venda": models.FieldSaleValue,
	"valor fechado":  models.FieldSaleValue,

	"produto":      models.FieldProduct,
	"procedimento": models.FieldProduct,
	"interesse":    models.FieldProduct,

	"status":   models.FieldStatus,
	"situacao": models.FieldStatus,
	"etapa":    models.FieldStatus,

	"cidade": models.FieldCity,

	"comentarios": models.FieldComments,
	"observacoes": models.FieldComments,
	"obs":         models.FieldComments,
}

// requiredFields are warned about when absent; writes simply skip them.
var requiredFields = []string{
	models.FieldName,
	models.FieldPhone,
	models.FieldStatus,
	models.FieldComments,
}

var accentFolder = strings.NewReplacer(
	"á", "a", "à", "a", "â", "a", "ã", "a", "ä", "a",
	"é", "e", "è", "e", "ê", "e", "ë", "e",
	"í", "i", "ì", "i", "î", "i", "ï", "i",
	"ó", "o", "ò", "o", "ô", "o", "õ", "o", "ö", "o",
	"ú", "u", "ù", "u", "û", "u", "ü", "u",
	"ç", "c", "ñ", "n",
)

// foldHeader normalizes header text for alias lookup.
func foldHeader(raw string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	folded := accentFolder.Replace(lowered)
	return strings.Join(strings.Fields(folded), " ")
}

// buildMapping derives a mapping from a header row. Unrecognized headers
// (day-tracking slots among them) stay unmapped and are therefore never
// written.
func buildMapping(headers []any) *ColumnMapping {
	m := &ColumnMapping{
		columns: make(map[string]int),
		width:   len(headers),
	}
	for i, h := range headers {
		text, ok := h.(string)
		if !ok {
			continue
		}
		field, ok := headerAliases[foldHeader(text)]
		if !ok {
			continue
		}
		// First matching column wins; duplicates stay operator-owned.
		if _, taken := m.columns[field]; !taken {
			m.columns[field] = i
		}
	}
	return m
}

// Column returns the A1 column letter for a logical field.
func (m *ColumnMapping) Column(field string) (string, bool) {
	idx, ok := m.columns[field]
	if !ok {
		return "", false
	}
	return columnLetter(idx), true
}

// Has reports whether the field exists in the current header.
func (m *ColumnMapping) Has(field string) bool {
	_, ok := m.columns[field]
	return ok
}

// MissingRequired lists required logical fields absent from the header.
func (m *ColumnMapping) MissingRequired() []string {
	var missing []string
	for _, field := range requiredFields {
		if !m.Has(field) {
			missing = append(missing, field)
		}
	}
	return missing
}

// columnLetter converts a zero-based index to an A1 column letter.
func columnLetter(index int) string {
	letter := ""
	for index >= 0 {
		letter = string(rune('A'+index%26)) + letter
		index = index/26 - 1
	}
	return letter
}
