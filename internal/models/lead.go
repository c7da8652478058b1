package models

// Logical lead fields mapped onto whatever physical columns the live header
// row currently contains. Field names, not positions, are the contract.
const (
	FieldName         = "name"
	FieldPhone        = "phone"
	FieldChannel      = "channel"
	FieldFirstContact = "first_contact"
	FieldCloseDate    = "close_date"
	FieldSaleValue    = "sale_value"
	FieldProduct      = "product"
	FieldStatus       = "status"
	FieldCity         = "city"
	FieldComments     = "comments"
)

// LeadRow is the materialized spreadsheet representation of a lead: logical
// field values plus the 1-based row they were read from.
type LeadRow struct {
	Sheet  string            `json:"sheet"`
	Row    int               `json:"row"`
	Fields map[string]string `json:"fields"`
}

// Field returns the value of a logical field, empty when absent.
func (r *LeadRow) Field(name string) string {
	if r.Fields == nil {
		return ""
	}
	return r.Fields[name]
}

// TerminalStatuses are sheet statuses that stop a row from being carried into
// the next monthly sheet on rollover.
var TerminalStatuses = []string{
	"comprou",
	"vendido",
	"ganho",
	"perdido",
	"desqualificado",
	"sem interesse",
}
