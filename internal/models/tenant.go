package models

import "time"

// Sheet naming modes for a tenant's spreadsheet.
const (
	SheetModeFixed       = "fixed"
	SheetModeAutoMonthly = "auto_monthly"
)

// SourceBindings holds the source-specific identifiers a tenant is matched by.
// A binding left empty never matches.
type SourceBindings struct {
	InstanceID string `yaml:"instance_id" json:"instance_id,omitempty"`
	AccountID  string `yaml:"account_id" json:"account_id,omitempty"`
	PipelineID string `yaml:"pipeline_id" json:"pipeline_id,omitempty"`
}

// FeatureFlags toggles optional per-tenant behavior.
type FeatureFlags struct {
	DetectProduct bool `yaml:"detect_product" json:"detect_product"`
	WriteStatus   bool `yaml:"write_status" json:"write_status"`
	PaidOnly      bool `yaml:"paid_only" json:"paid_only"`
}

// Tenant is a configured customer account bound to one spreadsheet and one or
// more CRM source identifiers.
type Tenant struct {
	ID            int64          `yaml:"id" json:"id"`
	Name          string         `yaml:"name" json:"name"`
	Bindings      SourceBindings `yaml:"bindings" json:"bindings"`
	SpreadsheetID string         `yaml:"spreadsheet_id" json:"spreadsheet_id"`
	SheetMode     string         `yaml:"sheet_mode" json:"sheet_mode"`
	SheetName     string         `yaml:"sheet_name" json:"sheet_name,omitempty"`
	Timezone      string         `yaml:"timezone" json:"timezone,omitempty"`
	Flags         FeatureFlags   `yaml:"flags" json:"flags"`
	IsActive      bool           `yaml:"is_active" json:"is_active"`
	CreatedAt     time.Time      `yaml:"-" json:"created_at"`
	UpdatedAt     time.Time      `yaml:"-" json:"updated_at"`
}

// Location resolves the tenant timezone, falling back to São Paulo where the
// operator sheets live.
func (t *Tenant) Location() *time.Location {
	name := t.Timezone
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
