// Package export writes operator-facing xlsx reports: the current dead-letter
// set with the audit trail of every affected trace.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"leadsync/internal/models"
)

const (
	deadLetterSheet = "Dead Letters"
	auditSheet      = "Audit Trail"
)

type Exporter struct {
	dir    string
	logger zerolog.Logger
	now    func() time.Time
}

func NewExporter(dir string, logger zerolog.Logger) *Exporter {
	return &Exporter{
		dir:    dir,
		logger: logger.With().Str("component", "export").Logger(),
		now:    time.Now,
	}
}

// DeadLetters writes one workbook with the failed jobs and their audit steps
// and returns the file path.
func (e *Exporter) DeadLetters(jobs []models.Job, trails map[string][]models.AuditStep) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", deadLetterSheet)
	if err := e.writeJobs(f, jobs); err != nil {
		return "", err
	}
	if err := e.writeTrails(f, jobs, trails); err != nil {
		return "", err
	}

	path := filepath.Join(e.dir, fmt.Sprintf("deadletter-%s.xlsx", e.now().Format("20060102-150405")))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save workbook: %w", err)
	}
	e.logger.Info().Str("path", path).Int("jobs", len(jobs)).Msg("dead-letter export written")
	return path, nil
}

func (e *Exporter) writeJobs(f *excelize.File, jobs []models.Job) error {
	headers := []string{"Job ID", "Lane", "Trace ID", "Tenant ID", "Retries", "Last Error", "Created At", "Failed At"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(deadLetterSheet, cell, h); err != nil {
			return err
		}
	}
	if style, err := headerStyle(f); err == nil {
		last, _ := excelize.CoordinatesToCellName(len(headers), 1)
		_ = f.SetCellStyle(deadLetterSheet, "A1", last, style)
	}

	for row, job := range jobs {
		values := []any{
			job.ID, job.Lane, job.TraceID, job.TenantID, job.RetryCount,
			deref(job.LastError),
			job.CreatedAt.Format(time.RFC3339),
			formatTimePtr(job.ProcessedAt),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(deadLetterSheet, cell, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Exporter) writeTrails(f *excelize.File, jobs []models.Job, trails map[string][]models.AuditStep) error {
	if _, err := f.NewSheet(auditSheet); err != nil {
		return err
	}

	headers := []string{"Trace ID", "Seq", "Step", "Status", "Detail", "At"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(auditSheet, cell, h); err != nil {
			return err
		}
	}

	row := 2
	for _, job := range jobs {
		for _, step := range trails[job.TraceID] {
			values := []any{
				step.TraceID, step.Seq, step.Step, step.Status, step.Detail,
				step.CreatedAt.Format(time.RFC3339),
			}
			for col, v := range values {
				cell, _ := excelize.CoordinatesToCellName(col+1, row)
				if err := f.SetCellValue(auditSheet, cell, v); err != nil {
					return err
				}
			}
			row++
		}
	}
	return nil
}

func headerStyle(f *excelize.File) (int, error) {
	return f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
