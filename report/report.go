// Package report renders the printable unloading report of a job and keeps
// an archive copy of finalized reports in object storage.
package report

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"unloadtrack/activity"
	"unloadtrack/store"
)

const sheet = "Unloading"

var columns = []string{"No", "Source tank", "Destination type", "Destination", "Unit", "Status", "Start", "End", "Paused", "Effective", "Quantity (KG)"}

// WriteJobReport writes an XLSX workbook with the job header and one row per
// line. Durations of lines that are still open are taken at now.
func WriteJobReport(w io.Writer, job *store.Job, lines []activity.Line, now time.Time) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	header := [][]any{
		{"Job", job.Code},
		{"Vessel", job.Vessel},
		{"Material", job.Material},
		{"Status", job.Status},
		{"Manifest (KG)", job.TotalQuantity()},
		{"Completed", formatStamp(job.CompletedAt)},
	}
	for i, row := range header {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, cell, cell, bold); err != nil {
			return err
		}
	}

	top := len(header) + 2
	first, _ := excelize.CoordinatesToCellName(1, top)
	last, _ := excelize.CoordinatesToCellName(len(columns), top)
	if err := f.SetSheetRow(sheet, first, &columns); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, first, last, bold); err != nil {
		return err
	}

	var credited float64
	for i, l := range lines {
		v := activity.BuildView(l, now, 0)
		qty := 0.0
		if l.Status == activity.StatusFinished {
			qty = job.Manifest[l.SourceTank]
			credited += qty
		}
		row := []any{
			i + 1,
			l.SourceTank,
			string(l.Dest.Type),
			l.Dest.ID,
			l.Dest.Unit,
			string(l.Status),
			l.StartedAt.Local().Format("2006-01-02 15:04:05"),
			formatStamp(l.EndedAt),
			formatSeconds(v.PausedSeconds),
			formatSeconds(v.ElapsedSeconds),
			qty,
		}
		cell, _ := excelize.CoordinatesToCellName(1, top+1+i)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}

	totalRow := top + len(lines) + 1
	label, _ := excelize.CoordinatesToCellName(len(columns)-1, totalRow)
	value, _ := excelize.CoordinatesToCellName(len(columns), totalRow)
	if err := f.SetCellValue(sheet, label, "Total"); err != nil {
		return err
	}
	if err := f.SetCellValue(sheet, value, credited); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, label, value, bold); err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "A", "K", 18); err != nil {
		return err
	}
	return f.Write(w)
}

// BuildJobReport is WriteJobReport into memory.
func BuildJobReport(job *store.Job, lines []activity.Line, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteJobReport(&buf, job, lines, now); err != nil {
		return nil, fmt.Errorf("report %s: %w", job.Code, err)
	}
	return buf.Bytes(), nil
}

func formatStamp(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// formatSeconds renders hh:mm:ss.
func formatSeconds(s int64) string {
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s%3600)/60, s%60)
}
