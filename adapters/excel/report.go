package excel

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"sentinel/domain/core"
	"sentinel/ports"
)

// ReportWriter renders fleet status and triage summaries as an Excel
// workbook for operator review.
type ReportWriter struct{}

// NewReportWriter creates an Excel report writer.
func NewReportWriter() *ReportWriter {
	return &ReportWriter{}
}

const fleetSheet = "Fleet"
const triageSheet = "Triage"

// FleetReport builds a workbook with one row per detector plus a triage
// summary sheet. Callers own the returned file and should Close it.
func (w *ReportWriter) FleetReport(detectors []core.Detector, gov core.GovernorState, summary ports.TriageSummary) (*excelize.File, error) {
	f := excelize.NewFile()
	f.SetSheetName("Sheet1", fleetSheet)

	headers := []interface{}{
		"Name", "Category", "State", "Interval", "Runs", "Failures",
		"Decay Score", "Demoted", "Substituted By", "Last Run", "Last Success", "Last Error",
	}
	if err := f.SetSheetRow(fleetSheet, "A1", &headers); err != nil {
		return nil, fmt.Errorf("write header row: %w", err)
	}

	for i, det := range detectors {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []interface{}{
			det.Name,
			det.Category,
			string(det.State),
			det.Interval.String(),
			det.RunCount,
			det.Failures,
			det.Reliability,
			det.Demoted,
			det.SubstitutedBy,
			formatTime(det.LastRun),
			formatTime(det.LastSuccess),
			det.LastError,
		}
		if err := f.SetSheetRow(fleetSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write detector row: %w", err)
		}
	}

	if _, err := f.NewSheet(triageSheet); err != nil {
		return nil, fmt.Errorf("create triage sheet: %w", err)
	}
	triageRows := [][]interface{}{
		{"Generated", time.Now().Format(time.RFC3339)},
		{"Regime", string(gov.Regime)},
		{"Risk Score", gov.RiskScore},
		{"Paused", gov.Paused},
		{"Analyzed", summary.TotalAnalyzed},
		{"ACT", summary.Act},
		{"WATCH", summary.Watch},
		{"IGNORE", summary.Ignore},
		{"Alerted", summary.Alerted},
	}
	for i, row := range triageRows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(triageSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write triage row: %w", err)
		}
	}

	return f, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
