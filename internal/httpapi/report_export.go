package httpapi

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/xuri/excelize/v2"

	"fuelstation/backend/internal/domain"
	"fuelstation/backend/internal/service"
)

func (a *API) handleDeviationsExport(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	report, err := a.service.GetDeviationReport(r.Context(), domain.DeviationQuery{
		StationID: query.Get("station_id"),
		DateFrom:  query.Get("from"),
		DateTo:    query.Get("to"),
		Threshold: query.Get("threshold"),
		Days:      query.Get("days"),
	})
	if err != nil {
		writeServiceError(w, a.log, err)
		return
	}

	payload, err := buildDeviationXLSX(report)
	if err != nil {
		writeError(w, a.log, http.StatusInternalServerError, service.Internal(err.Error()))
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=\"deviations-%s.xlsx\"", report.StationID))
	_, _ = w.Write(payload)
}

// buildDeviationXLSX renders the deviation report as a two-sheet
// workbook for station managers who review offline.
func buildDeviationXLSX(report domain.DeviationReport) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	itemsSheet := "deviations"
	f.SetSheetName("Sheet1", summarySheet)
	if _, err := f.NewSheet(itemsSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "Deviation Report")
	_ = f.SetCellValue(summarySheet, "A3", "Station")
	_ = f.SetCellValue(summarySheet, "B3", report.StationID)
	_ = f.SetCellValue(summarySheet, "A4", "Threshold (%)")
	_ = f.SetCellValue(summarySheet, "B4", report.ThresholdPercent.String())
	_ = f.SetCellValue(summarySheet, "A5", "Lookback (days)")
	_ = f.SetCellValue(summarySheet, "B5", report.LookbackDays)
	_ = f.SetCellValue(summarySheet, "A6", "Generated")
	_ = f.SetCellValue(summarySheet, "B6", report.GeneratedAt)
	_ = f.SetCellValue(summarySheet, "A7", "Flagged Calculations")
	_ = f.SetCellValue(summarySheet, "B7", len(report.Items))

	headers := []string{"Date", "Pump", "Opening", "Closing", "Volume Sold", "Trailing Avg",
		"Deviation (%)", "Rollover", "Estimated Input", "Approval State"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(itemsSheet, cell, header)
	}

	for i, item := range report.Items {
		row := i + 2
		calc := item.Calculation
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("A%d", row), calc.CalculationDate)
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("B%d", row), item.PumpNumber)
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("C%d", row), calc.OpeningValue.String())
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("D%d", row), calc.ClosingValue.String())
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("E%d", row), calc.VolumeSold.String())
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("F%d", row), item.TrailingAverage.String())
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("G%d", row), calc.DeviationPercent.String())
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("H%d", row), calc.RolloverApplied)
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("I%d", row), calc.HasEstimatedInput)
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("J%d", row), string(calc.ApprovalState))
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
