package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"fuelstation/backend/internal/domain"
	"fuelstation/backend/internal/service"
	"fuelstation/backend/internal/store"
)

func (a *API) handleListPumps(w http.ResponseWriter, r *http.Request) {
	stationID := r.URL.Query().Get("station_id")
	includeInactive := strings.EqualFold(r.URL.Query().Get("include_inactive"), "true")

	pumps, err := a.service.ListPumps(r.Context(), stationID, includeInactive)
	if err != nil {
		writeServiceError(w, a.log, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"pumps": pumps})
}

func (a *API) handleGetPump(w http.ResponseWriter, r *http.Request) {
	pump, err := a.service.GetPump(r.Context(), chi.URLParam(r, "pumpID"))
	if err != nil {
		writeServiceError(w, a.log, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"pump": pump})
}

func (a *API) handleCreatePump(w http.ResponseWriter, r *http.Request) {
	var req domain.PumpCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, a.log, http.StatusBadRequest, service.Invalid("", "malformed request body"))
		return
	}

	pump, err := a.service.CreatePump(r.Context(), req)
	if err != nil {
		writeServiceError(w, a.log, err)
		return
	}
	writeData(w, http.StatusCreated, map[string]any{"pump": pump})
}

func (a *API) handleUpdatePump(w http.ResponseWriter, r *http.Request) {
	var req domain.PumpUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, a.log, http.StatusBadRequest, service.Invalid("", "malformed request body"))
		return
	}

	pump, err := a.service.UpdatePump(r.Context(), chi.URLParam(r, "pumpID"), req)
	if err != nil {
		writeServiceError(w, a.log, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"pump": pump})
}

func (a *API) handlePumpStatus(w http.ResponseWriter, r *http.Request) {
	var req domain.PumpStatusUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, a.log, http.StatusBadRequest, service.Invalid("", "malformed request body"))
		return
	}

	pump, err := a.service.SetPumpStatus(r.Context(), chi.URLParam(r, "pumpID"), req)
	if err != nil {
		writeServiceError(w, a.log, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"pump": pump})
}

func (a *API) handleRecordReading(w http.ResponseWriter, r *http.Request) {
	var req domain.RecordReadingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, a.log, http.StatusBadRequest, service.Invalid("", "malformed request body"))
		return
	}

	reading, err := a.service.RecordReading(r.Context(), req)
	if err != nil {
		writeServiceError(w, a.log, err)
		return
	}
	writeData(w, http.StatusCreated, map[string]any{"reading": reading})
}

func (a *API) handleBulkReadings(w http.ResponseWriter, r *http.Request) {
	var req domain.BulkReadingsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, a.log, http.StatusBadRequest, service.Invalid("", "malformed request body"))
		return
	}

	resp, err := a.service.RecordBulkReadings(r.Context(), req)
	if err != nil {
		writeServiceError(w, a.log, err)
		return
	}
	writeData(w, http.StatusOK, resp)
}

func (a *API) handleListReadings(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := store.ReadingFilter{
		StationID: query.Get("station_id"),
		PumpID:    query.Get("pump_id"),
		DateFrom:  query.Get("from"),
		DateTo:    query.Get("to"),
		Type:      domain.ReadingType(query.Get("type")),
		Limit:     parsePositiveLimit(query.Get("limit"), 200, 1000),
	}

	readings, err := a.service.ListReadings(r.Context(), filter)
	if err != nil {
		writeServiceError(w, a.log, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"readings": readings})
}

func (a *API) handleReadingStatus(w http.ResponseWriter, r *http.Request) {
	stationID := r.URL.Query().Get("station_id")
	date := r.URL.Query().Get("date")

	status, err := a.service.GetDailyReadingStatus(r.Context(), stationID, date)
	if err != nil {
		writeServiceError(w, a.log, err)
		return
	}
	writeData(w, http.StatusOK, status)
}

func (a *API) handleUpdateReading(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateReadingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, a.log, http.StatusBadRequest, service.Invalid("", "malformed request body"))
		return
	}

	reading, err := a.service.UpdateMeterReading(r.Context(), chi.URLParam(r, "readingID"), req)
	if err != nil {
		writeServiceError(w, a.log, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"reading": reading})
}

func (a *API) handleRecordSale(w http.ResponseWriter, r *http.Request) {
	var req domain.RecordPumpSaleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, a.log, http.StatusBadRequest, service.Invalid("", "malformed request body"))
		return
	}

	sale, err := a.service.RecordPumpSale(r.Context(), req)
	if err != nil {
		writeServiceError(w, a.log, err)
		return
	}
	writeData(w, http.StatusCreated, map[string]any{"sale": sale})
}

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	sales, err := a.service.ListPumpSales(r.Context(), query.Get("pump_id"), query.Get("date"))
	if err != nil {
		writeServiceError(w, a.log, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"sales": sales})
}

func (a *API) handleCalculate(w http.ResponseWriter, r *http.Request) {
	var req domain.CalculateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, a.log, http.StatusBadRequest, service.Invalid("", "malformed request body"))
		return
	}

	resp, err := a.service.CalculatePmsForDate(r.Context(), req)
	if err != nil {
		writeServiceError(w, a.log, err)
		return
	}
	writeData(w, http.StatusOK, resp)
}

func (a *API) handleListCalculations(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := store.CalculationFilter{
		StationID:     query.Get("station_id"),
		PumpID:        query.Get("pump_id"),
		DateFrom:      query.Get("from"),
		DateTo:        query.Get("to"),
		FlaggedOnly:   strings.EqualFold(query.Get("flagged"), "true"),
		ApprovalState: domain.ApprovalState(query.Get("approval_state")),
		Limit:         parsePositiveLimit(query.Get("limit"), 200, 500),
	}

	calcs, err := a.service.ListCalculations(r.Context(), filter)
	if err != nil {
		writeServiceError(w, a.log, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"calculations": calcs})
}

func (a *API) handleGetCalculation(w http.ResponseWriter, r *http.Request) {
	calc, err := a.service.GetCalculation(r.Context(), chi.URLParam(r, "calcID"))
	if err != nil {
		writeServiceError(w, a.log, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"calculation": calc})
}

func (a *API) handleApproval(w http.ResponseWriter, r *http.Request) {
	var req domain.ApprovalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, a.log, http.StatusBadRequest, service.Invalid("", "malformed request body"))
		return
	}

	calc, err := a.service.ResolveApproval(r.Context(), chi.URLParam(r, "calcID"), req)
	if err != nil {
		writeServiceError(w, a.log, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"calculation": calc})
}

func (a *API) handleRolloverConfirm(w http.ResponseWriter, r *http.Request) {
	var req domain.ConfirmRolloverRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, a.log, http.StatusBadRequest, service.Invalid("", "malformed request body"))
		return
	}

	calc, err := a.service.ConfirmRollover(r.Context(), req)
	if err != nil {
		writeServiceError(w, a.log, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"calculation": calc})
}

func (a *API) handleDeviations(w http.ResponseWriter, r *http.Request) {
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
	writeData(w, http.StatusOK, report)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := parsePositiveLimit(query.Get("limit"), 100, 500)

	logs, err := a.service.ListAuditLogs(r.Context(), query.Get("station_id"), limit)
	if err != nil {
		writeServiceError(w, a.log, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"logs": logs})
}

func (a *API) handleListStaff(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, map[string]any{"staff": a.auth.ListStaff()})
}

func (a *API) handleCreateStaff(w http.ResponseWriter, r *http.Request) {
	var req domain.StaffCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, a.log, http.StatusBadRequest, service.Invalid("", "malformed request body"))
		return
	}

	staff, err := a.auth.CreateStaff(req)
	if err != nil {
		writeError(w, a.log, http.StatusBadRequest, service.Invalid("", err.Error()))
		return
	}
	writeData(w, http.StatusCreated, map[string]any{"staff": staff})
}
